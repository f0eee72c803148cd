// Package uncomparablemap implements a hash map keyed on values that don't
// satisfy Go's == operator (slices, maps, or anything else whose equality
// only a [domain.Comparer] knows how to judge) by hashing with a
// [domain.Hasher] and resolving collisions with a linear scan.
package uncomparablemap

import (
	"iter"
	"slices"

	"github.com/Techpire/db/domain"
)

type entry[T any] struct {
	key   any
	value T
}

// UncomparableMap is a hash map whose keys are compared via a
// [domain.Comparer] rather than Go's built-in ==, so arbitrary document
// field values (which may be slices, maps, or other uncomparable types)
// can still be used as keys.
type UncomparableMap[T any] struct {
	buckets  [][]entry[T]
	hasher   domain.Hasher
	comparer domain.Comparer
}

const initialBucketCount = 8

// New returns an empty UncomparableMap that hashes keys with hasher and
// breaks ties within a bucket using comparer.
func New[T any](hasher domain.Hasher, comparer domain.Comparer) *UncomparableMap[T] {
	return &UncomparableMap[T]{
		buckets:  make([][]entry[T], initialBucketCount),
		hasher:   hasher,
		comparer: comparer,
	}
}

func (m *UncomparableMap[T]) bucketFor(key any) (int, error) {
	hash, err := m.hasher.Hash(key)
	if err != nil {
		return 0, err
	}
	return int(hash % uint64(len(m.buckets))), nil
}

// indexIn scans bucket for the entry whose key compares equal to key.
func (m *UncomparableMap[T]) indexIn(bucket []entry[T], key any) (int, error) {
	for n, e := range bucket {
		cmp, err := m.comparer.Compare(key, e.key)
		if err != nil {
			return -1, err
		}
		if cmp == 0 {
			return n, nil
		}
	}
	return -1, nil
}

// Get returns the value stored under key, if any.
func (m *UncomparableMap[T]) Get(key any) (T, bool, error) {
	bi, err := m.bucketFor(key)
	if err != nil {
		return *new(T), false, err
	}
	bucket := m.buckets[bi]

	i, err := m.indexIn(bucket, key)
	if err != nil || i < 0 {
		return *new(T), false, err
	}
	return bucket[i].value, true, nil
}

// Set stores value under key, replacing any existing value for that key.
func (m *UncomparableMap[T]) Set(key any, value T) error {
	bi, err := m.bucketFor(key)
	if err != nil {
		return err
	}
	bucket := m.buckets[bi]

	i, err := m.indexIn(bucket, key)
	if err != nil {
		return err
	}
	if i >= 0 {
		bucket[i] = entry[T]{key: key, value: value}
		return nil
	}

	m.buckets[bi] = append(bucket, entry[T]{key: key, value: value})
	return nil
}

// Delete removes key and its value, if present.
func (m *UncomparableMap[T]) Delete(key any) error {
	bi, err := m.bucketFor(key)
	if err != nil {
		return err
	}
	bucket := m.buckets[bi]

	i, err := m.indexIn(bucket, key)
	if err != nil || i < 0 {
		return err
	}
	m.buckets[bi] = slices.Delete(bucket, i, i+1)
	return nil
}

// Keys iterates over every key currently stored, in no particular order.
func (m *UncomparableMap[T]) Keys() iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, bucket := range m.buckets {
			for _, e := range bucket {
				if !yield(e.key) {
					return
				}
			}
		}
	}
}

// Values iterates over every stored value, in no particular order.
func (m *UncomparableMap[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, bucket := range m.buckets {
			for _, e := range bucket {
				if !yield(e.value) {
					return
				}
			}
		}
	}
}

// Iter iterates over every key/value pair currently stored, in no
// particular order.
func (m *UncomparableMap[T]) Iter() iter.Seq2[any, T] {
	return func(yield func(any, T) bool) {
		for _, bucket := range m.buckets {
			for _, e := range bucket {
				if !yield(e.key, e.value) {
					return
				}
			}
		}
	}
}
