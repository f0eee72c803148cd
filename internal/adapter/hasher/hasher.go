// Package hasher contains the default [domain.Hasher] implementation.
package hasher

import (
	"encoding/json"
	"hash/fnv"
	"reflect"

	"github.com/Techpire/db/domain"
)

// Hasher implements [domain.Hasher] by hashing a value's canonical JSON
// encoding, so two structurally equal values hash the same regardless of
// their concrete Go type. Pointers, channels and functions that are not
// documents are hashed by their address instead; a nil one hashes like nil.
type Hasher struct{}

// NewHasher returns a new implementation of [domain.Hasher].
func NewHasher() domain.Hasher {
	return &Hasher{}
}

// Hash implements [domain.Hasher].
func (h *Hasher) Hash(v any) (uint64, error) {
	if _, isDoc := v.(domain.Document); !isDoc {
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
			if rv.IsNil() {
				v = nil
			} else {
				v = rv.Pointer()
			}
		}
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	sum := fnv.New64a()
	if _, err := sum.Write(encoded); err != nil {
		return 0, err
	}
	return sum.Sum64(), nil
}
