// Package structure contains type-related operations, such as iterating over a
// value of type any and converting numbers.
package structure

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-reflect"

	"github.com/Techpire/db/domain"
)

// ErrNilObj may be returned by [Seq] or [Seq2] when a nil value is passed
// as argument.
var ErrNilObj = errors.New("nil object")

var documentInterfaceType = reflect.TypeOf((*domain.Document)(nil)).Elem()

// ErrNonObject is returned by [Seq2] when a value that is neither a struct,
// map nor a [domain.Document] is passed as argument, or when it is a map
// whose keys are not strings.
type ErrNonObject struct {
	Type reflect.Type
}

func (e ErrNonObject) Error() string {
	return fmt.Sprintf("type %s is not a valid object", e.Type)
}

// ErrNonList is returned by [Seq] when a value that is neither a slice
// nor a array is passed as argument.
type ErrNonList struct {
	Type reflect.Type
}

func (e ErrNonList) Error() string {
	return fmt.Sprintf("type %s is not a valid list", e.Type)
}

// Seq2 returns an iterator over the passed type. This method works for maps
// and implementations of [domain.Document].
func Seq2(obj any) (iter.Seq2[string, any], int, error) {
	if obj == nil {
		return nil, 0, ErrNilObj
	}
	if seq, length, err := concreteObjectIter(obj); err != nil || seq != nil {
		return seq, length, err
	}
	return reflectObjectIter(obj)
}

// concreteObjectIter recognizes the map[string]T shapes and the
// domain.Document interface directly via a type switch, without paying for
// reflection; it returns a nil seq (and nil err) when obj is some other
// shape that reflectObjectIter needs to handle.
func concreteObjectIter(obj any) (iter.Seq2[string, any], int, error) {
	if err := rejectScalar(obj); err != nil {
		return nil, 0, err
	}
	switch t := obj.(type) {
	case domain.Document:
		return t.Iter(), t.Len(), nil
	case map[string]string:
		return mapIter(t), len(t), nil
	case map[string]bool:
		return mapIter(t), len(t), nil
	case map[string]int:
		return mapIter(t), len(t), nil
	case map[string]int8:
		return mapIter(t), len(t), nil
	case map[string]int16:
		return mapIter(t), len(t), nil
	case map[string]int32:
		return mapIter(t), len(t), nil
	case map[string]int64:
		return mapIter(t), len(t), nil
	case map[string]uint:
		return mapIter(t), len(t), nil
	case map[string]uint8:
		return mapIter(t), len(t), nil
	case map[string]uint16:
		return mapIter(t), len(t), nil
	case map[string]uint32:
		return mapIter(t), len(t), nil
	case map[string]uint64:
		return mapIter(t), len(t), nil
	case map[string]float32:
		return mapIter(t), len(t), nil
	case map[string]float64:
		return mapIter(t), len(t), nil
	case map[string]any:
		return mapIter(t), len(t), nil
	case map[string]time.Time:
		return mapIter(t), len(t), nil
	case map[string]*regexp.Regexp:
		return mapIter(t), len(t), nil
	case map[string][]byte:
		return mapIter(t), len(t), nil
	}
	return nil, 0, nil
}

// rejectScalar reports ErrNonObject for any value that should never be
// treated as a map/struct iterable, before concreteObjectIter or
// reflectObjectIter get a chance to walk into it.
func rejectScalar(obj any) error {
	switch obj.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		time.Time, *regexp.Regexp, []byte:
		return ErrNonObject{Type: reflect.TypeOf(obj)}
	default:
		return nil
	}
}

func reflectObjectIter(obj any) (iter.Seq2[string, any], int, error) {
	v := reflect.ValueNoEscapeOf(obj)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, 0, ErrNilObj
		}
		v = v.Elem()
	}

	if v.Type().Implements(documentInterfaceType) {
		doc := v.Interface().(domain.Document)
		return doc.Iter(), doc.Len(), nil
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String {
			m := make(map[string]any, v.Len())
			for _, key := range v.MapKeys() {
				m[key.String()] = v.MapIndex(key).Interface()
			}
			return mapIter(m), len(m), nil
		}
	case reflect.Struct:
		seq, length := structFieldIter(v)
		return seq, length, nil
	}
	return nil, 0, ErrNonObject{Type: v.Type()}
}

type namedField struct {
	name  string
	value any
}

func structFieldIter(v reflect.Value) (iter.Seq2[string, any], int) {
	fields := make([]namedField, 0, v.NumField())
	for name, value := range exportedFields(v) {
		fields = append(fields, namedField{name: name, value: value})
	}
	return func(yield func(string, any) bool) {
		for _, f := range fields {
			if !yield(f.name, f.value) {
				return
			}
		}
	}, len(fields)
}

// exportedFields walks v's exported struct fields, applying the "gedb" tag's
// name override and omitEmpty/omitZero directives the same way NewDocument
// does for struct-to-document conversion.
func exportedFields(v reflect.Value) iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		typ := v.Type()
		for n := range typ.NumField() {
			field := typ.Field(n)
			if field.PkgPath != "" {
				continue
			}

			name, omitEmpty, omitZero := fieldDirectives(field)
			switch {
			case omitZero && v.Field(n).IsZero():
				continue
			case omitEmpty && isNilable(field.Type.Kind()) && v.Field(n).IsNil():
				continue
			}
			if !yield(name, v.Field(n).Interface()) {
				return
			}
		}
	}
}

func fieldDirectives(field reflect.StructField) (name string, omitEmpty, omitZero bool) {
	name = field.Name
	tag, ok := field.Tag.Lookup("gedb")
	if !ok {
		return name, false, false
	}

	comma := strings.IndexRune(tag, ',')
	if comma < 0 {
		if tag != "" {
			name = tag
		}
		return name, false, false
	}

	for sub := range strings.SplitSeq(tag[comma:], ",") {
		switch sub {
		case "omitEmpty":
			omitEmpty = true
		case "omitZero":
			omitZero = true
		}
	}
	if prefix := tag[:comma]; prefix != "" {
		name = prefix
	}
	return name, omitEmpty, omitZero
}

func isNilable(k reflect.Kind) bool {
	switch k {
	case reflect.Chan, reflect.Func, reflect.Map,
		reflect.Ptr, reflect.UnsafePointer,
		reflect.Interface, reflect.Slice:
		return true
	default:
		return false
	}
}

func mapIter[T any](m map[string]T) iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for k, v := range m {
			if !yield(k, v) {
				return
			}
		}
	}
}

// Seq returns an iterator over a slice or array of any type.
func Seq(obj any) (iter.Seq[any], int, error) {
	if obj == nil {
		return nil, 0, ErrNilObj
	}
	if seq, length, err := concreteListIter(obj); err != nil || seq != nil {
		return seq, length, err
	}
	v := reflect.ValueNoEscapeOf(obj)
	for v.Kind() == reflect.Ptr && !v.IsNil() {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Ptr:
		return nil, 0, ErrNilObj
	case reflect.Slice, reflect.Array:
		items := make([]any, v.Len())
		for i := range items {
			items[i] = v.Index(i).Interface()
		}
		return sliceIter(items), len(items), nil
	}
	return nil, 0, ErrNonList{Type: v.Type()}
}

func concreteListIter(obj any) (iter.Seq[any], int, error) {
	switch t := obj.(type) {
	case []any:
		return sliceIter(t), len(t), nil
	case []string:
		return sliceIter(t), len(t), nil
	case []bool:
		return sliceIter(t), len(t), nil
	case []int:
		return sliceIter(t), len(t), nil
	case []int8:
		return sliceIter(t), len(t), nil
	case []int16:
		return sliceIter(t), len(t), nil
	case []int32:
		return sliceIter(t), len(t), nil
	case []int64:
		return sliceIter(t), len(t), nil
	case []uint:
		return sliceIter(t), len(t), nil
	case []uint8:
		return sliceIter(t), len(t), nil
	case []uint16:
		return sliceIter(t), len(t), nil
	case []uint32:
		return sliceIter(t), len(t), nil
	case []uint64:
		return sliceIter(t), len(t), nil
	case []float32:
		return sliceIter(t), len(t), nil
	case []float64:
		return sliceIter(t), len(t), nil
	case []time.Time:
		return sliceIter(t), len(t), nil
	case []*regexp.Regexp:
		return sliceIter(t), len(t), nil
	case [][]byte:
		return sliceIter(t), len(t), nil
	}
	if err := rejectScalar(obj); err != nil {
		return nil, 0, ErrNonList{Type: reflect.TypeOf(obj)}
	}
	return nil, 0, nil
}

func sliceIter[T any](s []T) iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, v := range s {
			if !yield(v) {
				return
			}
		}
	}
}

// AsInteger converts any built-in number to int and returns a flag that informs
// if the argument is a valid integer.
func AsInteger(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int8:
		return int(t), true
	case int16:
		return int(t), true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case uint:
		return int(t), true
	case uint8:
		return int(t), true
	case uint16:
		return int(t), true
	case uint32:
		return int(t), true
	case uint64:
		return int(t), true
	case float32:
		return truncatedInt(float64(t))
	case float64:
		return truncatedInt(t)
	default:
		return 0, false
	}
}

func truncatedInt(f float64) (int, bool) {
	if trunc := math.Trunc(f); trunc == f {
		return int(trunc), true
	}
	return 0, false
}

// Contains checks if the given value is present in the slice.
func Contains[T any, S ~[]T](s S, t T, equal func(a, b T) (bool, error)) (bool, error) {
	for _, item := range s {
		ok, err := equal(item, t)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
