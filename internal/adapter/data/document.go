package data

import (
	"fmt"
	"iter"
	"maps"
	"reflect"
	"slices"
	"strings"
	"time"

	goreflect "github.com/goccy/go-reflect"

	"github.com/Techpire/db/domain"
)

// TagName is the struct tag NewDocument consults when building a document
// from a Go struct, mirroring how "json" works for encoding/json.
const TagName = "gedb"

var timeType = goreflect.TypeOf(*new(time.Time))

// M implements domain.Document by using a hashed map. Duplicates replace old
// values.
type M map[string]any

// NewDocument returns a new instance of [domain.Document]. It accepts nil,
// any of the common map[string]T shapes (fast-pathed to skip reflection
// entirely), or any struct or map value walkable via reflection; anything
// else is rejected with [domain.ErrDocumentType].
func NewDocument(in any) (domain.Document, error) {
	if in == nil {
		return M{}, nil
	}
	if doc, handled := fastPathMap(in); handled {
		return doc, nil
	}

	v := goreflect.ValueNoEscapeOf(in)
	for v.Kind() == goreflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return M{}, nil
		}
		v = v.Elem()
	}
	if v.Kind() != goreflect.Struct && v.Kind() != goreflect.Map {
		return nil, &domain.ErrDocumentType{Type: v.Type().String()}
	}

	built, err := buildValue(v)
	if err != nil {
		return nil, err
	}
	return built.(domain.Document), nil
}

// fastPathMap handles the map[string]T shapes common enough to skip
// reflection for entirely; handled is false for anything else, including
// types reflection would also reject.
func fastPathMap(v any) (domain.Document, bool) {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t), true
	case map[string]string:
		return copyMap(t), true
	case map[string]bool:
		return copyMap(t), true
	case map[string]int:
		return copyMap(t), true
	case map[string]int8:
		return copyMap(t), true
	case map[string]int16:
		return copyMap(t), true
	case map[string]int32:
		return copyMap(t), true
	case map[string]int64:
		return copyMap(t), true
	case map[string]uint:
		return copyMap(t), true
	case map[string]uint8:
		return copyMap(t), true
	case map[string]uint16:
		return copyMap(t), true
	case map[string]uint32:
		return copyMap(t), true
	case map[string]uint64:
		return copyMap(t), true
	case map[string]float32:
		return copyMap(t), true
	case map[string]float64:
		return copyMap(t), true
	case map[string]time.Time:
		return copyMap(t), true
	case map[string]time.Duration:
		return copyMap(t), true
	default:
		return nil, false
	}
}

func copyMap[T any](v map[string]T) domain.Document {
	res := make(M, len(v))
	for k, val := range v {
		res[k] = val
	}
	return res
}

// buildValue walks an arbitrary reflect.Value and produces the plain Go
// value (M, []any, or a scalar) NewDocument should store for it.
func buildValue(v goreflect.Value) (any, error) {
	for v.Kind() == reflect.Pointer || v.Kind() == goreflect.Interface {
		v = v.Elem()
	}
	switch v.Kind() {
	case goreflect.Invalid:
		return nil, nil
	case goreflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		fallthrough
	case goreflect.Array:
		return buildList(v), nil
	case goreflect.Struct:
		if v.Type() == timeType {
			return v.Interface(), nil
		}
		return buildFromStruct(v)
	case goreflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		return buildFromMap(v)
	case goreflect.Chan, goreflect.Func, goreflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return v.Interface(), nil
	default:
		return v.Interface(), nil
	}
}

func buildFromStruct(v goreflect.Value) (domain.Document, error) {
	typ := v.Type()
	res := make(M, v.NumField())

	for n := range v.NumField() {
		structField := typ.Field(n)
		if structField.PkgPath != "" {
			continue // unexported
		}

		name, value, skip, err := resolveStructField(v.Field(n), structField)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}
		res[name] = value
	}
	return res, nil
}

func buildFromMap(v goreflect.Value) (domain.Document, error) {
	res := make(M, v.Len())
	for _, key := range v.MapKeys() {
		value, err := buildValue(v.MapIndex(key))
		if err != nil {
			return nil, err
		}
		res[key.String()] = value
	}
	return res, nil
}

// resolveStructField applies the gedb tag's name override and omitempty /
// omitzero directives to one struct field, then builds its value.
func resolveStructField(v goreflect.Value, structField goreflect.StructField) (name string, value any, skip bool, err error) {
	name = structField.Name
	var directives []string
	if tag, ok := structField.Tag.Lookup(TagName); ok {
		if tag == "-" {
			return "", nil, true, nil
		}
		parts := strings.Split(tag, ",")
		if parts[0] != "" {
			name = parts[0]
		}
		directives = parts[1:]
	}

	if slices.Contains(directives, "omitempty") && isNullableKind(structField.Type) && v.IsNil() {
		return "", nil, true, nil
	}
	if slices.Contains(directives, "omitzero") && v.IsZero() {
		return "", nil, true, nil
	}

	value, err = buildValue(v)
	if err != nil {
		return "", nil, false, err
	}
	return name, value, false, nil
}

func buildList(v goreflect.Value) any {
	res := make([]any, v.Len())
	for i := range v.Len() {
		res[i] = v.Index(i).Interface()
	}
	return res
}

func isNullableKind(t goreflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
		return true
	default:
		return false
	}
}

// ID implements domain.Document
func (d M) ID() any {
	return d["_id"]
}

// Get implements domain.Document
func (d M) Get(key string) any {
	return d[key]
}

// Set implements domain.Document
func (d M) Set(key string, value any) {
	d[key] = value
}

// Unset implements domain.Document
func (d M) Unset(key string) {
	delete(d, key)
}

// D implements domain.Document
func (d M) D(key string) domain.Document {
	r := d[key]
	if r == nil {
		return nil
	}
	if doc, ok := r.(domain.Document); ok {
		return doc
	}
	return nil
}

// Iter implements domain.Document.
func (d M) Iter() iter.Seq2[string, any] {
	return maps.All(d)
}

// Keys implements domain.Document.
func (d M) Keys() iter.Seq[string] {
	return maps.Keys(d)
}

// Len implements domain.Document.
func (d M) Len() int {
	return len(d)
}

// Values implements domain.Document.
func (d M) Values() iter.Seq[any] {
	return maps.Values(d)
}

// Has implements domain.Document.
func (d M) Has(key string) bool {
	_, has := d[key]
	return has
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *M) UnmarshalJSON(input []byte) error {
	doc := &parser{data: input, n: len(input)}
	v, err := doc.parse()
	if err != nil {
		return err
	}
	obj, ok := v.(M)
	if !ok {
		return fmt.Errorf("expected Document, received %T", v)
	}
	*d = obj
	return nil
}
