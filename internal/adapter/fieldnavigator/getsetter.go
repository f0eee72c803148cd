package fieldnavigator

import "github.com/Techpire/db/domain"

// GetSetter implements [domain.GetSetter] by closing over whatever backing
// slot (a document field, an array index, or nothing at all) it was built
// to address.
type GetSetter struct {
	getter   func() (any, bool)
	setter   func(any)
	unsetter func()
}

// NewGetSetterWithArrayIndex returns a [domain.GetSetter] bound to one slot
// of array, by index.
func NewGetSetterWithArrayIndex(array []any, index int) domain.GetSetter {
	inRange := func() bool { return index >= 0 && index < len(array) }
	return &GetSetter{
		getter: func() (any, bool) {
			if !inRange() {
				return nil, false
			}
			return array[index], true
		},
		setter: func(value any) {
			if inRange() {
				array[index] = value
			}
		},
		unsetter: func() {
			if inRange() {
				array[index] = nil
			}
		},
	}
}

// NewGetSetterWithDoc returns a [domain.GetSetter] bound to one field of
// doc, by key.
func NewGetSetterWithDoc(doc domain.Document, key string) domain.GetSetter {
	return &GetSetter{
		getter:   func() (any, bool) { return doc.Get(key), doc.Has(key) },
		setter:   func(value any) { doc.Set(key, value) },
		unsetter: func() { doc.Unset(key) },
	}
}

// NewReadOnlyGetSetter returns a [domain.GetSetter] whose Get always reports
// value as set; Set and Unset are no-ops.
func NewReadOnlyGetSetter(value any) domain.GetSetter {
	return &GetSetter{
		getter: func() (any, bool) { return value, true },
	}
}

// NewGetSetterEmpty returns a [domain.GetSetter] representing an address
// that could not be resolved; every operation on it is a no-op.
func NewGetSetterEmpty() domain.GetSetter {
	return &GetSetter{}
}

// Get implements [domain.GetSetter].
func (gs *GetSetter) Get() (any, bool) {
	if gs.getter == nil {
		return nil, false
	}
	return gs.getter()
}

// Set implements [domain.GetSetter].
func (gs *GetSetter) Set(value any) {
	if gs.setter != nil {
		gs.setter(value)
	}
}

// Unset implements [domain.GetSetter].
func (gs *GetSetter) Unset() {
	if gs.unsetter != nil {
		gs.unsetter()
	}
}
