package fieldnavigator

import (
	"strconv"
	"strings"

	"github.com/Techpire/db/domain"
)

// FieldNavigator implements [domain.FieldNavigator]. Dotted field addresses
// are resolved one segment at a time; crossing an array without a numeric
// index expands the walk into one cursor per element, which is how a
// projection or update on "tags.name" reaches into every element of a
// tags array at once.
type FieldNavigator struct {
	documentFactory func(any) (domain.Document, error)
}

// NewFieldNavigator returns a new instance of [domain.FieldNavigator].
func NewFieldNavigator(documentFactory func(any) (domain.Document, error)) domain.FieldNavigator {
	return &FieldNavigator{documentFactory: documentFactory}
}

// GetAddress implements [domain.FieldNavigator].
func (fn *FieldNavigator) GetAddress(field string) ([]string, error) {
	return strings.Split(field, "."), nil
}

// GetField implements [domain.FieldNavigator].
func (fn *FieldNavigator) GetField(obj any, fieldParts ...string) ([]domain.GetSetter, bool, error) {
	return fn.walk(obj, fieldParts, false)
}

// EnsureField implements [domain.FieldNavigator].
func (fn *FieldNavigator) EnsureField(obj any, fieldParts ...string) ([]domain.GetSetter, error) {
	res, _, err := fn.walk(obj, fieldParts, true)
	return res, err
}

// cursor tracks one live position of the walk: the value currently sitting
// there, whether it may itself be expanded into a list, and the GetSetter
// that addresses it.
type cursor struct {
	value      any
	expandable bool
	gs         domain.GetSetter
}

func unresolved() []domain.GetSetter { return []domain.GetSetter{NewGetSetterEmpty()} }

// walk resolves fieldParts against obj, returning one GetSetter per
// resolved cursor. expanded is true once the walk crossed an array without
// a numeric index, meaning the caller is dealing with a fan-out across
// elements rather than a single address. When ensure is true, missing
// document fields (and short arrays) are created along the way instead of
// failing the walk.
func (fn *FieldNavigator) walk(obj any, fieldParts []string, ensure bool) ([]domain.GetSetter, bool, error) {
	if obj == nil || len(fieldParts) == 0 {
		return unresolved(), false, nil
	}

	cursors := []cursor{{value: obj, expandable: true}}
	expanded := false

	for partIdx, part := range fieldParts {
		isLast := partIdx == len(fieldParts)-1

		for n := 0; n <= len(cursors)-1; n++ {
			cur := cursors[n]

			switch v := cur.value.(type) {
			case domain.Document:
				next, ok, err := fn.stepIntoDocument(v, part, isLast, ensure, expanded)
				if err != nil {
					return nil, false, err
				}
				if !ok {
					return unresolved(), false, nil
				}
				cursors[n] = next

			case []any:
				grownCursors, retry, stop, err := fn.stepIntoList(cursors, n, v, part, ensure, &expanded)
				if err != nil {
					return nil, false, err
				}
				if stop != nil {
					return stop, false, nil
				}
				cursors = grownCursors
				if retry {
					n--
				}

			default:
				cursors[n] = cursor{value: nil, gs: NewGetSetterEmpty()}
				if !expanded {
					return unresolved(), false, nil
				}
			}
		}
	}

	res := make([]domain.GetSetter, len(cursors))
	for n, c := range cursors {
		res[n] = c.gs
	}
	return res, expanded, nil
}

// stepIntoDocument advances a single cursor holding a document one field
// deeper. ok is false when the field doesn't exist, ensure is false, and
// the walk hasn't yet expanded across an array, in which case the caller
// treats the whole walk as unresolved. Once expanded is true a missing
// field is simply read as nil regardless of ensure, matching a fan-out
// across array elements that don't all share the same shape.
func (fn *FieldNavigator) stepIntoDocument(doc domain.Document, part string, isLast, ensure, expanded bool) (cursor, bool, error) {
	if !expanded && !doc.Has(part) {
		if !ensure {
			return cursor{}, false, nil
		}
		if isLast {
			doc.Set(part, nil)
		} else {
			newDoc, err := fn.documentFactory(nil)
			if err != nil {
				return cursor{}, false, err
			}
			doc.Set(part, newDoc)
		}
	}
	return cursor{
		value:      doc.Get(part),
		expandable: true,
		gs:         NewGetSetterWithDoc(doc, part),
	}, true, nil
}

// stepIntoList advances the cursor at index n, which holds a []any, one
// field deeper. If part isn't a numeric index the list is expanded in
// place into one cursor per element and retry tells the caller to
// reprocess position n (now the first of the freshly inserted elements).
// stop, when non-nil, is a final unresolved result the caller should
// return immediately.
func (fn *FieldNavigator) stepIntoList(cursors []cursor, n int, list []any, part string, ensure bool, expanded *bool) (grown []cursor, retry bool, stop []domain.GetSetter, err error) {
	index, atoiErr := strconv.Atoi(part)
	if atoiErr != nil {
		*expanded = true

		if !cursors[n].expandable {
			cursors[n] = cursor{value: nil, expandable: true, gs: NewGetSetterEmpty()}
			return cursors, true, nil, nil
		}

		expandedItems := make([]cursor, len(list))
		for i, v := range list {
			expandedItems[i] = cursor{value: v, gs: NewGetSetterEmpty()}
		}

		// Splice expandedItems into cursors at position n, preserving
		// everything before and after it, and leaving n pointed at the
		// first newly-inserted element for the retry.
		before := cursors[:n]
		after := cursors[n+1:]
		grown = append(append(before, expandedItems...), after...)
		return grown, true, nil, nil
	}

	if index >= 0 && (index < len(list) || ensure) {
		if ensure && index >= len(list) {
			widened := make([]any, index+1)
			copy(widened, list)
			cursors[n].gs.Set(widened)
			list = widened
		}
		cursors[n] = cursor{
			value:      list[index],
			expandable: true,
			gs:         NewGetSetterWithArrayIndex(list, index),
		}
		return cursors, false, nil, nil
	}

	if *expanded {
		cursors[n] = cursor{value: nil, expandable: true}
		return cursors, false, nil, nil
	}
	return nil, false, unresolved(), nil
}

// SplitFields implements [domain.FieldNavigator].
func (fn *FieldNavigator) SplitFields(in string) ([]string, error) {
	return strings.Split(in, ","), nil
}
