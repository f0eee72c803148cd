package modifier

import (
	"fmt"
	"maps"
	"math/big"
	"strings"

	"github.com/Techpire/db/domain"
)

// updateOp applies one update modifier ($set, $inc, ...) to the field(s)
// addressed within a document.
type updateOp func(domain.Document, []string, any) error

// eachSliceSpec is the parsed form of a $push/$addToSet argument that may
// carry $each and, for $push, $slice.
type eachSliceSpec struct {
	items      []any
	slice      int
	hasSlice   bool
	fieldsUsed int
}

// Modifier implements [domain.Modifier].
type Modifier struct {
	comp           domain.Comparer
	docFac         func(any) (domain.Document, error)
	fieldNavigator domain.FieldNavigator
	matcher        domain.Matcher
	ops            map[string]updateOp
}

// NewModifier implements [domain.Modifier].
func NewModifier(docFac func(any) (domain.Document, error), comp domain.Comparer, fn domain.FieldNavigator, matcher domain.Matcher) domain.Modifier {
	m := &Modifier{
		comp:           comp,
		docFac:         docFac,
		fieldNavigator: fn,
		matcher:        matcher,
	}

	m.ops = map[string]updateOp{
		"$set":      m.set,
		"$unset":    m.unset,
		"$inc":      m.inc,
		"$push":     m.push,
		"$addToSet": m.addToSet,
		"$pop":      m.pop,
		"$pull":     m.pull,
		"$max":      m.extremum(func(c int) bool { return c < 0 }),
		"$min":      m.extremum(func(c int) bool { return c > 0 }),
	}

	return m
}

// Modify implements [domain.Modifier].
func (m *Modifier) Modify(obj domain.Document, updateQuery domain.Document) (domain.Document, error) {
	clauses, isReplace, err := m.splitClauses(obj, updateQuery)
	if err != nil {
		return nil, err
	}

	if isReplace {
		return m.applyReplace(obj, clauses)
	}
	return m.applyModifiers(obj, clauses)
}

// splitClauses rejects any attempt to change _id up front, then reports
// whether updateQuery is a full-document replacement or a set of $-prefixed
// modifier clauses — mixing the two forms is an error.
func (m *Modifier) splitClauses(obj domain.Document, updateQuery domain.Document) (map[string]any, bool, error) {
	dollarFields, total := 0, 0

	clauses := make(map[string]any, updateQuery.Len())
	for key, value := range updateQuery.Iter() {
		total++
		if err := m.guardIDField(obj, key, value); err != nil {
			return nil, false, err
		}
		if strings.HasPrefix(key, "$") {
			dollarFields++
		}
		if dollarFields != 0 && dollarFields != total {
			return nil, false, fmt.Errorf("you cannot mix modifiers and normal fields")
		}
		clauses[key] = value
	}
	return clauses, dollarFields == 0, nil
}

func (m *Modifier) guardIDField(obj domain.Document, key string, value any) error {
	if key != "_id" {
		return nil
	}
	c, err := m.comp.Compare(value, obj.ID())
	if err != nil {
		return err
	}
	if c != 0 {
		return &domain.ErrCannotModifyID{}
	}
	return nil
}

func (m *Modifier) applyReplace(obj domain.Document, clauses map[string]any) (domain.Document, error) {
	replacement, err := m.docFac(nil)
	if err != nil {
		return nil, err
	}

	for key, value := range clauses {
		replacement.Set(key, value)
	}
	replacement.Set("_id", obj.ID())

	return replacement, nil
}

// boundOp pairs a resolved modifier function with its argument fields so
// applyModifiers only needs to resolve each clause's operator once.
type boundOp struct {
	fn   updateOp
	args map[string]any
}

func (m *Modifier) applyModifiers(obj domain.Document, clauses map[string]any) (domain.Document, error) {
	bound := make(map[string]boundOp, len(clauses))

	for modName, arg := range clauses {
		fn, ok := m.ops[modName]
		if !ok {
			return nil, fmt.Errorf("unknown modifier %s", modName)
		}
		argDoc, ok := arg.(domain.Document)
		if !ok {
			return nil, fmt.Errorf("Modifier %s's argument must be an object", modName)
		}
		bound[modName] = boundOp{fn: fn, args: maps.Collect(argDoc.Iter())}
	}

	result, err := m.cloneDocument(obj)
	if err != nil {
		return nil, err
	}

	for _, op := range bound {
		for key, arg := range op.args {
			addr, err := m.fieldNavigator.GetAddress(key)
			if err != nil {
				return nil, err
			}
			if err := op.fn(result, addr, arg); err != nil {
				return nil, err
			}
		}
	}

	if obj.ID() != result.ID() {
		return nil, &domain.ErrCannotModifyID{}
	}
	return result, nil
}

func (m *Modifier) cloneDocument(doc domain.Document) (domain.Document, error) {
	clone, err := m.docFac(nil)
	if err != nil {
		return nil, err
	}

	for key, value := range doc.Iter() {
		if strings.HasPrefix(key, "$") {
			continue
		}
		copied, err := m.cloneValue(value)
		if err != nil {
			return nil, err
		}
		clone.Set(key, copied)
	}
	return clone, nil
}

func (m *Modifier) cloneValue(value any) (any, error) {
	switch v := value.(type) {
	case domain.Document:
		return m.cloneDocument(v)
	case []any:
		clone := make([]any, len(v))
		for i, item := range v {
			copied, err := m.cloneValue(item)
			if err != nil {
				return nil, err
			}
			clone[i] = copied
		}
		return clone, nil
	default:
		return value, nil
	}
}

// toBigFloat is the only place numeric $inc/$pop/$slice arguments get
// converted ($min/$max go through the comparer), so those modifiers agree on which Go kinds count as
// numbers and none of them round through float64 before it's unavoidable.
func (m *Modifier) toBigFloat(value any) (*big.Float, bool) {
	f := big.NewFloat(0)
	switch n := value.(type) {
	case int:
		f.SetInt64(int64(n))
	case int8:
		f.SetInt64(int64(n))
	case int16:
		f.SetInt64(int64(n))
	case int32:
		f.SetInt64(int64(n))
	case int64:
		f.SetInt64(n)
	case uint:
		f.SetUint64(uint64(n))
	case uint8:
		f.SetUint64(uint64(n))
	case uint16:
		f.SetUint64(uint64(n))
	case uint32:
		f.SetUint64(uint64(n))
	case uint64:
		f.SetUint64(n)
	case float32:
		f.SetFloat64(float64(n))
	case float64:
		f.SetFloat64(n)
	default:
		return nil, false
	}
	return f, true
}

func (m *Modifier) set(obj domain.Document, addr []string, arg any) error {
	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		if _, defined := field.Get(); defined {
			field.Set(arg)
		}
	}
	return nil
}

func (m *Modifier) unset(obj domain.Document, addr []string, _ any) error {
	fields, _, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		if _, defined := field.Get(); defined {
			field.Unset()
		}
	}
	return nil
}

func (m *Modifier) inc(obj domain.Document, addr []string, arg any) error {
	delta, ok := m.toBigFloat(arg)
	if !ok {
		return fmt.Errorf("%v must be a number", arg)
	}
	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		value, defined := field.Get()
		if !defined {
			continue
		}
		if value == nil { // nil can be incremented too
			value = 0.0
		}
		current, ok := m.toBigFloat(value)
		if !ok {
			return fmt.Errorf("Don't use the $inc modifier on non-number fields")
		}
		sum, _ := current.Add(current, delta).Float64()
		field.Set(sum)
	}
	return nil
}

func (m *Modifier) push(obj domain.Document, addr []string, arg any) error {
	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		value, defined := field.Get()
		if !defined {
			continue
		}
		if value == nil {
			value = []any{}
		}
		array, ok := value.([]any)
		if !ok {
			return fmt.Errorf("Can't $push an element on non-array values")
		}

		result := append(array, arg)
		if spec, ok := arg.(domain.Document); ok {
			result, err = m.buildPushResult(spec, array)
			if err != nil {
				return err
			}
		}
		field.Set(result)
	}
	return nil
}

// parseEachSlice reads the $each/$slice pair out of a $push or $addToSet
// argument document; a bare value without $each is treated as a
// single-element $each.
func (m *Modifier) parseEachSlice(spec domain.Document) (*eachSliceSpec, error) {
	res := &eachSliceSpec{}

	each := any([]any{spec})
	if spec.Has("$each") {
		res.fieldsUsed++
		each = spec.Get("$each")
	}

	items, ok := each.([]any)
	if !ok {
		return nil, fmt.Errorf("$each requires an array value")
	}
	res.items = items

	if n, ok := m.toBigFloat(spec.Get("$slice")); ok && n.IsInt() {
		res.fieldsUsed++
		slice, _ := n.Int64()
		res.slice = int(slice)
		res.hasSlice = true
	}

	return res, nil
}

func (m *Modifier) buildPushResult(spec domain.Document, array []any) ([]any, error) {
	parsed, err := m.parseEachSlice(spec)
	if err != nil {
		return nil, err
	}
	if spec.Len() > parsed.fieldsUsed {
		return nil, fmt.Errorf("Can only use $slice in cunjunction with $each when $push to array")
	}

	result := append(array, parsed.items...)
	if !parsed.hasSlice {
		return result, nil
	}

	if parsed.slice >= 0 {
		return result[:min(parsed.slice, len(result))], nil
	}
	from := max(parsed.slice, -len(result))
	return result[len(result)+from:], nil
}

func (m *Modifier) addToSet(obj domain.Document, addr []string, arg any) error {
	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return err
	}

	for _, field := range fields {
		value, defined := field.Get()
		if !defined {
			continue
		}
		if value == nil {
			value = []any{}
		}
		array, ok := value.([]any)
		if !ok {
			return fmt.Errorf("Can't $addToSet an element on non-array values")
		}

		candidates := []any{arg}
		if spec, ok := arg.(domain.Document); ok {
			parsed, err := m.parseEachSlice(spec)
			if err != nil {
				return err
			}
			if parsed.fieldsUsed > 0 && spec.Len() > 1 {
				return fmt.Errorf("Can't use another field in conjunction with $each")
			}
			candidates = parsed.items
		}

		for _, candidate := range candidates {
			present, err := m.alreadyPresent(array, candidate)
			if err != nil {
				return err
			}
			if !present {
				array = append(array, candidate)
			}
		}
		field.Set(array)
	}

	return nil
}

func (m *Modifier) alreadyPresent(array []any, candidate any) (bool, error) {
	for _, item := range array {
		c, err := m.comp.Compare(candidate, item)
		if err != nil {
			return false, err
		}
		if c == 0 {
			return true, nil
		}
	}
	return false, nil
}

func (m *Modifier) pop(obj domain.Document, addr []string, arg any) error {
	n, ok := m.toBigFloat(arg)
	if !ok || !n.IsInt() {
		return fmt.Errorf("%v isn't an integer, can't use it with $pop", arg)
	}
	count64, _ := n.Int64()
	if count64 == 0 {
		return nil
	}
	count := int(count64)

	fields, _, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return err
	}

	for _, field := range fields {
		value, _ := field.Get() // unset fields should fail, so defined isn't checked

		list, ok := value.([]any)
		if !ok {
			return fmt.Errorf("Can't $pop an element from non-array values")
		}

		start, end := 0, max(0, len(list)-1) // pop from the tail
		if count < 0 {
			start, end = min(1, len(list)), len(list) // pop from the head
		}
		field.Set(list[start:end])
	}
	return nil
}

func (m *Modifier) pull(obj domain.Document, addr []string, arg any) error {
	fields, _, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return err
	}

	for _, field := range fields {
		value, _ := field.Get()

		list, ok := value.([]any)
		if !ok {
			return fmt.Errorf("Can't $pull an element from non-array values")
		}

		kept := make([]any, 0, len(list))
		for _, item := range list {
			matches, err := m.matcher.Match(item, arg)
			if err != nil {
				return err
			}
			if !matches {
				kept = append(kept, item)
			}
		}
		field.Set(kept)
	}
	return nil
}

// extremum builds $max/$min: keep decides, from the sign of comparing the
// current field value against arg, whether arg replaces it. A field that is
// missing or nil is set to arg.
func (m *Modifier) extremum(keep func(sign int) bool) updateOp {
	return func(obj domain.Document, addr []string, arg any) error {
		fields, err := m.fieldNavigator.EnsureField(obj, addr...)
		if err != nil {
			return err
		}
		for _, field := range fields {
			if value, defined := field.Get(); defined && value == nil {
				field.Set(arg)
				continue
			}
			c, err := m.comp.Compare(field, arg)
			if err != nil {
				return err
			}
			if keep(c) {
				field.Set(arg)
			}
		}
		return nil
	}
}
