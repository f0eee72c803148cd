package matcher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Techpire/db/domain"
	"github.com/Techpire/db/internal/adapter/comparer"
	"github.com/Techpire/db/internal/adapter/data"
	"github.com/Techpire/db/internal/adapter/fieldnavigator"
	"github.com/Techpire/db/pkg/structure"
)

// fieldPredicate evaluates one query operator against the addressed
// field(s) of a document.
type fieldPredicate func(domain.Document, []string, any) (bool, error)

// elementPredicate compares one already-resolved element value against an
// operator argument.
type elementPredicate func(element, arg any) (bool, error)

// boolPredicate evaluates one of the logical operators ($and/$or/$not/$where)
// against a whole document.
type boolPredicate func(domain.Document, any) (bool, error)

// Matcher implements [domain.Matcher].
type Matcher struct {
	documentFactory func(any) (domain.Document, error)
	comparer        domain.Comparer
	fieldNavigator  domain.FieldNavigator
	fieldOps        map[string]fieldPredicate
	boolOps         map[string]boolPredicate
}

// NewMatcher returns a new implementation of domain.Matcher.
func NewMatcher(options ...domain.MatcherOption) domain.Matcher {
	docFac := data.NewDocument
	opts := domain.MatcherOptions{
		DocumentFactory: docFac,
		Comparer:        comparer.NewComparer(),
		FieldNavigator:  fieldnavigator.NewFieldNavigator(docFac),
	}
	for _, option := range options {
		option(&opts)
	}

	m := &Matcher{
		documentFactory: opts.DocumentFactory,
		comparer:        opts.Comparer,
		fieldNavigator:  opts.FieldNavigator,
	}

	m.boolOps = map[string]boolPredicate{
		"$and":   m.and,
		"$not":   m.not,
		"$or":    m.or,
		"$where": m.where,
	}

	m.fieldOps = map[string]fieldPredicate{
		"$regex":     m.regex,
		"$exists":    m.exists,
		"$size":      m.size,
		"$elemMatch": m.elemMatch,
		"$in":        m.membership("$in", true),
		"$nin":       m.membership("$nin", false),
		"$lt":        m.ordering(func(c int) bool { return c < 0 }),
		"$lte":       m.ordering(func(c int) bool { return c <= 0 }),
		"$gt":        m.ordering(func(c int) bool { return c > 0 }),
		"$gte":       m.ordering(func(c int) bool { return c >= 0 }),
		"$ne":        m.ordering(func(c int) bool { return c != 0 }),
	}

	return m
}

// Match implements [domain.Matcher].
func (m *Matcher) Match(val any, qry any) (bool, error) {
	if qry == nil {
		return true, nil
	}

	doc, ok := val.(domain.Document)
	if !ok {
		return m.matchScalar(val, qry)
	}

	query, ok := qry.(domain.Document)
	if !ok {
		// A non-document value can never satisfy a document-shaped query.
		return false, nil
	}

	return m.matchAgainstQuery(doc, query)
}

// matchScalar wraps a bare value and its query under a throwaway key so
// scalar matches can reuse the document-matching machinery.
func (m *Matcher) matchScalar(val, qry any) (bool, error) {
	valDoc, err := m.documentFactory(nil)
	if err != nil {
		return false, err
	}
	qryDoc, err := m.documentFactory(nil)
	if err != nil {
		return false, err
	}
	valDoc.Set("needAKey", val)
	qryDoc.Set("needAKey", qry)

	return m.matchAgainstQuery(valDoc, qryDoc)
}

func (m *Matcher) matchAgainstQuery(obj, qry domain.Document) (bool, error) {
	clauses, isOperatorQuery, err := m.flattenQuery(qry)
	if err != nil {
		return false, err
	}

	apply := m.matchOneField
	if isOperatorQuery {
		apply = m.applyBoolOp
	}

	for field, value := range clauses {
		matches, err := apply(obj, field, value)
		if err != nil || !matches {
			return false, err
		}
	}
	return true, nil
}

func (m *Matcher) applyBoolOp(obj domain.Document, op string, value any) (bool, error) {
	fn, ok := m.boolOps[op]
	if !ok {
		return false, fmt.Errorf("unknown logical operator %s", op)
	}
	return fn(obj, value)
}

func (m *Matcher) matchOneField(obj domain.Document, field string, value any) (bool, error) {
	addr, err := m.fieldNavigator.GetAddress(field)
	if err != nil {
		return false, err
	}

	valueDoc, ok := value.(domain.Document)
	if !ok {
		return m.fieldEquals(obj, addr, value)
	}

	ops, isOperatorQuery, err := m.flattenQuery(valueDoc)
	if err != nil {
		return false, err
	}
	if !isOperatorQuery {
		return m.fieldEquals(obj, addr, value)
	}

	for op, arg := range ops {
		fn, ok := m.fieldOps[op]
		if !ok {
			return false, fmt.Errorf("unknown comparison function %s", op)
		}
		matches, err := fn(obj, addr, arg)
		if err != nil || !matches {
			return false, err
		}
	}
	return true, nil
}

// flattenQuery walks a query document's top-level fields once, reporting
// whether they are all operators ($lt, $and, ...) or all plain field names —
// mixing the two within one document is rejected.
func (m *Matcher) flattenQuery(qry domain.Document) (map[string]any, bool, error) {
	clauses := make(map[string]any, qry.Len())
	seen, dollar := 0, 0
	for field, value := range qry.Iter() {
		seen++
		if strings.HasPrefix(field, "$") {
			dollar++
		}
		if dollar > 0 && seen != dollar {
			return nil, false, fmt.Errorf("you cannot mix operators and normal fields")
		}
		clauses[field] = value
	}
	return clauses, dollar != 0, nil
}

func (m *Matcher) and(obj domain.Document, value any) (bool, error) {
	arr, ok := m.asArray(value)
	if !ok {
		return false, fmt.Errorf("$and operator used without an array")
	}
	for _, clause := range arr {
		matches, err := m.Match(obj, clause)
		if err != nil || !matches {
			return false, err
		}
	}
	return true, nil
}

func (m *Matcher) not(obj domain.Document, value any) (bool, error) {
	matches, err := m.Match(obj, value)
	return !matches, err
}

func (m *Matcher) or(obj domain.Document, value any) (bool, error) {
	arr, ok := m.asArray(value)
	if !ok {
		return false, fmt.Errorf("$or operator used without an array")
	}
	for _, clause := range arr {
		matches, err := m.Match(obj, clause)
		if err != nil || matches {
			return matches, err
		}
	}
	return false, nil
}

func (m *Matcher) where(obj domain.Document, value any) (bool, error) {
	resolved, _ := m.getValue(value)

	switch predicate := resolved.(type) {
	case func(domain.Document) bool:
		return predicate(obj), nil
	case func(domain.Document) (bool, error):
		return predicate(obj)
	default:
		return false, fmt.Errorf("$where operator used without a function")
	}
}

func (m *Matcher) asArray(value any) ([]any, bool) {
	resolved, _ := m.getValue(value)
	arr, ok := resolved.([]any)
	return arr, ok
}

// matchEach resolves the field(s) addressed by addr and succeeds as soon as
// one resolved element satisfies fn; array-valued fields are matched
// element-wise rather than as a whole.
func (m *Matcher) matchEach(obj domain.Document, addr []string, arg any, fn elementPredicate) (bool, error) {
	fields, _, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return false, err
	}

	for _, field := range fields {
		matches, err := m.matchGetter(field, arg, fn)
		if err != nil || matches {
			return matches, err
		}
	}
	return false, nil
}

func (m *Matcher) matchGetter(field domain.Getter, arg any, fn elementPredicate) (bool, error) {
	value, _ := field.Get()
	elements, ok := value.([]any)
	if !ok {
		elements = []any{field}
	}
	for _, element := range elements {
		matches, err := fn(element, arg)
		if err != nil || matches {
			return matches, err
		}
	}
	return false, nil
}

func (m *Matcher) fieldEquals(obj domain.Document, addr []string, value any) (bool, error) {
	fields, _, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return false, err
	}
	var matches bool
	for _, field := range fields {
		matches, err = m.valueEquals(field, value)
		if err != nil {
			return false, err
		}
		if matches {
			break
		}
	}
	return matches, nil
}

func (m *Matcher) valueEquals(field domain.Getter, value any) (bool, error) {
	if rgx, ok := value.(*regexp.Regexp); ok {
		return m.matchesRegex(field, rgx)
	}

	fieldValue, _ := field.Get()
	arr, isArray := fieldValue.([]any)
	if !isArray {
		c, err := m.comparer.Compare(field, value)
		return c == 0, err
	}

	resolved, _ := m.getValue(value)
	if target, ok := resolved.([]any); ok {
		c, err := m.comparer.Compare(arr, target)
		return err == nil && c == 0, err
	}

	for _, element := range arr {
		c, err := m.comparer.Compare(element, value)
		if err != nil || c == 0 {
			return c == 0, err
		}
	}
	return false, nil
}

func (m *Matcher) getValue(v any) (any, bool) {
	if g, ok := v.(domain.Getter); ok {
		return g.Get()
	}
	return v, true
}

func (m *Matcher) asInt(v any) (int, bool) {
	return structure.AsInteger(v)
}

func (m *Matcher) regex(obj domain.Document, addr []string, arg any) (bool, error) {
	return m.matchEach(obj, addr, arg, func(element, param any) (bool, error) {
		rgx, ok := param.(*regexp.Regexp)
		if !ok {
			return false, fmt.Errorf("$regex operator called with non regular expression")
		}
		return m.matchesRegex(element, rgx)
	})
}

func (m *Matcher) matchesRegex(a any, rgx *regexp.Regexp) (bool, error) {
	value, defined := m.getValue(a)
	if !defined {
		return false, nil
	}
	str, ok := value.(string)
	if !ok {
		return false, nil
	}
	return rgx.MatchString(str), nil
}

// ordering builds the $lt/$lte/$gt/$gte/$ne family: every one of them
// resolves the two sides through the comparer and keeps only a fixed sign
// of the result.
func (m *Matcher) ordering(keep func(sign int) bool) fieldPredicate {
	return func(obj domain.Document, addr []string, arg any) (bool, error) {
		return m.matchEach(obj, addr, arg, func(element, param any) (bool, error) {
			if !m.comparer.Comparable(element, param) {
				return false, nil
			}
			c, err := m.comparer.Compare(element, param)
			if err != nil {
				return false, err
			}
			return keep(c), nil
		})
	}
}

// membership builds $in/$nin: wantFound selects whether a match is required
// to be present in, or absent from, the argument array.
func (m *Matcher) membership(name string, wantFound bool) fieldPredicate {
	return func(obj domain.Document, addr []string, arg any) (bool, error) {
		return m.matchEach(obj, addr, arg, func(element, param any) (bool, error) {
			resolved, _ := m.getValue(param)
			candidates, ok := resolved.([]any)
			if !ok {
				return false, fmt.Errorf("%s operator called with a non-array", name)
			}
			for _, candidate := range candidates {
				c, err := m.comparer.Compare(candidate, element)
				if err != nil {
					return false, err
				}
				if c == 0 {
					return wantFound, nil
				}
			}
			return !wantFound, nil
		})
	}
}

func (m *Matcher) exists(obj domain.Document, addr []string, arg any) (bool, error) {
	fields, _, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return false, err
	}

	wantDefined, err := m.isTruthy(arg)
	if err != nil {
		return false, err
	}

	for _, field := range fields {
		if _, defined := field.Get(); defined {
			return wantDefined, nil
		}
	}
	return !wantDefined, nil
}

func (m *Matcher) isTruthy(value any) (bool, error) {
	resolved, _ := m.getValue(value)
	if resolved == nil {
		return false, nil
	}

	c, err := m.comparer.Compare(resolved, 0)
	if err != nil || c == 0 {
		return c != 0, err
	}

	c, err = m.comparer.Compare(resolved, false)
	return c != 0, err
}

func (m *Matcher) size(obj domain.Document, addr []string, arg any) (bool, error) {
	fields, expanded, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return false, err
	}

	want, ok := m.asInt(arg)
	if !ok {
		return false, fmt.Errorf("$size operator called without an integer")
	}

	if expanded {
		return len(fields) == want, nil
	}

	value, _ := fields[0].Get()
	if value == nil {
		return false, nil
	}
	arr, ok := value.([]any)
	if !ok {
		return false, nil
	}
	return len(arr) == want, nil
}

func (m *Matcher) elemMatch(obj domain.Document, addr []string, arg any) (bool, error) {
	fields, _, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return false, err
	}

	for _, field := range fields {
		value, _ := field.Get()
		arr, ok := value.([]any)
		if !ok {
			continue
		}
		for _, element := range arr {
			matches, err := m.Match(element, arg)
			if err != nil || matches {
				return matches, err
			}
		}
	}
	return false, nil
}
