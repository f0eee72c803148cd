package cursor

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/Techpire/db/domain"
	"github.com/Techpire/db/internal/adapter/comparer"
	"github.com/Techpire/db/internal/adapter/data"
	"github.com/Techpire/db/internal/adapter/decoder"
	"github.com/Techpire/db/internal/adapter/fieldnavigator"
	"github.com/Techpire/db/internal/adapter/matcher"
	"github.com/Techpire/db/pkg/ctxsync"
)

// Cursor implements domain.Cursor.
type Cursor struct {
	data           []domain.Document
	ctx            context.Context
	mu             *ctxsync.Mutex
	dec            domain.Decoder
	started        bool
	storedErr      error
	fieldNavigator domain.FieldNavigator
}

// NewCursor returns a new implementation of Cursor. The candidate set is
// matched, sorted, paged and projected eagerly, so once constructed the
// cursor only ever walks a frozen slice.
func NewCursor(ctx context.Context, candidates []domain.Document, options ...domain.CursorOption) (domain.Cursor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	opts := defaultCursorOptions()
	for _, option := range options {
		option(&opts)
	}

	if len(candidates) == 0 || int64(len(candidates)) < opts.Skip {
		return &Cursor{ctx: ctx, mu: ctxsync.NewMutex()}, nil
	}

	cur := &Cursor{
		ctx:            ctx,
		mu:             ctxsync.NewMutex(),
		dec:            opts.Decoder,
		fieldNavigator: opts.FieldNavigator,
	}

	matched, err := cur.filter(candidates, opts)
	if err != nil {
		return nil, err
	}

	if len(opts.Sort) != 0 && len(matched) != 0 {
		matched, err = cur.applySort(matched, opts)
		if err != nil {
			return nil, err
		}
	}

	paged := matched
	if opts.Sort != nil { // without a sort, filter already applied skip/limit
		paged = cur.paginate(matched, opts)
	}

	if len(opts.Projection) != 0 && len(paged) != 0 {
		paged, err = cur.applyProjection(paged, opts)
		if err != nil {
			return nil, err
		}
	}

	cur.data = slices.Clone(paged)
	return cur, nil
}

func defaultCursorOptions() domain.CursorOptions {
	docFac := data.NewDocument
	fn := fieldnavigator.NewFieldNavigator(docFac)
	comp := comparer.NewComparer()
	m := matcher.NewMatcher(
		domain.WithMatcherDocumentFactory(docFac),
		domain.WithMatcherComparer(comp),
		domain.WithMatcherFieldNavigator(fn),
	)
	return domain.CursorOptions{
		FieldNavigator:  fn,
		Matcher:         m,
		Decoder:         decoder.NewDecoder(),
		DocumentFactory: docFac,
		Comparer:        comp,
	}
}

// filter keeps the documents matching the query. When a sort is requested
// skip/limit can't be applied yet — the final order isn't known until
// after sorting — so the full matching set is kept in that case; otherwise
// skip/limit are folded into this single pass.
func (c *Cursor) filter(candidates []domain.Document, opts domain.CursorOptions) ([]domain.Document, error) {
	matched := make([]domain.Document, 0, len(candidates))

	var added, skipped int64
	for _, doc := range candidates {
		ok, err := opts.Matcher.Match(doc, opts.Query)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if opts.Sort != nil {
			matched = append(matched, doc)
			continue
		}
		if opts.Skip > skipped {
			skipped++
			continue
		}

		matched = append(matched, doc)
		added++
		if opts.Limit > 0 && opts.Limit <= added {
			break
		}
	}
	return matched, nil
}

// paginate applies skip/limit to an already-sorted (or never-needed-sort)
// result set.
func (c *Cursor) paginate(matched []domain.Document, opts domain.CursorOptions) []domain.Document {
	skip := max(0, opts.Skip) // never let the slice bound go negative
	res := matched[skip:]

	limit := opts.Limit
	if limit <= 0 {
		limit = int64(len(res))
	}
	limit = min(int64(len(res)), limit)

	return res[:limit]
}

func (c *Cursor) projectIncludedField(doc map[string]any, candidate domain.Document, proj string) error {
	addr, err := c.fieldNavigator.GetAddress(proj)
	if err != nil {
		return err
	}
	fields, expanded, err := c.fieldNavigator.GetField(candidate, addr...)
	if err != nil {
		return err
	}

	if !expanded {
		if _, isSet := fields[0].Get(); !isSet {
			return nil
		}
	}

	values := make([]any, len(fields))
	for n, field := range fields {
		value, isSet := field.Get()
		if !expanded && !isSet {
			return nil
		}
		values[n] = value
	}

	cursor := doc
	for i, part := range addr {
		if i == len(addr)-1 {
			cursor[part] = values
			break
		}
		inner, ok := cursor[part]
		if !ok {
			inner = make(map[string]any)
			cursor[part] = inner
		}
		nested, ok := inner.(map[string]any)
		if !ok {
			return fmt.Errorf("unexpected type %T in doc. expected %T", inner, nested)
		}
		cursor = nested
	}
	return nil
}

func (c *Cursor) toPlainMap(doc domain.Document) map[string]any {
	res := make(map[string]any, doc.Len())
	for key, value := range doc.Iter() {
		if key == "_id" {
			continue
		}
		if sub, ok := value.(domain.Document); ok {
			res[key] = c.toPlainMap(sub)
		} else {
			res[key] = value
		}
	}
	return res
}

func (c *Cursor) compareField(a, b domain.Document, comp domain.Comparer, field string, direction int) (int, error) {
	addr, err := c.fieldNavigator.GetAddress(field)
	if err != nil {
		return 0, err
	}

	valuesA, _, err := c.fieldNavigator.GetField(a, addr...)
	if err != nil {
		return 0, err
	}
	valuesB, _, err := c.fieldNavigator.GetField(b, addr...)
	if err != nil {
		return 0, err
	}

	c0, err := comp.Compare(c.gettersToValues(valuesA), c.gettersToValues(valuesB))
	if err != nil {
		return 0, err
	}
	return c0 * direction, nil
}

// Err implements domain.Cursor.
func (c *Cursor) Err() error {
	return c.storedErr
}

// Scan implements domain.Cursor.
func (c *Cursor) Scan(ctx context.Context, target any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.ctx.Err(); err != nil {
		return err
	}
	innerCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-ctx.Done():
			cancel(context.Cause(ctx))
		case <-c.ctx.Done():
			cancel(context.Cause(innerCtx))
		case <-innerCtx.Done():
		}
	}()
	if err := c.mu.LockWithContext(innerCtx); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if c.storedErr != nil {
		return c.storedErr
	}
	if !c.started {
		return &domain.ErrScanBeforeNext{}
	}
	if len(c.data) == 0 {
		return fmt.Errorf("called Exec on empty Cursor")
	}
	return c.dec.Decode(c.data[0], target)
}

// Close implements domain.Cursor.
func (c *Cursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, closed := c.storedErr.(*domain.ErrCursorClosed); closed {
		return c.storedErr
	}
	if len(c.data) > 0 {
		c.storedErr = &domain.ErrCursorClosed{}
	}
	c.data = nil
	return nil
}

// Next implements domain.Cursor.
func (c *Cursor) Next() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ctx.Err(); err != nil {
		if c.storedErr == nil {
			c.storedErr = err
		}
		return false
	}
	if len(c.data) == 0 {
		return false
	}
	if c.started {
		c.data = c.data[1:]
	}
	c.started = true
	return len(c.data) > 0
}

// projectionSpec is the normalized, _id-stripped form of a projection map,
// plus whether it excludes (projection values all zero) or includes
// (all nonzero) the fields it names.
type projectionSpec struct {
	fields   map[string]uint64
	excludes bool
}

func newProjectionSpec(projection map[string]uint64) (projectionSpec, error) {
	fields := make(map[string]uint64, len(projection))
	for field, dir := range projection {
		if field != "_id" {
			fields[field] = dir
		}
	}

	spec := projectionSpec{fields: fields}
	if len(fields) == 0 {
		return spec, nil
	}

	for _, dir := range fields {
		spec.excludes = dir == 0
		break
	}
	for _, dir := range fields {
		if (dir == 0) != spec.excludes {
			return spec, fmt.Errorf("can't both keep and omit fields except for _id")
		}
	}
	return spec, nil
}

func (c *Cursor) applyProjection(candidates []domain.Document, opts domain.CursorOptions) ([]domain.Document, error) {
	id, idMentioned := opts.Projection["_id"]
	keepID := !idMentioned || id != 0

	spec, err := newProjectionSpec(opts.Projection)
	if err != nil {
		return nil, err
	}

	res := make([]domain.Document, len(candidates))
	for n, candidate := range candidates {
		var built map[string]any
		if spec.excludes {
			built = c.toPlainMap(candidate)
			for field := range spec.fields {
				c.dropField(built, field)
			}
		} else {
			built = make(map[string]any)
			for field := range spec.fields {
				if err := c.projectIncludedField(built, candidate, field); err != nil {
					return nil, err
				}
			}
		}
		if keepID {
			built["_id"] = candidate.ID()
		}

		doc, err := opts.DocumentFactory(built)
		if err != nil {
			return nil, err
		}
		res[n] = doc
	}
	return res, nil
}

func (c *Cursor) dropField(doc map[string]any, path string) {
	parts := strings.Split(path, ".")
	if len(parts) == 0 {
		return
	}

	lastPart := parts[len(parts)-1]
	parts = parts[:len(parts)-1]

	cursor := doc
	for n, part := range parts {
		val, ok := cursor[part]
		if !ok {
			return
		}
		switch v := val.(type) {
		// Projecting "hello.0": 0 on an array of data replaces the
		// value with null, preserving the index. It is unclear if this
		// is intended, but it was replicated regardless
		case []any:
			if n == len(parts)-1 {
				idx, err := strconv.Atoi(lastPart)
				if err != nil || idx < 0 || idx >= len(v) {
					return
				}
				v[idx] = nil
				return
			}
			asMap := make(map[string]any, len(v))
			for index, item := range v {
				asMap[strconv.Itoa(index)] = item
			}
			cursor = asMap
		case map[string]any:
			cursor = v
		default:
			return
		}
	}
	delete(doc, lastPart)
}

func (c *Cursor) applySort(candidates []domain.Document, opts domain.CursorOptions) ([]domain.Document, error) {
	res := slices.Clone(candidates)

	var sortErr error
	slices.SortFunc(res, func(a, b domain.Document) int {
		if sortErr != nil {
			return 0
		}
		for _, criterion := range opts.Sort {
			comp, err := c.compareField(a, b, opts.Comparer, criterion.Key, int(criterion.Order))
			if err != nil {
				sortErr = err
				return 0
			}
			if comp != 0 {
				return comp
			}
		}
		return 0
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return res, nil
}

func (c *Cursor) gettersToValues(getters []domain.GetSetter) []any {
	res := make([]any, len(getters))
	for n, g := range getters {
		res[n] = g
	}
	return res
}
