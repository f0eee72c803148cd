package index

import (
	"context"
	"maps"
	"slices"

	"github.com/vinicius-lino-figueiredo/bst"
	"github.com/Techpire/db/domain"
	"github.com/Techpire/db/internal/adapter/comparer"
	"github.com/Techpire/db/internal/adapter/data"
	"github.com/Techpire/db/internal/adapter/fieldnavigator"
	"github.com/Techpire/db/internal/adapter/hasher"
	"github.com/Techpire/db/pkg/uncomparablemap"
)

// Index implements domain.Index over an ordered binary search tree, so
// single-field, compound-field and array-valued keys all share one
// insert/remove/rollback path.
type Index struct {
	fieldName string
	keyFields []string
	unique    bool
	sparse    bool
	// Exported to allow testing. Should not be a problem because Index is
	// used as interface.
	Tree           *bst.BinarySearchTree
	treeOptions    bst.Options
	comparer       domain.Comparer
	hasher         domain.Hasher
	fieldNavigator domain.FieldNavigator
}

// FieldName implements domain.Index.
func (i *Index) FieldName() string {
	return i.fieldName
}

// Sparse implements domain.Index.
func (i *Index) Sparse() bool {
	return i.sparse
}

// Unique implements domain.Index.
func (i *Index) Unique() bool {
	return i.unique
}

// NewIndex returns a new implementation of domain.Index.
func NewIndex(options ...domain.IndexOption) (domain.Index, error) {
	opts := domain.IndexOptions{
		DocumentFactory: data.NewDocument,
		Comparer:        comparer.NewComparer(),
		Hasher:          hasher.NewHasher(),
	}
	opts.FieldNavigator = fieldnavigator.NewFieldNavigator(opts.DocumentFactory)

	for _, option := range options {
		option(&opts)
	}

	if opts.DocumentFactory == nil {
		opts.DocumentFactory = data.NewDocument
	}
	if opts.Comparer == nil {
		opts.Comparer = comparer.NewComparer()
	}
	if opts.Hasher == nil {
		opts.Hasher = hasher.NewHasher()
	}
	if opts.FieldNavigator == nil {
		opts.FieldNavigator = fieldnavigator.NewFieldNavigator(opts.DocumentFactory)
	}

	keyFields, err := opts.FieldNavigator.SplitFields(opts.FieldName)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		fieldName:      opts.FieldName,
		keyFields:      keyFields,
		unique:         opts.Unique,
		sparse:         opts.Sparse,
		comparer:       opts.Comparer,
		hasher:         opts.Hasher,
		fieldNavigator: opts.FieldNavigator,
	}
	idx.treeOptions = bst.Options{
		Unique:      opts.Unique,
		CompareKeys: idx.compareKeys,
	}
	idx.Tree = bst.NewBinarySearchTree(idx.treeOptions)

	return idx, nil
}

// checkContext is the shared cancellation guard every mutating or
// bound-scanning method on Index runs before doing any work.
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Reset implements domain.Index.
func (i *Index) Reset(ctx context.Context, newData ...domain.Document) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	i.Tree = bst.NewBinarySearchTree(i.treeOptions)
	return i.Insert(ctx, newData...)
}

// buildKeys computes the tree key(s) a document contributes to this index:
// one Object key per document for a compound index, or one key per array
// element for a single dotted-path index over an array field.
func (i *Index) buildKeys(doc domain.Document) ([]any, error) {
	if len(i.keyFields) != 1 {
		return i.buildCompoundKey(doc)
	}
	return i.buildSingleFieldKeys(doc)
}

func (i *Index) buildCompoundKey(doc domain.Document) ([]any, error) {
	key := make(data.M)
	var hasAnyField bool

	for _, field := range i.keyFields {
		addr, err := i.fieldNavigator.GetAddress(field)
		if err != nil {
			return nil, err
		}
		getters, _, err := i.fieldNavigator.GetField(doc, addr...)
		if err != nil {
			return nil, err
		}

		key[field] = nil
		values := make([]any, len(getters))
		defined := false
		for n, g := range getters {
			value, isSet := g.Get()
			if isSet && !defined {
				defined = true
			}
			values[n] = value
		}
		if defined { // if undefined, treat as nil
			key[field] = values[0]
		}
		hasAnyField = hasAnyField || key[field] != nil
	}

	if i.sparse && !hasAnyField {
		return nil, nil
	}
	return []any{key}, nil
}

func (i *Index) buildSingleFieldKeys(doc domain.Document) ([]any, error) {
	addr, err := i.fieldNavigator.GetAddress(i.keyFields[0])
	if err != nil {
		return nil, err
	}
	getters, _, err := i.fieldNavigator.GetField(doc, addr...)
	if err != nil {
		return nil, err
	}

	keys := make([]any, len(getters))
	defined := false
	for n, g := range getters {
		key, isSet := g.Get()
		if isSet && !defined {
			defined = true
		}
		keys[n] = key
	}

	if i.sparse && !defined {
		return nil, nil
	}
	if len(keys) == 0 {
		return []any{nil}, nil
	}
	if list, ok := keys[0].([]any); ok {
		return list, nil
	}
	return keys, nil
}

// insertedKey tracks, per tree-key hash, exactly which (key, doc) pairs
// Insert has actually landed in the tree so a later failure can roll back
// only those, not every key a failed document would have produced.
type insertedKey struct {
	key  any
	docs []domain.Document
}

// Insert implements domain.Index.
func (i *Index) Insert(ctx context.Context, docs ...domain.Document) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	landed := make(map[uint64]insertedKey, len(docs))
	var insertErr error

insertLoop:
	for _, doc := range docs {
		keys, err := i.buildKeys(doc)
		if err != nil {
			insertErr = err
			break
		}
		keys = i.dedupeKeys(keys)

		for _, key := range keys {
			if err := i.Tree.Insert(key, doc); err != nil {
				if i.unique {
					err = &domain.ErrConstraintViolated{FieldName: i.fieldName, Key: key}
				}
				insertErr = err
				break insertLoop
			}

			h, err := i.hasher.Hash(key)
			if err != nil {
				insertErr = err
				break insertLoop
			}
			entry := landed[h]
			entry.key = key
			entry.docs = append(entry.docs, doc)
			landed[h] = entry
		}
	}

	if insertErr != nil {
		i.rollbackInsert(landed)
		return insertErr
	}
	return nil
}

func (i *Index) dedupeKeys(keys []any) []any {
	slices.SortFunc(keys, i.compareKeys)
	return slices.CompactFunc(keys, func(a, b any) bool { return i.compareKeys(a, b) == 0 })
}

func (i *Index) rollbackInsert(landed map[uint64]insertedKey) {
	for _, entry := range landed {
		for _, doc := range entry.docs {
			i.Tree.Delete(entry.key, doc)
		}
	}
}

// Remove implements domain.Index.
func (i *Index) Remove(ctx context.Context, docs ...domain.Document) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	for _, doc := range docs {
		if len(i.keyFields) != 1 {
			keys, err := i.buildCompoundKey(doc)
			if err != nil {
				return err
			}
			for _, key := range keys {
				i.Tree.Delete(key, doc)
			}
			continue
		}
		keys, hasDefinedField, err := i.removalKeys(doc)
		if err != nil {
			return err
		}
		if i.sparse && !hasDefinedField {
			continue
		}

		unique := slices.Clone(keys)
		slices.SortFunc(unique, i.compareKeys)
		unique = slices.Compact(unique)
		for _, key := range unique {
			i.Tree.Delete(key, doc)
		}
		i.Tree.Delete(keys, doc)
	}
	return nil
}

func (i *Index) removalKeys(doc domain.Document) ([]any, bool, error) {
	var keys []any
	var hasDefinedField bool

	for _, field := range i.keyFields {
		addr, err := i.fieldNavigator.GetAddress(field)
		if err != nil {
			return nil, false, err
		}
		getters, _, err := i.fieldNavigator.GetField(doc, addr...)
		if err != nil {
			return nil, false, err
		}

		for _, g := range getters {
			value, isSet := g.Get()
			if isSet {
				hasDefinedField = true
			}
			if list, ok := value.([]any); ok {
				keys = append(keys, list...)
			} else {
				keys = append(keys, value)
			}
		}
	}
	return keys, hasDefinedField, nil
}

// Update implements domain.Index.
func (i *Index) Update(ctx context.Context, oldDoc, newDoc domain.Document) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if err := i.Remove(ctx, oldDoc); err != nil {
		return err
	}
	if err := i.Insert(ctx, newDoc); err != nil {
		_ = i.Insert(context.WithoutCancel(context.Background()), oldDoc)
		return err
	}
	return nil
}

// UpdateMultipleDocs implements domain.Index.
func (i *Index) UpdateMultipleDocs(ctx context.Context, pairs ...domain.Update) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	subCtx := context.WithoutCancel(ctx)
	for _, pair := range pairs {
		_ = i.Remove(subCtx, pair.OldDoc)
	}

	var err error
	var failedAt int
insertPairs:
	for n, pair := range pairs {
		if cErr := checkContext(ctx); cErr != nil {
			err, failedAt = cErr, n
			break insertPairs
		}
		if err = i.Insert(ctx, pair.NewDoc); err != nil {
			failedAt = n
			break
		}
	}

	if err != nil {
		for n := range failedAt {
			_ = i.Remove(ctx, pairs[n].NewDoc)
		}
		for _, pair := range pairs {
			_ = i.Insert(ctx, pair.OldDoc)
		}
	}
	return err
}

// RevertUpdate implements domain.Index.
func (i *Index) RevertUpdate(ctx context.Context, oldDoc, newDoc domain.Document) error {
	return i.Update(ctx, newDoc, oldDoc)
}

// RevertMultipleUpdates implements domain.Index.
func (i *Index) RevertMultipleUpdates(ctx context.Context, pairs ...domain.Update) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	reversed := make([]domain.Update, len(pairs))
	for n, pair := range pairs {
		reversed[n] = domain.Update{OldDoc: pair.NewDoc, NewDoc: pair.OldDoc}
	}
	return i.UpdateMultipleDocs(ctx, reversed...)
}

// GetMatching implements domain.Index.
func (i *Index) GetMatching(values ...any) ([]domain.Document, error) {
	byID := uncomparablemap.New[[]domain.Document](i.hasher, i.comparer)

	for _, v := range values {
		found := i.Tree.Search(v)
		if len(found) == 0 {
			continue
		}
		id := found[0].(domain.Document).ID()
		docs := make([]domain.Document, len(found))
		for n, d := range found {
			docs[n] = d.(domain.Document)
		}
		byID.Set(id, docs)
	}

	ids := slices.Collect(byID.Keys())
	var sortErr error
	slices.SortFunc(ids, func(a, b any) int {
		if sortErr != nil {
			return 0
		}
		c, err := i.comparer.Compare(a, b)
		if err != nil {
			sortErr = err
		}
		return c
	})

	matched := []domain.Document{}
	for _, id := range ids {
		docs, _, err := byID.Get(id)
		if err != nil {
			return nil, err
		}
		matched = append(matched, docs...)
	}
	return matched, nil
}

// GetBetweenBounds implements domain.Index.
func (i *Index) GetBetweenBounds(ctx context.Context, query domain.Document) ([]domain.Document, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	bounds := maps.Collect(query.Iter())
	found := i.Tree.BetweenBounds(bounds, nil, nil)

	res := make([]domain.Document, len(found))
	for n, f := range found {
		res[n] = f.(domain.Document)
	}
	return res, nil
}

// GetAll implements domain.Index.
func (i *Index) GetAll() []domain.Document {
	var res []domain.Document
	i.Tree.ExecuteOnEveryNode(func(node *bst.BinarySearchTree) {
		for _, entry := range node.Data() {
			res = append(res, entry.(domain.Document))
		}
	})
	return res
}

// GetNumberOfKeys implements domain.Index.
func (i *Index) GetNumberOfKeys() int {
	return i.Tree.GetNumberOfKeys()
}

func (i *Index) compareKeys(a, b any) int {
	c, _ := i.comparer.Compare(a, b)
	return c
}
