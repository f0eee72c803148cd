// Package datastore contains the default [domain.GEDB] implementation.
package datastore

import (
	"context"
	"errors"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/Techpire/db/domain"
	"github.com/Techpire/db/internal/adapter/comparer"
	"github.com/Techpire/db/internal/adapter/cursor"
	"github.com/Techpire/db/internal/adapter/data"
	"github.com/Techpire/db/internal/adapter/decoder"
	"github.com/Techpire/db/internal/adapter/deserializer"
	"github.com/Techpire/db/internal/adapter/fieldnavigator"
	"github.com/Techpire/db/internal/adapter/hasher"
	"github.com/Techpire/db/internal/adapter/idgenerator"
	"github.com/Techpire/db/internal/adapter/index"
	"github.com/Techpire/db/internal/adapter/matcher"
	"github.com/Techpire/db/internal/adapter/modifier"
	"github.com/Techpire/db/internal/adapter/persistence"
	"github.com/Techpire/db/internal/adapter/querier"
	"github.com/Techpire/db/internal/adapter/serializer"
	"github.com/Techpire/db/internal/adapter/storage"
	"github.com/Techpire/db/internal/adapter/timegetter"
	"github.com/Techpire/db/internal/executor"
)

const (
	DefaultDirMode  os.FileMode = 0o755
	DefaultFileMode os.FileMode = 0o644

	idFieldName = "_id"
)

// Datastore implements domain.GEDB as a single in-memory collection backed
// by an append-only journal. Every exported method except WaitCompaction
// takes the store's executor lock for its whole duration, so the collection's indexes and
// the journal never observe a half-applied operation.
type Datastore struct {
	filename              string
	timestampData         bool
	inMemoryOnly          bool
	corruptAlertThreshold float64
	comparer              domain.Comparer
	fileMode              os.FileMode
	dirMode               os.FileMode
	executor              *executor.Executor
	persistence           domain.Persistence
	indexes               map[string]domain.Index
	ttlIndexes            map[string]time.Duration
	indexFactory          func(...domain.IndexOption) (domain.Index, error)
	documentFactory       func(any) (domain.Document, error)
	cursorFactory         func(context.Context, []domain.Document, ...domain.CursorOption) (domain.Cursor, error)
	matcher               domain.Matcher
	decoder               domain.Decoder
	modifier              domain.Modifier
	timeGetter            domain.TimeGetter
	hasher                domain.Hasher
	fieldNavigator        domain.FieldNavigator
	querier               domain.Querier
	idGenerator           domain.IDGenerator
}

// NewDatastore returns a new implementation of Datastore.
func NewDatastore(options ...domain.DatastoreOption) (domain.GEDB, error) {
	comp := comparer.NewComparer()
	docFac := data.NewDocument
	dec := decoder.NewDecoder()
	fn := fieldnavigator.NewFieldNavigator(docFac)
	matchr := matcher.NewMatcher(
		domain.WithMatcherDocumentFactory(docFac),
		domain.WithMatcherComparer(comp),
		domain.WithMatcherFieldNavigator(fn),
	)
	opts := domain.DatastoreOptions{
		Serializer:            serializer.NewSerializer(comp, docFac),
		Deserializer:          deserializer.NewDeserializer(dec),
		CorruptAlertThreshold: 0.1,
		Comparer:              comp,
		FileMode:              DefaultFileMode,
		DirMode:               DefaultDirMode,
		Storage:               storage.NewStorage(),
		IndexFactory:          index.NewIndex,
		DocumentFactory:       docFac,
		Decoder:               dec,
		Matcher:               matchr,
		CursorFactory:         cursor.NewCursor,
		Modifier:              modifier.NewModifier(docFac, comp, fn, matchr),
		TimeGetter:            timegetter.NewTimeGetter(),
		Hasher:                hasher.NewHasher(),
		FieldNavigator:        fn,
		Querier:               querier.NewQuerier(),
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Persistence == nil {
		var err error
		opts.Persistence, err = persistence.NewPersistence(
			domain.WithPersistenceFilename(opts.Filename),
			domain.WithPersistenceInMemoryOnly(opts.InMemoryOnly || opts.Filename == ""),
			domain.WithPersistenceCorruptAlertThreshold(opts.CorruptAlertThreshold),
			domain.WithPersistenceFileMode(opts.FileMode),
			domain.WithPersistenceDirMode(opts.DirMode),
			domain.WithPersistenceSerializer(opts.Serializer),
			domain.WithPersistenceDeserializer(opts.Deserializer),
			domain.WithPersistenceStorage(opts.Storage),
			domain.WithPersistenceDecoder(opts.Decoder),
			domain.WithPersistenceHasher(opts.Hasher),
			domain.WithPersistenceFieldNavigator(opts.FieldNavigator),
		)
		if err != nil {
			return nil, err
		}
	}

	idIndex, err := opts.IndexFactory(
		domain.WithIndexFieldName(idFieldName),
		domain.WithIndexUnique(true),
	)
	if err != nil {
		return nil, err
	}

	if opts.IDGenerator == nil {
		var idGenOpts []domain.IDGeneratorOption
		if opts.RandomReader != nil {
			idGenOpts = append(idGenOpts, domain.WithIDGeneratorReader(opts.RandomReader))
		}
		opts.IDGenerator = idgenerator.NewIDGenerator(idGenOpts...)
	}

	return &Datastore{
		filename:              opts.Filename,
		timestampData:         opts.TimestampData,
		inMemoryOnly:          opts.InMemoryOnly || opts.Filename == "",
		indexes:               map[string]domain.Index{idFieldName: idIndex},
		ttlIndexes:            make(map[string]time.Duration),
		corruptAlertThreshold: opts.CorruptAlertThreshold,
		fileMode:              opts.FileMode,
		dirMode:               opts.DirMode,
		executor:              executor.New(),
		persistence:           opts.Persistence,
		indexFactory:          opts.IndexFactory,
		documentFactory:       opts.DocumentFactory,
		cursorFactory:         opts.CursorFactory,
		decoder:               opts.Decoder,
		comparer:              opts.Comparer,
		modifier:              opts.Modifier,
		timeGetter:            opts.TimeGetter,
		hasher:                opts.Hasher,
		fieldNavigator:        opts.FieldNavigator,
		matcher:               opts.Matcher,
		querier:               opts.Querier,
		idGenerator:           opts.IDGenerator,
	}, nil
}

// rollbackUpTo undoes items[:failingAt] via revert, in order, stopping (and
// folding the revert error into err) at the first revert failure rather
// than attempting the rest — a partial rollback is reported, not hidden.
func rollbackUpTo[T any](err error, items []T, failingAt int, revert func(T) error) error {
	for i := range failingAt {
		if revertErr := revert(items[i]); revertErr != nil {
			return errors.Join(err, revertErr)
		}
	}
	return err
}

// acrossIndexes applies apply to every index in d.indexes and, if any call
// fails, reverts the indexes that had already succeeded by calling revert
// on each of them in application order.
func (d *Datastore) acrossIndexes(apply, revert func(domain.Index) error) error {
	keys := slices.Collect(maps.Keys(d.indexes))

	var failingAt int
	var err error
	for i, key := range keys {
		if err = apply(d.indexes[key]); err != nil {
			failingAt = i
			break
		}
	}
	if err == nil {
		return nil
	}
	return rollbackUpTo(err, keys, failingAt, func(key string) error { return revert(d.indexes[key]) })
}

func (d *Datastore) addToIndexes(ctx context.Context, doc domain.Document) error {
	return d.acrossIndexes(
		func(idx domain.Index) error { return idx.Insert(ctx, doc) },
		func(idx domain.Index) error { return idx.Remove(ctx, doc) },
	)
}

func (d *Datastore) removeFromIndexes(ctx context.Context, doc domain.Document) error {
	for _, idx := range d.indexes {
		if err := idx.Remove(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (d *Datastore) updateIndexes(ctx context.Context, mods []domain.Update) error {
	return d.acrossIndexes(
		func(idx domain.Index) error { return idx.UpdateMultipleDocs(ctx, mods...) },
		func(idx domain.Index) error { return idx.RevertMultipleUpdates(ctx, mods...) },
	)
}

func (d *Datastore) resetIndexes(ctx context.Context, docs ...domain.Document) error {
	for _, idx := range d.indexes {
		if err := idx.Reset(ctx, docs...); err != nil {
			return err
		}
	}
	return nil
}

// checkDocuments rejects field names the journal format reserves for its
// own control documents ("$"-prefixed, except the handful it emits itself)
// or that would defeat dotted-path addressing (containing a ".").
func (d *Datastore) checkDocuments(docs ...domain.Document) error {
	for _, doc := range docs {
		for k, v := range doc.Iter() {
			if strings.HasPrefix(k, "$") {
				if err := checkControlField(k, v); err != nil {
					return err
				}
				continue
			}
			if strings.ContainsRune(k, '.') {
				return &domain.ErrFieldName{Name: k, Reason: "cannot contain a '.'"}
			}
			if subDoc, ok := v.(domain.Document); ok {
				if err := d.checkDocuments(subDoc); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkControlField(name string, value any) error {
	switch name {
	case "$$date":
		if _, ok := value.(time.Time); ok {
			return nil
		}
	case "$$deleted":
		if deleted, ok := value.(bool); ok && deleted {
			return nil
		}
	case "$$indexCreated", "$$indexRemoved":
		return nil
	}
	return &domain.ErrFieldName{Name: name, Reason: "cannot begin with the $ character"}
}

func (d *Datastore) cloneDocs(docs ...domain.Document) ([]domain.Document, error) {
	res := make([]domain.Document, len(docs))
	for n, doc := range docs {
		cloned, err := d.deepCopy(doc)
		if err != nil {
			return nil, err
		}
		res[n] = cloned.(domain.Document)
	}
	return res, nil
}

// deepCopy walks a document or array value and rebuilds it so the caller
// can't observe further mutation of the cached copy; scalars are returned
// unchanged since Go values of those kinds are already immutable.
func (d *Datastore) deepCopy(v any) (any, error) {
	switch t := v.(type) {
	case domain.Document:
		cloned, err := d.documentFactory(nil)
		if err != nil {
			return nil, err
		}
		for k, val := range t.Iter() {
			copied, err := d.deepCopy(val)
			if err != nil {
				return nil, err
			}
			cloned.Set(k, copied)
		}
		return cloned, nil
	case []any:
		cloned := make([]any, len(t))
		for n, val := range t {
			copied, err := d.deepCopy(val)
			if err != nil {
				return nil, err
			}
			cloned[n] = copied
		}
		return cloned, nil
	default:
		return t, nil
	}
}

// CompactDatafile implements domain.GEDB.
func (d *Datastore) CompactDatafile(ctx context.Context) error {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return err
	}
	defer d.executor.Unlock()

	return d.persistence.PersistCachedDatabase(ctx, d.getAllData(), d.getIndexDTOs())
}

// Count implements domain.GEDB.
func (d *Datastore) Count(ctx context.Context, query any) (int64, error) {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return 0, err
	}
	defer d.executor.Unlock()

	cur, err := d.find(ctx, query, false)
	if err != nil {
		return 0, err
	}
	var count int64
	for cur.Next() {
		count++
	}
	return count, cur.Err()
}

func (d *Datastore) createNewID() (string, error) {
	for {
		id, err := d.idGenerator.GenerateID(16)
		if err != nil {
			return "", err
		}
		matches, err := d.indexes[idFieldName].GetMatching(id)
		if err != nil {
			return "", err
		}
		if len(matches) == 0 {
			return id, nil
		}
	}
}

// DropDatabase implements domain.GEDB.
func (d *Datastore) DropDatabase(ctx context.Context) error {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return err
	}
	defer d.executor.Unlock()

	idIndex, err := d.indexFactory(domain.WithIndexFieldName(idFieldName))
	if err != nil {
		return err
	}
	d.indexes = map[string]domain.Index{idFieldName: idIndex}
	d.ttlIndexes = make(map[string]time.Duration)
	return d.persistence.DropDatabase(context.WithoutCancel(ctx))
}

// normalizeIndexFieldNames sorts and comma-joins the field names an index
// spans, the canonical key under which d.indexes stores it; EnsureIndex and
// RemoveIndex must agree on this key or neither can find the other's entry.
func normalizeIndexFieldNames(fieldNames []string) (string, error) {
	sorted := slices.Clone(fieldNames)
	slices.Sort(sorted)
	if slices.ContainsFunc(sorted, func(s string) bool { return strings.ContainsRune(s, ',') }) {
		return "", errors.New("cannot use comma in index fieldName")
	}
	return strings.Join(sorted, ","), nil
}

// EnsureIndex implements domain.GEDB.
func (d *Datastore) EnsureIndex(ctx context.Context, options ...domain.EnsureIndexOption) error {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return err
	}
	defer d.executor.Unlock()

	var opts domain.EnsureIndexOptions
	for _, option := range options {
		option(&opts)
	}
	if len(opts.FieldNames) == 0 || slices.Contains(opts.FieldNames, "") {
		return &domain.ErrNoFieldName{}
	}

	fields, err := normalizeIndexFieldNames(opts.FieldNames)
	if err != nil {
		return err
	}
	if _, exists := d.indexes[fields]; exists {
		return nil
	}

	d.indexes[fields], err = d.indexFactory(
		domain.WithIndexFieldName(fields),
		domain.WithIndexUnique(opts.Unique),
		domain.WithIndexSparse(opts.Sparse),
		domain.WithIndexExpireAfter(opts.ExpireAfter),
	)
	if err != nil {
		return err
	}

	if opts.ExpireAfter > 0 {
		d.ttlIndexes[fields] = opts.ExpireAfter
	}

	if err := d.indexes[fields].Insert(ctx, d.getAllData()...); err != nil {
		delete(d.indexes, fields)
		return err
	}

	idxDoc, err := d.documentFactory(domain.IndexDTO{
		IndexCreated: domain.IndexCreated{
			FieldName: fields,
			Unique:    opts.Unique,
			Sparse:    opts.Sparse,
		},
	})
	if err != nil {
		return err
	}
	return d.persistence.PersistNewState(ctx, idxDoc)
}

// RemoveIndex implements domain.GEDB.
func (d *Datastore) RemoveIndex(ctx context.Context, fieldNames ...string) error {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return err
	}
	defer d.executor.Unlock()

	fieldName, err := normalizeIndexFieldNames(fieldNames)
	if err != nil {
		return err
	}
	delete(d.indexes, fieldName)

	idxDoc, err := d.documentFactory(domain.IndexDTO{IndexRemoved: fieldName})
	if err != nil {
		return err
	}
	return d.persistence.PersistNewState(ctx, idxDoc)
}

// Find implements domain.GEDB.
func (d *Datastore) Find(ctx context.Context, query any, options ...domain.FindOption) (domain.Cursor, error) {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return nil, err
	}
	defer d.executor.Unlock()
	return d.find(ctx, query, false, options...)
}

func (d *Datastore) find(ctx context.Context, query any, dontExpireStaleDocs bool, options ...domain.FindOption) (domain.Cursor, error) {
	queryDoc, err := d.documentFactory(query)
	if err != nil {
		return nil, err
	}

	var opt domain.FindOptions
	for _, option := range options {
		option(&opt)
	}

	proj := make(map[string]uint8)
	if err := d.decoder.Decode(opt.Projection, &proj); err != nil {
		return nil, err
	}

	candidates, err := d.getCandidates(ctx, queryDoc, dontExpireStaleDocs)
	if err != nil {
		return nil, err
	}

	matched, err := d.querier.Query(candidates,
		domain.WithQuery(queryDoc),
		domain.WithQueryLimit(opt.Limit),
		domain.WithQuerySkip(opt.Skip),
		domain.WithQuerySort(opt.Sort),
		domain.WithQueryProjection(proj),
	)
	if err != nil {
		return nil, err
	}

	matched, err = d.cloneDocs(matched...)
	if err != nil {
		return nil, err
	}
	return d.cursorFactory(ctx, matched)
}

// FindOne implements domain.GEDB.
func (d *Datastore) FindOne(ctx context.Context, query any, target any, options ...domain.FindOption) error {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return err
	}
	defer d.executor.Unlock()

	cur, err := d.find(ctx, query, false, append(options, domain.WithFindLimit(1))...)
	if err != nil {
		return err
	}
	defer cur.Close()
	if !cur.Next() {
		return &domain.ErrNotFound{}
	}
	return cur.Scan(ctx, target)
}

// GetAllData implements domain.GEDB.
func (d *Datastore) GetAllData(ctx context.Context) (domain.Cursor, error) {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return nil, err
	}
	defer d.executor.Unlock()
	return d.cursorFactory(ctx, d.getAllData())
}

func (d *Datastore) getAllData() []domain.Document {
	return d.indexes[idFieldName].GetAll()
}

func (d *Datastore) getIndexDTOs() map[string]domain.IndexDTO {
	dtos := make(map[string]domain.IndexDTO, len(d.indexes))
	for name, idx := range d.indexes {
		dtos[name] = domain.IndexDTO{
			IndexCreated: domain.IndexCreated{
				FieldName: idx.FieldName(),
				Unique:    idx.Unique(),
				Sparse:    idx.Sparse(),
			},
		}
	}
	return dtos
}

// getCandidates narrows the collection down to the documents a query could
// possibly match, via getRawCandidates, then strips out anything that has
// aged past a TTL index's expiry and removes it before returning, unless the
// caller asked to see stale documents as-is (used by Remove itself, so
// expiry can't recurse into another removal).
func (d *Datastore) getCandidates(ctx context.Context, query domain.Document, dontExpireStaleDocs bool) ([]domain.Document, error) {
	docs, err := d.getRawCandidates(ctx, query)
	if err != nil {
		return nil, err
	}
	if dontExpireStaleDocs {
		return docs, nil
	}

	fresh, expired := d.partitionByTTL(docs)
	if len(expired) == 0 {
		return fresh, nil
	}

	expiryCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	for _, id := range expired {
		rm, err := d.documentFactory(map[string]any{idFieldName: id})
		if err != nil {
			return nil, err
		}
		if _, err := d.remove(expiryCtx, rm, domain.WithRemoveMulti(false)); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

func (d *Datastore) partitionByTTL(docs []domain.Document) (fresh []domain.Document, expiredIDs []any) {
	now := d.timeGetter.GetTime()
	fresh = make([]domain.Document, 0, len(docs))

docLoop:
	for _, doc := range docs {
		for field, ttl := range d.ttlIndexes {
			stamp, ok := doc.Get(field).(time.Time)
			if !ok {
				continue
			}
			if now.After(stamp.Add(ttl)) {
				expiredIDs = append(expiredIDs, doc.ID())
				continue docLoop
			}
		}
		fresh = append(fresh, doc)
	}
	return fresh, expiredIDs
}

// candidateSelector narrows a query to the documents one indexing strategy
// can vouch for; ok reports whether that strategy applied at all.
type candidateSelector func(ctx context.Context, query domain.Document) (docs []domain.Document, ok bool, err error)

func (d *Datastore) getRawCandidates(ctx context.Context, query domain.Document) ([]domain.Document, error) {
	if query.Len() == 0 {
		return d.getAllData(), nil
	}

	strategies := []candidateSelector{
		d.getSimpleCandidates,   // query names a field with its own index
		d.getComposedCandidates, // query covers every field of a compound index
		d.getEnumCandidates,     // query uses $in against an indexed field
		d.getCompCandidates,     // query uses a range operator against an indexed field
	}
	for _, pick := range strategies {
		docs, ok, err := pick(ctx, query)
		if err != nil || ok {
			return docs, err
		}
	}
	return d.getAllData(), nil
}

func (d *Datastore) isUsableIndexField(indexNames []string, field string, value any) bool {
	if !slices.Contains(indexNames, field) {
		return false
	}
	switch value.(type) {
	case domain.Document, []any:
		return false
	default:
		return true
	}
}

func (d *Datastore) getSimpleCandidates(_ context.Context, query domain.Document) ([]domain.Document, bool, error) {
	indexNames := slices.Collect(maps.Keys(d.indexes))
	for field, value := range query.Iter() {
		if !d.isUsableIndexField(indexNames, field, value) {
			continue
		}
		matches, err := d.indexes[field].GetMatching(value)
		return matches, true, err
	}
	return nil, false, nil
}

func (d *Datastore) getComposedCandidates(_ context.Context, query domain.Document) ([]domain.Document, bool, error) {
	for indexName, idx := range d.indexes {
		parts, err := d.fieldNavigator.SplitFields(indexName)
		if err != nil {
			return nil, false, err
		}
		if len(parts) == 0 || !d.queryCoversCompoundIndex(query, parts) {
			continue
		}
		matches, err := idx.GetMatching(query)
		return matches, true, err
	}
	return nil, false, nil
}

// queryCoversCompoundIndex reports whether the query names exactly the
// compound index's fields, each holding a plain scalar, not a subquery.
func (d *Datastore) queryCoversCompoundIndex(query domain.Document, fields []string) bool {
	if query.Len() != len(fields) {
		return false
	}
	n := 0
	for key := range query.Iter() {
		n++
		if !slices.Contains(fields, key) {
			return false
		}
		if query.D(key) != nil {
			return false
		}
		if n == query.Len() {
			break
		}
	}
	return true
}

func (d *Datastore) getEnumCandidates(_ context.Context, query domain.Document) ([]domain.Document, bool, error) {
	for field := range query.Iter() {
		clause := query.D(field)
		if clause == nil || !clause.Has("$in") {
			continue
		}
		idx, ok := d.indexes[field]
		if !ok {
			continue
		}

		wanted := clause.Get("$in")
		if list, ok := wanted.([]any); ok {
			matches, err := idx.GetMatching(list...)
			return matches, true, err
		}
		matches, err := idx.GetMatching(wanted)
		return matches, true, err
	}
	return nil, false, nil
}

var rangeOperators = [...]string{"$lt", "$lte", "$gt", "$gte"}

func (d *Datastore) getCompCandidates(ctx context.Context, query domain.Document) ([]domain.Document, bool, error) {
	for field, value := range query.Iter() {
		if value == nil {
			continue
		}
		clause := query.D(field)
		if clause == nil {
			continue
		}
		idx, ok := d.indexes[field]
		if !ok {
			continue
		}
		for _, op := range rangeOperators {
			if clause.Has(op) {
				matches, err := idx.GetBetweenBounds(ctx, clause)
				return matches, true, err
			}
		}
	}
	return nil, false, nil
}

// Insert implements domain.GEDB.
func (d *Datastore) Insert(ctx context.Context, newDocs ...any) (domain.Cursor, error) {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return nil, err
	}
	defer d.executor.Unlock()

	res, err := d.insert(ctx, newDocs...)
	if err != nil {
		return nil, err
	}
	return d.cursorFactory(ctx, res)
}

func (d *Datastore) insert(ctx context.Context, newDocs ...any) ([]domain.Document, error) {
	if len(newDocs) == 0 {
		return nil, nil
	}

	prepared, err := d.prepareDocumentsForInsertion(newDocs)
	if err != nil {
		return nil, err
	}

	// Once a document is staged for the cache, a context cancellation must
	// not leave the cache and the journal out of sync with each other.
	ctx = context.WithoutCancel(ctx)
	if err := d.insertInCache(ctx, prepared); err != nil {
		return nil, err
	}
	if err := d.persistence.PersistNewState(ctx, prepared...); err != nil {
		return nil, err
	}
	return d.cloneDocs(prepared...)
}

func (d *Datastore) prepareDocumentsForInsertion(newDocs []any) ([]domain.Document, error) {
	prepared := make([]domain.Document, len(newDocs))
	for n, newDoc := range newDocs {
		doc, err := d.prepareOneDocument(newDoc)
		if err != nil {
			return nil, err
		}
		prepared[n] = doc
	}
	return prepared, nil
}

func (d *Datastore) prepareOneDocument(newDoc any) (domain.Document, error) {
	doc, err := d.documentFactory(newDoc)
	if err != nil {
		return nil, err
	}
	if !doc.Has(idFieldName) {
		id, err := d.createNewID()
		if err != nil {
			return nil, err
		}
		doc.Set(idFieldName, id)
	}
	if d.timestampData {
		now := d.timeGetter.GetTime()
		if !doc.Has("createdAt") {
			doc.Set("createdAt", now)
		}
		if !doc.Has("updatedAt") {
			doc.Set("updatedAt", now)
		}
	}
	if err := d.checkDocuments(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *Datastore) insertInCache(ctx context.Context, prepared []domain.Document) error {
	var failingAt int
	var err error
	for i, doc := range prepared {
		if err = d.addToIndexes(ctx, doc); err != nil {
			failingAt = i
			break
		}
	}
	if err == nil {
		return nil
	}
	return rollbackUpTo(err, prepared, failingAt, func(doc domain.Document) error {
		return d.removeFromIndexes(ctx, doc)
	})
}

// LoadDatabase implements domain.GEDB.
func (d *Datastore) LoadDatabase(ctx context.Context) error {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return err
	}
	defer d.executor.Unlock()

	if err := d.resetIndexes(ctx); err != nil {
		return err
	}
	if d.inMemoryOnly {
		return nil
	}

	docs, indexDTOs, err := d.persistence.LoadDatabase(ctx)
	if err != nil {
		return err
	}
	for name, dto := range indexDTOs {
		d.indexes[name], err = d.indexFactory(
			domain.WithIndexFieldName(dto.IndexCreated.FieldName),
			domain.WithIndexUnique(dto.IndexCreated.Unique),
			domain.WithIndexSparse(dto.IndexCreated.Sparse),
			domain.WithIndexExpireAfter(time.Duration(dto.IndexCreated.ExpireAfter*float64(time.Second))),
			domain.WithIndexDocumentFactory(d.documentFactory),
			domain.WithIndexComparer(d.comparer),
			domain.WithIndexHasher(d.hasher),
		)
		if err != nil {
			return err
		}
	}

	if err := d.resetIndexes(ctx, docs...); err != nil {
		if resetErr := d.resetIndexes(ctx); resetErr != nil {
			return errors.Join(err, resetErr)
		}
		return err
	}

	return d.persistence.PersistCachedDatabase(ctx, docs, d.getIndexDTOs())
}

// Remove implements domain.GEDB.
func (d *Datastore) Remove(ctx context.Context, query any, options ...domain.RemoveOption) (int64, error) {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return 0, err
	}
	defer d.executor.Unlock()

	queryDoc, err := d.documentFactory(query)
	if err != nil {
		return 0, err
	}
	return d.remove(ctx, queryDoc, options...)
}

func (d *Datastore) remove(ctx context.Context, query domain.Document, options ...domain.RemoveOption) (int64, error) {
	var opts domain.RemoveOptions
	for _, option := range options {
		option(&opts)
	}

	var limit int64
	if !opts.Multi {
		limit = 1
	}

	matched, err := d.matchedForRemoval(ctx, query, limit)
	if err != nil {
		return 0, err
	}

	tombstones := make([]domain.Document, len(matched))
	for n, doc := range matched {
		if err := d.removeFromIndexes(ctx, doc); err != nil {
			return 0, err
		}
		tombstones[n] = data.M{idFieldName: doc.ID(), "$$deleted": true}
	}

	if err := d.persistence.PersistNewState(ctx, tombstones...); err != nil {
		return 0, err
	}
	return int64(len(tombstones)), nil
}

func (d *Datastore) matchedForRemoval(ctx context.Context, query domain.Document, limit int64) ([]domain.Document, error) {
	cur, err := d.find(ctx, query, true, domain.WithFindLimit(limit))
	if err != nil {
		return nil, err
	}

	var matched []data.M
	for cur.Next() {
		var v data.M
		if err := cur.Scan(ctx, &v); err != nil {
			return nil, err
		}
		matched = append(matched, v)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	docs := make([]domain.Document, len(matched))
	for n, doc := range matched {
		docs[n] = doc
	}
	return docs, nil
}

// Update implements domain.GEDB.
func (d *Datastore) Update(ctx context.Context, query any, updateQuery any, options ...domain.UpdateOption) (domain.Cursor, error) {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return nil, err
	}
	defer d.executor.Unlock()

	res, err := d.update(ctx, query, updateQuery, options...)
	if err != nil {
		return nil, err
	}
	return d.cursorFactory(ctx, res)
}

func (d *Datastore) update(ctx context.Context, query any, updateQuery any, options ...domain.UpdateOption) ([]domain.Document, error) {
	modDoc, err := d.documentFactory(updateQuery)
	if err != nil {
		return nil, err
	}

	var opts domain.UpdateOptions
	for _, option := range options {
		option(&opts)
	}
	var limit int64
	if !opts.Multi {
		limit = 1
	}

	if opts.Upsert {
		inserted, didUpsert, err := d.upsert(ctx, query, modDoc, limit)
		if err != nil || didUpsert {
			return inserted, err
		}
	}

	updated, mods, err := d.findAndModify(ctx, query, modDoc, limit)
	if err != nil {
		return nil, err
	}

	indexCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	if err := d.updateIndexes(indexCtx, mods); err != nil {
		return nil, err
	}
	if err := d.persistence.PersistNewState(indexCtx, updated...); err != nil {
		return nil, err
	}
	return d.cloneDocs(updated...)
}

// upsert inserts mod (or the result of applying it to an empty document) as
// a brand-new document when query has no match, and otherwise defers to the
// caller's normal find-and-modify path. didUpsert tells the caller which
// case happened, since both return a nil error on success.
func (d *Datastore) upsert(ctx context.Context, query any, mod domain.Document, limit int64) (inserted []domain.Document, didUpsert bool, err error) {
	cur, err := d.find(ctx, query, false, domain.WithFindLimit(limit))
	if err != nil {
		return nil, false, err
	}
	var matches int64
	for cur.Next() {
		matches++
	}
	if err := cur.Err(); err != nil {
		return nil, false, err
	}
	if matches > 0 {
		return nil, false, nil
	}

	qryDoc, err := d.documentFactory(query)
	if err != nil {
		return nil, false, err
	}
	if err := d.checkDocuments(mod); err != nil {
		if mod, err = d.modifier.Modify(qryDoc, mod); err != nil {
			return nil, false, err
		}
	}

	inserted, err = d.insert(ctx, mod)
	return inserted, true, err
}

func (d *Datastore) findAndModify(ctx context.Context, query any, modDoc domain.Document, limit int64) ([]domain.Document, []domain.Update, error) {
	cur, err := d.find(ctx, query, false, domain.WithFindLimit(limit))
	if err != nil {
		return nil, nil, err
	}

	var mods []domain.Update
	var updated []domain.Document
	for cur.Next() {
		oldDoc, err := data.NewDocument(nil)
		if err != nil {
			return nil, nil, err
		}
		if err := cur.Scan(ctx, &oldDoc); err != nil {
			return nil, nil, err
		}

		newDoc, err := d.modifier.Modify(oldDoc, modDoc)
		if err != nil {
			return nil, nil, err
		}
		if d.timestampData {
			newDoc.Set("createdAt", oldDoc.Get("createdAt"))
			newDoc.Set("updatedAt", d.timeGetter.GetTime())
		}

		mods = append(mods, domain.Update{OldDoc: oldDoc, NewDoc: newDoc})
		updated = append(updated, newDoc)
	}
	if err := cur.Err(); err != nil {
		return nil, nil, err
	}
	return updated, mods, nil
}

// WaitCompaction implements domain.GEDB.
func (d *Datastore) WaitCompaction(ctx context.Context) error {
	return d.persistence.WaitCompaction(ctx)
}
