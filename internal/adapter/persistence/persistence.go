package persistence

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/dolmen-go/contextio"
	"github.com/Techpire/db/domain"
	"github.com/Techpire/db/internal/adapter/comparer"
	"github.com/Techpire/db/internal/adapter/data"
	"github.com/Techpire/db/internal/adapter/decoder"
	"github.com/Techpire/db/internal/adapter/deserializer"
	"github.com/Techpire/db/internal/adapter/hasher"
	"github.com/Techpire/db/internal/adapter/serializer"
	"github.com/Techpire/db/internal/adapter/storage"
	"github.com/Techpire/db/pkg/ctxsync"
	"github.com/Techpire/db/pkg/uncomparablemap"
)

const (
	DefaultDirMode  os.FileMode = 0o755
	DefaultFileMode os.FileMode = 0o644
)

// Persistence implements domain.Persistence.
type Persistence struct {
	inMemoryOnly          bool
	filename              string
	corruptAlertThreshold float64
	fileMode              os.FileMode
	dirMode               os.FileMode
	serializer            domain.Serializer
	deserializer          domain.Deserializer
	broadcaster           *ctxsync.Cond
	storage               domain.Storage
	decoder               domain.Decoder
	comparer              domain.Comparer
	documentFactory       func(any) (domain.Document, error)
	hasher                domain.Hasher
}

// NewPersistence returns a new implementation of domain.Persistence.
func NewPersistence(options ...domain.PersistenceOption) (domain.Persistence, error) {
	comp := comparer.NewComparer()
	docFac := data.NewDocument
	dec := decoder.NewDecoder()

	opts := domain.PersistenceOptions{
		Comparer:              comp,
		CorruptAlertThreshold: 0.1,
		FileMode:              DefaultFileMode,
		DirMode:               DefaultDirMode,
		Serializer:            serializer.NewSerializer(comp, docFac),
		Deserializer:          deserializer.NewDeserializer(dec),
		Storage:               storage.NewStorage(),
		Decoder:               dec,
		DocumentFactory:       docFac,
		Hasher:                hasher.NewHasher(),
	}
	for _, option := range options {
		option(&opts)
	}

	if !opts.InMemoryOnly && opts.Filename != "" && strings.HasSuffix(opts.Filename, "~") {
		return nil, &domain.ErrDatafileName{Filename: opts.Filename}
	}

	return &Persistence{
		inMemoryOnly:          opts.InMemoryOnly || opts.Filename == "",
		filename:              opts.Filename,
		corruptAlertThreshold: opts.CorruptAlertThreshold,
		fileMode:              opts.FileMode,
		dirMode:               opts.DirMode,
		serializer:            opts.Serializer,
		deserializer:          opts.Deserializer,
		broadcaster:           ctxsync.NewCond(),
		storage:               opts.Storage,
		decoder:               opts.Decoder,
		comparer:              opts.Comparer,
		documentFactory:       opts.DocumentFactory,
		hasher:                opts.Hasher,
	}, nil
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// SetCorruptAlertThreshold implements domain.Persistence.
func (p *Persistence) SetCorruptAlertThreshold(v float64) {
	p.corruptAlertThreshold = v
}

// PersistNewState implements domain.Persistence.
func (p *Persistence) PersistNewState(ctx context.Context, newDocs ...domain.Document) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if p.inMemoryOnly {
		return nil
	}

	buf := new(bytes.Buffer)
	wr := contextio.NewWriter(ctx, buf)
	for _, doc := range newDocs {
		line, err := p.serializer.Serialize(ctx, doc)
		if err != nil {
			return err
		}
		if _, err := wr.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	if buf.Len() == 0 {
		return nil
	}

	_, err := p.storage.AppendFile(p.filename, p.fileMode, buf.Bytes())
	return err
}

// lineOutcome reports how one line of a datafile resolves: whether it was
// corrupt, and whether it counts toward the corruption-rate denominator.
// Deserialization failures count toward the denominator immediately;
// document-factory, comparer and DTO-decode failures on an otherwise
// well-formed line do not, mirroring the original replay accounting.
type lineOutcome struct {
	corrupt      bool
	countsToward bool
}

func (p *Persistence) processLine(ctx context.Context, line []byte, byID *uncomparablemap.UncomparableMap[domain.Document], indexes map[string]domain.IndexDTO) lineOutcome {
	raw := make(map[string]any)
	if err := p.deserializer.Deserialize(ctx, line, &raw); err != nil {
		return lineOutcome{corrupt: true, countsToward: true}
	}

	doc, err := p.documentFactory(raw)
	if err != nil {
		return lineOutcome{corrupt: true}
	}

	if doc.Has("_id") {
		c, err := p.comparer.Compare(doc.Get("$$deleted"), true)
		if err != nil {
			return lineOutcome{corrupt: true}
		}
		if c == 0 {
			byID.Delete(doc.ID())
		} else {
			byID.Set(doc.ID(), doc)
		}
		return lineOutcome{countsToward: true}
	}

	if marker := doc.D("$$indexCreated"); marker != nil && marker.Get("fieldName") != nil {
		dto := new(domain.IndexDTO)
		if err := p.decoder.Decode(doc, dto); err != nil {
			return lineOutcome{corrupt: true}
		}
		indexes[dto.IndexCreated.FieldName] = *dto
		return lineOutcome{countsToward: true}
	}

	if removed, ok := doc.Get("$$indexRemoved").(string); ok {
		delete(indexes, removed)
	}
	return lineOutcome{countsToward: true}
}

// TreatRawStream implements domain.Persistence.
func (p *Persistence) TreatRawStream(ctx context.Context, rawStream io.Reader) ([]domain.Document, map[string]domain.IndexDTO, error) {
	if err := checkContext(ctx); err != nil {
		return nil, nil, err
	}

	byID := uncomparablemap.New[domain.Document](p.hasher, p.comparer)
	indexes := make(map[string]domain.IndexDTO)

	var corruptItems, totalItems int
	scanner := bufio.NewScanner(rawStream)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		outcome := p.processLine(ctx, line, byID, indexes)
		if outcome.corrupt {
			corruptItems++
		}
		if outcome.countsToward {
			totalItems++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	if totalItems > 0 {
		rate := float64(corruptItems) / float64(totalItems)
		if rate > p.corruptAlertThreshold {
			return nil, nil, domain.ErrCorruptFiles{
				CorruptionRate:        rate,
				CorruptItems:          corruptItems,
				DataLength:            totalItems,
				CorruptAlertThreshold: p.corruptAlertThreshold,
			}
		}
	}

	return slices.Collect(byID.Values()), indexes, nil
}

// LoadDatabase implements domain.Persistence.
func (p *Persistence) LoadDatabase(ctx context.Context) ([]domain.Document, map[string]domain.IndexDTO, error) {
	if err := checkContext(ctx); err != nil {
		return nil, nil, err
	}
	// NOTE: does not reset the datastore's indexes here; that's the
	// datastore's responsibility.

	if p.inMemoryOnly {
		return nil, nil, nil
	}

	if err := p.EnsureParentDirectoryExists(ctx, p.filename, p.dirMode); err != nil {
		return nil, nil, err
	}
	if err := p.storage.EnsureDatafileIntegrity(p.filename, p.fileMode); err != nil {
		return nil, nil, err
	}

	fileStream, err := p.storage.ReadFileStream(p.filename, p.fileMode)
	if err != nil {
		return nil, nil, err
	}
	defer fileStream.Close()

	docs, indexes, err := p.TreatRawStream(ctx, fileStream)
	if err != nil {
		return nil, nil, err
	}

	// NOTE: deliberately does not mutate a datastore instance here — that
	// would couple this package to the datastore package. The caller is
	// expected to rebuild its indexes from the returned DTOs and then call
	// PersistCachedDatabase itself, or accept this call doing it below.
	if err := p.PersistCachedDatabase(ctx, docs, indexes); err != nil {
		return nil, nil, err
	}

	return docs, indexes, nil
}

// DropDatabase implements domain.Persistence.
func (p *Persistence) DropDatabase(ctx context.Context) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	if p.inMemoryOnly {
		return nil
	}
	exists, err := p.storage.Exists(p.filename)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return p.storage.Remove(p.filename)
}

// PersistCachedDatabase implements domain.Persistence.
func (p *Persistence) PersistCachedDatabase(ctx context.Context, allData []domain.Document, indexes map[string]domain.IndexDTO) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if p.inMemoryOnly {
		return nil
	}

	lines, err := p.serializeCachedState(ctx, allData, indexes)
	if err != nil {
		return err
	}

	if err := p.storage.CrashSafeWriteFileLines(p.filename, lines, p.dirMode, p.fileMode); err != nil {
		return err
	}

	p.broadcaster.Broadcast()
	return nil
}

func (p *Persistence) serializeCachedState(ctx context.Context, allData []domain.Document, indexes map[string]domain.IndexDTO) ([][]byte, error) {
	var lines [][]byte

	for _, doc := range allData {
		line, err := p.serializer.Serialize(ctx, doc)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	for fieldName, idx := range indexes {
		if fieldName == "_id" {
			continue
		}
		line, err := p.serializer.Serialize(ctx, idx)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	return lines, nil
}

// EnsureParentDirectoryExists creates the directory holding dir's datafile.
func (p *Persistence) EnsureParentDirectoryExists(ctx context.Context, dir string, mode os.FileMode) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	return p.storage.EnsureParentDirectoryExists(dir, mode)
}

// WaitCompaction implements domain.Persistence.
func (p *Persistence) WaitCompaction(ctx context.Context) error {
	return p.broadcaster.WaitWithContext(ctx)
}
