package idgenerator

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"

	"github.com/Techpire/db/domain"
)

// stripChars drops the base64 punctuation characters that would make an ID
// awkward to use as a bare token (URLs, shell args, filenames).
const stripChars = "+/"

// IDGenerator implements [domain.IDGenerator] by base64-encoding random
// bytes, which keeps document IDs both unpredictable and URL-safe-ish
// without pulling in a dedicated UUID library.
type IDGenerator struct {
	source io.Reader
}

// NewIDGenerator implements [domain.IDGenerator].
func NewIDGenerator(opts ...domain.IDGeneratorOption) domain.IDGenerator {
	options := domain.IDGeneratorOptions{Reader: rand.Reader}
	for _, opt := range opts {
		opt(&options)
	}
	return &IDGenerator{source: options.Reader}
}

// GenerateID implements [domain.IDGenerator]. It over-reads randomness
// (twice the requested length, or at least 8 bytes) because stripping
// punctuation from the base64 alphabet shrinks the usable output, and the
// result must still have at least length characters left after stripping.
func (g *IDGenerator) GenerateID(length int) (string, error) {
	raw := make([]byte, max(8, length*2))
	if _, err := g.source.Read(raw); err != nil {
		return "", err
	}

	encoded := base64.StdEncoding.EncodeToString(raw)
	trimmed := strings.Map(func(r rune) rune {
		if strings.ContainsRune(stripChars, r) {
			return -1
		}
		return r
	}, encoded)
	return trimmed[:length], nil
}
