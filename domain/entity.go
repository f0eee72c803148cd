// Package domain declares the storage engine's contracts: the interfaces
// every adapter (datastore, index, persistence, cursor, ...) implements,
// the value types that cross between them, and the errors they return.
// Nothing in this package touches disk or the network — it only describes
// shape and behavior, so adapters can be swapped or mocked freely.
package domain

import "context"

// IndexDTO is the on-disk record written to the journal whenever an index
// is created or dropped. Exactly one of IndexCreated or IndexRemoved is
// populated per record; replaying the journal on load reconstructs the
// index set by applying each record in order.
type IndexDTO struct {
	IndexCreated IndexCreated `json:"$$indexCreated" gedb:"$$indexCreated,omitzero"`
	IndexRemoved string       `json:"$$indexRemoved" gedb:"$$indexRemoved,omitzero"`
}

// IndexCreated captures everything needed to rebuild one index: which
// field it's on, whether it enforces uniqueness, whether it skips
// documents missing that field, and the TTL (if any) after which indexed
// documents expire.
type IndexCreated struct {
	FieldName   string  `json:"fieldName" gedb:"fieldName,omitzero"`
	Unique      bool    `json:"unique" gedb:"unique,omitzero"`
	Sparse      bool    `json:"sparse" gedb:"sparse,omitzero"`
	ExpireAfter float64 `json:"$$expireAfterSeconds" gedb:"$$expireAfterSeconds,omitzero"`
}

// Update pairs a document's state before and after a modification, handed
// to every index so it can move the document between buckets keyed on the
// old value and the new one.
type Update struct {
	OldDoc Document
	NewDoc Document
}

// Sort is an ordered list of sort keys, applied left to right: ties on the
// first key are broken by the second, and so on.
type Sort = []SortName

// SortName names one field to sort by and the direction to sort it in.
// Order > 0 sorts ascending, Order < 0 sorts descending.
type SortName struct {
	Key   string
	Order int64
}

// DocumentFactory builds a [Document] out of an arbitrary Go value (a
// struct, a map, or nil for an empty document). Every component that needs
// to allocate a fresh document takes one of these rather than calling a
// concrete constructor directly, so callers can swap in a different
// Document implementation.
type DocumentFactory = func(any) (Document, error)

// CursorFactory builds a [Cursor] over a fixed slice of documents.
type CursorFactory = func(context.Context, []Document, ...CursorOption) (Cursor, error)

// IndexFactory builds an [Index] configured by the given options.
type IndexFactory = func(...IndexOption) (Index, error)
