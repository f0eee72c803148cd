package domain

import (
	"fmt"
	"math"
)

// ErrTargetNil is returned when the passed target, which should be a pointer,
// is passed as a nil value.
type ErrTargetNil struct{}

func (e *ErrTargetNil) Error() string { return "target interface is nil" }

// ErrConstraintViolated is returned by [Index] when an action cannot be
// performed because it is being blocked by a unique constraint.
type ErrConstraintViolated struct {
	FieldName string
	Key       any
}

func (e *ErrConstraintViolated) Error() string {
	return fmt.Sprintf("unique constraint violated for field %q, value %v", e.FieldName, e.Key)
}

// ErrCursorClosed is returned when trying to perform operations on a closed
// [Cursor].
type ErrCursorClosed struct{}

func (e *ErrCursorClosed) Error() string { return "cursor is closed" }

// ErrScanBeforeNext is returned when calling a cursor's decode method before
// calling Next.
type ErrScanBeforeNext struct{}

func (e *ErrScanBeforeNext) Error() string { return "called before calling Next" }

// ErrNoFieldName is returned if no field name is provided when creating a new
// [Index].
type ErrNoFieldName struct{}

func (e *ErrNoFieldName) Error() string { return "cannot create an index without a fieldName" }

// ErrNotFound is returned when FindOne cannot find any matching result for
// the given query.
type ErrNotFound struct{}

func (e *ErrNotFound) Error() string { return "no document matches the given query" }

// ErrCannotModifyID is returned by [Modifier] when an update would change a
// document's _id.
type ErrCannotModifyID struct{}

func (e *ErrCannotModifyID) Error() string { return "you cannot change a document's _id" }

// ErrFieldName represents an invalid field name, usually for when a document
// is created with a reserved prefix or forbidden character.
type ErrFieldName struct {
	Name   string
	Reason string
}

func (e *ErrFieldName) Error() string {
	return fmt.Sprintf("invalid field name %q: %s", e.Name, e.Reason)
}

// ErrDatafileName is returned when the user specifies an invalid name for the
// data file. That usually happens if a file with the suffix reserved for the
// crash backup file is passed as a file name.
type ErrDatafileName struct {
	Filename string
}

func (e *ErrDatafileName) Error() string {
	return fmt.Sprintf("%q is reserved for the crash-safe backup file", e.Filename)
}

// ErrDocumentType is returned when a user passes a value that is invalid, or
// contains an invalid sub value, for creating a document.
type ErrDocumentType struct {
	Type string
}

func (e *ErrDocumentType) Error() string {
	return fmt.Sprintf("expected map or struct, got %s", e.Type)
}

// ErrCannotCompare is returned when [Comparer.Compare] is called with two
// values that cannot be compared.
type ErrCannotCompare struct {
	A, B any
}

func (e *ErrCannotCompare) Error() string {
	return fmt.Sprintf("cannot compare unexpected types %T and %T", e.A, e.B)
}

// ErrDecode wraps third-party decoding errors returned by [Decoder.Decode].
type ErrDecode struct {
	Err error
}

func (e *ErrDecode) Error() string { return fmt.Sprintf("decode error: %v", e.Err) }
func (e *ErrDecode) Unwrap() error { return e.Err }

type ErrBufferReset struct{}

func (e ErrBufferReset) Error() string { return "executor buffer was reset" }

type ErrCorruptFiles struct {
	CorruptionRate        float64
	CorruptItems          int
	DataLength            int
	CorruptAlertThreshold float64
}

func (e ErrCorruptFiles) Error() string {
	return fmt.Sprintf("%f%% of the data file is corrupt, more than given corruptAlertThreshold (%f%%). Cautiously refusing to start GeDB to prevent dataloss.", math.Floor(100*e.CorruptionRate), math.Floor(100*e.CorruptAlertThreshold))
}

type ErrFlushToStorage struct {
	ErrorOnFsync error
	ErrorOnClose error
}

func (e ErrFlushToStorage) Error() string {
	var err error
	if e.ErrorOnFsync != nil {
		err = e.ErrorOnFsync
	} else {
		err = e.ErrorOnClose
	}
	return fmt.Sprint("storage flush error:", err.Error())
}
