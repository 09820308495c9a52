package common

import (
	"errors"
	"fmt"
)

// StoreErrType enumerates the error conditions a store can report.
type StoreErrType uint32

const (
	// KeyNotFound is returned when a lookup finds nothing under the key.
	KeyNotFound StoreErrType = iota
	// TooLate is returned when the requested item was evicted as ancient.
	TooLate
	// SkippedIndex is returned when an index is written out of sequence.
	SkippedIndex
	// Empty is returned when the store holds nothing of the requested type.
	Empty
	// KeyAlreadyExists is returned when an append-only key is written twice.
	KeyAlreadyExists
	// UnknownCreator is returned when an item references a node outside the
	// address book.
	UnknownCreator
)

var storeErrMessages = map[StoreErrType]string{
	KeyNotFound:      "Not Found",
	TooLate:          "Too Late",
	SkippedIndex:     "Skipped Index",
	Empty:            "Empty",
	KeyAlreadyExists: "Key Already Exists",
	UnknownCreator:   "Unknown Creator",
}

// StoreErr is the error type returned by the stores. It records which kind of
// item was looked up and under which key.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr creates a StoreErr.
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error implements the error interface.
func (e StoreErr) Error() string {
	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, storeErrMessages[e.errType])
}

// IsStore checks whether err, or any error it wraps, is a StoreErr with the
// given type.
func IsStore(err error, t StoreErrType) bool {
	var storeErr StoreErr
	return errors.As(err, &storeErr) && storeErr.errType == t
}
