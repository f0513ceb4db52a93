package xlrd

import (
	"errors"
	"fmt"
)

// ErrSheetNotFound is returned (wrapped) when a sheet name lookup fails.
var ErrSheetNotFound = errors.New("sheet not found")

// XLRDError represents a general error that occurred while reading a workbook.
type XLRDError struct {
	Message string
}

func (e *XLRDError) Error() string {
	return e.Message
}

// NewXLRDError creates a new XLRDError with the given message.
func NewXLRDError(format string, args ...interface{}) *XLRDError {
	return &XLRDError{Message: fmt.Sprintf(format, args...)}
}

// UnsupportedContainerError is returned when the input is not a compound file
// this package can read (wrong signature, wrong byte order).
type UnsupportedContainerError struct {
	Message string
}

func (e *UnsupportedContainerError) Error() string {
	return e.Message
}

// CorruptContainerError reports a structural inconsistency in the sector
// chains or the directory of a compound file.
type CorruptContainerError struct {
	// Stream is the name of the affected stream, or the structure
	// ("MSAT", "SAT", "directory", "SSAT") being built.
	Stream  string
	Message string
}

func (e *CorruptContainerError) Error() string {
	if e.Stream == "" {
		return e.Message
	}
	return e.Stream + ": " + e.Message
}

func newCorruptError(stream, format string, args ...interface{}) *CorruptContainerError {
	return &CorruptContainerError{Stream: stream, Message: fmt.Sprintf(format, args...)}
}

// TruncatedFileError is returned when a sector lies beyond the end of the source.
type TruncatedFileError struct {
	Sector int
	Need   int
	Have   int
}

func (e *TruncatedFileError) Error() string {
	return fmt.Sprintf("file is truncated: sector %d needs %d bytes, only %d available", e.Sector, e.Need, e.Have)
}

// MalformedRecordError reports a BIFF record that cannot be decoded, typically
// because its declared length runs past the end of the stream.
type MalformedRecordError struct {
	Offset  int
	Code    int
	Message string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record 0x%04x at offset %d: %s", e.Code, e.Offset, e.Message)
}

// UnsupportedTokenError reports a formula token the interpreter cannot decode.
// It is never fatal: the cell keeps its cached value.
type UnsupportedTokenError struct {
	Token   int
	Pos     int
	Message string
}

func (e *UnsupportedTokenError) Error() string {
	return fmt.Sprintf("unsupported formula token 0x%02x at %d: %s", e.Token, e.Pos, e.Message)
}

// EncryptedContainerError is returned for password-protected workbooks.
type EncryptedContainerError struct {
	Message string
}

func (e *EncryptedContainerError) Error() string {
	return e.Message
}
