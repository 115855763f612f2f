package codec

import (
	"errors"
	"fmt"
)

// Sentinels matched by errors.Is against any *Error of the corresponding
// category.
var (
	ErrBadMagic           = errors.New("codec: bad magic")
	ErrUnsupportedVersion = errors.New("codec: unsupported format version")
	ErrTruncated          = errors.New("codec: truncated input")
	ErrCorrupt            = errors.New("codec: corrupt input")
)

// ErrorCode categorizes codec failures.
type ErrorCode string

const (
	// ErrCodeBadMagic indicates the stream does not start with the format signature.
	ErrCodeBadMagic ErrorCode = "BAD_MAGIC"

	// ErrCodeUnsupportedVersion indicates a format version newer than this build reads.
	ErrCodeUnsupportedVersion ErrorCode = "UNSUPPORTED_VERSION"

	// ErrCodeTruncated indicates the stream ended inside a field.
	ErrCodeTruncated ErrorCode = "TRUNCATED"

	// ErrCodeCorruptTag indicates an unknown value tag.
	ErrCodeCorruptTag ErrorCode = "CORRUPT_TAG"

	// ErrCodeCorruptFile indicates a structurally invalid stream or document.
	ErrCodeCorruptFile ErrorCode = "CORRUPT_FILE"

	// ErrCodeBadReference indicates a string, object or external index that
	// does not resolve.
	ErrCodeBadReference ErrorCode = "BAD_REFERENCE"

	// ErrCodeUnencodable indicates a value that has no persisted form, such
	// as a live host object.
	ErrCodeUnencodable ErrorCode = "UNENCODABLE"

	// ErrCodeParse indicates a syntax error in the text format.
	ErrCodeParse ErrorCode = "PARSE"
)

// Error is a failure to load or save one document. Offset is the byte
// offset in the input where the problem was found, or -1.
type Error struct {
	Code    ErrorCode
	Offset  int64
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" (offset=%d)", e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels. Every structural failure, truncation
// included, also matches ErrCorrupt: a string table cut short reports
// ErrCodeTruncated, not ErrCodeCorruptFile. To ask whether a file is corrupt
// test errors.Is(err, ErrCorrupt) rather than comparing Code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrBadMagic:
		return e.Code == ErrCodeBadMagic
	case ErrUnsupportedVersion:
		return e.Code == ErrCodeUnsupportedVersion
	case ErrTruncated:
		return e.Code == ErrCodeTruncated
	case ErrCorrupt:
		switch e.Code {
		case ErrCodeTruncated, ErrCodeCorruptTag, ErrCodeCorruptFile, ErrCodeBadReference, ErrCodeParse:
			return true
		}
	}
	return false
}

// IsCodecError reports whether err wraps an *Error with the given code.
func IsCodecError(err error, code ErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

func newError(code ErrorCode, offset int64, format string, args ...any) *Error {
	return &Error{Code: code, Offset: offset, Message: fmt.Sprintf(format, args...)}
}
