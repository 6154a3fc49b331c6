package jsondb

import "fmt"

// ErrorCode classifies the faults of the document store.
type ErrorCode int

const (
	CodeInvalidPath ErrorCode = iota + 1 // empty path or segment, reserved name, NUL byte
	CodeTraversal                        // path contains ".."
	CodeDecode                           // document on disk is not valid JSON
	CodeIO                               // filesystem failure
	CodeEncode                           // value can not be encoded as JSON
	CodeLock                             // lock could not be acquired
)

func (c ErrorCode) String() string {
	switch c {
	case CodeInvalidPath:
		return "InvalidPath"
	case CodeTraversal:
		return "Traversal"
	case CodeDecode:
		return "Decode"
	case CodeIO:
		return "IO"
	case CodeEncode:
		return "Encode"
	case CodeLock:
		return "Lock"
	default:
		return "Unknown"
	}
}

// Error is returned by all Store operations.
// A missing document is not an error.
type Error struct {
	Code ErrorCode
	Path string // document path
	Msg  string
	Err  error // underlying error, may be nil
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("jsondb %s: %s", e.Code, e.Msg)
	if e.Path != "" {
		msg += fmt.Sprintf(" (%q)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by code, so errors.Is(err, ErrTraversal) works for any path.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is
var (
	ErrInvalidPath = &Error{Code: CodeInvalidPath, Msg: "invalid document path"}
	ErrTraversal   = &Error{Code: CodeTraversal, Msg: "path traversal rejected"}
	ErrDecode      = &Error{Code: CodeDecode, Msg: "corrupt document"}
	ErrIO          = &Error{Code: CodeIO, Msg: "filesystem failure"}
	ErrEncode      = &Error{Code: CodeEncode, Msg: "value not encodable"}
	ErrLock        = &Error{Code: CodeLock, Msg: "could not lock document"}
)

func newError(code ErrorCode, path, msg string, err error) *Error {
	return &Error{Code: code, Path: path, Msg: msg, Err: err}
}
