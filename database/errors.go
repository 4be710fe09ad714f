package database

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/mattn/go-sqlite3"
)

// ErrorKind tags a normalized error with the broad category of the failure.
// It is informational only: every kind is reported to clients the same way.
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindSyntax
	ErrorKindConstraint
	ErrorKindIO
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindSyntax:
		return "syntax"
	case ErrorKindConstraint:
		return "constraint"
	case ErrorKindIO:
		return "io"
	default:
		return "unknown"
	}
}

// FieldError is implemented by errors that carry named attributes besides
// their message. Normalize copies every field through unchanged.
type FieldError interface {
	error
	Fields() map[string]any
}

type field struct {
	key   string
	value any
}

// NormalizedError is the key/value projection of a failure. It always has a
// "message" key; the remaining keys depend on the driver that failed.
type NormalizedError struct {
	Kind    ErrorKind
	fields  []field
	message string
}

// Message returns the guaranteed message field.
func (e *NormalizedError) Message() string {
	return e.message
}

// Get returns the value stored under key. The "message" key is always
// present.
func (e *NormalizedError) Get(key string) (any, bool) {
	if key == "message" {
		return e.message, true
	}
	for _, f := range e.fields {
		if f.key == key {
			return f.value, true
		}
	}
	return nil, false
}

// keys lists the field names in serialization order, ending with "message".
func (e *NormalizedError) keys() []string {
	keys := make([]string, 0, len(e.fields)+1)
	for _, f := range e.fields {
		keys = append(keys, f.key)
	}
	return append(keys, "message")
}

func (e *NormalizedError) set(key string, value any) {
	if key == "message" {
		if s, ok := value.(string); ok {
			e.message = s
		} else {
			e.message = fmt.Sprint(value)
		}
		return
	}
	for i := range e.fields {
		if e.fields[i].key == key {
			e.fields[i].value = value
			return
		}
	}
	e.fields = append(e.fields, field{key: key, value: value})
}

// MarshalJSON writes the fields in the order they were copied from the
// failure, followed by "message".
func (e *NormalizedError) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, f := range e.fields {
		if err := writeJSONMember(&buf, f.key, f.value); err != nil {
			return nil, err
		}
		buf.WriteByte(',')
	}
	if err := writeJSONMember(&buf, "message", e.message); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String returns the JSON text of the error. This is what clients receive in
// the envelope's message field.
func (e *NormalizedError) String() string {
	b, err := e.MarshalJSON()
	if err != nil {
		b, _ = json.Marshal(map[string]string{"message": e.message})
	}
	return string(b)
}

func (e *NormalizedError) Error() string {
	return e.message
}

func writeJSONMember(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("field %s: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// Normalize converts any failure into a NormalizedError. SQLite errors
// expose their result codes; errors implementing FieldError have all their
// fields copied; anything else is reduced to its message. A nil error gives
// an unknown error with an empty message.
func Normalize(err error) *NormalizedError {
	out := &NormalizedError{}
	if err == nil {
		return out
	}

	var already *NormalizedError
	if errors.As(err, &already) {
		return already
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteCodeName(sqliteErr.Code)
		out.Kind = sqliteErrorKind(sqliteErr.Code)
		out.set("errno", int(sqliteErr.Code))
		out.set("code", code)
		if int(sqliteErr.ExtendedCode) != int(sqliteErr.Code) && sqliteErr.ExtendedCode != 0 {
			out.set("extended_errno", int(sqliteErr.ExtendedCode))
		}
		if sqliteErr.SystemErrno != 0 {
			out.set("syscall_errno", int(sqliteErr.SystemErrno))
		}
		out.set("message", code+": "+sqliteErr.Error())
		return out
	}

	var fieldErr FieldError
	if errors.As(err, &fieldErr) {
		fields := fieldErr.Fields()
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out.set(k, fields[k])
		}
	}
	out.set("message", err.Error())
	return out
}

var sqliteCodeNames = map[sqlite3.ErrNo]string{
	sqlite3.ErrError:      "SQLITE_ERROR",
	sqlite3.ErrInternal:   "SQLITE_INTERNAL",
	sqlite3.ErrPerm:       "SQLITE_PERM",
	sqlite3.ErrAbort:      "SQLITE_ABORT",
	sqlite3.ErrBusy:       "SQLITE_BUSY",
	sqlite3.ErrLocked:     "SQLITE_LOCKED",
	sqlite3.ErrNomem:      "SQLITE_NOMEM",
	sqlite3.ErrReadonly:   "SQLITE_READONLY",
	sqlite3.ErrInterrupt:  "SQLITE_INTERRUPT",
	sqlite3.ErrIoErr:      "SQLITE_IOERR",
	sqlite3.ErrCorrupt:    "SQLITE_CORRUPT",
	sqlite3.ErrNotFound:   "SQLITE_NOTFOUND",
	sqlite3.ErrFull:       "SQLITE_FULL",
	sqlite3.ErrCantOpen:   "SQLITE_CANTOPEN",
	sqlite3.ErrProtocol:   "SQLITE_PROTOCOL",
	sqlite3.ErrEmpty:      "SQLITE_EMPTY",
	sqlite3.ErrSchema:     "SQLITE_SCHEMA",
	sqlite3.ErrTooBig:     "SQLITE_TOOBIG",
	sqlite3.ErrConstraint: "SQLITE_CONSTRAINT",
	sqlite3.ErrMismatch:   "SQLITE_MISMATCH",
	sqlite3.ErrMisuse:     "SQLITE_MISUSE",
	sqlite3.ErrNoLFS:      "SQLITE_NOLFS",
	sqlite3.ErrAuth:       "SQLITE_AUTH",
	sqlite3.ErrFormat:     "SQLITE_FORMAT",
	sqlite3.ErrRange:      "SQLITE_RANGE",
	sqlite3.ErrNotADB:     "SQLITE_NOTADB",
	sqlite3.ErrNotice:     "SQLITE_NOTICE",
	sqlite3.ErrWarning:    "SQLITE_WARNING",
}

func sqliteCodeName(code sqlite3.ErrNo) string {
	if name, ok := sqliteCodeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("SQLITE_UNKNOWN_%d", int(code))
}

func sqliteErrorKind(code sqlite3.ErrNo) ErrorKind {
	switch code {
	case sqlite3.ErrError:
		return ErrorKindSyntax
	case sqlite3.ErrConstraint, sqlite3.ErrMismatch, sqlite3.ErrRange, sqlite3.ErrTooBig:
		return ErrorKindConstraint
	case sqlite3.ErrIoErr, sqlite3.ErrCantOpen, sqlite3.ErrFull, sqlite3.ErrCorrupt,
		sqlite3.ErrNotADB, sqlite3.ErrReadonly, sqlite3.ErrBusy, sqlite3.ErrLocked,
		sqlite3.ErrPerm, sqlite3.ErrNoLFS:
		return ErrorKindIO
	default:
		return ErrorKindUnknown
	}
}
