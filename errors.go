package docstore

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a database, collection, document or index
	// file does not exist.
	ErrNotFound = errors.New("not found")

	ErrExists              = errors.New("already exists")
	ErrDuplicateKey        = errors.New("duplicate primary key")
	ErrInvalidName         = errors.New("invalid name")
	ErrUnsupportedOperator = errors.New("unsupported operator")
	ErrUnknownType         = errors.New("unknown index type")
	ErrChecksum            = errors.New("checksum mismatch")
)

// DataError describes a record or index line that could not be decoded.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	var data string
	if n <= prefixLen+suffixLen {
		data = fmt.Sprintf("%q", e.Data)
	} else {
		data = fmt.Sprintf("%q...%q", e.Data[:prefixLen], e.Data[n-suffixLen:])
	}
	if e.Err != nil {
		return fmt.Sprintf("%s at %d: %v: (%d) %s", e.Msg, e.Off, e.Err, n, data)
	} else {
		return fmt.Sprintf("%s at %d: (%d) %s", e.Msg, e.Off, n, data)
	}
}

// CollectionError attributes a failure to a collection and, optionally, one
// of its documents.
type CollectionError struct {
	Database   string
	Collection string
	Key        string
	Msg        string
	Err        error
}

func collErrf(db, coll, key string, err error, format string, args ...any) error {
	return &CollectionError{db, coll, key, fmt.Sprintf(format, args...), err}
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

func (e *CollectionError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Database)
	if e.Collection != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Collection)
	}
	if e.Key != "" {
		buf.WriteByte('/')
		buf.WriteString(e.Key)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// IndexFileError reports a malformed line of an index file. There is no
// recovery: the whole load fails.
type IndexFileError struct {
	Path string
	Line int
	Text string
	Err  error
}

func (e *IndexFileError) Unwrap() error {
	return e.Err
}

func (e *IndexFileError) Error() string {
	return fmt.Sprintf("%s:%d: malformed index line %q: %v", e.Path, e.Line, e.Text, e.Err)
}
