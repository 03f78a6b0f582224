package docstore

import (
	"bytes"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// textLine is one line of an index file and its byte offset.
type textLine struct {
	text string
	off  int64
}

func notFoundErr(err error, path string) error {
	if os.IsNotExist(err) {
		return errors.Wrapf(ErrNotFound, "%s", path)
	}
	return err
}

// readLines loads a whole newline-delimited file. A missing file yields
// ErrNotFound.
func readLines(fs afero.Fs, path string) ([]textLine, int64, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, 0, notFoundErr(err, path)
	}
	var lines []textLine
	var off int64
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			// unterminated last line
			lines = append(lines, textLine{string(data), off})
			off += int64(len(data))
			break
		}
		lines = append(lines, textLine{string(data[:i]), off})
		off += int64(i + 1)
		data = data[i+1:]
	}
	return lines, off, nil
}

func joinLines(lines []string) []byte {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// appendLines appends to an existing file.
func appendLines(fs afero.Fs, path string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return notFoundErr(err, path)
	}
	_, err = f.Write(joinLines(lines))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return errors.WithMessagef(err, "appending to %s", path)
}

// rewriteFrom replaces everything from off onwards with lines.
func rewriteFrom(fs afero.Fs, path string, off int64, lines []string) error {
	f, err := fs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return notFoundErr(err, path)
	}
	err = f.Truncate(off)
	if err == nil && len(lines) > 0 {
		_, err = f.WriteAt(joinLines(lines), off)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return errors.WithMessagef(err, "rewriting %s", path)
}

// createFile creates an empty file, failing with ErrExists if there is one.
func createFile(fs afero.Fs, path string) error {
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		return errors.Wrapf(ErrExists, "%s", path)
	} else if err != nil {
		return notFoundErr(err, path)
	}
	return f.Close()
}

func splitIndexLine(path string, n int, l textLine, fields int) ([]string, error) {
	parts, err := splitEscaped(l.text, '|')
	if err == nil && len(parts) != fields {
		err = errors.Errorf("got %d fields, expected %d", len(parts), fields)
	}
	if err != nil {
		return nil, &IndexFileError{Path: path, Line: n + 1, Text: l.text, Err: err}
	}
	return parts, nil
}

func indexLineErr(path string, n int, l textLine, err error) error {
	return &IndexFileError{Path: path, Line: n + 1, Text: strings.TrimSpace(l.text), Err: err}
}
