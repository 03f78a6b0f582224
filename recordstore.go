package docstore

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Location addresses one record in a collection's data file. Length includes
// the terminating newline.
type Location struct {
	Position uint64
	Length   uint64
}

func (loc Location) End() uint64 {
	return loc.Position + loc.Length
}

func (loc Location) String() string {
	return fmt.Sprintf("%d+%d", loc.Position, loc.Length)
}

// RecordStore is the data file of one collection: every document is one JSON
// line, addressed by byte offset. Edits that change a record's length move
// every later record by the difference; callers shift the PK index by the
// returned delta. There is no write-ahead log, so a crash in the middle of a
// shift can leave the file inconsistent.
type RecordStore struct {
	fs   afero.Fs
	dir  string
	path string
}

func (rs *RecordStore) Path() string {
	return rs.path
}

// Create makes the collection directory and an empty data file.
func (rs *RecordStore) Create() error {
	if err := rs.fs.MkdirAll(rs.dir, 0755); err != nil {
		return errors.WithMessagef(err, "creating %s", rs.dir)
	}
	return createFile(rs.fs, rs.path)
}

// Remove deletes the collection directory with the data file and every
// index file in it.
func (rs *RecordStore) Remove() error {
	if err := rs.fs.RemoveAll(rs.dir); err != nil {
		return errors.WithMessagef(err, "removing %s", rs.dir)
	}
	return nil
}

func (rs *RecordStore) Exists() bool {
	ok, _ := afero.Exists(rs.fs, rs.path)
	return ok
}

func (rs *RecordStore) Size() (int64, error) {
	fi, err := rs.fs.Stat(rs.path)
	if err != nil {
		return 0, notFoundErr(err, rs.path)
	}
	return fi.Size(), nil
}

func (rs *RecordStore) open(flag int) (afero.File, error) {
	f, err := rs.fs.OpenFile(rs.path, flag, 0)
	if err != nil {
		return nil, notFoundErr(err, rs.path)
	}
	return f, nil
}

func (rs *RecordStore) Insert(doc *Document) (Location, error) {
	locs, err := rs.BulkInsert([]*Document{doc})
	if err != nil {
		return Location{}, err
	}
	return locs[0], nil
}

// BulkInsert appends docs in one write and returns their locations in input
// order.
func (rs *RecordStore) BulkInsert(docs []*Document) ([]Location, error) {
	var buf bytes.Buffer
	lengths := make([]uint64, len(docs))
	for i, doc := range docs {
		data, err := encodeRecord(doc)
		if err != nil {
			return nil, err
		}
		lengths[i] = uint64(len(data))
		buf.Write(data)
	}

	f, err := rs.open(os.O_RDWR)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pos := uint64(fi.Size())
	if _, err := f.WriteAt(buf.Bytes(), int64(pos)); err != nil {
		return nil, errors.WithMessagef(err, "appending to %s", rs.path)
	}

	locs := make([]Location, len(docs))
	for i, n := range lengths {
		locs[i] = Location{pos, n}
		pos += n
	}
	return locs, f.Close()
}

// ReadAt returns the raw bytes of the record at loc, newline included.
func (rs *RecordStore) ReadAt(loc Location) ([]byte, error) {
	f, err := rs.open(os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, loc.Length)
	n, err := f.ReadAt(buf, int64(loc.Position))
	if err == io.EOF && uint64(n) == loc.Length {
		err = nil
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "reading %s at %v", rs.path, loc)
	}
	return buf, nil
}

// Get reads and decodes the document at loc.
func (rs *RecordStore) Get(loc Location) (*Document, error) {
	data, err := rs.ReadAt(loc)
	if err != nil {
		return nil, err
	}
	return decodeRecord(data, int(loc.Position))
}

// Update replaces the record at old with doc and returns the new location and
// the shift applied to every record after it.
func (rs *RecordStore) Update(doc *Document, old Location) (Location, int64, error) {
	data, err := encodeRecord(doc)
	if err != nil {
		return Location{}, 0, err
	}
	delta, err := rs.replace(old, data)
	if err != nil {
		return Location{}, 0, err
	}
	return Location{old.Position, uint64(len(data))}, delta, nil
}

// Delete removes the record at old; later records move left by its length.
func (rs *RecordStore) Delete(old Location) (int64, error) {
	return rs.replace(old, nil)
}

func (rs *RecordStore) replace(old Location, data []byte) (int64, error) {
	f, err := rs.open(os.O_RDWR)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if uint64(len(data)) == old.Length {
		if _, err := f.WriteAt(data, int64(old.Position)); err != nil {
			return 0, errors.WithMessagef(err, "overwriting %s at %v", rs.path, old)
		}
		return 0, f.Close()
	}

	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := uint64(fi.Size())
	if old.End() > size {
		return 0, errors.Errorf("%s: location %v is beyond the end of file (%d)", rs.path, old, size)
	}

	tail := make([]byte, size-old.End())
	if len(tail) > 0 {
		if _, err := f.ReadAt(tail, int64(old.End())); err != nil && err != io.EOF {
			return 0, errors.WithMessagef(err, "reading tail of %s after %v", rs.path, old)
		}
	}

	buf := make([]byte, 0, len(data)+len(tail))
	buf = append(buf, data...)
	buf = append(buf, tail...)
	if len(buf) > 0 {
		if _, err := f.WriteAt(buf, int64(old.Position)); err != nil {
			return 0, errors.WithMessagef(err, "shifting %s at %v", rs.path, old)
		}
	}
	if err := f.Truncate(int64(old.Position) + int64(len(buf))); err != nil {
		return 0, errors.WithMessagef(err, "truncating %s", rs.path)
	}
	shiftedBytes.Add(float64(len(tail)))
	return int64(len(data)) - int64(old.Length), f.Close()
}

// Scan decodes every record in file order.
func (rs *RecordStore) Scan(fn func(loc Location, doc *Document) error) error {
	data, err := afero.ReadFile(rs.fs, rs.path)
	if err != nil {
		return notFoundErr(err, rs.path)
	}
	var pos uint64
	for len(data) > 0 {
		n := bytes.IndexByte(data, '\n') + 1
		if n == 0 {
			n = len(data)
		}
		doc, err := decodeRecord(data[:n], int(pos))
		if err != nil {
			return errors.WithMessagef(err, "scanning %s", rs.path)
		}
		if err := fn(Location{pos, uint64(n)}, doc); err != nil {
			return err
		}
		pos += uint64(n)
		data = data[n:]
	}
	return nil
}
