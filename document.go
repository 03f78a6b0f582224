package docstore

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// KeyField is the JSON field holding a document's primary key.
const KeyField = "_id"

// Document is a JSON object with a primary key. Fields never contains KeyField.
type Document struct {
	Key    string
	Fields map[string]any
}

func NewDocument(key string, fields map[string]any) *Document {
	if fields == nil {
		fields = make(map[string]any)
	}
	delete(fields, KeyField)
	return &Document{Key: key, Fields: fields}
}

// ParseDocument decodes a JSON object. The key is taken from KeyField and
// may be empty.
func ParseDocument(data []byte) (*Document, error) {
	doc := new(Document)
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (doc *Document) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(doc.Fields)+1)
	for k, v := range doc.Fields {
		m[k] = v
	}
	m[KeyField] = doc.Key
	return json.Marshal(m)
}

func (doc *Document) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m == nil {
		return errors.New("document is null")
	}
	doc.Key = ""
	if raw, ok := m[KeyField]; ok {
		key, ok := raw.(string)
		if !ok {
			return errors.Errorf("%s is %T, expected string", KeyField, raw)
		}
		doc.Key = key
		delete(m, KeyField)
	}
	doc.Fields = m
	return nil
}

// Field looks up a field by a dot-separated path through nested objects.
func (doc *Document) Field(path string) (any, bool) {
	if path == KeyField {
		return doc.Key, true
	}
	var cur any = doc.Fields
	for {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		head, rest, more := splitByte(path, '.')
		cur, ok = m[head]
		if !ok {
			return nil, false
		}
		if !more {
			return cur, true
		}
		path = rest
	}
}

func (doc *Document) Clone() *Document {
	fields := make(map[string]any, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = cloneJSON(v)
	}
	return &Document{Key: doc.Key, Fields: fields}
}

func (doc *Document) String() string {
	return string(must(doc.MarshalJSON()))
}

// encodeRecord serializes doc into one newline-terminated line.
func encodeRecord(doc *Document) ([]byte, error) {
	data, err := doc.MarshalJSON()
	if err != nil {
		return nil, errors.WithMessagef(err, "encoding %s", doc.Key)
	}
	// encoding/json escapes control characters, so a raw newline can't appear.
	return append(data, '\n'), nil
}

func decodeRecord(data []byte, off int) (*Document, error) {
	line := bytes.TrimSuffix(data, []byte{'\n'})
	doc := new(Document)
	if err := json.Unmarshal(line, doc); err != nil {
		return nil, dataErrf(data, off, err, "failed to decode record")
	}
	if strings.TrimSpace(doc.Key) == "" {
		return nil, dataErrf(data, off, nil, "record has no %s", KeyField)
	}
	return doc, nil
}
