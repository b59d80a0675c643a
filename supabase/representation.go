package supabase

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Representation is the body PostgREST returns for selects and for writes
// sent with "Prefer: return=representation". It is normally a JSON array but
// a bare object is accepted as a single row.
type Representation struct {
	Rows []json.RawMessage
}

func (r *Representation) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		r.Rows = nil
		return nil
	case b[0] == '[':
		return json.Unmarshal(b, &r.Rows)
	case b[0] == '{':
		r.Rows = []json.RawMessage{append(json.RawMessage(nil), b...)}
		return nil
	}
	return ErrUnexpectedRepresentation
}

func (r Representation) Empty() bool { return len(r.Rows) == 0 }

// First decodes the first row into v.
func (r Representation) First(v interface{}) error {
	if r.Empty() {
		return ErrEmptyRepresentation
	}
	return json.Unmarshal(r.Rows[0], v)
}

// All decodes every row into v, which must point to a slice.
func (r Representation) All(v interface{}) error {
	if r.Empty() {
		return json.Unmarshal([]byte("[]"), v)
	}
	return json.Unmarshal(joinRows(r.Rows), v)
}

func joinRows(rows []json.RawMessage) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(row)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// Decode parses a response body into a Representation. An empty body, as sent
// with 204 No Content, yields an empty Representation.
func Decode(resp Response) (Representation, error) {
	var r Representation
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return r, nil
	}
	err := json.Unmarshal(resp.Body, &r)
	return r, err
}

// Total reads the row count PostgREST puts in Content-Range when asked with
// "Prefer: count=exact", e.g. "0-9/42" or "*/0". ok is false when absent.
func Total(resp Response) (total int, ok bool) {
	cr := resp.Header.Get("Content-Range")
	i := strings.LastIndexByte(cr, '/')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(cr[i+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

var (
	ErrEmptyRepresentation      = errors.New("no row returned")
	ErrUnexpectedRepresentation = errors.New("unexpected representation")
)
