package database

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

const (
	sqliteDateTimeFormat = "2006-01-02 15:04:05.999999999"
	sqliteDateFormat     = "2006-01-02"
)

// Row is one result row. Columns keep the order the engine returned them in
// and the row marshals as a JSON object with keys in that order. When a name
// repeats, the key stays at its first position and carries the last value.
type Row struct {
	Columns []string
	Values  []any
}

func (r Row) lastIndex(column string) int {
	for i := len(r.Columns) - 1; i >= 0; i-- {
		if r.Columns[i] == column {
			return i
		}
	}
	return -1
}

func (r Row) get(column string) (any, bool) {
	if i := r.lastIndex(column); i >= 0 {
		return r.Values[i], true
	}
	return nil, false
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	seen := make(map[string]bool, len(r.Columns))
	buf.WriteByte('{')
	for _, c := range r.Columns {
		if seen[c] {
			continue
		}
		seen[c] = true
		if len(seen) > 1 {
			buf.WriteByte(',')
		}
		if err := writeJSONMember(&buf, c, r.Values[r.lastIndex(c)]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Blob is a BLOB column value. It marshals as an array of byte values rather
// than the base64 string encoding/json would produce for []byte.
type Blob []byte

func (b Blob) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(b))
	for i, c := range b {
		ints[i] = int(c)
	}
	return json.Marshal(ints)
}

// processRowValues converts scanned driver values into JSON friendly ones.
// declTypes holds the declared type of each column, or "" when unknown.
// The driver parses DATE, DATETIME and TIMESTAMP columns into time.Time;
// they are written back in SQLite's own text form.
func processRowValues(rawRow []any, declTypes []string) []any {
	processedRow := make([]any, len(rawRow))
	for i, val := range rawRow {
		switch v := val.(type) {
		case nil:
			processedRow[i] = nil
		case []byte:
			processedRow[i] = Blob(append([]byte(nil), v...))
		case time.Time:
			if i < len(declTypes) && strings.EqualFold(declTypes[i], "date") {
				processedRow[i] = v.Format(sqliteDateFormat)
			} else {
				processedRow[i] = v.Format(sqliteDateTimeFormat)
			}
		default:
			processedRow[i] = v
		}
	}
	return processedRow
}
