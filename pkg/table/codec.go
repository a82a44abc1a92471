package table

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
)

// ErrNoTimestamp is returned when decoded data has no Timestamp column.
var ErrNoTimestamp = errors.New("table: missing Timestamp column")

// ParseTime parses a timestamp cell. RFC 3339 is tried first; any other
// layout dateparse recognises is accepted as well.
func ParseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	ts, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return ts, nil
}

// parseCell converts a CSV field: empty is NaN, numbers become float64,
// anything else stays a string.
func parseCell(s string) any {
	if s == "" {
		return math.NaN()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// ReadCSV decodes a CSV document with a header line, as returned by the
// hub for interpolated data (form=csvh).
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	t := &Table{Columns: header}
	if !t.HasColumn(Timestamp) {
		return nil, ErrNoTimestamp
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		row := make(Row, len(header))
		for i, col := range header {
			field := ""
			if i < len(record) {
				field = record[i]
			}
			if col == Timestamp {
				ts, err := ParseTime(field)
				if err != nil {
					return nil, fmt.Errorf("csv line %d: %w", line, err)
				}
				row[col] = ts
				continue
			}
			row[col] = parseCell(field)
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

// DecodeRecords decodes a JSON array of objects, as returned by the hub for
// stored data. Column order follows the keys of the first object that
// introduces them.
func DecodeRecords(data []byte) (*Table, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return New(), nil
		}
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("decode records: expected array, got %v", tok)
	}

	t := New()
	for dec.More() {
		row, columns, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(t.Rows), err)
		}
		t.Append(columns, []Row{row})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return t, nil
}

func decodeObject(dec *json.Decoder) (Row, []string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}

	row := Row{}
	var columns []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, _ := keyTok.(string)

		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("field %q: %w", key, err)
		}

		switch {
		case key == Timestamp:
			s, ok := v.(string)
			if !ok {
				return nil, nil, fmt.Errorf("field %q: not a string", key)
			}
			ts, err := ParseTime(s)
			if err != nil {
				return nil, nil, err
			}
			row[key] = ts
		case v == nil:
			row[key] = math.NaN()
		default:
			row[key] = v
		}
		columns = append(columns, key)
	}

	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	if _, ok := row[Timestamp]; !ok {
		return nil, nil, ErrNoTimestamp
	}
	return row, columns, nil
}

// WriteCSV encodes the table with a header line. Timestamps are written
// in RFC 3339 and missing numbers as empty fields.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			record[i] = formatCell(row[col])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
