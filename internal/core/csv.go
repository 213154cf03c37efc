package core

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wrkportal/sheetengine/internal/cell"
)

// MaxSourceBytes caps how much of a CSV upload is read.
const MaxSourceBytes = 100 << 20

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSVSource parses a CSV file into a TableSource. The first non-empty
// record is the header. A UTF-8 BOM is dropped, invalid UTF-8 is replaced
// with U+FFFD, fully empty rows are skipped and short or long rows are
// padded or cut to the header width. Values stay strings; empty cells
// become nil.
func ReadCSVSource(id, name string, r io.Reader) (TableSource, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSourceBytes+1))
	if err != nil {
		return TableSource{}, fmt.Errorf("read csv: %w", err)
	}
	if len(data) > MaxSourceBytes {
		return TableSource{}, ErrValidation("file too large: limit is %d MB", MaxSourceBytes>>20)
	}
	data = sanitizeUTF8(bytes.TrimPrefix(data, utf8BOM))

	records, err := parseCSV(data)
	if err != nil {
		return TableSource{}, wrapValidation(err, "invalid csv")
	}

	var header []string
	var body [][]string
	for i, rec := range records {
		if isEmptyRow(rec) {
			continue
		}
		header = rec
		body = records[i+1:]
		break
	}
	if header == nil {
		return TableSource{}, ErrValidation("empty file: no header row")
	}

	columns := dedupeHeaders(header)
	rows := make([][]any, 0, len(body))
	for _, rec := range body {
		if isEmptyRow(rec) {
			continue
		}
		row := make([]any, len(columns))
		for i := range columns {
			if i < len(rec) && strings.TrimSpace(rec[i]) != "" {
				row[i] = rec[i]
			}
		}
		rows = append(rows, row)
	}

	now := time.Now().UTC()
	src := TableSource{
		ID:        id,
		Name:      name,
		Columns:   columns,
		Rows:      rows,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return src, src.Validate()
}

// dedupeHeaders cleans header cells and renames blanks and repeats so that
// every column can be referenced by name.
func dedupeHeaders(header []string) []string {
	columns := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, h := range header {
		name := cell.CleanCell(h)
		if name == "" {
			name = fmt.Sprintf("Column %d", i+1)
		}
		candidate := name
		for n := 2; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%d", name, n)
		}
		used[candidate] = true
		columns[i] = candidate
	}
	return columns
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
			continue
		}
		buf.WriteRune(r)
		data = data[size:]
	}
	return buf.Bytes()
}

func parseCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	return records, err
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
