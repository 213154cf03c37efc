package store

import (
	"encoding/json"
	"fmt"

	"github.com/wrkportal/sheetengine/internal/core"
)

// sourceRecord is the column layout shared by the SQL backends.
type sourceRecord struct {
	columns []byte
	rows    []byte
}

func encodeSource(src core.TableSource) (sourceRecord, error) {
	if err := src.Validate(); err != nil {
		return sourceRecord{}, err
	}
	columns, err := json.Marshal(src.Columns)
	if err != nil {
		return sourceRecord{}, fmt.Errorf("encode columns: %w", err)
	}
	rows := src.Rows
	if rows == nil {
		rows = [][]any{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return sourceRecord{}, fmt.Errorf("encode rows: %w", err)
	}
	return sourceRecord{columns: columns, rows: data}, nil
}

func decodeSource(rec sourceRecord, src *core.TableSource) error {
	if err := json.Unmarshal(rec.columns, &src.Columns); err != nil {
		return fmt.Errorf("decode columns of %s: %w", src.ID, err)
	}
	if err := json.Unmarshal(rec.rows, &src.Rows); err != nil {
		return fmt.Errorf("decode rows of %s: %w", src.ID, err)
	}
	return nil
}

func encodeMerge(spec core.MergeSpec) ([]byte, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encode merge %s: %w", spec.DerivedID, err)
	}
	return data, nil
}

func decodeMerge(data []byte) (core.MergeSpec, error) {
	var spec core.MergeSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return core.MergeSpec{}, fmt.Errorf("decode merge: %w", err)
	}
	return spec, nil
}

// cloneSource deep-copies the row structure so callers never share slices
// with the store.
func cloneSource(src core.TableSource) core.TableSource {
	out := src
	out.Columns = append([]string(nil), src.Columns...)
	out.Rows = make([][]any, len(src.Rows))
	for i, row := range src.Rows {
		out.Rows[i] = append([]any(nil), row...)
	}
	return out
}

func cloneMerge(spec core.MergeSpec) core.MergeSpec {
	out := spec
	out.Sources = make([]core.MergeSource, len(spec.Sources))
	for i, s := range spec.Sources {
		out.Sources[i] = core.MergeSource{SourceID: s.SourceID, Headers: append([]string(nil), s.Headers...)}
	}
	return out
}
