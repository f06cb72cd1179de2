// Package labelfile reads and writes the per-reviewer label CSV:
// a CallID column followed by the label columns in canonical order.
package labelfile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"labeler/internal/domain"
)

const KeyColumn = "CallID"

// FileName is the persisted file for one reviewer.
func FileName(reviewer string) string {
	return fmt.Sprintf("final_labels_%s.csv", reviewer)
}

// Header returns the column header row.
func Header() []string {
	return append([]string{KeyColumn}, domain.LabelColumns...)
}

// Encode serializes every record, sorted by document key.
func Encode(labels domain.LabelSet) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, key := range labels.Keys() {
		rec := labels[key]
		row := make([]string, 0, len(domain.LabelColumns)+1)
		row = append(row, key)
		for _, col := range domain.LabelColumns {
			if rec.Has(col) {
				row = append(row, domain.Marked)
			} else {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row %s: %w", key, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a label CSV. Columns are matched by header name, so files
// with reordered or extra columns still load; rows without a CallID are skipped.
func Decode(r io.Reader) (domain.LabelSet, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.LabelSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	keyIdx, ok := index[KeyColumn]
	if !ok {
		return nil, fmt.Errorf("missing %s column", KeyColumn)
	}

	labels := domain.LabelSet{}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if keyIdx >= len(row) {
			continue
		}
		key := strings.TrimSpace(row[keyIdx])
		if key == "" {
			continue
		}
		rec := domain.NewLabelRecord()
		for _, col := range domain.LabelColumns {
			i, ok := index[col]
			if !ok || i >= len(row) {
				continue
			}
			if strings.TrimSpace(row[i]) == domain.Marked {
				rec[col] = domain.Marked
			}
		}
		labels[key] = rec
	}
	return labels, nil
}

// DecodeBytes is Decode over an in-memory file.
func DecodeBytes(data []byte) (domain.LabelSet, error) {
	return Decode(bytes.NewReader(data))
}
