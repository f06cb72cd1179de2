package domain

import (
	"errors"
	"fmt"
	"sort"
)

const (
	LabelNLP        = "NLP"
	LabelWUDAP      = "WUDAP"
	LabelEthics     = "ETHICS"
	LabelEnviro     = "ENVIRO"
	LabelOperations = "OPERATIONS"
	LabelNone       = "none"

	// Marked is the only value that counts as an applied label.
	Marked = "yes"
)

// LabelColumns is the canonical column order of a label record.
var LabelColumns = []string{LabelNLP, LabelWUDAP, LabelEthics, LabelEnviro, LabelOperations, LabelNone}

// SubstantiveLabels are the categories that may be combined with each other.
var SubstantiveLabels = LabelColumns[:len(LabelColumns)-1]

var ErrUnknownLabel = errors.New("unknown label")

// LabelRecord maps a label column to "yes" or "".
type LabelRecord map[string]string

// LabelSet holds one record per document key.
type LabelSet map[string]LabelRecord

func NewLabelRecord() LabelRecord {
	rec := make(LabelRecord, len(LabelColumns))
	for _, col := range LabelColumns {
		rec[col] = ""
	}
	return rec
}

// NoneRecord returns {none: yes} with every substantive label cleared.
func NoneRecord() LabelRecord {
	rec := NewLabelRecord()
	rec[LabelNone] = Marked
	return rec
}

func IsLabel(name string) bool {
	for _, col := range LabelColumns {
		if col == name {
			return true
		}
	}
	return false
}

func (r LabelRecord) Has(label string) bool {
	return r[label] == Marked
}

// HasSubstantive reports whether any of the five substantive labels is set.
func (r LabelRecord) HasSubstantive() bool {
	for _, col := range SubstantiveLabels {
		if r.Has(col) {
			return true
		}
	}
	return false
}

// Active lists the applied labels in canonical order.
func (r LabelRecord) Active() []string {
	var active []string
	for _, col := range LabelColumns {
		if r.Has(col) {
			active = append(active, col)
		}
	}
	return active
}

// Clone returns a normalized copy holding exactly the canonical columns.
func (r LabelRecord) Clone() LabelRecord {
	out := NewLabelRecord()
	for _, col := range LabelColumns {
		if r.Has(col) {
			out[col] = Marked
		}
	}
	return out
}

// Toggle returns the record after the reviewer presses the button for label.
// Pressing an active label clears it. Selecting none clears everything else;
// selecting a substantive label clears none and leaves the other substantive
// labels as they were.
func (r LabelRecord) Toggle(label string) (LabelRecord, error) {
	if !IsLabel(label) {
		return nil, fmt.Errorf("toggle %q: %w", label, ErrUnknownLabel)
	}
	next := r.Clone()
	switch {
	case next.Has(label):
		next[label] = ""
	case label == LabelNone:
		next = NoneRecord()
	default:
		next[LabelNone] = ""
		next[label] = Marked
	}
	return next, nil
}

// Record returns the stored record for key, or an empty one.
func (s LabelSet) Record(key string) LabelRecord {
	if rec, ok := s[key]; ok {
		return rec.Clone()
	}
	return NewLabelRecord()
}

// Keys returns the document keys in sort order.
func (s LabelSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s LabelSet) Clone() LabelSet {
	out := make(LabelSet, len(s))
	for k, rec := range s {
		out[k] = rec.Clone()
	}
	return out
}
