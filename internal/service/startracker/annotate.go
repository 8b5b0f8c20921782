package startracker

import (
	"encoding/json"
	"strconv"
)

// Record is one match record as returned by the match backend.
type Record map[string]any

// ID returns the record's identity under field. Numeric IDs are rendered
// as the backend sent them.
func (r Record) ID(field string) (string, bool) {
	switch v := r[field].(type) {
	case string:
		return v, v != ""
	case json.Number:
		return v.String(), v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

// Annotate returns copies of records with flag set to whether each
// record's ID is in ids. Records without an ID are flagged false. The
// input is left untouched, so applying the same set twice is a no-op.
func Annotate(records []Record, idField string, ids []string, flag string) []Record {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	out := make([]Record, len(records))
	for i, rec := range records {
		next := make(Record, len(rec)+1)
		for k, v := range rec {
			next[k] = v
		}
		id, ok := rec.ID(idField)
		_, member := set[id]
		next[flag] = ok && member
		out[i] = next
	}
	return out
}
