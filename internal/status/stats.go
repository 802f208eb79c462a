package status

import (
	"github.com/tidwall/gjson"
)

// Field priority for retrieval collection statistics; the first present field wins.
var (
	countFields   = []string{"num_documents", "documents", "count"}
	updatedFields = []string{"updated_at", "generated_at", "created_at"}
)

// CollectionStats is the normalized view of a rag_stats payload.
type CollectionStats struct {
	Count   string `json:"count"`   // document count as text, Placeholder when absent
	Updated string `json:"updated"` // raw timestamp text, Placeholder when absent

	updated gjson.Result
}

// FormattedUpdated renders the timestamp for display.
func (s CollectionStats) FormattedUpdated() string {
	if !present(s.updated) {
		return Placeholder
	}
	return FormatTimestamp(s.updated.Value())
}

// ExtractStats normalizes a stats payload. Missing fields become Placeholder.
func ExtractStats(data []byte) CollectionStats {
	return statsFromResult(gjson.ParseBytes(data))
}

func statsFromResult(r gjson.Result) CollectionStats {
	stats := CollectionStats{Count: Placeholder, Updated: Placeholder}
	if v, ok := firstPresent(r, countFields); ok {
		stats.Count = v.String()
	}
	if v, ok := firstPresent(r, updatedFields); ok {
		stats.Updated = v.String()
		stats.updated = v
	}
	return stats
}

func firstPresent(r gjson.Result, fields []string) (gjson.Result, bool) {
	for _, f := range fields {
		if v := r.Get(f); present(v) {
			return v, true
		}
	}
	return gjson.Result{}, false
}

// present treats JSON null the same as a missing key.
func present(v gjson.Result) bool {
	return v.Exists() && v.Type != gjson.Null
}
