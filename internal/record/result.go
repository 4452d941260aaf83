package record

// ProviderResult is the raw outcome of asking one provider about one query.
// It is immutable once produced; the orchestrator and the cache pass copies
// of the same value around.
type ProviderResult struct {
	Provider  string                `json:"provider"`
	Fields    map[string]FieldValue `json:"fields,omitempty"`
	Succeeded bool                  `json:"succeeded"`
	Err       string                `json:"error,omitempty"`
	Skipped   bool                  `json:"skipped,omitempty"`
	FromCache bool                  `json:"from_cache,omitempty"`
}

// Field returns the named field value and whether it is present and
// non-empty. Failed or skipped results contribute no fields.
func (r ProviderResult) Field(name string) (FieldValue, bool) {
	if !r.Succeeded {
		return FieldValue{}, false
	}
	v, ok := r.Fields[name]
	if !ok || v.IsEmpty() {
		return FieldValue{}, false
	}
	return v, true
}

// FieldResolution is the reconciled answer for a single field: the chosen
// value, how confident the engine is in it, and which providers backed it.
type FieldResolution struct {
	Field      string     `json:"field"`
	Value      FieldValue `json:"value"`
	Confidence float64    `json:"confidence"`
	Sources    []string   `json:"sources,omitempty"`
}

// ReconciledRecord is the merged best-guess record for one query.
// QualityScore is a weighted average over resolved fields only; a record
// where every provider failed has no fields and a score of zero.
type ReconciledRecord struct {
	Fields       map[string]FieldResolution `json:"fields"`
	QualityScore float64                    `json:"quality_score"`
}
