package sources

import (
	"context"

	"github.com/mkoivisto/alexandria/internal/record"
)

// Original is the caller-supplied pseudo-source: it surfaces whatever the
// query itself already carried as the lowest-priority candidate values, so
// existing data competes in reconciliation instead of being overwritten
// blindly. It never touches the network and is neither cached nor
// rate-limited.
type Original struct{}

// NewOriginal creates the caller-supplied pseudo-source.
func NewOriginal() *Original { return &Original{} }

// Name implements Source.
func (o *Original) Name() string { return "original" }

// Fetch implements Source.
func (o *Original) Fetch(_ context.Context, q record.Query) (map[string]record.FieldValue, error) {
	fields := make(map[string]record.FieldValue)
	if q.Title != "" {
		fields[record.FieldTitle] = record.StringValue(q.Title)
	}
	if q.Author != "" {
		fields[record.FieldAuthor] = record.StringValue(q.Author)
	}
	return fields, nil
}
