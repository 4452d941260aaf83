package record

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestProviderResultField(t *testing.T) {
	res := ProviderResult{
		Provider:  "loc",
		Succeeded: true,
		Fields: map[string]FieldValue{
			FieldTitle:  StringValue("Whispers"),
			FieldAuthor: StringValue(""),
		},
	}

	v, ok := res.Field(FieldTitle)
	assert.True(t, ok)
	assert.Equal(t, "Whispers", v.Text())

	_, ok = res.Field(FieldAuthor)
	assert.False(t, ok)

	_, ok = res.Field(FieldGenres)
	assert.False(t, ok)
}

func TestProviderResultFieldOnFailure(t *testing.T) {
	// A failed result contributes nothing even if fields are populated,
	// e.g. a cached entry written before the provider degraded.
	res := ProviderResult{
		Provider: "loc",
		Err:      "loc: HTTP 500",
		Fields:   map[string]FieldValue{FieldTitle: StringValue("Whispers")},
	}

	_, ok := res.Field(FieldTitle)
	assert.False(t, ok)
}
