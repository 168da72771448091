package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydb/quarry/internal/query"
)

func TestApplyFilter(t *testing.T) {
	tests := []struct {
		filter string
		want   query.Condition
	}{
		{"status=open", query.Equality{Field: "status", Op: query.OpEq, Value: "open"}},
		{"age>=21", query.Comparison{Field: "age", Op: query.OpGte, Value: 21.0}},
		{"age>5", query.Comparison{Field: "age", Op: query.OpGt, Value: 5.0}},
		{"name~ali", query.Pattern{Field: "name", Op: query.OpContains, Value: "ali", CaseSensitive: true}},
		{"active=true", query.Equality{Field: "active", Op: query.OpEq, Value: true}},
		{"state!=done", query.Equality{Field: "state", Op: query.OpNe, Value: "done"}},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			b, err := applyFilter(query.NewBuilder(), tt.filter)
			require.NoError(t, err)
			q, err := b.Build()
			require.NoError(t, err)
			require.Len(t, q.Conditions, 1)
			assert.Equal(t, tt.want, q.Conditions[0])
		})
	}

	_, err := applyFilter(query.NewBuilder(), "nonsense")
	require.Error(t, err)
}

func TestCoerce(t *testing.T) {
	assert.Equal(t, true, coerce("true"))
	assert.Equal(t, false, coerce("false"))
	assert.Nil(t, coerce("null"))
	assert.Equal(t, 42.0, coerce("42"))
	assert.Equal(t, "open", coerce("open"))
	assert.Equal(t, "10x", coerce("10x"))
}
