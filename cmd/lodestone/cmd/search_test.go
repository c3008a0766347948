package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-kb/lodestone/internal/engine"
	"github.com/lodestone-kb/lodestone/internal/node"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    node.Filter
		wantErr bool
	}{
		{name: "empty", pairs: nil, want: nil},
		{
			name:  "single pair",
			pairs: []string{"team=platform"},
			want:  node.Filter{"team": "platform"},
		},
		{
			name:  "multiple pairs",
			pairs: []string{"team=platform", "lang=en"},
			want:  node.Filter{"team": "platform", "lang": "en"},
		},
		{
			name:  "value containing equals",
			pairs: []string{"expr=a=b"},
			want:  node.Filter{"expr": "a=b"},
		},
		{name: "missing value separator", pairs: []string{"team"}, wantErr: true},
		{name: "empty key", pairs: []string{"=value"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFilter(tt.pairs)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSearchType(t *testing.T) {
	tests := []struct {
		input   string
		want    engine.SearchType
		wantErr bool
	}{
		{input: "hybrid", want: engine.SearchTypeHybrid},
		{input: "HYBRID", want: engine.SearchTypeHybrid},
		{input: "", want: engine.SearchTypeHybrid},
		{input: "vector", want: engine.SearchTypeVector},
		{input: "keyword", want: engine.SearchTypeKeyword},
		{input: "semantic", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseSearchType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, snippet("a\nb", 3))
	assert.Equal(t, []string{"a", "b", "c"}, snippet("a\nb\nc\nd", 3))
	assert.Equal(t, []string{"a"}, snippet("a\n\n\n", 3))
	assert.Empty(t, snippet("", 3))
}
