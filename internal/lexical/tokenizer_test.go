package lexical

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple words", "quick brown fox", []string{"quick", "brown", "fox"}},
		{"punctuation stripped", "hello, world! (again)", []string{"hello", "world", "again"}},
		{"camelCase split", "getUserById", []string{"get", "user", "by", "id"}},
		{"snake_case split", "user_account_id", []string{"user", "account", "id"}},
		{"acronym run", "HTTPHandler", []string{"http", "handler"}},
		{"short tokens dropped", "a b cd", []string{"cd"}},
		{"empty", "", nil},
		{"only punctuation", "!!! ...", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.input))
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	t.Run("drops stop words", func(t *testing.T) {
		got := ExtractKeywords("how to configure the scheduler")
		assert.Equal(t, []string{"configure", "scheduler"}, got)
	})

	t.Run("falls back to plain tokens when all are stop words", func(t *testing.T) {
		got := ExtractKeywords("what is this")
		assert.Equal(t, []string{"what", "is", "this"}, got)
	})

	t.Run("empty query yields nothing", func(t *testing.T) {
		assert.Nil(t, ExtractKeywords("  "))
	})
}
