package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSONL(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadRecords(t *testing.T) {
	path := writeJSONL(t, `{"id":"doc-1","text":"first document","metadata":{"team":"platform"}}
{"id":"doc-2","text":"second document"}

{"id":"doc-3","text":"third document"}
`)

	nodes, err := readRecords(path)
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	assert.Equal(t, "doc-1", nodes[0].ID)
	assert.Equal(t, "first document", nodes[0].Text)
	assert.Equal(t, map[string]string{"team": "platform"}, nodes[0].Metadata)
	assert.Equal(t, "doc-2", nodes[1].ID)
	assert.Nil(t, nodes[1].Metadata)
	assert.Equal(t, "doc-3", nodes[2].ID)
}

func TestReadRecords_MissingID(t *testing.T) {
	path := writeJSONL(t, `{"text":"no id here"}`)

	_, err := readRecords(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id")
}

func TestReadRecords_InvalidJSON(t *testing.T) {
	path := writeJSONL(t, `{"id":"doc-1","text":"ok"}
not json at all`)

	_, err := readRecords(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2:")
}

func TestReadRecords_FileNotFound(t *testing.T) {
	_, err := readRecords(filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.Error(t, err)
}
