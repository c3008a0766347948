package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestone-kb/lodestone/pkg/version"
)

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := NewRootCmd()

	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"search", "ingest", "status", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestRootCmd_VersionFlag(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "lodestone version "+version.Version)
}

func TestVersionCmd_Short(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--short"})

	require.NoError(t, root.Execute())
	assert.Equal(t, version.Version+"\n", out.String())
}

func TestVersionCmd_JSON(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--json"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"version"`)
	assert.Contains(t, out.String(), `"go_version"`)
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"search"})

	assert.Error(t, root.Execute())
}
