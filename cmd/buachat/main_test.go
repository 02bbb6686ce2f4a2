package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands_Registered(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"reply", "signup", "send", "messages", "login", "test-llm", "parse-signup", "config"} {
		c, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
	for _, flag := range []string{"config", "profile-dir", "headless", "debug", "log-level"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestParseSignup_Argument(t *testing.T) {
	out, err := run(t, "", "parse-signup", `Football\n1) Bob\n2)\n`, "--name", "Carl")
	require.NoError(t, err)

	assert.Contains(t, out, "2 slots, 1 filled")
	assert.Contains(t, out, "1)   Bob")
	assert.Contains(t, out, "filled at position 2")
	assert.Contains(t, out, "Football\n1) Bob\n2) Carl\n")
}

func TestParseSignup_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("1. Ann\n2. Carl\n"), 0o644))

	out, err := run(t, "", "parse-signup", "-f", path, "--name", "carl")
	require.NoError(t, err)
	assert.Contains(t, out, "already present")
}

func TestParseSignup_Stdin(t *testing.T) {
	out, err := run(t, "just chatting\n", "parse-signup")
	require.NoError(t, err)
	assert.Contains(t, out, "No numbered list found.")
}

func TestParseSignup_Placeholder(t *testing.T) {
	out, err := run(t, "1) Ann\n2) _\n", "parse-signup", "--name", "Carl", "--placeholder", "_")
	require.NoError(t, err)
	assert.Contains(t, out, "1) Ann\n2) Carl\n")
}

func TestConfigCommand_MasksKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BUACHAT_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "AIzaSyExampleKey1234")

	out, err := run(t, "", "config", "--log-level", "debug", "--headless")
	require.NoError(t, err)

	assert.Contains(t, out, "api_key: AIza****1234")
	assert.Contains(t, out, "log_level: debug")
	assert.Contains(t, out, "headless: true")
	assert.NotContains(t, out, "AIzaSyExampleKey1234")
}

func TestConfigCommand_InvalidFlag(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := run(t, "", "config", "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestReply_RequiresAPIKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"BUACHAT_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY"} {
		t.Setenv(k, "")
	}

	_, err := run(t, "", "reply", "Mum")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestSignup_RequiresName(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"BUACHAT_DISPLAY_NAME", "SIGNUP_MY_NAME"} {
		t.Setenv(k, "")
	}

	_, err := run(t, "", "signup", "Football")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestReadInput_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o644))

	got, err := readInput(strings.NewReader("from stdin"), path, []string{"from arg"})
	require.NoError(t, err)
	assert.Equal(t, "from file", got)

	got, err = readInput(strings.NewReader("from stdin"), "", []string{`a\nb`})
	require.NoError(t, err)
	assert.Equal(t, "a\nb", got)

	got, err = readInput(strings.NewReader("from stdin"), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	_, err = readInput(nil, filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}
