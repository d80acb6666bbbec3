package options

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExpandVars(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "HOME_DIR" {
			return "/home/me", true
		}
		return "", false
	}
	assert.Equal(t, "/home/me/x", ExpandVars("$HOME_DIR/x", lookup))
	assert.Equal(t, "/home/me/x", ExpandVars("${HOME_DIR}/x", lookup))
	assert.Equal(t, "$MISSING and ${ALSO_MISSING}", ExpandVars("$MISSING and ${ALSO_MISSING}", lookup))
	assert.Equal(t, "no vars", ExpandVars("no vars", lookup))
}

func TestReadFileWithComments(t *testing.T) {
	t.Setenv("SUBTEST_OPT", "--fast")
	dir := t.TempDir()
	path := writeFile(t, dir, "hello.compopts", "# comment\n\n--a\n  # indented comment\n$SUBTEST_OPT #fast.good\n   \n")

	lines, err := ReadFileWithComments(path, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"--a", "--fast #fast.good"}, lines)

	lines, err = ReadFileWithComments(path, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"--a", "  # indented comment", "--fast #fast.good"}, lines)

	_, err = ReadFileWithComments(filepath.Join(dir, "missing"), true)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadInteger(t *testing.T) {
	dir := t.TempDir()

	n, err := ReadInteger(writeFile(t, dir, "ok", "# seconds\n 45 \n"))
	require.NoError(t, err)
	assert.Equal(t, 45, n)

	_, err = ReadInteger(writeFile(t, dir, "bad", "forty\n"))
	assert.ErrorIs(t, err, ErrInvalidInteger)

	_, err = ReadInteger(writeFile(t, dir, "empty", "# nothing\n"))
	assert.ErrorIs(t, err, ErrNoValue)
}

func TestReadWords(t *testing.T) {
	dir := t.TempDir()
	words, err := ReadWords(writeFile(t, dir, "LASTCOMPOPTS", "  -a -b\n-c\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"-a", "-b", "-c"}, words)

	line, err := ReadFirstLine(writeFile(t, dir, "x.future", "  bug: wrong answer \nmore\n"))
	require.NoError(t, err)
	assert.Equal(t, "bug: wrong answer", line)
}

func TestParsePredicate(t *testing.T) {
	tests := []struct {
		output   string
		expected bool
		err      bool
	}{
		{"True\n", true, false},
		{"False\n", false, false},
		{"1", true, false},
		{"0\n", false, false},
		{"2", false, true},
		{"-1", false, true},
		{"42", false, true},
		{"yes", false, true},
		{"", false, true},
	}
	for _, tt := range tests {
		got, err := ParsePredicate(tt.output)
		if tt.err {
			assert.ErrorIs(t, err, ErrPredicateOutput, "output %q", tt.output)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got, "output %q", tt.output)
	}
}
