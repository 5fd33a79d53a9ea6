package stamper_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/repo_modifier/stamper"
)

// writeTemp creates a temporary file with content and
// returns its path.
func writeTemp(
	tb testing.TB,
	dir string,
	name string,
	content string,
) string {
	tb.Helper()

	pa := filepath.Join(dir, name)
	require.NoError(
		tb,
		os.WriteFile(pa, []byte(content), 0o600),
	)

	return pa
}

func TestStamp_substitutes_variables(t *testing.T) {
	t.Parallel()

	got := stamper.Stamp(
		"bump {FILES} on {BASE_BRANCH}",
		map[string]any{
			"FILES":       "a.txt b.txt",
			"BASE_BRANCH": "main",
		},
	)

	assert.Equal(t, "bump a.txt b.txt on main", got)
}

func TestStamp_missing_variable_preserved(t *testing.T) {
	t.Parallel()

	got := stamper.Stamp("no {SUCH_VAR} here", nil)

	assert.Equal(t, "no {SUCH_VAR} here", got)
}

func TestStamp_empty_format(t *testing.T) {
	t.Parallel()

	assert.Empty(t, stamper.Stamp("", map[string]any{"A": "b"}))
}

func TestStamp_with_loaded_files(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	sf1 := writeTemp(t, dir, "s1.txt", "K1 v1\nVER 1.0\n")
	sf2 := writeTemp(t, dir, "s2.txt", "K2 v2\nVER 2.0\n")

	stamps, err := stamper.LoadStamps([]string{sf1, sf2})
	require.NoError(t, err)

	got := stamper.Stamp("{K1}-{K2} version={VER} {UNKNOWN}", stamps)

	assert.Equal(t, "v1-v2 version=2.0 {UNKNOWN}", got)
}

func TestLoadStamps_value_with_spaces(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	sf := writeTemp(
		t, dir, "status.txt",
		"MSG hello world from CI\n",
	)

	stamps, err := stamper.LoadStamps([]string{sf})

	require.NoError(t, err)
	assert.Equal(t, "hello world from CI", stamps["MSG"])
}

func TestLoadStamps_nil_files(t *testing.T) {
	t.Parallel()

	stamps, err := stamper.LoadStamps(nil)

	require.NoError(t, err)
	assert.Empty(t, stamps)
}

func TestLoadStamps_skips_malformed_lines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	sf := writeTemp(
		t, dir, "status.txt",
		"GOOD value\nBADLINE\n\nALSO_GOOD val2\n",
	)

	stamps, err := stamper.LoadStamps([]string{sf})

	require.NoError(t, err)
	assert.Len(t, stamps, 2)
	assert.Equal(t, "value", stamps["GOOD"])
	assert.Equal(t, "val2", stamps["ALSO_GOOD"])
}

func TestLoadStamps_missing_file(t *testing.T) {
	t.Parallel()

	_, err := stamper.LoadStamps(
		[]string{"/nonexistent/file.txt"},
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading stamps")
}

func FuzzStamp(f *testing.F) {
	f.Add("Hello {name}!", "name", "World")
	f.Add("{a}{b}", "a", "x")
	f.Add("no tags here", "key", "val")
	f.Add("{", "k", "v")
	f.Add("}", "k", "v")
	f.Add("{key}", "key", "")
	f.Add("", "key", "val")
	f.Add("{a} and {b}", "a", "{nested}")

	f.Fuzz(func(
		t *testing.T,
		format string,
		key string,
		val string,
	) {
		// We only verify it does not panic.
		_ = stamper.Stamp(format, map[string]any{key: val})
	})
}
