package preview

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHTML(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestInjectNoIndex(t *testing.T) {
	dir := t.TempDir()
	writeHTML(t, dir, "index.html", `<html><head><title>Docs</title></head><body>hi</body></html>`)
	writeHTML(t, dir, "api/ref.html", `<html><head></head><body></body></html>`)
	writeHTML(t, dir, "style.css", `body { color: red }`)

	changed, err := InjectNoIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	for _, name := range []string{"index.html", "api/ref.html"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Contains(t, string(data), `<meta name="robots" content="noindex"`)
	}

	// Non-HTML files are untouched.
	css, err := os.ReadFile(filepath.Join(dir, "style.css"))
	require.NoError(t, err)
	assert.Equal(t, "body { color: red }", string(css))
}

func TestInjectNoIndexIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeHTML(t, dir, "index.html", `<html><head><title>Docs</title></head><body></body></html>`)

	changed, err := InjectNoIndex(dir)
	require.NoError(t, err)
	require.Equal(t, 1, changed)

	changed, err = InjectNoIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	data, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "noindex"))
}

func TestInjectNoIndexPreservesExistingRobotsTag(t *testing.T) {
	dir := t.TempDir()
	writeHTML(t, dir, "index.html",
		`<html><head><meta name="robots" content="noindex, nofollow"></head><body></body></html>`)

	changed, err := InjectNoIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}

func TestInjectNoIndexFragmentInput(t *testing.T) {
	// Generators sometimes emit documents without an explicit head element;
	// the parser synthesizes one.
	dir := t.TempDir()
	writeHTML(t, dir, "bare.html", `<p>just a paragraph</p>`)

	changed, err := InjectNoIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	data, err := os.ReadFile(filepath.Join(dir, "bare.html"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "noindex")
}
