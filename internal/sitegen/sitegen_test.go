package sitegen

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestBuildFallbackRendersMarkdown(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "html")
	writeSource(t, src, "README.md", "# Project Docs\n\nHello **world**.")
	writeSource(t, src, "guides/setup.md", "# Setup\n\n- step one\n- step two")
	writeSource(t, src, "logo.png", "binary-ish")

	b := &Builder{}
	require.NoError(t, b.Build(context.Background(), src, out))

	// README.md becomes the root index.
	index, err := os.ReadFile(filepath.Join(out, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "<strong>world</strong>")
	assert.Contains(t, string(index), "<title>Readme</title>")

	setup, err := os.ReadFile(filepath.Join(out, "guides", "setup.html"))
	require.NoError(t, err)
	assert.Contains(t, string(setup), "<li>step one</li>")

	// Static assets are copied through.
	asset, err := os.ReadFile(filepath.Join(out, "logo.png"))
	require.NoError(t, err)
	assert.Equal(t, "binary-ish", string(asset))
}

func TestBuildFallbackGeneratesListingIndex(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "html")
	writeSource(t, src, "usage.md", "# Usage")
	writeSource(t, src, "api-reference.md", "# API")

	b := &Builder{}
	require.NoError(t, b.Build(context.Background(), src, out))

	index, err := os.ReadFile(filepath.Join(out, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), `href="api-reference.html"`)
	assert.Contains(t, string(index), "Api Reference")
	assert.Contains(t, string(index), `href="usage.html"`)
}

func TestBuildFallbackRendersGFMTables(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "html")
	writeSource(t, src, "README.md", "| a | b |\n|---|---|\n| 1 | 2 |\n")

	b := &Builder{}
	require.NoError(t, b.Build(context.Background(), src, out))

	index, err := os.ReadFile(filepath.Join(out, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "<table>")
}

func TestBuildFallbackSkipsHiddenDirs(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "html")
	writeSource(t, src, "README.md", "# Docs")
	writeSource(t, src, ".git/internal.md", "# Not docs")

	b := &Builder{}
	require.NoError(t, b.Build(context.Background(), src, out))

	_, err := os.Stat(filepath.Join(out, ".git"))
	assert.True(t, os.IsNotExist(err))
}

func TestBuildRejectsMissingSource(t *testing.T) {
	b := &Builder{}
	err := b.Build(context.Background(), filepath.Join(t.TempDir(), "missing"), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestBuildFailsWithoutHTMLOutput(t *testing.T) {
	src := t.TempDir()
	writeSource(t, src, "notes.txt", "plain text only")

	b := &Builder{}
	err := b.Build(context.Background(), src, filepath.Join(t.TempDir(), "html"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no HTML files")
}

func TestBuildFallsBackWhenGeneratorMissing(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "html")
	writeSource(t, src, "README.md", "# Docs")

	b := &Builder{Generator: "definitely-not-a-real-generator-binary"}
	require.NoError(t, b.Build(context.Background(), src, out))

	_, err := os.Stat(filepath.Join(out, "index.html"))
	assert.NoError(t, err)
}

func TestHTMLName(t *testing.T) {
	assert.Equal(t, "index.html", htmlName("README.md"))
	assert.Equal(t, filepath.Join("guides", "setup.html"), htmlName(filepath.Join("guides", "setup.md")))
	assert.Equal(t, filepath.Join("guides", "index.html"), htmlName(filepath.Join("guides", "readme.md")))
}

func TestVerifyOutputRequiresIndex(t *testing.T) {
	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, "page.html"), []byte("<html></html>"), 0o600))

	err := verifyOutput(out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index.html")
}
