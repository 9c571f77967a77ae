// Package sitegen builds the documentation HTML tree for a pipeline run.
//
// When the configured generator binary (sphinx-build, hugo, mkdocs, ...) is
// available on PATH it is invoked against the source directory. Otherwise the
// builtin renderer walks the markdown sources and produces a minimal static
// site, so pipelines stay runnable on hosts without a documentation toolchain.
package sitegen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/docspipe/internal/logfields"
)

// Builder produces an HTML tree from a documentation source directory.
type Builder struct {
	Generator string   // generator binary name; empty disables the external path
	Args      []string // extra generator arguments
	Env       []string // additional environment for the generator process
}

// Build renders srcDir into outDir and verifies the result. The output
// contract is the fixed path consumed by the upload and deploy steps, so a
// build that produces no index.html is a failure even if the generator
// exited zero.
func (b *Builder) Build(ctx context.Context, srcDir, outDir string) error {
	if st, err := os.Stat(srcDir); err != nil || !st.IsDir() {
		return fmt.Errorf("docs source %s is not a directory", srcDir)
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return fmt.Errorf("create docs output: %w", err)
	}

	if b.shouldRunGenerator() {
		if err := b.runGenerator(ctx, srcDir, outDir); err != nil {
			return err
		}
	} else {
		if b.Generator != "" {
			slog.Warn("Generator binary not found, using builtin renderer", slog.String("generator", b.Generator))
		}
		if err := renderFallback(ctx, srcDir, outDir); err != nil {
			return err
		}
	}

	return verifyOutput(outDir)
}

// shouldRunGenerator reports whether the external generator binary is usable.
func (b *Builder) shouldRunGenerator() bool {
	if b.Generator == "" {
		return false
	}
	_, err := exec.LookPath(b.Generator)
	return err == nil
}

// runGenerator executes the external generator with source and output
// directories appended, the convention shared by sphinx-build and mkdocs.
func (b *Builder) runGenerator(ctx context.Context, srcDir, outDir string) error {
	args := append([]string{}, b.Args...)
	args = append(args, srcDir, outDir)
	cmd := exec.CommandContext(ctx, b.Generator, args...) // #nosec G204 - generator comes from the pipeline definition
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), b.Env...)
	slog.Info("Running documentation generator",
		slog.String("generator", b.Generator),
		logfields.Path(srcDir))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", b.Generator, err)
	}
	return nil
}

// verifyOutput is the post-build smoke test: the output tree must contain an
// index.html and at least one HTML file.
func verifyOutput(outDir string) error {
	htmlCount := 0
	hasIndex := false
	err := filepath.Walk(outDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".html") {
			htmlCount++
			if filepath.Base(path) == "index.html" {
				hasIndex = true
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("inspect docs output: %w", err)
	}
	if htmlCount == 0 {
		return fmt.Errorf("docs build produced no HTML files in %s", outDir)
	}
	if !hasIndex {
		return fmt.Errorf("docs build produced no index.html in %s", outDir)
	}
	slog.Info("Documentation build verified", slog.Int("html_files", htmlCount), logfields.Path(outDir))
	return nil
}
