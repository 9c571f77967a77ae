package sitegen

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// renderFallback walks the markdown sources and emits a minimal HTML tree.
// Non-markdown files are copied through as static assets.
func renderFallback(ctx context.Context, srcDir, outDir string) error {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	titler := cases.Title(language.English)

	var pages []string
	err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && rel != "." {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(outDir, rel), 0o750)
		}
		if !isMarkdown(path) {
			return copyAsset(path, filepath.Join(outDir, rel))
		}

		source, err := os.ReadFile(path) // #nosec G304 - path from walked source tree
		if err != nil {
			return err
		}
		var body bytes.Buffer
		if err := md.Convert(source, &body); err != nil {
			return fmt.Errorf("render %s: %w", rel, err)
		}

		outRel := htmlName(rel)
		title := pageTitle(titler, rel)
		page := renderPage(title, body.Bytes())
		if err := os.MkdirAll(filepath.Dir(filepath.Join(outDir, outRel)), 0o750); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(outDir, outRel), page, 0o600); err != nil {
			return err
		}
		pages = append(pages, outRel)
		return nil
	})
	if err != nil {
		return err
	}

	// Ensure the site has a root index; generate a listing when the sources
	// did not include one.
	if _, err := os.Stat(filepath.Join(outDir, "index.html")); os.IsNotExist(err) {
		return writeIndex(outDir, titler, pages)
	}
	return nil
}

func isMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}

// htmlName maps README.md to index.html and foo.md to foo.html.
func htmlName(rel string) string {
	dir, base := filepath.Split(rel)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.EqualFold(stem, "README") {
		stem = "index"
	}
	return filepath.Join(dir, stem+".html")
}

// pageTitle derives a display title from the file path.
func pageTitle(titler cases.Caser, rel string) string {
	base := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return titler.String(base)
}

func renderPage(title string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	buf.WriteString("<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&buf, "<title>%s</title>\n", html.EscapeString(title))
	buf.WriteString("</head>\n<body>\n")
	buf.Write(body)
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes()
}

func writeIndex(outDir string, titler cases.Caser, pages []string) error {
	sort.Strings(pages)
	var buf bytes.Buffer
	buf.WriteString("<ul>\n")
	for _, p := range pages {
		fmt.Fprintf(&buf, "<li><a href=\"%s\">%s</a></li>\n", p, html.EscapeString(pageTitle(titler, p)))
	}
	buf.WriteString("</ul>\n")
	return os.WriteFile(filepath.Join(outDir, "index.html"), renderPage("Documentation", buf.Bytes()), 0o600)
}

func copyAsset(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - path from walked source tree
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	out, err := os.Create(dst) // #nosec G304 - internal destination
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
