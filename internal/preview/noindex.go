// Package preview prepares and publishes pull-request preview copies of the
// documentation set.
package preview

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/docspipe/internal/logfields"
)

// InjectNoIndex rewrites every HTML file under dir so search engines skip the
// preview copy: a <meta name="robots" content="noindex"> tag is inserted into
// the document head. Files that already carry the tag are left untouched, so
// the operation is idempotent.
func InjectNoIndex(dir string) (int, error) {
	changed := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".html") {
			return nil
		}
		did, err := injectFile(path)
		if err != nil {
			return fmt.Errorf("inject noindex into %s: %w", path, err)
		}
		if did {
			changed++
		}
		return nil
	})
	if err != nil {
		return changed, err
	}
	slog.Info("Injected noindex meta tags", slog.Int("files", changed), logfields.Path(dir))
	return changed, nil
}

func injectFile(path string) (bool, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path from walked artifact tree
	if err != nil {
		return false, err
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return false, err
	}

	head := findElement(doc, "head")
	if head == nil {
		// html.Parse synthesizes head for any input; this is defensive only.
		return false, fmt.Errorf("document has no head element")
	}
	if hasNoIndex(head) {
		return false, nil
	}

	meta := &html.Node{
		Type: html.ElementNode,
		Data: "meta",
		Attr: []html.Attribute{
			{Key: "name", Val: "robots"},
			{Key: "content", Val: "noindex"},
		},
	}
	if head.FirstChild != nil {
		head.InsertBefore(meta, head.FirstChild)
	} else {
		head.AppendChild(meta)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return false, err
	}
	mode := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	return true, os.WriteFile(path, buf.Bytes(), mode)
}

// findElement returns the first element node with the given tag name.
func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// hasNoIndex reports whether head already contains a robots noindex meta tag.
func hasNoIndex(head *html.Node) bool {
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "meta" {
			continue
		}
		var name, content string
		for _, a := range c.Attr {
			switch a.Key {
			case "name":
				name = strings.ToLower(a.Val)
			case "content":
				content = strings.ToLower(a.Val)
			}
		}
		if name == "robots" && strings.Contains(content, "noindex") {
			return true
		}
	}
	return false
}
