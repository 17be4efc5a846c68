package loader

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"

	"github.com/poiesic/kbembed/core"
)

const originalURLPrefix = "**original url**:"

// ParseMarkdown reads a crawled markdown page.
//
// The first line starting with "# " is the title and the first
// "**Original URL**:" line is the source URL; both lines are removed from
// the body. A page without a title line is titled after name, minus its
// extension.
func ParseMarkdown(name string, r io.Reader) (*core.Document, error) {
	doc := &core.Document{}
	var body strings.Builder

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case doc.Title == "" && strings.HasPrefix(line, "# "):
			doc.Title = strings.TrimSpace(line[2:])
		case doc.SourceURL == "" && strings.HasPrefix(strings.ToLower(line), originalURLPrefix):
			doc.SourceURL = strings.TrimSpace(line[len(originalURLPrefix):])
		default:
			body.WriteString(line)
			body.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if doc.Title == "" {
		base := filepath.Base(name)
		doc.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	doc.RawText = strings.TrimSpace(body.String())
	return doc, nil
}

// LoadMarkdownDir parses every *.md file directly inside dir, in name order.
// The retrieval time of each document is the file's modification time.
func LoadMarkdownDir(dir string) ([]*core.Document, error) {
	return loadDir(dir, ".md", func(path string, r io.Reader) (*core.Document, error) {
		return ParseMarkdown(path, r)
	})
}
