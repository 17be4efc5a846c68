package loader

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/poiesic/kbembed/core"
)

// loadDir parses the files of dir with the given extension, in name order.
// Subdirectories are not descended into.
func loadDir(dir, ext string, parse func(path string, r io.Reader) (*core.Document, error)) ([]*core.Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	logger := slog.Default().With("component", "loader")
	docs := make([]*core.Document, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		doc, err := parseFile(path, parse)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		docs = append(docs, doc)
	}

	logger.Debug("loaded documents", "dir", dir, "count", len(docs))
	return docs, nil
}

func parseFile(path string, parse func(path string, r io.Reader) (*core.Document, error)) (*core.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := parse(path, f)
	if err != nil {
		return nil, err
	}
	if info, err := f.Stat(); err == nil {
		doc.RetrievedAt = info.ModTime().UTC()
	}
	return doc, nil
}
