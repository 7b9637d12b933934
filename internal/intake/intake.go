// Package intake loads extracted documents from JSON exports and OFX/QFX statements.
package intake

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/autobooks/internal/model"
)

// Item is one loaded document. Err is set when the document itself is
// malformed (for example an unparseable amount); Fields still carries
// whatever could be read.
type Item struct {
	Err    error
	Fields model.ExtractedFields
}

// Supported reports whether path has an extension Load understands.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".ofx", ".qfx":
		return true
	}
	return false
}

// Load reads a file or walks a directory. Unsupported files inside a
// directory are skipped; an unsupported file named directly is an error.
func Load(ctx context.Context, path string) ([]Item, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return loadFile(ctx, path)
	}

	var items []Item
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !Supported(p) {
			slog.Debug("Skipping unsupported file", "path", p)
			return nil
		}
		loaded, err := loadFile(ctx, p)
		if err != nil {
			return err
		}
		items = append(items, loaded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return items, nil
}

// LoadAll loads every path in order.
func LoadAll(ctx context.Context, paths []string) ([]Item, error) {
	var items []Item
	for _, p := range paths {
		loaded, err := Load(ctx, p)
		if err != nil {
			return nil, err
		}
		items = append(items, loaded...)
	}
	return items, nil
}

func loadFile(ctx context.Context, path string) ([]Item, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var items []Item
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		items, err = ParseJSON(f, path)
	case ".ofx", ".qfx":
		var fields []model.ExtractedFields
		fields, err = NewOFXParser().ParseFile(ctx, f, path)
		for _, fl := range fields {
			items = append(items, Item{Fields: fl})
		}
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	slog.Info("Loaded documents", "path", path, "count", len(items))
	return items, nil
}
