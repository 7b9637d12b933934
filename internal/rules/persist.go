package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Veraticus/autobooks/internal/model"
)

const (
	fileVersion = 1
	tempPattern = ".rules-*.tmp"
)

// ruleFile is the on-disk layout: indented JSON, rules sorted by vendor key.
type ruleFile struct {
	Rules   []model.Rule `json:"rules"`
	Version int          `json:"version"`
}

func encodeRules(rules map[string]model.Rule) ([]byte, error) {
	out := ruleFile{Version: fileVersion, Rules: make([]model.Rule, 0, len(rules))}
	for _, r := range rules {
		out.Rules = append(out.Rules, r)
	}
	sort.Slice(out.Rules, func(i, j int) bool {
		return out.Rules[i].VendorKey < out.Rules[j].VendorKey
	})

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}
	return append(data, '\n'), nil
}

func decodeRules(data []byte) (map[string]model.Rule, error) {
	var in ruleFile
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	if in.Version > fileVersion {
		return nil, fmt.Errorf("rules file version %d is newer than supported version %d", in.Version, fileVersion)
	}

	rules := make(map[string]model.Rule, len(in.Rules))
	for _, r := range in.Rules {
		key := model.NormalizeVendor(r.VendorKey)
		if key == "" {
			key = model.NormalizeVendor(r.Vendor)
		}
		if key == "" {
			continue
		}
		r.VendorKey = key
		// A later entry for the same key replaces the earlier one.
		rules[key] = r
	}
	return rules, nil
}

// writeFileAtomic writes data to a temp file next to path, syncs it and
// renames it over path, so readers only ever see a complete file.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace rules file: %w", err)
	}

	syncDir(dir)
	return nil
}

// syncDir flushes the rename. Some platforms cannot fsync a directory, which is ignored.
func syncDir(dir string) {
	d, err := os.Open(dir) // #nosec G304 -- directory of the configured rules path
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// removeStaleTemps deletes temp files left behind by an interrupted write.
func removeStaleTemps(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, tempPattern))
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove stale temp file %s: %w", m, err)
		}
		removed = append(removed, strings.TrimPrefix(m, dir+string(filepath.Separator)))
	}
	return removed, nil
}
