// Package rules owns the durable collection of learned vendor rules.
package rules

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/autobooks/internal/common"
	"github.com/Veraticus/autobooks/internal/model"
)

// Store is a file-backed rule store. Lookups are served from memory; every
// mutation is written to disk through a write-then-rename before it becomes
// visible. Mutations for the same vendor key are serialized, different keys
// only contend for the short file write.
type Store struct {
	rules   map[string]model.Rule
	keys    *keyLocks
	logger  *slog.Logger
	now     func() time.Time
	persist func(path string, data []byte) error
	path    string
	mu      sync.RWMutex
	writeMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for store events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the learn timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads the rule set at path, creating the parent directory if needed.
// A missing file is an empty store. An unreadable or corrupt file is an error:
// silently starting empty would overwrite learned rules on the next write.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: rules path is required", common.ErrMissingConfig)
	}

	s := &Store{
		path:    path,
		rules:   make(map[string]model.Rule),
		keys:    newKeyLocks(),
		logger:  slog.Default(),
		now:     time.Now,
		persist: writeFileAtomic,
	}
	for _, opt := range opts {
		opt(s)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create rules directory: %w", err)
	}

	removed, err := removeStaleTemps(dir)
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		s.logger.Warn("Removed incomplete rule writes", "files", removed)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from configuration
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Info("No rules file yet, starting empty", "path", path)
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	rules, err := decodeRules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.rules = rules

	s.logger.Info("Loaded learned rules", "count", len(rules), "path", path)
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Lookup returns the rule for vendor. Absence is a normal outcome.
func (s *Store) Lookup(vendor string) (*model.Rule, bool) {
	key := model.NormalizeVendor(vendor)
	if key == "" {
		return nil, false
	}

	s.mu.RLock()
	r, ok := s.rules[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	out := r.Clone()
	return &out, true
}

// Learn creates or replaces the rule for vendor, stamps it, resets its
// application counter and persists it before returning. If the write fails
// the previous rule (if any) stays in effect and the error wraps
// common.ErrPersistenceFailure.
func (s *Store) Learn(ctx context.Context, vendor string, classification model.Classification, keywords []string) (*model.Rule, error) {
	key := model.NormalizeVendor(vendor)
	if key == "" {
		return nil, fmt.Errorf("%w: vendor", common.ErrDataAbsence)
	}

	unlock := s.keys.Lock(key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rule := model.Rule{
		VendorKey:      key,
		Vendor:         vendor,
		Classification: classification,
		Keywords:       normalizeKeywords(keywords),
		LearnedAt:      s.now().UTC(),
		AppliedCount:   0,
	}

	if err := s.commit(key, &rule); err != nil {
		return nil, err
	}

	s.logger.Info("Learned vendor rule",
		"vendor_key", key,
		"debit_account", classification.DebitAccount,
		"credit_account", classification.CreditAccount,
		"tds_applicable", classification.TDSApplicable)

	out := rule.Clone()
	return &out, nil
}

// RecordApplication increments the counter of an existing rule. A missing
// rule is not an error.
func (s *Store) RecordApplication(ctx context.Context, vendor string) error {
	key := model.NormalizeVendor(vendor)
	if key == "" {
		return nil
	}

	unlock := s.keys.Lock(key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	r, ok := s.rules[key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	r.AppliedCount++
	return s.commit(key, &r)
}

// Delete removes the rule for vendor.
func (s *Store) Delete(ctx context.Context, vendor string) error {
	key := model.NormalizeVendor(vendor)

	unlock := s.keys.Lock(key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	_, ok := s.rules[key]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("rule for %q: %w", vendor, common.ErrNotFound)
	}

	return s.commit(key, nil)
}

// All returns every rule sorted by vendor key.
func (s *Store) All() []model.Rule {
	s.mu.RLock()
	out := make([]model.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].VendorKey < out[j].VendorKey })
	return out
}

// Len returns the number of rules.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// commit writes the rule set with key replaced by rule (or removed when rule
// is nil) and only then publishes the change in memory.
func (s *Store) commit(key string, rule *model.Rule) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	next := make(map[string]model.Rule, len(s.rules)+1)
	for k, v := range s.rules {
		next[k] = v
	}
	s.mu.RUnlock()

	if rule == nil {
		delete(next, key)
	} else {
		next[key] = *rule
	}

	data, err := encodeRules(next)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrPersistenceFailure, err)
	}
	if err := s.persist(s.path, data); err != nil {
		s.logger.Error("Failed to persist rules", "vendor_key", key, "path", s.path, "error", err)
		return fmt.Errorf("%w: %w", common.ErrPersistenceFailure, err)
	}

	s.mu.Lock()
	s.rules = next
	s.mu.Unlock()
	return nil
}

func normalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = model.NormalizeVendor(kw)
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}
