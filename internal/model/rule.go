package model

import "time"

// Rule is a learned vendor classification. Rules are only ever created from a
// human correction and are replaced, never duplicated, when relearned.
type Rule struct {
	LearnedAt time.Time `json:"learned_at"`
	Classification
	VendorKey    string   `json:"vendor_key"`
	Vendor       string   `json:"vendor"`
	Keywords     []string `json:"keywords"`
	AppliedCount int      `json:"applied_count"`
}

// Clone returns a deep copy so callers never share the keyword slice with the store.
func (r Rule) Clone() Rule {
	out := r
	if r.Keywords != nil {
		out.Keywords = append([]string(nil), r.Keywords...)
	}
	return out
}
