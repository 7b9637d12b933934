package engine

import (
	"github.com/Veraticus/autobooks/internal/model"
	"github.com/Veraticus/autobooks/internal/similarity"
)

// State is a step in a document's lifecycle.
type State string

// Document states.
const (
	StateExtracted     State = "EXTRACTED"
	StateScored        State = "SCORED"
	StateAutoPosted    State = "AUTO_POSTED"
	StateRetrieving    State = "RETRIEVING"
	StateMatched       State = "MATCHED"
	StateEscalated     State = "ESCALATED"
	StateUserConfirmed State = "USER_CONFIRMED"
)

// Terminal reports whether a document in s has reached a final outcome.
// ESCALATED is not terminal; it waits for a correction.
func (s State) Terminal() bool {
	switch s {
	case StateAutoPosted, StateMatched, StateUserConfirmed:
		return true
	}
	return false
}

// Result is the outcome of processing or resolving one document.
type Result struct {
	Transaction *model.Transaction     `json:"transaction,omitempty"`
	Pending     *model.PendingDocument `json:"pending,omitempty"`
	Match       *similarity.Match      `json:"match,omitempty"`
	Rule        *model.Rule            `json:"rule,omitempty"`
	DocumentID  string                 `json:"document_id"`
	State       State                  `json:"state"`
	Trace       []State                `json:"trace"`
	Candidate   model.ScoredCandidate  `json:"candidate"`
}

func (r *Result) enter(s State) {
	r.State = s
	r.Trace = append(r.Trace, s)
}
