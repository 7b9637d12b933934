package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/Veraticus/autobooks/internal/model"
	"golang.org/x/sync/errgroup"
)

// BatchItem is the outcome for one document of a batch.
type BatchItem struct {
	Err    error
	Result Result
	Index  int
}

// BatchSummary counts batch outcomes.
type BatchSummary struct {
	AutoPosted     int
	PatternMatched int
	Escalated      int
	Duplicates     int
	Failed         int
}

// BatchOption configures ProcessBatch.
type BatchOption func(*batchOptions)

type batchOptions struct {
	onItem func(BatchItem)
}

// WithProgress calls fn as each document finishes. fn is called from worker
// goroutines but never concurrently.
func WithProgress(fn func(BatchItem)) BatchOption {
	return func(o *batchOptions) { o.onItem = fn }
}

// ProcessBatch processes docs with at most Config.Workers in flight. A failing
// document never stops the batch; its error is recorded in its item. Once ctx
// is canceled no further documents are started and the remainder carry ctx.Err().
// Items are returned in input order.
func (e *Engine) ProcessBatch(ctx context.Context, docs []model.ExtractedFields, opts ...BatchOption) []BatchItem {
	var o batchOptions
	for _, opt := range opts {
		opt(&o)
	}

	items := make([]BatchItem, len(docs))
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(e.config.Workers)

	report := func(item BatchItem) {
		if o.onItem == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		o.onItem(item)
	}

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			items[i] = BatchItem{Index: i, Err: err, Result: Result{DocumentID: doc.DocumentID}}
			report(items[i])
			continue
		}
		g.Go(func() error {
			res, err := e.Process(ctx, doc)
			items[i] = BatchItem{Index: i, Result: res, Err: err}
			report(items[i])
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Info("Batch complete", "documents", len(docs), "summary", Summarize(items))
	return items
}

// Summarize counts outcomes across items. Documents posted despite a ledger
// sink failure are counted by their outcome and as failed.
func Summarize(items []BatchItem) BatchSummary {
	var s BatchSummary
	for _, item := range items {
		if errors.Is(item.Err, ErrAlreadyProcessed) {
			s.Duplicates++
			continue
		}
		if item.Err != nil {
			s.Failed++
		}
		switch item.Result.State {
		case StateAutoPosted:
			s.AutoPosted++
		case StateMatched:
			s.PatternMatched++
		case StateEscalated:
			s.Escalated++
		}
	}
	return s
}
