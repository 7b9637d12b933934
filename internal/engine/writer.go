package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/autobooks/internal/model"
)

// ErrLedgerWrite marks a transaction that was decided but could not be
// written to one or more ledger sinks.
var ErrLedgerWrite = errors.New("ledger write failed")

type multiWriter struct {
	writers []LedgerWriter
}

// MultiWriter appends each transaction to every writer. All writers are
// attempted; their failures are joined.
func MultiWriter(writers ...LedgerWriter) LedgerWriter {
	all := make([]LedgerWriter, 0, len(writers))
	for _, w := range writers {
		if w == nil {
			continue
		}
		if mw, ok := w.(*multiWriter); ok {
			all = append(all, mw.writers...)
			continue
		}
		all = append(all, w)
	}
	return &multiWriter{writers: all}
}

func (m *multiWriter) Append(ctx context.Context, tx model.Transaction) error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Append(ctx, tx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrLedgerWrite, errors.Join(errs...))
	}
	return nil
}
