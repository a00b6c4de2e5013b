package handler

import (
	"cosmossdk.io/errors"

	"github.com/openalpha/lobcore/internal/book"
)

// OnCancel implements the cancel handler (§4.H) for SZSE, where a cancel
// arrives as an execution with one seq zero and the cancelled seq in the
// other field, and for the cobra/session-level entry point used directly
// by SSE delete orders that weren't reached through OnAddOrder.
func OnCancel(b *book.Book, seq uint32, transactTime uint32) (Outcome, error) {
	var out Outcome
	if flushed, ts := FlushHold(b); flushed {
		out.PreSnapshot = true
		out.PreSnapshotTime = ts
	}
	return onCancel(b, seq, transactTime, out)
}

// onCancel is steps 2–3 of §4.H, factored out so OnAddOrder can route an
// SSE delete sub-type here after it has already flushed the hold slot
// itself (§4.F item 1), without flushing twice.
func onCancel(b *book.Book, seq uint32, transactTime uint32, out Outcome) (Outcome, error) {
	if b.Illegal.Contains(seq) {
		b.Illegal.Remove(seq)
		return out, nil
	}

	o, ok := b.Directory.Remove(seq)
	if !ok {
		return out, errors.Wrapf(ErrOrderNotFound, "cancel seq %d", seq)
	}

	levelDequeue(b, o.Side, o.Price, uint64(o.Qty))
	if b.Config.IsGEM {
		b.Cage.EnterCage(o.Side, b.Stats.LastPx, b.Config.PrevClose)
	}

	out.Snapshot = true
	out.SnapshotTime = transactTime
	return out, nil
}
