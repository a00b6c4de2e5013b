package handler

import (
	"github.com/openalpha/lobcore/internal/book"
	"github.com/openalpha/lobcore/internal/cage"
	"github.com/openalpha/lobcore/internal/message"
	"github.com/openalpha/lobcore/internal/precision"
)

// ultraOffside reports whether price on side is far enough from prev-close
// to belong in the open-call overflow buffer rather than the main weighted
// aggregate (§4.G: "the ex buffer during open-call for ultra-high sells").
// The 9x threshold is symmetric across both sides; the bid leg is kept for
// parity even though the observed SZSE feed never exercises it (book.go).
func ultraOffside(b *book.Book, side message.Side, price uint32) bool {
	ref := b.Config.PrevClose
	if ref == 0 {
		return false
	}
	if side == message.Ask {
		return uint64(price) > uint64(ref)*9
	}
	return uint64(price)*9 < uint64(ref)
}

func addToWeight(b *book.Book, side message.Side, price uint32, qty uint64) {
	if b.Phase == message.OpenCall && ultraOffside(b, side, price) {
		b.WeightEx(side).Add(price, qty)
		return
	}
	b.Weight(side).Add(price, qty)
}

func subFromWeight(b *book.Book, side message.Side, price uint32, qty uint64) {
	if b.Phase == message.OpenCall && ultraOffside(b, side, price) {
		b.WeightEx(side).Sub(price, qty)
		return
	}
	b.Weight(side).Sub(price, qty)
}

// insertVisible puts o into the directory and ladder and folds it into the
// weighted aggregate unconditionally — the call-auction and
// volatility-breaking direct-insert paths of on_limit_order (§4.F), and the
// hold-slot flush path (§4.C), none of which run the cage test. runCage
// additionally drives the GEM boundary/enter_cage bookkeeping, used only by
// the hold-flush path (a flushed order was already past the cage gate once,
// but the reference price may have moved since it was held).
func insertVisible(b *book.Book, o *book.Order, runCage bool) {
	b.Directory.Put(o)
	qty := uint64(o.Qty)
	b.Ladder(o.Side).InsertOrAdd(o.Price, qty)
	addToWeight(b, o.Side, o.Price, qty)
	if runCage && b.Config.IsGEM {
		b.Cage.RefreshBoundary(o.Side)
		b.Cage.EnterCage(o.Side, b.Stats.LastPx, b.Config.PrevClose)
	}
}

// admitHidden inserts o into the ladder only, leaving it out of the cached
// best and weighted aggregate (§4.D, §4.F "GEM LIMIT outside cage").
func admitHidden(b *book.Book, o *book.Order) {
	b.Directory.Put(o)
	b.Ladder(o.Side).InsertOrAdd(o.Price, uint64(o.Qty))
	b.Cage.RefreshBoundary(o.Side)
}

func isOutsideCage(b *book.Book, side message.Side, price uint32) bool {
	refPx := b.Cage.State().Side(side).RefPx
	return !cage.InCage(side, price, refPx)
}

func crossesOpposite(b *book.Book, side message.Side, price uint32) bool {
	oppPx, _, ok := b.VisibleBest(side.Opposite())
	if !ok {
		return false
	}
	return cage.Crosses(side, price, oppPx)
}

// isIllegalByValidityBand applies the IPO-day (≤5 days, no up/dn-limit yet)
// GEM validity band referenced by on_limit_order's call-auction branch
// (§4.F item "respecting IPO-day GEM validity band"). The spec does not
// restate the band's width where it governs call-auction admission; this
// reuses the ±10%-of-last_px figure open_cage's purge rule gives for the
// same IPO-day condition (§4.D), applied against prev_close since no trade
// has happened yet during the opening call.
func isIllegalByValidityBand(b *book.Book, side message.Side, price uint32) bool {
	if !(b.Config.IsGEM && b.Config.IPOWithinDays) {
		return false
	}
	ref := b.Config.PrevClose
	if ref == 0 {
		return false
	}
	lo := uint64(ref) * 90 / 100
	hi := uint64(ref) * 110 / 100
	return uint64(price) < lo || uint64(price) > hi
}

// isMaxPriceLevel reports whether (side, price) is the overflow-sentinel
// ask level whose emptying flags AskWeightPx_uncertain (§4.G, §9(d)).
// Only levelDequeue checks it; inserting at that level sets no flag.
func isMaxPriceLevel(side message.Side, price uint32) bool {
	return side == message.Ask && price == precision.MaxPriceInternal
}

// recomputeOwnRefPx applies the §4.G-specific precedence chain —
// own-next-best → opposite-same-price → opposite-best → last_px — to
// side's reference price after a level_dequeue on side at price.
func recomputeOwnRefPx(b *book.Book, side message.Side, price uint32) {
	s := b.Cage.State().Side(side)
	if ownPx, _, ok := b.VisibleBest(side); ok {
		s.RefPx = ownPx
		return
	}
	if qty, ok := b.Ladder(side.Opposite()).Get(price); ok && qty > 0 {
		s.RefPx = price
		return
	}
	if oppPx, _, ok := b.VisibleBest(side.Opposite()); ok {
		s.RefPx = oppPx
		return
	}
	if b.Stats.LastPx != 0 {
		s.RefPx = b.Stats.LastPx
	}
}

// levelDequeue is the shared routine behind trade and cancel processing
// (§4.G, §4.H): subtract qty from (side, price), keep the ladder's cached
// best and the cage boundary in sync, fold the removed quantity out of the
// weighted aggregate unless it was the hidden boundary level (never counted
// in), flag AskWeightPx_uncertain if the overflow-sentinel ask level was
// emptied, and refresh both sides' cage reference prices before re-running
// enter_cage.
func levelDequeue(b *book.Book, side message.Side, price uint32, qty uint64) {
	wasMax := isMaxPriceLevel(side, price)
	hidden := b.Config.IsGEM && b.Cage.State().Side(side).Hidden() && b.Cage.State().Side(side).HiddenPrice == price

	b.Ladder(side).Decrement(price, qty)
	if !hidden {
		subFromWeight(b, side, price, qty)
	}
	if b.Config.IsGEM {
		b.Cage.RefreshBoundary(side)
	}

	if remaining, ok := b.Ladder(side).Get(price); wasMax && (!ok || remaining == 0) {
		b.AskWeightPxUncertain = true
	}

	if b.Config.IsGEM {
		recomputeOwnRefPx(b, side, price)
		b.Cage.RecomputeRefPx(side.Opposite(), b.Stats.LastPx, b.Config.PrevClose)
		b.Cage.EnterCage(side, b.Stats.LastPx, b.Config.PrevClose)
		b.Cage.EnterCage(side.Opposite(), b.Stats.LastPx, b.Config.PrevClose)
	}
}

// FlushHold drains the hold slot (§4.C), unconditionally inserting whatever
// it held — this reproduces the source's test-parity quirk that an
// add-order or cancel targeting any seq, including the held order's own,
// always sees the held order admitted first. Reports whether a flush
// happened and the flushed order's own transact_time, for the caller to
// stamp a pre-snapshot with.
func FlushHold(b *book.Book) (flushed bool, transactTime uint32) {
	if !b.Hold.Occupied() {
		return false, 0
	}
	wasTraded := b.Hold.Traded()
	o := b.Hold.Take()
	if o.Type == message.Market && !wasTraded {
		b.Logger.Error("held MARKET order flushed without a trade", "appl_seq_num", o.ApplSeqNum)
	}
	insertVisible(b, o, true)
	return true, o.TransactTime
}

// FlushMarketHold is the AM_END/PM_END hold disposition (§4.C, §4.E: "the
// AM-END or PM-END signal (held MARKET order is inserted; snapshot
// emitted)"), grounded on axob.py's AMTRADING_END/PMTRADING_END handlers:
// only a held MARKET order is drained here — a held crossing LIMIT order is
// left outstanding, since only an execution (not a session boundary) can
// resolve a price cross. Reports whether anything was inserted.
func FlushMarketHold(b *book.Book) bool {
	if !b.Hold.Occupied() || b.Hold.Order().Type != message.Market {
		return false
	}
	o := b.Hold.Take()
	insertVisible(b, o, true)
	return true
}
