// Package session implements component 4.E, the session controller: the
// single `OnMessage` entry point that dispatches every incoming message to
// the order/trade/cancel handlers, advances Book.Phase the way the
// original's onMsg does, reacts to the external session-boundary signals,
// and feeds every snapshot — rebuilt or exchange-reported — into the
// reconciler (4.J). This is the only package that knows about all three of
// internal/handler, internal/snapshot and internal/book at once; handler
// and snapshot never import each other.
package session

import (
	"github.com/openalpha/lobcore/internal/book"
	"github.com/openalpha/lobcore/internal/handler"
	"github.com/openalpha/lobcore/internal/message"
	"github.com/openalpha/lobcore/internal/precision"
	"github.com/openalpha/lobcore/internal/snapshot"
)

// Controller owns one instrument's Book and its reconciler. It is
// synchronous and single-threaded (§5): no goroutines, no channels, a
// single OnMessage call in, a slice of snapshots out.
type Controller struct {
	Book       *book.Book
	Reconciler *snapshot.Reconciler
}

// New wires a Controller to an already-constructed Book.
func New(b *book.Book) *Controller {
	return &Controller{Book: b, Reconciler: snapshot.NewReconciler()}
}

// OnMessage is the core's single entry point (§1). It returns every
// snapshot this call produced, in emission order, for the caller (the
// replay CLI, or any other collaborator) to serialize or broadcast.
func (c *Controller) OnMessage(m message.Message) ([]*snapshot.Snapshot, error) {
	switch v := m.(type) {
	case message.AddOrder:
		return c.onAddOrder(v)
	case message.Execution:
		return c.onExecution(v)
	case message.RefSnapshot:
		return c.onRefSnapshot(v)
	case message.Signal:
		return c.onSignal(v)
	default:
		return nil, nil
	}
}

// advancePhase is §4.E/§9(b): every add-order/execution tick advances
// Book.Phase to its own reported trading phase, latched only while both the
// current phase and the newly reported one are VolatilityBreaking — the
// first message reporting anything else releases the latch. Grounded on
// axob.py onMsg's guard ("由于我们重建完全基于逐笔...阶段切换基于逐笔"):
// reconstruction is tick-driven, so reference snapshots never drive phase.
func (c *Controller) advancePhase(reported message.Phase) {
	b := c.Book
	if b.Phase == message.VolatilityBreaking && reported == message.VolatilityBreaking {
		return
	}
	b.Phase = reported
}

func (c *Controller) onAddOrder(m message.AddOrder) ([]*snapshot.Snapshot, error) {
	c.advancePhase(m.TradingPhase)
	out, err := handler.OnAddOrder(c.Book, m)
	if err != nil {
		return nil, err
	}
	return c.emit(out), nil
}

// onExecution routes an incoming execution either to the trade handler or,
// for SZSE, to the cancel handler when the tick is actually a cancel
// disguised as an execution with one seq zero (§4.H: "For SZSE cancels are
// delivered as executions with one seq zero and the other being the
// cancelled seq").
func (c *Controller) onExecution(m message.Execution) ([]*snapshot.Snapshot, error) {
	c.advancePhase(m.TradingPhase)

	if m.Exchange == precision.SZSE && (m.ExecType == message.ExecCancel || m.BidSeq == 0 || m.OfferSeq == 0) {
		seq := m.BidSeq
		if seq == 0 {
			seq = m.OfferSeq
		}
		out, err := handler.OnCancel(c.Book, seq, m.TransactTime)
		if err != nil {
			return nil, err
		}
		return c.emit(out), nil
	}

	out, err := handler.OnExecution(c.Book, m)
	if err != nil {
		return nil, err
	}
	return c.emit(out), nil
}

// emit turns a handler Outcome into the snapshot(s) it demands, recording
// each as this instance's own rebuilt snapshot with the reconciler.
func (c *Controller) emit(out handler.Outcome) []*snapshot.Snapshot {
	var snaps []*snapshot.Snapshot
	if out.PreSnapshot {
		if s := snapshot.Build(c.Book, out.PreSnapshotTime); s != nil {
			c.Reconciler.OnRebuiltSnapshot(s)
			snaps = append(snaps, s)
		}
	}
	if out.Snapshot {
		if s := snapshot.Build(c.Book, out.SnapshotTime); s != nil {
			c.Reconciler.OnRebuiltSnapshot(s)
			snaps = append(snaps, s)
		}
	}
	return snaps
}

// onRefSnapshot is onSnap (§4.E, §4.J): seeds the constant prev-close/
// up-limit/down-limit fields the first time a Starting-phase reference
// snapshot arrives, derives the close price once the session is Ending and
// not yet closePx_ready, and always hands the snapshot to the reconciler —
// the exchange's own snapshot never otherwise feeds book state.
func (c *Controller) onRefSnapshot(m message.RefSnapshot) ([]*snapshot.Snapshot, error) {
	b := c.Book
	spec, err := precision.Lookup(m.Exchange, b.Config.Instrument)
	if err != nil {
		return nil, err
	}

	var snaps []*snapshot.Snapshot

	if m.TradingPhase == message.Starting {
		b.Config.PrevClose = precision.FromSnapshotPrice(m.PrevClose, spec)
		b.Config.UpLimitPx = precision.FromSnapshotPrice(m.UpLimitPx, spec)
		b.Config.DnLimitPx = precision.FromSnapshotPrice(m.DnLimitPx, spec)
		b.Cage.State().Bid.RefPx = b.Config.PrevClose
		b.Cage.State().Ask.RefPx = b.Config.PrevClose
	}

	if b.Phase == message.Ending && !b.ClosePxReady {
		switch m.Exchange {
		case precision.SZSE:
			b.Stats.LastPx = precision.FromSnapshotPrice(m.LastPx, spec)
		case precision.SSE:
			// §9(c): SSE close-price derivation is left unimplemented. The
			// session still unlatches so the instrument keeps emitting,
			// reporting whatever last_px the tick stream already settled on.
			b.Logger.Error("SSE close price not derived from reference snapshot")
		}
		b.ClosePxReady = true
		if s := snapshot.Build(b, m.TransactTime); s != nil {
			c.Reconciler.OnRebuiltSnapshot(s)
			snaps = append(snaps, s)
		}
	}

	c.Reconciler.OnExchangeSnapshot(refToSnapshot(m))
	return snaps, nil
}

// refToSnapshot adapts an incoming exchange reference snapshot into the
// same Snapshot value Build produces, so the reconciler's FieldEqual
// compares like for like.
func refToSnapshot(m message.RefSnapshot) *snapshot.Snapshot {
	s := &snapshot.Snapshot{
		SecurityID:       m.SecurityID,
		Exchange:         m.Exchange,
		Phase:            m.TradingPhase,
		NumTrades:        m.NumTrades,
		TotalVolumeTrade: precision.ClipUint32(m.Volume),
		TotalValueTrade:  precision.ClipUint32(m.Value),
		OpenPx:           m.OpenPx,
		HighPx:           m.HighPx,
		LowPx:            m.LowPx,
		LastPx:           m.LastPx,
		UpLimitPx:        m.UpLimitPx,
		DnLimitPx:        m.DnLimitPx,
		PrevClose:        m.PrevClose,
		TransactTime:     m.TransactTime,
	}
	clipped, uncertain := precision.ClipAskWeightPx(m.AskWeightPx)
	s.BidWeightPx = int32(m.BidWeightPx)
	s.AskWeightPx = int32(clipped)
	s.AskWeightPxUncertain = uncertain
	for i := 0; i < 10; i++ {
		s.Bids[i] = snapshot.Level{Price: m.Bids[i].PriceRaw, Qty: m.Bids[i].Qty}
		s.Asks[i] = snapshot.Level{Price: m.Asks[i].PriceRaw, Qty: m.Asks[i].Qty}
	}
	return s
}

// onSignal handles the external session-boundary signals (§4.E), grounded
// field-for-field on axob.py onMsg's AX_SIGNAL branch (lines ~548-592):
// signals carry no tick of their own, so every phase transition here is the
// same conditional one the source applies, not an unconditional jump. Most
// signals only fire their side effect (phase advance, hold drain, weight
// merge, cage opening) when the book's own state already satisfies the
// condition the source checks; otherwise the signal is a no-op and the
// eventual tick or execution resolves the state itself.
func (c *Controller) onSignal(s message.Signal) ([]*snapshot.Snapshot, error) {
	b := c.Book
	var snaps []*snapshot.Snapshot
	emit := func(transactTime uint32) {
		if snap := snapshot.Build(b, transactTime); snap != nil {
			c.Reconciler.OnRebuiltSnapshot(snap)
			snaps = append(snaps, snap)
		}
	}

	switch s.Type {
	case message.OpenCallBgn, message.PMBgn:
		// No-op: the next tick's own trading-phase field already carries
		// the phase forward.

	case message.OpenCallEnd:
		// "双方最优价无法成交，否则等成交" — only advance if the book isn't
		// already crossing (a crossing book still awaits a matching
		// execution before the call auction can be considered settled).
		if b.Phase == message.OpenCall && !bookCanMatch(b) {
			b.Phase = message.PreTradingBreaking
			emit(s.TransactTime)
		}

	case message.AMBgn:
		if b.Phase == message.PreTradingBreaking {
			b.Phase = message.AMTrading
			mergeWeightEx(b)
			emit(s.TransactTime)
		}

	case message.AMEnd:
		if b.Phase == message.AMTrading {
			handler.FlushMarketHold(b)
			if !b.Hold.Occupied() {
				b.Phase = message.Breaking
				emit(s.TransactTime)
			}
		}

	case message.PMEnd:
		if b.Phase == message.PMTrading {
			handler.FlushMarketHold(b)
			if !b.Hold.Occupied() {
				emit(s.TransactTime) // final continuous-trading snapshot
				b.Phase = message.CloseCall
				openCage(b)
				emit(s.TransactTime) // close-call snapshot over the now-open cage
			}
		}

	case message.AllEnd:
		closeCallCleared := b.Phase == message.CloseCall && !bookCanMatch(b)
		switch b.Config.Exchange {
		case precision.SZSE:
			if closeCallCleared {
				b.Phase = message.Ending
				b.ClosePxReady = false
			} else {
				b.ClosePxReady = true
				emit(s.TransactTime)
			}
		default: // SSE
			if closeCallCleared {
				b.Phase = message.Ending
			}
			b.ClosePxReady = false
		}
	}
	return snaps, nil
}

// bookCanMatch reports whether side's resting best prices could still
// cross (bid ≥ ask), the condition axob.py checks as
// "bid_max_level_price < ask_min_level_price" (negated) before treating a
// call auction as settled with nothing left to match.
func bookCanMatch(b *book.Book) bool {
	bidPx, _, bidOk := b.VisibleBest(message.Bid)
	askPx, _, askOk := b.VisibleBest(message.Ask)
	if !bidOk || !askOk {
		return false
	}
	return bidPx >= askPx
}

// mergeWeightEx folds the open-call overflow weighted buffer back into the
// main aggregate once the call auction has ended: the "ex" buffer (§4.G)
// is only consulted while Phase == OpenCall, so anything still in it needs
// to rejoin the aggregate continuous-auction snapshots read from.
func mergeWeightEx(b *book.Book) {
	for _, side := range [...]message.Side{message.Bid, message.Ask} {
		ex := b.WeightEx(side)
		if ex.WeightQty == 0 {
			continue
		}
		b.Weight(side).Add(ex.Average(), ex.WeightQty)
		ex.WeightQty = 0
		ex.WeightValue = 0
	}
}

// openCage reveals every hidden GEM level on PM_END (§4.D "entering
// close-call"). purgeIPODayLevels runs first, since the source applies the
// ±10% purge before folding whatever hidden boundary survives it into the
// weighted aggregate (axob.py openCage, lines 650-676 before 681-707); the
// cage controller then folds the remaining revealed quantity into the
// weighted aggregate itself — the ladder levels are already present
// (admitted hidden on arrival, §4.F), so nothing further needs inserting.
func openCage(b *book.Book) {
	if !b.Config.IsGEM {
		return
	}
	purgeIPODayLevels(b)
	b.Cage.OpenCage()
}

// purgeIPODayLevels discards resting levels outside ±10% of last_px once
// the up/down limit is absent (IPO ≤5 days), per §4.D open_cage: "if
// up-limit is absent ... levels outside ±10% of last_px are purged."
// Grounded on axob.py's openCage price-band removal (lines 650-676): walks
// every resting order — not just ladder levels, since a purge must also
// clear the order directory so a later cancel against a purged seq doesn't
// resurrect it — and drops any whose price falls outside the band,
// subtracting it from the weighted aggregate only when the level was
// already counted there (a level still inside the cage's tracked hidden
// boundary was never added to weight in the first place, so it is dropped
// from the ladder/directory only). Both sides' cage boundaries are
// refreshed afterward since the purge may have removed the tracked
// boundary level itself.
func purgeIPODayLevels(b *book.Book) {
	if b.Config.UpLimitPx != 0 {
		return
	}
	last := b.Stats.LastPx
	if last == 0 {
		return
	}
	lo := uint64(last) * 90 / 100
	hi := uint64(last) * 110 / 100

	for _, o := range b.Directory.All() {
		price := uint64(o.Price)
		if price >= lo && price <= hi {
			continue
		}
		side := b.Cage.State().Side(o.Side)
		hidden := side.Hidden() && side.HiddenPrice == o.Price
		b.Directory.Remove(o.ApplSeqNum)
		b.Ladder(o.Side).Decrement(o.Price, uint64(o.Qty))
		if !hidden {
			b.Weight(o.Side).Sub(o.Price, uint64(o.Qty))
		}
	}
	b.Cage.RefreshBoundary(message.Bid)
	b.Cage.RefreshBoundary(message.Ask)
}
