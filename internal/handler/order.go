package handler

import (
	"cosmossdk.io/errors"

	"github.com/openalpha/lobcore/internal/book"
	"github.com/openalpha/lobcore/internal/message"
	"github.com/openalpha/lobcore/internal/precision"
)

// OnAddOrder implements the order handler (§4.F). Three errors propagate:
// Unsupported for an instrument outside the precision table,
// ErrPriceOverflowFatal for a LIMIT BID carrying the overflow sentinel, and
// ErrOrderNotFound for an SSE delete naming a seq not in the directory;
// every other irregularity is logged and absorbed.
func OnAddOrder(b *book.Book, m message.AddOrder) (Outcome, error) {
	var out Outcome

	if b.Config.Exchange == precision.SZSE && !b.CheckSeqMonotonic(m.ApplSeqNum) {
		return out, nil
	}

	if flushed, ts := FlushHold(b); flushed {
		out.PreSnapshot = true
		out.PreSnapshotTime = ts
	}

	if m.Exchange == precision.SSE && m.SSESubType == message.SSEOrderDelete {
		return onCancel(b, m.ApplSeqNum, m.TransactTime, out)
	}

	spec, err := precision.Lookup(m.Exchange, m.Instrument)
	if err != nil {
		return out, err
	}

	priceInternal, overflow, remainder := precision.NormalizePrice(m.PriceRaw, b.Config.OverflowRaw, spec)
	if remainder {
		b.Logger.Error("raw price not evenly divisible by internal unit", "appl_seq_num", m.ApplSeqNum, "raw", m.PriceRaw)
	}
	if overflow {
		b.Logger.Error("order price overflow", "appl_seq_num", m.ApplSeqNum, "raw", m.PriceRaw, "side", m.Side.String())
		if m.Side == message.Bid && m.Type == message.Limit {
			return out, errors.Wrapf(ErrPriceOverflowFatal, "appl_seq_num %d", m.ApplSeqNum)
		}
	}
	if m.Qty > precision.MaxQty {
		b.Logger.Error("qty width overflow, proceeding with raw value", "appl_seq_num", m.ApplSeqNum, "qty", m.Qty)
	}

	orderType := m.Type
	if orderType == message.OwnSideBest {
		priceInternal = resolveOwnSideBest(b, m.Side)
		orderType = message.Limit
	}

	o := &book.Order{
		ApplSeqNum:   m.ApplSeqNum,
		Price:        priceInternal,
		Qty:          m.Qty,
		Side:         m.Side,
		Type:         orderType,
		TransactTime: m.TransactTime,
	}

	onLimitOrder(b, o)
	out.Snapshot = true
	out.SnapshotTime = m.TransactTime
	return out, nil
}

// resolveOwnSideBest resolves an OWN_SIDE_BEST order's price to the
// current visible best on its own side, or to the applicable price limit
// if that side is empty (§4.F item 4). A bid with nothing to rest behind is
// resolved as aggressively as the up-limit allows; an ask, as aggressively
// as the down-limit allows.
func resolveOwnSideBest(b *book.Book, side message.Side) uint32 {
	if px, _, ok := b.VisibleBest(side); ok {
		return px
	}
	if side == message.Bid {
		return b.Config.UpLimitPx
	}
	return b.Config.DnLimitPx
}

// onLimitOrder is on_limit_order (§4.F), dispatching in the priority order
// the spec lists its bullets in.
func onLimitOrder(b *book.Book, o *book.Order) {
	switch {
	case b.Phase.IsCallAuction():
		insertCallAuction(b, o)
	case b.Phase == message.VolatilityBreaking:
		insertVisible(b, o, false)
	case b.Config.IsGEM && o.Type == message.Limit && isOutsideCage(b, o.Side, o.Price):
		admitHidden(b, o)
	case o.Type == message.Market || crossesOpposite(b, o.Side, o.Price):
		b.Hold.Set(o)
	default:
		insertVisible(b, o, true)
	}
}

func insertCallAuction(b *book.Book, o *book.Order) {
	if isIllegalByValidityBand(b, o.Side, o.Price) {
		b.Illegal.Add(o.ApplSeqNum)
		b.Logger.Error("order outside IPO-day validity band, discarded", "appl_seq_num", o.ApplSeqNum, "price", o.Price)
		return
	}
	insertVisible(b, o, false)
}
