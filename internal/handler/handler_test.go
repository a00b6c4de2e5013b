package handler

import (
	"testing"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/lobcore/internal/book"
	"github.com/openalpha/lobcore/internal/ladder"
	"github.com/openalpha/lobcore/internal/message"
	"github.com/openalpha/lobcore/internal/precision"
)

func newTestBook(t *testing.T, exchange precision.Exchange, isGEM bool) *book.Book {
	t.Helper()
	spec, err := precision.Lookup(exchange, precision.Stock)
	require.NoError(t, err)
	cfg := book.Config{
		Exchange:   exchange,
		Instrument: precision.Stock,
		SecurityID: "000001",
		Spec:       spec,
		IsGEM:      isGEM,
		PrevClose:  10000,
		Backend:    ladder.BTree,
	}
	b := book.New(cfg, log.NewNopLogger())
	b.Phase = message.AMTrading
	return b
}

func addOrder(seq uint32, side message.Side, typ message.OrderType, priceRaw uint64, qty uint32) message.AddOrder {
	return message.AddOrder{
		Exchange:     precision.SZSE,
		Instrument:   precision.Stock,
		SecurityID:   "000001",
		ApplSeqNum:   seq,
		Side:         side,
		Type:         typ,
		PriceRaw:     priceRaw,
		Qty:          qty,
		TransactTime: 100000 + uint32(seq),
		TradingPhase: message.AMTrading,
	}
}

func TestOnAddOrder_RestsWhenNotCrossing(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	out, err := OnAddOrder(b, addOrder(1, message.Bid, message.Limit, 990000, 100))
	require.NoError(t, err)
	require.True(t, out.Snapshot)

	o, ok := b.Directory.Get(1)
	require.True(t, ok)
	require.EqualValues(t, 9900, o.Price)
	qty, ok := b.Bids.Get(9900)
	require.True(t, ok)
	require.EqualValues(t, 100, qty)
	require.EqualValues(t, 100, b.WeightBid.WeightQty)
}

func TestOnAddOrder_CrossingLimitIsHeldNotInserted(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	_, err := OnAddOrder(b, addOrder(1, message.Ask, message.Limit, 1000000, 50))
	require.NoError(t, err)

	// A bid crossing the resting ask is held, not inserted.
	out, err := OnAddOrder(b, addOrder(2, message.Bid, message.Limit, 1010000, 30))
	require.NoError(t, err)
	require.True(t, out.Snapshot)
	require.True(t, b.Hold.Occupied())
	require.EqualValues(t, 2, b.Hold.Order().ApplSeqNum)
	_, ok := b.Directory.Get(2)
	require.False(t, ok, "a held order is not yet in the directory")
}

func TestOnAddOrder_MarketOrderIsAlwaysHeld(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	out, err := OnAddOrder(b, addOrder(1, message.Bid, message.Market, 0, 10))
	require.NoError(t, err)
	require.True(t, out.Snapshot)
	require.True(t, b.Hold.Occupied())
}

func TestOnAddOrder_FlushesExistingHoldFirst(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	_, err := OnAddOrder(b, addOrder(1, message.Bid, message.Market, 0, 10))
	require.NoError(t, err)
	require.True(t, b.Hold.Occupied())

	out, err := OnAddOrder(b, addOrder(2, message.Ask, message.Limit, 1010000, 10))
	require.NoError(t, err)
	require.True(t, out.PreSnapshot, "flushing the held order demands a pre-snapshot")
	require.False(t, b.Hold.Occupied(), "the old hold was flushed, not replaced")

	_, ok := b.Directory.Get(1)
	require.True(t, ok, "the flushed market order is now resting")
}

func TestOnAddOrder_SZSENonMonotonicSeqIsSilentlyDropped(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	_, err := OnAddOrder(b, addOrder(10, message.Bid, message.Limit, 990000, 10))
	require.NoError(t, err)

	out, err := OnAddOrder(b, addOrder(5, message.Bid, message.Limit, 990000, 10))
	require.NoError(t, err)
	require.False(t, out.Snapshot)
	require.Equal(t, 1, b.Directory.Len())
}

func TestOnAddOrder_SSEDeleteSubTypeRoutesToCancel(t *testing.T) {
	b := newTestBook(t, precision.SSE, false)
	add := addOrder(1, message.Bid, message.Limit, 99000, 10)
	add.Exchange = precision.SSE
	_, err := OnAddOrder(b, add)
	require.NoError(t, err)

	del := message.AddOrder{
		Exchange:     precision.SSE,
		Instrument:   precision.Stock,
		ApplSeqNum:   1,
		SSESubType:   message.SSEOrderDelete,
		TransactTime: 100002,
		TradingPhase: message.AMTrading,
	}
	out, err := OnAddOrder(b, del)
	require.NoError(t, err)
	require.True(t, out.Snapshot)
	_, ok := b.Directory.Get(1)
	require.False(t, ok)
}

func TestOnAddOrder_LimitBidOverflowIsFatal(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	_, err := OnAddOrder(b, addOrder(1, message.Bid, message.Limit, 0xFFFFFFFF, 10))
	require.ErrorIs(t, err, ErrPriceOverflowFatal)
}

func TestOnAddOrder_GEMLimitOutsideCageIsAdmittedHidden(t *testing.T) {
	b := newTestBook(t, precision.SZSE, true)
	out, err := OnAddOrder(b, addOrder(1, message.Ask, message.Limit, 970000, 10)) // below 9800 floor
	require.NoError(t, err)
	require.True(t, out.Snapshot)

	_, ok := b.Directory.Get(1)
	require.True(t, ok, "hidden orders are still resident in the directory")
	_, ok = b.VisibleBest(message.Ask)
	require.False(t, ok, "the hidden level is excluded from the visible best")
	require.Zero(t, b.WeightAsk.WeightQty, "hidden levels are excluded from the weighted aggregate")
}

// Two resting orders crossing without a hold slot involved is the
// call-auction shape: insertCallAuction admits both sides unconditionally,
// and a later execution dequeues both legs directly (§4.G items 4-5).
func TestOnExecution_TwoRestingOrdersCross(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	b.Phase = message.OpenCall
	_, err := OnAddOrder(b, addOrder(1, message.Bid, message.Limit, 1000000, 50))
	require.NoError(t, err)
	_, err = OnAddOrder(b, addOrder(2, message.Ask, message.Limit, 1000000, 50))
	require.NoError(t, err)

	out, err := OnExecution(b, message.Execution{
		Exchange:     precision.SZSE,
		Instrument:   precision.Stock,
		BidSeq:       1,
		OfferSeq:     2,
		LastPxRaw:    1000000,
		LastQty:      50,
		TransactTime: 100010,
		TradingPhase: message.AMTrading,
	})
	require.NoError(t, err)
	require.True(t, out.Snapshot)
	require.EqualValues(t, 1, b.Stats.NumTrades)
	require.EqualValues(t, 50, b.Stats.TotalVolumeTrade)

	_, ok := b.Directory.Get(1)
	require.False(t, ok, "fully filled order is removed")
	_, ok = b.Directory.Get(2)
	require.False(t, ok)
	_, ok = b.Bids.Get(10000)
	require.False(t, ok)
}

func TestOnExecution_PartialFillLeavesRemainder(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	b.Phase = message.OpenCall
	_, err := OnAddOrder(b, addOrder(1, message.Bid, message.Limit, 1000000, 50))
	require.NoError(t, err)
	_, err = OnAddOrder(b, addOrder(2, message.Ask, message.Limit, 1000000, 20))
	require.NoError(t, err)

	_, err = OnExecution(b, message.Execution{
		Exchange:     precision.SZSE,
		Instrument:   precision.Stock,
		BidSeq:       1,
		OfferSeq:     2,
		LastPxRaw:    1000000,
		LastQty:      20,
		TransactTime: 100010,
		TradingPhase: message.AMTrading,
	})
	require.NoError(t, err)

	o, ok := b.Directory.Get(1)
	require.True(t, ok)
	require.EqualValues(t, 30, o.Qty)
	_, ok = b.Directory.Get(2)
	require.False(t, ok, "the smaller resting ask is fully consumed")
}

func TestOnExecution_ResolvesHeldCrossingLimitOrder(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	_, err := OnAddOrder(b, addOrder(1, message.Ask, message.Limit, 1000000, 50))
	require.NoError(t, err)
	_, err = OnAddOrder(b, addOrder(2, message.Bid, message.Limit, 1010000, 50)) // crosses, held
	require.NoError(t, err)
	require.True(t, b.Hold.Occupied())

	out, err := OnExecution(b, message.Execution{
		Exchange:     precision.SZSE,
		Instrument:   precision.Stock,
		BidSeq:       2,
		OfferSeq:     1,
		LastPxRaw:    1000000,
		LastQty:      50,
		TransactTime: 100010,
		TradingPhase: message.AMTrading,
	})
	require.NoError(t, err)
	require.True(t, out.Snapshot)
	require.False(t, b.Hold.Occupied(), "the held order is fully filled and leaves the slot empty")
	_, ok := b.Directory.Get(1)
	require.False(t, ok)
}

func TestOnExecution_HeldMarketOrderIsPricedAndRests(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	_, err := OnAddOrder(b, addOrder(1, message.Ask, message.Limit, 1000000, 20))
	require.NoError(t, err)
	_, err = OnAddOrder(b, addOrder(2, message.Bid, message.Market, 0, 30))
	require.NoError(t, err)
	require.True(t, b.Hold.Occupied())

	_, err = OnExecution(b, message.Execution{
		Exchange:     precision.SZSE,
		Instrument:   precision.Stock,
		BidSeq:       2,
		OfferSeq:     1,
		LastPxRaw:    1000000,
		LastQty:      20,
		TransactTime: 100010,
		TradingPhase: message.AMTrading,
	})
	require.NoError(t, err)
	require.False(t, b.Hold.Occupied(), "the fully-consumed resting ask leaves nothing left to cross, so the priced remainder rests")

	_, ok := b.Directory.Get(1)
	require.False(t, ok, "the resting ask is fully consumed")
	o, ok := b.Directory.Get(2)
	require.True(t, ok, "the market order's remainder now rests, priced at the execution")
	require.EqualValues(t, 10, o.Qty)
	require.EqualValues(t, 10000, o.Price)
}

func TestOnCancel_RemovesRestingOrder(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	_, err := OnAddOrder(b, addOrder(1, message.Bid, message.Limit, 990000, 100))
	require.NoError(t, err)

	out, err := OnCancel(b, 1, 100020)
	require.NoError(t, err)
	require.True(t, out.Snapshot)
	_, ok := b.Directory.Get(1)
	require.False(t, ok)
	_, ok = b.Bids.Get(9900)
	require.False(t, ok)
	require.Zero(t, b.WeightBid.WeightQty)
}

func TestOnCancel_UnknownSeqIsOrderNotFound(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	_, err := OnCancel(b, 999, 100020)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOnCancel_AbsorbsIllegalOrderSilently(t *testing.T) {
	b := newTestBook(t, precision.SZSE, true)
	b.Config.IPOWithinDays = true
	b.Phase = message.OpenCall
	b.Illegal.Add(7)

	out, err := OnCancel(b, 7, 100020)
	require.NoError(t, err)
	require.False(t, out.Snapshot, "absorbing an illegal-set cancel produces no state change")
	require.False(t, b.Illegal.Contains(7))
}

func TestFlushMarketHold_OnlyDrainsMarketOrders(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	_, err := OnAddOrder(b, addOrder(1, message.Ask, message.Limit, 1000000, 50))
	require.NoError(t, err)
	_, err = OnAddOrder(b, addOrder(2, message.Bid, message.Limit, 1010000, 30)) // crosses, held LIMIT
	require.NoError(t, err)

	require.False(t, FlushMarketHold(b), "a held crossing LIMIT order is left outstanding")
	require.True(t, b.Hold.Occupied())
}

func TestFlushMarketHold_DrainsHeldMarketOrder(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	_, err := OnAddOrder(b, addOrder(1, message.Bid, message.Market, 0, 10))
	require.NoError(t, err)
	require.True(t, b.Hold.Occupied())

	require.True(t, FlushMarketHold(b))
	require.False(t, b.Hold.Occupied())
	_, ok := b.Directory.Get(1)
	require.True(t, ok)
}
