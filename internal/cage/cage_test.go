package cage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openalpha/lobcore/internal/message"
)

func TestInCage_BidCeilingAndAskFloor(t *testing.T) {
	require.True(t, InCage(message.Bid, 10200, 10000)) // exactly +2%
	require.False(t, InCage(message.Bid, 10201, 10000))
	require.True(t, InCage(message.Ask, 9800, 10000)) // exactly -2%
	require.False(t, InCage(message.Ask, 9799, 10000))
}

func TestInCage_NoRefPriceAdmitsEverything(t *testing.T) {
	require.True(t, InCage(message.Bid, 999999, 0))
	require.True(t, InCage(message.Ask, 1, 0))
}

func TestCrosses(t *testing.T) {
	require.True(t, Crosses(message.Bid, 100, 100))
	require.True(t, Crosses(message.Bid, 101, 100))
	require.False(t, Crosses(message.Bid, 99, 100))
	require.True(t, Crosses(message.Ask, 100, 100))
	require.True(t, Crosses(message.Ask, 99, 100))
	require.False(t, Crosses(message.Ask, 101, 100))
}

// fakeLadder is a minimal LadderView double so cage tests don't need
// internal/ladder, avoiding a needless cross-package dependency in this
// package's own tests.
type fakeLadder struct {
	levels []struct {
		price uint32
		qty   uint64
	}
	side message.Side
}

func newFakeLadder(side message.Side, levels ...[2]uint64) *fakeLadder {
	l := &fakeLadder{side: side}
	for _, lv := range levels {
		l.levels = append(l.levels, struct {
			price uint32
			qty   uint64
		}{uint32(lv[0]), lv[1]})
	}
	return l
}

func (l *fakeLadder) Best() (uint32, uint64, bool) {
	if len(l.levels) == 0 {
		return 0, 0, false
	}
	if l.side == message.Bid {
		best := l.levels[0]
		for _, lv := range l.levels[1:] {
			if lv.price > best.price {
				best = lv
			}
		}
		return best.price, best.qty, true
	}
	best := l.levels[0]
	for _, lv := range l.levels[1:] {
		if lv.price < best.price {
			best = lv
		}
	}
	return best.price, best.qty, true
}

func (l *fakeLadder) NextAfter(price uint32) (uint32, uint64, bool) {
	var found *struct {
		price uint32
		qty   uint64
	}
	for i := range l.levels {
		lv := &l.levels[i]
		if l.side == message.Bid {
			if lv.price < price && (found == nil || lv.price > found.price) {
				found = lv
			}
		} else {
			if lv.price > price && (found == nil || lv.price < found.price) {
				found = lv
			}
		}
	}
	if found == nil {
		return 0, 0, false
	}
	return found.price, found.qty, true
}

type fakeWeight struct {
	qty   uint64
	value uint64
}

func (w *fakeWeight) Add(price uint32, qty uint64) {
	w.qty += qty
	w.value += uint64(price) * qty
}

func newController(bidLadder, askLadder *fakeLadder) (*Controller, *fakeWeight, *fakeWeight) {
	bidW, askW := &fakeWeight{}, &fakeWeight{}
	c := NewController(
		map[message.Side]LadderView{message.Bid: bidLadder, message.Ask: askLadder},
		map[message.Side]Weighted{message.Bid: bidW, message.Ask: askW},
	)
	return c, bidW, askW
}

func TestController_RecomputeRefPx_Precedence(t *testing.T) {
	bids := newFakeLadder(message.Bid, [2]uint64{9900, 10})
	asks := newFakeLadder(message.Ask, [2]uint64{10100, 10})
	c, _, _ := newController(bids, asks)

	// Opposite-side best wins over everything else.
	c.RecomputeRefPx(message.Bid, 9950, 9000)
	require.EqualValues(t, 10100, c.State().Bid.RefPx)

	// With no opposite best, own-side best is used.
	emptyAsks := newFakeLadder(message.Ask)
	c2, _, _ := newController(bids, emptyAsks)
	c2.RecomputeRefPx(message.Bid, 9950, 9000)
	require.EqualValues(t, 9900, c2.State().Bid.RefPx)

	// With neither side populated, falls back to last trade then prev close.
	emptyBids := newFakeLadder(message.Bid)
	c3, _, _ := newController(emptyBids, emptyAsks)
	c3.RecomputeRefPx(message.Bid, 9950, 9000)
	require.EqualValues(t, 9950, c3.State().Bid.RefPx)
	c3.RecomputeRefPx(message.Ask, 0, 9000)
	require.EqualValues(t, 9000, c3.State().Ask.RefPx)
}

// An ask is only restricted on its downside (too-aggressive a sell, priced
// below ref*0.98); a bid is only restricted on its upside (too-aggressive a
// buy, priced above ref*1.02). Neither side's cage hides a price that is
// merely far from the reference in the other direction.
func TestController_RefreshBoundary_HidesOutOfCageBest(t *testing.T) {
	asks := newFakeLadder(message.Ask, [2]uint64{9700, 20}) // below the 9800 floor
	c, _, _ := newController(newFakeLadder(message.Bid), asks)
	c.State().Ask.RefPx = 10000

	c.RefreshBoundary(message.Ask)
	require.True(t, c.State().Ask.Hidden())
	require.EqualValues(t, 9700, c.State().Ask.HiddenPrice)

	_, _, ok := c.VisibleBest(message.Ask)
	require.False(t, ok, "the only level is hidden, so nothing is visible")
}

func TestController_EnterCage_PromotesWhenInCageAndNotCrossing(t *testing.T) {
	asks := newFakeLadder(message.Ask, [2]uint64{9700, 7})
	bids := newFakeLadder(message.Bid, [2]uint64{9000, 3})
	c, _, askW := newController(bids, asks)
	c.MarkHidden(message.Ask, 9700, 7)
	c.State().Ask.RefPx = 9500 // floor 9310: 9700 now clears it

	c.EnterCage(message.Ask, 0, 9500)
	require.False(t, c.State().Ask.Hidden(), "9700 clears the 9310 floor and does not cross the 9000 bid")
	require.EqualValues(t, 7, askW.qty)
}

func TestController_EnterCage_WaitsWhenPromotionWouldCross(t *testing.T) {
	asks := newFakeLadder(message.Ask, [2]uint64{9700, 7})
	bids := newFakeLadder(message.Bid, [2]uint64{9800, 3})
	c, _, askW := newController(bids, asks)
	c.MarkHidden(message.Ask, 9700, 7)
	c.State().Ask.RefPx = 9500 // floor 9310: 9700 clears it, but crosses the 9800 bid

	c.EnterCage(message.Ask, 0, 9500)
	require.True(t, c.State().Ask.Hidden(), "promoting 9700 would cross the 9800 bid")
	require.True(t, c.State().Ask.WaitingForCage)
	require.Zero(t, askW.qty)
}

func TestController_OpenCage_RevealsBothSides(t *testing.T) {
	asks := newFakeLadder(message.Ask, [2]uint64{9100, 4})  // below floor, hidden
	bids := newFakeLadder(message.Bid, [2]uint64{10900, 6}) // above ceiling, hidden
	c, bidW, askW := newController(bids, asks)
	c.State().Bid.RefPx = 10000
	c.State().Ask.RefPx = 10000
	c.RefreshBoundary(message.Bid)
	c.RefreshBoundary(message.Ask)
	require.True(t, c.State().Bid.Hidden())
	require.True(t, c.State().Ask.Hidden())

	revealed := c.OpenCage()
	require.False(t, c.State().Bid.Hidden())
	require.False(t, c.State().Ask.Hidden())
	require.False(t, c.State().Bid.WaitingForCage)
	require.False(t, c.State().Ask.WaitingForCage)
	require.EqualValues(t, 6, bidW.qty)
	require.EqualValues(t, 4, askW.qty)
	require.Contains(t, revealed, message.Bid)
	require.Contains(t, revealed, message.Ask)
}

// Only the single most-aggressive hidden level is ever tracked explicitly
// (RefreshBoundary re-derives deeper ones lazily as the tracked one is
// consumed), so a ladder with two simultaneously-hidden bid levels must
// have OpenCage fold both into the weighted aggregate, not just the one
// that happened to be tracked at the moment the cage opened.
func TestController_OpenCage_RevealsMultipleStackedHiddenLevels(t *testing.T) {
	bids := newFakeLadder(message.Bid, [2]uint64{10900, 6}, [2]uint64{10500, 9}) // both above the 10200 ceiling
	asks := newFakeLadder(message.Ask)
	c, bidW, _ := newController(bids, asks)
	c.State().Bid.RefPx = 10000
	c.RefreshBoundary(message.Bid)
	require.True(t, c.State().Bid.Hidden())
	require.EqualValues(t, 10900, c.State().Bid.HiddenPrice, "RefreshBoundary only ever tracks the raw extremum")

	revealed := c.OpenCage()
	require.False(t, c.State().Bid.Hidden())
	require.EqualValues(t, 15, bidW.qty, "both 10900 and 10500 must be folded in, not just the tracked 10900")
	require.EqualValues(t, 10900*6+10500*9, bidW.value)
	require.Contains(t, revealed, message.Bid)
}
