// Package cage implements component 4.D, the GEM/ChiNext price-cage
// controller: the ±2% reference-price band that determines which orders
// are displayed and counted in weighted aggregates versus held hidden
// until the cage shifts or opens.
//
// The package depends only on message.Side so that both internal/ladder's
// Ladder and internal/book's WeightedAggregate satisfy its narrow
// LadderView/Weighted interfaces structurally, without an import cycle.
package cage

import "github.com/openalpha/lobcore/internal/message"

// LadderView is the subset of ladder.Ladder the cage controller needs.
type LadderView interface {
	Best() (price uint32, qty uint64, ok bool)
	NextAfter(price uint32) (nextPrice uint32, nextQty uint64, ok bool)
}

// Weighted is the subset of book.WeightedAggregate the cage controller
// needs to promote a hidden level into the visible weighted sum.
type Weighted interface {
	Add(price uint32, qty uint64)
}

// SideState is the cage bookkeeping for one side of one book (§3).
type SideState struct {
	RefPx          uint32
	HiddenPrice    uint32
	HiddenQty      uint64
	WaitingForCage bool
}

// Hidden reports whether a level is currently excluded from the cached
// best and weighted aggregates.
func (s *SideState) Hidden() bool {
	return s.HiddenQty > 0
}

// State is the per-book cage state (§3), present only for SZSE GEM books.
type State struct {
	Bid SideState
	Ask SideState
}

// Side returns a pointer to the SideState for side.
func (st *State) Side(side message.Side) *SideState {
	if side == message.Bid {
		return &st.Bid
	}
	return &st.Ask
}

// InCage reports whether price is within the displayable band for side
// given its current reference price (§3): a bid is in cage iff
// price ≤ ⌊ref_px·1.02⌋; an ask is in cage iff price ≥ ⌈ref_px·0.98⌉.
func InCage(side message.Side, price, refPx uint32) bool {
	if refPx == 0 {
		// No reference price established yet (pre-open): nothing to hide
		// against, so treat every price as in-cage.
		return true
	}
	if side == message.Bid {
		return uint64(price) <= bidCeiling(refPx)
	}
	return uint64(price) >= askFloor(refPx)
}

func bidCeiling(refPx uint32) uint64 {
	return uint64(refPx) * 102 / 100
}

func askFloor(refPx uint32) uint64 {
	return (uint64(refPx)*98 + 99) / 100
}

// Crosses reports whether a now-eligible level at price on side would
// cross the opposite side's current visible best oppPrice, the condition
// under which enter_cage must defer to an incoming execution instead of
// promoting immediately (§4.D).
func Crosses(side message.Side, price, oppPrice uint32) bool {
	if side == message.Bid {
		return price >= oppPrice
	}
	return price <= oppPrice
}

// Controller runs the cage algorithms (4.D) against one book's ladders and
// weighted aggregates.
type Controller struct {
	state   State
	ladders map[message.Side]LadderView
	weights map[message.Side]Weighted
}

// NewController wires a Controller to the book's ladders and weighted
// aggregates. Both maps must have entries for message.Bid and message.Ask.
func NewController(ladders map[message.Side]LadderView, weights map[message.Side]Weighted) *Controller {
	return &Controller{ladders: ladders, weights: weights}
}

// State returns the mutable cage state, for persistence and inspection.
func (c *Controller) State() *State {
	return &c.state
}

// RecomputeRefPx applies the §3 precedence chain — opposite-side best →
// own-side best → last-trade → prev-close — to refresh side's reference
// price, then re-tests the cage boundary.
func (c *Controller) RecomputeRefPx(side message.Side, lastTradePx, prevClose uint32) {
	s := c.state.Side(side)
	if oppPx, _, ok := c.visibleBest(side.Opposite()); ok {
		s.RefPx = oppPx
	} else if ownPx, _, ok := c.visibleBest(side); ok {
		s.RefPx = ownPx
	} else if lastTradePx != 0 {
		s.RefPx = lastTradePx
	} else {
		s.RefPx = prevClose
	}
}

// MarkHidden records that price/qty (the current raw extreme of side's
// ladder) failed the cage test on arrival and is excluded from the
// visible best and weighted aggregates (§4.D, §4.F item 3).
func (c *Controller) MarkHidden(side message.Side, price uint32, qty uint64) {
	s := c.state.Side(side)
	s.HiddenPrice = price
	s.HiddenQty = qty
}

// RefreshBoundary re-derives side's hidden boundary from the ladder's
// current raw extreme, called after any insert/decrement touching that
// side (§4.D: "deeper hidden levels are recovered by re-scanning the
// ladder when the boundary is consumed"). Levels that are not the tracked
// hidden boundary are assumed already counted in the weighted aggregate by
// whichever caller inserted them (order handler for visible inserts,
// EnterCage for promotions).
func (c *Controller) RefreshBoundary(side message.Side) {
	s := c.state.Side(side)
	price, qty, ok := c.ladders[side].Best()
	if !ok {
		s.HiddenQty = 0
		return
	}
	if s.HiddenQty > 0 && s.HiddenPrice == price {
		s.HiddenQty = qty
		return
	}
	if InCage(side, price, s.RefPx) {
		s.HiddenQty = 0
		return
	}
	s.HiddenPrice = price
	s.HiddenQty = qty
}

// VisibleBest returns the best price/qty for side excluding any currently
// hidden boundary level.
func (c *Controller) VisibleBest(side message.Side) (uint32, uint64, bool) {
	return c.visibleBest(side)
}

func (c *Controller) visibleBest(side message.Side) (uint32, uint64, bool) {
	s := c.state.Side(side)
	price, qty, ok := c.ladders[side].Best()
	if !ok {
		return 0, 0, false
	}
	if s.HiddenQty > 0 && s.HiddenPrice == price {
		return c.ladders[side].NextAfter(price)
	}
	return price, qty, ok
}

// EnterCage is the §4.D promotion loop, invoked after any best-price
// change. While the tracked hidden boundary now satisfies the cage test,
// it is either promoted into the visible side (and the boundary advances
// to the next still-hidden level, if any) or, if promoting it would cross
// the opposite side's visible best, the side is marked WaitingForCage and
// the loop stops — an execution must arrive to resolve it.
func (c *Controller) EnterCage(side message.Side, lastTradePx, prevClose uint32) {
	s := c.state.Side(side)
	for s.HiddenQty > 0 {
		if !InCage(side, s.HiddenPrice, s.RefPx) {
			return
		}
		if oppPx, _, ok := c.visibleBest(side.Opposite()); ok && Crosses(side, s.HiddenPrice, oppPx) {
			s.WaitingForCage = true
			return
		}
		c.weights[side].Add(s.HiddenPrice, s.HiddenQty)
		promoted := s.HiddenPrice
		s.HiddenQty = 0
		c.RecomputeRefPx(side.Opposite(), lastTradePx, prevClose)
		nextPrice, nextQty, ok := c.ladders[side].NextAfter(promoted)
		if !ok {
			return
		}
		if InCage(side, nextPrice, s.RefPx) {
			// Already-visible level (counted at insertion); nothing left
			// hidden beyond it.
			return
		}
		s.HiddenPrice = nextPrice
		s.HiddenQty = nextQty
	}
}

// OpenCage makes every hidden level on both sides visible (§4.D). Its one
// caller is the session controller on PM_END, entering close-call; it is
// not invoked at the start of continuous trading, IPO day included. Only
// the single most-aggressive hidden level is ever tracked explicitly as a
// cache hint for EnterCage's incremental promotion loop; a side can still
// have more than one contiguously-hidden price level at the moment the
// cage opens entirely (RefreshBoundary always tracks the ladder's raw
// extremum, so a more extreme arrival takes over the tracked slot and the
// earlier hidden level stays in the ladder untracked). So rather than trusting the cached HiddenPrice as the
// walk's stopping point, OpenCage walks from the ladder's raw extremum
// inward via NextAfter, re-testing InCage against the side's current
// reference price at each level and folding every level that still fails
// it into the weighted aggregate, stopping at the first level already
// inside the cage (already counted when it was inserted) — mirroring
// axob.py's openCage, which sums every level from the raw extremum down to
// ex_*_min/max_level_price (the edge closest to the cage, covering the
// whole hidden run) rather than a single tracked entry. It returns, per
// side, the outermost revealed price together with the total quantity
// revealed on that side; ladder-level purging outside ±10% of last_px on
// IPO day is performed beforehand by the session package
// (purgeIPODayLevels), which has full ladder access.
func (c *Controller) OpenCage() (revealed map[message.Side]struct {
	Price uint32
	Qty   uint64
}) {
	revealed = make(map[message.Side]struct {
		Price uint32
		Qty   uint64
	})
	for _, side := range [...]message.Side{message.Bid, message.Ask} {
		s := c.state.Side(side)
		if s.HiddenQty > 0 {
			var total uint64
			var outermost uint32
			first := true
			price, qty, ok := c.ladders[side].Best()
			for ok && !InCage(side, price, s.RefPx) {
				if first {
					outermost = price
					first = false
				}
				c.weights[side].Add(price, qty)
				total += qty
				price, qty, ok = c.ladders[side].NextAfter(price)
			}
			if !first {
				revealed[side] = struct {
					Price uint32
					Qty   uint64
				}{outermost, total}
			}
			s.HiddenQty = 0
		}
		s.WaitingForCage = false
	}
	return revealed
}
