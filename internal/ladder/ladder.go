// Package ladder implements component 4.A, the per-side price ladder: an
// ordered price→aggregate-qty map with a cached best price/qty maintained
// in O(log n). Two interchangeable backends are provided — a B-tree
// (default, grounded on the teacher's orderbook_btree.go) and a skiplist
// (grounded on the teacher's orderbook_v2.go) — both satisfying the same
// Ladder interface, the way the teacher kept multiple OrderBookEngine
// implementations behind one interface (x/orderbook/keeper/orderbook_interface.go).
package ladder

import "github.com/openalpha/lobcore/internal/message"

// Ladder is the ordered price→aggregate-qty store for one side of one
// book. Implementations must not call back into higher-level logic (§4.A).
type Ladder interface {
	// InsertOrAdd adds qty to the level at price, creating it if absent.
	InsertOrAdd(price uint32, qty uint64)
	// Decrement subtracts qty from the level at price, removing the level
	// the moment its aggregate reaches zero (§3 price-level invariant).
	// Decrementing more than the level holds is a caller bug; it clamps to
	// zero rather than going negative.
	Decrement(price uint32, qty uint64)
	// Get returns the aggregate qty at price, or ok=false if absent.
	Get(price uint32) (qty uint64, ok bool)
	// Best returns the cached extremum: max price for Bid, min price for
	// Ask. ok is false when the side is empty.
	Best() (price uint32, qty uint64, ok bool)
	// NextAfter returns the next level strictly beyond price in the
	// ladder's natural direction (descending for Bid, ascending for Ask),
	// used by the cage controller to recompute reference prices and to
	// surface a replacement best after the cached best level empties.
	NextAfter(price uint32) (nextPrice uint32, nextQty uint64, ok bool)
	// Len returns the number of present price levels.
	Len() int
	// Side reports which side this ladder instance serves.
	Side() message.Side
}

// Backend selects a Ladder implementation.
type Backend int8

const (
	BTree Backend = iota
	SkipList
)

// New constructs a Ladder for side using the requested backend.
func New(side message.Side, backend Backend) Ladder {
	switch backend {
	case SkipList:
		return newSkiplistLadder(side)
	default:
		return newBTreeLadder(side)
	}
}
