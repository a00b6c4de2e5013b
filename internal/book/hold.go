package book

// HoldSlot is component 4.C: at most one outstanding deferred order
// awaiting trade/cancel disposition (§3, §4.C). A BID/ASK LIMIT order that
// crosses the opposite best, or any MARKET order, is held rather than
// inserted into the directory/ladder immediately.
type HoldSlot struct {
	order  *Order
	traded bool // set true once an execution has priced a held MARKET order
}

// Occupied reports whether a hold is outstanding.
func (h *HoldSlot) Occupied() bool {
	return h.order != nil
}

// Order returns the held order, or nil if the slot is empty.
func (h *HoldSlot) Order() *Order {
	return h.order
}

// Traded reports whether the held order has been priced by a trade yet.
// Only meaningful for MARKET orders (§4.C: "A held MARKET order with
// traded=false at flush time is logged as an error but still inserted").
func (h *HoldSlot) Traded() bool {
	return h.traded
}

// Set occupies the slot with order. Panics if already occupied — callers
// must Clear (via Take) before admitting a new hold, per the hold-slot
// invariant (§8 property 4: hold_count ∈ {0,1}).
func (h *HoldSlot) Set(o *Order) {
	if h.order != nil {
		panic("book: hold slot already occupied")
	}
	h.order = o
	h.traded = false
}

// MarkTraded records that an execution has priced the held order.
func (h *HoldSlot) MarkTraded() {
	h.traded = true
}

// Take empties the slot and returns what was held, or nil if it was
// already empty.
func (h *HoldSlot) Take() *Order {
	o := h.order
	h.order = nil
	h.traded = false
	return o
}
