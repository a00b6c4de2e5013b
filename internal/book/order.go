// Package book implements components 4.B (order directory) and 4.C (hold
// slot), and assembles them with the ladder and cage state into the
// per-instrument Book value that the handler and session packages mutate.
package book

import "github.com/openalpha/lobcore/internal/message"

// Order is a resting order, owned uniquely by the Directory; the ladder
// never dereferences it (§3).
type Order struct {
	ApplSeqNum   uint32
	Price        uint32 // internal units; mutated only when a held MARKET order's price is promoted on first fill
	Qty          uint32 // decremented on partial fills
	Side         message.Side
	Type         message.OrderType
	TransactTime uint32
}

// Directory is component 4.B: appl-seq-num → resting order.
type Directory struct {
	orders map[uint32]*Order
}

// NewDirectory constructs an empty order directory.
func NewDirectory() *Directory {
	return &Directory{orders: make(map[uint32]*Order)}
}

// Put stores order, keyed by its ApplSeqNum.
func (d *Directory) Put(o *Order) {
	d.orders[o.ApplSeqNum] = o
}

// Get returns the resting order for seq, or ok=false if absent.
func (d *Directory) Get(seq uint32) (*Order, bool) {
	o, ok := d.orders[seq]
	return o, ok
}

// Remove deletes and returns the resting order for seq, or ok=false if
// absent (§4.B: "Fail-with OrderNotFound if cancel/trade references a
// missing seq").
func (d *Directory) Remove(seq uint32) (*Order, bool) {
	o, ok := d.orders[seq]
	if ok {
		delete(d.orders, seq)
	}
	return o, ok
}

// Len returns the number of resting orders.
func (d *Directory) Len() int {
	return len(d.orders)
}

// All returns every resting order, unordered. Used by internal/persist to
// checkpoint the directory; the ladder itself is not walked directly since
// its aggregate levels are fully recoverable by replaying these orders
// through InsertOrAdd on load.
func (d *Directory) All() []*Order {
	out := make([]*Order, 0, len(d.orders))
	for _, o := range d.orders {
		out = append(out, o)
	}
	return out
}
