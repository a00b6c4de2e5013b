package ladder

import (
	"github.com/google/btree"
	"github.com/openalpha/lobcore/internal/message"
)

const btreeDegree = 32

// priceItem is a single price level stored in the tree, always ordered
// ascending by raw price; side-specific "best"/"next" semantics live in
// btreeLadder rather than in the comparator (grounded on
// x/orderbook/keeper/orderbook_btree.go's priceLevelItem).
type priceItem struct {
	price uint32
	qty   uint64
}

func (a *priceItem) Less(than btree.Item) bool {
	return a.price < than.(*priceItem).price
}

type btreeLadder struct {
	tree *btree.BTree
	side message.Side
}

func newBTreeLadder(side message.Side) *btreeLadder {
	return &btreeLadder{tree: btree.New(btreeDegree), side: side}
}

func (l *btreeLadder) Side() message.Side { return l.side }

func (l *btreeLadder) Len() int { return l.tree.Len() }

func (l *btreeLadder) Get(price uint32) (uint64, bool) {
	item := l.tree.Get(&priceItem{price: price})
	if item == nil {
		return 0, false
	}
	return item.(*priceItem).qty, true
}

func (l *btreeLadder) InsertOrAdd(price uint32, qty uint64) {
	if qty == 0 {
		return
	}
	existing := l.tree.Get(&priceItem{price: price})
	if existing == nil {
		l.tree.ReplaceOrInsert(&priceItem{price: price, qty: qty})
		return
	}
	item := existing.(*priceItem)
	item.qty += qty
}

func (l *btreeLadder) Decrement(price uint32, qty uint64) {
	existing := l.tree.Get(&priceItem{price: price})
	if existing == nil {
		return
	}
	item := existing.(*priceItem)
	if qty >= item.qty {
		l.tree.Delete(&priceItem{price: price})
		return
	}
	item.qty -= qty
}

func (l *btreeLadder) Best() (uint32, uint64, bool) {
	var item btree.Item
	if l.side == message.Bid {
		item = l.tree.Max()
	} else {
		item = l.tree.Min()
	}
	if item == nil {
		return 0, 0, false
	}
	p := item.(*priceItem)
	return p.price, p.qty, true
}

func (l *btreeLadder) NextAfter(price uint32) (uint32, uint64, bool) {
	var found *priceItem
	pivot := &priceItem{price: price}
	if l.side == message.Bid {
		l.tree.DescendLessOrEqual(pivot, func(item btree.Item) bool {
			p := item.(*priceItem)
			if p.price == price {
				return true
			}
			found = p
			return false
		})
	} else {
		l.tree.AscendGreaterOrEqual(pivot, func(item btree.Item) bool {
			p := item.(*priceItem)
			if p.price == price {
				return true
			}
			found = p
			return false
		})
	}
	if found == nil {
		return 0, 0, false
	}
	return found.price, found.qty, true
}
