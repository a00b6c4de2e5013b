package ladder

import (
	"github.com/huandu/skiplist"
	"github.com/openalpha/lobcore/internal/message"
)

// priceComparator orders keys (plain uint32 prices) ascending, mirroring
// priceKeyAsc/priceKeyDesc from orderbook_v2.go but collapsed to a single
// ascending comparator — side semantics are applied in skiplistLadder the
// same way they are in btreeLadder, so both backends share one notion of
// "best"/"next" for a given side.
type priceComparator struct{}

func (priceComparator) Compare(lhs, rhs interface{}) int {
	l := lhs.(uint32)
	r := rhs.(uint32)
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}

func (priceComparator) CalcScore(key interface{}) float64 {
	return float64(key.(uint32))
}

type skiplistLadder struct {
	list *skiplist.Skiplist
	side message.Side
}

func newSkiplistLadder(side message.Side) *skiplistLadder {
	return &skiplistLadder{list: skiplist.New(priceComparator{}), side: side}
}

func (l *skiplistLadder) Side() message.Side { return l.side }

func (l *skiplistLadder) Len() int { return l.list.Len() }

func (l *skiplistLadder) Get(price uint32) (uint64, bool) {
	el := l.list.Get(price)
	if el == nil {
		return 0, false
	}
	return el.Value.(uint64), true
}

func (l *skiplistLadder) InsertOrAdd(price uint32, qty uint64) {
	if qty == 0 {
		return
	}
	el := l.list.Get(price)
	if el == nil {
		l.list.Set(price, qty)
		return
	}
	l.list.Set(price, el.Value.(uint64)+qty)
}

func (l *skiplistLadder) Decrement(price uint32, qty uint64) {
	el := l.list.Get(price)
	if el == nil {
		return
	}
	cur := el.Value.(uint64)
	if qty >= cur {
		l.list.Remove(price)
		return
	}
	l.list.Set(price, cur-qty)
}

func (l *skiplistLadder) Best() (uint32, uint64, bool) {
	var el *skiplist.Element
	if l.side == message.Bid {
		el = l.list.Back()
	} else {
		el = l.list.Front()
	}
	if el == nil {
		return 0, 0, false
	}
	return el.Key().(uint32), el.Value.(uint64), true
}

func (l *skiplistLadder) NextAfter(price uint32) (uint32, uint64, bool) {
	// Find returns the first element with key >= price (huandu/skiplist
	// semantics). For Bid (want the largest key strictly below price) that
	// is always el.Prev(), whether or not el itself equals price; for Ask
	// (want the smallest key strictly above price) an exact match needs
	// one more Next(), while an overshoot is already the answer.
	el := l.list.Find(price)
	if l.side == message.Bid {
		if el == nil {
			el = l.list.Back()
		} else {
			el = el.Prev()
		}
	} else {
		if el != nil && el.Key().(uint32) == price {
			el = el.Next()
		}
	}
	if el == nil {
		return 0, 0, false
	}
	return el.Key().(uint32), el.Value.(uint64), true
}
