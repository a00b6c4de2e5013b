// Package persist implements the checkpoint save/load design note (§9):
// canonical persistence of everything in §3 — the order directory (the
// ladder is rebuilt from it on load), the hold slot, the illegal-order
// set, the cage state, trade stats and weighted aggregates, and the
// reconciler's pending buckets — keyed by security id in a cosmos-db KV
// store, generalized away from the teacher's full cosmos-sdk
// CommitMultiStore (x/orderbook/keeper/keeper.go) since this module has no
// blockchain runtime to mount one inside.
package persist

import (
	"encoding/json"
	"fmt"

	dbm "github.com/cosmos/cosmos-db"

	"github.com/openalpha/lobcore/internal/book"
	"github.com/openalpha/lobcore/internal/cage"
	"github.com/openalpha/lobcore/internal/message"
	"github.com/openalpha/lobcore/internal/snapshot"
)

const keyPrefix = "lobcore/checkpoint/"

func key(securityID string) []byte {
	return []byte(keyPrefix + securityID)
}

// OrderRecord is one resting order's checkpointed form.
type OrderRecord struct {
	ApplSeqNum   uint32
	Price        uint32
	Qty          uint32
	Side         message.Side
	Type         message.OrderType
	TransactTime uint32
}

// Checkpoint is the full serializable state of one instrument's Book plus
// its session-controller-owned reconciler. Exported field-for-field so
// encoding/json round-trips it without custom (Un)MarshalJSON methods —
// the teacher's protobuf codec (codec.NewProtoCodec) is not available
// here, since it depends on the gogoproto/cosmos-sdk stack this module
// drops entirely (DESIGN.md); JSON is the plain stdlib fallback for this
// one internal wire format, which is never exposed externally.
type Checkpoint struct {
	SecurityID           string
	Phase                message.Phase
	ClosePxReady         bool
	AskWeightPxUncertain bool
	LastAcceptedSeq      uint32
	HaveLastSeq          bool

	PrevClose uint32
	UpLimitPx uint32
	DnLimitPx uint32

	Stats       book.TradeStats
	WeightBid   book.WeightedAggregate
	WeightAsk   book.WeightedAggregate
	WeightBidEx book.WeightedAggregate
	WeightAskEx book.WeightedAggregate

	Cage cage.State

	Orders  []OrderRecord
	Hold    *OrderRecord
	Illegal []uint32

	Reconciler snapshot.State
}

// Save serializes b's full state (plus the reconciler it was paired with
// in the session controller) into db under security_id.
func Save(db dbm.DB, b *book.Book, r *snapshot.Reconciler) error {
	lastSeq, haveSeq := b.LastAcceptedSeq()
	cp := Checkpoint{
		SecurityID:           b.Config.SecurityID,
		Phase:                b.Phase,
		ClosePxReady:         b.ClosePxReady,
		AskWeightPxUncertain: b.AskWeightPxUncertain,
		LastAcceptedSeq:      lastSeq,
		HaveLastSeq:          haveSeq,
		PrevClose:            b.Config.PrevClose,
		UpLimitPx:            b.Config.UpLimitPx,
		DnLimitPx:            b.Config.DnLimitPx,
		Stats:                b.Stats,
		WeightBid:            b.WeightBid,
		WeightAsk:            b.WeightAsk,
		WeightBidEx:          b.WeightBidEx,
		WeightAskEx:          b.WeightAskEx,
		Cage:                 *b.Cage.State(),
	}

	for _, o := range b.Directory.All() {
		cp.Orders = append(cp.Orders, OrderRecord{
			ApplSeqNum:   o.ApplSeqNum,
			Price:        o.Price,
			Qty:          o.Qty,
			Side:         o.Side,
			Type:         o.Type,
			TransactTime: o.TransactTime,
		})
	}
	if h := b.Hold.Order(); h != nil {
		cp.Hold = &OrderRecord{
			ApplSeqNum:   h.ApplSeqNum,
			Price:        h.Price,
			Qty:          h.Qty,
			Side:         h.Side,
			Type:         h.Type,
			TransactTime: h.TransactTime,
		}
	}
	cp.Illegal = b.Illegal.Seqs()

	if r != nil {
		cp.Reconciler = r.Dump()
	}

	blob, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("persist: marshal checkpoint for %s: %w", b.Config.SecurityID, err)
	}
	return db.Set(key(b.Config.SecurityID), blob)
}

// Load restores a previously saved checkpoint into an already-constructed
// empty Book (same Config/backend the instrument was created with) and
// returns the reconciler to re-pair with a session.Controller. Returns
// ok=false if no checkpoint exists for securityID.
func Load(db dbm.DB, b *book.Book, securityID string) (r *snapshot.Reconciler, ok bool, err error) {
	blob, err := db.Get(key(securityID))
	if err != nil {
		return nil, false, fmt.Errorf("persist: read checkpoint for %s: %w", securityID, err)
	}
	if blob == nil {
		return nil, false, nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(blob, &cp); err != nil {
		return nil, false, fmt.Errorf("persist: unmarshal checkpoint for %s: %w", securityID, err)
	}

	b.Phase = cp.Phase
	b.ClosePxReady = cp.ClosePxReady
	b.AskWeightPxUncertain = cp.AskWeightPxUncertain
	b.SetLastAcceptedSeq(cp.LastAcceptedSeq, cp.HaveLastSeq)
	b.Config.PrevClose = cp.PrevClose
	b.Config.UpLimitPx = cp.UpLimitPx
	b.Config.DnLimitPx = cp.DnLimitPx
	b.Stats = cp.Stats
	b.WeightBid = cp.WeightBid
	b.WeightAsk = cp.WeightAsk
	b.WeightBidEx = cp.WeightBidEx
	b.WeightAskEx = cp.WeightAskEx
	*b.Cage.State() = cp.Cage

	for _, rec := range cp.Orders {
		o := &book.Order{
			ApplSeqNum:   rec.ApplSeqNum,
			Price:        rec.Price,
			Qty:          rec.Qty,
			Side:         rec.Side,
			Type:         rec.Type,
			TransactTime: rec.TransactTime,
		}
		b.Directory.Put(o)
		b.Ladder(o.Side).InsertOrAdd(o.Price, uint64(o.Qty))
	}
	refreshLadderCaches(b)

	if cp.Hold != nil {
		b.Hold.Set(&book.Order{
			ApplSeqNum:   cp.Hold.ApplSeqNum,
			Price:        cp.Hold.Price,
			Qty:          cp.Hold.Qty,
			Side:         cp.Hold.Side,
			Type:         cp.Hold.Type,
			TransactTime: cp.Hold.TransactTime,
		})
	}
	for _, seq := range cp.Illegal {
		b.Illegal.Add(seq)
	}

	return snapshot.Restore(cp.Reconciler), true, nil
}

// refreshLadderCaches re-derives each side's cage hidden-boundary
// bookkeeping once every order has been replayed into the ladder — mirrors
// the RefreshBoundary call every live insert already triggers, needed here
// because Load inserts directly rather than going through the order
// handler.
func refreshLadderCaches(b *book.Book) {
	if !b.Config.IsGEM {
		return
	}
	for _, side := range [...]message.Side{message.Bid, message.Ask} {
		b.Cage.RefreshBoundary(side)
	}
}
