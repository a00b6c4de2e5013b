package book

import (
	"cosmossdk.io/log"

	"github.com/openalpha/lobcore/internal/cage"
	"github.com/openalpha/lobcore/internal/ladder"
	"github.com/openalpha/lobcore/internal/message"
	"github.com/openalpha/lobcore/internal/precision"
)

// Config identifies one instrument's static parameters, injected at
// construction the way the teacher injects ParallelConfig into its Keeper
// (x/orderbook/keeper/keeper.go, performance_config.go).
type Config struct {
	Exchange      precision.Exchange
	Instrument    precision.Instrument
	SecurityID    string
	Spec          precision.Spec
	IsGEM         bool // SZSE ChiNext/GEM: cage controller is active
	IPOWithinDays bool // IPO ≤5 days: up/dn-limit absent, illegal-order band enforced
	PrevClose     uint32
	UpLimitPx     uint32 // 0 means absent (IPO day)
	DnLimitPx     uint32
	OverflowRaw   uint64 // raw ORDER_PRICE_OVERFLOW sentinel value; 0 selects the 0xFFFFFFFF exchange convention
	Backend       ladder.Backend
}

// Book is the per-instrument core value (teacher analogue: Keeper). It
// owns everything in §3: both ladders, the order directory, the hold
// slot, the illegal-order set, the cage controller, OHLC/trade stats, the
// per-side weighted aggregates (plus the open-call "ex" buffer), the
// current phase, and a scoped logger. No package-level mutable state is
// used anywhere in this module (§9 design note).
type Book struct {
	Config Config
	Logger log.Logger

	Bids ladder.Ladder
	Asks ladder.Ladder

	Directory    *Directory
	Hold         HoldSlot
	Illegal      *IllegalOrderSet
	Cage         *cage.Controller
	Stats        TradeStats
	WeightBid    WeightedAggregate
	WeightAsk    WeightedAggregate
	WeightBidEx  WeightedAggregate // open-call buffer for ultra-high bids (never used on SZSE per observed feed, kept symmetric with Ask)
	WeightAskEx  WeightedAggregate // open-call buffer for sells priced > 9x prev-close (§4.G)

	Phase Phase

	// ClosePxReady is the session controller's closePx_ready flag (§4.E):
	// on ALL_END, SZSE either derives a close price directly from a
	// matched close-call (ready immediately) or must wait for the
	// exchange's own Ending-phase reference snapshot to report LastPx
	// (ready only once that arrives). Gates whether Build emits anything
	// while Phase == Ending.
	ClosePxReady bool

	AskWeightPxUncertain bool // §9(d): set when AskWeightPx was clamped

	lastAcceptedSeq uint32 // SZSE monotonicity check (§5)
	haveLastSeq     bool
}

// Phase mirrors message.Phase; re-exported here so callers of package book
// don't need to import message for this one type.
type Phase = message.Phase

// New constructs an empty Book for one instrument.
func New(cfg Config, logger log.Logger) *Book {
	if cfg.OverflowRaw == 0 {
		cfg.OverflowRaw = 0xFFFFFFFF
	}
	b := &Book{
		Config:    cfg,
		Logger:    logger.With("security_id", cfg.SecurityID, "exchange", cfg.Exchange.String()),
		Bids:      ladder.New(message.Bid, cfg.Backend),
		Asks:      ladder.New(message.Ask, cfg.Backend),
		Directory: NewDirectory(),
		Illegal:   NewIllegalOrderSet(),
		Phase:     message.Starting,
	}
	b.Stats.LastPx = 0
	ladders := map[message.Side]cage.LadderView{message.Bid: b.Bids, message.Ask: b.Asks}
	weights := map[message.Side]cage.Weighted{message.Bid: &b.WeightBid, message.Ask: &b.WeightAsk}
	b.Cage = cage.NewController(ladders, weights)
	b.Cage.State().Bid.RefPx = cfg.PrevClose
	b.Cage.State().Ask.RefPx = cfg.PrevClose
	return b
}

// Ladder returns the ladder for side.
func (b *Book) Ladder(side message.Side) ladder.Ladder {
	if side == message.Bid {
		return b.Bids
	}
	return b.Asks
}

// Weight returns the weighted aggregate for side.
func (b *Book) Weight(side message.Side) *WeightedAggregate {
	if side == message.Bid {
		return &b.WeightBid
	}
	return &b.WeightAsk
}

// WeightEx returns the open-call overflow weighted aggregate for side.
func (b *Book) WeightEx(side message.Side) *WeightedAggregate {
	if side == message.Bid {
		return &b.WeightBidEx
	}
	return &b.WeightAskEx
}

// VisibleBest returns the cached best price/qty for side, excluding any
// cage-hidden level (§3 per-side cached extremum invariant).
func (b *Book) VisibleBest(side message.Side) (price uint32, qty uint64, ok bool) {
	if b.Config.IsGEM {
		return b.Cage.VisibleBest(side)
	}
	return b.Ladder(side).Best()
}

// CheckSeqMonotonic asserts the §5 SZSE ordering invariant: every accepted
// SZSE order or execution must carry a strictly greater appl_seq_num than
// the previous one. SSE streams are not asserted on (§5). Returns false
// (and logs) if seq violates monotonicity; the caller should reject/skip
// the message.
func (b *Book) CheckSeqMonotonic(seq uint32) bool {
	if b.Config.Exchange != precision.SZSE {
		return true
	}
	if b.haveLastSeq && seq <= b.lastAcceptedSeq {
		b.Logger.Error("non-monotonic appl_seq_num", "seq", seq, "last", b.lastAcceptedSeq)
		return false
	}
	b.lastAcceptedSeq = seq
	b.haveLastSeq = true
	return true
}

// LastAcceptedSeq returns the SZSE monotonicity checkpoint
// (lastAcceptedSeq, haveLastSeq), for internal/persist to save/restore
// across a checkpoint without re-deriving it from the replayed order set
// (appl_seq_num order is not recoverable from the directory alone, since
// orders can be removed by trade or cancel before a checkpoint is taken).
func (b *Book) LastAcceptedSeq() (seq uint32, have bool) {
	return b.lastAcceptedSeq, b.haveLastSeq
}

// SetLastAcceptedSeq restores the SZSE monotonicity checkpoint. Used only
// by internal/persist.Load.
func (b *Book) SetLastAcceptedSeq(seq uint32, have bool) {
	b.lastAcceptedSeq = seq
	b.haveLastSeq = have
}
