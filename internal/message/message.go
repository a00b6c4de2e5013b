package message

import "github.com/openalpha/lobcore/internal/precision"

// Kind tags the concrete payload a Message carries.
type Kind int8

const (
	KindUnspecified Kind = iota
	KindAddOrder
	KindExecution
	KindRefSnapshot
	KindSignal
)

// Message is the tagged sum the session controller dispatches on.
// Concrete payloads (AddOrder, Execution, RefSnapshot, Signal) each
// implement it; callers type-switch on the concrete payload type (as
// session.Controller.OnMessage does), mirroring the teacher's Event{Type EventType; ...} shape
// (offchain/matcher/matcher.go) reworked as a closed sum instead of an
// open struct-of-optionals.
type Message interface {
	Kind() Kind
}

// AddOrder is an incoming limit/market/own-side-best order (§6).
type AddOrder struct {
	Exchange      precision.Exchange
	Instrument    precision.Instrument
	SecurityID    string
	ApplSeqNum    uint32
	Side          Side
	Type          OrderType
	SSESubType    SSEOrderSubType // only meaningful for Exchange == SSE
	PriceRaw      uint64
	Qty           uint32
	TransactTime  uint32
	TradingPhase  Phase
}

func (AddOrder) Kind() Kind { return KindAddOrder }

// SSEOrderSubType distinguishes SSE's add/delete order sub-types (§4.F
// item 3: "For SSE, distinguish add vs delete sub-types").
type SSEOrderSubType int8

const (
	SSEOrderSubTypeUnspecified SSEOrderSubType = iota
	SSEOrderAdd
	SSEOrderDelete
)

// Execution is one trade print `{bid_seq, offer_seq, px, qty}` (§4.G).
type Execution struct {
	Exchange     precision.Exchange
	Instrument   precision.Instrument
	SecurityID   string
	BidSeq       uint32
	OfferSeq     uint32
	LastPxRaw    uint64
	LastQty      uint32
	TransactTime uint32
	ExecType     SZSEExecType // SZSE only; SSE cancels arrive as AddOrder{SSESubType: SSEOrderDelete}
	TradingPhase Phase
}

func (Execution) Kind() Kind { return KindExecution }

// LevelQty is one (price, qty) pair of a reference snapshot's 10-level
// depth, expressed in the exchange's raw snapshot precision.
type LevelQty struct {
	PriceRaw uint64
	Qty      uint64
}

// RefSnapshot is the exchange's own Level-10 snapshot, used only by the
// reconciler (§4.J) — the core never derives state from it.
type RefSnapshot struct {
	Exchange     precision.Exchange
	Instrument   precision.Instrument
	SecurityID   string
	TradingPhase Phase
	NumTrades    uint64
	Volume       uint64
	Value        uint64
	PrevClose    uint64
	LastPx       uint64
	OpenPx       uint64
	HighPx       uint64
	LowPx        uint64
	BidWeightPx  int64
	AskWeightPx  int64
	UpLimitPx    uint64
	DnLimitPx    uint64
	Bids         [10]LevelQty
	Asks         [10]LevelQty
	TransactTime uint32
}

func (RefSnapshot) Kind() Kind { return KindRefSnapshot }

// Signal is an external session-boundary signal (§4.E).
type Signal struct {
	Exchange     precision.Exchange
	SecurityID   string
	Type         SignalType
	TransactTime uint32
}

func (Signal) Kind() Kind { return KindSignal }
