// Package precision implements the §3/§6 raw-to-internal-to-snapshot price
// scaling tables and the width budgets every ingress value is checked
// against.
package precision

import (
	"cosmossdk.io/errors"
)

// Codespace is the registered error codespace for this module.
const Codespace = "lobcore"

var (
	// ErrOverflow is raised when a value exceeds its documented bit width.
	ErrOverflow = errors.Register(Codespace, 1, "width overflow on ingress")
	// ErrPrecisionRemainder flags a raw price not evenly divisible by the
	// internal unit; the truncated value is still used.
	ErrPrecisionRemainder = errors.Register(Codespace, 2, "raw price not divisible by internal unit")
	// ErrUnsupported flags an (exchange, instrument) pair with no precision
	// entry; the instrument must be aborted.
	ErrUnsupported = errors.Register(Codespace, 3, "unsupported exchange/instrument combination")
)

// Width budgets from §6.
const (
	MaxApplSeqNum   = uint32(1<<32 - 1)
	MaxPriceInternal = uint32(1<<25 - 1) // also ORDER_PRICE_OVERFLOW's mapped value
	MaxQty          = uint32(1<<30 - 1)
	MaxAggregateQty = uint64(1<<38 - 1)
	MaxTimestamp    = uint32(1<<28 - 1)

	// AskWeightPxSignedMax is the 31-bit signed maximum AskWeightPx clamps to.
	AskWeightPxSignedMax = int64(1<<31 - 1)
)

// Exchange identifies the originating market.
type Exchange int

const (
	ExchangeUnspecified Exchange = iota
	SZSE
	SSE
)

func (e Exchange) String() string {
	switch e {
	case SZSE:
		return "SZSE"
	case SSE:
		return "SSE"
	default:
		return "EXCHANGE_UNSPECIFIED"
	}
}

// Instrument identifies the security class.
type Instrument int

const (
	InstrumentUnspecified Instrument = iota
	Stock
	Fund
	KZZ
	Bond
)

func (i Instrument) String() string {
	switch i {
	case Stock:
		return "STOCK"
	case Fund:
		return "FUND"
	case KZZ:
		return "KZZ"
	case Bond:
		return "BOND"
	default:
		return "INSTRUMENT_UNSPECIFIED"
	}
}

// Spec is one row of the §6 precision table.
type Spec struct {
	RawDP      int // decimal places on the wire
	InternalDP int // decimal places in the book's internal units
	SnapshotDP int // decimal places in the emitted snapshot encoding
	QtyDP      int // decimal places for quantity fields
	ValueDP    int // decimal places for total trade value
}

// rawToInternalDivisor is 10^(RawDP-InternalDP); internalToSnapshotFactor is 10^(SnapshotDP-InternalDP).
func (s Spec) rawToInternalDivisor() uint64 {
	return pow10(s.RawDP - s.InternalDP)
}

func (s Spec) internalToSnapshotFactor() uint64 {
	return pow10(s.SnapshotDP - s.InternalDP)
}

func pow10(n int) uint64 {
	if n < 0 {
		n = 0
	}
	v := uint64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

// table is the §6 precision table, keyed by (Exchange, Instrument).
var table = map[Exchange]map[Instrument]Spec{
	SZSE: {
		Stock: {RawDP: 4, InternalDP: 2, SnapshotDP: 6, QtyDP: 2, ValueDP: 4},
		Fund:  {RawDP: 4, InternalDP: 3, SnapshotDP: 6, QtyDP: 2, ValueDP: 4},
		KZZ:   {RawDP: 4, InternalDP: 3, SnapshotDP: 6, QtyDP: 2, ValueDP: 4},
		// Exchange bonds on SZSE are not in the distilled spec's table but
		// share the fund/KZZ row (raw 4dp, internal 3dp) per original_source
		// axsbe_base.py INSTRUMENT_TYPE.BOND handling of SZSE cash bonds.
		Bond: {RawDP: 4, InternalDP: 3, SnapshotDP: 6, QtyDP: 2, ValueDP: 4},
	},
	SSE: {
		Stock: {RawDP: 3, InternalDP: 2, SnapshotDP: 3, QtyDP: 3, ValueDP: 5},
		Fund:  {RawDP: 3, InternalDP: 3, SnapshotDP: 3, QtyDP: 3, ValueDP: 5},
		KZZ:   {RawDP: 3, InternalDP: 3, SnapshotDP: 3, QtyDP: 3, ValueDP: 5},
		Bond:  {RawDP: 3, InternalDP: 3, SnapshotDP: 3, QtyDP: 3, ValueDP: 5},
	},
}

// Lookup returns the precision spec for (exchange, instrument), or
// ErrUnsupported if the combination is not in the table.
func Lookup(exchange Exchange, instrument Instrument) (Spec, error) {
	byInstrument, ok := table[exchange]
	if !ok {
		return Spec{}, errors.Wrapf(ErrUnsupported, "exchange %s", exchange)
	}
	spec, ok := byInstrument[instrument]
	if !ok {
		return Spec{}, errors.Wrapf(ErrUnsupported, "exchange %s instrument %s", exchange, instrument)
	}
	return spec, nil
}

// NormalizePrice converts a raw wire price to internal units for a LIMIT
// order. The ORDER_PRICE_OVERFLOW sentinel (raw == 0xFFFFFFFF by exchange
// convention) maps to MaxPriceInternal and is reported via overflow=true so
// the caller can apply the §4.F "fatal for a BID" rule. A non-zero
// remainder on truncating division is reported via remainder=true; the
// truncated value is still returned, per §3.
func NormalizePrice(raw uint64, overflowSentinel uint64, spec Spec) (internal uint32, overflow bool, remainder bool) {
	if raw == overflowSentinel {
		return MaxPriceInternal, true, false
	}
	divisor := spec.rawToInternalDivisor()
	if divisor == 0 {
		divisor = 1
	}
	q := raw / divisor
	r := raw % divisor
	if q > uint64(MaxPriceInternal) {
		return MaxPriceInternal, true, r != 0
	}
	return uint32(q), false, r != 0
}

// ToSnapshotPrice rescales an internal-unit price to the exchange snapshot
// encoding's decimal places (§4.I: SZSE 6dp, SSE 3dp).
func ToSnapshotPrice(internal uint32, spec Spec) uint64 {
	return uint64(internal) * spec.internalToSnapshotFactor()
}

// FromSnapshotPrice rescales a price already in the exchange's snapshot
// encoding (as carried by an incoming reference snapshot, §6) down to the
// book's internal units — the reverse of ToSnapshotPrice, used when a
// Starting-phase reference snapshot seeds prev_close/up_limit/dn_limit
// (§4.E, axob.py onSnap).
func FromSnapshotPrice(snap uint64, spec Spec) uint32 {
	factor := spec.internalToSnapshotFactor()
	if factor == 0 {
		factor = 1
	}
	return uint32(snap / factor)
}

// ClipAskWeightPx clamps a signed weighted-average price to the 31-bit
// signed maximum the snapshot encoding allows, flagging uncertainty per
// §9(d).
func ClipAskWeightPx(v int64) (clipped int64, uncertain bool) {
	if v > AskWeightPxSignedMax {
		return AskWeightPxSignedMax, true
	}
	if v < -AskWeightPxSignedMax-1 {
		return -AskWeightPxSignedMax - 1, true
	}
	return v, false
}

// TradeValue rescales one execution's price·qty product from the book's
// internal price/qty decimal places to the exchange's ValueDP (§4.G item 1:
// "update total_value_trade with per-exchange and per-instrument precision
// factors"), by the same power-of-ten rescaling NormalizePrice/ToSnapshotPrice
// use elsewhere in this table.
func TradeValue(priceInternal uint32, qty uint32, spec Spec) uint64 {
	raw := uint64(priceInternal) * uint64(qty)
	srcDP := spec.InternalDP + spec.QtyDP
	if spec.ValueDP >= srcDP {
		return raw * pow10(spec.ValueDP-srcDP)
	}
	return raw / pow10(srcDP-spec.ValueDP)
}

// ClipUint32 clips a wider accumulator down to the snapshot encoding's
// unsigned 32-bit volume/value fields (supplemented from
// original_source/py/behave/axob.py `_clipUint32`).
func ClipUint32(v uint64) uint32 {
	const max32 = uint64(1<<32 - 1)
	if v > max32 {
		return uint32(max32)
	}
	return uint32(v)
}

// ClipInt32 is the signed counterpart used for fields that may go negative
// in degenerate reconstructions (original_source `_clipInt32`).
func ClipInt32(v int64) int32 {
	const maxI32 = int64(1<<31 - 1)
	const minI32 = -int64(1 << 31)
	if v > maxI32 {
		return int32(maxI32)
	}
	if v < minI32 {
		return int32(minI32)
	}
	return int32(v)
}
