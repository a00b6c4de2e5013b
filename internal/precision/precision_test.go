package precision

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookup_KnownCombinations(t *testing.T) {
	spec, err := Lookup(SZSE, Stock)
	require.NoError(t, err)
	require.Equal(t, Spec{RawDP: 4, InternalDP: 2, SnapshotDP: 6, QtyDP: 2, ValueDP: 4}, spec)

	spec, err = Lookup(SSE, Stock)
	require.NoError(t, err)
	require.Equal(t, Spec{RawDP: 3, InternalDP: 2, SnapshotDP: 3, QtyDP: 3, ValueDP: 5}, spec)
}

func TestLookup_UnsupportedCombination(t *testing.T) {
	_, err := Lookup(ExchangeUnspecified, Stock)
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = Lookup(SZSE, InstrumentUnspecified)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestNormalizePrice_TruncatesAndFlagsRemainder(t *testing.T) {
	spec, err := Lookup(SZSE, Stock) // raw 4dp -> internal 2dp, divisor 100
	require.NoError(t, err)

	internal, overflow, remainder := NormalizePrice(123400, 0xFFFFFFFF, spec)
	require.False(t, overflow)
	require.False(t, remainder)
	require.EqualValues(t, 1234, internal)

	internal, overflow, remainder = NormalizePrice(123456, 0xFFFFFFFF, spec)
	require.False(t, overflow)
	require.True(t, remainder, "56/100 has a nonzero remainder")
	require.EqualValues(t, 1234, internal, "the truncated value is still used")
}

func TestNormalizePrice_OverflowSentinelMapsToMaxPriceInternal(t *testing.T) {
	spec, err := Lookup(SZSE, Stock)
	require.NoError(t, err)

	internal, overflow, remainder := NormalizePrice(0xFFFFFFFF, 0xFFFFFFFF, spec)
	require.True(t, overflow)
	require.False(t, remainder)
	require.Equal(t, MaxPriceInternal, internal)
}

func TestNormalizePrice_WidthOverflowClampsAndFlags(t *testing.T) {
	spec, err := Lookup(SZSE, Stock)
	require.NoError(t, err)

	raw := uint64(MaxPriceInternal)*100 + 500 // quotient exceeds MaxPriceInternal
	internal, overflow, _ := NormalizePrice(raw, 0xFFFFFFFF, spec)
	require.True(t, overflow)
	require.Equal(t, MaxPriceInternal, internal)
}

func TestToSnapshotPrice_And_FromSnapshotPrice_RoundTrip(t *testing.T) {
	spec, err := Lookup(SZSE, Stock) // internal 2dp -> snapshot 6dp, factor 10^4
	require.NoError(t, err)

	snap := ToSnapshotPrice(1234, spec)
	require.EqualValues(t, 12340000, snap)

	back := FromSnapshotPrice(snap, spec)
	require.EqualValues(t, 1234, back)
}

func TestClipAskWeightPx_ClampsToSigned31Bit(t *testing.T) {
	clipped, uncertain := ClipAskWeightPx(AskWeightPxSignedMax)
	require.False(t, uncertain)
	require.Equal(t, AskWeightPxSignedMax, clipped)

	clipped, uncertain = ClipAskWeightPx(AskWeightPxSignedMax + 1)
	require.True(t, uncertain)
	require.Equal(t, AskWeightPxSignedMax, clipped)

	clipped, uncertain = ClipAskWeightPx(-AskWeightPxSignedMax - 2)
	require.True(t, uncertain)
	require.Equal(t, -AskWeightPxSignedMax-1, clipped)
}

func TestTradeValue_RescalesToValueDP(t *testing.T) {
	spec, err := Lookup(SZSE, Stock) // internal 2dp + qty 2dp = 4dp source, ValueDP 4 -> factor 1
	require.NoError(t, err)
	require.EqualValues(t, 1234*100, TradeValue(1234, 100, spec))
}

func TestClipUint32_And_ClipInt32(t *testing.T) {
	require.EqualValues(t, 1<<32-1, ClipUint32(uint64(1<<32)+5))
	require.EqualValues(t, 5, ClipUint32(5))

	require.EqualValues(t, 1<<31-1, ClipInt32(int64(1<<31)+5))
	require.EqualValues(t, -(1 << 31), ClipInt32(-int64(1<<31)-5))
	require.EqualValues(t, -5, ClipInt32(-5))
}
