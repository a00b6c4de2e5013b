package book

import (
	"testing"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/lobcore/internal/ladder"
	"github.com/openalpha/lobcore/internal/message"
	"github.com/openalpha/lobcore/internal/precision"
)

func newTestBook(t *testing.T, exchange precision.Exchange, isGEM bool) *Book {
	t.Helper()
	spec, err := precision.Lookup(exchange, precision.Stock)
	require.NoError(t, err)
	cfg := Config{
		Exchange:   exchange,
		Instrument: precision.Stock,
		SecurityID: "000001",
		Spec:       spec,
		IsGEM:      isGEM,
		PrevClose:  10000,
		Backend:    ladder.BTree,
	}
	return New(cfg, log.NewNopLogger())
}

func TestBook_New_SeedsCageRefPxFromPrevClose(t *testing.T) {
	b := newTestBook(t, precision.SZSE, true)
	require.EqualValues(t, 10000, b.Cage.State().Bid.RefPx)
	require.EqualValues(t, 10000, b.Cage.State().Ask.RefPx)
	require.Equal(t, message.Starting, b.Phase)
}

func TestBook_LadderAndWeightSelectBySide(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	require.Same(t, b.Bids, b.Ladder(message.Bid))
	require.Same(t, b.Asks, b.Ladder(message.Ask))
	require.Same(t, &b.WeightBid, b.Weight(message.Bid))
	require.Same(t, &b.WeightAsk, b.Weight(message.Ask))
	require.Same(t, &b.WeightBidEx, b.WeightEx(message.Bid))
	require.Same(t, &b.WeightAskEx, b.WeightEx(message.Ask))
}

func TestBook_VisibleBest_NonGEMReadsLadderDirectly(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	b.Bids.InsertOrAdd(9900, 10)
	price, qty, ok := b.VisibleBest(message.Bid)
	require.True(t, ok)
	require.EqualValues(t, 9900, price)
	require.EqualValues(t, 10, qty)
}

func TestBook_CheckSeqMonotonic_SZSEEnforced(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	require.True(t, b.CheckSeqMonotonic(10))
	require.True(t, b.CheckSeqMonotonic(11))
	require.False(t, b.CheckSeqMonotonic(11), "equal seq is not strictly greater")
	require.False(t, b.CheckSeqMonotonic(5), "lower seq is rejected")
}

func TestBook_CheckSeqMonotonic_SSENotEnforced(t *testing.T) {
	b := newTestBook(t, precision.SSE, false)
	require.True(t, b.CheckSeqMonotonic(10))
	require.True(t, b.CheckSeqMonotonic(1), "SSE never asserts ordering")
}

func TestBook_LastAcceptedSeq_SaveRestoreRoundTrip(t *testing.T) {
	b := newTestBook(t, precision.SZSE, false)
	seq, have := b.LastAcceptedSeq()
	require.False(t, have)
	require.Zero(t, seq)

	b.CheckSeqMonotonic(42)
	seq, have = b.LastAcceptedSeq()
	require.True(t, have)
	require.EqualValues(t, 42, seq)

	restored := newTestBook(t, precision.SZSE, false)
	restored.SetLastAcceptedSeq(seq, have)
	require.False(t, restored.CheckSeqMonotonic(42), "restored checkpoint still rejects a repeat of the last accepted seq")
	require.True(t, restored.CheckSeqMonotonic(43))
}
