package snapshot

import (
	"testing"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/lobcore/internal/book"
	"github.com/openalpha/lobcore/internal/ladder"
	"github.com/openalpha/lobcore/internal/message"
	"github.com/openalpha/lobcore/internal/precision"
)

func newTestBook(t *testing.T, isGEM bool) *book.Book {
	t.Helper()
	spec, err := precision.Lookup(precision.SZSE, precision.Stock)
	require.NoError(t, err)
	cfg := book.Config{
		Exchange:   precision.SZSE,
		Instrument: precision.Stock,
		SecurityID: "000001",
		Spec:       spec,
		IsGEM:      isGEM,
		PrevClose:  10000,
		Backend:    ladder.BTree,
	}
	return book.New(cfg, log.NewNopLogger())
}

func TestBuild_BeforeOpenCallReturnsNil(t *testing.T) {
	b := newTestBook(t, false)
	b.Phase = message.Starting
	require.Nil(t, Build(b, 1000))
}

func TestBuild_EndingWithoutClosePxReadyReturnsNil(t *testing.T) {
	b := newTestBook(t, false)
	b.Phase = message.Ending
	b.ClosePxReady = false
	require.Nil(t, Build(b, 1000))
}

func TestBuild_EndingWithClosePxReadyReturnsTradingSnapshot(t *testing.T) {
	b := newTestBook(t, false)
	b.Phase = message.Ending
	b.ClosePxReady = true
	s := Build(b, 1000)
	require.NotNil(t, s)
	require.Equal(t, message.Ending, s.Phase)
}

func TestBuild_VolatilityBreakingZeroesLevelsAndWeights(t *testing.T) {
	b := newTestBook(t, false)
	b.Phase = message.VolatilityBreaking
	b.Bids.InsertOrAdd(9900, 100)
	b.WeightBid.Add(9900, 100)

	s := Build(b, 1000)
	require.NotNil(t, s)
	require.Zero(t, s.Bids[0])
	require.Zero(t, s.BidWeightPx)
	require.Zero(t, s.BidWeightQty)
}

func TestBuildTrading_TopLevelsExcludeGEMHiddenLevel(t *testing.T) {
	b := newTestBook(t, true)
	b.Phase = message.AMTrading
	// Within the cage: visible.
	b.Asks.InsertOrAdd(9900, 10)
	b.WeightAsk.Add(9900, 10)
	// Below the 9800 floor for a 10000 ref_px: hidden.
	b.Asks.InsertOrAdd(9700, 20)

	s := Build(b, 1000)
	require.NotNil(t, s)
	require.EqualValues(t, 9900*10000, s.Asks[0].Price) // internal 9900 -> snapshot 6dp factor 10^4
	require.EqualValues(t, 10, s.Asks[0].Qty)
	require.Zero(t, s.Asks[1], "the cage-hidden level below the floor never reaches the top-10 view")
}

func TestBuildTrading_WeightedAveragesAreRoundedAndScaled(t *testing.T) {
	b := newTestBook(t, false)
	b.Phase = message.AMTrading
	b.WeightBid.Add(100, 1)
	b.WeightBid.Add(101, 1) // average 100.5 rounds up to 101

	s := Build(b, 1000)
	require.NotNil(t, s)
	require.EqualValues(t, 101*10000, s.BidWeightPx)
	require.EqualValues(t, 2, s.BidWeightQty)
}

func TestBuildTrading_AskWeightPxUncertainPropagatesFromBook(t *testing.T) {
	b := newTestBook(t, false)
	b.Phase = message.AMTrading
	b.AskWeightPxUncertain = true

	s := Build(b, 1000)
	require.NotNil(t, s)
	require.True(t, s.AskWeightPxUncertain)
}

func TestBuildCallAuction_CrossingBookMatchesAtReferencePrice(t *testing.T) {
	b := newTestBook(t, false)
	b.Phase = message.OpenCall
	b.Bids.InsertOrAdd(10000, 50) // bid at prev_close exactly
	b.Asks.InsertOrAdd(9900, 30)  // ask below prev_close

	s := Build(b, 1000)
	require.NotNil(t, s)
	require.EqualValues(t, 10000*10000, s.Bids[0].Price)
	require.EqualValues(t, 30, s.Bids[0].Qty, "both legs trade at the smaller side's full quantity")
	require.EqualValues(t, 20, s.Bids[1].Qty, "the larger bid's residual after the match")
	require.Zero(t, s.Bids[1].Price)
}

func TestBuildCallAuction_NonCrossingBookTradesNothing(t *testing.T) {
	b := newTestBook(t, false)
	b.Phase = message.OpenCall
	b.Bids.InsertOrAdd(9800, 50)
	b.Asks.InsertOrAdd(9900, 30)

	s := Build(b, 1000)
	require.NotNil(t, s)
	require.Zero(t, s.Bids[0])
	require.Zero(t, s.Asks[0])
}

func TestBuildCallAuction_SZSEZeroesWeightsSSEReportsThem(t *testing.T) {
	bSZSE := newTestBook(t, false)
	bSZSE.Phase = message.OpenCall
	bSZSE.WeightBid.Add(100, 10)
	sSZSE := Build(bSZSE, 1000)
	require.NotNil(t, sSZSE)
	require.Zero(t, sSZSE.BidWeightPx)
	require.Zero(t, sSZSE.BidWeightQty)

	spec, err := precision.Lookup(precision.SSE, precision.Stock)
	require.NoError(t, err)
	cfg := book.Config{
		Exchange:   precision.SSE,
		Instrument: precision.Stock,
		SecurityID: "600000",
		Spec:       spec,
		PrevClose:  10000,
		Backend:    ladder.BTree,
	}
	bSSE := book.New(cfg, log.NewNopLogger())
	bSSE.Phase = message.OpenCall
	bSSE.WeightBid.Add(100, 10)
	sSSE := Build(bSSE, 1000)
	require.NotNil(t, sSSE)
	require.NotZero(t, sSSE.BidWeightQty)
}

func TestSnapshot_FieldEqual_IgnoresTransactTimeAndToleratesAskWeightWildcard(t *testing.T) {
	a := &Snapshot{Phase: message.AMTrading, LastPx: 100, TransactTime: 1, AskWeightPx: 5}
	b := &Snapshot{Phase: message.AMTrading, LastPx: 100, TransactTime: 999, AskWeightPx: 5}
	require.True(t, a.FieldEqual(b))

	b.AskWeightPx = 999
	require.False(t, a.FieldEqual(b), "a mismatched AskWeightPx with neither side uncertain is a real difference")

	b.AskWeightPxUncertain = true
	require.True(t, a.FieldEqual(b), "an uncertain AskWeightPx is a wildcard on either side of the comparison")
}

func TestSnapshot_FieldEqual_NilHandling(t *testing.T) {
	var a, b *Snapshot
	require.True(t, a.FieldEqual(b))

	a = &Snapshot{}
	require.False(t, a.FieldEqual(b))
}
