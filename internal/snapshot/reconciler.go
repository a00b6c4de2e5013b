package snapshot

import (
	"github.com/openalpha/lobcore/internal/message"
	"github.com/openalpha/lobcore/internal/precision"
)

// Reconciler implements component 4.J: a NumTrades-keyed bucket pairing
// rebuilt snapshots against the exchange's own reference snapshots,
// grounded on axob.py's `onSnap`/`genSnap` trailer and `are_you_ok`.
//
// Two buckets are kept, both keyed by cumulative trade count: unmatched
// exchange snapshots (waiting for a rebuilt snapshot to confirm them) and
// unmatched rebuilt snapshots (kept around because a later exchange
// snapshot at the same NumTrades may still arrive and need pairing).
type Reconciler struct {
	exchange map[uint64][]*Snapshot
	rebuilt  map[uint64][]*Snapshot

	lastRebuilt *Snapshot
	matched     int
}

// NewReconciler constructs an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{
		exchange: make(map[uint64][]*Snapshot),
		rebuilt:  make(map[uint64][]*Snapshot),
	}
}

// chkTimestamp is §4.J's per-exchange timestamp-consistency rule: SZSE
// requires the rebuilt snapshot's second not to run ahead of the exchange
// snapshot's by more than one second; SSE is not enforced. Phases with no
// accompanying tick (pre-trading break, break, ending+) skip the check
// entirely, per axob.py `_chkSnapTimestamp`.
func chkTimestamp(exchange precision.Exchange, rebuilt, ex *Snapshot) bool {
	if rebuilt.Phase == ex.Phase &&
		(rebuilt.Phase == message.PreTradingBreaking ||
			rebuilt.Phase == message.Breaking ||
			rebuilt.Phase >= message.Ending) {
		return true
	}
	if exchange != precision.SZSE {
		return true
	}
	return rebuilt.TransactTime/1000 <= ex.TransactTime/1000+1
}

// OnExchangeSnapshot is §4.J's handling of one incoming exchange snapshot.
// It tries, in order: match against last_rebuilt_snap (without consuming
// it, since ticks may be absent and a later snapshot may need the same
// comparison again); match against the rebuilt bucket at this NumTrades;
// otherwise stash the exchange snapshot for a later rebuilt snapshot to
// claim.
func (r *Reconciler) OnExchangeSnapshot(ex *Snapshot) {
	if r.lastRebuilt != nil && r.lastRebuilt.FieldEqual(ex) && chkTimestamp(ex.Exchange, r.lastRebuilt, ex) {
		r.matched++
		r.discardOlderThan(ex.NumTrades)
		return
	}
	for _, gen := range r.rebuilt[ex.NumTrades] {
		if gen.FieldEqual(ex) && chkTimestamp(ex.Exchange, gen, ex) {
			r.matched++
			r.discardOlderThan(ex.NumTrades)
			return
		}
	}
	r.exchange[ex.NumTrades] = append(r.exchange[ex.NumTrades], ex)
}

// OnRebuiltSnapshot is the symmetric half: every snapshot this instance's
// own builder emits is recorded here, searching the exchange bucket for a
// pairing partner the same way.
func (r *Reconciler) OnRebuiltSnapshot(rebuilt *Snapshot) {
	r.lastRebuilt = rebuilt

	var matched []*Snapshot
	for _, recv := range r.exchange[rebuilt.NumTrades] {
		if rebuilt.FieldEqual(recv) && chkTimestamp(rebuilt.Exchange, rebuilt, recv) {
			matched = append(matched, recv)
		}
	}
	if len(matched) > 0 {
		r.matched += len(matched)
		remaining := r.exchange[rebuilt.NumTrades][:0]
		for _, recv := range r.exchange[rebuilt.NumTrades] {
			if !contains(matched, recv) {
				remaining = append(remaining, recv)
			}
		}
		if len(remaining) == 0 {
			delete(r.exchange, rebuilt.NumTrades)
		} else {
			r.exchange[rebuilt.NumTrades] = remaining
		}
	}

	r.rebuilt[rebuilt.NumTrades] = append(r.rebuilt[rebuilt.NumTrades], rebuilt)
}

func contains(haystack []*Snapshot, needle *Snapshot) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// discardOlderThan drops every rebuilt bucket keyed strictly below
// numTrades, mirroring axob.py's cleanup after a confirmed match.
func (r *Reconciler) discardOlderThan(numTrades uint64) {
	for k := range r.rebuilt {
		if k < numTrades {
			delete(r.rebuilt, k)
		}
	}
}

// AreYouOK is the terminal reconciliation invariant (§8 property 7): after
// all input is consumed, every exchange bucket must be empty.
func (r *Reconciler) AreYouOK() bool {
	for _, ls := range r.exchange {
		if len(ls) != 0 {
			return false
		}
	}
	return true
}

// MatchedCount returns the running total of exchange snapshots successfully
// paired against a rebuilt one, for the replay CLI's matched-snapshot
// counter.
func (r *Reconciler) MatchedCount() int {
	return r.matched
}

// UnmatchedCount returns the total number of unmatched exchange snapshots
// still pending, for diagnostics when AreYouOK returns false.
func (r *Reconciler) UnmatchedCount() int {
	n := 0
	for _, ls := range r.exchange {
		n += len(ls)
	}
	return n
}

// State is the serializable form of a Reconciler's pending buckets (§9
// design note: "save/load of the core state"), used by internal/persist.
type State struct {
	Exchange    map[uint64][]*Snapshot
	Rebuilt     map[uint64][]*Snapshot
	LastRebuilt *Snapshot
}

// Dump captures the reconciler's current buckets for a checkpoint.
func (r *Reconciler) Dump() State {
	return State{Exchange: r.exchange, Rebuilt: r.rebuilt, LastRebuilt: r.lastRebuilt}
}

// Restore rebuilds a Reconciler from a previously dumped State.
func Restore(state State) *Reconciler {
	r := NewReconciler()
	if state.Exchange != nil {
		r.exchange = state.Exchange
	}
	if state.Rebuilt != nil {
		r.rebuilt = state.Rebuilt
	}
	r.lastRebuilt = state.LastRebuilt
	return r
}
