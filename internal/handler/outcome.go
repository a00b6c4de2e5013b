package handler

// Outcome reports which snapshots a handler invocation requires the caller
// (the session controller, 4.E) to build and emit. A single incoming
// message can demand two: a pre-snapshot stamped with a flushed hold
// order's own timestamp (§4.C), followed by the snapshot for the message
// itself.
type Outcome struct {
	PreSnapshot     bool
	PreSnapshotTime uint32
	Snapshot        bool
	SnapshotTime    uint32
}
