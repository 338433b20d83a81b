package model

// GlobalID is a network-wide unique neuron or device identifier.
// The zero value is reserved and never assigned to a node.
type GlobalID uint64

const InvalidGlobalID GlobalID = 0

// LocalID is a dense per-thread index of a node within its owning thread.
type LocalID uint32

// ThreadID identifies a worker thread within one compute rank.
type ThreadID int

// Rank identifies one compute unit of the cluster.
type Rank int

// SynIndex is the index of a synapse model within the registry.
type SynIndex int

const InvalidSynIndex SynIndex = -1

// LCID is the position of a connection record inside its thread/synapse-type
// storage array. LCIDs are invalidated by sorting and by disconnects.
type LCID uint32

// Target is one resolved outgoing routing entry: where an event produced by
// a source neuron has to be delivered.
type Target struct {
	Rank   Rank     `json:"rank"`
	Thread ThreadID `json:"thread"`
	Syn    SynIndex `json:"syn"`
	LCID   LCID     `json:"lcid"`
}

// TargetData is the wire-level routing record exchanged during target
// resolution. The receiving rank owns the source neuron and files Target
// under (SourceThread, SourceLID).
type TargetData struct {
	SourceThread ThreadID `json:"source_thread"`
	SourceLID    LocalID  `json:"source_lid"`
	Target       Target   `json:"target"`
	Primary      bool     `json:"primary"`
}

// ConnInfo is one row of a connection query result.
type ConnInfo struct {
	Source  GlobalID `json:"source"`
	Target  GlobalID `json:"target"`
	Thread  ThreadID `json:"thread"`
	Synapse string   `json:"synapse"`
	LCID    LCID     `json:"lcid"`
	Weight  float64  `json:"weight"`
	DelayMS float64  `json:"delay_ms"`
}

// TimedCount is one element of a weight-update broadcast batch: how many
// modulatory events the emitter produced at a given time.
type TimedCount struct {
	TimeMS float64
	Count  int
}
