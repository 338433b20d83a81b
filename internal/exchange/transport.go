// Package exchange defines the transport contract the resolution
// protocol relies on: a synchronous, barrier-style all-to-all exchange
// of bounded routing-record batches between compute ranks. The core only
// fills and consumes batches; moving the bytes is the collaborator's
// job.
package exchange

import (
	"context"
	"errors"
	"fmt"

	"synaptor/internal/model"
)

// ErrProtocolInvariant flags a routing record the receiving rank cannot
// place. It should not occur with correct callers and is fatal to the
// network-build phase.
var ErrProtocolInvariant = errors.New("resolution protocol invariant violated")

// Batch is what one rank sends to one peer in one round. Complete
// signals the sender's source table is fully drained; termination is
// detected from these markers, never from a fixed round count.
type Batch struct {
	Data     []model.TargetData
	Complete bool
}

// Transport performs one collective round. All ranks must call it for
// round k before any rank enters round k+1; the protocol has no
// partial-success mode.
type Transport interface {
	// ExchangeTargetData sends send[r] to rank r and returns the batches
	// received from every rank, indexed by sender.
	ExchangeTargetData(ctx context.Context, from model.Rank, send []Batch) ([]Batch, error)
	Ranks() int
}

// InProc is the transport used when all ranks are hosted in one process:
// a mailbox matrix of single-slot channels. Every rank deposits all its
// outgoing batches and then collects its incoming ones, which gives the
// required barrier behavior as long as each rank runs the round on its
// own goroutine.
type InProc struct {
	numRanks int
	mail     [][]chan Batch // mail[to][from]
}

func NewInProc(numRanks int) (*InProc, error) {
	if numRanks <= 0 {
		return nil, fmt.Errorf("rank count must be > 0, got %d", numRanks)
	}
	mail := make([][]chan Batch, numRanks)
	for to := range mail {
		mail[to] = make([]chan Batch, numRanks)
		for from := range mail[to] {
			mail[to][from] = make(chan Batch, 1)
		}
	}
	return &InProc{numRanks: numRanks, mail: mail}, nil
}

func (x *InProc) Ranks() int { return x.numRanks }

func (x *InProc) ExchangeTargetData(ctx context.Context, from model.Rank, send []Batch) ([]Batch, error) {
	if int(from) < 0 || int(from) >= x.numRanks {
		return nil, fmt.Errorf("rank %d out of range", from)
	}
	if len(send) != x.numRanks {
		return nil, fmt.Errorf("send buffers for %d ranks required, got %d", x.numRanks, len(send))
	}
	for to := 0; to < x.numRanks; to++ {
		select {
		case x.mail[to][from] <- send[to]:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	recv := make([]Batch, x.numRanks)
	for sender := 0; sender < x.numRanks; sender++ {
		select {
		case recv[sender] = <-x.mail[from][sender]:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return recv, nil
}
