package proxy

import (
	"github.com/mosaicnetworks/chorus/src/hashgraph"
)

// AppProxy is the interface between a chorus node and the application it
// orders transactions for. Transactions flow in through SubmitCh, and every
// decided round flows out through CommitBatch, in consensus order.
type AppProxy interface {
	SubmitCh() chan []byte
	CommitBatch(batch Batch) error
}

// ProxyHandler encapsulates the callbacks invoked by the InmemProxy. This is
// the true contact surface between chorus and the application.
type ProxyHandler interface {
	// CommitHandler is called when a round's events reach consensus
	CommitHandler(batch Batch) error
}

// CommitCallback is the function a node calls with each committed Batch.
type CommitCallback func(batch Batch) error

// DummyCommitCallback is used for testing
func DummyCommitCallback(batch Batch) error {
	return nil
}

// Batch is the set of Events that reached consensus together, because they
// share the same round-received. Events are in consensus order.
type Batch struct {
	RoundReceived int
	Events        []hashgraph.ConsensusEvent
}

// NewBatch groups consensus events under their round-received.
func NewBatch(roundReceived int, events []hashgraph.ConsensusEvent) Batch {
	return Batch{
		RoundReceived: roundReceived,
		Events:        events,
	}
}

// Transactions returns the payloads of the batch's Events, flattened in
// consensus order.
func (b Batch) Transactions() [][]byte {
	txs := [][]byte{}
	for _, e := range b.Events {
		txs = append(txs, e.Transactions...)
	}
	return txs
}
