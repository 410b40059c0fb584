package dummy

import (
	"sync"

	"github.com/mosaicnetworks/chorus/src/crypto"
	"github.com/mosaicnetworks/chorus/src/proxy"
	"github.com/sirupsen/logrus"
)

// State is a trivial application: it records committed transactions and
// folds them into a running hash. Two nodes that committed the same
// transactions in the same order have the same state hash.
type State struct {
	sync.Mutex
	committedTxs [][]byte
	stateHash    []byte
	lastRound    int
	logger       *logrus.Entry
}

// NewState ...
func NewState(logger *logrus.Entry) *State {
	return &State{
		committedTxs: [][]byte{},
		stateHash:    []byte{},
		lastRound:    -1,
		logger:       logger,
	}
}

// CommitHandler implements the ProxyHandler interface
func (a *State) CommitHandler(batch proxy.Batch) error {
	a.Lock()
	defer a.Unlock()

	hash := a.stateHash
	for _, tx := range batch.Transactions() {
		hash = crypto.SHA256Concat(hash, crypto.SHA256(tx))
		a.committedTxs = append(a.committedTxs, tx)
	}
	a.stateHash = hash
	a.lastRound = batch.RoundReceived

	a.logger.WithFields(logrus.Fields{
		"round_received": batch.RoundReceived,
		"events":         len(batch.Events),
		"committed_txs":  len(a.committedTxs),
	}).Debug("CommitBatch")

	return nil
}

// GetCommittedTransactions returns a copy of the list of committed
// transactions
func (a *State) GetCommittedTransactions() [][]byte {
	a.Lock()
	defer a.Unlock()

	res := make([][]byte, len(a.committedTxs))
	copy(res, a.committedTxs)
	return res
}

// GetStateHash returns the running hash of committed transactions
func (a *State) GetStateHash() []byte {
	a.Lock()
	defer a.Unlock()
	return a.stateHash
}

// LastRound returns the round-received of the last committed batch, -1 if
// none
func (a *State) LastRound() int {
	a.Lock()
	defer a.Unlock()
	return a.lastRound
}
