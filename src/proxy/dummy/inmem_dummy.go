package dummy

import (
	"github.com/mosaicnetworks/chorus/src/proxy/inmem"
	"github.com/sirupsen/logrus"
)

// InmemDummyClient is an in-memory implementation of the dummy app. It
// implements the AppProxy interface, and can be passed to the node
// constructor directly
type InmemDummyClient struct {
	*inmem.InmemProxy
	state  *State
	logger *logrus.Entry
}

// NewInmemDummyClient instantiates an InmemDummyClient
func NewInmemDummyClient(logger *logrus.Entry) *InmemDummyClient {
	state := NewState(logger)

	proxy := inmem.NewInmemProxy(state, logger)

	return &InmemDummyClient{
		InmemProxy: proxy,
		state:      state,
		logger:     logger,
	}
}

// GetCommittedTransactions returns the state's list of transactions
func (c *InmemDummyClient) GetCommittedTransactions() [][]byte {
	return c.state.GetCommittedTransactions()
}

// GetStateHash returns the state's running hash
func (c *InmemDummyClient) GetStateHash() []byte {
	return c.state.GetStateHash()
}
