package inmem

import (
	"github.com/mosaicnetworks/chorus/src/proxy"
	"github.com/sirupsen/logrus"
)

// InmemProxy implements the AppProxy interface natively
type InmemProxy struct {
	handler  proxy.ProxyHandler
	submitCh chan []byte
	logger   *logrus.Entry
}

// NewInmemProxy instantiates an InmemProxy from a set of handlers. If no
// logger, a new one is created
func NewInmemProxy(handler proxy.ProxyHandler,
	logger *logrus.Entry) *InmemProxy {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &InmemProxy{
		handler:  handler,
		submitCh: make(chan []byte),
		logger:   logger,
	}
}

/*******************************************************************************
* SubmitTx                                                                     *
*******************************************************************************/

// SubmitTx is called by the App to submit a transaction to chorus. It blocks
// until the node picks the transaction up.
func (p *InmemProxy) SubmitTx(tx []byte) {
	//copy, so the caller can reuse its buffer
	t := make([]byte, len(tx))
	copy(t, tx)

	p.submitCh <- t
}

/*******************************************************************************
* Implement AppProxy Interface                                                 *
*******************************************************************************/

// SubmitCh returns the channel of raw transactions
func (p *InmemProxy) SubmitCh() chan []byte {
	return p.submitCh
}

// CommitBatch calls the commitHandler
func (p *InmemProxy) CommitBatch(batch proxy.Batch) error {
	err := p.handler.CommitHandler(batch)

	p.logger.WithFields(logrus.Fields{
		"round_received": batch.RoundReceived,
		"events":         len(batch.Events),
		"txs":            len(batch.Transactions()),
		"err":            err,
	}).Debug("InmemProxy.CommitBatch")

	return err
}
