package node

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mosaicnetworks/chorus/src/config"
	hg "github.com/mosaicnetworks/chorus/src/hashgraph"
	"github.com/mosaicnetworks/chorus/src/net"
	"github.com/mosaicnetworks/chorus/src/peers"
	"github.com/mosaicnetworks/chorus/src/proxy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrShutdown is returned by Run once the node has been shut down.
var ErrShutdown = errors.New("node is shut down")

// Node defines a chorus node
type Node struct {
	state

	conf   *config.Config
	logger *logrus.Entry

	validator *Validator

	core     *Core
	coreLock sync.RWMutex

	peerSelector PeerSelector
	selectorLock sync.Mutex

	trans net.Transport
	netCh <-chan net.RPC

	proxy    proxy.AppProxy
	submitCh chan []byte

	controlTimer *ControlTimer
	metrics      *Metrics

	runLock sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}

	start        time.Time
	ticks        int
	syncRequests int64
	syncErrors   int64
}

// NewNode is a factory method that returns a Node instance
func NewNode(conf *config.Config,
	validator *Validator,
	peers *peers.PeerSet,
	store hg.Store,
	trans net.Transport,
	proxy proxy.AppProxy,
) *Node {

	logger := conf.Logger().WithFields(logrus.Fields{
		"prefix":  "node",
		"this_id": validator.ID(),
	})

	node := Node{
		validator:    validator,
		conf:         conf,
		logger:       logger,
		core:         NewCore(validator, peers, store, proxy.CommitBatch, logger),
		peerSelector: NewRandomPeerSelector(peers, validator.ID(), rand.New(rand.NewSource(time.Now().UnixNano()))),
		trans:        trans,
		netCh:        trans.Consumer(),
		proxy:        proxy,
		submitCh:     proxy.SubmitCh(),
		controlTimer: NewFixedControlTimer(),
		metrics:      NewMetrics(),
		start:        time.Now(),
	}

	node.setState(Bootstrapping)

	return &node
}

// Init replays the database if Bootstrap is set, and recovers the node's Head
// from the store.
func (n *Node) Init() error {
	if n.conf.Bootstrap {
		n.logger.Debug("Bootstrap")
		if err := n.core.Bootstrap(); err != nil {
			return err
		}
	}

	if err := n.core.SetHeadAndSeq(); err != nil {
		return err
	}

	n.updateMetrics()
	n.setState(Gossiping)

	return nil
}

// RunAsync calls Run in a goroutine
func (n *Node) RunAsync(ctx context.Context) {
	go n.Run(ctx)
}

// Run starts the transport listener, the responder, the gossip initiator and
// the transaction intake, and blocks until ctx is done or Shutdown is called.
func (n *Node) Run(ctx context.Context) error {
	n.runLock.Lock()
	if n.getState() == Shutdown {
		n.runLock.Unlock()
		return ErrShutdown
	}
	if n.cancel != nil {
		n.runLock.Unlock()
		return fmt.Errorf("node is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})
	n.runLock.Unlock()

	defer close(n.done)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n.trans.Listen()
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return n.trans.Close()
	})

	g.Go(func() error {
		n.controlTimer.Run(ctx, n.conf.HeartbeatTimeout)
		return nil
	})

	g.Go(func() error {
		n.respond(ctx)
		return nil
	})

	g.Go(func() error {
		n.initiate(ctx)
		return nil
	})

	g.Go(func() error {
		n.intake(ctx)
		return nil
	})

	err := g.Wait()

	n.waitRoutines()

	n.logger.Debug("Run loop stopped")

	return err
}

// respond hands every incoming RPC to the responder.
func (n *Node) respond(ctx context.Context) {
	for {
		select {
		case rpc := <-n.netCh:
			started := n.goFunc(func() {
				n.processRPC(rpc)
				n.resetTimer(ctx)
			})
			if !started {
				n.processRPC(rpc)
			}
		case <-ctx.Done():
			return
		}
	}
}

// initiate gossips with a random peer on every tick of the control timer.
func (n *Node) initiate(ctx context.Context) {
	for {
		select {
		case <-n.controlTimer.Ticks():
			if peer := n.nextPeer(); peer != nil {
				n.goFunc(func() { n.gossip(ctx, peer) })
			} else {
				n.monologue()
			}

			n.ticks++
			if n.conf.StatsInterval > 0 && n.ticks%n.conf.StatsInterval == 0 {
				n.logStats()
			}

			n.resetTimer(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// intake moves submitted transactions to the transaction pool.
func (n *Node) intake(ctx context.Context) {
	for {
		select {
		case tx := <-n.submitCh:
			n.logger.Debug("Adding Transaction")
			n.addTransaction(tx)
			n.resetTimer(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// resetTimer schedules the next gossip, unless one is already scheduled. The
// node gossips slowly when it has nothing to say.
func (n *Node) resetTimer(ctx context.Context) {
	if n.controlTimer.IsSet() {
		return
	}

	n.coreLock.RLock()
	busy := n.core.Busy()
	n.coreLock.RUnlock()

	ts := n.conf.HeartbeatTimeout
	if !busy {
		ts = n.conf.SlowHeartbeatTimeout
	}

	n.controlTimer.Reset(ctx, ts)
}

func (n *Node) nextPeer() *peers.Peer {
	n.selectorLock.Lock()
	defer n.selectorLock.Unlock()
	return n.peerSelector.Next()
}

// gossip performs a pull-push gossip operation with the selected peer.
func (n *Node) gossip(ctx context.Context, peer *peers.Peer) error {
	//pull
	otherKnownEvents, err := n.pull(ctx, peer)
	if err != nil {
		n.logger.WithError(err).WithField("peer", peer.NetAddr).Warn("gossip pull")
		return err
	}

	//push
	if err := n.push(peer, otherKnownEvents); err != nil {
		n.logger.WithError(err).WithField("peer", peer.NetAddr).Warn("gossip push")
		return err
	}

	//update peer selector
	n.selectorLock.Lock()
	n.peerSelector.UpdateLast(peer.ID())
	n.selectorLock.Unlock()

	return nil
}

// monologue creates a self-event when the node is alone and has something to
// record.
func (n *Node) monologue() error {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	if n.core.Busy() {
		if err := n.core.AddSelfEvent(""); err != nil {
			n.logger.WithError(err).Error("monologue, AddSelfEvent()")
			return err
		}
		n.updateMetricsLocked()
	}

	return nil
}

// pull requests the Events the peer knows and we don't, then fetches the
// missing parents of the Events that could not be inserted.
func (n *Node) pull(ctx context.Context, peer *peers.Peer) (map[uint32]int, error) {
	atomic.AddInt64(&n.syncRequests, 1)
	n.metrics.SyncRequests.Inc()

	//Compute Known
	n.coreLock.RLock()
	knownEvents := n.core.KnownEvents()
	n.coreLock.RUnlock()

	//Send SyncRequest
	start := time.Now()
	resp, err := n.requestSync(ctx, peer.NetAddr, knownEvents, nil)
	elapsed := time.Since(start)
	n.logger.WithField("duration", elapsed.Nanoseconds()).Debug("requestSync()")

	if err != nil {
		atomic.AddInt64(&n.syncErrors, 1)
		n.metrics.SyncErrors.Inc()
		return nil, err
	}

	n.logger.WithFields(logrus.Fields{
		"from_id": resp.FromID,
		"head":    resp.Head,
		"events":  len(resp.Events),
		"known":   resp.Known,
	}).Debug("SyncResponse")

	wanted, _ := n.sync(peer.ID(), resp.Events)

	if err := n.fetchMissing(ctx, peer, wanted); err != nil {
		return nil, err
	}

	return resp.Known, nil
}

// fetchMissing asks the peer for Events by hash until no parent is missing,
// up to MaxFetchDepth round trips.
func (n *Node) fetchMissing(ctx context.Context, peer *peers.Peer, wanted []string) error {
	for depth := 0; len(wanted) > 0 && depth < n.conf.MaxFetchDepth; depth++ {
		n.logger.WithFields(logrus.Fields{
			"wanted": len(wanted),
			"depth":  depth,
		}).Debug("Fetching missing parents")

		fetched, err := n.requestSync(ctx, peer.NetAddr, nil, wanted)
		if err != nil {
			atomic.AddInt64(&n.syncErrors, 1)
			n.metrics.SyncErrors.Inc()
			return err
		}
		if len(fetched.Events) == 0 {
			break
		}

		wanted, _ = n.sync(peer.ID(), fetched.Events)
	}
	return nil
}

// push sends the peer the Events it does not know, up to SyncLimit.
func (n *Node) push(peer *peers.Peer, knownEvents map[uint32]int) error {
	//Compute Diff
	start := time.Now()
	n.coreLock.RLock()
	eventDiff, err := n.core.EventDiff(knownEvents)
	if err == nil && n.conf.SyncLimit > 0 && len(eventDiff) > n.conf.SyncLimit {
		eventDiff = eventDiff[:n.conf.SyncLimit]
	}
	wireEvents := n.core.ToWire(eventDiff)
	n.coreLock.RUnlock()
	elapsed := time.Since(start)
	n.logger.WithField("duration", elapsed.Nanoseconds()).Debug("Diff()")
	if err != nil {
		n.logger.WithField("error", err).Error("Calculating Diff")
		return err
	}

	if len(wireEvents) == 0 {
		return nil
	}

	//Create and Send EagerSyncRequest
	start = time.Now()
	resp, err := n.requestEagerSync(peer.NetAddr, wireEvents)
	elapsed = time.Since(start)
	n.logger.WithField("duration", elapsed.Nanoseconds()).Debug("requestEagerSync()")
	if err != nil {
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"from_id": resp.FromID,
		"success": resp.Success,
	}).Debug("EagerSyncResponse")

	return nil
}

// sync verifies the signatures of wire Events outside of the lock, then
// inserts the valid ones under the writer lock. It returns the hashes of the
// parents that are still missing, and the refused Events, which are logged.
func (n *Node) sync(fromID uint32, wireEvents []hg.WireEvent) ([]string, error) {
	events, rejected := n.verifyEvents(wireEvents)

	n.coreLock.Lock()
	start := time.Now()
	wanted, err := n.core.Sync(fromID, events)
	elapsed := time.Since(start)
	n.updateMetricsLocked()
	n.coreLock.Unlock()

	n.logger.WithField("duration", elapsed.Nanoseconds()).Debug("Sync()")

	if rejected != nil {
		err = multierror.Append(rejected, err).ErrorOrNil()
	}

	n.metrics.FetchedEvents.Add(float64(len(wireEvents)))

	if err != nil {
		n.metrics.RejectedEvents.Add(float64(countValidationErrors(err)))
		n.logger.WithError(err).WithField("from_id", fromID).Warn("Sync refused some Events")
	}

	return wanted, err
}

// countValidationErrors counts the Events refused for being invalid, as
// opposed to failures of the consensus methods.
func countValidationErrors(err error) int {
	errs := []error{err}
	if merr, ok := err.(*multierror.Error); ok {
		errs = merr.Errors
	}

	count := 0
	for _, e := range errs {
		if hg.IsValidationError(e) {
			count++
		}
	}
	return count
}

// verifyEvents checks the signatures of the wire Events concurrently. Valid
// Events are returned in their original order; the others are aggregated in
// the error.
func (n *Node) verifyEvents(wireEvents []hg.WireEvent) ([]*hg.Event, *multierror.Error) {
	events := n.core.FromWire(wireEvents)
	errs := make([]error, len(events))

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, ev := range events {
		i, ev := i, ev
		g.Go(func() error {
			errs[i] = n.core.VerifyEvent(ev)
			return nil
		})
	}
	g.Wait()

	var rejected *multierror.Error
	valid := make([]*hg.Event, 0, len(events))
	for i, ev := range events {
		if errs[i] != nil {
			rejected = multierror.Append(rejected, errs[i])
			continue
		}
		valid = append(valid, ev)
	}

	return valid, rejected
}

// requestSyncWithRetry sends a SyncRequest and retries transient failures
// with exponential backoff, up to SyncRetries times.
func (n *Node) requestSyncWithRetry(ctx context.Context, target string, args net.SyncRequest) (net.SyncResponse, error) {
	var out net.SyncResponse

	backoff := retry.NewExponential(n.conf.HeartbeatTimeout)
	backoff = retry.WithCappedDuration(n.conf.SlowHeartbeatTimeout, backoff)
	backoff = retry.WithMaxRetries(uint64(n.conf.SyncRetries), backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if attempt > 0 {
			n.logger.WithFields(logrus.Fields{
				"target":  target,
				"attempt": attempt,
			}).Debug("retrying SyncRequest")
		}
		attempt++

		out = net.SyncResponse{}
		err := n.trans.Sync(target, &args, &out)
		if net.IsTransportError(err) || net.IsSerializationError(err) {
			return retry.RetryableError(err)
		}
		return err
	})

	return out, err
}

func (n *Node) addTransaction(tx []byte) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	n.core.AddTransactions([][]byte{tx})
	n.metrics.TransactionPool.Set(float64(len(n.core.transactionPool)))
}

// Shutdown stops the node's routines, closes the transport, and closes the
// store. It is safe to call more than once.
func (n *Node) Shutdown() {
	n.runLock.Lock()
	if n.getState() == Shutdown {
		n.runLock.Unlock()
		return
	}

	n.logger.Debug("Shutdown")

	//Exit any non-shutdown state immediately
	n.setState(Shutdown)
	cancel, done := n.cancel, n.done
	n.runLock.Unlock()

	if cancel != nil {
		//Run closes the transport on its way out
		cancel()
		<-done
	} else {
		n.trans.Close()
	}

	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	if err := n.core.hg.Store.Close(); err != nil {
		n.logger.WithError(err).Error("Closing store")
	}
}

/*******************************************************************************
Reads
*******************************************************************************/

// Head returns the hash of the last Event created by this node, or "".
func (n *Node) Head() string {
	n.coreLock.RLock()
	defer n.coreLock.RUnlock()
	return n.core.Head
}

// Stats returns the number of rounds created so far and the number of Events
// that are not yet in the consensus order.
func (n *Node) Stats() (roundCount int, pendingEventCount int) {
	n.coreLock.RLock()
	defer n.coreLock.RUnlock()
	return n.core.GetRoundCount(), len(n.core.GetUndeterminedEvents())
}

// ConsensusEvents returns up to limit Events of the consensus order, starting
// at index from. A negative limit returns everything after from.
func (n *Node) ConsensusEvents(from, limit int) ([]hg.ConsensusEvent, error) {
	n.coreLock.RLock()
	defer n.coreLock.RUnlock()
	return n.core.GetConsensusEvents(from, limit)
}

// EventInfo is a read-only view of an Event and its consensus metadata.
type EventInfo struct {
	Hash               string
	Body               hg.EventBody
	Signature          string
	Round              *int
	Witness            bool
	RoundReceived      *int
	ConsensusTimestamp *int64
	ConsensusOrder     *int
}

// GetEvent returns a snapshot of the Event with the given hash.
func (n *Node) GetEvent(hash string) (EventInfo, error) {
	n.coreLock.RLock()
	defer n.coreLock.RUnlock()

	ev, err := n.core.GetEvent(hash)
	if err != nil {
		return EventInfo{}, err
	}

	return EventInfo{
		Hash:               ev.Hex(),
		Body:               ev.Body,
		Signature:          ev.Signature,
		Round:              copyInt(ev.GetRound()),
		Witness:            ev.IsWitness(),
		RoundReceived:      copyInt(ev.GetRoundReceived()),
		ConsensusTimestamp: copyInt64(ev.GetConsensusTimestamp()),
		ConsensusOrder:     copyInt(ev.GetConsensusIndex()),
	}, nil
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	toString := func(i *int) string {
		if i == nil {
			return "nil"
		}

		return strconv.Itoa(*i)
	}

	n.coreLock.RLock()
	lastConsensusRound := copyInt(n.core.GetLastConsensusRoundIndex())
	consensusEvents := n.core.GetConsensusEventsCount()
	consensusTransactions := n.core.GetConsensusTransactionsCount()
	undeterminedEvents := len(n.core.GetUndeterminedEvents())
	transactionPool := len(n.core.transactionPool)
	rounds := n.core.GetRoundCount()
	head := n.core.Head
	orphans := n.core.Orphans()
	n.coreLock.RUnlock()

	timeElapsed := time.Since(n.start)

	consensusEventsPerSecond := float64(consensusEvents) / timeElapsed.Seconds()

	var consensusRoundsPerSecond float64

	if lastConsensusRound != nil {
		consensusRoundsPerSecond = float64(*lastConsensusRound) / timeElapsed.Seconds()
	}

	s := map[string]string{
		"last_consensus_round":   toString(lastConsensusRound),
		"rounds":                 strconv.Itoa(rounds),
		"consensus_events":       strconv.Itoa(consensusEvents),
		"consensus_transactions": strconv.Itoa(consensusTransactions),
		"undetermined_events":    strconv.Itoa(undeterminedEvents),
		"transaction_pool":       strconv.Itoa(transactionPool),
		"orphans":                strconv.Itoa(orphans),
		"num_peers":              strconv.Itoa(n.peerSelector.Peers().Len()),
		"sync_rate":              strconv.FormatFloat(n.SyncRate(), 'f', 2, 64),
		"events_per_second":      strconv.FormatFloat(consensusEventsPerSecond, 'f', 2, 64),
		"rounds_per_second":      strconv.FormatFloat(consensusRoundsPerSecond, 'f', 2, 64),
		"head":                   head,
		"id":                     fmt.Sprint(n.validator.ID()),
		"state":                  n.getState().String(),
		"moniker":                n.validator.Moniker,
	}
	return s
}

func (n *Node) logStats() {
	stats := n.GetStats()

	n.logger.WithFields(logrus.Fields{
		"head":                   stats["head"],
		"rounds":                 stats["rounds"],
		"undetermined_events":    stats["undetermined_events"],
		"last_consensus_round":   stats["last_consensus_round"],
		"consensus_events":       stats["consensus_events"],
		"consensus_transactions": stats["consensus_transactions"],
		"transaction_pool":       stats["transaction_pool"],
		"sync_rate":              stats["sync_rate"],
		"events/s":               stats["events_per_second"],
		"rounds/s":               stats["rounds_per_second"],
	}).Info("Stats")
}

// SyncRate returns the share of pulls that succeeded
func (n *Node) SyncRate() float64 {
	var syncErrorRate float64

	requests := atomic.LoadInt64(&n.syncRequests)
	if requests != 0 {
		syncErrorRate = float64(atomic.LoadInt64(&n.syncErrors)) / float64(requests)
	}

	return 1 - syncErrorRate
}

// ID returns the validator ID
func (n *Node) ID() uint32 {
	return n.validator.ID()
}

// GetPeers returns the peers
func (n *Node) GetPeers() []*peers.Peer {
	return n.peerSelector.Peers().List()
}

// State returns the node's current state
func (n *Node) State() State {
	return n.getState()
}

// MetricsRegistry returns the registry of the node's prometheus collectors.
func (n *Node) MetricsRegistry() *prometheus.Registry {
	return n.metrics.Registry()
}

func (n *Node) updateMetrics() {
	n.coreLock.RLock()
	defer n.coreLock.RUnlock()
	n.updateMetricsLocked()
}

func (n *Node) updateMetricsLocked() {
	lcr := -1
	if r := n.core.GetLastConsensusRoundIndex(); r != nil {
		lcr = *r
	}
	n.metrics.LastConsensusRound.Set(float64(lcr))
	n.metrics.Rounds.Set(float64(n.core.GetRoundCount()))
	n.metrics.UndeterminedEvents.Set(float64(len(n.core.GetUndeterminedEvents())))
	n.metrics.ConsensusEvents.Set(float64(n.core.GetConsensusEventsCount()))
	n.metrics.ConsensusTransactions.Set(float64(n.core.GetConsensusTransactionsCount()))
	n.metrics.TransactionPool.Set(float64(len(n.core.transactionPool)))
}

func copyInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func copyInt64(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
