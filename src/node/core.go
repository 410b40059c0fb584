package node

import (
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mosaicnetworks/chorus/src/common"
	hg "github.com/mosaicnetworks/chorus/src/hashgraph"
	"github.com/mosaicnetworks/chorus/src/peers"
	"github.com/mosaicnetworks/chorus/src/proxy"
	"github.com/sirupsen/logrus"
)

// maxOrphans bounds the number of Events waiting for a missing parent.
const maxOrphans = 1000

// Core is the core Node object. It is not safe for concurrent use; Node
// guards it with a RWMutex.
type Core struct {

	// validator is a wrapper around the private-key controlling this node.
	validator *Validator

	// hg is the underlying hashgraph where all the consensus computation and
	// data reside.
	hg *hg.Hashgraph

	// peers is the fixed participant set.
	peers peers.PeerDirectory

	// Hash and Index of this instance's head Event
	Head string
	Seq  int

	// Events that are not tied to this node's Head. This is managed by the Sync
	// method. If the gossip condition is false (there is nothing interesting to
	// record), items are added to heads; if the gossip condition is true, items
	// are removed from heads and used to record a new self-event. This
	// functionality allows to not grow the hashgraph continuously when there is
	// nothing to record.
	heads map[uint32]*hg.Event

	// The transaction pool contains transactions submitted from the app that
	// still haven't made it into the hashgraph.
	transactionPool [][]byte

	// orphans are verified Events whose parents are not in the hashgraph yet,
	// keyed by hash. They are retried after every successful insertion.
	orphans map[string]*hg.Event

	// proxyCommitCallback is called by the hashgraph when a round is decided
	proxyCommitCallback proxy.CommitCallback

	logger *logrus.Entry
}

// NewCore is a factory method that returns a new Core object
func NewCore(
	validator *Validator,
	peers peers.PeerDirectory,
	store hg.Store,
	proxyCommitCallback proxy.CommitCallback,
	logger *logrus.Entry) *Core {

	if proxyCommitCallback == nil {
		proxyCommitCallback = proxy.DummyCommitCallback
	}

	core := &Core{
		validator:           validator,
		peers:               peers,
		proxyCommitCallback: proxyCommitCallback,
		transactionPool:     [][]byte{},
		heads:               make(map[uint32]*hg.Event),
		orphans:             make(map[string]*hg.Event),
		logger:              logger,
		Head:                "",
		Seq:                 -1,
	}

	core.hg = hg.NewHashgraph(peers, store, nil, core.Commit, logger.WithField("prefix", "hashgraph"))

	return core
}

// SetHeadAndSeq sets the Head and Seq of a Core object from the last Event
// this node created, if the store has one.
func (c *Core) SetHeadAndSeq() error {
	head := ""
	seq := -1

	last, err := c.hg.Store.LastEventFrom(c.validator.PublicKeyHex())
	if err != nil && !common.IsStore(err, common.Empty) {
		return err
	}

	if last != "" {
		lastEvent, err := c.GetEvent(last)
		if err != nil {
			return err
		}

		head = last
		seq = lastEvent.Index()
	}

	c.Head = head
	c.Seq = seq

	c.logger.WithFields(logrus.Fields{
		"core.Head": c.Head,
		"core.Seq":  c.Seq,
	}).Debugf("SetHeadAndSeq")

	return nil
}

// Bootstrap calls the Hashgraph Bootstrap
func (c *Core) Bootstrap() error {
	c.logger.Debug("Bootstrap")
	return c.hg.Bootstrap()
}

/*******************************************************************************
Busy
*******************************************************************************/

// Busy returns a boolean that denotes whether there is incomplete processing
func (c *Core) Busy() bool {
	return c.hg.PendingLoadedEvents > 0 ||
		len(c.transactionPool) > 0
}

/*******************************************************************************
Sync
*******************************************************************************/

// VerifyEvent checks an Event's creator and signature without touching the
// hashgraph's mutable state. Node calls it before taking the write lock.
func (c *Core) VerifyEvent(event *hg.Event) error {
	return c.hg.VerifyEvent(event)
}

// Sync inserts Events received from fromID, which are expected to be in
// topological order, and runs the consensus methods. Events whose parents are
// missing are kept aside and retried as soon as another insertion succeeds.
// Sync returns the hashes of the parents that are still missing, to be fetched
// from the peer. Refused Events do not stop the batch; they are aggregated in
// the returned error.
func (c *Core) Sync(fromID uint32, events []*hg.Event) ([]string, error) {
	c.logger.WithField("unknown_events", len(events)).Debug("Sync")

	var result *multierror.Error

	var otherHead *hg.Event
	for _, ev := range events {
		inserted, err := c.insertOrDefer(ev)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		for _, e := range inserted {
			if p, ok := c.peers.ByPubKey(e.Creator()); ok {
				if p.ID() == fromID && (otherHead == nil || e.Index() > otherHead.Index()) {
					otherHead = e
				}
				if h, ok := c.heads[p.ID()]; ok && h != nil && e.Index() > h.Index() {
					delete(c.heads, p.ID())
				}
			}
		}
	}

	//Do not overwrite a non-empty head with an empty head
	if h, ok := c.heads[fromID]; fromID != c.validator.ID() &&
		(!ok || h == nil || (otherHead != nil && otherHead.Index() > h.Index())) {

		c.heads[fromID] = otherHead
	}

	if err := c.hg.RunConsensus(); err != nil {
		result = multierror.Append(result, err)
		return c.MissingParents(), result.ErrorOrNil()
	}

	c.logger.WithFields(logrus.Fields{
		"loaded_events":    c.hg.PendingLoadedEvents,
		"transaction_pool": len(c.transactionPool),
		"orphans":          len(c.orphans),
	}).Debug("Sync")

	// Create new event with self head and other head if there are pending
	// loaded events, if the pool is not empty, or if the peer brought new
	// Events while some are still undetermined
	if c.Busy() || c.Seq < 0 ||
		(otherHead != nil && len(c.hg.UndeterminedEvents) > 0) {
		if err := c.RecordHeads(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return c.MissingParents(), result.ErrorOrNil()
}

// insertOrDefer inserts ev, or keeps it aside if a parent is missing. It
// returns the Events that made it into the hashgraph: ev itself and the
// orphans it unlocked. Duplicates are silently ignored.
func (c *Core) insertOrDefer(ev *hg.Event) ([]*hg.Event, error) {
	err := c.hg.InsertEvent(ev)
	switch {
	case err == nil:
		return append([]*hg.Event{ev}, c.retryOrphans()...), nil
	case hg.IsEventError(err, hg.DuplicateEvent):
		return nil, nil
	case hg.IsEventError(err, hg.UnknownParent):
		c.addOrphan(ev)
		return nil, nil
	default:
		c.logger.WithError(err).Debug("Refused Event")
		return nil, err
	}
}

func (c *Core) addOrphan(ev *hg.Event) {
	if _, ok := c.orphans[ev.Hex()]; ok {
		return
	}
	if len(c.orphans) >= maxOrphans {
		c.logger.WithField("event", ev.Hex()).Warn("Orphan buffer full, dropping Event")
		return
	}
	c.orphans[ev.Hex()] = ev
}

// retryOrphans inserts orphans until no more progress is made.
func (c *Core) retryOrphans() []*hg.Event {
	inserted := []*hg.Event{}
	for progress := true; progress; {
		progress = false
		for _, hash := range c.orphanHashes() {
			ev := c.orphans[hash]
			err := c.hg.InsertEvent(ev)
			if hg.IsEventError(err, hg.UnknownParent) {
				continue
			}
			delete(c.orphans, hash)
			if err == nil {
				inserted = append(inserted, ev)
				progress = true
			}
		}
	}
	return inserted
}

func (c *Core) orphanHashes() []string {
	hashes := make([]string, 0, len(c.orphans))
	for h := range c.orphans {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	return hashes
}

// MissingParents returns the sorted hashes of the parents the orphans are
// waiting for, excluding parents that are orphans themselves.
func (c *Core) MissingParents() []string {
	missing := make(map[string]bool)
	for _, ev := range c.orphans {
		for _, p := range ev.Body.Parents {
			if p == "" {
				continue
			}
			if _, ok := c.orphans[p]; ok {
				continue
			}
			if _, err := c.hg.Store.GetEvent(p); err == nil {
				continue
			}
			missing[p] = true
		}
	}

	res := make([]string, 0, len(missing))
	for p := range missing {
		res = append(res, p)
	}
	sort.Strings(res)
	return res
}

// Orphans returns the number of Events waiting for a parent.
func (c *Core) Orphans() int {
	return len(c.orphans)
}

// RecordHeads adds heads as SelfEvents
func (c *Core) RecordHeads() error {
	c.logger.WithField("heads", len(c.heads)).Debug("RecordHeads()")

	for id, ev := range c.heads {
		op := ""
		if ev != nil {
			op = ev.Hex()
		}
		if err := c.AddSelfEvent(op); err != nil {
			return err
		}
		delete(c.heads, id)
	}

	return nil
}

// AddSelfEvent creates, signs and inserts a new self-event on top of Head,
// with otherHead as other-parent and the transaction pool as payload.
func (c *Core) AddSelfEvent(otherHead string) error {
	txs := len(c.transactionPool)

	newHead := hg.NewEvent(c.transactionPool[:txs:txs],
		[]string{c.Head, otherHead},
		c.validator.PublicKeyBytes(),
		c.Seq+1,
		time.Now().UnixNano())

	//Inserting the Event, and running consensus methods, can have a side-effect
	//of adding items to the transaction pool (via the commit callback).
	if err := c.SignAndInsertSelfEvent(newHead); err != nil {
		c.logger.WithError(err).Errorf("Error inserting new head")
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"index":        newHead.Index(),
		"transactions": len(newHead.Transactions()),
	}).Debug("Created Self-Event")

	//do not remove pool elements that were added by CommitCallback
	c.transactionPool = c.transactionPool[txs:]

	return nil
}

// SignAndInsertSelfEvent signs a Hashgraph Event, inserts it and runs consensus
func (c *Core) SignAndInsertSelfEvent(event *hg.Event) error {
	if err := event.Sign(c.validator); err != nil {
		return err
	}
	return c.InsertEventAndRunConsensus(event)
}

// InsertEventAndRunConsensus Inserts a hashgraph event and runs consensus
func (c *Core) InsertEventAndRunConsensus(event *hg.Event) error {
	if err := c.hg.InsertEventAndRunConsensus(event); err != nil {
		return err
	}
	if event.Creator() == c.validator.PublicKeyHex() {
		c.Head = event.Hex()
		c.Seq = event.Index()
	}
	return nil
}

// KnownEvents returns known events from the Hashgraph store
func (c *Core) KnownEvents() map[uint32]int {
	return c.hg.Store.KnownEvents()
}

/*******************************************************************************
Commit
*******************************************************************************/

// Commit passes the Events of a decided round to the App, through the
// proxyCommitCallback. The Events are expected to share the same
// round-received and to be in consensus order.
func (c *Core) Commit(events []*hg.Event) error {
	if len(events) == 0 {
		return nil
	}

	roundReceived := -1
	if rr := events[0].GetRoundReceived(); rr != nil {
		roundReceived = *rr
	}

	consensusEvents := make([]hg.ConsensusEvent, len(events))
	for i, e := range events {
		consensusEvents[i] = e.ToConsensusEvent()
	}

	batch := proxy.NewBatch(roundReceived, consensusEvents)

	c.logger.WithFields(logrus.Fields{
		"round_received": batch.RoundReceived,
		"events":         len(batch.Events),
	}).Info("Commit")

	if err := c.proxyCommitCallback(batch); err != nil {
		c.logger.WithError(err).Error("Commit response")
		return err
	}

	return nil
}

/*******************************************************************************
Diff
*******************************************************************************/

// EventDiff returns Events that we are aware of, and that are not known by
// another. They are returned in topological order. The parameter otherKnown is
// a map containing the last Event index per participant, as seen by another
// peer. We compare this to our view of events and return the diff.
func (c *Core) EventDiff(otherKnown map[uint32]int) (events []*hg.Event, err error) {
	// unknown is the container for the Events that will be returned by this
	// method.
	unknown := []*hg.Event{}

	myknown := c.KnownEvents()

	// We loop through our known map first
	for id := range myknown {

		ct, ok := otherKnown[id]

		// If the other is not yet aware of this validator. It will need all
		// it's events (starting at index -1).
		if !ok {
			ct = -1
		}

		peer, ok := c.peers.ByID(id)
		if !ok {
			continue
		}

		// get participant Events with index > ct
		participantEvents, err := c.hg.Store.ParticipantEvents(peer.PubKeyString(), ct)
		if err != nil {
			if common.IsStore(err, common.UnknownParticipant) {
				continue
			}
			return []*hg.Event{}, err
		}

		for _, e := range participantEvents {
			ev, err := c.hg.Store.GetEvent(e)
			if err != nil {
				return []*hg.Event{}, err
			}

			unknown = append(unknown, ev)
		}

	}

	sort.Sort(hg.ByTopologicalOrder(unknown))

	return unknown, nil
}

// AllEvents returns up to limit Events in topological order, or all of them
// if limit is not positive.
func (c *Core) AllEvents(limit int) ([]*hg.Event, error) {
	count := c.hg.Store.EventCount()
	if limit > 0 && limit < count {
		count = limit
	}
	if count == 0 {
		return []*hg.Event{}, nil
	}
	return c.hg.Store.TopologicalEvents(0, count)
}

// EventsByHash returns the requested Events that are known, in topological
// order. Unknown hashes are skipped.
func (c *Core) EventsByHash(hashes []string) []*hg.Event {
	res := []*hg.Event{}
	seen := make(map[string]bool)
	for _, h := range hashes {
		if seen[h] {
			continue
		}
		seen[h] = true
		if ev, err := c.hg.Store.GetEvent(h); err == nil {
			res = append(res, ev)
		}
	}
	sort.Sort(hg.ByTopologicalOrder(res))
	return res
}

// FromWire converts Wire Events to Hashgraph Events. Signatures are not
// checked.
func (c *Core) FromWire(wireEvents []hg.WireEvent) []*hg.Event {
	events := make([]*hg.Event, len(wireEvents))
	for i, w := range wireEvents {
		events[i] = w.ToEvent()
	}
	return events
}

// ToWire takes Hashgraph Events and returns Wire Events
func (c *Core) ToWire(events []*hg.Event) []hg.WireEvent {
	wireEvents := make([]hg.WireEvent, len(events))
	for i, e := range events {
		wireEvents[i] = e.ToWire()
	}
	return wireEvents
}

/*******************************************************************************
Pools
*******************************************************************************/

// AddTransactions appends transactions to the transaction pool
func (c *Core) AddTransactions(txs [][]byte) {
	c.transactionPool = append(c.transactionPool, txs...)
}

/*******************************************************************************
Getters
*******************************************************************************/

// GetHead returns the head from the hashgraph store
func (c *Core) GetHead() (*hg.Event, error) {
	return c.hg.Store.GetEvent(c.Head)
}

// GetEvent returns an event from the hashgraph store
func (c *Core) GetEvent(hash string) (*hg.Event, error) {
	return c.hg.Store.GetEvent(hash)
}

// GetConsensusEvents returns up to limit consensus events, starting at
// consensus index from.
func (c *Core) GetConsensusEvents(from, limit int) ([]hg.ConsensusEvent, error) {
	hashes, err := c.hg.Store.ConsensusEvents(from, limit)
	if err != nil {
		return nil, err
	}

	res := make([]hg.ConsensusEvent, len(hashes))
	for i, h := range hashes {
		ev, err := c.hg.Store.GetEvent(h)
		if err != nil {
			return nil, fmt.Errorf("consensus event %s: %v", h, err)
		}
		res[i] = ev.ToConsensusEvent()
	}
	return res, nil
}

// GetConsensusEventsCount returns the count of consensus events from the
// hashgragh store
func (c *Core) GetConsensusEventsCount() int {
	return c.hg.Store.ConsensusEventsCount()
}

// GetUndeterminedEvents returns undetermined events from the hashgraph
func (c *Core) GetUndeterminedEvents() []string {
	return c.hg.UndeterminedEvents
}

// GetPendingLoadedEvents returns pending loaded events from the hashgraph
func (c *Core) GetPendingLoadedEvents() int {
	return c.hg.PendingLoadedEvents
}

// GetLastConsensusRoundIndex returns the Last Consensus Round from the hashgraph
func (c *Core) GetLastConsensusRoundIndex() *int {
	return c.hg.LastConsensusRound
}

// GetConsensusTransactionsCount return ConsensusTransacions from the hashgraph
func (c *Core) GetConsensusTransactionsCount() int {
	return c.hg.ConsensusTransactions
}

// GetRoundCount returns the number of rounds created so far.
func (c *Core) GetRoundCount() int {
	return c.hg.Store.LastRound() + 1
}
