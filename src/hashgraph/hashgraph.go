package hashgraph

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/mosaicnetworks/chorus/src/common"
	"github.com/mosaicnetworks/chorus/src/crypto/keys"
	"github.com/mosaicnetworks/chorus/src/peers"
	"github.com/sirupsen/logrus"
)

const (
	/*
		COIN_ROUND_FREQ defines the frequency of coin rounds. In a coin round,
		a witness that does not strongly see a supermajority vote adopts the
		middle bit of its signature instead of the majority. Coin rounds are
		what guarantees that voting terminates with probability one.
	*/
	COIN_ROUND_FREQ = 4
)

// InternalCommitCallback is called by the Hashgraph with the Events of each
// processed round, in consensus order.
type InternalCommitCallback func([]*Event) error

// DummyInternalCommitCallback is used for testing
func DummyInternalCommitCallback([]*Event) error {
	return nil
}

// Hashgraph is a DAG of Events. It also contains methods to extract a consensus
// order of Events.
type Hashgraph struct {
	Store                 Store                  //store of Events and Rounds
	Participants          peers.PeerDirectory    //fixed set of creators
	UndeterminedEvents    []string               //FIFO queue of Events whose consensus order is not yet determined
	PendingRounds         *PendingRoundsCache    //ordered queue of Rounds which have not been processed yet
	LastConsensusRound    *int                   //index of last processed round
	ConsensusTransactions int                    //number of consensus transactions
	PendingLoadedEvents   int                    //number of loaded events that are not yet committed
	commitCallback        InternalCommitCallback //commit callback
	verifier              Verifier               //signature verification
	topologicalIndex      int                    //counter used to order events in topological order (only local)

	//creators that have been caught forking
	forkers map[string]bool

	ancestorCache     *lru.Cache
	selfAncestorCache *lru.Cache
	stronglySeeCache  *lru.Cache

	logger *logrus.Entry
}

// NewHashgraph instantiates a Hashgraph for a fixed set of participants, with
// an underlying data store and a commit callback. A nil verifier defaults to
// secp256k1 ECDSA verification.
func NewHashgraph(participants peers.PeerDirectory,
	store Store,
	verifier Verifier,
	commitCallback InternalCommitCallback,
	logger *logrus.Entry) *Hashgraph {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if verifier == nil {
		verifier = keys.ECDSAVerifier{}
	}

	if commitCallback == nil {
		commitCallback = DummyInternalCommitCallback
	}

	cacheSize := store.CacheSize()
	return &Hashgraph{
		Store:             store,
		Participants:      participants,
		PendingRounds:     NewPendingRoundsCache(),
		commitCallback:    commitCallback,
		verifier:          verifier,
		forkers:           make(map[string]bool),
		ancestorCache:     newCache(cacheSize),
		selfAncestorCache: newCache(cacheSize),
		stronglySeeCache:  newCache(cacheSize),
		logger:            logger,
	}
}

/*******************************************************************************
Relations
*******************************************************************************/

// Ancestor returns true if y is an ancestor of x. Every Event is its own
// ancestor.
func (h *Hashgraph) Ancestor(x, y string) (bool, error) {
	if c, ok := h.ancestorCache.Get(Key{x, y}); ok {
		return c.(bool), nil
	}
	a, err := h.ancestor(x, y)
	if err != nil {
		return false, err
	}
	h.ancestorCache.Add(Key{x, y}, a)
	return a, nil
}

func (h *Hashgraph) ancestor(x, y string) (bool, error) {
	if x == y {
		return true, nil
	}

	ex, err := h.Store.GetEvent(x)
	if err != nil {
		return false, err
	}

	ey, err := h.Store.GetEvent(y)
	if err != nil {
		return false, err
	}

	creator := ey.Creator()

	entry, ok := ex.lastAncestors[creator]
	if !ok || entry.Index < ey.Index() {
		return false, nil
	}

	//The creator's Events form a single chain
	if !h.forkers[creator] {
		return true, nil
	}

	//x only knows one branch of the creator's history
	if !ex.forkers[creator] {
		return h.SelfAncestor(entry.Hash, y)
	}

	found := false
	err = h.Ancestors(x, func(a *Event) bool {
		if a.Hex() == y {
			found = true
			return false
		}
		return true
	})

	return found, err
}

// SelfAncestor returns true if y is a self-ancestor of x
func (h *Hashgraph) SelfAncestor(x, y string) (bool, error) {
	if c, ok := h.selfAncestorCache.Get(Key{x, y}); ok {
		return c.(bool), nil
	}
	a, err := h.selfAncestor(x, y)
	if err != nil {
		return false, err
	}
	h.selfAncestorCache.Add(Key{x, y}, a)
	return a, nil
}

func (h *Hashgraph) selfAncestor(x, y string) (bool, error) {
	if x == y {
		return true, nil
	}

	ex, err := h.Store.GetEvent(x)
	if err != nil {
		return false, err
	}

	ey, err := h.Store.GetEvent(y)
	if err != nil {
		return false, err
	}

	if ex.Creator() != ey.Creator() || ex.Index() < ey.Index() {
		return false, nil
	}

	if !h.forkers[ex.Creator()] {
		return true, nil
	}

	//walk down the self-parent chain
	cur := ex
	for cur.Index() > ey.Index() {
		if cur.SelfParent() == "" {
			return false, nil
		}
		cur, err = h.Store.GetEvent(cur.SelfParent())
		if err != nil {
			return false, err
		}
	}

	return cur.Hex() == y, nil
}

// See returns true if x sees y: y is an ancestor of x and x has no evidence
// that y's creator forked.
func (h *Hashgraph) See(x, y string) (bool, error) {
	ex, err := h.Store.GetEvent(x)
	if err != nil {
		return false, err
	}

	ey, err := h.Store.GetEvent(y)
	if err != nil {
		return false, err
	}

	if ex.forkers[ey.Creator()] {
		return false, nil
	}

	return h.Ancestor(x, y)
}

// StronglySee returns true if x sees y through Events created by peers that
// together hold a supermajority of the weight.
func (h *Hashgraph) StronglySee(x, y string) (bool, error) {
	if c, ok := h.stronglySeeCache.Get(Key{x, y}); ok {
		return c.(bool), nil
	}
	ss, err := h.stronglySee(x, y)
	if err != nil {
		return false, err
	}
	h.stronglySeeCache.Add(Key{x, y}, ss)
	return ss, nil
}

func (h *Hashgraph) stronglySee(x, y string) (bool, error) {
	see, err := h.See(x, y)
	if err != nil || !see {
		return false, err
	}

	ex, err := h.Store.GetEvent(x)
	if err != nil {
		return false, err
	}

	ey, err := h.Store.GetEvent(y)
	if err != nil {
		return false, err
	}

	var weight int64
	for _, p := range h.Participants.List() {
		pk := p.PubKeyString()

		//x does not see any Event from a peer it caught forking
		if ex.forkers[pk] {
			continue
		}

		xla, ok := ex.lastAncestors[pk]
		if !ok {
			continue
		}

		if !h.forkers[pk] {
			yfd, ok := ey.firstDescendants[pk]
			if ok && xla.Index >= yfd.Index {
				weight += p.VoteWeight()
			}
			continue
		}

		//the coordinates of a forker are ambiguous; check the intermediate
		//Event explicitly
		zsy, err := h.See(xla.Hash, y)
		if err != nil {
			return false, err
		}
		if zsy {
			weight += p.VoteWeight()
		}
	}

	return weight >= h.Participants.SuperMajority(), nil
}

// Ancestors walks the ancestors of x, x included, depth-first through
// self-parents first. The walk stops as soon as visit returns false. Every
// ancestor is visited once.
func (h *Hashgraph) Ancestors(x string, visit func(*Event) bool) error {
	visited := make(map[string]bool)
	stack := []string{x}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur == "" || visited[cur] {
			continue
		}
		visited[cur] = true

		ev, err := h.Store.GetEvent(cur)
		if err != nil {
			return err
		}

		if !visit(ev) {
			return nil
		}

		stack = append(stack, ev.OtherParent(), ev.SelfParent())
	}

	return nil
}

// Round returns the round of an inserted Event
func (h *Hashgraph) Round(x string) (int, error) {
	ex, err := h.Store.GetEvent(x)
	if err != nil {
		return -1, err
	}
	if ex.round == nil {
		return -1, fmt.Errorf("event %s has no round", x)
	}
	return *ex.round, nil
}

// Witness returns true if x is the first Event of its creator in its round
func (h *Hashgraph) Witness(x string) (bool, error) {
	ex, err := h.Store.GetEvent(x)
	if err != nil {
		return false, err
	}
	return ex.witness, nil
}

// Fame returns the fame of a witness, Undefined until it is decided.
func (h *Hashgraph) Fame(x string) (common.Trilean, error) {
	r, err := h.Round(x)
	if err != nil {
		return common.Undefined, err
	}
	ri, err := h.Store.GetRound(r)
	if err != nil {
		return common.Undefined, err
	}
	return ri.Fame(x), nil
}

// IsForker returns true if the creator has been caught forking
func (h *Hashgraph) IsForker(creator string) bool {
	return h.forkers[creator]
}

/*******************************************************************************
Insertion
*******************************************************************************/

// VerifyEvent checks the Event's creator and signature. It only reads the
// participant set, so callers can verify batches before taking the lock that
// guards InsertEvent.
func (h *Hashgraph) VerifyEvent(event *Event) error {
	if event.verified {
		return nil
	}

	if _, ok := h.Participants.ByPubKey(event.Creator()); !ok {
		return NewEventError(InvalidEvent, event.Hex(), "unknown creator "+event.Creator())
	}

	ok, err := event.Verify(h.verifier)
	if err != nil {
		return NewEventError(InvalidSignature, event.Hex(), err.Error())
	}
	if !ok {
		return NewEventError(InvalidSignature, event.Hex(), "")
	}

	event.verified = true

	return nil
}

// InsertEventAndRunConsensus inserts an Event in the Hashgraph and calls the
// consensus methods.
func (h *Hashgraph) InsertEventAndRunConsensus(event *Event) error {
	if err := h.InsertEvent(event); err != nil {
		return err
	}
	return h.RunConsensus()
}

// RunConsensus decides fame, round-received and the order of the Events
// inserted so far. It is idempotent.
func (h *Hashgraph) RunConsensus() error {
	if err := h.DecideFame(); err != nil {
		return fmt.Errorf("DecideFame: %v", err)
	}
	if err := h.DecideRoundReceived(); err != nil {
		return fmt.Errorf("DecideRoundReceived: %v", err)
	}
	if err := h.ProcessDecidedRounds(); err != nil {
		return fmt.Errorf("ProcessDecidedRounds: %v", err)
	}
	return nil
}

// InsertEvent attempts to insert an Event in the DAG. It verifies the
// signature, checks the parents are known, flags forks, and assigns the
// Event's round and witness status.
func (h *Hashgraph) InsertEvent(event *Event) error {
	if _, err := h.Store.GetEvent(event.Hex()); err == nil {
		return NewEventError(DuplicateEvent, event.Hex(), "")
	}

	if len(event.Body.Parents) != 2 {
		return NewEventError(InvalidEvent, event.Hex(),
			fmt.Sprintf("expected 2 parent slots, got %d", len(event.Body.Parents)))
	}

	if err := h.VerifyEvent(event); err != nil {
		return err
	}

	if err := h.checkSelfParent(event); err != nil {
		h.logger.WithFields(logrus.Fields{
			"event":       event.Hex(),
			"creator":     event.Creator(),
			"self_parent": event.SelfParent(),
		}).WithError(err).Debug("CheckSelfParent")
		return err
	}

	if err := h.checkOtherParent(event); err != nil {
		h.logger.WithFields(logrus.Fields{
			"event":        event.Hex(),
			"creator":      event.Creator(),
			"other_parent": event.OtherParent(),
		}).WithError(err).Debug("CheckOtherParent")
		return err
	}

	h.detectFork(event)

	event.topologicalIndex = h.topologicalIndex
	h.topologicalIndex++

	if err := h.initEventCoordinates(event); err != nil {
		return fmt.Errorf("InitEventCoordinates: %v", err)
	}

	if err := h.Store.SetEvent(event); err != nil {
		return fmt.Errorf("SetEvent: %v", err)
	}

	if err := h.updateAncestorFirstDescendant(event); err != nil {
		return fmt.Errorf("UpdateAncestorFirstDescendant: %v", err)
	}

	if err := h.divideRound(event); err != nil {
		return fmt.Errorf("DivideRound: %v", err)
	}

	h.UndeterminedEvents = append(h.UndeterminedEvents, event.Hex())

	if event.IsLoaded() {
		h.PendingLoadedEvents++
	}

	return nil
}

// checkSelfParent verifies that the self-parent is known, was created by the
// same creator, and directly precedes the Event in the creator's sequence.
func (h *Hashgraph) checkSelfParent(event *Event) error {
	selfParent := event.SelfParent()

	if selfParent == "" {
		if event.Index() != 0 {
			return NewEventError(InvalidEvent, event.Hex(),
				fmt.Sprintf("event %d has no self-parent", event.Index()))
		}
		return nil
	}

	sp, err := h.Store.GetEvent(selfParent)
	if err != nil {
		if common.IsStore(err, common.KeyNotFound) {
			return NewEventError(UnknownParent, event.Hex(), "self-parent "+selfParent)
		}
		return err
	}

	if sp.Creator() != event.Creator() {
		return NewEventError(InvalidEvent, event.Hex(), "self-parent created by another peer")
	}

	if sp.Index()+1 != event.Index() {
		return NewEventError(InvalidEvent, event.Hex(),
			fmt.Sprintf("index %d does not follow self-parent index %d", event.Index(), sp.Index()))
	}

	return nil
}

// checkOtherParent verifies that the other-parent is known and was created by
// another peer.
func (h *Hashgraph) checkOtherParent(event *Event) error {
	otherParent := event.OtherParent()
	if otherParent == "" {
		return nil
	}

	op, err := h.Store.GetEvent(otherParent)
	if err != nil {
		if common.IsStore(err, common.KeyNotFound) {
			return NewEventError(UnknownParent, event.Hex(), "other-parent "+otherParent)
		}
		return err
	}

	if op.Creator() == event.Creator() {
		return NewEventError(InvalidEvent, event.Hex(), "other-parent created by the same peer")
	}

	return nil
}

// detectFork flags the creator as a forker if the Event does not extend the
// creator's last known Event. Forks are accepted; the flag switches the
// relations to their exact, slower, versions for that creator.
func (h *Hashgraph) detectFork(event *Event) {
	creator := event.Creator()

	last, err := h.Store.LastEventFrom(creator)
	if err != nil {
		//first Event of this creator
		return
	}

	if event.SelfParent() == last {
		return
	}

	if !h.forkers[creator] {
		h.logger.WithFields(logrus.Fields{
			"creator":     creator,
			"event":       event.Hex(),
			"self_parent": event.SelfParent(),
			"last_known":  last,
		}).Warn("Fork detected")
	}

	h.forkers[creator] = true
}

// initEventCoordinates initializes the maps of last ancestors and first
// descendants, and collects the forks visible from the Event.
func (h *Hashgraph) initEventCoordinates(event *Event) error {
	event.lastAncestors = NewCoordinatesMap()
	event.firstDescendants = NewCoordinatesMap()
	event.forkers = make(map[string]bool)

	creator := event.Creator()

	var selfParent, otherParent *Event
	var err error

	if sp := event.SelfParent(); sp != "" {
		if selfParent, err = h.Store.GetEvent(sp); err != nil {
			return err
		}
		event.lastAncestors = selfParent.lastAncestors.Copy()
		for f := range selfParent.forkers {
			event.forkers[f] = true
		}
	}

	if op := event.OtherParent(); op != "" {
		if otherParent, err = h.Store.GetEvent(op); err != nil {
			return err
		}

		for f := range otherParent.forkers {
			event.forkers[f] = true
		}

		//a creator's first Event cannot have its own Events as ancestors
		if _, ok := otherParent.lastAncestors[creator]; ok && selfParent == nil {
			event.forkers[creator] = true
		}

		for p, ola := range otherParent.lastAncestors {
			sla, ok := event.lastAncestors[p]
			if !ok {
				event.lastAncestors[p] = ola
				continue
			}

			if sla.Hash == ola.Hash {
				continue
			}

			hi, lo := sla, ola
			if ola.Index > sla.Index {
				hi, lo = ola, sla
			}
			event.lastAncestors[p] = hi

			if event.forkers[p] {
				continue
			}

			if hi.Index == lo.Index {
				event.forkers[p] = true
				continue
			}

			//both branches are in the ancestry unless one extends the other
			sa, err := h.SelfAncestor(hi.Hash, lo.Hash)
			if err != nil {
				return err
			}
			if !sa {
				event.forkers[p] = true
			}
		}
	}

	event.firstDescendants[creator] = EventCoordinates{
		Index: event.Index(),
		Hash:  event.Hex(),
	}

	event.lastAncestors[creator] = EventCoordinates{
		Index: event.Index(),
		Hash:  event.Hex(),
	}

	return nil
}

// updateAncestorFirstDescendant updates the first descendant of each last
// ancestor to point to event
func (h *Hashgraph) updateAncestorFirstDescendant(event *Event) error {
	creator := event.Creator()

	for _, c := range event.lastAncestors {
		ah := c.Hash
		for ah != "" {
			a, err := h.Store.GetEvent(ah)
			if err != nil {
				return err
			}

			if _, ok := a.firstDescendants[creator]; ok {
				break
			}

			a.firstDescendants[creator] = EventCoordinates{
				Index: event.Index(),
				Hash:  event.Hex(),
			}

			if err := h.Store.SetEvent(a); err != nil {
				return err
			}

			ah = a.SelfParent()
		}
	}

	return nil
}

// divideRound computes the round and witness status of a freshly inserted
// Event and records it in the corresponding RoundInfo.
func (h *Hashgraph) divideRound(event *Event) error {
	roundNumber, err := h.round(event)
	if err != nil {
		return err
	}

	witness := true
	if sp := event.SelfParent(); sp != "" {
		spRound, err := h.Round(sp)
		if err != nil {
			return err
		}
		if roundNumber < spRound {
			return NewInvariantError("round of %s regressed from %d to %d", event.Hex(), spRound, roundNumber)
		}
		witness = roundNumber > spRound
	}

	event.setRound(roundNumber, witness)

	roundInfo, err := h.Store.GetRound(roundNumber)
	if err != nil {
		if !common.IsStore(err, common.KeyNotFound) {
			return err
		}
		roundInfo = NewRoundInfo()
	}

	roundInfo.AddCreatedEvent(event.Hex(), witness)

	if !h.PendingRounds.Queued(roundNumber) && !roundInfo.decided {
		h.PendingRounds.Set(&PendingRound{Index: roundNumber})
	}

	//The fame of a round is settled once it is decided. A witness that shows
	//up afterwards was not seen by enough of the next round to ever be famous.
	if witness && roundInfo.decided {
		h.logger.WithFields(logrus.Fields{
			"event": event.Hex(),
			"round": roundNumber,
		}).Debug("Late witness in decided round")

		if err := roundInfo.SetFame(event.Hex(), false); err != nil {
			return err
		}
	}

	return h.Store.SetRound(roundNumber, roundInfo)
}

// round implements the round formula: the max of the parents' rounds, plus one
// if the Event strongly sees witnesses of that round created by a
// supermajority of the weight.
func (h *Hashgraph) round(event *Event) (int, error) {
	parentRound := -1

	for _, p := range event.Body.Parents {
		if p == "" {
			continue
		}
		r, err := h.Round(p)
		if err != nil {
			return -1, err
		}
		if r > parentRound {
			parentRound = r
		}
	}

	if parentRound < 0 {
		return 0, nil
	}

	parentRoundInfo, err := h.Store.GetRound(parentRound)
	if err != nil {
		return -1, err
	}

	seen := make(map[string]bool)
	var weight int64
	for _, w := range parentRoundInfo.Witnesses() {
		ss, err := h.StronglySee(event.Hex(), w)
		if err != nil {
			return -1, err
		}
		if !ss {
			continue
		}

		ew, err := h.Store.GetEvent(w)
		if err != nil {
			return -1, err
		}

		//forked witnesses of the same creator count once
		if seen[ew.Creator()] {
			continue
		}
		seen[ew.Creator()] = true

		weight += h.creatorWeight(ew.Creator())
	}

	if weight >= h.Participants.SuperMajority() {
		return parentRound + 1, nil
	}

	return parentRound, nil
}

/*******************************************************************************
Consensus
*******************************************************************************/

// DecideFame decides if witnesses are famous
func (h *Hashgraph) DecideFame() error {
	votes := make(map[string](map[string]bool)) //[x][y]=>vote(x,y)
	setVote := func(x, y string, vote bool) {
		if votes[x] == nil {
			votes[x] = make(map[string]bool)
		}
		votes[x][y] = vote
	}

	superMajority := h.Participants.SuperMajority()
	decidedRounds := []int{}

	for _, r := range h.PendingRounds.GetOrderedPendingRounds() {
		roundIndex := r.Index

		rRoundInfo, err := h.Store.GetRound(roundIndex)
		if err != nil {
			return err
		}

		for _, x := range rRoundInfo.Witnesses() {
			if rRoundInfo.IsDecided(x) {
				continue
			}

		VOTE_LOOP:
			for j := roundIndex + 1; j <= h.Store.LastRound(); j++ {
				jRoundInfo, err := h.Store.GetRound(j)
				if err != nil {
					return err
				}

				diff := j - roundIndex

				for _, y := range jRoundInfo.Witnesses() {
					if diff == 1 {
						ysx, err := h.See(y, x)
						if err != nil {
							return err
						}
						setVote(y, x, ysx)
						continue
					}

					jPrevRoundInfo, err := h.Store.GetRound(j - 1)
					if err != nil {
						return err
					}

					//votes of the round j-1 witnesses strongly seen by y,
					//weighted by their creator's weight
					var yays, nays int64
					for _, w := range jPrevRoundInfo.Witnesses() {
						ss, err := h.StronglySee(y, w)
						if err != nil {
							return err
						}
						if !ss {
							continue
						}

						ww, err := h.eventWeight(w)
						if err != nil {
							return err
						}

						if votes[w][x] {
							yays += ww
						} else {
							nays += ww
						}
					}

					v := false
					t := nays
					if yays > nays {
						v = true
						t = yays
					}

					ey, err := h.Store.GetEvent(y)
					if err != nil {
						return err
					}

					if diff%COIN_ROUND_FREQ > 0 {
						//normal round
						if t >= superMajority {
							if err := rRoundInfo.SetFame(x, v); err != nil {
								return err
							}
							setVote(y, x, v)
							break VOTE_LOOP //break out of j loop
						}
						if yays == nays {
							v = middleBit(ey.Signature)
						}
						setVote(y, x, v)
					} else {
						//coin round
						if t >= superMajority {
							setVote(y, x, v)
						} else {
							setVote(y, x, middleBit(ey.Signature))
						}
					}
				}
			}
		}

		if !rRoundInfo.decided && rRoundInfo.WitnessesDecided(h.witnessWeight, superMajority) {
			rRoundInfo.decided = true
			decidedRounds = append(decidedRounds, roundIndex)
		}

		if err := h.Store.SetRound(roundIndex, rRoundInfo); err != nil {
			return err
		}
	}

	h.PendingRounds.Update(decidedRounds)

	return nil
}

// DecideRoundReceived assigns a RoundReceived to undetermined events when they
// reach consensus. An Event is received in the first round, not lower than its
// own, where all the unique famous witnesses have it as ancestor, provided the
// fame of every witness up to that round is decided.
func (h *Hashgraph) DecideRoundReceived() error {
	newUndeterminedEvents := []string{}

	for _, x := range h.UndeterminedEvents {
		received := false

		r, err := h.Round(x)
		if err != nil {
			return err
		}

		for i := r; i <= h.Store.LastRound(); i++ {
			tr, err := h.Store.GetRound(i)
			if err != nil {
				return err
			}

			//Rounds are decided in order from the perspective of this loop; an
			//undecided round means x cannot be received yet.
			if !tr.decided {
				break
			}

			fws, err := h.uniqueFamousWitnesses(tr)
			if err != nil {
				return err
			}

			if len(fws) == 0 {
				continue
			}

			all := true
			for _, w := range fws {
				a, err := h.Ancestor(w.Hex(), x)
				if err != nil {
					return err
				}
				if !a {
					all = false
					break
				}
			}

			if !all {
				continue
			}

			ex, err := h.Store.GetEvent(x)
			if err != nil {
				return err
			}

			ex.setRoundReceived(i)

			if err := h.Store.SetEvent(ex); err != nil {
				return err
			}

			tr.AddReceivedEvent(x)
			if err := h.Store.SetRound(i, tr); err != nil {
				return err
			}

			received = true
			break
		}

		if !received {
			newUndeterminedEvents = append(newUndeterminedEvents, x)
		}
	}

	h.UndeterminedEvents = newUndeterminedEvents

	return nil
}

// ProcessDecidedRounds takes the decided rounds in order, computes the
// consensus timestamps of the Events they received, sorts them, appends them
// to the consensus order, and passes them to the commit callback.
func (h *Hashgraph) ProcessDecidedRounds() error {
	//Defer removing processed Rounds from the PendingRounds Queue
	processedRounds := []int{}
	defer func() {
		h.PendingRounds.Clean(processedRounds)
	}()

	for _, r := range h.PendingRounds.GetOrderedPendingRounds() {
		//A later round can be decided before an earlier one, but it is never
		//processed before all the earlier rounds are.
		if !r.Decided {
			break
		}

		round, err := h.Store.GetRound(r.Index)
		if err != nil {
			return err
		}

		events, err := h.consensusRoundEvents(round)
		if err != nil {
			return fmt.Errorf("ordering round %d: %v", r.Index, err)
		}

		h.logger.WithFields(logrus.Fields{
			"round_received": r.Index,
			"witnesses":      len(round.Witnesses()),
			"famous":         len(round.FamousWitnesses()),
			"events":         len(events),
		}).Debug("Processing Decided Round")

		for _, e := range events {
			e.setConsensusIndex(h.Store.ConsensusEventsCount())

			if err := h.Store.AddConsensusEvent(e); err != nil {
				return err
			}

			if err := h.Store.SetEvent(e); err != nil {
				return err
			}

			h.ConsensusTransactions += len(e.Transactions())

			if e.IsLoaded() {
				h.PendingLoadedEvents--
			}
		}

		if len(events) > 0 {
			if err := h.commitCallback(events); err != nil {
				h.logger.WithError(err).Warnf("Failed to commit round %d", r.Index)
			}
		}

		processedRounds = append(processedRounds, r.Index)

		if h.LastConsensusRound == nil || r.Index > *h.LastConsensusRound {
			lcr := r.Index
			h.LastConsensusRound = &lcr
		}
	}

	return nil
}

// consensusRoundEvents assigns the consensus timestamp of every Event received
// in a round and returns them in consensus order.
func (h *Hashgraph) consensusRoundEvents(round *RoundInfo) ([]*Event, error) {
	fws, err := h.uniqueFamousWitnesses(round)
	if err != nil {
		return nil, err
	}

	events := make([]*Event, 0, len(round.ReceivedEvents))

	for _, x := range round.ReceivedEvents {
		ex, err := h.Store.GetEvent(x)
		if err != nil {
			return nil, err
		}

		timestamps := make([]int64, 0, len(fws))
		for _, w := range fws {
			t, err := h.firstReceptionTimestamp(w, x)
			if err != nil {
				return nil, err
			}
			timestamps = append(timestamps, t)
		}

		ex.setConsensusTimestamp(common.Median(timestamps))

		events = append(events, ex)
	}

	NewConsensusSorter(events, fws).Sort()

	return events, nil
}

// firstReceptionTimestamp returns the timestamp of the earliest self-ancestor
// of witness w that has x as ancestor; the time at which w's creator learned
// about x.
func (h *Hashgraph) firstReceptionTimestamp(w *Event, x string) (int64, error) {
	cur := w
	for cur.SelfParent() != "" {
		a, err := h.Ancestor(cur.SelfParent(), x)
		if err != nil {
			return 0, err
		}
		if !a {
			break
		}
		if cur, err = h.Store.GetEvent(cur.SelfParent()); err != nil {
			return 0, err
		}
	}
	return cur.Timestamp(), nil
}

// uniqueFamousWitnesses returns the famous witnesses of a round, leaving out
// creators that have more than one, which can only happen with forks.
func (h *Hashgraph) uniqueFamousWitnesses(round *RoundInfo) ([]*Event, error) {
	byCreator := make(map[string][]*Event)
	for _, w := range round.FamousWitnesses() {
		ew, err := h.Store.GetEvent(w)
		if err != nil {
			return nil, err
		}
		byCreator[ew.Creator()] = append(byCreator[ew.Creator()], ew)
	}

	res := []*Event{}
	for _, ws := range byCreator {
		if len(ws) == 1 {
			res = append(res, ws[0])
		}
	}

	return res, nil
}

/*******************************************************************************
Bootstrap
*******************************************************************************/

// Bootstrap loads all Events from the BadgerStore's database and replays them
// through the consensus methods. Afterwards the Hashgraph is in the state it
// was in when the database was last written to.
func (h *Hashgraph) Bootstrap() error {
	badgerStore, ok := h.Store.(*BadgerStore)
	if !ok {
		return nil
	}

	topologicalEvents, err := badgerStore.dbTopologicalEvents()
	if err != nil {
		return err
	}

	h.logger.WithField("events", len(topologicalEvents)).Debug("Bootstrap")

	//the Events are already on disk
	maintenanceMode := badgerStore.GetMaintenanceMode()
	badgerStore.SetMaintenanceMode(true)
	defer badgerStore.SetMaintenanceMode(maintenanceMode)

	for _, e := range topologicalEvents {
		if err := h.InsertEvent(e); err != nil {
			if IsEventError(err, DuplicateEvent) {
				continue
			}
			return err
		}
	}

	return h.RunConsensus()
}

/*******************************************************************************
Helpers
*******************************************************************************/

func (h *Hashgraph) creatorWeight(creator string) int64 {
	return h.Participants.Weight(creator)
}

func (h *Hashgraph) eventWeight(x string) (int64, error) {
	ex, err := h.Store.GetEvent(x)
	if err != nil {
		return 0, err
	}
	return h.creatorWeight(ex.Creator()), nil
}

// witnessWeight is eventWeight for hashes known to be in the store
func (h *Hashgraph) witnessWeight(x string) int64 {
	w, _ := h.eventWeight(x)
	return w
}
