package hashgraph

import (
	"strconv"

	cm "github.com/mosaicnetworks/chorus/src/common"
	"github.com/mosaicnetworks/chorus/src/peers"
)

// InmemStore implements the Store interface in memory. It is an arena of
// Events keyed by hash; nothing is ever evicted, because the consensus
// algorithm may need to walk back to any ancestor.
type InmemStore struct {
	cacheSize int
	peers     peers.PeerDirectory

	events            map[string]*Event   //hash => Event
	topologicalEvents []string            //insertion order
	participantEvents map[string][]string //pubkey => hashes in insertion order
	lastEvents        map[string]string   //pubkey => last inserted Event
	knownIndex        map[string]int      //pubkey => highest known index

	rounds    map[int]*RoundInfo
	lastRound int

	consensusEvents []string //consensus index => hash
}

// NewInmemStore creates an empty InmemStore for a set of participants.
// cacheSize is passed on to the Hashgraph's predicate caches.
func NewInmemStore(participants peers.PeerDirectory, cacheSize int) *InmemStore {
	return &InmemStore{
		cacheSize:         cacheSize,
		peers:             participants,
		events:            make(map[string]*Event),
		topologicalEvents: []string{},
		participantEvents: make(map[string][]string),
		lastEvents:        make(map[string]string),
		knownIndex:        make(map[string]int),
		rounds:            make(map[int]*RoundInfo),
		lastRound:         -1,
		consensusEvents:   []string{},
	}
}

// CacheSize implements the Store interface
func (s *InmemStore) CacheSize() int {
	return s.cacheSize
}

// GetEvent implements the Store interface
func (s *InmemStore) GetEvent(key string) (*Event, error) {
	ev, ok := s.events[key]
	if !ok {
		return nil, cm.NewStoreErr("EventCache", cm.KeyNotFound, key)
	}
	return ev, nil
}

// SetEvent implements the Store interface. Events are stored by pointer, so
// setting an Event that is already known only replaces the pointer.
func (s *InmemStore) SetEvent(event *Event) error {
	key := event.Hex()

	if _, ok := s.events[key]; ok {
		s.events[key] = event
		return nil
	}

	creator := event.Creator()
	if _, ok := s.peers.ByPubKey(creator); !ok {
		return cm.NewStoreErr("ParticipantEvents", cm.UnknownParticipant, creator)
	}

	s.events[key] = event
	s.topologicalEvents = append(s.topologicalEvents, key)
	s.participantEvents[creator] = append(s.participantEvents[creator], key)

	if last, ok := s.knownIndex[creator]; !ok || event.Index() >= last {
		s.knownIndex[creator] = event.Index()
		s.lastEvents[creator] = key
	}

	return nil
}

// ParticipantEvents implements the Store interface. The scan starts from the
// most recent Event and stops at the first one with an index <= skip. A fork
// inserted after its creator's later Events may therefore be missed, which
// only delays its propagation.
func (s *InmemStore) ParticipantEvents(participant string, skip int) ([]string, error) {
	if _, ok := s.peers.ByPubKey(participant); !ok {
		return nil, cm.NewStoreErr("ParticipantEvents", cm.UnknownParticipant, participant)
	}

	pe := s.participantEvents[participant]

	start := len(pe)
	for start > 0 && s.events[pe[start-1]].Index() > skip {
		start--
	}

	res := make([]string, len(pe)-start)
	copy(res, pe[start:])

	return res, nil
}

// LastEventFrom implements the Store interface
func (s *InmemStore) LastEventFrom(participant string) (string, error) {
	last, ok := s.lastEvents[participant]
	if !ok {
		return "", cm.NewStoreErr("ParticipantEvents", cm.Empty, participant)
	}
	return last, nil
}

// KnownEvents implements the Store interface
func (s *InmemStore) KnownEvents() map[uint32]int {
	known := make(map[uint32]int)
	for _, p := range s.peers.List() {
		index := -1
		if last, ok := s.knownIndex[p.PubKeyString()]; ok {
			index = last
		}
		known[p.ID()] = index
	}
	return known
}

// TopologicalEvents implements the Store interface
func (s *InmemStore) TopologicalEvents(start, count int) ([]*Event, error) {
	if start < 0 || start > len(s.topologicalEvents) {
		return nil, cm.NewStoreErr("TopologicalEvents", cm.TooLate, strconv.Itoa(start))
	}

	end := len(s.topologicalEvents)
	if count >= 0 && start+count < end {
		end = start + count
	}

	res := make([]*Event, 0, end-start)
	for _, h := range s.topologicalEvents[start:end] {
		res = append(res, s.events[h])
	}

	return res, nil
}

// EventCount implements the Store interface
func (s *InmemStore) EventCount() int {
	return len(s.events)
}

// GetRound implements the Store interface
func (s *InmemStore) GetRound(r int) (*RoundInfo, error) {
	res, ok := s.rounds[r]
	if !ok {
		return nil, cm.NewStoreErr("RoundCache", cm.KeyNotFound, strconv.Itoa(r))
	}
	return res, nil
}

// SetRound implements the Store interface
func (s *InmemStore) SetRound(r int, round *RoundInfo) error {
	s.rounds[r] = round
	if r > s.lastRound {
		s.lastRound = r
	}
	return nil
}

// LastRound implements the Store interface
func (s *InmemStore) LastRound() int {
	return s.lastRound
}

// AddConsensusEvent implements the Store interface
func (s *InmemStore) AddConsensusEvent(event *Event) error {
	s.consensusEvents = append(s.consensusEvents, event.Hex())
	return nil
}

// ConsensusEvents implements the Store interface
func (s *InmemStore) ConsensusEvents(from, limit int) ([]string, error) {
	if from < 0 {
		from = 0
	}
	if from >= len(s.consensusEvents) {
		return []string{}, nil
	}

	end := len(s.consensusEvents)
	if limit >= 0 && from+limit < end {
		end = from + limit
	}

	res := make([]string, end-from)
	copy(res, s.consensusEvents[from:end])

	return res, nil
}

// ConsensusEventsCount implements the Store interface
func (s *InmemStore) ConsensusEventsCount() int {
	return len(s.consensusEvents)
}

// Close implements the Store interface
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface
func (s *InmemStore) StorePath() string {
	return ""
}
