package hashgraph

// Store is an interface for backend stores. Events are never deleted.
type Store interface {
	// CacheSize is the size of the caches layered on top of the store.
	CacheSize() int
	// GetEvent returns an event by hash.
	GetEvent(hash string) (*Event, error)
	// SetEvent inserts an event in the store, or updates it.
	SetEvent(event *Event) error
	// ParticipantEvents returns the hashes of a participant's events with an
	// index greater than skip, in insertion order.
	ParticipantEvents(participant string, skip int) ([]string, error)
	// LastEventFrom returns the hash of a participant's last inserted event.
	LastEventFrom(participant string) (string, error)
	// KnownEvents returns the map of participant ID to last known index, -1
	// for participants with no known event.
	KnownEvents() map[uint32]int
	// TopologicalEvents returns up to count events in insertion order,
	// starting at position start.
	TopologicalEvents(start, count int) ([]*Event, error)
	// EventCount returns the number of events in the store.
	EventCount() int
	// GetRound retrieves a round by index.
	GetRound(roundIndex int) (*RoundInfo, error)
	// SetRound stores a round.
	SetRound(roundIndex int, roundInfo *RoundInfo) error
	// LastRound returns the index of the last created round, -1 if none.
	LastRound() int
	// AddConsensusEvent appends an event to the consensus order.
	AddConsensusEvent(*Event) error
	// ConsensusEvents returns up to limit hashes of consensus events starting
	// at consensus index from.
	ConsensusEvents(from, limit int) ([]string, error)
	// ConsensusEventsCount returns the number of consensus events.
	ConsensusEventsCount() int
	// Close closes the underlying database.
	Close() error
	// StorePath returns the filepath of the underlying database.
	StorePath() string
}
