package hashgraph

import (
	"bytes"
	"fmt"

	"github.com/dgraph-io/badger"
	cm "github.com/mosaicnetworks/chorus/src/common"
	"github.com/mosaicnetworks/chorus/src/peers"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const (
	topoPrefix  = "topo"
	eventPrefix = "event"
)

// BadgerStore contains references to the Badger database and inmem store. If
// maintenanceMode is activated, data is not written to the Badger database, but
// only to the caches.
type BadgerStore struct {
	inmemStore      *InmemStore
	db              *badger.DB
	path            string
	maintenanceMode bool
	logger          *logrus.Entry
}

// NewBadgerStore opens an existing database or creates a new one if nothing is
// found in path. The maintenanceMode option deactivates writing to the
// persistent database, but adding/updating the inmem-store is preserved.
func NewBadgerStore(participants peers.PeerDirectory,
	cacheSize int,
	path string,
	maintenanceMode bool,
	logger *logrus.Entry) (*BadgerStore, error) {

	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true).
		WithLogger(logger.WithField("ns", "badger"))

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore:      NewInmemStore(participants, cacheSize),
		db:              handle,
		path:            path,
		maintenanceMode: maintenanceMode,
		logger:          logger,
	}
	return store, nil
}

/*******************************************************************************
Keys
*******************************************************************************/

func topologicalEventKey(index int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", topoPrefix, index))
}

func eventKey(hash string) []byte {
	return []byte(fmt.Sprintf("%s_%s", eventPrefix, hash))
}

/*******************************************************************************
Cache Only

Derived data, like rounds, last-ancestors and the consensus order, is never
written to disk. It is recomputed by Hashgraph.Bootstrap, which
replays the persisted Events in topological order.
*******************************************************************************/

// CacheSize implements the Store interface
func (s *BadgerStore) CacheSize() int {
	return s.inmemStore.CacheSize()
}

// GetEvent implements the Store interface. Events on disk but not in the cache
// are unknown to the Hashgraph until Bootstrap inserts them.
func (s *BadgerStore) GetEvent(key string) (*Event, error) {
	return s.inmemStore.GetEvent(key)
}

// GetRound implements the Store interface
func (s *BadgerStore) GetRound(r int) (*RoundInfo, error) {
	return s.inmemStore.GetRound(r)
}

// SetRound implements the Store interface
func (s *BadgerStore) SetRound(r int, round *RoundInfo) error {
	return s.inmemStore.SetRound(r, round)
}

// ParticipantEvents implements the Store interface
func (s *BadgerStore) ParticipantEvents(participant string, skip int) ([]string, error) {
	return s.inmemStore.ParticipantEvents(participant, skip)
}

// LastEventFrom implements the Store interface
func (s *BadgerStore) LastEventFrom(participant string) (string, error) {
	return s.inmemStore.LastEventFrom(participant)
}

// KnownEvents implements the Store interface
func (s *BadgerStore) KnownEvents() map[uint32]int {
	return s.inmemStore.KnownEvents()
}

// TopologicalEvents implements the Store interface
func (s *BadgerStore) TopologicalEvents(start, count int) ([]*Event, error) {
	return s.inmemStore.TopologicalEvents(start, count)
}

// EventCount implements the Store interface
func (s *BadgerStore) EventCount() int {
	return s.inmemStore.EventCount()
}

// LastRound implements the Store interface
func (s *BadgerStore) LastRound() int {
	return s.inmemStore.LastRound()
}

// AddConsensusEvent implements the Store interface
func (s *BadgerStore) AddConsensusEvent(event *Event) error {
	return s.inmemStore.AddConsensusEvent(event)
}

// ConsensusEvents implements the Store interface
func (s *BadgerStore) ConsensusEvents(from, limit int) ([]string, error) {
	return s.inmemStore.ConsensusEvents(from, limit)
}

// ConsensusEventsCount implements the Store interface
func (s *BadgerStore) ConsensusEventsCount() int {
	return s.inmemStore.ConsensusEventsCount()
}

/*******************************************************************************
Cache + DB
*******************************************************************************/

// SetEvent creates or updates an Event in the store. Only the first write of
// an Event reaches the database; updates carry derived data.
func (s *BadgerStore) SetEvent(event *Event) error {
	_, err := s.inmemStore.GetEvent(event.Hex())
	isNew := err != nil

	if err := s.inmemStore.SetEvent(event); err != nil {
		return err
	}

	if s.maintenanceMode || !isNew {
		return nil
	}
	return s.dbSetEvent(event)
}

// Close closes the InmemStore and the underlying Badger database.
func (s *BadgerStore) Close() error {
	if err := s.inmemStore.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

// StorePath returns the full path of the underlying Badger database directory.
func (s *BadgerStore) StorePath() string {
	return s.path
}

// GetMaintenanceMode ...
func (s *BadgerStore) GetMaintenanceMode() bool {
	return s.maintenanceMode
}

// SetMaintenanceMode ...
func (s *BadgerStore) SetMaintenanceMode(val bool) {
	s.maintenanceMode = val
}

/*******************************************************************************
DB Methods
*******************************************************************************/

func marshalWireEvent(we WireEvent) ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, canonicalHandle)
	if err := enc.Encode(&we); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func unmarshalWireEvent(data []byte) (*Event, error) {
	var we WireEvent
	dec := codec.NewDecoderBytes(data, canonicalHandle)
	if err := dec.Decode(&we); err != nil {
		return nil, err
	}
	return we.ToEvent(), nil
}

func (s *BadgerStore) dbSetEvent(event *Event) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	eventHex := event.Hex()

	val, err := marshalWireEvent(event.ToWire())
	if err != nil {
		return err
	}

	//insert [event hash] => [wire event bytes]
	if err := tx.Set(eventKey(eventHex), val); err != nil {
		return err
	}

	//insert [topo_index] => [event hash]
	if err := tx.Set(topologicalEventKey(event.topologicalIndex), []byte(eventHex)); err != nil {
		return err
	}

	return tx.Commit()
}

// dbTopologicalEvents returns all the persisted Events in the order in which
// they were inserted.
func (s *BadgerStore) dbTopologicalEvents() ([]*Event, error) {
	res := []*Event{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(topoPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			hash, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			eventItem, err := txn.Get(eventKey(string(hash)))
			if err != nil {
				return err
			}

			eventBytes, err := eventItem.ValueCopy(nil)
			if err != nil {
				return err
			}

			event, err := unmarshalWireEvent(eventBytes)
			if err != nil {
				return err
			}

			res = append(res, event)
		}
		return nil
	})

	s.logger.WithField("events", len(res)).Debug("Read topological events")

	return res, err
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++

func isDBKeyNotFound(err error) bool {
	return err != nil && err.Error() == badger.ErrKeyNotFound.Error()
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
