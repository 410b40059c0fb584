package hashgraph

import (
	"bytes"

	"github.com/mosaicnetworks/chorus/src/common"
	"github.com/mosaicnetworks/chorus/src/crypto"
	"github.com/ugorji/go/codec"
)

// canonicalHandle produces the deterministic encoding used for hashing. It is
// safe for concurrent use once configured.
var canonicalHandle = func() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}()

// Signer signs the canonical bytes of Event bodies on behalf of a creator.
type Signer interface {
	PublicKeyBytes() []byte
	Sign(data []byte) (string, error)
}

// Verifier checks a signature against a creator's public key.
type Verifier interface {
	Verify(pub []byte, data []byte, sig string) (bool, error)
}

/*******************************************************************************
EventBody
*******************************************************************************/

// EventBody contains the payload of an Event as well as the information that
// ties it to other Events. It is what gets hashed and signed.
type EventBody struct {
	Transactions [][]byte //the payload
	Parents      []string //hashes of the event's parents, self-parent first, "" if absent
	Creator      []byte   //creator's public key
	Index        int      //index in the sequence of events created by Creator
	Timestamp    int64    //creation time claimed by Creator, unix nanoseconds
}

// Marshal returns the canonical encoding of an EventBody. Empty and nil
// payloads encode identically so that the hash survives any wire codec.
func (e *EventBody) Marshal() ([]byte, error) {
	body := *e
	if len(body.Transactions) == 0 {
		body.Transactions = nil
	} else {
		body.Transactions = make([][]byte, len(e.Transactions))
		for i, tx := range e.Transactions {
			if tx == nil {
				tx = []byte{}
			}
			body.Transactions[i] = tx
		}
	}

	var b bytes.Buffer
	enc := codec.NewEncoder(&b, canonicalHandle)
	if err := enc.Encode(&body); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal decodes a canonically encoded EventBody
func (e *EventBody) Unmarshal(data []byte) error {
	dec := codec.NewDecoderBytes(data, canonicalHandle)
	return dec.Decode(e)
}

// Hash returns the SHA256 hash of the canonical encoding.
func (e *EventBody) Hash() ([]byte, error) {
	hashBytes, err := e.Marshal()
	if err != nil {
		return nil, err
	}
	return crypto.SHA256(hashBytes), nil
}

/*******************************************************************************
CoordinatesMap
*******************************************************************************/

// EventCoordinates combines the index and hash of an Event
type EventCoordinates struct {
	Hash  string
	Index int
}

// CoordinatesMap maps creators to Event coordinates. Each Event keeps one for
// its last ancestors and one for its first descendants, which is what makes
// the ancestor and strongly-see predicates cheap.
type CoordinatesMap map[string]EventCoordinates

// NewCoordinatesMap creates an empty CoordinatesMap
func NewCoordinatesMap() CoordinatesMap {
	return make(map[string]EventCoordinates)
}

// Copy creates a clone of a CoordinatesMap
func (c CoordinatesMap) Copy() CoordinatesMap {
	res := make(map[string]EventCoordinates, len(c))
	for k, v := range c {
		res[k] = v
	}
	return res
}

/*******************************************************************************
Event
*******************************************************************************/

// Event is the fundamental unit of a Hashgraph. It contains an EventBody and a
// signature of the body's hash by the Event's creator. The private fields are
// derived locally when the Event is inserted and when consensus is reached.
type Event struct {
	Body      EventBody
	Signature string //creator's digital signature of body

	topologicalIndex int

	round              *int
	witness            bool
	roundReceived      *int
	consensusTimestamp *int64
	consensusIndex     *int

	lastAncestors    CoordinatesMap //[participant pubkey] => last ancestor
	firstDescendants CoordinatesMap //[participant pubkey] => first descendant

	//creators whose forks are visible from this Event
	forkers map[string]bool

	verified bool

	creator string
	hash    []byte
	hex     string
}

// NewEvent instantiates a new unsigned Event
func NewEvent(transactions [][]byte,
	parents []string,
	creator []byte,
	index int,
	timestamp int64) *Event {

	body := EventBody{
		Transactions: transactions,
		Parents:      parents,
		Creator:      creator,
		Index:        index,
		Timestamp:    timestamp,
	}
	return &Event{
		Body: body,
	}
}

// Creator returns the string representation of the creator's public key.
func (e *Event) Creator() string {
	if e.creator == "" {
		e.creator = common.EncodeToString(e.Body.Creator)
	}
	return e.creator
}

// SelfParent returns the Event's self-parent, or "" for a creator's first
// Event.
func (e *Event) SelfParent() string {
	if len(e.Body.Parents) == 0 {
		return ""
	}
	return e.Body.Parents[0]
}

// OtherParent returns the Event's other-parent, or "".
func (e *Event) OtherParent() string {
	if len(e.Body.Parents) < 2 {
		return ""
	}
	return e.Body.Parents[1]
}

// Transactions returns the Event's transactions
func (e *Event) Transactions() [][]byte {
	return e.Body.Transactions
}

// Index returns the Event's index
func (e *Event) Index() int {
	return e.Body.Index
}

// Timestamp returns the creation time claimed by the creator
func (e *Event) Timestamp() int64 {
	return e.Body.Timestamp
}

// IsLoaded returns true if the Event contains a payload or is its creator's
// first Event.
func (e *Event) IsLoaded() bool {
	if e.Body.Index == 0 {
		return true
	}
	return len(e.Body.Transactions) > 0
}

// Sign signs the hash of the Event's body
func (e *Event) Sign(signer Signer) error {
	signBytes, err := e.Body.Hash()
	if err != nil {
		return err
	}

	sig, err := signer.Sign(signBytes)
	if err != nil {
		return err
	}

	e.Signature = sig

	return nil
}

// Verify checks the Event's signature against the creator's public key.
func (e *Event) Verify(verifier Verifier) (bool, error) {
	signBytes, err := e.Body.Hash()
	if err != nil {
		return false, err
	}

	return verifier.Verify(e.Body.Creator, signBytes, e.Signature)
}

// Hash returns the SHA256 hash of the canonical body
func (e *Event) Hash() ([]byte, error) {
	if len(e.hash) == 0 {
		hash, err := e.Body.Hash()
		if err != nil {
			return nil, err
		}
		e.hash = hash
	}

	return e.hash, nil
}

// Hex returns a hex string representation of the Event's hash
func (e *Event) Hex() string {
	if e.hex == "" {
		hash, _ := e.Hash()
		e.hex = common.EncodeToString(hash)
	}

	return e.hex
}

// GetRound returns the Event's round, or nil if it is not inserted yet.
func (e *Event) GetRound() *int {
	return e.round
}

// IsWitness ...
func (e *Event) IsWitness() bool {
	return e.witness
}

// GetRoundReceived returns the round in which the Event reached consensus,
// or nil.
func (e *Event) GetRoundReceived() *int {
	return e.roundReceived
}

// GetConsensusTimestamp ...
func (e *Event) GetConsensusTimestamp() *int64 {
	return e.consensusTimestamp
}

// GetConsensusIndex returns the position of the Event in the total order,
// or nil if it has not reached consensus.
func (e *Event) GetConsensusIndex() *int {
	return e.consensusIndex
}

// IsForker reports whether this Event has evidence, in its ancestry, that
// creator forked.
func (e *Event) IsForker(creator string) bool {
	return e.forkers[creator]
}

func (e *Event) setRound(r int, witness bool) {
	e.round = new(int)
	*e.round = r
	e.witness = witness
}

func (e *Event) setRoundReceived(rr int) {
	e.roundReceived = new(int)
	*e.roundReceived = rr
}

func (e *Event) setConsensusTimestamp(ts int64) {
	e.consensusTimestamp = new(int64)
	*e.consensusTimestamp = ts
}

func (e *Event) setConsensusIndex(i int) {
	e.consensusIndex = new(int)
	*e.consensusIndex = i
}

// ToWire converts an Event to the form exchanged between peers.
func (e *Event) ToWire() WireEvent {
	return WireEvent{
		Body:      e.Body,
		Signature: e.Signature,
	}
}

// ToConsensusEvent returns the application view of a consensus Event. It must
// only be called on Events that have reached consensus.
func (e *Event) ToConsensusEvent() ConsensusEvent {
	return ConsensusEvent{
		Hash:               e.Hex(),
		Creator:            e.Creator(),
		Transactions:       e.Body.Transactions,
		RoundReceived:      *e.roundReceived,
		ConsensusTimestamp: *e.consensusTimestamp,
		ConsensusOrder:     *e.consensusIndex,
	}
}

/*******************************************************************************
WireEvent
*******************************************************************************/

// WireEvent is the representation of an Event on the wire and on disk. Only
// the body and the signature travel; everything else is derived locally.
type WireEvent struct {
	Body      EventBody
	Signature string
}

// ToEvent rebuilds an Event from its wire form. The signature still has to be
// verified.
func (we WireEvent) ToEvent() *Event {
	return &Event{
		Body:      we.Body,
		Signature: we.Signature,
	}
}

/*******************************************************************************
ConsensusEvent
*******************************************************************************/

// ConsensusEvent is what the application consumes: an Event's payload with
// its final position in the total order.
type ConsensusEvent struct {
	Hash               string
	Creator            string
	Transactions       [][]byte
	RoundReceived      int
	ConsensusTimestamp int64
	ConsensusOrder     int
}

/*******************************************************************************
Sorting
*******************************************************************************/

// ByTopologicalOrder implements sort.Interface for []Event based on the private
// topologicalIndex field. THIS IS A PARTIAL ORDER, and it differs from one
// node to another.
type ByTopologicalOrder []*Event

// Len implements the sort.Interface
func (a ByTopologicalOrder) Len() int { return len(a) }

// Swap implements the sort.Interface
func (a ByTopologicalOrder) Swap(i, j int) { a[i], a[j] = a[j], a[i] }

// Less implements the sort.Interface
func (a ByTopologicalOrder) Less(i, j int) bool {
	return a[i].topologicalIndex < a[j].topologicalIndex
}
