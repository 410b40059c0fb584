package hashgraph

import (
	"github.com/mosaicnetworks/chorus/src/common"
)

// RoundEvent records what a round knows about one of its Events
type RoundEvent struct {
	Witness bool
	Famous  common.Trilean
}

// RoundInfo holds the Events created in a round, the fame of its witnesses,
// and the Events that reached consensus in it.
type RoundInfo struct {
	CreatedEvents  map[string]RoundEvent
	ReceivedEvents []string
	decided        bool
}

// NewRoundInfo creates a new RoundInfo
func NewRoundInfo() *RoundInfo {
	return &RoundInfo{
		CreatedEvents:  make(map[string]RoundEvent),
		ReceivedEvents: []string{},
	}
}

// AddCreatedEvent records an Event created in this round
func (r *RoundInfo) AddCreatedEvent(x string, witness bool) {
	if _, ok := r.CreatedEvents[x]; !ok {
		r.CreatedEvents[x] = RoundEvent{
			Witness: witness,
		}
	}
}

// AddReceivedEvent records an Event whose round-received is this round
func (r *RoundInfo) AddReceivedEvent(x string) {
	r.ReceivedEvents = append(r.ReceivedEvents, x)
}

// SetFame sets the fame of a witness. A verdict is final: setting a different
// value for an already decided witness returns an InvariantError.
func (r *RoundInfo) SetFame(x string, f bool) error {
	e, ok := r.CreatedEvents[x]
	if !ok || !e.Witness {
		return NewInvariantError("cannot set fame of %s, not a witness of this round", x)
	}

	verdict := common.FromBool(f)

	if e.Famous != common.Undefined {
		if e.Famous != verdict {
			return NewInvariantError("fame of %s already decided as %s", x, e.Famous)
		}
		return nil
	}

	e.Famous = verdict
	r.CreatedEvents[x] = e

	return nil
}

// WitnessesDecided returns true if no witness' fame is left undefined and the
// witnesses represent a supermajority of the weight.
func (r *RoundInfo) WitnessesDecided(weight func(string) int64, superMajority int64) bool {
	var w int64
	for x, e := range r.CreatedEvents {
		if !e.Witness {
			continue
		}
		if e.Famous == common.Undefined {
			return false
		}
		w += weight(x)
	}
	return w >= superMajority
}

// Witnesses returns the round's witnesses
func (r *RoundInfo) Witnesses() []string {
	res := []string{}
	for x, e := range r.CreatedEvents {
		if e.Witness {
			res = append(res, x)
		}
	}
	return res
}

// FamousWitnesses returns the round's famous witnesses
func (r *RoundInfo) FamousWitnesses() []string {
	res := []string{}
	for x, e := range r.CreatedEvents {
		if e.Witness && e.Famous == common.True {
			res = append(res, x)
		}
	}
	return res
}

// Fame returns the fame of x, which is Undefined if x is not a decided
// witness of this round.
func (r *RoundInfo) Fame(x string) common.Trilean {
	return r.CreatedEvents[x].Famous
}

// IsDecided returns true if x is a witness whose fame is decided
func (r *RoundInfo) IsDecided(witness string) bool {
	w, ok := r.CreatedEvents[witness]
	return ok && w.Witness && w.Famous != common.Undefined
}
