package common

// Trilean is a boolean that can also be undefined. Fame verdicts start
// Undefined and move to True or False exactly once.
type Trilean int

const (
	// Undefined means the value has not been decided yet
	Undefined Trilean = iota
	// True ...
	True
	// False ...
	False
)

var trileans = []string{"Undefined", "True", "False"}

func (t Trilean) String() string {
	return trileans[t]
}

// FromBool converts a decided boolean into a Trilean.
func FromBool(b bool) Trilean {
	if b {
		return True
	}
	return False
}
