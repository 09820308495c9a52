package common

// Trilean is a boolean that can also be undefined. Witness fame starts
// Undefined and settles on True or False exactly once.
type Trilean int

const (
	// Undefined means the value has not been defined yet
	Undefined Trilean = iota
	// True means the value is defined and true
	True
	// False means the value is defined and false
	False
)

var trileans = []string{"Undefined", "True", "False"}

// String returns the string representation of Trilean
func (t Trilean) String() string {
	if t < Undefined || t > False {
		return "Invalid"
	}
	return trileans[t]
}

// FromBool converts a decided boolean into a Trilean.
func FromBool(b bool) Trilean {
	if b {
		return True
	}
	return False
}
