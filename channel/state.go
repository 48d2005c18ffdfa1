package channel

// state is a bitmask tracking a channel's lifecycle. registered and
// active accumulate monotonically; closed is sticky. "open" is simply
// the absence of closed, matching the transition table's
// Open && !Registered / Registered && !Active / Active / Closed shape.
type state uint32

const (
	stateRegistered state = 1 << iota
	stateActive
	stateClosed
)
