package channel

import "errors"

// Error kinds per spec section 7's taxonomy, scoped to the channel
// package's concerns (pipeline misuse lives in package pipeline).
var (
	ErrClosedChannel       = errors.New("channel: operation on a closed channel")
	ErrNotYetConnected     = errors.New("channel: write before channel is active")
	ErrConnectTimeout      = errors.New("channel: connect timed out")
	ErrConnectRefused      = errors.New("channel: connection refused")
	ErrAddressInUse        = errors.New("channel: address already in use")
	ErrNetworkUnreachable  = errors.New("channel: network unreachable")
	ErrReadStall           = errors.New("channel: no read progress within configured window")
	ErrUnsupportedMessage  = errors.New("channel: unsafe received a message of an unsupported type")
)
