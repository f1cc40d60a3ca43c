package hal

import "errors"

var (
	ErrNoPlate     = errors.New("no plate detected")
	ErrModuleDeaf  = errors.New("PRTS blocking - module is deaf")
	ErrNotOpen     = errors.New("transport is not initialized")
	ErrFrameTooBig = errors.New("frame exceeds transport buffer")
)

// Transport moves frames between the host and one gateway radio.
// Inbound frames are assembled in the background, the scheduler polls for them.
type Transport interface {
	// Initialize resets the radio and opens the link. It may be called again
	// to recover a gateway that went silent.
	Initialize() error
	InboundReady() bool
	// RetrieveInbound returns the pending frame and frees the receive slot.
	// It returns nil when nothing is ready.
	RetrieveInbound() []byte
	Send(frame []byte) error
	Close() error
}
