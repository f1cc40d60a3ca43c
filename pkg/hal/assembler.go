package hal

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbalug7/go-tarts/pkg/gwapi"
)

// PartialFrameTimeout is the longest gap allowed between the start delimiter
// and the last byte of a frame
const PartialFrameTimeout = 50 * time.Millisecond

// Assembler collects serial bytes into one frame slot. The serial reader
// feeds it, the scheduler takes complete frames. While the slot holds a
// complete frame further bytes are dropped.
type Assembler struct {
	mu      sync.Mutex
	buf     [gwapi.MaxFrameSize]byte
	index   int
	started time.Time
	ready   atomic.Bool
	// onBusy reports whether the slot can accept a new frame, used to drive
	// the clear-to-send line
	onBusy func(busy bool)
}

func NewAssembler(onBusy func(busy bool)) *Assembler {
	return &Assembler{onBusy: onBusy}
}

func (obj *Assembler) busy(state bool) {
	if obj.onBusy != nil {
		obj.onBusy(state)
	}
}

func (obj *Assembler) reset() {
	obj.index = 0
	obj.ready.Store(false)
	obj.busy(false)
}

// Feed pushes received bytes
func (obj *Assembler) Feed(data []byte, now time.Time) {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	for _, c := range data {
		if obj.ready.Load() {
			return
		}
		if obj.index == 0 {
			if c == gwapi.StartDelimiter {
				obj.buf[0] = c
				obj.index = 1
				obj.started = now
				obj.busy(true)
			}
			continue
		}
		obj.buf[obj.index] = c
		obj.index++
		size := int(obj.buf[1]) + 3
		if size > gwapi.MaxFrameSize || size < 5 {
			// garbage length, wait for the next delimiter
			obj.reset()
			continue
		}
		if obj.index == size {
			obj.ready.Store(true)
		}
	}
}

// Expire drops a partial frame older than PartialFrameTimeout
func (obj *Assembler) Expire(now time.Time) {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.index != 0 && !obj.ready.Load() && now.Sub(obj.started) > PartialFrameTimeout {
		obj.reset()
	}
}

func (obj *Assembler) Ready() bool {
	return obj.ready.Load()
}

// Take copies out the complete frame and frees the slot
func (obj *Assembler) Take() []byte {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if !obj.ready.Load() {
		return nil
	}
	frame := make([]byte, obj.index)
	copy(frame, obj.buf[:obj.index])
	obj.reset()
	return frame
}

// Reset discards anything collected so far
func (obj *Assembler) Reset() {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	obj.reset()
}
