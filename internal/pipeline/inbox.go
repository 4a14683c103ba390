package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/tidbots/image-preprocess/internal/domain/model"
)

// Inbox is the depth-1 input buffer between the frame source and the
// processing loop. Only the freshest frame is ever pending: when a new frame
// arrives while one is still waiting, the stale frame is dropped. This keeps
// end-to-end latency bounded under backpressure.
type Inbox struct {
	ch      chan *model.Frame
	dropped atomic.Uint64
}

func NewInbox() *Inbox {
	return &Inbox{ch: make(chan *model.Frame, 1)}
}

// Put offers a frame, evicting the pending one if necessary. It reports
// whether a stale frame was dropped.
func (in *Inbox) Put(f *model.Frame) bool {
	dropped := false
	for {
		select {
		case in.ch <- f:
			return dropped
		default:
		}
		select {
		case <-in.ch:
			in.dropped.Add(1)
			dropped = true
		default:
		}
	}
}

// Next blocks until a frame is pending, the inbox is closed (ok=false), or
// the context is done.
func (in *Inbox) Next(ctx context.Context) (*model.Frame, bool) {
	select {
	case f, ok := <-in.ch:
		return f, ok
	case <-ctx.Done():
		return nil, false
	}
}

// Close marks the end of input. Put must not be called afterwards.
func (in *Inbox) Close() {
	close(in.ch)
}

// Dropped returns the total number of frames evicted since construction.
func (in *Inbox) Dropped() uint64 {
	return in.dropped.Load()
}
