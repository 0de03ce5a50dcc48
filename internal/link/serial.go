package link

import (
	"fmt"
	"log/slog"
	"sync"
)

// serial runs posted tasks one at a time in FIFO order. Whichever goroutine
// posts into an idle queue drains it; concurrent and re-entrant posts only
// enqueue. A panicking task is logged and does not stall the queue.
type serial struct {
	logger *slog.Logger

	mu       sync.Mutex
	queue    []func()
	draining bool
}

func newSerial(logger *slog.Logger) *serial {
	return &serial{logger: logger}
}

// post enqueues f and drains the queue if nobody else is.
func (s *serial) post(f func()) {
	s.mu.Lock()
	s.queue = append(s.queue, f)
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.run(next)
	}
}

func (s *serial) run(f func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("link task panicked", slog.String("panic", fmt.Sprint(r)))
		}
	}()
	f()
}
