package link

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// fakeTransport emits events synchronously from the calling goroutine, the
// way the websocket client emits connected from inside Connect.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[int]func(domain.TransportEvent)
	nextSub  int
	nextID   uint64
	open     uint64

	failures    []error // consumed one per Connect; nil entries succeed
	failAlways  error
	connects    int
	sent        []any
	closedCodes []int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[int]func(domain.TransportEvent))}
}

func (f *fakeTransport) Connect(ctx context.Context) (bool, error) {
	f.mu.Lock()
	f.connects++
	var err error
	if len(f.failures) > 0 {
		err = f.failures[0]
		f.failures = f.failures[1:]
	} else if f.failAlways != nil {
		err = f.failAlways
	}
	if err != nil {
		f.mu.Unlock()
		return false, err
	}
	if f.open != 0 {
		f.mu.Unlock()
		return true, nil
	}
	f.nextID++
	f.open = f.nextID
	id := f.open
	f.mu.Unlock()

	f.emit(domain.TransportEvent{Kind: domain.TransportConnected, SocketID: id})
	return true, nil
}

func (f *fakeTransport) Send(v any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open == 0 {
		return false
	}
	f.sent = append(f.sent, v)
	return true
}

func (f *fakeTransport) Disconnect(code int, reason string) {
	f.close(code, reason, true)
}

// drop simulates the server or network closing the socket.
func (f *fakeTransport) drop(code int) {
	f.close(code, "remote", code == domain.CloseNormal)
}

func (f *fakeTransport) close(code int, reason string, clean bool) {
	f.mu.Lock()
	id := f.open
	if id == 0 {
		f.mu.Unlock()
		return
	}
	f.open = 0
	f.closedCodes = append(f.closedCodes, code)
	f.mu.Unlock()

	f.emit(domain.TransportEvent{Kind: domain.TransportDisconnected, SocketID: id, Code: code, Reason: reason, WasClean: clean})
}

func (f *fakeTransport) deliver(v any) {
	var data []byte
	switch x := v.(type) {
	case string:
		data = []byte(x)
	default:
		data, _ = json.Marshal(v)
	}
	f.mu.Lock()
	id := f.open
	f.mu.Unlock()
	f.emit(domain.TransportEvent{Kind: domain.TransportMessage, SocketID: id, Data: data})
}

func (f *fakeTransport) Subscribe(h func(domain.TransportEvent)) domain.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSub++
	id := f.nextSub
	f.handlers[id] = h
	return closeFunc(func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	})
}

func (f *fakeTransport) emit(ev domain.TransportEvent) {
	f.mu.Lock()
	hs := make([]func(domain.TransportEvent), 0, len(f.handlers))
	for _, h := range f.handlers {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (f *fakeTransport) isOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open != 0
}

type closeFunc func()

func (c closeFunc) Close() { c() }

type fakeSession struct {
	binding     domain.SessionBinding
	invalidated int
	refreshes   int
	refreshErr  error
	onRefresh   func()
}

func newFakeSession() *fakeSession {
	return &fakeSession{binding: domain.SessionBinding{DeviceID: "dev-1"}}
}

func (s *fakeSession) DeviceID() string                 { return s.binding.DeviceID }
func (s *fakeSession) Binding() domain.SessionBinding   { return s.binding }
func (s *fakeSession) Invalidate(context.Context) error { s.invalidated++; return nil }

func (s *fakeSession) Bind(sessionID, podName string) (domain.SessionBinding, bool) {
	prev := s.binding
	transferred := prev.SessionID == sessionID && prev.PodName != "" && prev.PodName != podName
	s.binding.SessionID = sessionID
	s.binding.PodName = podName
	return prev, transferred
}

func (s *fakeSession) RefreshToken(context.Context) error {
	s.refreshes++
	if s.onRefresh != nil {
		s.onRefresh()
	}
	return s.refreshErr
}
