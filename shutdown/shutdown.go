// Package shutdown provides a broadcast signal.  Any number of goroutines
// subscribe to the signal and one Send tells all of them to stop.  The signal
// is not replayed: a goroutine that subscribes after the Send will not see it.
package shutdown

import (
	"context"
	"sync"
)

// Signal is a broadcast shutdown signal.  The zero value is ready to use.
type Signal struct {
	mutex       sync.Mutex
	nextID      int
	subscribers map[int]chan struct{}
}

// New creates a Signal.
func New() *Signal {
	return &Signal{}
}

// Subscription receives one Send.  C is closed when the signal is sent.
type Subscription struct {
	C <-chan struct{}

	id     int
	signal *Signal
}

// Subscribe registers a new receiver.  Call Unsubscribe when it's no
// longer needed.
func (s *Signal) Subscribe() *Subscription {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.subscribers == nil {
		s.subscribers = make(map[int]chan struct{})
	}

	ch := make(chan struct{})
	id := s.nextID
	s.nextID++
	s.subscribers[id] = ch

	return &Subscription{C: ch, id: id, signal: s}
}

// Unsubscribe removes the receiver.  It's safe to call more than once and
// after the signal has been sent.
func (sub *Subscription) Unsubscribe() {
	sub.signal.mutex.Lock()
	defer sub.signal.mutex.Unlock()
	delete(sub.signal.subscribers, sub.id)
}

// Send tells every current subscriber to stop and returns the number of
// subscribers told.  The subscribers are then forgotten, so a second Send
// only reaches goroutines that have subscribed since the first.
func (s *Signal) Send() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	n := len(s.subscribers)
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}

	return n
}

// Subscribers returns the number of current subscribers.
func (s *Signal) Subscribers() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.subscribers)
}

// SendOnDone sends the signal when ctx is done.  This connects the signal to
// a timeout, a deadline or os/signal.NotifyContext.  The returned function
// stops the watch without sending.
func (s *Signal) SendOnDone(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() { s.Send() })
}
