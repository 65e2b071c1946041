package search

import (
	"sync"
	"sync/atomic"
)

// Shutdown is a one-way flag: once requested it stays requested
type Shutdown struct {
	flag atomic.Bool
	once sync.Once
	done chan struct{}
}

// NewShutdown creates a cleared flag
func NewShutdown() *Shutdown {
	return &Shutdown{done: make(chan struct{})}
}

// Request sets the flag. It reports true only for the call that set it.
func (s *Shutdown) Request() bool {
	first := false
	s.once.Do(func() {
		s.flag.Store(true)
		close(s.done)
		first = true
	})
	return first
}

// Requested reports whether shutdown has been requested
func (s *Shutdown) Requested() bool {
	return s.flag.Load()
}

// Done is closed once shutdown has been requested
func (s *Shutdown) Done() <-chan struct{} {
	return s.done
}
