package memory

import (
	"context"
	"fmt"
	"sync"

	"autodrop/internal/store"
)

// Sender records messages in memory. FailNext makes the next n sends fail.
type Sender struct {
	mu       sync.Mutex
	sent     []Message
	failNext int
	notify   chan Message
}

type Message struct {
	Recipient int64
	Text      string
}

func New() *Sender {
	return &Sender{notify: make(chan Message, 64)}
}

func (s *Sender) SendText(ctx context.Context, recipient int64, text string) error {
	s.mu.Lock()
	if s.failNext > 0 {
		s.failNext--
		s.mu.Unlock()
		return fmt.Errorf("%w: injected failure", store.ErrDelivery)
	}
	msg := Message{Recipient: recipient, Text: text}
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	select {
	case s.notify <- msg:
	default:
	}
	return nil
}

func (s *Sender) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

func (s *Sender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}

// Delivered yields each successful send; buffered, drops when full.
func (s *Sender) Delivered() <-chan Message {
	return s.notify
}
