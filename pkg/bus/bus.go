// Package bus implements the in-memory message bus for agent communication.
// It keeps per-agent FIFO mailboxes plus an append-only global history, and
// supports parent-child threading for conversation reconstruction.
//
// The bus is an explicitly constructed instance: callers inject it into every
// agent, there is no package-level global. Mailbox append and history append
// happen under one lock so a reader can never observe a message in one
// structure but not the other.
package bus

import (
	"context"
	"sort"
	"sync"

	"github.com/inkharmony/inkharmony/pkg/domain"
)

// Subscriber is a named tap on the message stream. Every sent message is
// fanned out to all taps; slow consumers drop.
type Subscriber struct {
	Name string
	ch   chan *Message
}

// MessageBus is the process-wide message exchange between agents.
type MessageBus struct {
	mu        sync.Mutex
	mailboxes map[domain.Role][]*Message
	wake      map[domain.Role]chan struct{}
	history   []*Message
	byID      map[string]*Message
	children  map[string][]*Message
	waiters   map[string][]chan *Message
	taps      []*Subscriber
	closed    bool
	closeOnce sync.Once
}

// New creates an empty message bus.
func New() *MessageBus {
	return &MessageBus{
		mailboxes: make(map[domain.Role][]*Message),
		wake:      make(map[domain.Role]chan struct{}),
		byID:      make(map[string]*Message),
		children:  make(map[string][]*Message),
		waiters:   make(map[string][]chan *Message),
	}
}

// Register ensures a mailbox exists for the agent. Idempotent.
func (b *MessageBus) Register(agent domain.Role) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureMailbox(agent)
}

// ensureMailbox must be called with the lock held.
func (b *MessageBus) ensureMailbox(agent domain.Role) {
	if _, ok := b.mailboxes[agent]; !ok {
		b.mailboxes[agent] = nil
		b.wake[agent] = make(chan struct{}, 1)
	}
}

// Send delivers a message to its recipient's mailbox and appends it to the
// global history as one atomic step. Unknown sender and recipient ids are
// auto-registered. Returns the message id.
func (b *MessageBus) Send(msg *Message) string {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return msg.ID
	}

	b.ensureMailbox(msg.Sender)
	b.ensureMailbox(msg.Recipient)

	b.mailboxes[msg.Recipient] = append(b.mailboxes[msg.Recipient], msg)
	b.history = append(b.history, msg)
	b.byID[msg.ID] = msg
	if msg.ParentID != "" {
		b.children[msg.ParentID] = append(b.children[msg.ParentID], msg)
	}

	// Resolve one-shot reply futures keyed by the answered message.
	if msg.ParentID != "" && msg.Kind.isReply() {
		for _, ch := range b.waiters[msg.ParentID] {
			ch <- msg
		}
		delete(b.waiters, msg.ParentID)
	}

	// Wake a blocked Receive.
	select {
	case b.wake[msg.Recipient] <- struct{}{}:
	default:
	}

	taps := b.taps
	b.mu.Unlock()

	for _, sub := range taps {
		select {
		case sub.ch <- msg:
		default: // drop if subscriber is slow
		}
	}

	return msg.ID
}

// Receive atomically drains and returns the agent's mailbox in arrival order.
// The mailbox is empty afterwards; a second immediate call returns nil.
func (b *MessageBus) Receive(agent domain.Role) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ensureMailbox(agent)
	msgs := b.mailboxes[agent]
	b.mailboxes[agent] = nil
	return msgs
}

// Peek returns a copy of the agent's mailbox without draining it.
func (b *MessageBus) Peek(agent domain.Role) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ensureMailbox(agent)
	out := make([]*Message, len(b.mailboxes[agent]))
	copy(out, b.mailboxes[agent])
	return out
}

// Wait blocks until the agent's mailbox is non-empty, then drains it.
// Returns false if the context is cancelled or the bus closes first.
// At most one drain happens per wake.
func (b *MessageBus) Wait(ctx context.Context, agent domain.Role) ([]*Message, bool) {
	b.mu.Lock()
	b.ensureMailbox(agent)
	wake := b.wake[agent]
	b.mu.Unlock()

	for {
		b.mu.Lock()
		if len(b.mailboxes[agent]) > 0 {
			msgs := b.mailboxes[agent]
			b.mailboxes[agent] = nil
			b.mu.Unlock()
			return msgs, true
		}
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return nil, false
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// Await returns the first result, response, or error message answering the
// given message id. If a reply is already in the history it is returned
// immediately; otherwise Await blocks until one arrives or ctx is cancelled.
func (b *MessageBus) Await(ctx context.Context, parentID string) (*Message, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	for _, child := range b.children[parentID] {
		if child.Kind.isReply() {
			b.mu.Unlock()
			return child, nil
		}
	}
	ch := make(chan *Message, 1)
	b.waiters[parentID] = append(b.waiters[parentID], ch)
	b.mu.Unlock()

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, ErrBusClosed
		}
		return msg, nil
	case <-ctx.Done():
		b.dropWaiter(parentID, ch)
		return nil, ctx.Err()
	}
}

func (b *MessageBus) dropWaiter(parentID string, ch chan *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ws := b.waiters[parentID]
	for i, w := range ws {
		if w == ch {
			b.waiters[parentID] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(b.waiters[parentID]) == 0 {
		delete(b.waiters, parentID)
	}
}

// History returns all historical messages matching the filter, in append
// order. The returned slice is a copy.
func (b *MessageBus) History(filter Filter) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*Message, 0, len(b.history))
	for _, m := range b.history {
		if filter.matches(m) {
			out = append(out, m)
		}
	}
	return out
}

// ConversationThread reconstructs the thread containing the given message:
// it walks parent links up to the root (a missing parent makes the last found
// message the root), collects every descendant, and returns the set sorted by
// timestamp. Returns nil if the message id is unknown.
func (b *MessageBus) ConversationThread(messageID string) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg, ok := b.byID[messageID]
	if !ok {
		return nil
	}

	root := msg
	for root.ParentID != "" {
		parent, ok := b.byID[root.ParentID]
		if !ok {
			break
		}
		root = parent
	}

	thread := []*Message{root}
	b.collectDescendants(root.ID, &thread)

	sort.SliceStable(thread, func(i, j int) bool {
		return thread[i].Timestamp.Before(thread[j].Timestamp)
	})
	return thread
}

// collectDescendants must be called with the lock held.
func (b *MessageBus) collectDescendants(parentID string, out *[]*Message) {
	for _, child := range b.children[parentID] {
		*out = append(*out, child)
		b.collectDescendants(child.ID, out)
	}
}

// Subscribe creates a named tap receiving a copy of every message sent after
// this call. The channel is buffered; slow consumers drop messages.
func (b *MessageBus) Subscribe(name string) <-chan *Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscriber{Name: name, ch: make(chan *Message, 64)}
	b.taps = append(b.taps, sub)
	return sub.ch
}

// Agents returns the ids of every registered mailbox.
func (b *MessageBus) Agents() []domain.Role {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Role, 0, len(b.mailboxes))
	for agent := range b.mailboxes {
		out = append(out, agent)
	}
	return out
}

// HistoryLen returns the total number of messages ever sent.
func (b *MessageBus) HistoryLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.history)
}

// PendingCount returns the total number of undelivered mailbox messages.
func (b *MessageBus) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, box := range b.mailboxes {
		n += len(box)
	}
	return n
}

// Close shuts the bus down: subsequent sends are dropped, blocked Wait and
// Await calls return, and tap channels are closed.
func (b *MessageBus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for _, wake := range b.wake {
			close(wake)
		}
		for _, sub := range b.taps {
			close(sub.ch)
		}
		for id, ws := range b.waiters {
			for _, ch := range ws {
				close(ch)
			}
			delete(b.waiters, id)
		}
		b.mu.Unlock()
	})
}
