// Package broadcast keeps the tabs of one logical user session consistent: a
// tab that logs out announces it, and every other tab registered for the same
// user tears its own session down without re-announcing.
package broadcast

import "sync"

// Message is the payload exchanged on a channel.
type Message struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

const TypeLogout = "logout"

// Channel delivers messages between endpoints sharing one origin. Publishing
// never delivers back to the publishing endpoint.
type Channel interface {
	Connect() Endpoint
}

// Endpoint is one tab's attachment to a channel.
type Endpoint interface {
	Publish(msg Message)
	OnMessage(handler func(Message))
	Close()
}

var _ Channel = (*LocalChannel)(nil)

// LocalChannel is an in-process channel for tabs hosted in one process.
type LocalChannel struct {
	mu        sync.Mutex
	nextID    int
	endpoints map[int]*localEndpoint
}

func NewLocalChannel() *LocalChannel {
	return &LocalChannel{endpoints: make(map[int]*localEndpoint)}
}

func (c *LocalChannel) Connect() Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	endpoint := &localEndpoint{channel: c, id: c.nextID}
	c.endpoints[c.nextID] = endpoint
	c.nextID++
	return endpoint
}

func (c *LocalChannel) publish(from int, msg Message) {
	c.mu.Lock()
	handlers := make([]func(Message), 0, len(c.endpoints))
	for id, endpoint := range c.endpoints {
		if id == from || endpoint.handler == nil {
			continue
		}
		handlers = append(handlers, endpoint.handler)
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(msg)
	}
}

type localEndpoint struct {
	channel *LocalChannel
	id      int
	handler func(Message)
}

func (e *localEndpoint) Publish(msg Message) {
	e.channel.publish(e.id, msg)
}

func (e *localEndpoint) OnMessage(handler func(Message)) {
	e.channel.mu.Lock()
	defer e.channel.mu.Unlock()
	e.handler = handler
}

func (e *localEndpoint) Close() {
	e.channel.mu.Lock()
	defer e.channel.mu.Unlock()
	delete(e.channel.endpoints, e.id)
}
