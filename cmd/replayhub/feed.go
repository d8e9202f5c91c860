package main

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

const recentMatches = 20

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSClient(id string, conn *websocket.Conn) *wsClient {
	return &wsClient{id: id, conn: conn, send: make(chan []byte, 64), done: make(chan struct{})}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// enqueue never blocks; a client whose buffer is full is dropped by the caller.
func (c *wsClient) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *wsClient) enqueueJSON(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return c.enqueue(b)
}

// Feed fans parsed matches out to websocket subscribers and remembers the
// most recent ones for newcomers.
type Feed struct {
	mu     sync.Mutex
	subs   map[*wsClient]struct{}
	recent []MatchSummary
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[*wsClient]struct{})}
}

func (f *Feed) add(c *wsClient) {
	f.mu.Lock()
	f.subs[c] = struct{}{}
	f.mu.Unlock()
}

func (f *Feed) remove(c *wsClient) {
	f.mu.Lock()
	delete(f.subs, c)
	f.mu.Unlock()
}

func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Recent returns the remembered summaries, newest first.
func (f *Feed) Recent() []MatchSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]MatchSummary, len(f.recent))
	for i, s := range f.recent {
		out[len(f.recent)-1-i] = s
	}
	return out
}

func (f *Feed) Publish(msg FeedMatchMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.recent = append(f.recent, msg.Summary)
	if len(f.recent) > recentMatches {
		f.recent = f.recent[len(f.recent)-recentMatches:]
	}
	for c := range f.subs {
		if ok := c.enqueue(b); !ok {
			c.close()
			delete(f.subs, c)
		}
	}
}
