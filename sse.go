package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	streamBuffer    = 16
	streamHeartbeat = 30 * time.Second
)

// message is one event queued for a stream. IDs increase per puzzle.
type message struct {
	id   uint64
	data []byte
}

// subscriber is one open event stream on a puzzle.
type subscriber struct {
	puzzleID string
	ch       chan message
}

type topic struct {
	seq  uint64
	subs map[*subscriber]struct{}
}

// Hub fans puzzle events out to the event streams open on each puzzle.
// A subscriber whose queue is full is dropped: its browser reconnects and is
// sent the whole state again, so it never misses an edit silently.
type Hub struct {
	mu     sync.Mutex
	topics map[string]*topic
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]*topic)}
}

// Subscribe opens a stream on a puzzle.
func (h *Hub) Subscribe(puzzleID string) *subscriber {
	s := &subscriber{puzzleID: puzzleID, ch: make(chan message, streamBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[puzzleID]
	if !ok {
		t = &topic{subs: make(map[*subscriber]struct{})}
		h.topics[puzzleID] = t
	}
	t.subs[s] = struct{}{}
	return s
}

// Unsubscribe closes a stream. Closing it twice is a no-op.
func (h *Hub) Unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(s)
}

// drop removes s from its topic. h.mu must be held.
func (h *Hub) drop(s *subscriber) {
	t, ok := h.topics[s.puzzleID]
	if !ok {
		return
	}
	if _, ok := t.subs[s]; !ok {
		return
	}
	delete(t.subs, s)
	close(s.ch)
	if len(t.subs) == 0 {
		delete(h.topics, s.puzzleID)
	}
}

// Publish encodes evt as JSON and queues it on every stream of the puzzle.
func (h *Hub) Publish(puzzleID string, evt any) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[puzzleID]
	if !ok {
		return nil
	}
	t.seq++
	msg := message{id: t.seq, data: data}
	for s := range t.subs {
		select {
		case s.ch <- msg:
		default:
			h.drop(s)
		}
	}
	return nil
}

// Subscribers returns the number of open streams on a puzzle.
func (h *Hub) Subscribers(puzzleID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[puzzleID]; ok {
		return len(t.subs)
	}
	return 0
}

// Close ends every stream of a puzzle, after the events already queued.
func (h *Hub) Close(puzzleID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[puzzleID]; ok {
		for s := range t.subs {
			h.drop(s)
		}
	}
}

// Serve streams the events of a puzzle as server-sent events until the client
// goes away or the stream is closed. hello is sent first; onDone runs once
// the stream has ended.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, puzzleID string, hello any, onDone func()) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return nil
	}
	first, err := json.Marshal(hello)
	if err != nil {
		return fmt.Errorf("encode hello: %w", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s := h.Subscribe(puzzleID)
	defer func() {
		h.Unsubscribe(s)
		if onDone != nil {
			onDone()
		}
	}()

	fmt.Fprintf(w, "data: %s\n\n", first)
	flusher.Flush()

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return nil
		case msg, ok := <-s.ch:
			if !ok {
				return nil
			}
			fmt.Fprintf(w, "id: %d\ndata: %s\n\n", msg.id, msg.data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
