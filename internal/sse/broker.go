// Package sse streams record index changes to HTTP clients as Server-Sent
// Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/decisionrecords/internal/index"
	"github.com/starford/decisionrecords/internal/parser"
)

// Event types written on the stream.
const (
	TypeRecordCreated = "record.created"
	TypeRecordUpdated = "record.updated"
	TypeRecordDeleted = "record.deleted"
	TypeGraphUpdated  = "graph.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// RecordEvent is the payload of the record.* events.
type RecordEvent struct {
	ID   int    `json:"id"`
	Path string `json:"path"`
}

type recordEventReq struct {
	kind string
	path string
}

// subscription is a client channel and the record it follows; 0 follows all.
type subscription struct {
	ch     chan []byte
	record int
}

// Broker fans events out to connected clients.
//
// A single goroutine owns the client set and the graph throttle timestamp;
// the exported methods talk to it over channels.
type Broker struct {
	graphMin  time.Duration
	keepAlive time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	recordCh      chan recordEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits graph.updated at most once per
// graphThrottle.
func NewBroker(graphThrottle time.Duration) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}

	b := &Broker{
		graphMin:      graphThrottle,
		keepAlive:     30 * time.Second,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		recordCh:      make(chan recordEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

// recordEventType maps an index watcher kind to an event type.
func recordEventType(kind string) (string, bool) {
	switch kind {
	case index.EventCreated:
		return TypeRecordCreated, true
	case index.EventUpdated:
		return TypeRecordUpdated, true
	case index.EventDeleted:
		return TypeRecordDeleted, true
	}
	return "", false
}

func encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event.Type, payload), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]int)
	var lastGraph time.Time

	// broadcast delivers event to clients following record. Record 0 reaches
	// every client.
	broadcast := func(event Event, record int) {
		raw, err := encode(event)
		if err != nil {
			return
		}
		for ch, follows := range clients {
			if record != 0 && follows != 0 && follows != record {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.record

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event, 0)

		case req := <-b.recordCh:
			typ, ok := recordEventType(req.kind)
			if !ok {
				continue
			}
			id := parser.RecordID(req.path)
			broadcast(Event{Type: typ, Data: RecordEvent{ID: id, Path: req.path}}, id)

			now := time.Now()
			if now.Sub(lastGraph) >= b.graphMin {
				lastGraph = now
				broadcast(Event{Type: TypeGraphUpdated, Data: map[string]string{}}, 0)
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client that receives every event and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeRecord(0)
}

// SubscribeRecord adds a client that only receives record events for id,
// plus graph and custom events. An id of 0 follows all records.
func (b *Broker) SubscribeRecord(id int) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, record: id}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishRecordEvent publishes a record change reported by the index
// watcher, followed by a throttled graph.updated. Its signature matches
// index.EventCallback.
func (b *Broker) PublishRecordEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.recordCh <- recordEventReq{kind: kind, path: path}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). The optional
// record query parameter limits record events to one identifier.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	record := 0
	if v := r.URL.Query().Get("record"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id < 1 {
			http.Error(w, "record must be a positive integer", http.StatusBadRequest)
			return
		}
		record = id
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.SubscribeRecord(record)
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(b.keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
