// Package sse streams catalog lifecycle events to browsers over Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/starford/capes/internal/heroservice"
)

// InvalidatedEvent tells clients that any cached listing page is stale.
const InvalidatedEvent = "catalog.invalidated"

// Event is one message broadcast to every subscriber.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type heroEventReq struct {
	kind       string
	data       any
	invalidate bool
}

// recordPayload lets clients patch a listed entry without refetching.
type recordPayload struct {
	ID       string   `json:"id"`
	Nickname string   `json:"nickname"`
	Images   []string `json:"images"`
}

type imagesPayload struct {
	ID     string   `json:"id"`
	Images []string `json:"images"`
}

type idPayload struct {
	ID string `json:"id"`
}

// payloadFor copies what the event needs so the loop never shares memory
// with the caller.
func payloadFor(c heroservice.Change) any {
	switch {
	case c.Record != nil:
		return recordPayload{ID: c.ID, Nickname: c.Record.Nickname, Images: cloneImages(c.Record.Images)}
	case c.Kind == heroservice.EventImageRemoved:
		return imagesPayload{ID: c.ID, Images: cloneImages(c.Images)}
	default:
		return idPayload{ID: c.ID}
	}
}

func cloneImages(images []string) []string {
	if images == nil {
		return []string{}
	}
	return slices.Clone(images)
}

// invalidates reports whether a change alters listing membership or order,
// which a client can not patch from the event alone.
func invalidates(kind string) bool {
	return kind == heroservice.EventCreated || kind == heroservice.EventDeleted
}

// Broker fans events out to SSE clients.
//
// A single loop goroutine owns the client set, the sequence counter and the
// invalidation throttle; public methods talk to it over channels.
type Broker struct {
	invalidateMin time.Duration
	keepAlive     time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	heroEventCh   chan heroEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. invalidateThrottle is the minimum gap between two
// catalog.invalidated events; keepAlive is the comment-ping period per stream.
func NewBroker(invalidateThrottle, keepAlive time.Duration) *Broker {
	if invalidateThrottle <= 0 {
		invalidateThrottle = 2 * time.Second
	}
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}

	b := &Broker{
		invalidateMin: invalidateThrottle,
		keepAlive:     keepAlive,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		heroEventCh:   make(chan heroEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastInvalidate time.Time
		seq            uint64
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			slog.Warn("sse: encode event", slog.String("type", event.Type), slog.String("error", err.Error()))
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// slow client, drop
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

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.heroEventCh:
			broadcast(Event{Type: req.kind, Data: req.data})
			if !req.invalidate {
				continue
			}

			now := time.Now()
			if now.Sub(lastInvalidate) >= b.invalidateMin {
				lastInvalidate = now
				broadcast(Event{Type: InvalidatedEvent, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel. Safe to call twice.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client and returns its message channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
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

// Publish sends an arbitrary event to all clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishHeroChange broadcasts a record lifecycle event. Creates and deletes
// are followed by a throttled catalog.invalidated event; updates and image
// removals carry enough data to patch cached entries in place.
func (b *Broker) PublishHeroChange(c heroservice.Change) {
	if b.closed.Load() {
		return
	}
	req := heroEventReq{kind: c.Kind, data: payloadFor(c), invalidate: invalidates(c.Kind)}
	select {
	case b.heroEventCh <- req:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
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
