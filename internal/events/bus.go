// Package events is the in-memory event bus the engine uses to report
// artifact and geo lifecycle changes to the host application.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rafaeljc/bifrost/internal/delivery"
	"github.com/rafaeljc/bifrost/internal/observability"
)

// Type names an event.
type Type string

const (
	ArtifactDownloadSucceeded Type = "artifactDownloadSucceeded"
	ArtifactDownloadFailed    Type = "artifactDownloadFailed"
	GeoLocationUpdated        Type = "geoLocationUpdated"
)

// Event is a lightweight signal. Data holds one of the typed payloads below.
type Event struct {
	Type Type
	Time time.Time
	Data any
}

// ArtifactDownloaded is the payload of ArtifactDownloadSucceeded.
type ArtifactDownloaded struct {
	Location string
	Payload  json.RawMessage
}

// ArtifactDownloadError is the payload of ArtifactDownloadFailed.
type ArtifactDownloadError struct {
	Location string
	Err      error
}

// GeoUpdated is the payload of GeoLocationUpdated.
type GeoUpdated struct {
	Geo *delivery.Geo
}

// Bus is a fan-out bus.
//
// Publish never blocks: each subscriber owns a buffered channel and events
// are dropped (logged and counted) for subscribers that fall behind.
type Bus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	seq    atomic.Uint64
}

// NewBus returns an empty bus. It does not own any goroutine.
// If logger is nil, it defaults to slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger.With(slog.String("component", "events")),
		subs:   make(map[uint64]chan Event),
	}
}

// Publish delivers e to every subscriber that has room for it.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			observability.EventsDroppedTotal.WithLabelValues(string(e.Type)).Inc()
			b.logger.Warn("event dropped for a slow subscriber",
				slog.String("type", string(e.Type)),
				slog.Int("buffer", cap(ch)),
			)
		}
	}
}

// Subscribe registers a subscriber. The returned function unsubscribes and
// closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}
