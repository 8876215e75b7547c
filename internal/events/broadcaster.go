// Package events provides the observer channel for listing cache changes,
// marketplace status transitions and remote error reports.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/marketmirror/marketmirror/internal/metrics"
)

const (
	EventCacheChanged  = "cache_changed"
	EventStatusChanged = "status_changed"
	EventErrorReport   = "error_report"
)

// Event represents one observable change. CacheChanged events carry no
// payload beyond the folder that triggered them; ErrorReport events carry
// the remote status code and the server-supplied detail.
type Event struct {
	Type      string         `json:"type"`
	FolderID  string         `json:"folder_id,omitempty"`
	Operation string         `json:"operation,omitempty"`
	Code      int            `json:"code,omitempty"`
	Status    string         `json:"status,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Broadcaster manages subscribers and publishes events to them.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	close(ch)
	b.mu.Unlock()
}

// Publish sends an event to all subscribers. Non-blocking: drops events
// for slow consumers. Subscribers always observe post-reconciliation
// state because the publisher only calls this after the cache mutation
// is complete.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop event for slow consumer
		}
	}
	metrics.RecordEvent(event.Type)
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
