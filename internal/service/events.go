package service

import "sync"

// EventType defines the type of event
type EventType string

const (
	EventAnalysisStarted   EventType = "analysis_started"
	EventAnalyzerCompleted EventType = "analyzer_completed"
	EventAnalysisCompleted EventType = "analysis_completed"
	EventAnalysisFailed    EventType = "analysis_failed"
	EventReferenceReloaded EventType = "reference_reloaded"
)

// Event represents an event that occurred in the system
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// RunEvent is the payload of analysis events
type RunEvent struct {
	RunID      string  `json:"run_id"`
	Dataset    string  `json:"dataset"`
	Analyzer   string  `json:"analyzer,omitempty"`
	Anomalies  int     `json:"anomalies,omitempty"`
	DurationMS int64   `json:"duration_ms,omitempty"`
	Score      float64 `json:"score,omitempty"`
	Grade      string  `json:"grade,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// EventBus allows publishing and subscribing to events
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Unsubscribe removes a subscriber
func (eb *EventBus) Unsubscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
