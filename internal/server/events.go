package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	EventNumberAssigned = "number-assigned"
	EventNumberReleased = "number-released"
	eventHeartbeat      = "heartbeat"
	eventSource         = "surat-api"

	// AudienceAll receives events of every department.
	AudienceAll = "*"

	heartbeatInterval = 25 * time.Second
)

// NumberingEvent announces a change to a numbered slot so other clerks see
// numbers being taken as it happens.
type NumberingEvent struct {
	EventType    string    `json:"-"`
	Sequence     string    `json:"sequence"`
	DocumentID   string    `json:"id"`
	Number       int64     `json:"number"`
	Label        string    `json:"label,omitempty"`
	DepartmentID string    `json:"departmentId,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// EventDispatcher fans numbering events out to subscribers grouped by
// department.
type EventDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*eventSubscriber
	nextID      int64
	bufferSize  int
}

type eventSubscriber struct {
	id     int64
	stream chan NumberingEvent
}

// NewEventDispatcher constructs an empty dispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		subscribers: make(map[string]map[int64]*eventSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for audience, a department id or AudienceAll.
// The subscription ends when ctx is done or cleanup is called.
func (d *EventDispatcher) Subscribe(ctx context.Context, audience string) (<-chan NumberingEvent, func()) {
	subscriber := &eventSubscriber{
		id:     d.nextSequence(),
		stream: make(chan NumberingEvent, d.bufferSize),
	}
	d.registerSubscriber(audience, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(audience, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers event to its department and to AudienceAll. Events without
// a department reach everyone. Slow subscribers drop events.
func (d *EventDispatcher) Publish(event NumberingEvent) {
	if event.EventType == "" {
		return
	}
	d.mu.RLock()
	targets := make([]*eventSubscriber, 0)
	if event.DepartmentID == "" {
		for _, group := range d.subscribers {
			for _, subscriber := range group {
				targets = append(targets, subscriber)
			}
		}
	} else {
		for _, audience := range []string{event.DepartmentID, AudienceAll} {
			for _, subscriber := range d.subscribers[audience] {
				targets = append(targets, subscriber)
			}
		}
	}
	d.mu.RUnlock()
	for _, subscriber := range targets {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

func (d *EventDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *EventDispatcher) registerSubscriber(audience string, subscriber *eventSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[audience]; !ok {
		d.subscribers[audience] = make(map[int64]*eventSubscriber)
	}
	d.subscribers[audience][subscriber.id] = subscriber
}

func (d *EventDispatcher) unregisterSubscriber(audience string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[audience]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, audience)
		}
	}
	d.mu.Unlock()
}

func (h *httpHandler) publish(eventType, sequence, id string, number int64, label string, departmentID *string) {
	event := NumberingEvent{
		EventType:  eventType,
		Sequence:   sequence,
		DocumentID: id,
		Number:     number,
		Label:      label,
		Timestamp:  h.clock().UTC(),
	}
	if departmentID != nil {
		event.DepartmentID = *departmentID
	}
	h.events.Publish(event)
}

func (h *httpHandler) handleEventStream(c *gin.Context) {
	caller := callerFrom(c)
	audience := caller.DepartmentID
	if caller.IsAdmin {
		audience = AudienceAll
	}

	stream, cleanup := h.events.Subscribe(c.Request.Context(), audience)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case event, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(event.EventType, event)
			return true
		case <-ticker.C:
			c.SSEvent(eventHeartbeat, gin.H{"source": eventSource})
			return true
		}
	})
	h.logger.Debug("event stream closed", zap.String("user_id", caller.UserID))
}
