package main

import (
	"sync"
	"time"
)

// EventKind tags the variant held by an EventEntry.
type EventKind string

const (
	EventConsole       EventKind = "console"
	EventPageError     EventKind = "pageerror"
	EventRequestFailed EventKind = "requestfailed"
)

// ConsoleEvent is the payload of a console entry.
type ConsoleEvent struct {
	Level    string
	Text     string
	Location *SourceLocation
}

// PageErrorEvent is the payload of an uncaught page error.
type PageErrorEvent struct {
	Message string
}

// RequestFailedEvent is the payload of a failed network request.
type RequestFailedEvent struct {
	URL     string
	Failure string
}

// EventEntry is one captured page event. Exactly one payload pointer
// matching Kind is set.
type EventEntry struct {
	Time    time.Time
	Kind    EventKind
	Console *ConsoleEvent
	Error   *PageErrorEvent
	Request *RequestFailedEvent
}

// EventCollector buffers page events for a single test case in arrival order.
// Handlers may be called from driver goroutines.
type EventCollector struct {
	mu      sync.Mutex
	entries []EventEntry
	now     func() time.Time
}

// NewEventCollector creates an empty collector.
func NewEventCollector() *EventCollector {
	return &EventCollector{now: time.Now}
}

// Attach subscribes the collector to the page's three event streams.
func (c *EventCollector) Attach(page Page) {
	page.OnConsole(c.OnConsole)
	page.OnPageError(c.OnPageError)
	page.OnRequestFailed(c.OnRequestFailed)
}

// OnConsole records a console message.
func (c *EventCollector) OnConsole(msg ConsoleMessage) {
	ev := &ConsoleEvent{Level: "log"}
	if msg != nil {
		guard(func() { ev.Level = msg.Type() })
		guard(func() { ev.Text = msg.Text() })
		guard(func() {
			if loc := msg.Location(); loc != nil {
				l := *loc
				ev.Location = &l
			}
		})
	}
	c.append(EventEntry{Kind: EventConsole, Console: ev})
}

// OnPageError records an uncaught page error.
func (c *EventCollector) OnPageError(err error) {
	ev := &PageErrorEvent{}
	if err != nil {
		guard(func() { ev.Message = err.Error() })
	}
	c.append(EventEntry{Kind: EventPageError, Error: ev})
}

// OnRequestFailed records a failed network request.
func (c *EventCollector) OnRequestFailed(req FailedRequest) {
	ev := &RequestFailedEvent{Failure: "unknown"}
	if req != nil {
		guard(func() { ev.URL = req.URL() })
		guard(func() {
			if failure := req.Failure(); failure != nil && failure.Error() != "" {
				ev.Failure = failure.Error()
			}
		})
	}
	c.append(EventEntry{Kind: EventRequestFailed, Request: ev})
}

// Entries returns a copy of the captured entries.
func (c *EventCollector) Entries() []EventEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EventEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of captured entries.
func (c *EventCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *EventCollector) append(e EventEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.Time = c.now()
	c.entries = append(c.entries, e)
}

// guard runs fn and swallows any panic raised by a driver accessor.
// The field keeps its default and the event is still recorded.
func guard(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}
