package memory

import (
	"context"
	"errors"
	"sync"

	appoutbox "staykeeper/internal/app/outbox"
)

// Outbox keeps committed event records until Flush hands them to Publisher.
// Without a Publisher, Flush simply drops them.
type Outbox struct {
	Publisher   appoutbox.Publisher
	TopicPrefix string

	mu      sync.Mutex
	pending []appoutbox.EventRecord
	sent    int
}

func NewOutbox(publisher appoutbox.Publisher, topicPrefix string) *Outbox {
	return &Outbox{Publisher: publisher, TopicPrefix: topicPrefix}
}

// Add stages record on the unit of work carried by ctx, if any, so that a
// rolled back unit leaves no record behind.
func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	if unit, ok := unitFromContext(ctx); ok {
		return unit.stageRecord(record)
	}
	o.enqueue([]appoutbox.EventRecord{record})
	return nil
}

func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Publisher == nil {
		o.sent += len(o.pending)
		o.pending = nil
		return nil
	}
	var errs []error
	remaining := o.pending[:0]
	for _, rec := range o.pending {
		topic := appoutbox.TopicFor(rec.Name, o.TopicPrefix)
		if err := o.Publisher.Publish(ctx, topic, rec.Aggregate, rec.Payload, rec.Headers); err != nil {
			errs = append(errs, err)
			remaining = append(remaining, rec)
			continue
		}
		o.sent++
	}
	o.pending = remaining
	return errors.Join(errs...)
}

// Pending returns a copy of the records awaiting Flush.
func (o *Outbox) Pending() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]appoutbox.EventRecord(nil), o.pending...)
}

func (o *Outbox) enqueue(records []appoutbox.EventRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, records...)
}

var _ appoutbox.Outbox = (*Outbox)(nil)
