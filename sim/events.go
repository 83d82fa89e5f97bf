package sim

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/parallel-qsim/qsim/sim/wire"
)

// EventsSubscriber receives every simulation event in the order it was
// published. Subscribers must not mutate the event.
type EventsSubscriber interface {
	HandleEvent(e *wire.Event)
}

// EventsPublisher fans one partition's event stream out to its
// subscribers. Publication order is the deterministic simulation order, so
// the stream doubles as the determinism fingerprint of a run.
type EventsPublisher struct {
	subs []EventsSubscriber
}

func NewEventsPublisher(subs ...EventsSubscriber) *EventsPublisher {
	return &EventsPublisher{subs: subs}
}

// Subscribe adds a subscriber.
func (p *EventsPublisher) Subscribe(s EventsSubscriber) {
	p.subs = append(p.subs, s)
}

// Publish sends one event to all subscribers.
func (p *EventsPublisher) Publish(now uint32, kind wire.EventKind, vehicleID, linkID uint64) {
	e := wire.Event{Time: now, Kind: kind, VehicleID: vehicleID, LinkID: linkID}
	for _, s := range p.subs {
		s.HandleEvent(&e)
	}
}

// Finish flushes subscribers that buffer output.
func (p *EventsPublisher) Finish() error {
	for _, s := range p.subs {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}

// EventsCollector keeps every event in memory. Used by tests and the
// end-of-run report.
type EventsCollector struct {
	Events []wire.Event
}

func NewEventsCollector() *EventsCollector { return &EventsCollector{} }

func (c *EventsCollector) HandleEvent(e *wire.Event) {
	c.Events = append(c.Events, *e)
}

// CountByKind tallies the collected events per kind.
func (c *EventsCollector) CountByKind() map[wire.EventKind]int {
	counts := make(map[wire.EventKind]int)
	for i := range c.Events {
		counts[c.Events[i].Kind]++
	}
	return counts
}

// EventsFileWriter streams events to a length-delimited file.
type EventsFileWriter struct {
	f *os.File
	w *wire.EventWriter
}

func NewEventsFileWriter(path string) (*EventsFileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("events: create %s: %w", path, err)
	}
	return &EventsFileWriter{f: f, w: wire.NewEventWriter(f)}, nil
}

func (s *EventsFileWriter) HandleEvent(e *wire.Event) {
	if err := s.w.Write(e); err != nil {
		logrus.WithError(err).Error("writing event")
	}
}

func (s *EventsFileWriter) Close() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.f.Close()
}

// EventsLogger mirrors events onto the debug log.
type EventsLogger struct{}

func (EventsLogger) HandleEvent(e *wire.Event) {
	logrus.WithFields(logrus.Fields{
		"time":    e.Time,
		"kind":    e.Kind,
		"vehicle": e.VehicleID,
		"link":    e.LinkID,
	}).Debug("event")
}
