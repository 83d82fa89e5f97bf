package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parallel-qsim/qsim/sim/wire"
)

func TestEventsPublisherFansOutInOrder(t *testing.T) {
	a := NewEventsCollector()
	b := NewEventsCollector()
	p := NewEventsPublisher(a)
	p.Subscribe(b)

	p.Publish(1, wire.EventDeparture, 100, 10)
	p.Publish(2, wire.EventLinkEnter, 100, 10)

	require.Len(t, a.Events, 2)
	assert.Equal(t, a.Events, b.Events)
	assert.Equal(t, wire.EventDeparture, a.Events[0].Kind)
	assert.Equal(t, uint32(2), a.Events[1].Time)
}

func TestEventsCollectorCountByKind(t *testing.T) {
	c := NewEventsCollector()
	p := NewEventsPublisher(c)
	p.Publish(0, wire.EventDeparture, 1, 1)
	p.Publish(5, wire.EventArrival, 1, 1)
	p.Publish(6, wire.EventDeparture, 2, 1)

	counts := c.CountByKind()
	assert.Equal(t, 2, counts[wire.EventDeparture])
	assert.Equal(t, 1, counts[wire.EventArrival])
}

func TestEventsFileWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.bin")
	w, err := NewEventsFileWriter(path)
	require.NoError(t, err)

	p := NewEventsPublisher(w)
	p.Publish(1, wire.EventDeparture, 100, 10)
	p.Publish(10, wire.EventLinkLeave, 100, 10)
	p.Publish(10, wire.EventArrival, 100, 10)
	require.NoError(t, p.Finish())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	events, err := wire.ReadEvents(data)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, wire.Event{Time: 1, Kind: wire.EventDeparture, VehicleID: 100, LinkID: 10}, events[0])
	assert.Equal(t, wire.EventArrival, events[2].Kind)
}
