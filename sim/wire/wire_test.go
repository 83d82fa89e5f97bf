package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkRoundTrip(t *testing.T) {
	net := &Network{
		Nodes: []Node{
			{ID: 1, X: -100.5, Y: 0, Partition: 0, CmpWeight: 3},
			{ID: 2, X: 0, Y: 250.25, Partition: 1, CmpWeight: 1},
		},
		Links: []Link{
			{ID: 10, From: 1, To: 2, Length: 100, Capacity: 3600, Freespeed: 10, Permlanes: 1, Modes: []uint64{0, 7}, Partition: 1},
		},
		EffectiveCellSize: 7.5,
	}

	var decoded Network
	require.NoError(t, decoded.Unmarshal(net.Marshal()))
	assert.Equal(t, *net, decoded)
}

func TestVehiclesContainerRoundTrip(t *testing.T) {
	container := &VehiclesContainer{
		VehicleTypes: []VehicleType{
			{ID: 1, Length: 7.5, Width: 1.8, MaxV: 16.67, Pce: 1, Fef: 1.2, NetMode: 0, Lod: LodNetwork},
			{ID: 2, Length: 2, Width: 0.8, MaxV: 4.2, Pce: 0.25, NetMode: 3, Lod: LodTeleported},
		},
		Vehicles: []VehicleToType{
			{ID: 100, VehicleTypeID: 1},
			{ID: 101, VehicleTypeID: 2},
		},
	}

	var decoded VehiclesContainer
	require.NoError(t, decoded.Unmarshal(container.Marshal()))
	assert.Equal(t, *container, decoded)
}

func TestSyncMessageRoundTrip(t *testing.T) {
	msg := &SyncMessage{
		Time:        42,
		FromProcess: 0,
		ToProcess:   3,
		Vehicles: []Vehicle{
			{ID: 7, VehicleTypeID: 1, Route: []uint64{4, 5, 6}, CurrRouteElem: 1, Mode: 2},
			{ID: 8, VehicleTypeID: 2, Route: []uint64{9}, ExitTime: 120},
		},
		StorageCaps: []StorageCap{
			{LinkID: 4, Value: 42.5},
		},
	}

	var decoded SyncMessage
	require.NoError(t, decoded.Unmarshal(msg.Marshal()))
	assert.Equal(t, *msg, decoded)
}

func TestPlansRoundTrip(t *testing.T) {
	plans := &Plans{
		Agents: []AgentPlan{
			{ID: 1, Departure: 0, VehicleID: 100, Route: []uint64{0, 1, 2}, Distance: 300},
			{ID: 2, Departure: 3600, VehicleID: 101, Route: []uint64{2}, Distance: 100},
		},
	}

	var decoded Plans
	require.NoError(t, decoded.Unmarshal(plans.Marshal()))
	assert.Equal(t, *plans, decoded)
}

func TestZeroValuesSurviveRoundTrip(t *testing.T) {
	// proto3 presence rules: zero fields are omitted on the wire and must
	// come back as zero values.
	var decoded Vehicle
	require.NoError(t, decoded.Unmarshal((&Vehicle{}).Marshal()))
	assert.Equal(t, Vehicle{}, decoded)

	node := Node{ID: 5}
	var decodedNode Node
	require.NoError(t, decodedNode.Unmarshal(node.Marshal()))
	assert.Equal(t, node, decodedNode)
}

func TestUnmarshalRejectsTruncatedMessage(t *testing.T) {
	msg := &SyncMessage{
		Time:     1,
		Vehicles: []Vehicle{{ID: 7, Route: []uint64{1, 2, 3}}},
	}
	data := msg.Marshal()

	var decoded SyncMessage
	assert.Error(t, decoded.Unmarshal(data[:len(data)-2]))
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	// a newer writer may add fields; old readers must skip them
	data := (&Node{ID: 9, CmpWeight: 2}).Marshal()
	// field 99, varint 1
	data = append(data, 0x98, 0x06, 0x01)

	var decoded Node
	require.NoError(t, decoded.Unmarshal(data))
	assert.Equal(t, uint64(9), decoded.ID)
	assert.Equal(t, uint32(2), decoded.CmpWeight)
}

func TestEventStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewEventWriter(&buf)

	events := []Event{
		{Time: 0, Kind: EventDeparture, VehicleID: 1, LinkID: 4},
		{Time: 10, Kind: EventLinkLeave, VehicleID: 1, LinkID: 4},
		{Time: 10, Kind: EventLinkEnter, VehicleID: 1, LinkID: 5},
		{Time: 25, Kind: EventArrival, VehicleID: 1, LinkID: 5},
	}
	for i := range events {
		require.NoError(t, w.Write(&events[i]))
	}
	require.NoError(t, w.Flush())

	decoded, err := ReadEvents(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, events, decoded)
}

func TestReadEventsRejectsTruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	w := NewEventWriter(&buf)
	require.NoError(t, w.Write(&Event{Time: 1, Kind: EventLinkEnter, VehicleID: 2, LinkID: 3}))
	require.NoError(t, w.Flush())

	_, err := ReadEvents(buf.Bytes()[:buf.Len()-1])
	assert.Error(t, err)
}
