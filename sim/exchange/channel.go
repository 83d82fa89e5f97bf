package exchange

import (
	"fmt"

	"github.com/parallel-qsim/qsim/sim/wire"
)

// ChannelFabric connects the ranks of a multi-goroutine run. Messages are
// marshaled on send and unmarshaled on receive so the in-process transport
// exercises the same wire path as gRPC.
type ChannelFabric struct {
	size    uint32
	inboxes []chan []byte
	red     *reducer
}

// NewChannelFabric creates the shared fabric for size ranks.
func NewChannelFabric(size uint32) *ChannelFabric {
	f := &ChannelFabric{
		size:    size,
		inboxes: make([]chan []byte, size),
		red:     newReducer(int(size)),
	}
	for i := range f.inboxes {
		f.inboxes[i] = make(chan []byte, 1024)
	}
	return f
}

// Communicator returns the per-rank view of the fabric.
func (f *ChannelFabric) Communicator(rank uint32) *ChannelCommunicator {
	return &ChannelCommunicator{fabric: f, rank: rank}
}

// ChannelCommunicator is one rank's endpoint on a ChannelFabric.
type ChannelCommunicator struct {
	fabric *ChannelFabric
	rank   uint32
}

func (c *ChannelCommunicator) Rank() uint32 { return c.rank }
func (c *ChannelCommunicator) Size() uint32 { return c.fabric.size }

func (c *ChannelCommunicator) SendReceiveVehicles(out map[uint32]*wire.SyncMessage, expected map[uint32]bool, now uint32, onMsg func(*wire.SyncMessage)) error {
	for dest, msg := range out {
		if dest >= c.fabric.size {
			return fmt.Errorf("rank %d: message for unknown rank %d", c.rank, dest)
		}
		c.fabric.inboxes[dest] <- msg.Marshal()
	}
	for len(expected) > 0 {
		if err := c.receiveOne(<-c.fabric.inboxes[c.rank], expected, now, onMsg); err != nil {
			return err
		}
	}
	// messages from non-neighbors (teleports) are picked up opportunistically
	for {
		select {
		case data := <-c.fabric.inboxes[c.rank]:
			if err := c.receiveOne(data, expected, now, onMsg); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (c *ChannelCommunicator) receiveOne(data []byte, expected map[uint32]bool, now uint32, onMsg func(*wire.SyncMessage)) error {
	msg := new(wire.SyncMessage)
	if err := msg.Unmarshal(data); err != nil {
		return fmt.Errorf("rank %d: decoding sync message: %w", c.rank, err)
	}
	if msg.Time == now {
		delete(expected, msg.FromProcess)
	}
	onMsg(msg)
	return nil
}

func (c *ChannelCommunicator) GlobalSum(now uint32, value uint64) (uint64, error) {
	return c.fabric.red.reduce(value), nil
}
