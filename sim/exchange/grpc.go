package exchange

import (
	"context"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/parallel-qsim/qsim/sim/wire"
)

// exchangeCodec marshals the hand-rolled wire messages over gRPC without
// generated stubs.
type exchangeCodec struct{}

func (exchangeCodec) Name() string { return "qsim-wire" }

func (exchangeCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wire.Message)
	if !ok {
		return nil, fmt.Errorf("codec: %T does not implement the wire message contract", v)
	}
	return m.Marshal(), nil
}

func (exchangeCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wire.Message)
	if !ok {
		return fmt.Errorf("codec: %T does not implement the wire message contract", v)
	}
	return m.Unmarshal(data)
}

// ack is the empty response of the Deliver RPC.
type ack struct{}

func (*ack) Marshal() []byte             { return nil }
func (*ack) Unmarshal(data []byte) error { return nil }

// reduceRequest is one rank's contribution to a global sum.
type reduceRequest struct {
	Time  uint32
	From  uint32
	Value uint64
}

func (r *reduceRequest) Marshal() []byte {
	var b []byte
	if r.Time != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Time))
	}
	if r.From != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.From))
	}
	if r.Value != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, r.Value)
	}
	return b
}

func (r *reduceRequest) Unmarshal(data []byte) error {
	*r = reduceRequest{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		if typ != protowire.VarintType {
			skip := protowire.ConsumeFieldValue(num, typ, data)
			if skip < 0 {
				return protowire.ParseError(skip)
			}
			data = data[skip:]
			continue
		}
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			r.Time = uint32(v)
		case 2:
			r.From = uint32(v)
		case 3:
			r.Value = v
		}
	}
	return nil
}

// reduceReply carries the completed global sum back.
type reduceReply struct {
	Value uint64
}

func (r *reduceReply) Marshal() []byte {
	if r.Value == 0 {
		return nil
	}
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	return protowire.AppendVarint(b, r.Value)
}

func (r *reduceReply) Unmarshal(data []byte) error {
	*r = reduceReply{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		if num == 1 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.Value = v
			data = data[n:]
			continue
		}
		skip := protowire.ConsumeFieldValue(num, typ, data)
		if skip < 0 {
			return protowire.ParseError(skip)
		}
		data = data[skip:]
	}
	return nil
}

// GRPCCommunicator carries the exchange over gRPC. Every rank runs a
// server; peers are dialed lazily on first send. Global sums are
// coordinated by rank 0.
type GRPCCommunicator struct {
	rank  uint32
	addrs []string

	server   *grpc.Server
	listener net.Listener
	inbox    chan *wire.SyncMessage
	red      *reducer

	mu    sync.Mutex
	conns map[uint32]*grpc.ClientConn
}

// NewGRPCCommunicator starts this rank's server on addrs[rank] and returns
// the communicator. addrs must be identical on every rank.
func NewGRPCCommunicator(rank uint32, addrs []string) (*GRPCCommunicator, error) {
	if int(rank) >= len(addrs) {
		return nil, fmt.Errorf("grpc: rank %d outside address table of size %d", rank, len(addrs))
	}
	lis, err := net.Listen("tcp", addrs[rank])
	if err != nil {
		return nil, fmt.Errorf("grpc: listen on %s: %w", addrs[rank], err)
	}
	c := &GRPCCommunicator{
		rank:     rank,
		addrs:    addrs,
		listener: lis,
		inbox:    make(chan *wire.SyncMessage, 1024),
		conns:    make(map[uint32]*grpc.ClientConn),
	}
	if rank == 0 {
		c.red = newReducer(len(addrs))
	}
	c.server = grpc.NewServer(grpc.ForceServerCodec(exchangeCodec{}))
	c.server.RegisterService(&exchangeServiceDesc, c)
	go c.server.Serve(lis)
	return c, nil
}

// Addr returns the bound listen address, useful when addrs used port 0.
func (c *GRPCCommunicator) Addr() string { return c.listener.Addr().String() }

func (c *GRPCCommunicator) Rank() uint32 { return c.rank }
func (c *GRPCCommunicator) Size() uint32 { return uint32(len(c.addrs)) }

func (c *GRPCCommunicator) conn(dest uint32) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[dest]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(c.addrs[dest],
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(exchangeCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc: dialing rank %d at %s: %w", dest, c.addrs[dest], err)
	}
	c.conns[dest] = conn
	return conn, nil
}

func (c *GRPCCommunicator) SendReceiveVehicles(out map[uint32]*wire.SyncMessage, expected map[uint32]bool, now uint32, onMsg func(*wire.SyncMessage)) error {
	for dest, msg := range out {
		conn, err := c.conn(dest)
		if err != nil {
			return err
		}
		if err := conn.Invoke(context.Background(), deliverMethod, msg, new(ack)); err != nil {
			return fmt.Errorf("grpc: delivering to rank %d: %w", dest, err)
		}
	}
	for len(expected) > 0 {
		msg := <-c.inbox
		if msg.Time == now {
			delete(expected, msg.FromProcess)
		}
		onMsg(msg)
	}
	for {
		select {
		case msg := <-c.inbox:
			if msg.Time == now {
				delete(expected, msg.FromProcess)
			}
			onMsg(msg)
		default:
			return nil
		}
	}
}

func (c *GRPCCommunicator) GlobalSum(now uint32, value uint64) (uint64, error) {
	if c.rank == 0 {
		return c.red.reduce(value), nil
	}
	conn, err := c.conn(0)
	if err != nil {
		return 0, err
	}
	req := &reduceRequest{Time: now, From: c.rank, Value: value}
	reply := new(reduceReply)
	if err := conn.Invoke(context.Background(), reduceMethod, req, reply); err != nil {
		return 0, fmt.Errorf("grpc: global sum at tick %d: %w", now, err)
	}
	return reply.Value, nil
}

// Close tears down the server and all peer connections.
func (c *GRPCCommunicator) Close() error {
	c.mu.Lock()
	for _, conn := range c.conns {
		conn.Close()
	}
	c.conns = make(map[uint32]*grpc.ClientConn)
	c.mu.Unlock()
	c.server.GracefulStop()
	return nil
}

const (
	deliverMethod = "/qsim.Exchange/Deliver"
	reduceMethod  = "/qsim.Exchange/Reduce"
)

func (c *GRPCCommunicator) deliver(msg *wire.SyncMessage) (*ack, error) {
	c.inbox <- msg
	return &ack{}, nil
}

func (c *GRPCCommunicator) reduce(req *reduceRequest) (*reduceReply, error) {
	if c.red == nil {
		return nil, fmt.Errorf("grpc: rank %d is not the reduce coordinator", c.rank)
	}
	return &reduceReply{Value: c.red.reduce(req.Value)}, nil
}

var exchangeServiceDesc = grpc.ServiceDesc{
	ServiceName: "qsim.Exchange",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deliver",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				msg := new(wire.SyncMessage)
				if err := dec(msg); err != nil {
					return nil, err
				}
				return srv.(*GRPCCommunicator).deliver(msg)
			},
		},
		{
			MethodName: "Reduce",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				req := new(reduceRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				return srv.(*GRPCCommunicator).reduce(req)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "qsim/exchange.proto",
}
