package sim

import (
	"fmt"
	"sync"

	"github.com/parallel-qsim/qsim/sim/exchange"
	"github.com/parallel-qsim/qsim/sim/network"
	"github.com/parallel-qsim/qsim/sim/wire"
)

// BuildRank assembles one partition's engine on top of an existing
// communicator: the local network view, the broker wired to its neighbors,
// the rank-derived RNG and the rank's share of the population.
func BuildRank(cfg *Config, global *network.Network, garage *Garage, plans *wire.Plans, comm exchange.Communicator, metrics *Metrics, subs ...EventsSubscriber) (*Simulation, error) {
	part := comm.Rank()
	rng := NewRankRNG(cfg.Seed, part)
	net := NewSimNetwork(global, part, cfg.SampleSize, rng)
	net.SetStrict(cfg.StrictChecks)

	linkOwner := make(map[uint64]uint32, len(global.Links))
	for _, l := range global.Links {
		linkOwner[l.ID] = l.Partition
	}
	broker := exchange.NewBroker(comm, net.Neighbors(), linkOwner)

	events := NewEventsPublisher(subs...)
	if metrics != nil {
		events.Subscribe(metrics)
	}

	pop, err := PopulationFromWire(plans, global, part)
	if err != nil {
		return nil, err
	}
	s := NewSimulation(cfg, net, garage, broker, events, metrics)
	s.SchedulePopulation(pop)
	return s, nil
}

// RunChannelRanks runs every partition of the scenario as a goroutine on a
// shared channel fabric. subsFor, if non-nil, supplies per-rank event
// subscribers. The first rank error is returned.
func RunChannelRanks(cfg *Config, global *network.Network, garage *Garage, plans *wire.Plans, subsFor func(rank uint32) []EventsSubscriber) error {
	size := uint32(cfg.Partitions)
	fabric := exchange.NewChannelFabric(size)

	var wg sync.WaitGroup
	errs := make([]error, size)
	for rank := uint32(0); rank < size; rank++ {
		var subs []EventsSubscriber
		if subsFor != nil {
			subs = subsFor(rank)
		}
		s, err := BuildRank(cfg, global, garage, plans, fabric.Communicator(rank), nil, subs...)
		if err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}
		wg.Add(1)
		go func(rank uint32, s *Simulation) {
			defer wg.Done()
			errs[rank] = s.Run()
		}(rank, s)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}
	}
	return nil
}
