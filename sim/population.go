package sim

import (
	"fmt"
	"os"

	"github.com/parallel-qsim/qsim/sim/network"
	"github.com/parallel-qsim/qsim/sim/wire"
)

// Population is the set of agent plans simulated by one partition. Agents
// live where their trip starts: the partition owning the from-node of the
// first route link. The first link itself may well be owned downstream, in
// which case the vehicle crosses during its departure tick.
type Population struct {
	Agents []wire.AgentPlan
}

// HomeRank returns the partition an agent plan departs on.
func HomeRank(net *network.Network, plan *wire.AgentPlan) (uint32, error) {
	if len(plan.Route) == 0 {
		return 0, fmt.Errorf("agent %d has an empty route", plan.ID)
	}
	link := net.Link(plan.Route[0])
	if link == nil {
		return 0, fmt.Errorf("agent %d departs on unknown link %d", plan.ID, plan.Route[0])
	}
	return net.Node(link.From).Partition, nil
}

// PopulationFromWire filters the full plan set down to the agents homed on
// part.
func PopulationFromWire(plans *wire.Plans, net *network.Network, part uint32) (*Population, error) {
	pop := &Population{}
	for i := range plans.Agents {
		home, err := HomeRank(net, &plans.Agents[i])
		if err != nil {
			return nil, err
		}
		if home == part {
			pop.Agents = append(pop.Agents, plans.Agents[i])
		}
	}
	return pop, nil
}

// ReadPopulation loads the plan file and keeps the agents homed on part.
func ReadPopulation(path string, net *network.Network, part uint32) (*Population, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("population: read %s: %w", path, err)
	}
	var plans wire.Plans
	if err := plans.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("population: decode %s: %w", path, err)
	}
	return PopulationFromWire(&plans, net, part)
}
