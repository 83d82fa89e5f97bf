package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parallel-qsim/qsim/sim/exchange"
	"github.com/parallel-qsim/qsim/sim/wire"
)

// Simulation drives one partition through the time-stepped loop. Every
// tick runs the same four phases in the same order on every partition:
// wake up departing agents, terminate due teleports, move vehicles across
// nodes, then move links and run the exchange. The exchange doubles as the
// barrier, so no partition can run ahead of its neighbors.
type Simulation struct {
	cfg     *Config
	net     *SimNetwork
	garage  *Garage
	broker  *exchange.Broker
	events  *EventsPublisher
	metrics *Metrics

	activityQ *TimeQueue[*wire.AgentPlan]
	teleportQ *TimeQueue[*Vehicle]
	// vehicles that departed but found their first link full
	waitQ *TimeQueue[*Vehicle]

	log *logrus.Entry
}

// NewSimulation assembles one partition's engine. metrics may be nil.
func NewSimulation(cfg *Config, net *SimNetwork, garage *Garage, broker *exchange.Broker, events *EventsPublisher, metrics *Metrics) *Simulation {
	return &Simulation{
		cfg:       cfg,
		net:       net,
		garage:    garage,
		broker:    broker,
		events:    events,
		metrics:   metrics,
		activityQ: NewTimeQueue[*wire.AgentPlan](),
		teleportQ: NewTimeQueue[*Vehicle](),
		waitQ:     NewTimeQueue[*Vehicle](),
		log:       logrus.WithField("rank", net.Part()),
	}
}

// Schedule queues one agent plan for departure.
func (s *Simulation) Schedule(plan *wire.AgentPlan) {
	s.activityQ.Add(plan.Departure, plan)
}

// SchedulePopulation queues every agent of the partition's population.
func (s *Simulation) SchedulePopulation(pop *Population) {
	for i := range pop.Agents {
		s.Schedule(&pop.Agents[i])
	}
}

// Run executes ticks from StartTime until either every partition agrees
// that no work is left or EndTime is reached.
func (s *Simulation) Run() error {
	s.log.WithFields(logrus.Fields{
		"startTime": s.cfg.StartTime,
		"endTime":   s.cfg.EndTime,
		"agents":    s.activityQ.Len(),
	}).Info("starting simulation")

	for now := s.cfg.StartTime; now <= s.cfg.EndTime; now++ {
		tickStart := time.Now()
		if err := s.tick(now); err != nil {
			return fmt.Errorf("tick %d: %w", now, err)
		}
		if s.metrics != nil {
			s.metrics.TickSeconds.Observe(time.Since(tickStart).Seconds())
			s.metrics.OnNetwork.Set(float64(s.net.VehicleCount()))
			s.metrics.ActiveLocal.Set(float64(s.localPending()))
		}
		// vehicles handed to the transport this tick are pending at no
		// rank yet, so the sender charges them to the global count
		remaining, err := s.broker.GlobalSum(now, uint64(s.localPending())+s.broker.InFlightVehicles())
		if err != nil {
			return fmt.Errorf("tick %d: global termination check: %w", now, err)
		}
		if remaining == 0 {
			s.log.WithField("time", now).Info("simulation drained")
			break
		}
	}
	if pending := s.localPending(); pending > 0 {
		s.log.WithField("pending", pending).Warn("simulation ended with unfinished agents")
	}
	return s.events.Finish()
}

func (s *Simulation) tick(now uint32) error {
	if err := s.wakeup(now); err != nil {
		return err
	}
	s.terminateTeleports(now)

	for _, veh := range s.net.MoveNodes(s.events, now) {
		link, _ := veh.CurrLinkID()
		s.events.Publish(now, wire.EventArrival, veh.ID, link)
	}

	out, reports := s.net.MoveLinks(now)
	for _, veh := range out {
		link, _ := veh.CurrLinkID()
		s.events.Publish(now, wire.EventPassedAlong, veh.ID, link)
		if err := s.broker.AddVehicle(veh.Record(), now); err != nil {
			return err
		}
	}
	for _, r := range reports {
		s.broker.AddStorageCap(r.FromPart, wire.StorageCap{LinkID: r.LinkID, Value: float32(r.Used)}, now)
	}

	msgs, err := s.broker.SendReceive(now)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := s.processMessage(msg, now); err != nil {
			return err
		}
	}
	return nil
}

// wakeup activates every agent due to depart at now. Vehicles whose first
// link is full wait at their origin and retry each tick; agents that have
// been waiting get their slot before fresh departures.
func (s *Simulation) wakeup(now uint32) error {
	for _, veh := range s.waitQ.PopDue(now) {
		if err := s.enterNetwork(veh, now); err != nil {
			return err
		}
	}
	for _, plan := range s.activityQ.PopDue(now) {
		t, err := s.garage.TypeOf(plan.VehicleID)
		if err != nil {
			return fmt.Errorf("agent %d: %w", plan.ID, err)
		}
		veh := NewVehicle(&wire.Vehicle{
			ID:            plan.VehicleID,
			VehicleTypeID: t.ID,
			Route:         plan.Route,
			Mode:          t.NetMode,
		}, t)
		s.events.Publish(now, wire.EventDeparture, veh.ID, plan.Route[0])
		if t.LevelOfDetail == wire.LodTeleported {
			s.departTeleported(veh, plan, now)
			continue
		}
		if err := s.enterNetwork(veh, now); err != nil {
			return err
		}
	}
	return nil
}

// enterNetwork puts a departing vehicle onto its first link, or parks it
// until the link has room.
func (s *Simulation) enterNetwork(veh *Vehicle, now uint32) error {
	linkID, ok := veh.CurrLinkID()
	if !ok {
		return fmt.Errorf("vehicle %d departs with an exhausted route", veh.ID)
	}
	link := s.net.Link(linkID)
	if link == nil {
		return fmt.Errorf("vehicle %d departs on link %d unknown to partition %d", veh.ID, linkID, s.net.Part())
	}
	if !link.HasSpaceFor(veh.occupancy(s.net.EffectiveCellSize())) {
		s.waitQ.Add(now+1, veh)
		return nil
	}
	s.events.Publish(now, wire.EventLinkEnter, veh.ID, linkID)
	return s.net.PushEnRoute(veh, now)
}

// departTeleported moves a trip outside the queue physics: the arrival
// tick is fixed now from the route distance, and only the end partition
// ever sees the vehicle again.
func (s *Simulation) departTeleported(veh *Vehicle, plan *wire.AgentPlan, now uint32) {
	exit := now + teleportTravelTime(plan.Distance, veh.Type.MaxV)
	endLink := plan.Route[len(plan.Route)-1]
	veh.CurrRouteElem = uint32(len(plan.Route) - 1)
	veh.ExitTime = exit
	dest := s.net.OwnerOf(endLink)
	if dest == s.net.Part() {
		s.teleportQ.Add(exit, veh)
		return
	}
	s.events.Publish(now, wire.EventPassedAlong, veh.ID, endLink)
	s.broker.AddTeleported(veh.Record(), dest, now)
}

func teleportTravelTime(distance, maxV float64) uint32 {
	if maxV <= 0 {
		maxV = 1
	}
	return uint32(math.Ceil(distance / maxV))
}

// terminateTeleports completes every teleported trip due at now.
func (s *Simulation) terminateTeleports(now uint32) {
	for _, veh := range s.teleportQ.PopDue(now) {
		link, _ := veh.CurrLinkID()
		s.events.Publish(now, wire.EventTravelled, veh.ID, link)
		s.events.Publish(now, wire.EventArrival, veh.ID, link)
	}
}

// processMessage integrates one neighbor's sync message: storage mirrors
// first, then the handed-over vehicles.
func (s *Simulation) processMessage(msg *wire.SyncMessage, now uint32) error {
	s.net.ApplyStorageCaps(msg.StorageCaps)
	for i := range msg.Vehicles {
		rec := &msg.Vehicles[i]
		t, err := s.garage.Type(rec.VehicleTypeID)
		if err != nil {
			return fmt.Errorf("received vehicle %d: %w", rec.ID, err)
		}
		veh := NewVehicle(rec, t)
		if t.LevelOfDetail == wire.LodTeleported {
			at := veh.ExitTime
			if at <= now {
				at = now + 1
				s.log.WithFields(logrus.Fields{
					"vehicle":  veh.ID,
					"exitTime": veh.ExitTime,
					"time":     now,
				}).Debug("teleport delivered past its exit time, arrival shifted")
			}
			s.teleportQ.Add(at, veh)
			continue
		}
		if err := s.net.PushEnRoute(veh, now); err != nil {
			return err
		}
	}
	return nil
}

// localPending counts the work still owned by this partition: agents not
// yet departed, teleports under way and vehicles on local links or in
// outbound buffers.
func (s *Simulation) localPending() int {
	return s.activityQ.Len() + s.waitQ.Len() + s.teleportQ.Len() + s.net.VehicleCount()
}
