package sim

import "math"

// flowCap is the per-link outflow accumulator. Each tick it replenishes by
// the link's per-second capacity, clamped so that at most one second worth
// of credit is banked. Consuming a vehicle subtracts its passenger-car
// equivalent, which may drive the balance negative; the deficit then has to
// be repaid before the next vehicle can leave. This is how links with a
// fractional per-tick capacity release a vehicle only every few ticks.
type flowCap struct {
	perTick     float64
	accumulated float64
	lastUpdate  uint32
}

// newFlowCap converts an hourly link capacity to a per-tick budget, scaling
// by permlanes and the population sample size.
func newFlowCap(capacityPerHour, permlanes, sampleSize float64) flowCap {
	perTick := capacityPerHour * permlanes * sampleSize / 3600.0
	return flowCap{perTick: perTick, accumulated: perTick}
}

func (f *flowCap) update(now uint32) {
	if f.lastUpdate >= now {
		return
	}
	elapsed := float64(now - f.lastUpdate)
	f.accumulated = math.Min(f.perTick, f.accumulated+elapsed*f.perTick)
	f.lastUpdate = now
}

func (f *flowCap) available() bool {
	return f.accumulated > 0
}

func (f *flowCap) consume(load float64) {
	f.accumulated -= load
}
