package staking

import (
	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/log"
)

type poolEntry struct {
	address common.Address
	power   float64
}

// SelectValidators draws up to count distinct active stakers, weighted by
// voting power, without replacement. Each draw is scaled by the power left
// in the pool and the winner leaves the pool, so the result always has
// min(count, active stakers) entries.
func (r *Registry) SelectValidators(count int) []common.Address {
	r.mu.RLock()
	pool := make([]poolEntry, 0, len(r.stakers))
	var total float64
	for _, s := range r.stakers {
		if !s.Active() {
			continue
		}
		pool = append(pool, poolEntry{address: s.Address, power: s.VotingPower})
		total += s.VotingPower
	}
	r.mu.RUnlock()

	if count <= 0 {
		return []common.Address{}
	}
	if count > len(pool) {
		count = len(pool)
	}

	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	selected := make([]common.Address, 0, count)
	for len(selected) < count {
		draw := r.rng.Float64() * total
		pick := len(pool) - 1
		for i, e := range pool {
			draw -= e.power
			if draw <= 0 {
				pick = i
				break
			}
		}
		selected = append(selected, pool[pick].address)
		total -= pool[pick].power
		if total < 0 {
			total = 0
		}
		pool = append(pool[:pick], pool[pick+1:]...)
	}
	log.Debug(log.StakeMonitoring, "validators selected", "count", len(selected))
	return selected
}
