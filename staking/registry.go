package staking

import (
	"fmt"
	"sync"
	"time"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/log"
	"github.com/colorfulnotion/zytherion/types"
	"github.com/colorfulnotion/zytherion/zytherrors"
	"golang.org/x/exp/rand"
)

const (
	DefaultMinimumStake    = 1000
	DefaultUnbondingPeriod = 259200 // 3 days in seconds
)

// Registry owns the staker set. Stakers keep insertion order, which is the
// walk order of weighted selection.
type Registry struct {
	mu              sync.RWMutex
	stakers         []*types.Staker
	totalStake      uint64
	minimumStake    uint64
	unbondingPeriod uint64
	weights         FinalityWeights

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Registry)

// WithRandSource fixes the randomness used by SelectValidators.
func WithRandSource(src rand.Source) Option {
	return func(r *Registry) { r.rng = rand.New(src) }
}

// WithSeed is WithRandSource over a PCG source seeded with seed.
func WithSeed(seed uint64) Option {
	return WithRandSource(rand.NewSource(seed))
}

func WithFinalityWeights(w FinalityWeights) Option {
	return func(r *Registry) { r.weights = w }
}

func NewRegistry(minimumStake, unbondingPeriod uint64, opts ...Option) *Registry {
	r := &Registry{
		minimumStake:    minimumStake,
		unbondingPeriod: unbondingPeriod,
		weights:         DefaultFinalityWeights(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	}
	return r
}

func (r *Registry) MinimumStake() uint64 {
	return r.minimumStake
}

func (r *Registry) UnbondingPeriod() uint64 {
	return r.unbondingPeriod
}

func (r *Registry) find(addr common.Address) int {
	for i, s := range r.stakers {
		if s.Address == addr {
			return i
		}
	}
	return -1
}

// updateVotingPowers recomputes every staker's power. Caller holds mu.
func (r *Registry) updateVotingPowers() {
	for _, s := range r.stakers {
		s.VotingPower = types.VotingPower(s.StakeAmount)
	}
}

// AddStaker bonds amount for addr at timestamp. Nothing changes on error.
func (r *Registry) AddStaker(addr common.Address, amount, timestamp uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if amount < r.minimumStake {
		return fmt.Errorf("%w: %d < %d", zytherrors.ErrStakeBelowMinimum, amount, r.minimumStake)
	}
	if r.find(addr) >= 0 {
		return fmt.Errorf("%w: %s", zytherrors.ErrDuplicateStaker, addr)
	}
	if r.totalStake+amount < r.totalStake {
		return zytherrors.ErrBalanceOverflow
	}
	r.stakers = append(r.stakers, &types.Staker{
		Address:     addr,
		StakeAmount: amount,
		BondedSince: timestamp,
		VotingPower: types.VotingPower(amount),
	})
	r.totalStake += amount
	r.updateVotingPowers()
	log.Debug(log.StakeMonitoring, "staker added", "address", addr, "stake", amount, "total", r.totalStake)
	return nil
}

// RemoveStaker unbonds addr once the unbonding period has elapsed since
// bonding, and returns the removed entry.
func (r *Registry) RemoveStaker(addr common.Address, now uint64) (*types.Staker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.find(addr)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", zytherrors.ErrStakerNotFound, addr)
	}
	s := r.stakers[i]
	if now < s.BondedSince || now-s.BondedSince < r.unbondingPeriod {
		return nil, fmt.Errorf("%w: bonded at %d, now %d, period %d", zytherrors.ErrUnbondingNotElapsed, s.BondedSince, now, r.unbondingPeriod)
	}
	r.totalStake -= s.StakeAmount
	r.stakers = append(r.stakers[:i], r.stakers[i+1:]...)
	r.updateVotingPowers()
	log.Debug(log.StakeMonitoring, "staker removed", "address", addr, "stake", s.StakeAmount, "total", r.totalStake)
	removed := *s
	return &removed, nil
}

// RestoreStaker puts back an entry returned by RemoveStaker, jail state
// included.
func (r *Registry) RestoreStaker(s types.Staker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.find(s.Address) >= 0 {
		return fmt.Errorf("%w: %s", zytherrors.ErrDuplicateStaker, s.Address)
	}
	if r.totalStake+s.StakeAmount < r.totalStake {
		return zytherrors.ErrBalanceOverflow
	}
	r.stakers = append(r.stakers, &s)
	r.totalStake += s.StakeAmount
	r.updateVotingPowers()
	log.Debug(log.StakeMonitoring, "staker restored", "address", s.Address, "stake", s.StakeAmount, "jailed", s.Jailed)
	return nil
}

// Jail excludes addr from selection, voting and finality until Unjail.
// The stake stays bonded.
func (r *Registry) Jail(addr common.Address, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.find(addr)
	if i < 0 {
		return fmt.Errorf("%w: %s", zytherrors.ErrStakerNotFound, addr)
	}
	r.stakers[i].Jailed = true
	r.stakers[i].JailReason = reason
	log.Warn(log.StakeMonitoring, "validator jailed", "address", addr, "reason", reason)
	return nil
}

func (r *Registry) Unjail(addr common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.find(addr)
	if i < 0 {
		return fmt.Errorf("%w: %s", zytherrors.ErrStakerNotFound, addr)
	}
	r.stakers[i].Jailed = false
	r.stakers[i].JailReason = ""
	log.Info(log.StakeMonitoring, "validator unjailed", "address", addr)
	return nil
}

// Staker returns a copy of the entry for addr.
func (r *Registry) Staker(addr common.Address) (types.Staker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.find(addr)
	if i < 0 {
		return types.Staker{}, false
	}
	return *r.stakers[i], true
}

// IsActive reports whether addr is staked and not jailed.
func (r *Registry) IsActive(addr common.Address) bool {
	s, ok := r.Staker(addr)
	return ok && s.Active()
}

// Stakers returns copies in registry order.
func (r *Registry) Stakers() []types.Staker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Staker, len(r.stakers))
	for i, s := range r.stakers {
		out[i] = *s
	}
	return out
}

func (r *Registry) ActiveValidators() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, 0, len(r.stakers))
	for _, s := range r.stakers {
		if s.Active() {
			out = append(out, s.Address)
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stakers)
}

// TotalStake includes jailed stakers.
func (r *Registry) TotalStake() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalStake
}

// TotalVotingPower sums the power of active stakers.
func (r *Registry) TotalVotingPower() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total float64
	for _, s := range r.stakers {
		if s.Active() {
			total += s.VotingPower
		}
	}
	return total
}
