package node

import (
	"errors"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/log"
	"github.com/colorfulnotion/zytherion/types"
)

// Stake bonds amount of the key owner's balance and registers the owner as a
// validator this node can vote for. Nothing changes on failure.
func (n *Node) Stake(kp *common.KeyPair, amount uint64) error {
	addr := kp.Address()
	if err := n.state.BondStake(addr, amount); err != nil {
		return err
	}
	if err := n.registry.AddStaker(addr, amount, n.now()); err != nil {
		if rerr := n.state.ReleaseStake(addr, amount); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	n.mu.Lock()
	n.keys[addr] = kp
	n.mu.Unlock()
	log.Info(log.StakeMonitoring, "staked", "validator", addr, "amount", amount, "totalStake", n.registry.TotalStake())
	return nil
}

// Unstake removes addr from the registry once its unbonding period has
// elapsed and returns the stake to its balance. Nothing changes on failure.
func (n *Node) Unstake(addr common.Address) (*types.Staker, error) {
	staker, err := n.registry.RemoveStaker(addr, n.now())
	if err != nil {
		return nil, err
	}
	if err := n.state.ReleaseStake(addr, staker.StakeAmount); err != nil {
		if rerr := n.registry.RestoreStaker(*staker); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}
	n.mu.Lock()
	delete(n.keys, addr)
	n.mu.Unlock()
	log.Info(log.StakeMonitoring, "unstaked", "validator", addr, "amount", staker.StakeAmount, "totalStake", n.registry.TotalStake())
	return staker, nil
}

// Jail suspends a validator from committees and finality until Unjail.
func (n *Node) Jail(addr common.Address, reason string) error {
	return n.registry.Jail(addr, reason)
}

func (n *Node) Unjail(addr common.Address) error {
	return n.registry.Unjail(addr)
}
