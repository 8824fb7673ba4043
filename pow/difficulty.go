package pow

import (
	"math"

	"github.com/colorfulnotion/zytherion/log"
)

const (
	DefaultRetargetInterval = 2016
	DefaultTargetBlockTime  = 600
)

// Retarget adjusts difficulty once per epoch of Interval blocks.
type Retarget struct {
	Interval        uint64
	TargetBlockTime uint64
	MinDifficulty   uint64
}

func DefaultRetarget() Retarget {
	return Retarget{Interval: DefaultRetargetInterval, TargetBlockTime: DefaultTargetBlockTime}
}

// CalculateDifficulty returns the difficulty for height given how long the
// last block took. Only positive multiples of Interval retarget: a deviation
// above twice the target lowers difficulty by one, below half raises it by one.
func (r Retarget) CalculateDifficulty(height, actualBlockTime, current uint64) uint64 {
	if r.Interval == 0 || height == 0 || height%r.Interval != 0 {
		return current
	}
	var deviation uint64
	if actualBlockTime > r.TargetBlockTime {
		deviation = actualBlockTime - r.TargetBlockTime
	} else {
		deviation = r.TargetBlockTime - actualBlockTime
	}

	next := current
	switch {
	case deviation > r.TargetBlockTime*2:
		if current > r.MinDifficulty {
			next = current - 1
		}
	case deviation < r.TargetBlockTime/2:
		if current < math.MaxUint64 {
			next = current + 1
		}
	}
	if next < r.MinDifficulty {
		next = r.MinDifficulty
	}
	if next != current {
		log.Info(log.PowMonitoring, "difficulty retarget", "height", height, "blockTime", actualBlockTime, "from", current, "to", next)
	}
	return next
}

// CalculateDifficulty applies the default retarget parameters.
func CalculateDifficulty(height, actualBlockTime, targetBlockTime, current uint64) uint64 {
	r := DefaultRetarget()
	r.TargetBlockTime = targetBlockTime
	return r.CalculateDifficulty(height, actualBlockTime, current)
}
