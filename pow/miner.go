package pow

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/colorfulnotion/zytherion/log"
	"github.com/colorfulnotion/zytherion/telemetry"
	"github.com/colorfulnotion/zytherion/types"
	"github.com/colorfulnotion/zytherion/zytherrors"
	"go.opentelemetry.io/otel/attribute"
)

// cancelCheckInterval is how many nonces are tried between cancellation checks.
const cancelCheckInterval = 1024

// Miner searches nonces for a block hash that meets a difficulty.
type Miner struct {
	policy   TargetPolicy
	maxNonce uint64
}

type Option func(*Miner)

// WithPolicy selects the target predicate.
func WithPolicy(p TargetPolicy) Option {
	return func(m *Miner) { m.policy = p }
}

// WithMaxNonce bounds the search to nonces below max. Zero means the whole
// u64 range.
func WithMaxNonce(max uint64) Option {
	return func(m *Miner) { m.maxNonce = max }
}

func NewMiner(opts ...Option) *Miner {
	m := &Miner{policy: HexPrefix{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Miner) Policy() TargetPolicy {
	return m.policy
}

// Mine works on a copy of block with its difficulty set, trying nonces from
// 0 upward. found is false when the nonce space is exhausted. err is only
// set when ctx ends first. The input block is never modified.
func (m *Miner) Mine(ctx context.Context, block *types.Block, difficulty uint64) (mined *types.Block, found bool, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanMining,
		attribute.Int64(telemetry.AttrBlockHeight, int64(block.Header.Height)),
		attribute.Int64(telemetry.AttrDifficulty, int64(difficulty)),
		attribute.String(telemetry.AttrBlockHash, block.Hash.Hex()),
	)
	defer func() {
		span.SetAttributes(attribute.Bool(telemetry.AttrFound, found))
		if found {
			span.SetAttributes(attribute.Int64(telemetry.AttrNonce, int64(mined.Header.Nonce)))
		}
		telemetry.EndSpan(span, err)
	}()

	work := block.Copy()
	work.Header.Difficulty = difficulty

	limit := m.maxNonce
	unbounded := limit == 0
	log.Debug(log.PowMonitoring, "mining", "height", work.Header.Height, "difficulty", difficulty, "policy", m.policy.Name(), "maxNonce", limit)

	for nonce := uint64(0); unbounded || nonce < limit; nonce++ {
		if nonce%cancelCheckInterval == 0 {
			if cerr := ctx.Err(); cerr != nil {
				log.Debug(log.PowMonitoring, "mining cancelled", "height", work.Header.Height, "nonce", nonce)
				return nil, false, cerr
			}
		}
		work.Header.Nonce = nonce
		hash := work.CalculateHash()
		if m.policy.Met(hash, difficulty) {
			work.Hash = hash
			log.Info(log.PowMonitoring, "block mined", "height", work.Header.Height, "nonce", nonce, "hash", hash.Short())
			return work, true, nil
		}
		if nonce == math.MaxUint64 {
			break
		}
	}
	log.Warn(log.PowMonitoring, "nonce space exhausted", "height", work.Header.Height, "difficulty", difficulty)
	return nil, false, nil
}

// VerifyWork checks the block's integrity and that its hash meets the
// difficulty recorded in its header.
func (m *Miner) VerifyWork(block *types.Block) error {
	_, span := telemetry.StartSpan(context.Background(), telemetry.SpanWorkVerification,
		attribute.String(telemetry.AttrBlockHash, block.Hash.Hex()))
	err := m.verifyWork(block)
	telemetry.EndSpan(span, err)
	return err
}

func (m *Miner) verifyWork(block *types.Block) error {
	if got := block.CalculateHash(); got != block.Hash {
		return fmt.Errorf("%w: %w", zytherrors.ErrBlockValidationFailed, zytherrors.ErrBlockHashMismatch)
	}
	if !m.policy.Met(block.Hash, block.Header.Difficulty) {
		return fmt.Errorf("%w: %w: %s at difficulty %d", zytherrors.ErrBlockValidationFailed, zytherrors.ErrInsufficientWork, block.Hash.Short(), block.Header.Difficulty)
	}
	return nil
}

// Job is a mining run on a worker goroutine.
type Job struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	block *types.Block
	found bool
	err   error
}

// Start mines in the background. Cancel stops the search promptly.
func (m *Miner) Start(ctx context.Context, block *types.Block, difficulty uint64) *Job {
	ctx, cancel := context.WithCancel(ctx)
	job := &Job{cancel: cancel, done: make(chan struct{})}
	work := block.Copy()
	go func() {
		defer close(job.done)
		defer cancel()
		mined, found, err := m.Mine(ctx, work, difficulty)
		job.mu.Lock()
		job.block, job.found, job.err = mined, found, err
		job.mu.Unlock()
	}()
	return job
}

func (j *Job) Cancel() {
	j.cancel()
}

func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job ends and returns its result.
func (j *Job) Wait() (*types.Block, bool, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.block, j.found, j.err
}
