package node

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/log"
	"github.com/colorfulnotion/zytherion/telemetry"
	"github.com/colorfulnotion/zytherion/types"
	"github.com/colorfulnotion/zytherion/zytherrors"
	"go.opentelemetry.io/otel/attribute"
)

// ProduceBlock assembles txs on top of the head, carrying the votes that
// finalized the head, and mines it at the current difficulty. found is false
// when the nonce space is exhausted. The mined block becomes a candidate
// awaiting votes.
func (n *Node) ProduceBlock(ctx context.Context, txs []types.Transaction) (block *types.Block, found bool, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanAuthoring, attribute.Int(telemetry.AttrTxCount, len(txs)))
	defer func() { telemetry.EndSpan(span, err) }()

	if len(txs) > n.params.MaxBlockTransactions {
		return nil, false, fmt.Errorf("%w: %w: %d > %d", zytherrors.ErrBlockValidationFailed, zytherrors.ErrTooManyTransactions, len(txs), n.params.MaxBlockTransactions)
	}

	n.mu.Lock()
	if n.job != nil {
		n.mu.Unlock()
		return nil, false, ErrMiningInProcess
	}
	difficulty := n.difficulty
	unmined := types.NewBlockFromParams(types.BlockParams{
		PreviousHash: n.head.Hash,
		Transactions: txs,
		Difficulty:   difficulty,
		Height:       n.head.Header.Height + 1,
		Timestamp:    n.now(),
		Votes:        n.parentVotes,
	})
	job := n.miner.Start(ctx, unmined, difficulty)
	n.job = job
	n.mu.Unlock()

	block, found, err = job.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.job == job {
		n.job = nil
	}
	if err != nil || !found {
		return nil, found, err
	}
	span.SetAttributes(attribute.String(telemetry.AttrBlockHash, block.Hash.Hex()),
		attribute.Int64(telemetry.AttrBlockHeight, int64(block.Header.Height)))
	n.addCandidate(block)
	n.publish(SubBestBlock, block, len(block.Header.ValidatorVotes), 0)
	log.Info(log.BlockMonitoring, "block produced", "height", block.Header.Height, "hash", block.Hash.Short(),
		"txs", len(block.Transactions), "difficulty", difficulty, "nonce", block.Header.Nonce)
	return block.Copy(), true, nil
}

// AbortMining cancels the running mining job, if any. ProduceBlock then
// returns the context error.
func (n *Node) AbortMining() bool {
	n.mu.Lock()
	job := n.job
	n.mu.Unlock()
	if job == nil {
		return false
	}
	job.Cancel()
	log.Debug(log.BlockMonitoring, "mining aborted")
	return true
}

// SubmitBlock accepts a block mined elsewhere as a candidate. A valid block
// extending the head aborts local mining.
func (n *Node) SubmitBlock(ctx context.Context, block *types.Block) error {
	if err := block.ValidateWithLimit(n.params.MaxBlockTransactions); err != nil {
		return err
	}
	if err := n.miner.VerifyWork(block); err != nil {
		return err
	}
	n.mu.Lock()
	if err := n.checkAgainstHead(block); err != nil {
		n.mu.Unlock()
		return err
	}
	if err := n.checkParentVotes(block); err != nil {
		n.mu.Unlock()
		return err
	}
	n.addCandidate(block.Copy())
	n.mu.Unlock()
	log.Info(log.BlockMonitoring, "block received", "height", block.Header.Height, "hash", block.Hash.Short())
	n.AbortMining()
	return nil
}

func (n *Node) addCandidate(block *types.Block) {
	if _, ok := n.pending[block.Hash]; ok {
		return
	}
	n.pending[block.Hash] = &candidate{block: block, voted: make(map[common.Address]bool)}
}

// Candidate returns a copy of a pending block.
func (n *Node) Candidate(hash common.Hash) (*types.Block, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.pending[hash]
	if !ok {
		return nil, false
	}
	return c.block.Copy(), true
}

// checkParentVotes requires n.mu. Header votes are on the parent and must
// come from registered stakers. Signatures are checked for the validators
// this node holds keys for.
func (n *Node) checkParentVotes(block *types.Block) error {
	parent := block.Header.PreviousHash
	for i := range block.Header.ValidatorVotes {
		vote := &block.Header.ValidatorVotes[i]
		if _, ok := n.registry.Staker(vote.Validator); !ok {
			return fmt.Errorf("%w: %w: %s", zytherrors.ErrBlockValidationFailed, zytherrors.ErrStakerNotFound, vote.Validator)
		}
		kp, ok := n.keys[vote.Validator]
		if !ok {
			continue
		}
		if !vote.Verify(parent, kp.PublicKey()) {
			return fmt.Errorf("%w: %w: %s", zytherrors.ErrBlockValidationFailed, zytherrors.ErrInvalidVoteSignature, vote.Validator)
		}
	}
	return nil
}

// checkAgainstHead requires n.mu. The block must extend the head and carry
// at least the current difficulty.
func (n *Node) checkAgainstHead(block *types.Block) error {
	if block.Header.PreviousHash != n.head.Hash {
		return fmt.Errorf("%w: %w: previous %s, head %s", zytherrors.ErrBlockValidationFailed, zytherrors.ErrParentMismatch,
			block.Header.PreviousHash.Short(), n.head.Hash.Short())
	}
	if block.Header.Height != n.head.Header.Height+1 {
		return fmt.Errorf("%w: %w: height %d, head %d", zytherrors.ErrBlockValidationFailed, zytherrors.ErrHeightMismatch,
			block.Header.Height, n.head.Header.Height)
	}
	if block.Header.Difficulty < n.difficulty {
		return fmt.Errorf("%w: %w: difficulty %d below %d", zytherrors.ErrBlockValidationFailed, zytherrors.ErrInsufficientWork,
			block.Header.Difficulty, n.difficulty)
	}
	return nil
}

// FinalizeBlock scores the votes collected on a candidate and, when the score
// reaches the finality threshold, applies its transactions, stores it and
// makes it the head. A failed application or store write leaves the ledger
// unchanged.
func (n *Node) FinalizeBlock(ctx context.Context, hash common.Hash) (block *types.Block, score float64, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	c, ok := n.pending[hash]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownBlock, hash.Short())
	}
	block = c.block
	if err := block.ValidateWithLimit(n.params.MaxBlockTransactions); err != nil {
		return nil, 0, err
	}
	if err := n.checkAgainstHead(block); err != nil {
		return nil, 0, err
	}

	score = n.scoreCandidate(ctx, c)
	if score < n.params.FinalityThreshold {
		return nil, score, fmt.Errorf("%w: %.4f < %.4f", zytherrors.ErrNotFinal, score, n.params.FinalityThreshold)
	}

	snap := n.state.Snapshot()
	if err := n.state.ApplyBlock(ctx, block); err != nil {
		log.Warn(log.BlockMonitoring, "block rejected", "hash", block.Hash.Short(), "err", err)
		delete(n.pending, hash)
		return nil, score, err
	}
	if err := n.storeBlock(ctx, block); err != nil {
		n.state.Restore(snap)
		log.Error(log.BlockMonitoring, "block not stored, ledger rolled back", "hash", block.Hash.Short(), "err", err)
		return nil, score, err
	}

	parent := n.head
	n.head = block
	n.parentVotes = append([]types.ValidatorVote(nil), c.votes...)
	elapsed := uint64(0)
	if block.Header.Timestamp > parent.Header.Timestamp {
		elapsed = block.Header.Timestamp - parent.Header.Timestamp
	}
	n.difficulty = n.retarget.CalculateDifficulty(block.Header.Height, elapsed, n.difficulty)
	for h, other := range n.pending {
		if other.block.Header.Height <= block.Header.Height {
			delete(n.pending, h)
		}
	}
	if n.job != nil {
		n.job.Cancel()
	}
	n.history = append(n.history, FinalityRecord{
		Height:     block.Header.Height,
		Hash:       block.Hash,
		Parent:     parent.Hash,
		Score:      score,
		Votes:      len(c.votes),
		Difficulty: block.Header.Difficulty,
		TxCount:    len(block.Transactions),
	})
	n.publish(SubFinalizedBlock, block, len(c.votes), score)
	log.Info(log.BlockMonitoring, "block finalized", "height", block.Header.Height, "hash", block.Hash.Short(),
		"score", score, "votes", len(c.votes), "supply", n.state.GetTotalSupply(), "nextDifficulty", n.difficulty)
	return block.Copy(), score, nil
}

func (n *Node) storeBlock(ctx context.Context, block *types.Block) (err error) {
	_, span := telemetry.StartSpan(ctx, telemetry.SpanBlockStored,
		attribute.String(telemetry.AttrBlockHash, block.Hash.Hex()),
		attribute.Int64(telemetry.AttrBlockHeight, int64(block.Header.Height)))
	defer func() { telemetry.EndSpan(span, err) }()
	return n.blocks.PutBlock(block)
}
