package telemetry

// Span names for the block pipeline. Each stage opens one span.
const (
	SpanAuthoring         = "block.authoring"
	SpanMining            = "pow.mine"
	SpanWorkVerification  = "pow.verify_work"
	SpanCommitteeSelected = "stake.select_validators"
	SpanVoting            = "stake.vote"
	SpanFinality          = "stake.finality"
	SpanApplyBlock        = "state.apply_block"
	SpanApplyTransaction  = "state.apply_transaction"
	SpanBlockStored       = "store.put_block"
)

// Attribute keys shared by the spans above.
const (
	AttrBlockHash     = "block.hash"
	AttrBlockHeight   = "block.height"
	AttrDifficulty    = "pow.difficulty"
	AttrNonce         = "pow.nonce"
	AttrFound         = "pow.found"
	AttrTxCount       = "block.tx_count"
	AttrValidator     = "stake.validator"
	AttrCommitteeSize = "stake.committee_size"
	AttrFinalityScore = "stake.finality_score"
	AttrErrorName     = "error.name"
)
