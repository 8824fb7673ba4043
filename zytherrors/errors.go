package zytherrors

import (
	"errors"
	"strings"
)

// State transition (S) Errors
var (
	ErrAccountNotFound     = errors.New("S1|AccountNotFound: Sender account does not exist.")
	ErrInvalidNonce        = errors.New("S2|InvalidNonce: Transaction nonce does not equal the sender's current nonce.")
	ErrInsufficientBalance = errors.New("S3|InsufficientBalance: Sender balance is below amount plus fee.")
	ErrBalanceOverflow     = errors.New("S4|BalanceOverflow: Balance arithmetic exceeds 64 bits.")
)

// Proof-of-stake (P) Errors
var (
	ErrStakeBelowMinimum    = errors.New("P1|StakeBelowMinimum: Stake amount is below the configured minimum.")
	ErrUnbondingNotElapsed  = errors.New("P2|UnbondingNotElapsed: Unbonding period has not elapsed since bonding.")
	ErrStakerNotFound       = errors.New("P3|StakerNotFound: Address is not in the stake registry.")
	ErrDuplicateStaker      = errors.New("P4|DuplicateStaker: Address is already staked.")
	ErrNotActiveValidator   = errors.New("P5|NotActiveValidator: Address is not an active staker.")
	ErrInvalidVoteSignature = errors.New("P6|InvalidVoteSignature: Vote signature does not verify.")
	ErrValidatorKeyMismatch = errors.New("P7|ValidatorKeyMismatch: Public key does not derive the validator address.")
)

// Block (B) Errors
var (
	ErrBlockValidationFailed = errors.New("B1|BlockValidationFailed: Block failed validation.")
	ErrBlockHashMismatch     = errors.New("B2|BlockHashMismatch: Stored hash differs from the recomputed header hash.")
	ErrTooManyTransactions   = errors.New("B3|TooManyTransactions: Transaction count exceeds the policy limit.")
	ErrMerkleRootMismatch    = errors.New("B4|MerkleRootMismatch: Merkle root does not match the transactions.")
	ErrInsufficientWork      = errors.New("B5|InsufficientWork: Block hash does not meet the difficulty target.")
	ErrParentMismatch        = errors.New("B6|ParentMismatch: Previous hash does not reference the chain head.")
	ErrHeightMismatch        = errors.New("B7|HeightMismatch: Block height does not follow the chain head.")
	ErrNotFinal              = errors.New("B8|NotFinal: Finality score is below the threshold.")
)

// External layer (C) and configuration (X) Errors
var (
	ErrActionOrContractNotFound = errors.New("C1|ActionOrContractNotFound: Contract or action does not exist.")
	ErrInvalidChainSpec         = errors.New("X1|InvalidChainSpec: Chain spec parameters are inconsistent.")
)

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	// Split on ':' to separate the error name from its description.
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") {
		return ""
	}
	parts := strings.SplitN(errStr, "|", 2)
	return strings.TrimSpace(parts[0])
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}
