package chain

import "errors"

// Input errors: rejectable at admission or validation, never fatal.
var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidNonce      = errors.New("invalid nonce")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateTx       = errors.New("duplicate transaction")
	ErrStaleTx           = errors.New("stale transaction")
	ErrMalformedMessage  = errors.New("malformed message")
	ErrOversizeFrame     = errors.New("oversize frame")
	ErrAmountOverflow    = errors.New("amount+fee overflow")
)

// State errors.
var (
	ErrSnapshotRestoreFailed = errors.New("snapshot restore failed")
	ErrStateRootMismatch     = errors.New("state root mismatch")
)

// Chain/block errors.
var (
	ErrBlockNotFound      = errors.New("block not found")
	ErrInvalidBlockHeight = errors.New("invalid block height")
	ErrInvalidPrevHash    = errors.New("invalid previous block hash")
	ErrTimestampNotAdvancing = errors.New("timestamp does not advance")
	ErrUnknownProposer    = errors.New("proposer not in validator set")
	ErrWrongLeader        = errors.New("proposer is not the expected leader")
	ErrMerkleRootMismatch = errors.New("tx merkle root mismatch")
	ErrGasLimitExceeded   = errors.New("gas used exceeds gas limit")
	ErrDoesNotExtendHead  = errors.New("block does not extend current head")
)

// Consensus errors.
var (
	ErrQuorumNotReached = errors.New("quorum not reached")
	ErrInvalidProposal  = errors.New("invalid proposal")
	ErrEquivocation     = errors.New("equivocation detected")
)

// Network errors.
var (
	ErrPeerDisconnected = errors.New("peer disconnected")
	ErrHandshakeFailed  = errors.New("handshake failed")
	ErrGenesisMismatch  = errors.New("genesis hash mismatch")
)

// Resource errors.
var (
	ErrMempoolFull     = errors.New("mempool full")
	ErrPeerCapReached  = errors.New("peer cap reached")
)
