// Package chain defines the narrow chain-client contract the proxy core
// consumes, plus an EVM implementation with multi-endpoint failover.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrReceiptNotFound is returned when the transaction is not yet mined.
	// Pollers treat it as an expected condition, not a failure.
	ErrReceiptNotFound = errors.New("transaction receipt not found")
	// ErrBlockNotFound is returned when the requested block does not exist
	// (yet, or anymore after a reorg).
	ErrBlockNotFound = errors.New("block not found")
)

// ErrorType classifies submission failures so handlers can react without
// string-matching provider messages.
type ErrorType string

const (
	NoError           ErrorType = "NO_ERROR"
	TransactionFailed ErrorType = "TRANSACTION_FAILED"
	InvalidNonce      ErrorType = "INVALID_NONCE"
	InsufficientFunds ErrorType = "INSUFFICIENT_FUNDS"
	ReplacementTooLow ErrorType = "REPLACEMENT_UNDERPRICED"
	AlreadyKnown      ErrorType = "ALREADY_KNOWN"
	SubmitTimeout     ErrorType = "SUBMIT_TIMEOUT"
)

// SubmitError is a classified transaction submission failure.
type SubmitError struct {
	Type    ErrorType
	Message string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// AsSubmitError extracts a SubmitError from err, wrapping unclassified
// errors as TRANSACTION_FAILED.
func AsSubmitError(err error) *SubmitError {
	var se *SubmitError
	if errors.As(err, &se) {
		return se
	}
	return &SubmitError{Type: TransactionFailed, Message: err.Error()}
}

// Receipt is the minimal mined-transaction evidence the core needs.
type Receipt struct {
	TxHash      string
	Status      uint64 // 1 success, 0 revert
	BlockNumber uint64
	GasUsed     uint64
}

// Block carries the transaction hash list used by the target-block
// reconciler.
type Block struct {
	Number    uint64
	Timestamp uint64
	TxHashes  []string
}

// SubmitResult is returned on successful submission.
type SubmitResult struct {
	Nonce  uint64
	TxHash string
}

// Client is the chain access contract consumed by the core. Implementations
// must be safe for concurrent use.
type Client interface {
	// SubmitTransaction broadcasts a signed raw transaction. On failure the
	// returned error unwraps to *SubmitError.
	SubmitTransaction(ctx context.Context, signedPayload []byte) (*SubmitResult, error)
	// TransactionReceipt returns ErrReceiptNotFound while the transaction
	// is pending.
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
	// BlockByNumber returns ErrBlockNotFound for unknown blocks.
	BlockByNumber(ctx context.Context, num uint64) (*Block, error)
	// HeadBlock returns the current chain head number.
	HeadBlock(ctx context.Context) (uint64, error)
	// SuggestGasPrice returns the oracle "Fast" tier price in wei.
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}
