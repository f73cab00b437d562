package chain

import "strings"

// Providers report submission failures as free-form messages; these matchers
// cover the variants emitted by geth, erigon and the common RPC gateways.

func isNonceTooLow(err error) bool {
	return containsErr(err, "nonce too low")
}

func isNonceTooHigh(err error) bool {
	return containsErr(err, "nonce too high")
}

func isUnderpriced(err error) bool {
	return containsErr(err, "replacement transaction underpriced") ||
		containsErr(err, "transaction underpriced") ||
		containsErr(err, "tip too low") ||
		containsErr(err, "fee cap too low")
}

func isInsufficientFunds(err error) bool {
	return containsErr(err, "insufficient funds")
}

func isAlreadyKnown(err error) bool {
	return containsErr(err, "already known") ||
		containsErr(err, "known transaction")
}

// IsCancelWindowClosed reports whether a cancel submission failed because
// the original transaction was already mined, i.e. the nonce slot is spent.
func IsCancelWindowClosed(err error) bool {
	se := AsSubmitError(err)
	return se.Type == InvalidNonce ||
		strings.Contains(strings.ToLower(se.Message), "already mined")
}

func containsErr(err error, sub string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), strings.ToLower(sub))
}

// classifySubmitError maps a provider error to a typed SubmitError.
func classifySubmitError(err error) *SubmitError {
	switch {
	case err == nil:
		return nil
	case isNonceTooLow(err) || isNonceTooHigh(err):
		return &SubmitError{Type: InvalidNonce, Message: err.Error()}
	case isInsufficientFunds(err):
		return &SubmitError{Type: InsufficientFunds, Message: err.Error()}
	case isUnderpriced(err):
		return &SubmitError{Type: ReplacementTooLow, Message: err.Error()}
	case isAlreadyKnown(err):
		return &SubmitError{Type: AlreadyKnown, Message: err.Error()}
	default:
		return &SubmitError{Type: TransactionFailed, Message: err.Error()}
	}
}
