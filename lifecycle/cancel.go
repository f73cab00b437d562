package lifecycle

import (
	"context"
	"fmt"

	"github.com/vortexdex/dexproxy/chain"
	"github.com/vortexdex/dexproxy/log"
	"github.com/vortexdex/dexproxy/types"
)

// CancelParams are the inputs of the cancel-request operation. GasPriceWei
// nil means the price is derived from the venue gas oracle.
type CancelParams struct {
	ClientRequestID string
	GasPriceWei     *types.BigInt
}

// Cancel submits a cancel for the request and returns the cancel tx hash.
// A caller-supplied gas price is transmitted exactly as given; a derived
// price is max(oracle fast tier, minimum replacement bump over the last
// attempt).
func (m *Manager) Cancel(ctx context.Context, p CancelParams) (string, error) {
	r, err := m.cache.Get(p.ClientRequestID)
	if err != nil {
		return "", err
	}
	if r.Finalised() {
		return "", fmt.Errorf("%w: status is %s", ErrAlreadyFinalized, r.RequestStatus)
	}
	if r.Nonce == nil {
		return "", ErrInsertPending
	}
	if m.bundle != nil && m.bundle.Contains(p.ClientRequestID) {
		return m.cancelBundled(ctx, r)
	}

	gas := p.GasPriceWei
	if gas == nil {
		oracle, err := m.adaptor.GasPriceFast(ctx)
		if err != nil {
			return "", fmt.Errorf("query gas oracle: %w", err)
		}
		gas = oracle
		if last := r.LastUsedGasPrice(); last != nil {
			if bump := last.MinimumBump(); gas.Cmp(bump) < 0 {
				gas = bump
			}
		}
	}
	if r.RequestStatus == types.StatusCancelRequested {
		if last := r.LastUsedGasPrice(); last != nil && gas.Cmp(last) <= 0 {
			return "", fmt.Errorf("%w: %s does not outbid the previous cancel at %s",
				ErrCancelInProgress, gas.String(), last.String())
		}
	}

	outcome, err := m.adaptor.SubmitCancel(ctx, r, *r.Nonce, gas)
	if err != nil {
		if chain.IsCancelWindowClosed(err) {
			log.Infow("cancel window closed, original already mined",
				"clientRequestId", p.ClientRequestID, "nonce", *r.Nonce)
			return "", fmt.Errorf("%w: %v", ErrCancelWindowClosed, err)
		}
		return "", err
	}

	err = m.cache.Update(p.ClientRequestID, func(cached *types.Request) error {
		if err := cached.SetStatus(types.StatusCancelRequested); err != nil {
			return err
		}
		return cached.AppendAttempt(outcome.TxHash, types.ActionCancel, gas)
	})
	if err != nil {
		return "", err
	}
	m.watcher.AddForPolling(outcome.TxHash, p.ClientRequestID, types.ActionCancel)
	log.Infow("cancel submitted",
		"clientRequestId", p.ClientRequestID,
		"nonce", *r.Nonce,
		"gasPriceWei", gas.String(),
		"txHash", outcome.TxHash)
	return outcome.TxHash, nil
}

// CancelAllResult lists which requests accepted a cancel and which refused.
type CancelAllResult struct {
	CancelRequested []string `json:"cancel_requested"`
	FailedCancels   []string `json:"failed_cancels"`
}

// CancelAll applies cancel semantics to every open request of the given
// type, independently. Partial failure is reported, not retried.
func (m *Manager) CancelAll(ctx context.Context, rt types.RequestType) *CancelAllResult {
	result := &CancelAllResult{
		CancelRequested: []string{},
		FailedCancels:   []string{},
	}
	for _, r := range m.OpenRequests(rt) {
		if _, err := m.Cancel(ctx, CancelParams{ClientRequestID: r.ClientRequestID}); err != nil {
			log.Warnw("cancel-all member failed",
				"clientRequestId", r.ClientRequestID, "error", err.Error())
			result.FailedCancels = append(result.FailedCancels, r.ClientRequestID)
			continue
		}
		result.CancelRequested = append(result.CancelRequested, r.ClientRequestID)
	}
	return result
}

// AmendParams are the inputs of the amend-request operation. Only non-zero
// fields replace the originals.
type AmendParams struct {
	ClientRequestID string
	GasPriceWei     *types.BigInt
	Price           string
	Quantity        string
	Amount          string
}

// Amend replaces the request's transaction at the same nonce with updated
// fields. Only PENDING requests can be amended.
func (m *Manager) Amend(ctx context.Context, p AmendParams) (string, error) {
	if err := m.checkGasCap(p.GasPriceWei); err != nil {
		return "", err
	}
	r, err := m.cache.Get(p.ClientRequestID)
	if err != nil {
		return "", err
	}
	if r.RequestStatus != types.StatusPending {
		if r.Finalised() {
			return "", fmt.Errorf("%w: status is %s", ErrAlreadyFinalized, r.RequestStatus)
		}
		return "", fmt.Errorf("%w: status is %s", ErrNotPending, r.RequestStatus)
	}
	if r.Nonce == nil {
		return "", ErrInsertPending
	}

	applyAmend(r, p)
	var outcome *SubmitOutcome
	if m.bundle != nil && m.bundle.Contains(p.ClientRequestID) {
		outcome, err = m.amendBundled(ctx, r, p.GasPriceWei)
	} else {
		var submit submitFn
		submit, err = m.submitForType(r.RequestType)
		if err == nil {
			outcome, err = submit(ctx, r, *r.Nonce, p.GasPriceWei)
		}
	}
	if err != nil {
		return "", err
	}

	err = m.cache.Update(p.ClientRequestID, func(cached *types.Request) error {
		applyAmend(cached, p)
		return cached.AppendAttempt(outcome.TxHash, types.ActionTag(cached.RequestType), p.GasPriceWei)
	})
	if err != nil {
		return "", err
	}
	m.watcher.AddForPolling(outcome.TxHash, p.ClientRequestID, types.ActionTag(r.RequestType))
	log.Infow("request amended",
		"clientRequestId", p.ClientRequestID,
		"nonce", *r.Nonce,
		"txHash", outcome.TxHash)
	return outcome.TxHash, nil
}

func applyAmend(r *types.Request, p AmendParams) {
	if r.Order != nil {
		if p.Price != "" {
			r.Order.Price = p.Price
		}
		if p.Quantity != "" {
			r.Order.Quantity = p.Quantity
		}
	}
	if p.Amount != "" {
		switch {
		case r.Transfer != nil:
			r.Transfer.Amount = p.Amount
		case r.Approve != nil:
			r.Approve.Amount = p.Amount
		case r.WrapUnwrap != nil:
			r.WrapUnwrap.Amount = p.Amount
		}
	}
}
