package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/vortexdex/dexproxy/dispatch"
	"github.com/vortexdex/dexproxy/log"
	"github.com/vortexdex/dexproxy/storage"
	"github.com/vortexdex/dexproxy/types"
)

// insertBundled signs the order, stages it into the bundle for its target
// block and submits the whole bundle to the builders. The transaction never
// touches the public mempool.
func (m *Manager) insertBundled(ctx context.Context, r *types.Request, gasPriceWei *types.BigInt) (*InsertResult, error) {
	if err := m.cache.Add(r); err != nil {
		if errors.Is(err, storage.ErrAlreadyKnown) {
			return nil, fmt.Errorf("client_request_id=%s is already known: %w",
				r.ClientRequestID, ErrAlreadyKnown)
		}
		return nil, err
	}

	lease := m.dispatcher.Acquire()
	defer lease.Release()
	nonce := lease.Nonce()

	outcome, err := m.adaptor.SignOrder(ctx, r, nonce, gasPriceWei)
	if err != nil {
		if finErr := m.cache.Finalise(r.ClientRequestID, types.StatusFailed); finErr != nil {
			log.Errorw(finErr, "cannot finalize failed bundle order")
		}
		return nil, err
	}

	target := r.DexSpecific.TargetedBlockNum
	m.bundle.Stage(target, dispatch.BundleMember{
		ClientRequestID: r.ClientRequestID,
		Nonce:           nonce,
		RawTx:           outcome.RawTx,
		TxHash:          outcome.TxHash,
	})
	_, replacementUUID, rawTxs := m.bundle.Snapshot()
	if err := m.builders.SubmitBundle(ctx, target, replacementUUID, rawTxs); err != nil {
		// the just-staged member holds the highest nonce, so removing it
		// shifts nothing
		if _, dropErr := m.bundle.CancelMember(ctx, r.ClientRequestID, m.adaptor); dropErr != nil {
			log.Errorw(dropErr, "cannot unstage rejected bundle member")
		}
		if finErr := m.cache.Finalise(r.ClientRequestID, types.StatusFailed); finErr != nil {
			log.Errorw(finErr, "cannot finalize failed bundle order")
		}
		return nil, err
	}
	lease.Advance()

	err = m.cache.Update(r.ClientRequestID, func(cached *types.Request) error {
		cached.Nonce = &nonce
		cached.DexSpecific.BlockUUID = replacementUUID
		return cached.AppendAttempt(outcome.TxHash, types.ActionOrder, gasPriceWei)
	})
	if err != nil {
		return nil, err
	}
	m.watcher.AddForPolling(outcome.TxHash, r.ClientRequestID, types.ActionOrder)
	log.Infow("bundled order submitted",
		"clientRequestId", r.ClientRequestID,
		"nonce", nonce,
		"targetBlock", target,
		"txHash", outcome.TxHash)
	return &InsertResult{TxHash: outcome.TxHash, Nonce: nonce}, nil
}

// cancelBundled removes the request's transaction from the bundle,
// renumbers and re-signs every later member, resubmits the group under the
// same replacement uuid and finalizes the request as CANCELED. Nothing ever
// reached the public mempool, so no cancel transaction is needed.
func (m *Manager) cancelBundled(ctx context.Context, r *types.Request) (string, error) {
	renumbered, err := m.bundle.CancelMember(ctx, r.ClientRequestID, m.adaptor)
	if err != nil {
		return "", err
	}
	for _, rn := range renumbered {
		nonce := rn.Nonce
		err := m.cache.Update(rn.ClientRequestID, func(cached *types.Request) error {
			cached.Nonce = &nonce
			return cached.AppendAttempt(rn.TxHash, types.ActionTag(cached.RequestType), cached.LastUsedGasPrice())
		})
		if err != nil {
			log.Errorw(err, "cannot record renumbered bundle member")
			continue
		}
		m.watcher.AddForPolling(rn.TxHash, rn.ClientRequestID, types.ActionOrder)
	}

	target, replacementUUID, rawTxs := m.bundle.Snapshot()
	if len(rawTxs) > 0 {
		if err := m.builders.SubmitBundle(ctx, target, replacementUUID, rawTxs); err != nil {
			return "", fmt.Errorf("resubmit bundle after cancel: %w", err)
		}
	}
	if err := m.cache.Finalise(r.ClientRequestID, types.StatusCanceled); err != nil {
		return "", err
	}
	if m.events != nil && r.RequestType == types.RequestTypeOrder {
		if canceled, err := m.cache.Get(r.ClientRequestID); err == nil {
			m.events.Emit(OrderEventChannel, canceled)
		}
	}
	return r.LiveHash(), nil
}

// amendBundled swaps the member's transaction in place (same nonce, new
// fields) and resubmits the bundle under the same replacement uuid.
func (m *Manager) amendBundled(ctx context.Context, r *types.Request, gasPriceWei *types.BigInt) (*SubmitOutcome, error) {
	outcome, err := m.adaptor.SignOrder(ctx, r, *r.Nonce, gasPriceWei)
	if err != nil {
		return nil, err
	}
	if err := m.bundle.AmendMember(r.ClientRequestID, outcome.RawTx, outcome.TxHash); err != nil {
		return nil, err
	}
	target, replacementUUID, rawTxs := m.bundle.Snapshot()
	if err := m.builders.SubmitBundle(ctx, target, replacementUUID, rawTxs); err != nil {
		return nil, fmt.Errorf("resubmit bundle after amend: %w", err)
	}
	return outcome, nil
}
