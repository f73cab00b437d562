package lifecycle

import (
	"context"
	"fmt"

	"github.com/vortexdex/dexproxy/log"
	"github.com/vortexdex/dexproxy/types"
)

// WithdrawPath marks transfer requests that must pass the withdrawal
// whitelist.
const WithdrawPath = "/private/withdraw"

// ApproveParams are the inputs of the approve operation.
type ApproveParams struct {
	ClientRequestID string
	Symbol          string
	Amount          string
	GasPriceWei     *types.BigInt
}

// Approve submits a token allowance approval and returns the tx hash.
func (m *Manager) Approve(ctx context.Context, p ApproveParams) (string, error) {
	if err := m.checkGasCap(p.GasPriceWei); err != nil {
		return "", err
	}
	r := types.NewRequest(p.ClientRequestID, types.RequestTypeApprove)
	r.Approve = &types.ApproveFields{Symbol: p.Symbol, Amount: p.Amount}
	outcome, _, err := m.execute(ctx, r, p.GasPriceWei, m.adaptor.SubmitApprove)
	if err != nil {
		return "", err
	}
	return outcome.TxHash, nil
}

// TransferParams are the inputs of the transfer operation.
type TransferParams struct {
	ClientRequestID string
	Symbol          string
	Amount          string
	AddressTo       string
	GasLimit        uint64
	GasPriceWei     *types.BigInt
	// RequestPath is the surface the transfer arrived on; withdrawals are
	// whitelist-checked.
	RequestPath string
}

// Transfer submits a token transfer and returns the tx hash. Withdrawals
// to destinations outside the whitelist are rejected before any state is
// created.
func (m *Manager) Transfer(ctx context.Context, p TransferParams) (string, error) {
	if err := m.checkGasCap(p.GasPriceWei); err != nil {
		return "", err
	}
	if p.RequestPath == WithdrawPath {
		if m.whitelist == nil || !m.whitelist.Contains(p.Symbol, p.AddressTo) {
			log.Errorf("HIGH-ALERT: withdrawal to non-whitelisted address rejected, "+
				"clientRequestId=%s token=%s address=%s", p.ClientRequestID, p.Symbol, p.AddressTo)
			return "", fmt.Errorf("Unknown withdrawal_address=%s for token=%s", p.AddressTo, p.Symbol)
		}
	}
	r := types.NewRequest(p.ClientRequestID, types.RequestTypeTransfer)
	r.Transfer = &types.TransferFields{
		Symbol:      p.Symbol,
		Amount:      p.Amount,
		AddressTo:   p.AddressTo,
		RequestPath: p.RequestPath,
		GasLimit:    p.GasLimit,
	}
	outcome, _, err := m.execute(ctx, r, p.GasPriceWei, m.adaptor.SubmitTransfer)
	if err != nil {
		return "", err
	}
	return outcome.TxHash, nil
}

// WrapUnwrapParams are the inputs of the wrap/unwrap operation.
type WrapUnwrapParams struct {
	ClientRequestID string
	Symbol          string
	Amount          string
	Operation       string // "wrap" or "unwrap"
	GasPriceWei     *types.BigInt
}

// WrapUnwrap submits a native-token wrap or unwrap and returns the tx hash.
func (m *Manager) WrapUnwrap(ctx context.Context, p WrapUnwrapParams) (string, error) {
	if err := m.checkGasCap(p.GasPriceWei); err != nil {
		return "", err
	}
	if p.Operation != "wrap" && p.Operation != "unwrap" {
		return "", fmt.Errorf("operation must be wrap or unwrap, got %q", p.Operation)
	}
	r := types.NewRequest(p.ClientRequestID, types.RequestTypeWrapUnwrap)
	r.WrapUnwrap = &types.WrapUnwrapFields{Symbol: p.Symbol, Amount: p.Amount, Operation: p.Operation}
	outcome, _, err := m.execute(ctx, r, p.GasPriceWei, m.adaptor.SubmitWrapUnwrap)
	if err != nil {
		return "", err
	}
	return outcome.TxHash, nil
}

// OrderParams are the inputs of the insert-order operation.
type OrderParams struct {
	ClientRequestID string
	Symbol          string
	Side            string
	Quantity        string
	Price           string
	OrderType       string
	GasPriceWei     *types.BigInt
	// TargetedBlockNum routes the order through the builder bundle flow
	// when non-zero and bundling is configured.
	TargetedBlockNum uint64
}

// InsertResult is the outcome of a successful insert or amend.
type InsertResult struct {
	TxHash string
	Nonce  uint64
}

// InsertOrder submits an order placement. Orders targeting a specific block
// on a bundling venue are signed, staged into the current bundle and sent
// to the builders instead of the public mempool.
func (m *Manager) InsertOrder(ctx context.Context, p OrderParams) (*InsertResult, error) {
	if err := m.checkGasCap(p.GasPriceWei); err != nil {
		return nil, err
	}
	r := types.NewRequest(p.ClientRequestID, types.RequestTypeOrder)
	r.Order = &types.OrderFields{
		Symbol:    p.Symbol,
		Side:      p.Side,
		Quantity:  p.Quantity,
		Price:     p.Price,
		OrderType: p.OrderType,
	}
	if p.TargetedBlockNum > 0 && m.builders.Enabled() {
		r.DexSpecific.TargetedBlockNum = p.TargetedBlockNum
		return m.insertBundled(ctx, r, p.GasPriceWei)
	}
	outcome, nonce, err := m.execute(ctx, r, p.GasPriceWei, m.adaptor.SubmitOrder)
	if err != nil {
		return nil, err
	}
	return &InsertResult{TxHash: outcome.TxHash, Nonce: nonce}, nil
}
