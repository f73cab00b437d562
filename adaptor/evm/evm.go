/*
Package evm is the reference venue adaptor: a plain EVM DEX reached through
the public mempool. It translates requests into signed transactions using
the shared signing pool and broadcasts them through the chain client.
*/
package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/vortexdex/dexproxy/chain"
	"github.com/vortexdex/dexproxy/lifecycle"
	"github.com/vortexdex/dexproxy/signer"
	"github.com/vortexdex/dexproxy/types"
)

const (
	// plain value transfer gas, used for cancels
	cancelGasLimit = 21_000
	// default limit for contract calls when the request does not carry one
	defaultCallGasLimit = 250_000
)

// Token describes one tradable asset on the venue.
type Token struct {
	Address  common.Address
	Decimals uint8
}

// Config wires the venue contracts and token registry.
type Config struct {
	// VenueName labels the adaptor in logs and events.
	VenueName string
	// ChainID of the target network.
	ChainID *big.Int
	// Exchange is the venue's order entry contract.
	Exchange common.Address
	// Spender receives token allowance approvals (the venue router).
	Spender common.Address
	// WrappedNative is the symbol of the wrapped native token (e.g. WETH);
	// its registry entry is the wrap/unwrap contract.
	WrappedNative string
	// Tokens maps upper-case symbols to their contracts.
	Tokens map[string]Token
	// CallGasLimit overrides the default contract call gas limit.
	CallGasLimit uint64
}

// Adaptor implements lifecycle.Adaptor for plain EVM venues.
type Adaptor struct {
	cfg    Config
	client chain.Client
	pool   *signer.Pool
}

var _ lifecycle.Adaptor = (*Adaptor)(nil)

// New creates the adaptor. The signing pool must already be started.
func New(cfg Config, client chain.Client, pool *signer.Pool) (*Adaptor, error) {
	if cfg.ChainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}
	if cfg.VenueName == "" {
		cfg.VenueName = "evm"
	}
	if cfg.CallGasLimit == 0 {
		cfg.CallGasLimit = defaultCallGasLimit
	}
	return &Adaptor{cfg: cfg, client: client, pool: pool}, nil
}

// Name implements lifecycle.Adaptor.
func (a *Adaptor) Name() string { return a.cfg.VenueName }

// GasPriceFast implements lifecycle.Adaptor: the node oracle already
// targets next-block inclusion.
func (a *Adaptor) GasPriceFast(ctx context.Context) (*types.BigInt, error) {
	price, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	return (*types.BigInt)(price), nil
}

func (a *Adaptor) token(symbol string) (Token, error) {
	t, ok := a.cfg.Tokens[normalizeSymbol(symbol)]
	if !ok {
		return Token{}, fmt.Errorf("unknown token symbol %q", symbol)
	}
	return t, nil
}

// signAndSubmit signs the transaction and broadcasts it.
func (a *Adaptor) signAndSubmit(ctx context.Context, tx *gtypes.Transaction) (*lifecycle.SubmitOutcome, error) {
	outcome, err := a.sign(ctx, tx)
	if err != nil {
		return nil, err
	}
	if _, err := a.client.SubmitTransaction(ctx, outcome.RawTx); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (a *Adaptor) sign(ctx context.Context, tx *gtypes.Transaction) (*lifecycle.SubmitOutcome, error) {
	signed, raw, err := a.pool.SignTx(ctx, tx, a.cfg.ChainID)
	if err != nil {
		return nil, err
	}
	return &lifecycle.SubmitOutcome{TxHash: signed.Hash().Hex(), RawTx: raw}, nil
}

// SubmitApprove implements lifecycle.Adaptor with a standard ERC-20
// approve(spender, amount) call on the token contract.
func (a *Adaptor) SubmitApprove(ctx context.Context, r *types.Request, nonce uint64, gasPriceWei *types.BigInt) (*lifecycle.SubmitOutcome, error) {
	token, err := a.token(r.Approve.Symbol)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(r.Approve.Amount, token.Decimals)
	if err != nil {
		return nil, err
	}
	tx := a.callTx(nonce, token.Address, gasPriceWei, a.cfg.CallGasLimit, nil,
		approveCalldata(a.cfg.Spender, amount))
	return a.signAndSubmit(ctx, tx)
}

// SubmitTransfer implements lifecycle.Adaptor with an ERC-20
// transfer(to, amount) call.
func (a *Adaptor) SubmitTransfer(ctx context.Context, r *types.Request, nonce uint64, gasPriceWei *types.BigInt) (*lifecycle.SubmitOutcome, error) {
	token, err := a.token(r.Transfer.Symbol)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(r.Transfer.Amount, token.Decimals)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(r.Transfer.AddressTo) {
		return nil, fmt.Errorf("invalid destination address %q", r.Transfer.AddressTo)
	}
	gasLimit := r.Transfer.GasLimit
	if gasLimit == 0 {
		gasLimit = a.cfg.CallGasLimit
	}
	tx := a.callTx(nonce, token.Address, gasPriceWei, gasLimit, nil,
		transferCalldata(common.HexToAddress(r.Transfer.AddressTo), amount))
	return a.signAndSubmit(ctx, tx)
}

// SubmitOrder implements lifecycle.Adaptor.
func (a *Adaptor) SubmitOrder(ctx context.Context, r *types.Request, nonce uint64, gasPriceWei *types.BigInt) (*lifecycle.SubmitOutcome, error) {
	tx, err := a.orderTx(r, nonce, gasPriceWei)
	if err != nil {
		return nil, err
	}
	return a.signAndSubmit(ctx, tx)
}

// SignOrder implements lifecycle.Adaptor: same payload as SubmitOrder,
// returned without broadcasting for bundle staging.
func (a *Adaptor) SignOrder(ctx context.Context, r *types.Request, nonce uint64, gasPriceWei *types.BigInt) (*lifecycle.SubmitOutcome, error) {
	tx, err := a.orderTx(r, nonce, gasPriceWei)
	if err != nil {
		return nil, err
	}
	return a.sign(ctx, tx)
}

func (a *Adaptor) orderTx(r *types.Request, nonce uint64, gasPriceWei *types.BigInt) (*gtypes.Transaction, error) {
	calldata, err := orderCalldata(r.Order)
	if err != nil {
		return nil, err
	}
	return a.callTx(nonce, a.cfg.Exchange, gasPriceWei, a.cfg.CallGasLimit, nil, calldata), nil
}

// SubmitWrapUnwrap implements lifecycle.Adaptor: deposit() with value for
// wrap, withdraw(amount) for unwrap, both on the wrapped-native contract.
func (a *Adaptor) SubmitWrapUnwrap(ctx context.Context, r *types.Request, nonce uint64, gasPriceWei *types.BigInt) (*lifecycle.SubmitOutcome, error) {
	wrapped, err := a.token(a.cfg.WrappedNative)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(r.WrapUnwrap.Amount, wrapped.Decimals)
	if err != nil {
		return nil, err
	}
	var tx *gtypes.Transaction
	if r.WrapUnwrap.Operation == "wrap" {
		tx = a.callTx(nonce, wrapped.Address, gasPriceWei, a.cfg.CallGasLimit, amount, depositCalldata())
	} else {
		tx = a.callTx(nonce, wrapped.Address, gasPriceWei, a.cfg.CallGasLimit, nil, withdrawCalldata(amount))
	}
	return a.signAndSubmit(ctx, tx)
}

// SubmitCancel implements lifecycle.Adaptor with a zero-value self-send at
// the request's nonce, the cheapest transaction that can occupy the slot.
func (a *Adaptor) SubmitCancel(ctx context.Context, _ *types.Request, nonce uint64, gasPriceWei *types.BigInt) (*lifecycle.SubmitOutcome, error) {
	self := a.pool.Address()
	tx := a.callTx(nonce, self, gasPriceWei, cancelGasLimit, nil, nil)
	return a.signAndSubmit(ctx, tx)
}

// Resign implements lifecycle.Adaptor: it decodes the signed transaction,
// rebuilds it at the new nonce and signs again.
func (a *Adaptor) Resign(ctx context.Context, rawTx []byte, newNonce uint64) ([]byte, string, error) {
	old := new(gtypes.Transaction)
	if err := old.UnmarshalBinary(rawTx); err != nil {
		return nil, "", fmt.Errorf("decode raw tx: %w", err)
	}
	rebuilt := gtypes.NewTx(&gtypes.LegacyTx{
		Nonce:    newNonce,
		To:       old.To(),
		Value:    old.Value(),
		Gas:      old.Gas(),
		GasPrice: old.GasPrice(),
		Data:     old.Data(),
	})
	outcome, err := a.sign(ctx, rebuilt)
	if err != nil {
		return nil, "", err
	}
	return outcome.RawTx, outcome.TxHash, nil
}

// callTx assembles an unsigned legacy transaction.
func (a *Adaptor) callTx(nonce uint64, to common.Address, gasPriceWei *types.BigInt, gasLimit uint64, value *big.Int, data []byte) *gtypes.Transaction {
	gasPrice := big.NewInt(0)
	if gasPriceWei != nil {
		gasPrice = gasPriceWei.MathBigInt()
	}
	if value == nil {
		value = big.NewInt(0)
	}
	return gtypes.NewTx(&gtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
}
