package evm

import (
	"context"
	"encoding/hex"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	qt "github.com/frankban/quicktest"

	"github.com/vortexdex/dexproxy/chain"
	"github.com/vortexdex/dexproxy/signer"
	"github.com/vortexdex/dexproxy/types"
)

// well-known throwaway development key, never used on a live network
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// captureClient records submitted payloads without touching a network.
type captureClient struct {
	mu        sync.Mutex
	submitted [][]byte
	gasPrice  *big.Int
}

func (c *captureClient) SubmitTransaction(_ context.Context, payload []byte) (*chain.SubmitResult, error) {
	tx := new(gtypes.Transaction)
	if err := tx.UnmarshalBinary(payload); err != nil {
		return nil, &chain.SubmitError{Type: chain.TransactionFailed, Message: err.Error()}
	}
	c.mu.Lock()
	c.submitted = append(c.submitted, payload)
	c.mu.Unlock()
	return &chain.SubmitResult{Nonce: tx.Nonce(), TxHash: tx.Hash().Hex()}, nil
}

func (c *captureClient) TransactionReceipt(context.Context, string) (*chain.Receipt, error) {
	return nil, chain.ErrReceiptNotFound
}

func (c *captureClient) BlockByNumber(context.Context, uint64) (*chain.Block, error) {
	return nil, chain.ErrBlockNotFound
}

func (c *captureClient) HeadBlock(context.Context) (uint64, error) { return 0, nil }

func (c *captureClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	if c.gasPrice == nil {
		return big.NewInt(1_000_000_000), nil
	}
	return c.gasPrice, nil
}

func (c *captureClient) lastTx(t *testing.T) *gtypes.Transaction {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	qt.Assert(t, len(c.submitted) > 0, qt.IsTrue)
	tx := new(gtypes.Transaction)
	qt.Assert(t, tx.UnmarshalBinary(c.submitted[len(c.submitted)-1]), qt.IsNil)
	return tx
}

func newTestAdaptor(t *testing.T) (*Adaptor, *captureClient, *signer.Pool) {
	t.Helper()
	pool, err := signer.NewPool(testKeyHex, 2)
	qt.Assert(t, err, qt.IsNil)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() { cancel(); pool.Stop() })

	client := &captureClient{}
	a, err := New(Config{
		VenueName: "testvenue",
		ChainID:   big.NewInt(1337),
		Exchange:  common.HexToAddress("0x00000000000000000000000000000000000000ee"),
		Spender:   common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Tokens: map[string]Token{
			"USDC": {Address: common.HexToAddress("0x00000000000000000000000000000000000000c0"), Decimals: 6},
			"WETH": {Address: common.HexToAddress("0x00000000000000000000000000000000000000c1"), Decimals: 18},
		},
		WrappedNative: "WETH",
	}, client, pool)
	qt.Assert(t, err, qt.IsNil)
	return a, client, pool
}

func TestParseAmount(t *testing.T) {
	c := qt.New(t)

	v, err := parseAmount("1.5", 6)
	c.Assert(err, qt.IsNil)
	c.Assert(v.String(), qt.Equals, "1500000")

	v, err = parseAmount("100", 18)
	c.Assert(err, qt.IsNil)
	c.Assert(v.String(), qt.Equals, "100000000000000000000")

	v, err = parseAmount("0.000001", 6)
	c.Assert(err, qt.IsNil)
	c.Assert(v.String(), qt.Equals, "1")

	_, err = parseAmount("0.0000001", 6)
	c.Assert(err, qt.ErrorMatches, ".*more than 6 decimal places.*")
	_, err = parseAmount("-1", 6)
	c.Assert(err, qt.ErrorMatches, ".*must be positive.*")
	_, err = parseAmount("abc", 6)
	c.Assert(err, qt.ErrorMatches, "malformed amount.*")
	_, err = parseAmount("", 6)
	c.Assert(err, qt.ErrorMatches, "empty amount")
}

func TestKnownSelectors(t *testing.T) {
	c := qt.New(t)
	c.Assert(hex.EncodeToString(approveSelector), qt.Equals, "095ea7b3")
	c.Assert(hex.EncodeToString(transferSelector), qt.Equals, "a9059cbb")
	c.Assert(hex.EncodeToString(depositSelector), qt.Equals, "d0e30db0")
	c.Assert(hex.EncodeToString(withdrawSelector), qt.Equals, "2e1a7d4d")
}

func TestSubmitApprove(t *testing.T) {
	c := qt.New(t)
	a, client, _ := newTestAdaptor(t)

	r := types.NewRequest("a1", types.RequestTypeApprove)
	r.Approve = &types.ApproveFields{Symbol: "usdc", Amount: "250.5"}
	outcome, err := a.SubmitApprove(context.Background(), r, 7, types.NewInt(2_000_000_000))
	c.Assert(err, qt.IsNil)

	tx := client.lastTx(t)
	c.Assert(tx.Hash().Hex(), qt.Equals, outcome.TxHash)
	c.Assert(tx.Nonce(), qt.Equals, uint64(7))
	c.Assert(tx.To().Hex(), qt.Equals, a.cfg.Tokens["USDC"].Address.Hex())
	c.Assert(tx.GasPrice().Int64(), qt.Equals, int64(2_000_000_000))

	data := tx.Data()
	c.Assert(data[:4], qt.DeepEquals, approveSelector)
	// amount word: 250.5 * 10^6
	amount := new(big.Int).SetBytes(data[36:68])
	c.Assert(amount.String(), qt.Equals, "250500000")
}

func TestSubmitTransferValidation(t *testing.T) {
	c := qt.New(t)
	a, _, _ := newTestAdaptor(t)
	ctx := context.Background()

	r := types.NewRequest("t1", types.RequestTypeTransfer)
	r.Transfer = &types.TransferFields{Symbol: "DOGE", Amount: "1", AddressTo: "0x1"}
	_, err := a.SubmitTransfer(ctx, r, 0, types.NewInt(1))
	c.Assert(err, qt.ErrorMatches, `unknown token symbol "DOGE"`)

	r.Transfer.Symbol = "USDC"
	_, err = a.SubmitTransfer(ctx, r, 0, types.NewInt(1))
	c.Assert(err, qt.ErrorMatches, `invalid destination address "0x1"`)
}

func TestSubmitCancelIsZeroValueSelfSend(t *testing.T) {
	c := qt.New(t)
	a, client, pool := newTestAdaptor(t)

	_, err := a.SubmitCancel(context.Background(), nil, 42, types.NewInt(1_100_000_000))
	c.Assert(err, qt.IsNil)

	tx := client.lastTx(t)
	c.Assert(tx.Nonce(), qt.Equals, uint64(42))
	c.Assert(tx.To().Hex(), qt.Equals, pool.Address().Hex())
	c.Assert(tx.Value().Sign(), qt.Equals, 0)
	c.Assert(tx.Gas(), qt.Equals, uint64(21_000))
	c.Assert(tx.GasPrice().Int64(), qt.Equals, int64(1_100_000_000))
	c.Assert(tx.Data(), qt.HasLen, 0)
}

func TestSignOrderDoesNotBroadcast(t *testing.T) {
	c := qt.New(t)
	a, client, _ := newTestAdaptor(t)

	r := types.NewRequest("o1", types.RequestTypeOrder)
	r.Order = &types.OrderFields{Symbol: "BTC-USD", Side: "BUY", Quantity: "0.1", Price: "50000"}
	outcome, err := a.SignOrder(context.Background(), r, 5, types.NewInt(1))
	c.Assert(err, qt.IsNil)
	c.Assert(outcome.RawTx, qt.Not(qt.HasLen), 0)
	c.Assert(client.submitted, qt.HasLen, 0)

	tx := new(gtypes.Transaction)
	c.Assert(tx.UnmarshalBinary(outcome.RawTx), qt.IsNil)
	c.Assert(tx.To().Hex(), qt.Equals, a.cfg.Exchange.Hex())
	c.Assert(tx.Data()[:4], qt.DeepEquals, placeOrderSelector)
}

func TestOrderCalldataValidation(t *testing.T) {
	c := qt.New(t)
	_, err := orderCalldata(&types.OrderFields{Symbol: "X", Side: "HOLD", Quantity: "1", Price: "1"})
	c.Assert(err, qt.ErrorMatches, `side must be BUY or SELL.*`)
	_, err = orderCalldata(nil)
	c.Assert(err, qt.ErrorMatches, "order fields missing")
}

func TestResignPreservesFieldsAtNewNonce(t *testing.T) {
	c := qt.New(t)
	a, _, _ := newTestAdaptor(t)
	ctx := context.Background()

	r := types.NewRequest("o1", types.RequestTypeOrder)
	r.Order = &types.OrderFields{Symbol: "BTC-USD", Side: "SELL", Quantity: "2", Price: "49000"}
	original, err := a.SignOrder(ctx, r, 12, types.NewInt(3_000_000_000))
	c.Assert(err, qt.IsNil)

	raw, hash, err := a.Resign(ctx, original.RawTx, 11)
	c.Assert(err, qt.IsNil)
	c.Assert(hash, qt.Not(qt.Equals), original.TxHash)

	origTx := new(gtypes.Transaction)
	c.Assert(origTx.UnmarshalBinary(original.RawTx), qt.IsNil)
	newTx := new(gtypes.Transaction)
	c.Assert(newTx.UnmarshalBinary(raw), qt.IsNil)
	c.Assert(newTx.Nonce(), qt.Equals, uint64(11))
	c.Assert(newTx.To().Hex(), qt.Equals, origTx.To().Hex())
	c.Assert(newTx.Data(), qt.DeepEquals, origTx.Data())
	c.Assert(newTx.GasPrice().Cmp(origTx.GasPrice()), qt.Equals, 0)

	// the new signature still recovers to the pool account
	sender, err := gtypes.Sender(gtypes.LatestSignerForChainID(big.NewInt(1337)), newTx)
	c.Assert(err, qt.IsNil)
	c.Assert(sender.Hex(), qt.Equals, a.pool.Address().Hex())
}

func TestWrapUnwrap(t *testing.T) {
	c := qt.New(t)
	a, client, _ := newTestAdaptor(t)
	ctx := context.Background()

	r := types.NewRequest("w1", types.RequestTypeWrapUnwrap)
	r.WrapUnwrap = &types.WrapUnwrapFields{Symbol: "WETH", Amount: "1", Operation: "wrap"}
	_, err := a.SubmitWrapUnwrap(ctx, r, 0, types.NewInt(1))
	c.Assert(err, qt.IsNil)
	tx := client.lastTx(t)
	c.Assert(tx.Data(), qt.DeepEquals, depositCalldata())
	c.Assert(tx.Value().String(), qt.Equals, "1000000000000000000")

	r.WrapUnwrap.Operation = "unwrap"
	_, err = a.SubmitWrapUnwrap(ctx, r, 1, types.NewInt(1))
	c.Assert(err, qt.IsNil)
	tx = client.lastTx(t)
	c.Assert(tx.Data()[:4], qt.DeepEquals, withdrawSelector)
	c.Assert(tx.Value().Sign(), qt.Equals, 0)
}
