package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/vortexdex/dexproxy/chain"
	"github.com/vortexdex/dexproxy/dispatch"
	"github.com/vortexdex/dexproxy/storage"
	"github.com/vortexdex/dexproxy/types"
)

// fakeAdaptor records submissions and serves configurable outcomes.
type fakeAdaptor struct {
	mu        sync.Mutex
	gasFast   int64
	submitErr error
	cancelErr error
	seq       int

	lastNonce uint64
	lastGas   *types.BigInt
}

func (f *fakeAdaptor) Name() string { return "fake" }

func (f *fakeAdaptor) GasPriceFast(context.Context) (*types.BigInt, error) {
	return types.NewInt(f.gasFast), nil
}

func (f *fakeAdaptor) submit(nonce uint64, gas *types.BigInt) (*SubmitOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.seq++
	f.lastNonce = nonce
	f.lastGas = gas.Clone()
	hash := fmt.Sprintf("0xtx-%d", f.seq)
	return &SubmitOutcome{TxHash: hash, RawTx: fmt.Appendf(nil, "raw-%d@%d", f.seq, nonce)}, nil
}

func (f *fakeAdaptor) SubmitApprove(_ context.Context, _ *types.Request, nonce uint64, gas *types.BigInt) (*SubmitOutcome, error) {
	return f.submit(nonce, gas)
}

func (f *fakeAdaptor) SubmitTransfer(_ context.Context, _ *types.Request, nonce uint64, gas *types.BigInt) (*SubmitOutcome, error) {
	return f.submit(nonce, gas)
}

func (f *fakeAdaptor) SubmitOrder(_ context.Context, _ *types.Request, nonce uint64, gas *types.BigInt) (*SubmitOutcome, error) {
	return f.submit(nonce, gas)
}

func (f *fakeAdaptor) SubmitWrapUnwrap(_ context.Context, _ *types.Request, nonce uint64, gas *types.BigInt) (*SubmitOutcome, error) {
	return f.submit(nonce, gas)
}

func (f *fakeAdaptor) SubmitCancel(_ context.Context, _ *types.Request, nonce uint64, gas *types.BigInt) (*SubmitOutcome, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return f.submit(nonce, gas)
}

func (f *fakeAdaptor) SignOrder(_ context.Context, _ *types.Request, nonce uint64, gas *types.BigInt) (*SubmitOutcome, error) {
	return f.submit(nonce, gas)
}

func (f *fakeAdaptor) Resign(_ context.Context, rawTx []byte, newNonce uint64) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Appendf(nil, "%s->%d", rawTx, newNonce), fmt.Sprintf("0xresigned-%d", newNonce), nil
}

type watched struct {
	hash   string
	id     string
	action types.ActionTag
}

type fakeWatcher struct {
	mu    sync.Mutex
	added []watched
}

func (f *fakeWatcher) AddForPolling(hash, id string, action types.ActionTag) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, watched{hash: hash, id: id, action: action})
}

func (f *fakeWatcher) last() watched {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.added[len(f.added)-1]
}

type fakeSink struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeSink) Emit(channel string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := data.(*types.Request)
	f.events = append(f.events, channel+":"+r.ClientRequestID+":"+string(r.RequestStatus))
}

type testEnv struct {
	cache      *storage.Storage
	dispatcher *dispatch.Dispatcher
	adaptor    *fakeAdaptor
	watcher    *fakeWatcher
	sink       *fakeSink
	mgr        *Manager
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	cache, err := storage.New(nil, storage.Config{})
	qt.Assert(t, err, qt.IsNil)
	env := &testEnv{
		cache:      cache,
		dispatcher: dispatch.NewDispatcher(cache, 42),
		adaptor:    &fakeAdaptor{gasFast: 500_000_000},
		watcher:    &fakeWatcher{},
		sink:       &fakeSink{},
	}
	env.mgr = New(cache, env.dispatcher, env.watcher, env.adaptor, cfg).WithEvents(env.sink)
	return env
}

func TestApproveHappyPath(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, Config{})

	hash, err := env.mgr.Approve(context.Background(), ApproveParams{
		ClientRequestID: "a1",
		Symbol:          "USDC",
		Amount:          "1000",
		GasPriceWei:     types.NewInt(1_000_000_000),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(hash, qt.Equals, "0xtx-1")
	c.Assert(env.adaptor.lastNonce, qt.Equals, uint64(42))
	c.Assert(env.dispatcher.Peek(), qt.Equals, uint64(43))

	r, err := env.cache.Get("a1")
	c.Assert(err, qt.IsNil)
	c.Assert(*r.Nonce, qt.Equals, uint64(42))
	c.Assert(r.TxHashes, qt.DeepEquals, []types.TxAttempt{{Hash: "0xtx-1", Action: types.ActionApprove}})
	c.Assert(env.watcher.last(), qt.Equals, watched{hash: "0xtx-1", id: "a1", action: types.ActionApprove})
}

func TestDuplicateClientRequestID(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	_, err := env.mgr.InsertOrder(ctx, OrderParams{ClientRequestID: "r2", Symbol: "BTC-USD", Side: "BUY"})
	c.Assert(err, qt.IsNil)
	_, err = env.mgr.InsertOrder(ctx, OrderParams{ClientRequestID: "r2", Symbol: "BTC-USD", Side: "BUY"})
	c.Assert(err, qt.ErrorIs, ErrAlreadyKnown)
	c.Assert(err, qt.ErrorMatches, "client_request_id=r2 is already known.*")
}

func TestGasPriceCap(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, Config{MaxGasPriceWei: types.NewInt(2_000_000_000)})

	_, err := env.mgr.Approve(context.Background(), ApproveParams{
		ClientRequestID: "capped",
		Symbol:          "USDC",
		GasPriceWei:     types.NewInt(3_000_000_000),
	})
	c.Assert(err, qt.ErrorIs, ErrGasPriceTooHigh)
	// nothing was persisted
	_, err = env.cache.Get("capped")
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func TestSubmitFailureFinalizesAndHoldsNonce(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, Config{})
	env.adaptor.submitErr = &chain.SubmitError{Type: chain.InvalidNonce, Message: "nonce too low"}

	_, err := env.mgr.Approve(context.Background(), ApproveParams{ClientRequestID: "f1", Symbol: "USDC"})
	c.Assert(err, qt.IsNotNil)

	r, getErr := env.cache.Get("f1")
	c.Assert(getErr, qt.IsNil)
	c.Assert(r.RequestStatus, qt.Equals, types.StatusFailed)
	// the counter did not advance past the rejected nonce
	c.Assert(env.dispatcher.Peek(), qt.Equals, uint64(42))
}

func TestWithdrawWhitelist(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, Config{})
	env.mgr.WithWhitelist(NewWhitelist([]WhitelistEntry{
		{Symbol: "USDC", Address: "0xGOOD"},
	}, nil, 0))
	ctx := context.Background()

	_, err := env.mgr.Transfer(ctx, TransferParams{
		ClientRequestID: "w1",
		Symbol:          "USDC",
		Amount:          "5",
		AddressTo:       "0xDEAD",
		RequestPath:     WithdrawPath,
	})
	c.Assert(err, qt.ErrorMatches, "Unknown withdrawal_address=0xDEAD for token=USDC")
	_, err = env.cache.Get("w1")
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	// case-insensitive match on both symbol and address
	hash, err := env.mgr.Transfer(ctx, TransferParams{
		ClientRequestID: "w2",
		Symbol:          "usdc",
		Amount:          "5",
		AddressTo:       "0xgood",
		RequestPath:     WithdrawPath,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(hash, qt.Not(qt.Equals), "")

	// non-withdraw transfers skip the whitelist
	_, err = env.mgr.Transfer(ctx, TransferParams{
		ClientRequestID: "w3",
		Symbol:          "USDC",
		Amount:          "5",
		AddressTo:       "0xDEAD",
	})
	c.Assert(err, qt.IsNil)
}

func insertOrder(t *testing.T, env *testEnv, id string, gasWei int64) *InsertResult {
	t.Helper()
	res, err := env.mgr.InsertOrder(context.Background(), OrderParams{
		ClientRequestID: id,
		Symbol:          "BTC-USD",
		Side:            "BUY",
		Quantity:        "0.1",
		Price:           "50000",
		GasPriceWei:     types.NewInt(gasWei),
	})
	qt.Assert(t, err, qt.IsNil)
	return res
}

func TestCancelDerivedGasBump(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, Config{})
	insertOrder(t, env, "r1", 1_000_000_000)

	// oracle fast (500M) loses to the 10% bump over the last attempt
	hash, err := env.mgr.Cancel(context.Background(), CancelParams{ClientRequestID: "r1"})
	c.Assert(err, qt.IsNil)
	c.Assert(env.adaptor.lastGas.Uint64(), qt.Equals, uint64(1_100_000_000))

	r, err := env.cache.Get("r1")
	c.Assert(err, qt.IsNil)
	c.Assert(r.RequestStatus, qt.Equals, types.StatusCancelRequested)
	c.Assert(r.TxHashes[1], qt.Equals, types.TxAttempt{Hash: hash, Action: types.ActionCancel})
	c.Assert(env.watcher.last().action, qt.Equals, types.ActionCancel)
}

func TestCancelDerivedGasOracleWins(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, Config{})
	env.adaptor.gasFast = 5_000_000_000
	insertOrder(t, env, "r1", 1_000_000_000)

	_, err := env.mgr.Cancel(context.Background(), CancelParams{ClientRequestID: "r1"})
	c.Assert(err, qt.IsNil)
	c.Assert(env.adaptor.lastGas.Uint64(), qt.Equals, uint64(5_000_000_000))
}

func TestCancelCallerSuppliedGasUsedVerbatim(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, Config{})
	insertOrder(t, env, "r1", 1_000_000_000)

	// below the bump threshold, but caller-supplied prices are transmitted
	// exactly as given
	_, err := env.mgr.Cancel(context.Background(), CancelParams{
		ClientRequestID: "r1",
		GasPriceWei:     types.NewInt(1_050_000_000),
	})
	c.Assert(err, qt.IsNil)
	c.Assert(env.adaptor.lastGas.Uint64(), qt.Equals, uint64(1_050_000_000))
}

func TestCancelIdempotency(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, Config{})
	insertOrder(t, env, "r1", 1_000_000_000)
	ctx := context.Background()

	_, err := env.mgr.Cancel(ctx, CancelParams{ClientRequestID: "r1"})
	c.Assert(err, qt.IsNil)

	// a second cancel that does not outbid the first is rejected
	_, err = env.mgr.Cancel(ctx, CancelParams{
		ClientRequestID: "r1",
		GasPriceWei:     types.NewInt(1_100_000_000),
	})
	c.Assert(err, qt.ErrorIs, ErrCancelInProgress)

	// a higher bid goes through and keeps CANCEL_REQUESTED
	_, err = env.mgr.Cancel(ctx, CancelParams{
		ClientRequestID: "r1",
		GasPriceWei:     types.NewInt(2_000_000_000),
	})
	c.Assert(err, qt.IsNil)
	r, err := env.cache.Get("r1")
	c.Assert(err, qt.IsNil)
	c.Assert(r.RequestStatus, qt.Equals, types.StatusCancelRequested)
	c.Assert(r.TxHashes, qt.HasLen, 3)
}

func TestCancelWindowClosed(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, Config{})
	insertOrder(t, env, "r1", 1_000_000_000)
	env.adaptor.cancelErr = &chain.SubmitError{Type: chain.InvalidNonce, Message: "nonce too low"}

	_, err := env.mgr.Cancel(context.Background(), CancelParams{ClientRequestID: "r1"})
	c.Assert(err, qt.ErrorIs, ErrCancelWindowClosed)
}

func TestCancelEdgeCases(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	_, err := env.mgr.Cancel(ctx, CancelParams{ClientRequestID: "nope"})
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	// a request still waiting for its nonce cannot be cancelled yet
	c.Assert(env.cache.Add(types.NewRequest("no-nonce", types.RequestTypeOrder)), qt.IsNil)
	_, err = env.mgr.Cancel(ctx, CancelParams{ClientRequestID: "no-nonce"})
	c.Assert(err, qt.ErrorIs, ErrInsertPending)

	insertOrder(t, env, "done", 1_000_000_000)
	c.Assert(env.cache.Finalise("done", types.StatusSucceeded), qt.IsNil)
	_, err = env.mgr.Cancel(ctx, CancelParams{ClientRequestID: "done"})
	c.Assert(err, qt.ErrorIs, ErrAlreadyFinalized)
}

func TestCancelAllPartialFailure(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	insertOrder(t, env, "ok-1", 1_000_000_000)
	insertOrder(t, env, "ok-2", 1_000_000_000)

	// a nonce-less order cannot be cancelled and lands in failed_cancels
	c.Assert(env.cache.Add(types.NewRequest("stuck", types.RequestTypeOrder)), qt.IsNil)

	res := env.mgr.CancelAll(ctx, types.RequestTypeOrder)
	c.Assert(res.CancelRequested, qt.ContentEquals, []string{"ok-1", "ok-2"})
	c.Assert(res.FailedCancels, qt.DeepEquals, []string{"stuck"})
}

func TestAmend(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	insertOrder(t, env, "r1", 1_000_000_000)
	nonceBefore := env.adaptor.lastNonce

	hash, err := env.mgr.Amend(ctx, AmendParams{
		ClientRequestID: "r1",
		GasPriceWei:     types.NewInt(1_200_000_000),
		Price:           "51000",
	})
	c.Assert(err, qt.IsNil)
	// the replacement reuses the original nonce
	c.Assert(env.adaptor.lastNonce, qt.Equals, nonceBefore)

	r, err := env.cache.Get("r1")
	c.Assert(err, qt.IsNil)
	c.Assert(r.Order.Price, qt.Equals, "51000")
	c.Assert(r.Order.Quantity, qt.Equals, "0.1")
	c.Assert(r.TxHashes[1], qt.Equals, types.TxAttempt{Hash: hash, Action: types.ActionOrder})

	// only PENDING requests can be amended
	_, err = env.mgr.Cancel(ctx, CancelParams{ClientRequestID: "r1"})
	c.Assert(err, qt.IsNil)
	_, err = env.mgr.Amend(ctx, AmendParams{ClientRequestID: "r1", Price: "52000"})
	c.Assert(err, qt.ErrorIs, ErrNotPending)
}

func TestStatusCallbackEmitsOrderEvents(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, Config{})
	insertOrder(t, env, "r1", 1_000_000_000)
	_, err := env.mgr.Approve(context.Background(), ApproveParams{ClientRequestID: "a1", Symbol: "USDC"})
	c.Assert(err, qt.IsNil)

	env.mgr.OnRequestStatusUpdate("r1", types.StatusSucceeded, &chain.Receipt{Status: 1}, "0xtx-1")
	env.mgr.OnRequestStatusUpdate("a1", types.StatusSucceeded, &chain.Receipt{Status: 1}, "0xtx-2")
	// repeated and unknown updates are absorbed
	env.mgr.OnRequestStatusUpdate("r1", types.StatusSucceeded, &chain.Receipt{Status: 1}, "0xtx-1")
	env.mgr.OnRequestStatusUpdate("ghost", types.StatusFailed, nil, "")

	r, err := env.cache.Get("r1")
	c.Assert(err, qt.IsNil)
	c.Assert(r.RequestStatus, qt.Equals, types.StatusSucceeded)
	// only ORDER requests fan out to subscribers
	c.Assert(env.sink.events, qt.DeepEquals, []string{"ORDER:r1:SUCCEEDED"})
}

func TestOpenRequestsFilter(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t, Config{})
	insertOrder(t, env, "o1", 1_000_000_000)
	_, err := env.mgr.Approve(context.Background(), ApproveParams{ClientRequestID: "a1", Symbol: "USDC"})
	c.Assert(err, qt.IsNil)

	c.Assert(env.mgr.OpenRequests(""), qt.HasLen, 2)
	orders := env.mgr.OpenRequests(types.RequestTypeOrder)
	c.Assert(orders, qt.HasLen, 1)
	c.Assert(orders[0].ClientRequestID, qt.Equals, "o1")
}
