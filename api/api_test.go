package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/gorilla/websocket"

	"github.com/vortexdex/dexproxy/dispatch"
	"github.com/vortexdex/dexproxy/events"
	"github.com/vortexdex/dexproxy/lifecycle"
	"github.com/vortexdex/dexproxy/storage"
	"github.com/vortexdex/dexproxy/types"
)

// stubAdaptor serves sequential tx hashes for every submission kind.
type stubAdaptor struct {
	mu        sync.Mutex
	seq       int
	submitErr error
}

func (s *stubAdaptor) Name() string { return "stub" }

func (s *stubAdaptor) GasPriceFast(context.Context) (*types.BigInt, error) {
	return types.NewInt(500_000_000), nil
}

func (s *stubAdaptor) submit() (*lifecycle.SubmitOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	s.seq++
	return &lifecycle.SubmitOutcome{
		TxHash: fmt.Sprintf("0xtx-%d", s.seq),
		RawTx:  fmt.Appendf(nil, "raw-%d", s.seq),
	}, nil
}

func (s *stubAdaptor) SubmitApprove(context.Context, *types.Request, uint64, *types.BigInt) (*lifecycle.SubmitOutcome, error) {
	return s.submit()
}

func (s *stubAdaptor) SubmitTransfer(context.Context, *types.Request, uint64, *types.BigInt) (*lifecycle.SubmitOutcome, error) {
	return s.submit()
}

func (s *stubAdaptor) SubmitOrder(context.Context, *types.Request, uint64, *types.BigInt) (*lifecycle.SubmitOutcome, error) {
	return s.submit()
}

func (s *stubAdaptor) SubmitWrapUnwrap(context.Context, *types.Request, uint64, *types.BigInt) (*lifecycle.SubmitOutcome, error) {
	return s.submit()
}

func (s *stubAdaptor) SubmitCancel(context.Context, *types.Request, uint64, *types.BigInt) (*lifecycle.SubmitOutcome, error) {
	return s.submit()
}

func (s *stubAdaptor) SignOrder(context.Context, *types.Request, uint64, *types.BigInt) (*lifecycle.SubmitOutcome, error) {
	return s.submit()
}

func (s *stubAdaptor) Resign(_ context.Context, rawTx []byte, newNonce uint64) ([]byte, string, error) {
	return rawTx, fmt.Sprintf("0xresigned-%d", newNonce), nil
}

type stubWatcher struct{}

func (stubWatcher) AddForPolling(string, string, types.ActionTag) {}

func newTestAPI(t *testing.T) (*API, *stubAdaptor) {
	t.Helper()
	cache, err := storage.New(nil, storage.Config{})
	qt.Assert(t, err, qt.IsNil)
	adaptor := &stubAdaptor{}
	mgr := lifecycle.New(cache, dispatch.NewDispatcher(cache, 42), stubWatcher{}, adaptor, lifecycle.Config{})
	dispatcher := events.NewDispatcher()
	t.Cleanup(dispatcher.Stop)
	a := &API{manager: mgr.WithEvents(dispatcher), events: dispatcher}
	a.initRouter()
	return a, adaptor
}

func doJSON(t *testing.T, a *API, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		qt.Assert(t, json.NewEncoder(&buf).Encode(body), qt.IsNil)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (int, string) {
	t.Helper()
	var resp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	qt.Assert(t, json.Unmarshal(w.Body.Bytes(), &resp), qt.IsNil)
	return resp.Error.Code, resp.Error.Message
}

func TestInsertOrderHappyPath(t *testing.T) {
	c := qt.New(t)
	a, _ := newTestAPI(t)

	w := doJSON(t, a, http.MethodPost, InsertOrderEndpoint, InsertOrderRequest{
		ClientRequestID: "r1",
		Symbol:          "BTC-USD",
		Side:            "BUY",
		Quantity:        "0.1",
		Price:           "50000",
		GasPriceWei:     types.NewInt(1_000_000_000),
	})
	c.Assert(w.Code, qt.Equals, http.StatusOK)

	var resp ResultResponse
	c.Assert(json.Unmarshal(w.Body.Bytes(), &resp), qt.IsNil)
	result := resp.Result.(map[string]any)
	c.Assert(result["tx_hash"], qt.Equals, "0xtx-1")
	c.Assert(result["nonce"], qt.Equals, float64(42))

	w = doJSON(t, a, http.MethodGet, RequestStatusEndpoint+"?client_request_id=r1", nil)
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	var r types.Request
	c.Assert(json.Unmarshal(w.Body.Bytes(), &r), qt.IsNil)
	c.Assert(r.RequestStatus, qt.Equals, types.StatusPending)
	c.Assert(*r.Nonce, qt.Equals, uint64(42))
}

func TestApproveAndTransfer(t *testing.T) {
	c := qt.New(t)
	a, _ := newTestAPI(t)

	w := doJSON(t, a, http.MethodPost, ApproveTokenEndpoint, ApproveRequest{
		ClientRequestID: "a1", Symbol: "USDC", Amount: "1000",
	})
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	var hashResp TxHashResponse
	c.Assert(json.Unmarshal(w.Body.Bytes(), &hashResp), qt.IsNil)
	c.Assert(hashResp.TxHash, qt.Equals, "0xtx-1")

	w = doJSON(t, a, http.MethodPost, TransferEndpoint, TransferRequest{
		ClientRequestID: "t1", Symbol: "USDC", Amount: "5", AddressTo: "0xdest",
	})
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	c.Assert(json.Unmarshal(w.Body.Bytes(), &hashResp), qt.IsNil)
	c.Assert(hashResp.TxHash, qt.Equals, "0xtx-2")
}

func TestDuplicateClientRequestID(t *testing.T) {
	c := qt.New(t)
	a, _ := newTestAPI(t)

	body := ApproveRequest{ClientRequestID: "dup", Symbol: "USDC", Amount: "1"}
	w := doJSON(t, a, http.MethodPost, ApproveTokenEndpoint, body)
	c.Assert(w.Code, qt.Equals, http.StatusOK)

	w = doJSON(t, a, http.MethodPost, ApproveTokenEndpoint, body)
	c.Assert(w.Code, qt.Equals, http.StatusBadRequest)
	code, msg := decodeError(t, w)
	c.Assert(code, qt.Equals, ErrAlreadyKnown.Code)
	c.Assert(msg, qt.Contains, "already known")
}

func TestMalformedBody(t *testing.T) {
	c := qt.New(t)
	a, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, ApproveTokenEndpoint, strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, req)
	c.Assert(w.Code, qt.Equals, http.StatusBadRequest)
	code, _ := decodeError(t, w)
	c.Assert(code, qt.Equals, ErrMalformedBody.Code)
}

func TestRequestStatusNotFound(t *testing.T) {
	c := qt.New(t)
	a, _ := newTestAPI(t)

	w := doJSON(t, a, http.MethodGet, RequestStatusEndpoint+"?client_request_id=ghost", nil)
	c.Assert(w.Code, qt.Equals, http.StatusNotFound)
	code, _ := decodeError(t, w)
	c.Assert(code, qt.Equals, ErrRequestNotFound.Code)

	w = doJSON(t, a, http.MethodGet, RequestStatusEndpoint, nil)
	c.Assert(w.Code, qt.Equals, http.StatusBadRequest)
	code, _ = decodeError(t, w)
	c.Assert(code, qt.Equals, ErrMalformedParam.Code)
}

func TestCancelRequest(t *testing.T) {
	c := qt.New(t)
	a, _ := newTestAPI(t)

	w := doJSON(t, a, http.MethodPost, InsertOrderEndpoint, InsertOrderRequest{
		ClientRequestID: "r1", Symbol: "BTC-USD", Side: "SELL", Quantity: "1", Price: "100",
	})
	c.Assert(w.Code, qt.Equals, http.StatusOK)

	w = doJSON(t, a, http.MethodDelete, CancelRequestEndpoint, CancelRequest{ClientRequestID: "r1"})
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	var resp ResultResponse
	c.Assert(json.Unmarshal(w.Body.Bytes(), &resp), qt.IsNil)
	c.Assert(resp.Result.(map[string]any)["tx_hash"], qt.Equals, "0xtx-2")

	w = doJSON(t, a, http.MethodDelete, CancelRequestEndpoint, CancelRequest{ClientRequestID: "ghost"})
	c.Assert(w.Code, qt.Equals, http.StatusNotFound)
}

func TestCancelAll(t *testing.T) {
	c := qt.New(t)
	a, _ := newTestAPI(t)

	for _, id := range []string{"r1", "r2"} {
		w := doJSON(t, a, http.MethodPost, InsertOrderEndpoint, InsertOrderRequest{
			ClientRequestID: id, Symbol: "BTC-USD", Side: "BUY", Quantity: "1", Price: "100",
		})
		c.Assert(w.Code, qt.Equals, http.StatusOK)
	}

	w := doJSON(t, a, http.MethodDelete, CancelAllEndpoint, CancelAllRequest{RequestType: types.RequestTypeOrder})
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	var res lifecycle.CancelAllResult
	c.Assert(json.Unmarshal(w.Body.Bytes(), &res), qt.IsNil)
	c.Assert(res.CancelRequested, qt.ContentEquals, []string{"r1", "r2"})
	c.Assert(res.FailedCancels, qt.HasLen, 0)

	w = doJSON(t, a, http.MethodDelete, CancelAllEndpoint, CancelAllRequest{RequestType: "BOGUS"})
	c.Assert(w.Code, qt.Equals, http.StatusBadRequest)
	code, _ := decodeError(t, w)
	c.Assert(code, qt.Equals, ErrUnknownRequestType.Code)
}

func TestOpenRequests(t *testing.T) {
	c := qt.New(t)
	a, _ := newTestAPI(t)

	w := doJSON(t, a, http.MethodGet, OpenRequestsEndpoint, nil)
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	c.Assert(strings.TrimSpace(w.Body.String()), qt.Equals, "[]")

	doJSON(t, a, http.MethodPost, ApproveTokenEndpoint, ApproveRequest{
		ClientRequestID: "a1", Symbol: "USDC", Amount: "1",
	})
	doJSON(t, a, http.MethodPost, InsertOrderEndpoint, InsertOrderRequest{
		ClientRequestID: "r1", Symbol: "BTC-USD", Side: "BUY", Quantity: "1", Price: "100",
	})

	w = doJSON(t, a, http.MethodGet, OpenRequestsEndpoint+"?request_type=ORDER", nil)
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	var open []*types.Request
	c.Assert(json.Unmarshal(w.Body.Bytes(), &open), qt.IsNil)
	c.Assert(open, qt.HasLen, 1)
	c.Assert(open[0].ClientRequestID, qt.Equals, "r1")

	w = doJSON(t, a, http.MethodGet, OpenRequestsEndpoint+"?request_type=BOGUS", nil)
	c.Assert(w.Code, qt.Equals, http.StatusBadRequest)
}

func TestStatusEndpoint(t *testing.T) {
	c := qt.New(t)
	a, _ := newTestAPI(t)

	doJSON(t, a, http.MethodPost, ApproveTokenEndpoint, ApproveRequest{
		ClientRequestID: "a1", Symbol: "USDC", Amount: "1",
	})

	w := doJSON(t, a, http.MethodGet, StatusEndpoint, nil)
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	var status StatusResponse
	c.Assert(json.Unmarshal(w.Body.Bytes(), &status), qt.IsNil)
	c.Assert(status.Status, qt.Equals, "ok")
	c.Assert(status.OpenRequests, qt.DeepEquals, map[string]int{"APPROVE": 1})

	a.health = func() error { return fmt.Errorf("rpc endpoint down") }
	w = doJSON(t, a, http.MethodGet, StatusEndpoint, nil)
	c.Assert(w.Code, qt.Equals, http.StatusServiceUnavailable)
	code, msg := decodeError(t, w)
	c.Assert(code, qt.Equals, ErrVenueUnavailable.Code)
	c.Assert(msg, qt.Contains, "rpc endpoint down")
}

func TestWebsocketSubscription(t *testing.T) {
	c := qt.New(t)
	a, _ := newTestAPI(t)

	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + WebsocketEndpoint
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	c.Assert(err, qt.IsNil)
	defer func() { _ = conn.Close() }()

	err = conn.WriteJSON(wsRequest{JSONRPC: "2.0", ID: 1, Method: "subscribe", Params: wsParams{Channel: "ORDER"}})
	c.Assert(err, qt.IsNil)
	var ack wsResponse
	c.Assert(conn.ReadJSON(&ack), qt.IsNil)
	c.Assert(ack.Result, qt.Equals, true)
	c.Assert(ack.Error, qt.IsNil)

	a.events.Emit("ORDER", map[string]string{"client_request_id": "r1", "request_status": "SUCCEEDED"})

	var note events.Notification
	c.Assert(conn.ReadJSON(&note), qt.IsNil)
	c.Assert(note.Method, qt.Equals, "subscription")
	c.Assert(note.Params.Channel, qt.Equals, "ORDER")

	// unknown channel is rejected
	err = conn.WriteJSON(wsRequest{JSONRPC: "2.0", ID: 2, Method: "subscribe", Params: wsParams{Channel: "NOPE"}})
	c.Assert(err, qt.IsNil)
	c.Assert(conn.ReadJSON(&ack), qt.IsNil)
	c.Assert(ack.Error, qt.IsNotNil)
}
