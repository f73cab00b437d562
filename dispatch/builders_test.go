package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/vortexdex/dexproxy/types"
)

func builderServer(t *testing.T, handler func(w http.ResponseWriter, req rpcRequest, sig string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handler(w, req, r.Header.Get(flashbotsSignatureHdr))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmitBundleAnyAcceptance(t *testing.T) {
	c := qt.New(t)

	var acceptedReq rpcRequest
	accepting := builderServer(t, func(w http.ResponseWriter, req rpcRequest, _ string) {
		acceptedReq = req
		_, _ = w.Write([]byte(`{"result":{"bundleHash":"0x1"}}`))
	})
	rejecting := builderServer(t, func(w http.ResponseWriter, _ rpcRequest, _ string) {
		_, _ = w.Write([]byte(`{"result":null}`))
	})

	bc := NewBuilderClient([]string{accepting.URL, rejecting.URL}, nil)
	err := bc.SubmitBundle(context.Background(), 100, "uuid-1", []types.HexBytes{{0x01}, {0x02}})
	c.Assert(err, qt.IsNil)

	c.Assert(acceptedReq.Method, qt.Equals, sendBundleMethod)
	params, err := json.Marshal(acceptedReq.Params[0])
	c.Assert(err, qt.IsNil)
	var sent bundleParams
	c.Assert(json.Unmarshal(params, &sent), qt.IsNil)
	c.Assert(sent.BlockNumber, qt.Equals, "0x64")
	c.Assert(sent.ReplacementUUID, qt.Equals, "uuid-1")
	c.Assert(sent.Txs, qt.DeepEquals, []types.HexBytes{{0x01}, {0x02}})
}

func TestSubmitBundleAllReject(t *testing.T) {
	c := qt.New(t)
	rejecting := builderServer(t, func(w http.ResponseWriter, _ rpcRequest, _ string) {
		_, _ = w.Write([]byte(`{"error":{"code":-32000,"message":"bundle too old"}}`))
	})
	bc := NewBuilderClient([]string{rejecting.URL}, nil)
	err := bc.SubmitBundle(context.Background(), 100, "uuid-1", []types.HexBytes{{0x01}})
	c.Assert(err, qt.ErrorMatches, ".*all 1 builders rejected.*bundle too old.*")
}

func TestSubmitBundleValidation(t *testing.T) {
	c := qt.New(t)
	bc := NewBuilderClient(nil, nil)
	c.Assert(bc.Enabled(), qt.IsFalse)
	err := bc.SubmitBundle(context.Background(), 100, "", []types.HexBytes{{0x01}})
	c.Assert(err, qt.ErrorMatches, "no builder endpoints configured")

	bc = NewBuilderClient([]string{"http://localhost:0"}, nil)
	err = bc.SubmitBundle(context.Background(), 100, "", nil)
	c.Assert(err, qt.ErrorMatches, "empty bundle")
}

func TestRequiresSignature(t *testing.T) {
	c := qt.New(t)
	c.Assert(requiresSignature("https://relay.flashbots.net"), qt.IsTrue)
	c.Assert(requiresSignature("https://rpc.titanbuilder.xyz"), qt.IsTrue)
	c.Assert(requiresSignature("http://localhost:8545"), qt.IsFalse)
}
