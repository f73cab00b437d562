package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"github.com/vortexdex/dexproxy/log"
	"github.com/vortexdex/dexproxy/types"
)

const (
	builderSubmitTimeout  = 5 * time.Second
	flashbotsSignatureHdr = "X-Flashbots-Signature"
	sendBundleMethod      = "eth_sendBundle"
)

// signatureRequiredHosts are builder hostnames that reject unsigned bundle
// submissions. Everything else gets the request without the header.
var signatureRequiredHosts = []string{
	"flashbots.net",
	"titanbuilder.xyz",
}

// BodySigner produces the flashbots-style request signature. The signing
// pool implements it.
type BodySigner interface {
	SignKeccak(ctx context.Context, payload []byte) ([]byte, error)
	Address() common.Address
}

// bundleParams is the eth_sendBundle parameter object. Raw transactions
// marshal as 0x-prefixed hex via types.HexBytes.
type bundleParams struct {
	Txs             []types.HexBytes `json:"txs"`
	BlockNumber     string           `json:"blockNumber"`
	ReplacementUUID string           `json:"replacementUuid,omitempty"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// BuilderClient submits bundles to a set of block-builder RPC endpoints.
type BuilderClient struct {
	endpoints []string
	rc        *resty.Client
	signer    BodySigner
}

// NewBuilderClient creates a client for the given builder endpoints. signer
// may be nil when no configured endpoint requires signatures.
func NewBuilderClient(endpoints []string, signer BodySigner) *BuilderClient {
	rc := resty.New().
		SetTimeout(builderSubmitTimeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")
	return &BuilderClient{endpoints: endpoints, rc: rc, signer: signer}
}

// Enabled reports whether any builder endpoint is configured.
func (c *BuilderClient) Enabled() bool {
	return c != nil && len(c.endpoints) > 0
}

func requiresSignature(endpoint string) bool {
	for _, host := range signatureRequiredHosts {
		if strings.Contains(endpoint, host) {
			return true
		}
	}
	return false
}

// signBody returns the signature header value for body: the sender address
// and the ECDSA signature over keccak256(body), colon-separated.
func (c *BuilderClient) signBody(ctx context.Context, body []byte) (string, error) {
	if c.signer == nil {
		return "", fmt.Errorf("builder endpoint requires a signature but no signer is configured")
	}
	sig, err := c.signer.SignKeccak(ctx, body)
	if err != nil {
		return "", fmt.Errorf("sign bundle body: %w", err)
	}
	return c.signer.Address().Hex() + ":" + hexutil.Encode(sig), nil
}

// SubmitBundle sends the raw transactions as one bundle targeting
// targetBlock to every configured builder in parallel. Any builder
// answering with a non-null result counts as acceptance; per-builder
// failures are logged and only reported if every builder rejects.
func (c *BuilderClient) SubmitBundle(ctx context.Context, targetBlock uint64, replacementUUID string, rawTxs []types.HexBytes) error {
	if len(c.endpoints) == 0 {
		return fmt.Errorf("no builder endpoints configured")
	}
	if len(rawTxs) == 0 {
		return fmt.Errorf("empty bundle")
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  sendBundleMethod,
		Params: []any{bundleParams{
			Txs:             rawTxs,
			BlockNumber:     hexutil.EncodeUint64(targetBlock),
			ReplacementUUID: replacementUUID,
		}},
	})
	if err != nil {
		return fmt.Errorf("encode bundle request: %w", err)
	}

	var (
		mu       sync.Mutex
		accepted int
		lastErr  error
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, endpoint := range c.endpoints {
		g.Go(func() error {
			err := c.submitOne(ctx, endpoint, body)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				log.Warnw("builder rejected bundle",
					"builder", endpoint, "targetBlock", targetBlock, "error", err.Error())
				return nil
			}
			accepted++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if accepted == 0 {
		return fmt.Errorf("all %d builders rejected bundle for block %d: %w",
			len(c.endpoints), targetBlock, lastErr)
	}
	log.Infow("bundle submitted",
		"targetBlock", targetBlock,
		"replacementUuid", replacementUUID,
		"txs", len(rawTxs),
		"acceptedBy", accepted)
	return nil
}

func (c *BuilderClient) submitOne(ctx context.Context, endpoint string, body []byte) error {
	req := c.rc.R().SetContext(ctx).SetBody(body)
	if requiresSignature(endpoint) {
		sig, err := c.signBody(ctx, body)
		if err != nil {
			return err
		}
		req.SetHeader(flashbotsSignatureHdr, sig)
	}
	resp, err := req.Post(endpoint)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
	}
	var out rpcResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return fmt.Errorf("decode builder response: %w", err)
	}
	if out.Error != nil {
		return fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message)
	}
	if len(out.Result) == 0 || string(out.Result) == "null" {
		return fmt.Errorf("builder returned null result")
	}
	return nil
}
