package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vortexdex/dexproxy/log"
)

const (
	dialTimeout   = 10 * time.Second
	submitTimeout = 15 * time.Second
)

// EVMClient implements Client over one or more JSON-RPC endpoints. Calls go
// to the current endpoint; on transport failure the client rotates to the
// next one and retries once. Provider-side rejections (bad nonce, low fee)
// are not retried, every endpoint would answer the same.
type EVMClient struct {
	endpoints []string

	mu      sync.Mutex
	current int
	conns   map[int]*ethclient.Client

	// lastHeadOK is updated on every successful head query and feeds the
	// readiness endpoint.
	lastHeadOK time.Time
}

var _ Client = (*EVMClient)(nil)

// NewEVMClient dials the first reachable endpoint of the list.
func NewEVMClient(ctx context.Context, endpoints []string) (*EVMClient, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no rpc endpoints provided")
	}
	c := &EVMClient{
		endpoints: endpoints,
		conns:     make(map[int]*ethclient.Client),
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if _, err := c.conn(dialCtx); err != nil {
		return nil, fmt.Errorf("dial rpc endpoints: %w", err)
	}
	return c, nil
}

// conn returns a client for the current endpoint, dialing lazily. On dial
// failure it advances to the next endpoint until one answers or the list is
// exhausted.
func (c *EVMClient) conn(ctx context.Context) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var lastErr error
	for range c.endpoints {
		if conn, ok := c.conns[c.current]; ok {
			return conn, nil
		}
		conn, err := ethclient.DialContext(ctx, c.endpoints[c.current])
		if err == nil {
			c.conns[c.current] = conn
			return conn, nil
		}
		lastErr = err
		log.Warnw("rpc endpoint unreachable", "endpoint", c.endpoints[c.current], "error", err.Error())
		c.current = (c.current + 1) % len(c.endpoints)
	}
	return nil, fmt.Errorf("all rpc endpoints unreachable: %w", lastErr)
}

// rotate drops the current connection after a transport error.
func (c *EVMClient) rotate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[c.current]; ok {
		conn.Close()
		delete(c.conns, c.current)
	}
	c.current = (c.current + 1) % len(c.endpoints)
}

// SubmitTransaction decodes and broadcasts a signed raw transaction.
func (c *EVMClient) SubmitTransaction(ctx context.Context, signedPayload []byte) (*SubmitResult, error) {
	tx := new(gtypes.Transaction)
	if err := tx.UnmarshalBinary(signedPayload); err != nil {
		return nil, &SubmitError{Type: TransactionFailed, Message: fmt.Sprintf("decode raw tx: %v", err)}
	}
	conn, err := c.conn(ctx)
	if err != nil {
		return nil, &SubmitError{Type: SubmitTimeout, Message: err.Error()}
	}
	sendCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	if err := conn.SendTransaction(sendCtx, tx); err != nil {
		if sendCtx.Err() != nil {
			c.rotate()
			return nil, &SubmitError{Type: SubmitTimeout, Message: err.Error()}
		}
		return nil, classifySubmitError(err)
	}
	return &SubmitResult{Nonce: tx.Nonce(), TxHash: tx.Hash().Hex()}, nil
}

// TransactionReceipt implements Client.
func (c *EVMClient) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	conn, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	receipt, err := conn.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if containsErr(err, "not found") {
			return nil, ErrReceiptNotFound
		}
		c.rotate()
		return nil, fmt.Errorf("get receipt for %s: %w", txHash, err)
	}
	return &Receipt{
		TxHash:      txHash,
		Status:      receipt.Status,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// BlockByNumber implements Client.
func (c *EVMClient) BlockByNumber(ctx context.Context, num uint64) (*Block, error) {
	conn, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	block, err := conn.BlockByNumber(ctx, new(big.Int).SetUint64(num))
	if err != nil {
		if containsErr(err, "not found") {
			return nil, ErrBlockNotFound
		}
		c.rotate()
		return nil, fmt.Errorf("get block %d: %w", num, err)
	}
	out := &Block{
		Number:    block.NumberU64(),
		Timestamp: block.Time(),
		TxHashes:  make([]string, 0, len(block.Transactions())),
	}
	for _, tx := range block.Transactions() {
		out.TxHashes = append(out.TxHashes, tx.Hash().Hex())
	}
	return out, nil
}

// HeadBlock implements Client.
func (c *EVMClient) HeadBlock(ctx context.Context) (uint64, error) {
	conn, err := c.conn(ctx)
	if err != nil {
		return 0, err
	}
	head, err := conn.BlockNumber(ctx)
	if err != nil {
		c.rotate()
		return 0, fmt.Errorf("get head block: %w", err)
	}
	c.mu.Lock()
	c.lastHeadOK = time.Now()
	c.mu.Unlock()
	return head, nil
}

// SuggestGasPrice implements Client. The node oracle already targets
// next-block inclusion, which is the "Fast" tier the cancel path needs.
func (c *EVMClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	conn, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	price, err := conn.SuggestGasPrice(ctx)
	if err != nil {
		c.rotate()
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	return price, nil
}

// Healthy reports whether a head query succeeded within maxAge.
func (c *EVMClient) Healthy(maxAge time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.lastHeadOK.IsZero() && time.Since(c.lastHeadOK) < maxAge
}

// Close releases all open connections.
func (c *EVMClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, conn := range c.conns {
		conn.Close()
		delete(c.conns, i)
	}
}
