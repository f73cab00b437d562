// Package signer runs transaction signing on a fixed-size worker pool.
// ECDSA over keccak is the one CPU-heavy step in the request path, so it is
// kept off the handler goroutines and bounded by maxSignatureGenerators.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vortexdex/dexproxy/log"
)

// job is one unit of signing work. Exactly one of tx or digest is set.
type job struct {
	tx      *gtypes.Transaction
	chainID *big.Int
	digest  []byte
	out     chan result
}

type result struct {
	signedTx *gtypes.Transaction
	raw      []byte
	sig      []byte
	err      error
}

// Pool is a fixed-size signing worker pool bound to one account key.
type Pool struct {
	key     *ecdsa.PrivateKey
	address common.Address
	workers int

	jobs      chan job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
}

// NewPool creates a pool of the given size for the hex-encoded private key.
func NewPool(privKeyHex string, workers int) (*Pool, error) {
	if workers <= 0 {
		workers = 1
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer private key: %w", err)
	}
	return &Pool{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		workers: workers,
		jobs:    make(chan job),
	}, nil
}

// Address returns the externally-owned account address of the pool key.
func (p *Pool) Address() common.Address {
	return p.address
}

// Start launches the workers. Safe to call once; subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx)
		}
		log.Infow("signer pool started", "workers", p.workers, "address", p.address.Hex())
	})
}

// Stop cancels the workers and waits for them to drain.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			j.out <- p.run(j)
		}
	}
}

func (p *Pool) run(j job) result {
	if j.tx != nil {
		signed, err := gtypes.SignTx(j.tx, gtypes.LatestSignerForChainID(j.chainID), p.key)
		if err != nil {
			return result{err: fmt.Errorf("sign tx: %w", err)}
		}
		raw, err := signed.MarshalBinary()
		if err != nil {
			return result{err: fmt.Errorf("encode signed tx: %w", err)}
		}
		return result{signedTx: signed, raw: raw}
	}
	sig, err := crypto.Sign(j.digest, p.key)
	if err != nil {
		return result{err: fmt.Errorf("sign digest: %w", err)}
	}
	return result{sig: sig}
}

func (p *Pool) submit(ctx context.Context, j job) (result, error) {
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
	select {
	case res := <-j.out:
		return res, res.err
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

// SignTx signs tx for chainID on a pool worker and returns the signed
// transaction together with its raw RLP encoding.
func (p *Pool) SignTx(ctx context.Context, tx *gtypes.Transaction, chainID *big.Int) (*gtypes.Transaction, []byte, error) {
	res, err := p.submit(ctx, job{tx: tx, chainID: chainID, out: make(chan result, 1)})
	if err != nil {
		return nil, nil, err
	}
	return res.signedTx, res.raw, nil
}

// SignDigest signs a 32-byte digest on a pool worker.
func (p *Pool) SignDigest(ctx context.Context, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	res, err := p.submit(ctx, job{digest: digest, out: make(chan result, 1)})
	if err != nil {
		return nil, err
	}
	return res.sig, nil
}

// SignKeccak hashes payload with keccak256 and signs the digest.
func (p *Pool) SignKeccak(ctx context.Context, payload []byte) ([]byte, error) {
	return p.SignDigest(ctx, crypto.Keccak256(payload))
}
