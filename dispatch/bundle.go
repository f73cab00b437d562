package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/vortexdex/dexproxy/log"
	"github.com/vortexdex/dexproxy/types"
)

// Resigner rebuilds and re-signs a raw transaction at a different nonce.
// The venue adaptor implements it.
type Resigner interface {
	Resign(ctx context.Context, rawTx []byte, newNonce uint64) (raw []byte, txHash string, err error)
}

// BundleMember is one signed transaction staged for a target block, keyed
// back to the request that produced it.
type BundleMember struct {
	ClientRequestID string
	Nonce           uint64
	RawTx           types.HexBytes
	TxHash          string
}

// Renumbered reports one member whose nonce moved during a bundle cancel.
// The lifecycle manager applies these to the request cache.
type Renumbered struct {
	ClientRequestID string
	Nonce           uint64
	TxHash          string
}

// BundleState tracks the transactions staged for the current target block.
// A block producer either includes the whole ordered group in that block or
// none of it, so cancelling a member means rewriting the group: every later
// member shifts down one nonce, gets re-signed, and the group is resubmitted
// under the same replacement uuid so builders swap it atomically.
type BundleState struct {
	mu          sync.Mutex
	targetBlock uint64
	uuid        string
	members     []*BundleMember
}

// NewBundleState returns an empty bundle tracker.
func NewBundleState() *BundleState {
	return &BundleState{}
}

// Stage adds a member targeting targetBlock. Moving to a new target block
// discards the previous group and mints a fresh replacement uuid; builders
// drop stale-block bundles on their own.
func (b *BundleState) Stage(targetBlock uint64, m BundleMember) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if targetBlock != b.targetBlock || b.uuid == "" {
		b.targetBlock = targetBlock
		b.uuid = uuid.NewString()
		b.members = b.members[:0]
		log.Debugw("new bundle opened", "targetBlock", targetBlock, "replacementUuid", b.uuid)
	}
	b.members = append(b.members, &m)
}

// Contains reports whether the request has a transaction in the current
// bundle.
func (b *BundleState) Contains(clientRequestID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.find(clientRequestID) >= 0
}

func (b *BundleState) find(clientRequestID string) int {
	for i, m := range b.members {
		if m.ClientRequestID == clientRequestID {
			return i
		}
	}
	return -1
}

// CancelMember removes the request's transaction from the bundle and shifts
// every higher-nonce member down by one, re-signing each through resign. It
// returns the renumbered members so the caller can update the request cache
// before resubmitting.
func (b *BundleState) CancelMember(ctx context.Context, clientRequestID string, resign Resigner) ([]Renumbered, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.find(clientRequestID)
	if idx < 0 {
		return nil, fmt.Errorf("request %s is not in the current bundle", clientRequestID)
	}
	removed := b.members[idx]

	// re-sign survivors into a scratch list first, so a failure leaves the
	// bundle untouched
	type resigned struct {
		member *BundleMember
		nonce  uint64
		raw    []byte
		hash   string
	}
	var scratch []resigned
	for _, m := range b.members {
		if m.Nonce <= removed.Nonce {
			continue
		}
		newNonce := m.Nonce - 1
		raw, hash, err := resign.Resign(ctx, m.RawTx, newNonce)
		if err != nil {
			return nil, fmt.Errorf("re-sign bundle member %s at nonce %d: %w",
				m.ClientRequestID, newNonce, err)
		}
		scratch = append(scratch, resigned{member: m, nonce: newNonce, raw: raw, hash: hash})
	}

	b.members = append(b.members[:idx], b.members[idx+1:]...)
	var renumbered []Renumbered
	for _, r := range scratch {
		r.member.Nonce = r.nonce
		r.member.RawTx = r.raw
		r.member.TxHash = r.hash
		renumbered = append(renumbered, Renumbered{
			ClientRequestID: r.member.ClientRequestID,
			Nonce:           r.nonce,
			TxHash:          r.hash,
		})
	}
	log.Infow("bundle member cancelled",
		"clientRequestId", clientRequestID,
		"renumbered", len(renumbered),
		"replacementUuid", b.uuid)
	return renumbered, nil
}

// AmendMember swaps the request's raw transaction in place. Nonce and the
// rest of the group are untouched.
func (b *BundleState) AmendMember(clientRequestID string, rawTx []byte, txHash string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.find(clientRequestID)
	if idx < 0 {
		return fmt.Errorf("request %s is not in the current bundle", clientRequestID)
	}
	b.members[idx].RawTx = rawTx
	b.members[idx].TxHash = txHash
	return nil
}

// Snapshot returns the target block, replacement uuid and ordered raw
// transactions of the current bundle.
func (b *BundleState) Snapshot() (targetBlock uint64, replacementUUID string, rawTxs []types.HexBytes) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rawTxs = make([]types.HexBytes, len(b.members))
	for i, m := range b.members {
		rawTxs[i] = m.RawTx
	}
	return b.targetBlock, b.uuid, rawTxs
}

// Members returns a copy of the current member list, in staging order.
func (b *BundleState) Members() []BundleMember {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BundleMember, len(b.members))
	for i, m := range b.members {
		out[i] = *m
	}
	return out
}
