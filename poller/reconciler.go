package poller

import (
	"context"
	"errors"
	"time"

	"github.com/vortexdex/dexproxy/chain"
	"github.com/vortexdex/dexproxy/log"
	"github.com/vortexdex/dexproxy/types"
)

const reconcileInterval = time.Second

// reconcileLoop finalizes bundle requests whose target block has passed
// without including any of their transactions. Receipt polling never catches
// these: a transaction the builder dropped has no receipt to find.
func (p *Poller) reconcileLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reconcileTargetBlocks(ctx)
		}
	}
}

func (p *Poller) reconcileTargetBlocks(ctx context.Context) {
	head, err := p.client.HeadBlock(ctx)
	if err != nil {
		log.Warnw("head block query failed", "error", err.Error())
		return
	}

	blocks := make(map[uint64]*chain.Block)
	for _, r := range p.requests.OpenRequests() {
		target := r.DexSpecific.TargetedBlockNum
		if target == 0 || target > head {
			continue
		}
		block, ok := blocks[target]
		if !ok {
			block, err = p.client.BlockByNumber(ctx, target)
			if err != nil {
				if !errors.Is(err, chain.ErrBlockNotFound) {
					log.Warnw("target block query failed", "block", target, "error", err.Error())
				}
				continue
			}
			blocks[target] = block
		}
		if includedInBlock(r, block) {
			// receipt polling will classify it
			continue
		}
		if p.cfg.MissGrace > 0 && time.Since(time.Unix(int64(block.Timestamp), 0)) < p.cfg.MissGrace {
			// late receipts can still arrive within the grace window
			continue
		}
		log.Infow("request missed target block",
			"clientRequestId", r.ClientRequestID, "targetBlock", target, "head", head)
		p.callback.OnRequestStatusUpdate(r.ClientRequestID, types.StatusFailed, nil, "")
		p.dropRequestHashes(r)
	}
}

func includedInBlock(r *types.Request, block *chain.Block) bool {
	for _, hash := range block.TxHashes {
		if r.HasAttempt(hash) {
			return true
		}
	}
	return false
}

// dropRequestHashes removes every tracked hash belonging to the request.
func (p *Poller) dropRequestHashes(r *types.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, attempt := range r.TxHashes {
		delete(p.tracked, attempt.Hash)
	}
}
