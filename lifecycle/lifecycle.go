/*
Package lifecycle implements the request lifecycle manager: the handlers
behind approve, transfer, insert-order, amend, cancel and cancel-all, plus
the status callback the poller drives terminal transitions through.

Every handler is idempotent on client_request_id and owns the full path from
validation through nonce reservation, venue submission and persistence.
*/
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/vortexdex/dexproxy/chain"
	"github.com/vortexdex/dexproxy/dispatch"
	"github.com/vortexdex/dexproxy/log"
	"github.com/vortexdex/dexproxy/storage"
	"github.com/vortexdex/dexproxy/types"
)

// OrderEventChannel is the event channel terminal ORDER outcomes are
// published on.
const OrderEventChannel = "ORDER"

// TxWatcher registers transaction hashes for receipt tracking. The status
// poller implements it.
type TxWatcher interface {
	AddForPolling(txHash, clientRequestID string, action types.ActionTag)
}

// EventSink receives terminal status notifications for fan-out to
// subscribers.
type EventSink interface {
	Emit(channel string, data any)
}

// Config carries the manager's validation settings.
type Config struct {
	// MaxGasPriceWei caps client-supplied gas prices; nil disables the cap.
	MaxGasPriceWei *types.BigInt
}

// Manager coordinates the request cache, the nonce dispatcher, the status
// poller and one venue adaptor.
type Manager struct {
	cfg        Config
	cache      *storage.Storage
	dispatcher *dispatch.Dispatcher
	watcher    TxWatcher
	adaptor    Adaptor
	events     EventSink
	whitelist  *Whitelist

	// bundle and builders are nil for non-bundling venues.
	bundle   *dispatch.BundleState
	builders *dispatch.BuilderClient
}

// New wires a Manager. events and whitelist may be nil; bundle and builders
// must be set together or not at all.
func New(cache *storage.Storage, dispatcher *dispatch.Dispatcher, watcher TxWatcher,
	adaptor Adaptor, cfg Config) *Manager {
	return &Manager{
		cfg:        cfg,
		cache:      cache,
		dispatcher: dispatcher,
		watcher:    watcher,
		adaptor:    adaptor,
	}
}

// WithEvents attaches the event sink used for terminal ORDER notifications.
func (m *Manager) WithEvents(events EventSink) *Manager {
	m.events = events
	return m
}

// WithWhitelist attaches the withdrawal whitelist.
func (m *Manager) WithWhitelist(w *Whitelist) *Manager {
	m.whitelist = w
	return m
}

// WithBundling attaches bundle state and builder endpoints for
// builder-targeted order flow.
func (m *Manager) WithBundling(bundle *dispatch.BundleState, builders *dispatch.BuilderClient) *Manager {
	m.bundle = bundle
	m.builders = builders
	return m
}

func (m *Manager) checkGasCap(gasPriceWei *types.BigInt) error {
	if m.cfg.MaxGasPriceWei == nil || gasPriceWei == nil {
		return nil
	}
	if gasPriceWei.Cmp(m.cfg.MaxGasPriceWei) > 0 {
		return fmt.Errorf("%w: %s > %s", ErrGasPriceTooHigh,
			gasPriceWei.String(), m.cfg.MaxGasPriceWei.String())
	}
	return nil
}

// submitFn is one of the adaptor's broadcast methods.
type submitFn func(ctx context.Context, r *types.Request, nonce uint64, gasPriceWei *types.BigInt) (*SubmitOutcome, error)

func (m *Manager) submitForType(rt types.RequestType) (submitFn, error) {
	switch rt {
	case types.RequestTypeApprove:
		return m.adaptor.SubmitApprove, nil
	case types.RequestTypeTransfer:
		return m.adaptor.SubmitTransfer, nil
	case types.RequestTypeOrder:
		return m.adaptor.SubmitOrder, nil
	case types.RequestTypeWrapUnwrap:
		return m.adaptor.SubmitWrapUnwrap, nil
	}
	return nil, fmt.Errorf("unknown request_type %q", rt)
}

// execute runs the shared insert path: register the request, reserve a
// nonce, submit through the venue and record the outcome. The nonce lock is
// held across signing and submission; it advances only when the venue
// accepted the payload (or already had it), so a rejected submission leaves
// the counter for the next handler.
func (m *Manager) execute(ctx context.Context, r *types.Request, gasPriceWei *types.BigInt, submit submitFn) (*SubmitOutcome, uint64, error) {
	if err := m.cache.Add(r); err != nil {
		if errors.Is(err, storage.ErrAlreadyKnown) {
			return nil, 0, fmt.Errorf("client_request_id=%s is already known: %w",
				r.ClientRequestID, ErrAlreadyKnown)
		}
		return nil, 0, err
	}

	lease := m.dispatcher.Acquire()
	defer lease.Release()
	nonce := lease.Nonce()

	outcome, err := submit(ctx, r, nonce, gasPriceWei)
	if err != nil {
		se := chain.AsSubmitError(err)
		if se.Type == chain.AlreadyKnown {
			// the payload reached the mempool on an earlier attempt, the
			// nonce is spent
			lease.Advance()
		}
		if finErr := m.cache.Finalise(r.ClientRequestID, types.StatusFailed); finErr != nil {
			log.Errorw(finErr, "cannot finalize failed request")
		}
		log.Warnw("submission rejected",
			"clientRequestId", r.ClientRequestID,
			"requestType", string(r.RequestType),
			"nonce", nonce,
			"errorType", string(se.Type),
			"error", se.Message)
		return nil, 0, err
	}
	lease.Advance()

	err = m.cache.Update(r.ClientRequestID, func(cached *types.Request) error {
		cached.Nonce = &nonce
		return cached.AppendAttempt(outcome.TxHash, types.ActionTag(r.RequestType), gasPriceWei)
	})
	if err != nil {
		return nil, 0, err
	}
	m.watcher.AddForPolling(outcome.TxHash, r.ClientRequestID, types.ActionTag(r.RequestType))
	log.Infow("request submitted",
		"clientRequestId", r.ClientRequestID,
		"requestType", string(r.RequestType),
		"nonce", nonce,
		"txHash", outcome.TxHash)
	return outcome, nonce, nil
}

// OnRequestStatusUpdate finalizes the request and publishes the outcome.
// It is the poller's callback and must tolerate repeated invocations for
// the same request.
func (m *Manager) OnRequestStatusUpdate(clientRequestID string, status types.RequestStatus, receipt *chain.Receipt, minedTxHash string) {
	r, err := m.cache.Get(clientRequestID)
	if err != nil || r.Finalised() {
		return
	}
	if err := m.cache.Finalise(clientRequestID, status); err != nil {
		log.Errorw(err, "cannot finalize request on status update")
		return
	}
	r, err = m.cache.Get(clientRequestID)
	if err != nil {
		return
	}
	if minedTxHash != "" {
		log.Infow("request finalized",
			"clientRequestId", clientRequestID,
			"status", string(status),
			"minedTxHash", minedTxHash)
	}
	if m.events != nil && r.RequestType == types.RequestTypeOrder {
		m.events.Emit(OrderEventChannel, r)
	}
}

// OpenRequests returns all non-finalized requests, optionally filtered by
// type (empty string means all).
func (m *Manager) OpenRequests(rt types.RequestType) []*types.Request {
	open := m.cache.OpenRequests()
	if rt == "" {
		return open
	}
	filtered := open[:0]
	for _, r := range open {
		if r.RequestType == rt {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// CacheStats reports the open and finalized request counts held by the
// cache.
func (m *Manager) CacheStats() (open, finalized int) {
	return m.cache.Count()
}

// RequestStatus looks up one request by client id.
func (m *Manager) RequestStatus(clientRequestID string) (*types.Request, error) {
	return m.cache.Get(clientRequestID)
}

// RegisterRecovered re-registers every transaction attempt of the recovered
// requests with the poller, so receipts that arrived while the process was
// down still finalize them.
func (m *Manager) RegisterRecovered(recovered []*types.Request) {
	registered := 0
	for _, r := range recovered {
		if r.Finalised() || r.Nonce == nil {
			continue
		}
		for _, attempt := range r.TxHashes {
			m.watcher.AddForPolling(attempt.Hash, r.ClientRequestID, attempt.Action)
			registered++
		}
	}
	if registered > 0 {
		log.Infow("recovered attempts re-registered for polling", "txs", registered)
	}
}
