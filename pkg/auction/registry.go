// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/luxfi/dax/pkg/events"
	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/log"
	"github.com/luxfi/dax/pkg/metric"
	"github.com/luxfi/dax/pkg/token"
)

const metadataCacheSize = 256

// Registry owns every auction record of one deployment. All records
// sell into the same settlement token under one shared configuration.
type Registry struct {
	cfg Config

	mu      sync.RWMutex
	records map[ids.ID]*record
	byToken map[string]ids.ID

	tokens token.Backend
	meta   *token.Metadata

	hook    Hook
	stream  *events.Stream
	store   Persister
	metrics *metric.Metrics

	log log.Logger
}

// New creates a registry over a token backend
func New(cfg Config, tokens token.Backend, logger log.Logger) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, fmt.Errorf("%w: nil token backend", ErrInvalidConfiguration)
	}
	if logger == nil {
		logger = log.NoLog
	}

	cfg.StartingPrice = cfg.StartingPrice.Clone()

	return &Registry{
		cfg:     cfg,
		records: make(map[ids.ID]*record),
		byToken: make(map[string]ids.ID),
		tokens:  tokens,
		meta:    token.NewMetadata(tokens, metadataCacheSize),
		log:     logger,
	}, nil
}

// SetHook wires the kick/take callbacks. Call before serving traffic.
func (r *Registry) SetHook(h Hook) { r.hook = h }

// SetStream wires the lifecycle event stream
func (r *Registry) SetStream(s *events.Stream) { r.stream = s }

// SetPersister wires snapshot storage
func (r *Registry) SetPersister(p Persister) { r.store = p }

// SetMetrics wires the engine metrics
func (r *Registry) SetMetrics(m *metric.Metrics) { r.metrics = m }

// Account returns the identity that holds kicked balances
func (r *Registry) Account() string { return r.cfg.Name }

// WantToken returns the settlement token address
func (r *Registry) WantToken() string { return r.cfg.WantToken }

// Config returns a copy of the live configuration
func (r *Registry) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg := r.cfg
	cfg.StartingPrice = r.cfg.StartingPrice.Clone()
	return cfg
}

// find resolves a sell token to its record plus a consistent copy of
// the configuration the operation should run under.
func (r *Registry) find(fromToken string) (*record, Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byToken[fromToken]
	if !ok {
		return nil, Config{}, ErrNotEnabled
	}
	cfg := r.cfg
	cfg.StartingPrice = r.cfg.StartingPrice.Clone()
	return r.records[id], cfg, nil
}

// Enable puts a sell token up for auction. The receiver defaults to
// the registry receiver when empty.
func (r *Registry) Enable(ctx context.Context, fromToken, receiver string) (ids.ID, error) {
	if fromToken == "" || fromToken == r.cfg.WantToken {
		return ids.Empty, fmt.Errorf("%w: %q", ErrInvalidToken, fromToken)
	}
	if receiver == "" {
		receiver = r.cfg.Receiver
	}

	r.mu.RLock()
	_, exists := r.byToken[fromToken]
	r.mu.RUnlock()
	if exists {
		return ids.Empty, ErrAlreadyEnabled
	}

	// Resolve both scalers before taking the write lock; decimals may
	// hit the collaborator.
	fromScaler, err := r.meta.Scaler(ctx, fromToken)
	if err != nil {
		return ids.Empty, err
	}
	wantScaler, err := r.meta.Scaler(ctx, r.cfg.WantToken)
	if err != nil {
		return ids.Empty, err
	}

	id := ids.AuctionID(r.cfg.Name, fromToken, r.cfg.WantToken)

	r.mu.Lock()
	if _, exists := r.byToken[fromToken]; exists {
		r.mu.Unlock()
		return ids.Empty, ErrAlreadyEnabled
	}
	rc := &record{
		rec: Record{
			ID:               id,
			From:             TokenRef{Address: fromToken, Scaler: fromScaler},
			To:               TokenRef{Address: r.cfg.WantToken, Scaler: wantScaler},
			Receiver:         receiver,
			InitialAvailable: new(uint256.Int),
			CurrentAvailable: new(uint256.Int),
		},
		st: newStats(),
	}
	r.records[id] = rc
	r.byToken[fromToken] = id
	snapshot := rc.rec.clone()
	stats := rc.st.clone()
	r.mu.Unlock()

	r.persist(snapshot, stats)
	r.publish(&events.Enabled{
		BaseEvent: events.NewBase(events.TypeEnabled, id, uint64(time.Now().Unix())),
		FromToken: fromToken,
		ToToken:   r.cfg.WantToken,
		Receiver:  receiver,
	})
	if r.metrics != nil {
		r.metrics.AuctionsEnabled.Inc()
	}
	r.log.Info("auction enabled",
		"auction", id,
		"from", fromToken,
		"want", r.cfg.WantToken,
		"receiver", receiver)

	return id, nil
}

// Disable clears a sell token's record. A record inside a hook window
// cannot be pulled out from under the in-flight operation.
func (r *Registry) Disable(ctx context.Context, fromToken string) error {
	r.mu.Lock()
	id, ok := r.byToken[fromToken]
	if !ok {
		r.mu.Unlock()
		return ErrNotEnabled
	}
	rc := r.records[id]

	rc.mu.Lock()
	if rc.busy {
		rc.mu.Unlock()
		r.mu.Unlock()
		return ErrReentrantTake
	}
	rc.gone = true
	rc.mu.Unlock()

	delete(r.records, id)
	delete(r.byToken, fromToken)
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.DeleteAuction(id); err != nil {
			r.log.Error("failed to delete auction snapshot",
				"auction", id,
				"error", err)
		}
	}
	r.publish(&events.Disabled{
		BaseEvent: events.NewBase(events.TypeDisabled, id, uint64(time.Now().Unix())),
		FromToken: fromToken,
	})
	if r.metrics != nil {
		r.metrics.AuctionsDisabled.Inc()
	}
	r.log.Info("auction disabled",
		"auction", id,
		"from", fromToken)

	return nil
}

// Kickable reports how much of the sell token a kick would open at the
// given time, zero while the cooldown still runs. Pure read.
func (r *Registry) Kickable(ctx context.Context, fromToken string, now uint64) (*uint256.Int, error) {
	rc, cfg, err := r.find(fromToken)
	if err != nil {
		return nil, err
	}

	rc.mu.RLock()
	kickedAt := rc.rec.KickedAt
	gone := rc.gone
	rc.mu.RUnlock()
	if gone {
		return nil, ErrNotEnabled
	}

	if kickedAt != 0 && now <= kickedAt+cfg.cooldown() {
		return new(uint256.Int), nil
	}
	return r.resolveKickable(ctx, fromToken)
}

func (r *Registry) resolveKickable(ctx context.Context, fromToken string) (*uint256.Int, error) {
	if r.hook != nil {
		return r.hook.Kickable(ctx, fromToken)
	}
	return r.tokens.BalanceOf(ctx, fromToken, r.cfg.Name)
}

// Kick opens a new price window over the kickable lot and returns the
// amount now on auction.
func (r *Registry) Kick(ctx context.Context, fromToken string, now uint64) (*uint256.Int, error) {
	started := time.Now()

	rc, cfg, err := r.find(fromToken)
	if err != nil {
		return nil, err
	}

	rc.mu.Lock()
	if rc.gone {
		rc.mu.Unlock()
		return nil, ErrNotEnabled
	}
	if rc.busy {
		rc.mu.Unlock()
		return nil, ErrReentrantTake
	}
	if k := rc.rec.KickedAt; k != 0 && now <= k+cfg.cooldown() {
		rc.mu.Unlock()
		return nil, ErrTooSoon
	}
	rc.busy = true
	rc.mu.Unlock()

	available, err := r.resolveKickLot(ctx, fromToken)
	if err != nil {
		rc.clearBusy()
		return nil, err
	}
	if available == nil || available.IsZero() {
		rc.clearBusy()
		return nil, ErrNothingToKick
	}

	rc.mu.Lock()
	rc.rec.KickedAt = now
	rc.rec.InitialAvailable = available.Clone()
	rc.rec.CurrentAvailable = available.Clone()
	rc.st.Kicks++
	rc.st.LastKickAt = now
	snapshot := rc.rec.clone()
	stats := rc.st.clone()
	rc.busy = false
	rc.mu.Unlock()

	r.persist(snapshot, stats)
	r.publish(&events.Kicked{
		BaseEvent: events.NewBase(events.TypeKicked, snapshot.ID, now),
		FromToken: fromToken,
		Available: available.Dec(),
	})
	if r.metrics != nil {
		r.metrics.AuctionsKicked.Inc()
		r.metrics.KickDuration.Observe(time.Since(started).Seconds())
	}
	r.log.Info("auction kicked",
		"auction", snapshot.ID,
		"from", fromToken,
		"available", available.Dec(),
		"at", now)

	return available, nil
}

func (r *Registry) resolveKickLot(ctx context.Context, fromToken string) (*uint256.Int, error) {
	if r.hook != nil {
		return r.hook.AuctionKicked(ctx, fromToken)
	}
	return r.tokens.BalanceOf(ctx, fromToken, r.cfg.Name)
}

// Sweep pushes the registry's stray balance of a token to the
// receiver. Sell tokens inside a live window cannot be swept.
func (r *Registry) Sweep(ctx context.Context, tokenAddr string, now uint64) (*uint256.Int, error) {
	r.mu.RLock()
	receiver := r.cfg.Receiver
	windowLength := r.cfg.AuctionLength
	var auctionID ids.ID
	var live bool
	if id, ok := r.byToken[tokenAddr]; ok {
		auctionID = id
		rc := r.records[id]
		rc.mu.RLock()
		k := rc.rec.KickedAt
		live = k != 0 && now <= k+windowLength
		rc.mu.RUnlock()
	}
	r.mu.RUnlock()

	if live {
		return nil, ErrSweepActive
	}

	bal, err := r.tokens.BalanceOf(ctx, tokenAddr, r.cfg.Name)
	if err != nil {
		return nil, err
	}
	if bal.IsZero() {
		return new(uint256.Int), nil
	}

	if err := r.tokens.Transfer(ctx, tokenAddr, r.cfg.Name, receiver, bal); err != nil {
		return nil, err
	}

	r.publish(&events.Swept{
		BaseEvent: events.NewBase(events.TypeSwept, auctionID, now),
		Token:     tokenAddr,
		Amount:    bal.Dec(),
	})
	if r.metrics != nil {
		r.metrics.SweepsExecuted.Inc()
	}
	r.log.Info("swept",
		"token", tokenAddr,
		"amount", bal.Dec(),
		"receiver", receiver)

	return bal, nil
}

// SetStartingPrice updates the lot price used by future quotes
func (r *Registry) SetStartingPrice(price *uint256.Int) error {
	if price == nil || price.IsZero() {
		return fmt.Errorf("%w: zero starting price", ErrInvalidConfiguration)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.StartingPrice = price.Clone()
	return nil
}

// SetAuctionLength updates the price window length
func (r *Registry) SetAuctionLength(seconds uint64) error {
	if seconds == 0 {
		return fmt.Errorf("%w: zero auction length", ErrInvalidConfiguration)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.HasCooldown && seconds >= r.cfg.AuctionCooldown {
		return fmt.Errorf("%w: auction length must stay below cooldown", ErrInvalidConfiguration)
	}
	r.cfg.AuctionLength = seconds
	return nil
}

// SetAuctionCooldown updates the spacing between kicks
func (r *Registry) SetAuctionCooldown(seconds uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.cfg.HasCooldown {
		return fmt.Errorf("%w: registry runs without cooldown", ErrInvalidConfiguration)
	}
	if seconds <= r.cfg.AuctionLength {
		return fmt.Errorf("%w: cooldown must exceed auction length", ErrInvalidConfiguration)
	}
	r.cfg.AuctionCooldown = seconds
	return nil
}

// SetMinimumPrice sets or clears the WAD quote floor for a sell token
func (r *Registry) SetMinimumPrice(fromToken string, floor *uint256.Int) error {
	if !r.cfg.HasMinimumPrice {
		return fmt.Errorf("%w: registry runs without minimum price", ErrInvalidConfiguration)
	}
	rc, _, err := r.find(fromToken)
	if err != nil {
		return err
	}

	rc.mu.Lock()
	if rc.gone {
		rc.mu.Unlock()
		return ErrNotEnabled
	}
	if floor == nil {
		rc.rec.MinimumPrice = nil
	} else {
		rc.rec.MinimumPrice = floor.Clone()
	}
	snapshot := rc.rec.clone()
	stats := rc.st.clone()
	rc.mu.Unlock()

	r.persist(snapshot, stats)
	return nil
}

// GetAuction returns copies of a record and its stats by sell token
func (r *Registry) GetAuction(fromToken string) (Record, Stats, error) {
	rc, _, err := r.find(fromToken)
	if err != nil {
		return Record{}, Stats{}, err
	}

	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.gone {
		return Record{}, Stats{}, ErrNotEnabled
	}
	return rc.rec.clone(), rc.st.clone(), nil
}

// GetAuctionByID returns copies of a record and its stats by ID
func (r *Registry) GetAuctionByID(id ids.ID) (Record, Stats, error) {
	r.mu.RLock()
	rc, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return Record{}, Stats{}, ErrNotEnabled
	}

	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.gone {
		return Record{}, Stats{}, ErrNotEnabled
	}
	return rc.rec.clone(), rc.st.clone(), nil
}

// List returns copies of every record, sorted by sell token address
func (r *Registry) List() []Record {
	r.mu.RLock()
	recs := make([]*record, 0, len(r.records))
	for _, rc := range r.records {
		recs = append(recs, rc)
	}
	r.mu.RUnlock()

	out := make([]Record, 0, len(recs))
	for _, rc := range recs {
		rc.mu.RLock()
		if !rc.gone {
			out = append(out, rc.rec.clone())
		}
		rc.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].From.Address < out[j].From.Address
	})
	return out
}

// Len returns the number of enabled records
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// OpenWindows counts records inside a live price window
func (r *Registry) OpenWindows(now uint64) int {
	r.mu.RLock()
	windowLength := r.cfg.AuctionLength
	recs := make([]*record, 0, len(r.records))
	for _, rc := range r.records {
		recs = append(recs, rc)
	}
	r.mu.RUnlock()

	open := 0
	for _, rc := range recs {
		rc.mu.RLock()
		k := rc.rec.KickedAt
		if !rc.gone && k != 0 && now >= k && now <= k+windowLength && !rc.rec.CurrentAvailable.IsZero() {
			open++
		}
		rc.mu.RUnlock()
	}
	return open
}

// Restore loads a persisted record, typically at daemon startup
func (r *Registry) Restore(rec Record, st Stats) error {
	if rec.From.Address == "" || rec.From.Scaler == nil || rec.To.Scaler == nil {
		return fmt.Errorf("%w: incomplete record", ErrInvalidConfiguration)
	}
	if rec.ID.IsEmpty() {
		rec.ID = ids.AuctionID(r.cfg.Name, rec.From.Address, rec.To.Address)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byToken[rec.From.Address]; exists {
		return ErrAlreadyEnabled
	}
	r.records[rec.ID] = &record{rec: rec.clone(), st: st.clone()}
	r.byToken[rec.From.Address] = rec.ID

	r.log.Debug("auction restored",
		"auction", rec.ID,
		"from", rec.From.Address)
	return nil
}

func (r *Registry) persist(rec Record, st Stats) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveAuction(rec, st); err != nil {
		r.log.Error("failed to persist auction snapshot",
			"auction", rec.ID,
			"error", err)
	}
}

func (r *Registry) publish(e events.Event) {
	if r.stream != nil {
		r.stream.Publish(e)
	}
}
