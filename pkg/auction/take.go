// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"github.com/luxfi/dax/pkg/events"
	"github.com/luxfi/dax/pkg/fixedpoint"
	"github.com/luxfi/dax/pkg/scale"
)

// Take fills up to maxAmount of a kicked auction at the current quote.
// The taker pays the settlement amount to the record's receiver and
// the filled sell tokens go to recipient (the taker when empty). It
// returns the amount actually taken, which is capped at what is left.
//
// The record is validated and priced under its lock, then flagged busy
// while hooks and transfers run unlocked. Failures between the two
// transfer legs and in the post-take hook are unwound with
// compensating transfers so a failed take never moves net value.
func (r *Registry) Take(
	ctx context.Context,
	fromToken string,
	maxAmount *uint256.Int,
	taker string,
	recipient string,
	now uint64,
) (*uint256.Int, error) {
	started := time.Now()

	if taker == "" {
		return nil, fmt.Errorf("empty taker account")
	}
	if recipient == "" {
		recipient = taker
	}
	if maxAmount == nil {
		maxAmount = new(uint256.Int)
	}

	rc, cfg, err := r.find(fromToken)
	if err != nil {
		return nil, r.rejectTake(err)
	}

	// Validate and price under the record lock.
	rc.mu.Lock()
	if rc.gone {
		rc.mu.Unlock()
		return nil, r.rejectTake(ErrNotEnabled)
	}
	if rc.busy {
		rc.mu.Unlock()
		return nil, r.rejectTake(ErrReentrantTake)
	}
	kickedAt := rc.rec.KickedAt
	if kickedAt == 0 || now < kickedAt {
		rc.mu.Unlock()
		return nil, r.rejectTake(ErrNotKicked)
	}
	if now-kickedAt > cfg.AuctionLength {
		rc.mu.Unlock()
		return nil, r.rejectTake(ErrWindowExpired)
	}
	if rc.rec.CurrentAvailable.IsZero() && cfg.AllowEmptyTake {
		rc.mu.Unlock()
		return new(uint256.Int), nil
	}

	amountTaken := fixedpoint.Min(rc.rec.CurrentAvailable, maxAmount)

	unit, err := unitPriceAt(cfg, kickedAt, rc.rec.InitialAvailable, rc.rec.From.Scaler, now)
	if err != nil {
		rc.mu.Unlock()
		return nil, err
	}
	needed, err := amountNeeded(amountTaken, unit, rc.rec.From.Scaler, rc.rec.To.Scaler)
	if err != nil {
		rc.mu.Unlock()
		return nil, err
	}
	if needed.IsZero() {
		rc.mu.Unlock()
		return nil, r.rejectTake(ErrZeroNeeded)
	}
	if cfg.HasMinimumPrice && rc.rec.MinimumPrice != nil &&
		!rc.rec.MinimumPrice.IsZero() && unit.Lt(rc.rec.MinimumPrice) {
		rc.mu.Unlock()
		return nil, r.rejectTake(ErrBelowMinimum)
	}

	auctionID := rc.rec.ID
	receiver := rc.rec.Receiver
	toToken := rc.rec.To.Address
	toScaler := rc.rec.To.Scaler
	rc.busy = true
	rc.mu.Unlock()

	// Hooks and transfers run without the lock; the busy flag keeps
	// racing mutators out.
	if r.hook != nil {
		if err := r.hook.PreTake(ctx, fromToken, amountTaken.Clone()); err != nil {
			rc.clearBusy()
			return nil, fmt.Errorf("pre-take hook: %w", err)
		}
	}

	if err := r.tokens.Transfer(ctx, toToken, taker, receiver, needed); err != nil {
		rc.clearBusy()
		return nil, fmt.Errorf("settlement transfer: %w", err)
	}
	if err := r.tokens.Transfer(ctx, fromToken, r.cfg.Name, recipient, amountTaken); err != nil {
		// Return the taker's payment before surfacing the failure.
		if rerr := r.tokens.Transfer(ctx, toToken, receiver, taker, needed); rerr != nil {
			r.log.Error("compensating settlement reversal failed",
				"auction", auctionID,
				"token", toToken,
				"error", rerr)
		}
		rc.clearBusy()
		return nil, fmt.Errorf("payout transfer: %w", err)
	}

	// Commit the fill.
	rc.mu.Lock()
	prevLastTake := rc.st.LastTakeAt
	newAvailable := new(uint256.Int).Sub(rc.rec.CurrentAvailable, amountTaken)
	rc.rec.CurrentAvailable = newAvailable
	rc.st.Takes++
	rc.st.TotalSold.Add(rc.st.TotalSold, amountTaken)
	rc.st.TotalProceeds.Add(rc.st.TotalProceeds, needed)
	rc.st.LastTakeAt = now
	rc.mu.Unlock()

	if r.hook != nil {
		if err := r.hook.PostTake(ctx, toToken, newAvailable.Clone()); err != nil {
			r.rollbackTake(ctx, rc, fromToken, toToken, taker, recipient, receiver, amountTaken, needed, prevLastTake)
			return nil, fmt.Errorf("post-take hook: %w", err)
		}
	}

	rc.mu.Lock()
	rc.busy = false
	snapshot := rc.rec.clone()
	stats := rc.st.clone()
	rc.mu.Unlock()

	r.persist(snapshot, stats)
	r.publish(&events.Taken{
		BaseEvent:   events.NewBase(events.TypeTaken, auctionID, now),
		FromToken:   fromToken,
		Taker:       taker,
		AmountTaken: amountTaken.Dec(),
		AmountPaid:  needed.Dec(),
		Remaining:   newAvailable.Dec(),
	})
	if r.metrics != nil {
		r.metrics.TakesSettled.Inc()
		r.metrics.TakeDuration.Observe(time.Since(started).Seconds())
		r.metrics.SettlementSize.Observe(wholeUnits(needed, toScaler))
	}
	r.log.Info("take settled",
		"auction", auctionID,
		"taker", taker,
		"amount", amountTaken.Dec(),
		"paid", needed.Dec(),
		"remaining", newAvailable.Dec())

	return amountTaken, nil
}

// rollbackTake reverses both transfer legs and restores the record
// after a post-take hook failure.
func (r *Registry) rollbackTake(
	ctx context.Context,
	rc *record,
	fromToken, toToken, taker, recipient, receiver string,
	amountTaken, needed *uint256.Int,
	prevLastTake uint64,
) {
	if err := r.tokens.Transfer(ctx, fromToken, recipient, r.cfg.Name, amountTaken); err != nil {
		r.log.Error("rollback payout reversal failed",
			"token", fromToken,
			"error", err)
	}
	if err := r.tokens.Transfer(ctx, toToken, receiver, taker, needed); err != nil {
		r.log.Error("rollback settlement reversal failed",
			"token", toToken,
			"error", err)
	}

	rc.mu.Lock()
	rc.rec.CurrentAvailable.Add(rc.rec.CurrentAvailable, amountTaken)
	rc.st.Takes--
	rc.st.TotalSold.Sub(rc.st.TotalSold, amountTaken)
	rc.st.TotalProceeds.Sub(rc.st.TotalProceeds, needed)
	rc.st.LastTakeAt = prevLastTake
	rc.busy = false
	rc.mu.Unlock()
}

func (r *Registry) rejectTake(err error) error {
	if r.metrics != nil {
		r.metrics.TakesRejected.WithLabelValues(takeRejectReason(err)).Inc()
	}
	return err
}

func takeRejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotEnabled):
		return "not_enabled"
	case errors.Is(err, ErrNotKicked):
		return "not_kicked"
	case errors.Is(err, ErrWindowExpired):
		return "window_expired"
	case errors.Is(err, ErrZeroNeeded):
		return "zero_needed"
	case errors.Is(err, ErrBelowMinimum):
		return "below_minimum"
	case errors.Is(err, ErrReentrantTake):
		return "busy"
	default:
		return "other"
	}
}

// wholeUnits renders a raw amount as float whole tokens for histogram
// observation. Precision loss is fine here.
func wholeUnits(raw, scaler *uint256.Int) float64 {
	wad, err := scale.ToWad(raw, scaler)
	if err != nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(wad.ToBig()).Float64()
	return f / 1e18
}
