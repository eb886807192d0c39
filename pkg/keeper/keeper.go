// Package keeper automates kicks against a running auction daemon. It
// polls the daemon's HTTP API, asks every enabled auction how much a
// kick would open, and kicks the ones past their cooldown.
package keeper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/luxfi/dax/pkg/log"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultTimeout  = 10 * time.Second

	// maxBackoffShift caps the error backoff at 8x the poll interval.
	maxBackoffShift = 3
)

// Config holds the keeper's connection settings.
type Config struct {
	// DaemonURL is the base URL of the auction daemon.
	DaemonURL string

	// Interval is the poll spacing, DefaultInterval when zero.
	Interval time.Duration

	// Timeout bounds each HTTP request, DefaultTimeout when zero.
	Timeout time.Duration
}

// Keeper is a polling kick client.
type Keeper struct {
	cfg    Config
	client *http.Client
	log    log.Logger
}

// New creates a keeper against a daemon URL
func New(cfg Config, logger log.Logger) (*Keeper, error) {
	if cfg.DaemonURL == "" {
		return nil, fmt.Errorf("empty daemon url")
	}
	cfg.DaemonURL = strings.TrimRight(cfg.DaemonURL, "/")
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.NoLog
	}

	return &Keeper{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logger,
	}, nil
}

// Run polls the daemon until the context is canceled. Consecutive
// failed rounds stretch the poll interval.
func (k *Keeper) Run(ctx context.Context) error {
	k.log.Info("keeper started",
		"daemon", k.cfg.DaemonURL,
		"interval", k.cfg.Interval.String())

	timer := time.NewTimer(k.cfg.Interval)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := k.Once(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			k.log.Warn("kick round failed",
				"error", err,
				"consecutive", failures)
		} else {
			failures = 0
		}
		timer.Reset(k.backoff(failures))
	}
}

func (k *Keeper) backoff(failures int) time.Duration {
	if failures == 0 {
		return k.cfg.Interval
	}
	shift := failures
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return k.cfg.Interval << shift
}

// Once runs a single kick round and returns how many auctions kicked.
// Per-auction failures are logged and skipped so one bad record never
// starves the rest.
func (k *Keeper) Once(ctx context.Context) (int, error) {
	auctions, err := k.listAuctions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list auctions: %w", err)
	}

	kicked := 0
	for _, a := range auctions {
		kickable, err := k.kickable(ctx, a.FromToken)
		if err != nil {
			k.log.Warn("kickable query failed",
				"from", a.FromToken,
				"error", err)
			continue
		}
		if kickable == "" || kickable == "0" {
			continue
		}

		available, err := k.kick(ctx, a.FromToken)
		if err != nil {
			k.log.Warn("kick failed",
				"from", a.FromToken,
				"error", err)
			continue
		}
		kicked++
		k.log.Info("kicked auction",
			"from", a.FromToken,
			"available", available)
	}
	return kicked, nil
}

type auctionStatus struct {
	ID               string `json:"id"`
	FromToken        string `json:"from_token"`
	KickedAt         uint64 `json:"kicked_at"`
	CurrentAvailable string `json:"current_available"`
}

func (k *Keeper) listAuctions(ctx context.Context) ([]auctionStatus, error) {
	var resp struct {
		Auctions []auctionStatus `json:"auctions"`
	}
	if err := k.do(ctx, http.MethodGet, "/auctions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Auctions, nil
}

func (k *Keeper) kickable(ctx context.Context, fromToken string) (string, error) {
	var resp struct {
		Kickable string `json:"kickable"`
	}
	path := fmt.Sprintf("/auctions/%s/kickable", url.PathEscape(fromToken))
	if err := k.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Kickable, nil
}

func (k *Keeper) kick(ctx context.Context, fromToken string) (string, error) {
	req := struct {
		FromToken string `json:"from_token"`
	}{FromToken: fromToken}
	var resp struct {
		Available string `json:"available"`
	}
	if err := k.do(ctx, http.MethodPost, "/rpc/kick", req, &resp); err != nil {
		return "", err
	}
	return resp.Available, nil
}

func (k *Keeper) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, k.cfg.DaemonURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
