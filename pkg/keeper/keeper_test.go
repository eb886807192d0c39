package keeper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/dax/pkg/log"
)

// stubDaemon fakes the daemon's auction endpoints.
type stubDaemon struct {
	mu        sync.Mutex
	tokens    []string
	kickable  map[string]string
	kickErr   map[string]string
	kicks     []string
	listFails bool
}

func (d *stubDaemon) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/auctions", d.handleList).Methods("GET")
	r.HandleFunc("/auctions/{token}/kickable", d.handleKickable).Methods("GET")
	r.HandleFunc("/rpc/kick", d.handleKick).Methods("POST")
	return r
}

func (d *stubDaemon) handleList(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if d.listFails {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "store offline"})
		return
	}

	tokens := append([]string(nil), d.tokens...)
	sort.Strings(tokens)
	auctions := make([]map[string]interface{}, 0, len(tokens))
	for _, tok := range tokens {
		auctions = append(auctions, map[string]interface{}{
			"id":                tok,
			"from_token":        tok,
			"kicked_at":         0,
			"current_available": "0",
		})
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"auctions": auctions,
		"count":    len(auctions),
	})
}

func (d *stubDaemon) handleKickable(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	token := mux.Vars(r)["token"]
	w.Header().Set("Content-Type", "application/json")
	value, ok := d.kickable[token]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "auction not enabled"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{
		"from_token": token,
		"kickable":   value,
	})
}

func (d *stubDaemon) handleKick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromToken string `json:"from_token"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	d.mu.Lock()
	defer d.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if msg, bad := d.kickErr[req.FromToken]; bad {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": msg})
		return
	}
	d.kicks = append(d.kicks, req.FromToken)
	json.NewEncoder(w).Encode(map[string]string{
		"from_token": req.FromToken,
		"available":  d.kickable[req.FromToken],
	})
}

func (d *stubDaemon) kicked() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.kicks...)
}

func newTestKeeper(t *testing.T, d *stubDaemon, interval time.Duration) *Keeper {
	t.Helper()
	srv := httptest.NewServer(d.router())
	t.Cleanup(srv.Close)

	k, err := New(Config{
		DaemonURL: srv.URL,
		Interval:  interval,
		Timeout:   time.Second,
	}, log.NoLog)
	require.NoError(t, err)
	return k
}

func TestOnceKicksEligibleAuctions(t *testing.T) {
	require := require.New(t)

	d := &stubDaemon{
		tokens: []string{"0xaaa", "0xbbb", "0xccc"},
		kickable: map[string]string{
			"0xaaa": "500",
			"0xbbb": "0",
			"0xccc": "250",
		},
	}
	k := newTestKeeper(t, d, time.Minute)

	kicked, err := k.Once(context.Background())
	require.NoError(err)
	require.Equal(2, kicked)
	require.Equal([]string{"0xaaa", "0xccc"}, d.kicked())
}

func TestOnceSkipsFailedKicks(t *testing.T) {
	require := require.New(t)

	d := &stubDaemon{
		tokens: []string{"0xaaa", "0xccc"},
		kickable: map[string]string{
			"0xaaa": "500",
			"0xccc": "250",
		},
		kickErr: map[string]string{
			"0xaaa": "cooldown has not elapsed",
		},
	}
	k := newTestKeeper(t, d, time.Minute)

	kicked, err := k.Once(context.Background())
	require.NoError(err)
	require.Equal(1, kicked)
	require.Equal([]string{"0xccc"}, d.kicked())
}

func TestOnceSkipsUnqueryableAuctions(t *testing.T) {
	require := require.New(t)

	// 0xgone is listed but its kickable endpoint 404s.
	d := &stubDaemon{
		tokens: []string{"0xaaa", "0xgone"},
		kickable: map[string]string{
			"0xaaa": "500",
		},
	}
	k := newTestKeeper(t, d, time.Minute)

	kicked, err := k.Once(context.Background())
	require.NoError(err)
	require.Equal(1, kicked)
	require.Equal([]string{"0xaaa"}, d.kicked())
}

func TestOnceSurfacesListFailure(t *testing.T) {
	require := require.New(t)

	d := &stubDaemon{listFails: true}
	k := newTestKeeper(t, d, time.Minute)

	_, err := k.Once(context.Background())
	require.ErrorContains(err, "store offline")
}

func TestRunStopsOnCancel(t *testing.T) {
	require := require.New(t)

	d := &stubDaemon{
		tokens:   []string{"0xaaa"},
		kickable: map[string]string{"0xaaa": "500"},
	}
	k := newTestKeeper(t, d, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- k.Run(ctx)
	}()

	// Let a few rounds land, then stop.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("keeper did not stop")
	}
	require.NotEmpty(d.kicked())
}

func TestNewValidation(t *testing.T) {
	require := require.New(t)

	_, err := New(Config{}, log.NoLog)
	require.ErrorContains(err, "empty daemon url")

	k, err := New(Config{DaemonURL: "http://localhost:9000/"}, nil)
	require.NoError(err)
	require.Equal(DefaultInterval, k.cfg.Interval)
	require.Equal(DefaultTimeout, k.cfg.Timeout)
	require.Equal("http://localhost:9000", k.cfg.DaemonURL)
}

func TestBackoffStretchesOnFailures(t *testing.T) {
	require := require.New(t)

	k, err := New(Config{DaemonURL: "http://localhost:9000", Interval: time.Second}, nil)
	require.NoError(err)

	require.Equal(time.Second, k.backoff(0))
	require.Equal(2*time.Second, k.backoff(1))
	require.Equal(4*time.Second, k.backoff(2))
	require.Equal(8*time.Second, k.backoff(3))
	require.Equal(8*time.Second, k.backoff(9))
}
