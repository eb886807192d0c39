// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/dax/pkg/auction"
	"github.com/luxfi/dax/pkg/events"
	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/log"
	"github.com/luxfi/dax/pkg/metric"
	"github.com/luxfi/dax/pkg/scale"
	"github.com/luxfi/dax/pkg/store"
	"github.com/luxfi/dax/pkg/token"
)

var (
	// Server configuration flags
	listenAddr = flag.String("listen", ":8700", "HTTP listen address")
	logLevel   = flag.String("log-level", "info", "Log level")

	// Storage configuration
	dbBackend = flag.String("db-backend", "memory", "Database backend: memory, badger")
	dbPath    = flag.String("db-path", "/tmp/daxd", "Database path for badger")

	// Registry configuration
	registryName    = flag.String("name", "dax-main", "Registry name, doubles as the settlement account")
	wantTokenAddr   = flag.String("want-token", "0xusd", "Settlement token address")
	wantDecimals    = flag.Uint("want-decimals", 18, "Settlement token decimals")
	receiverAddr    = flag.String("receiver", "treasury", "Default proceeds receiver")
	startingPrice   = flag.Uint64("starting-price", 1_000_000, "Lot starting price in whole settlement tokens")
	auctionLength   = flag.Uint64("auction-length", 86_400, "Price window length in seconds")
	auctionCooldown = flag.Uint64("auction-cooldown", 0, "Kick spacing in seconds, 0 keys it off the window length")
	minimumPrice    = flag.Bool("minimum-price", false, "Enforce per-auction minimum prices")
	allowEmptyTake  = flag.Bool("allow-empty-take", false, "Treat takes against sold-out windows as no-ops")

	// Dev mode
	devMode = flag.Bool("dev", false, "Seed a demo ledger with enabled auctions")

	// Version info
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server wires the auction registry to its HTTP and websocket surface.
type Server struct {
	registry *auction.Registry
	ledger   *token.Ledger
	stream   *events.Stream
	store    *store.Store
	metrics  *metric.Metrics

	httpServer *http.Server
	upgrader   websocket.Upgrader

	log log.Logger
}

func main() {
	flag.Parse()

	fmt.Printf("DAX Daemon (daxd) %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)

	logger := log.NewWithLevel(*logLevel)
	defer logger.Sync()

	srv, err := NewServer(logger)
	if err != nil {
		fmt.Printf("Failed to create server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Printf("Failed to start server: %v\n", err)
		os.Exit(1)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		fmt.Printf("Error during shutdown: %v\n", err)
	}

	fmt.Println("Daemon stopped")
}

// NewServer builds the registry, storage, and event plumbing
func NewServer(logger log.Logger) (*Server, error) {
	ledger := token.NewLedger(logger)
	if err := ledger.RegisterAsset(*wantTokenAddr, uint8(*wantDecimals)); err != nil {
		return nil, fmt.Errorf("register settlement token: %w", err)
	}

	cfg := auction.Config{
		Name:            *registryName,
		WantToken:       *wantTokenAddr,
		Receiver:        *receiverAddr,
		StartingPrice:   uint256.NewInt(*startingPrice),
		AuctionLength:   *auctionLength,
		AuctionCooldown: *auctionCooldown,
		HasCooldown:     *auctionCooldown > 0,
		HasMinimumPrice: *minimumPrice,
		AllowEmptyTake:  *allowEmptyTake,
	}

	registry, err := auction.New(cfg, ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("create registry: %w", err)
	}

	st, err := store.New(*dbBackend, *dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	m, err := metric.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	stream := events.NewStream(events.DefaultBuffer)

	registry.SetPersister(st)
	registry.SetStream(stream)
	registry.SetMetrics(m)

	srv := &Server{
		registry: registry,
		ledger:   ledger,
		stream:   stream,
		store:    st,
		metrics:  m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger,
	}

	// Revive persisted windows before serving traffic.
	entries, err := st.LoadAuctions()
	if err != nil {
		return nil, fmt.Errorf("load auctions: %w", err)
	}
	for _, e := range entries {
		if err := registry.Restore(e.Record, e.Stats); err != nil {
			logger.Warn("failed to restore auction",
				"auction", e.Record.ID,
				"error", err)
		}
	}
	if len(entries) > 0 {
		logger.Info("restored auctions", "count", len(entries))
	}

	if *devMode {
		if err := srv.seedDevLedger(); err != nil {
			return nil, fmt.Errorf("seed dev ledger: %w", err)
		}
	}

	return srv, nil
}

// seedDevLedger registers demo sell tokens, funds the registry and a
// demo taker, and enables both auctions.
func (s *Server) seedDevLedger() error {
	ctx := context.Background()

	seeds := []struct {
		token    string
		decimals uint8
		units    uint64
	}{
		{"0xalpha", 18, 1000},
		{"0xbeta", 6, 2500},
	}

	for _, seed := range seeds {
		if err := s.ledger.RegisterAsset(seed.token, seed.decimals); err != nil {
			return err
		}
		if err := s.ledger.Mint(ctx, seed.token, s.registry.Account(), mustUnits(seed.units, seed.decimals)); err != nil {
			return err
		}
		if _, err := s.registry.Enable(ctx, seed.token, ""); err != nil && !errors.Is(err, auction.ErrAlreadyEnabled) {
			return err
		}
	}

	if err := s.ledger.Mint(ctx, *wantTokenAddr, "taker-demo", mustUnits(10_000_000, uint8(*wantDecimals))); err != nil {
		return err
	}

	s.log.Info("dev ledger seeded",
		"sell_tokens", len(seeds),
		"taker", "taker-demo")
	return nil
}

func mustUnits(units uint64, decimals uint8) *uint256.Int {
	base := uint256.NewInt(units)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < decimals; i++ {
		base.Mul(base, ten)
	}
	return base
}

// Start begins serving HTTP traffic
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    *listenAddr,
		Handler: s.setupRoutes(),
	}

	go func() {
		s.log.Info("HTTP server listening", "addr", *listenAddr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error("HTTP server error", "error", err)
		}
	}()

	go s.watchWindows()

	return nil
}

// Shutdown gracefully stops the server and closes the store
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.log.Error("HTTP server shutdown error", "error", err)
	}

	s.stream.Close()

	if cerr := s.store.Close(); cerr != nil {
		s.log.Error("store close error", "error", cerr)
		if err == nil {
			err = cerr
		}
	}
	return err
}

// watchWindows periodically publishes gauge metrics for the live
// windows and dropped events.
func (s *Server) watchWindows() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		now := uint64(time.Now().Unix())
		open := s.registry.OpenWindows(now)
		s.metrics.OpenWindows.Set(float64(open))
		s.metrics.EventsDropped.Set(float64(s.stream.Dropped()))
		s.log.Debug("window status",
			"open", open,
			"enabled", s.registry.Len())
	}
}

func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Read surface
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/auctions", s.handleListAuctions).Methods("GET")
	r.HandleFunc("/auctions/{token}", s.handleGetAuction).Methods("GET")
	r.HandleFunc("/auctions/{token}/price", s.handlePrice).Methods("GET")
	r.HandleFunc("/auctions/{token}/kickable", s.handleKickable).Methods("GET")

	// Mutating RPC surface
	r.HandleFunc("/rpc/register", s.handleRegister).Methods("POST")
	r.HandleFunc("/rpc/mint", s.handleMint).Methods("POST")
	r.HandleFunc("/rpc/enable", s.handleEnable).Methods("POST")
	r.HandleFunc("/rpc/disable", s.handleDisable).Methods("POST")
	r.HandleFunc("/rpc/kick", s.handleKick).Methods("POST")
	r.HandleFunc("/rpc/take", s.handleTake).Methods("POST")
	r.HandleFunc("/rpc/sweep", s.handleSweep).Methods("POST")

	// Event feed and metrics
	r.HandleFunc("/ws", s.handleWS).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.GetGatherer(), promhttp.HandlerOpts{})).Methods("GET")

	return r
}

// Views

type statsView struct {
	Kicks         uint64 `json:"kicks"`
	Takes         uint64 `json:"takes"`
	TotalSold     string `json:"total_sold"`
	TotalProceeds string `json:"total_proceeds"`
	LastKickAt    uint64 `json:"last_kick_at"`
	LastTakeAt    uint64 `json:"last_take_at"`
}

type auctionView struct {
	ID               string    `json:"id"`
	FromToken        string    `json:"from_token"`
	ToToken          string    `json:"to_token"`
	Receiver         string    `json:"receiver"`
	KickedAt         uint64    `json:"kicked_at"`
	InitialAvailable string    `json:"initial_available"`
	CurrentAvailable string    `json:"current_available"`
	MinimumPrice     string    `json:"minimum_price,omitempty"`
	Stats            statsView `json:"stats"`
}

func newAuctionView(rec auction.Record, st auction.Stats) auctionView {
	v := auctionView{
		ID:               rec.ID.String(),
		FromToken:        rec.From.Address,
		ToToken:          rec.To.Address,
		Receiver:         rec.Receiver,
		KickedAt:         rec.KickedAt,
		InitialAvailable: rec.InitialAvailable.Dec(),
		CurrentAvailable: rec.CurrentAvailable.Dec(),
		Stats: statsView{
			Kicks:         st.Kicks,
			Takes:         st.Takes,
			TotalSold:     st.TotalSold.Dec(),
			TotalProceeds: st.TotalProceeds.Dec(),
			LastKickAt:    st.LastKickAt,
			LastTakeAt:    st.LastTakeAt,
		},
	}
	if rec.MinimumPrice != nil {
		v.MinimumPrice = rec.MinimumPrice.Dec()
	}
	return v
}

// Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","name":%q,"version":%q}`, *registryName, Version)
}

func (s *Server) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	recs := s.registry.List()
	views := make([]auctionView, 0, len(recs))
	for _, rec := range recs {
		full, st, err := s.registry.GetAuctionByID(rec.ID)
		if err != nil {
			continue
		}
		views = append(views, newAuctionView(full, st))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"auctions": views,
		"count":    len(views),
	})
}

// resolveAuction accepts either a sell-token address or a hex auction
// ID as the path key.
func (s *Server) resolveAuction(key string) (auction.Record, auction.Stats, error) {
	rec, st, err := s.registry.GetAuction(key)
	if err == nil {
		return rec, st, nil
	}
	if id, idErr := ids.FromString(key); idErr == nil {
		if rec, st, byID := s.registry.GetAuctionByID(id); byID == nil {
			return rec, st, nil
		}
	}
	return rec, st, err
}

func (s *Server) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	rec, st, err := s.resolveAuction(mux.Vars(r)["token"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuctionView(rec, st))
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	rec, _, err := s.resolveAuction(mux.Vars(r)["token"])
	if err != nil {
		writeError(w, err)
		return
	}
	at := atOrNow(r.URL.Query().Get("at"))

	price, err := s.registry.Price(rec.From.Address, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"from_token": rec.From.Address,
		"price":      scale.WadToDecimal(price).String(),
		"price_wad":  price.Dec(),
		"at":         at,
	})
}

func (s *Server) handleKickable(w http.ResponseWriter, r *http.Request) {
	rec, _, err := s.resolveAuction(mux.Vars(r)["token"])
	if err != nil {
		writeError(w, err)
		return
	}
	at := atOrNow(r.URL.Query().Get("at"))

	kickable, err := s.registry.Kickable(r.Context(), rec.From.Address, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"from_token": rec.From.Address,
		"kickable":   kickable.Dec(),
		"at":         at,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Decimals uint8  `json:"decimals"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.ledger.RegisterAsset(req.Token, req.Decimals); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":    req.Token,
		"decimals": req.Decimals,
	})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token   string `json:"token"`
		Account string `json:"account"`
		Amount  string `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := uint256.FromDecimal(req.Amount)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", token.ErrInvalidAmount, err))
		return
	}
	if err := s.ledger.Mint(r.Context(), req.Token, req.Account, amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":   req.Token,
		"account": req.Account,
		"amount":  amount.Dec(),
	})
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromToken string `json:"from_token"`
		Receiver  string `json:"receiver"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.registry.Enable(r.Context(), req.FromToken, req.Receiver)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":         id.String(),
		"from_token": req.FromToken,
	})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromToken string `json:"from_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.registry.Disable(r.Context(), req.FromToken); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"from_token": req.FromToken,
		"status":     "disabled",
	})
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromToken string `json:"from_token"`
		At        uint64 `json:"at"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.At == 0 {
		req.At = uint64(time.Now().Unix())
	}
	available, err := s.registry.Kick(r.Context(), req.FromToken, req.At)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"from_token": req.FromToken,
		"available":  available.Dec(),
		"kicked_at":  req.At,
	})
}

func (s *Server) handleTake(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromToken string `json:"from_token"`
		MaxAmount string `json:"max_amount"`
		Taker     string `json:"taker"`
		Recipient string `json:"recipient"`
		At        uint64 `json:"at"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	maxAmount, err := uint256.FromDecimal(req.MaxAmount)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", token.ErrInvalidAmount, err))
		return
	}
	if req.At == 0 {
		req.At = uint64(time.Now().Unix())
	}
	taken, err := s.registry.Take(r.Context(), req.FromToken, maxAmount, req.Taker, req.Recipient, req.At)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"from_token":   req.FromToken,
		"taker":        req.Taker,
		"amount_taken": taken.Dec(),
		"at":           req.At,
	})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
		At    uint64 `json:"at"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.At == 0 {
		req.At = uint64(time.Now().Unix())
	}
	swept, err := s.registry.Sweep(r.Context(), req.Token, req.At)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":  req.Token,
		"amount": swept.Dec(),
	})
}

// handleWS upgrades the connection and streams lifecycle events until
// the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id, ch := s.stream.Subscribe()
	defer s.stream.Unsubscribe(id)

	s.log.Info("event subscriber connected", "remote", r.RemoteAddr)

	// Reader only watches for the client closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				s.log.Debug("event subscriber dropped", "error", err)
				return
			}
		}
	}
}

// Helpers

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func atOrNow(raw string) uint64 {
	if raw == "" {
		return uint64(time.Now().Unix())
	}
	at, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return uint64(time.Now().Unix())
	}
	return at
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auction.ErrNotEnabled),
		errors.Is(err, token.ErrUnknownAsset):
		return http.StatusNotFound
	case errors.Is(err, auction.ErrAlreadyEnabled),
		errors.Is(err, token.ErrAssetExists),
		errors.Is(err, auction.ErrTooSoon),
		errors.Is(err, auction.ErrNothingToKick),
		errors.Is(err, auction.ErrNotKicked),
		errors.Is(err, auction.ErrWindowExpired),
		errors.Is(err, auction.ErrZeroNeeded),
		errors.Is(err, auction.ErrBelowMinimum),
		errors.Is(err, auction.ErrReentrantTake),
		errors.Is(err, auction.ErrSweepActive):
		return http.StatusConflict
	case errors.Is(err, auction.ErrInvalidConfiguration),
		errors.Is(err, auction.ErrInvalidToken),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, scale.ErrUnsupportedDecimals):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
