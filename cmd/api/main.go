package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/luxfi/dax/pkg/auction"
	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/log"
	"github.com/luxfi/dax/pkg/scale"
	"github.com/luxfi/dax/pkg/token"
)

var (
	port = flag.String("port", "8080", "API server port")
	env  = flag.String("env", "development", "Environment (development/production)")

	registryName  = flag.String("name", "dax-sandbox", "Registry name")
	wantToken     = flag.String("want-token", "0xusd", "Settlement token address")
	wantDecimals  = flag.Uint("want-decimals", 18, "Settlement token decimals")
	receiver      = flag.String("receiver", "treasury", "Default proceeds receiver")
	startingPrice = flag.Uint64("starting-price", 1_000_000, "Lot starting price in whole settlement tokens")
	auctionLength = flag.Uint64("auction-length", 86_400, "Price window length in seconds")
	logLevel      = flag.String("log-level", "info", "Log level")
)

func main() {
	flag.Parse()

	logger := log.NewWithLevel(*logLevel)
	defer logger.Sync()

	gw, err := newGateway(logger)
	if err != nil {
		fmt.Printf("Failed to create gateway: %v\n", err)
		os.Exit(1)
	}

	router := setupRouter(gw)

	srv := &http.Server{
		Addr:    ":" + *port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Failed to start server: %v\n", err)
			os.Exit(1)
		}
	}()

	fmt.Printf("🚀 DAX API server started on port %s\n", *port)
	fmt.Printf("🔧 Environment: %s\n", *env)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Println("Server forced to shutdown:", err)
	}

	fmt.Println("Server exiting")
}

// gateway holds the in-process sandbox the REST surface fronts. Every
// amount crossing the HTTP boundary is a human-denominated decimal;
// conversion to raw token units happens here and nowhere deeper.
type gateway struct {
	registry *auction.Registry
	ledger   *token.Ledger
	log      log.Logger
}

func newGateway(logger log.Logger) (*gateway, error) {
	ledger := token.NewLedger(logger)
	if err := ledger.RegisterAsset(*wantToken, uint8(*wantDecimals)); err != nil {
		return nil, fmt.Errorf("register settlement token: %w", err)
	}

	registry, err := auction.New(auction.Config{
		Name:          *registryName,
		WantToken:     *wantToken,
		Receiver:      *receiver,
		StartingPrice: uint256.NewInt(*startingPrice),
		AuctionLength: *auctionLength,
	}, ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("create registry: %w", err)
	}

	return &gateway{
		registry: registry,
		ledger:   ledger,
		log:      logger,
	}, nil
}

func setupRouter(gw *gateway) *gin.Engine {
	if *env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// CORS configuration
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"http://localhost:3000", "http://localhost:3001", "https://lux.network", "https://app.lux.network"}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"}
	router.Use(cors.New(config))
	router.Use(requestID())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "healthy",
			"name":   *registryName,
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := router.Group("/api/v1")
	{
		// Sandbox token management
		api.POST("/tokens", gw.registerToken)
		api.GET("/tokens", gw.listTokens)
		api.POST("/tokens/:address/mint", gw.mintToken)
		api.GET("/tokens/:address/balance", gw.tokenBalance)

		// Auction lifecycle
		api.GET("/auctions", gw.listAuctions)
		api.POST("/auctions", gw.enableAuction)
		api.GET("/auctions/:token", gw.getAuction)
		api.DELETE("/auctions/:token", gw.disableAuction)
		api.POST("/auctions/:token/kick", gw.kickAuction)
		api.POST("/auctions/:token/take", gw.takeAuction)

		// Quoting
		api.GET("/auctions/:token/price", gw.priceAuction)
		api.GET("/auctions/:token/quote", gw.quoteAuction)

		// Housekeeping
		api.POST("/sweep", gw.sweepToken)
	}

	return router
}

// requestID stamps every response with a fresh uuid so callers can
// correlate errors against gateway logs.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Token handlers

func (g *gateway) registerToken(c *gin.Context) {
	var req struct {
		Address  string `json:"address" binding:"required"`
		Decimals uint8  `json:"decimals"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if err := g.ledger.RegisterAsset(req.Address, req.Decimals); err != nil {
		g.fail(c, err)
		return
	}

	c.JSON(201, gin.H{
		"address":  req.Address,
		"decimals": req.Decimals,
	})
}

func (g *gateway) listTokens(c *gin.Context) {
	addrs := g.ledger.Assets()
	tokens := make([]gin.H, 0, len(addrs))
	for _, addr := range addrs {
		decimals, err := g.ledger.Decimals(c.Request.Context(), addr)
		if err != nil {
			continue
		}
		tokens = append(tokens, gin.H{
			"address":  addr,
			"decimals": decimals,
		})
	}

	c.JSON(200, gin.H{
		"tokens": tokens,
		"total":  len(tokens),
	})
}

func (g *gateway) mintToken(c *gin.Context) {
	addr := c.Param("address")

	var req struct {
		Account string `json:"account" binding:"required"`
		Amount  string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	amount, err := g.parseAmount(c.Request.Context(), addr, req.Amount)
	if err != nil {
		g.fail(c, err)
		return
	}

	if err := g.ledger.Mint(c.Request.Context(), addr, req.Account, amount); err != nil {
		g.fail(c, err)
		return
	}

	c.JSON(200, gin.H{
		"address": addr,
		"account": req.Account,
		"amount":  req.Amount,
	})
}

func (g *gateway) tokenBalance(c *gin.Context) {
	addr := c.Param("address")
	account := c.Query("account")
	if account == "" {
		c.JSON(400, gin.H{"error": "account query parameter is required"})
		return
	}

	balance, err := g.ledger.BalanceOf(c.Request.Context(), addr, account)
	if err != nil {
		g.fail(c, err)
		return
	}
	scaler, err := g.scalerOf(c.Request.Context(), addr)
	if err != nil {
		g.fail(c, err)
		return
	}

	c.JSON(200, gin.H{
		"address": addr,
		"account": account,
		"balance": dec(balance, scaler),
	})
}

// Auction handlers

func (g *gateway) listAuctions(c *gin.Context) {
	recs := g.registry.List()
	auctions := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		full, st, err := g.registry.GetAuctionByID(rec.ID)
		if err != nil {
			continue
		}
		auctions = append(auctions, auctionJSON(full, st))
	}

	c.JSON(200, gin.H{
		"auctions": auctions,
		"total":    len(auctions),
	})
}

func (g *gateway) enableAuction(c *gin.Context) {
	var req struct {
		FromToken string `json:"from_token" binding:"required"`
		Receiver  string `json:"receiver"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	id, err := g.registry.Enable(c.Request.Context(), req.FromToken, req.Receiver)
	if err != nil {
		g.fail(c, err)
		return
	}

	c.JSON(201, gin.H{
		"id":         id.String(),
		"from_token": req.FromToken,
	})
}

func (g *gateway) getAuction(c *gin.Context) {
	rec, st, err := g.resolveAuction(c.Param("token"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(200, auctionJSON(rec, st))
}

func (g *gateway) disableAuction(c *gin.Context) {
	tokenAddr := c.Param("token")
	if err := g.registry.Disable(c.Request.Context(), tokenAddr); err != nil {
		g.fail(c, err)
		return
	}

	c.JSON(200, gin.H{
		"from_token": tokenAddr,
		"status":     "disabled",
	})
}

func (g *gateway) kickAuction(c *gin.Context) {
	rec, _, err := g.resolveAuction(c.Param("token"))
	if err != nil {
		g.fail(c, err)
		return
	}

	var req struct {
		At uint64 `json:"at"`
	}
	// Body is optional for kicks.
	_ = c.ShouldBindJSON(&req)
	if req.At == 0 {
		req.At = uint64(time.Now().Unix())
	}

	available, err := g.registry.Kick(c.Request.Context(), rec.From.Address, req.At)
	if err != nil {
		g.fail(c, err)
		return
	}

	c.JSON(200, gin.H{
		"from_token": rec.From.Address,
		"available":  dec(available, rec.From.Scaler),
		"kicked_at":  req.At,
	})
}

func (g *gateway) takeAuction(c *gin.Context) {
	rec, _, err := g.resolveAuction(c.Param("token"))
	if err != nil {
		g.fail(c, err)
		return
	}

	var req struct {
		MaxAmount string `json:"max_amount" binding:"required"`
		Taker     string `json:"taker" binding:"required"`
		Recipient string `json:"recipient"`
		At        uint64 `json:"at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	d, err := decimal.NewFromString(req.MaxAmount)
	if err != nil {
		c.JSON(400, gin.H{"error": fmt.Sprintf("invalid max_amount: %v", err)})
		return
	}
	maxAmount, err := scale.DecimalToRaw(d, rec.From.Scaler)
	if err != nil {
		g.fail(c, err)
		return
	}
	if req.At == 0 {
		req.At = uint64(time.Now().Unix())
	}

	taken, err := g.registry.Take(c.Request.Context(), rec.From.Address, maxAmount, req.Taker, req.Recipient, req.At)
	if err != nil {
		g.fail(c, err)
		return
	}

	c.JSON(200, gin.H{
		"from_token":   rec.From.Address,
		"taker":        req.Taker,
		"amount_taken": dec(taken, rec.From.Scaler),
		"at":           req.At,
	})
}

func (g *gateway) priceAuction(c *gin.Context) {
	rec, _, err := g.resolveAuction(c.Param("token"))
	if err != nil {
		g.fail(c, err)
		return
	}
	at := atOrNow(c.Query("at"))

	price, err := g.registry.Price(rec.From.Address, at)
	if err != nil {
		g.fail(c, err)
		return
	}

	c.JSON(200, gin.H{
		"from_token": rec.From.Address,
		"price":      scale.WadToDecimal(price).String(),
		"at":         at,
	})
}

func (g *gateway) quoteAuction(c *gin.Context) {
	rec, _, err := g.resolveAuction(c.Param("token"))
	if err != nil {
		g.fail(c, err)
		return
	}

	rawAmount := c.Query("amount")
	if rawAmount == "" {
		c.JSON(400, gin.H{"error": "amount query parameter is required"})
		return
	}
	d, err := decimal.NewFromString(rawAmount)
	if err != nil {
		c.JSON(400, gin.H{"error": fmt.Sprintf("invalid amount: %v", err)})
		return
	}
	amount, err := scale.DecimalToRaw(d, rec.From.Scaler)
	if err != nil {
		g.fail(c, err)
		return
	}
	at := atOrNow(c.Query("at"))

	needed, err := g.registry.AmountNeeded(rec.From.Address, amount, at)
	if err != nil {
		g.fail(c, err)
		return
	}

	c.JSON(200, gin.H{
		"from_token": rec.From.Address,
		"amount":     d.String(),
		"needed":     dec(needed, rec.To.Scaler),
		"at":         at,
	})
}

func (g *gateway) sweepToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
		At    uint64 `json:"at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if req.At == 0 {
		req.At = uint64(time.Now().Unix())
	}

	swept, err := g.registry.Sweep(c.Request.Context(), req.Token, req.At)
	if err != nil {
		g.fail(c, err)
		return
	}
	scaler, err := g.scalerOf(c.Request.Context(), req.Token)
	if err != nil {
		g.fail(c, err)
		return
	}

	c.JSON(200, gin.H{
		"token":  req.Token,
		"amount": dec(swept, scaler),
	})
}

// Helpers

// resolveAuction accepts either a sell-token address or a hex auction
// ID as the path key.
func (g *gateway) resolveAuction(key string) (auction.Record, auction.Stats, error) {
	rec, st, err := g.registry.GetAuction(key)
	if err == nil {
		return rec, st, nil
	}
	if id, idErr := ids.FromString(key); idErr == nil {
		if rec, st, byID := g.registry.GetAuctionByID(id); byID == nil {
			return rec, st, nil
		}
	}
	return rec, st, err
}

func (g *gateway) scalerOf(ctx context.Context, addr string) (*uint256.Int, error) {
	decimals, err := g.ledger.Decimals(ctx, addr)
	if err != nil {
		return nil, err
	}
	return scale.ScalerFor(decimals)
}

// parseAmount converts a human decimal string to raw units of addr.
func (g *gateway) parseAmount(ctx context.Context, addr, raw string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", token.ErrInvalidAmount, err)
	}
	scaler, err := g.scalerOf(ctx, addr)
	if err != nil {
		return nil, err
	}
	return scale.DecimalToRaw(d, scaler)
}

func (g *gateway) fail(c *gin.Context, err error) {
	c.JSON(status(err), gin.H{
		"error":      err.Error(),
		"request_id": c.GetString("request_id"),
	})
}

func auctionJSON(rec auction.Record, st auction.Stats) gin.H {
	h := gin.H{
		"id":                rec.ID.String(),
		"from_token":        rec.From.Address,
		"to_token":          rec.To.Address,
		"receiver":          rec.Receiver,
		"kicked_at":         rec.KickedAt,
		"initial_available": dec(rec.InitialAvailable, rec.From.Scaler),
		"current_available": dec(rec.CurrentAvailable, rec.From.Scaler),
		"stats": gin.H{
			"kicks":          st.Kicks,
			"takes":          st.Takes,
			"total_sold":     dec(st.TotalSold, rec.From.Scaler),
			"total_proceeds": dec(st.TotalProceeds, rec.To.Scaler),
			"last_kick_at":   st.LastKickAt,
			"last_take_at":   st.LastTakeAt,
		},
	}
	if rec.MinimumPrice != nil {
		h["minimum_price"] = scale.WadToDecimal(rec.MinimumPrice).String()
	}
	return h
}

// dec renders a raw amount in the token's human denomination, falling
// back to raw units if the amount cannot scale.
func dec(raw, scaler *uint256.Int) string {
	d, err := scale.RawToDecimal(raw, scaler)
	if err != nil {
		return raw.Dec()
	}
	return d.String()
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

func status(err error) int {
	switch {
	case errors.Is(err, auction.ErrNotEnabled),
		errors.Is(err, token.ErrUnknownAsset):
		return 404
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
		return 409
	case errors.Is(err, auction.ErrInvalidConfiguration),
		errors.Is(err, auction.ErrInvalidToken),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, scale.ErrNegativeValue),
		errors.Is(err, scale.ErrUnsupportedDecimals):
		return 400
	default:
		return 500
	}
}
