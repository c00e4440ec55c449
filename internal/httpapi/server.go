package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MazePlayLabs/gamepass/pkg/gamepass"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Run boots the HTTP façade and blocks until ctx is cancelled or the
// listener fails.
func Run(ctx context.Context, cfg Config, service *gamepass.Service, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("httpapi config: %w", err)
	}
	if service == nil {
		return fmt.Errorf("httpapi service is required")
	}
	if logger == nil {
		return fmt.Errorf("httpapi logger is required")
	}

	handler := &httpHandler{
		logger:  logger,
		service: service,
		cfg:     cfg,
	}
	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gamepass api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(callerMiddleware([]byte(cfg.TokenSigningKey), cfg.TokenIssuer))

	api.GET("/v1/state", handler.handleState)
	api.GET("/v1/costs", handler.handleListCosts)
	api.POST("/v1/costs", handler.handleSetCost)
	api.DELETE("/v1/costs/:bundle", handler.handleRemoveCost)

	api.GET("/v1/accounts/:account/games", handler.handleGames)
	api.GET("/v1/accounts/:account/session", handler.handleActiveSession)
	api.GET("/v1/accounts/:account/deposits", handler.handleListDeposits)

	api.POST("/v1/session", handler.handleRequestSession)
	api.POST("/v1/session/end", handler.handleEndSession)
	api.POST("/v1/deposits", handler.handleDeposit)
	api.POST("/v1/free-games", handler.handleGrantFreeGames)

	api.POST("/v1/config/payment-token", handler.handleSetPaymentToken)
	api.POST("/v1/config/minter", handler.handleSetMinter)
	api.POST("/v1/config/session-duration", handler.handleSetSessionDuration)

	return router
}

type httpHandler struct {
	logger  *zap.Logger
	service *gamepass.Service
	cfg     Config
}

func (handler *httpHandler) handleState(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	state, err := handler.service.State(requestCtx)
	if err != nil {
		handler.respondError(ctx, "state fetch failed", err)
		return
	}
	ctx.JSON(http.StatusOK, statePayload{
		Owner:                state.Owner.String(),
		PaymentToken:         state.PaymentToken.String(),
		MinterContract:       state.MinterContract.String(),
		MinDeposit:           state.MinDeposit.String(),
		MaxSessionDurationMS: state.MaxSessionDurationMS,
		SeedID:               uint64(state.SeedID),
		SchemaVersion:        state.SchemaVersion,
	})
}

func (handler *httpHandler) handleListCosts(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	tiers, err := handler.service.GameCosts(requestCtx)
	if err != nil {
		handler.respondError(ctx, "cost listing failed", err)
		return
	}
	payload := make([]costPayload, 0, len(tiers))
	for _, tier := range tiers {
		payload = append(payload, costPayload{
			Bundle:       int(tier.Bundle),
			PerGamePrice: tier.PerGamePrice.String(),
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"costs": payload})
}

func (handler *httpHandler) handleSetCost(ctx *gin.Context) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing caller"))
		return
	}
	var request setCostRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	bundle, err := gamepass.NewBundleSize(request.Bundle)
	if err != nil {
		handler.respondError(ctx, "set cost rejected", err)
		return
	}
	price, err := gamepass.NewTokenAmount(request.PerGamePrice)
	if err != nil {
		handler.respondError(ctx, "set cost rejected", err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.SetGameCost(requestCtx, caller, bundle, price); err != nil {
		handler.respondError(ctx, "set cost failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleRemoveCost(ctx *gin.Context) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing caller"))
		return
	}
	rawBundle, err := strconv.Atoi(ctx.Param("bundle"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "bundle must be an integer"))
		return
	}
	bundle, err := gamepass.NewBundleSize(rawBundle)
	if err != nil {
		handler.respondError(ctx, "remove cost rejected", err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.RemoveGameCost(requestCtx, caller, bundle); err != nil {
		handler.respondError(ctx, "remove cost failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleGames(ctx *gin.Context) {
	account, err := gamepass.NewAccountID(ctx.Param("account"))
	if err != nil {
		handler.respondError(ctx, "games query rejected", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	free, paid, err := handler.service.RemainingGames(requestCtx, account)
	if err != nil {
		handler.respondError(ctx, "games query failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gamesPayload{
		Account: account.String(),
		Free:    uint16(free),
		Paid:    uint16(paid),
		Total:   uint32(free) + uint32(paid),
	})
}

func (handler *httpHandler) handleActiveSession(ctx *gin.Context) {
	account, err := gamepass.NewAccountID(ctx.Param("account"))
	if err != nil {
		handler.respondError(ctx, "session query rejected", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	view, err := handler.service.ActiveSession(requestCtx, account)
	if err != nil {
		handler.respondError(ctx, "session query failed", err)
		return
	}
	if view == nil {
		ctx.JSON(http.StatusOK, gin.H{"session": nil})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"session": sessionPayload{
		SeedID:      uint64(view.SeedID),
		StartTimeMS: view.StartTimeMS,
	}})
}

func (handler *httpHandler) handleRequestSession(ctx *gin.Context) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing caller"))
		return
	}
	var request startSessionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	deposit, err := gamepass.NewTokenAmount(request.Deposit)
	if err != nil {
		handler.respondError(ctx, "session request rejected", err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	seed, err := handler.service.RequestSession(requestCtx, caller, deposit)
	if err != nil {
		handler.respondError(ctx, "session request failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"seed_id": uint64(seed)})
}

func (handler *httpHandler) handleEndSession(ctx *gin.Context) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing caller"))
		return
	}
	var request endSessionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	account, err := gamepass.NewAccountID(request.Account)
	if err != nil {
		handler.respondError(ctx, "end session rejected", err)
		return
	}
	reward, err := gamepass.NewTokenAmount(request.Reward)
	if err != nil {
		handler.respondError(ctx, "end session rejected", err)
		return
	}
	var referral *gamepass.AccountID
	if request.Referral != "" {
		parsed, err := gamepass.NewAccountID(request.Referral)
		if err != nil {
			handler.respondError(ctx, "end session rejected", err)
			return
		}
		referral = &parsed
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.EndSession(requestCtx, caller, account, reward, referral); err != nil {
		handler.respondError(ctx, "end session failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleDeposit(ctx *gin.Context) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing caller"))
		return
	}
	var request depositRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	payer, err := gamepass.NewAccountID(request.Payer)
	if err != nil {
		handler.respondError(ctx, "deposit rejected", err)
		return
	}
	amount, err := gamepass.NewTokenAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, "deposit rejected", err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	refund, err := handler.service.ConvertDeposit(requestCtx, caller, payer, amount, request.Memo)
	if err != nil {
		handler.respondError(ctx, "deposit failed", err)
		return
	}
	free, paid, err := handler.service.RemainingGames(requestCtx, payer)
	if err != nil {
		handler.respondError(ctx, "deposit balance fetch failed", err)
		return
	}
	ctx.JSON(http.StatusOK, depositResponse{
		Refund: refund.String(),
		Games: gamesPayload{
			Account: payer.String(),
			Free:    uint16(free),
			Paid:    uint16(paid),
			Total:   uint32(free) + uint32(paid),
		},
	})
}

func (handler *httpHandler) handleListDeposits(ctx *gin.Context) {
	payer, err := gamepass.NewAccountID(ctx.Param("account"))
	if err != nil {
		handler.respondError(ctx, "deposit listing rejected", err)
		return
	}
	limit := defaultReceiptLimit
	if rawLimit := ctx.Query("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed <= 0 {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "limit must be a positive integer"))
			return
		}
		limit = min(parsed, maxReceiptLimit)
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	receipts, err := handler.service.DepositReceipts(requestCtx, payer, limit)
	if err != nil {
		handler.respondError(ctx, "deposit listing failed", err)
		return
	}
	payload := make([]receiptPayload, 0, len(receipts))
	for _, receipt := range receipts {
		payload = append(payload, receiptPayload{
			ReceiptID:     receipt.ReceiptID,
			Payer:         receipt.Payer.String(),
			Amount:        receipt.Amount.String(),
			GamesBought:   uint16(receipt.GamesBought),
			Remainder:     receipt.Remainder.String(),
			Memo:          receipt.Memo,
			CreatedUnixMS: receipt.CreatedUnixMS,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"receipts": payload})
}

func (handler *httpHandler) handleGrantFreeGames(ctx *gin.Context) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing caller"))
		return
	}
	var request grantFreeGamesRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	account, err := gamepass.NewAccountID(request.Account)
	if err != nil {
		handler.respondError(ctx, "free games grant rejected", err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.GrantFreeGames(requestCtx, caller, account, gamepass.GameCount(request.Amount)); err != nil {
		handler.respondError(ctx, "free games grant failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleSetPaymentToken(ctx *gin.Context) {
	handler.handleAccountConfig(ctx, handler.service.SetPaymentToken)
}

func (handler *httpHandler) handleSetMinter(ctx *gin.Context) {
	handler.handleAccountConfig(ctx, handler.service.SetMinterContract)
}

func (handler *httpHandler) handleAccountConfig(ctx *gin.Context, apply func(context.Context, gamepass.AccountID, gamepass.AccountID) error) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing caller"))
		return
	}
	var request accountConfigRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	account, err := gamepass.NewAccountID(request.Account)
	if err != nil {
		handler.respondError(ctx, "config update rejected", err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := apply(requestCtx, caller, account); err != nil {
		handler.respondError(ctx, "config update failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleSetSessionDuration(ctx *gin.Context) {
	caller, ok := callerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing caller"))
		return
	}
	var request sessionDurationRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if request.Seconds <= 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "seconds must be positive"))
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.SetMaxSessionDuration(requestCtx, caller, request.Seconds); err != nil {
		handler.respondError(ctx, "config update failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) respondError(ctx *gin.Context, message string, err error) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		handler.logger.Error(message, zap.Error(err))
		ctx.JSON(status, errorResponse(code, "internal error"))
		return
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, gamepass.ErrUnauthorizedCaller):
		return http.StatusForbidden, "unauthorized_caller"
	case errors.Is(err, gamepass.ErrInvalidAccountID),
		errors.Is(err, gamepass.ErrInvalidBundleSize),
		errors.Is(err, gamepass.ErrInvalidTokenAmount),
		errors.Is(err, gamepass.ErrInvalidGameCount):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, gamepass.ErrDepositTooSmall):
		return http.StatusBadRequest, "deposit_too_small"
	case errors.Is(err, gamepass.ErrInsufficientPayment):
		return http.StatusBadRequest, "insufficient_payment"
	case errors.Is(err, gamepass.ErrTooManyGames):
		return http.StatusBadRequest, "too_many_games"
	case errors.Is(err, gamepass.ErrInsufficientGames):
		return http.StatusConflict, "insufficient_games"
	case errors.Is(err, gamepass.ErrSessionAlreadyActive):
		return http.StatusConflict, "session_already_active"
	case errors.Is(err, gamepass.ErrCostTableFull):
		return http.StatusConflict, "cost_table_full"
	case errors.Is(err, gamepass.ErrGameCostNotFound):
		return http.StatusNotFound, "cost_not_found"
	case errors.Is(err, gamepass.ErrNoActiveSession):
		return http.StatusNotFound, "no_active_session"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

type statePayload struct {
	Owner                string `json:"owner"`
	PaymentToken         string `json:"payment_token"`
	MinterContract       string `json:"minter_contract"`
	MinDeposit           string `json:"min_deposit"`
	MaxSessionDurationMS int64  `json:"max_session_duration_ms"`
	SeedID               uint64 `json:"seed_id"`
	SchemaVersion        int    `json:"schema_version"`
}

type costPayload struct {
	Bundle       int    `json:"bundle"`
	PerGamePrice string `json:"per_game_price"`
}

type setCostRequest struct {
	Bundle       int    `json:"bundle"`
	PerGamePrice string `json:"per_game_price"`
}

type gamesPayload struct {
	Account string `json:"account"`
	Free    uint16 `json:"free"`
	Paid    uint16 `json:"paid"`
	Total   uint32 `json:"total"`
}

type sessionPayload struct {
	SeedID      uint64 `json:"seed_id"`
	StartTimeMS int64  `json:"start_time_ms"`
}

type startSessionRequest struct {
	Deposit string `json:"deposit"`
}

type endSessionRequest struct {
	Account  string `json:"account"`
	Reward   string `json:"reward"`
	Referral string `json:"referral"`
}

type depositRequest struct {
	Payer  string `json:"payer"`
	Amount string `json:"amount"`
	Memo   string `json:"memo"`
}

type depositResponse struct {
	Refund string       `json:"refund"`
	Games  gamesPayload `json:"games"`
}

type receiptPayload struct {
	ReceiptID     string `json:"receipt_id"`
	Payer         string `json:"payer"`
	Amount        string `json:"amount"`
	GamesBought   uint16 `json:"games_bought"`
	Remainder     string `json:"remainder"`
	Memo          string `json:"memo"`
	CreatedUnixMS int64  `json:"created_unix_ms"`
}

type grantFreeGamesRequest struct {
	Account string `json:"account"`
	Amount  uint16 `json:"amount"`
}

type accountConfigRequest struct {
	Account string `json:"account"`
}

type sessionDurationRequest struct {
	Seconds int64 `json:"seconds"`
}
