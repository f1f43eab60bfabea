package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dragonvein/dragonvein-server-go/internal/config"
	"github.com/dragonvein/dragonvein-server-go/internal/hand"
	"github.com/dragonvein/dragonvein-server-go/internal/reward"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const requestIDHeader = "X-Request-ID"

// API serves the HTTP interface of the reward service.
type API struct {
	svc       *reward.Service
	hub       *Hub
	adminHash []byte
	logger    *zap.Logger
}

// NewAPI wires the handlers. A nil hub disables /ws.
func NewAPI(svc *reward.Service, hub *Hub, auth config.AuthConfig, logger *zap.Logger) *API {
	a := &API{svc: svc, hub: hub, logger: logger}
	if auth.AdminPasswordHash != "" {
		a.adminHash = []byte(auth.AdminPasswordHash)
	}
	if hub != nil {
		hub.initial = a.initialFeedState
	}
	return a
}

// Router builds the gin engine with middleware and routes.
func (a *API) Router(cfg config.HTTPConfig) *gin.Engine {
	r := gin.New()
	r.Use(requestID(), requestLogger(a.logger), recovery(a.logger))

	corsCfg := cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
	})
	if a.hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			a.hub.ServeWS(c.Writer, c.Request)
		})
	}

	api := r.Group("/api")
	api.POST("/draw", a.draw)
	api.POST("/battlefield/challenge", a.challenge)
	api.GET("/battlefield", a.battlefield)
	api.POST("/items/:id/wild", a.wild)
	api.POST("/items/:id/swap", a.swap)
	api.GET("/teams/:id/hand", a.teamHand)
	api.GET("/users/:id/rewards", a.userRewards)
	api.GET("/sites", a.sites)

	admin := api.Group("/admin", a.adminAuth())
	admin.POST("/items/:id/redeem", a.redeemGift)

	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
			return
		}
		logger.Debug("request handled", fields...)
	}
}

func recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		logger.Error("panic recovered",
			zap.String("request_id", c.GetString("request_id")),
			zap.Any("panic", rec),
			zap.Stack("stack"),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	})
}

// adminAuth checks a bearer password against the configured bcrypt hash.
func (a *API) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.adminHash == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: "admin access not configured", Code: "admin_disabled"})
			return
		}
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "missing bearer token", Code: "unauthorized"})
			return
		}
		if err := bcrypt.CompareHashAndPassword(a.adminHash, []byte(token)); err != nil {
			a.logger.Warn("admin authentication failed", zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "invalid admin password", Code: "unauthorized"})
			return
		}
		c.Next()
	}
}

// writeError maps domain errors to status codes.
func (a *API) writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var (
		validation *reward.ValidationError
		conflict   *reward.ConflictError
		exhausted  *reward.ExhaustionError
		integrity  *reward.IntegrityError
	)
	switch {
	case errors.As(err, &validation):
		status := http.StatusBadRequest
		if validation.Code == reward.CodeNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, errorResponse{Error: validation.Msg, Code: validation.Code})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, errorResponse{Error: conflict.Error(), Code: "conflict"})
	case errors.As(err, &exhausted):
		c.JSON(http.StatusGone, errorResponse{Error: exhausted.Error(), Code: "exhausted"})
	case errors.As(err, &integrity):
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "integrity violation", Code: "integrity_violation"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "request cancelled", Code: "unavailable"})
	default:
		a.logger.Error("unexpected error", zap.String("request_id", c.GetString("request_id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: reward.CodeInvalidArgument})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "id must be a positive integer", Code: reward.CodeInvalidArgument})
		return 0, false
	}
	return id, true
}

func (a *API) draw(c *gin.Context) {
	var req drawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := a.svc.Draw(c.Request.Context(), req.UserID, req.TeamID, req.SiteID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDrawResponse(out))
}

func (a *API) challenge(c *gin.Context) {
	var req challengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := a.svc.Challenge(c.Request.Context(), req.TeamID, req.CardIDs)
	if err != nil {
		a.writeError(c, err)
		return
	}
	resp := challengeResponse{
		Accepted:    out.Accepted,
		Reason:      string(out.Reason),
		Hand:        newHandDTO(out.Hand),
		Battlefield: newBattlefieldState(out.Battlefield),
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) battlefield(c *gin.Context) {
	view, err := a.svc.Battlefield(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBattlefieldResponse(view))
}

func (a *API) wild(c *gin.Context) {
	itemID, ok := pathID(c)
	if !ok {
		return
	}
	var req wildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rank, err := hand.ParseRank(req.Rank)
	if err != nil {
		badRequest(c, err)
		return
	}
	suit := hand.SuitNone
	if !rank.IsJoker() {
		if suit, err = hand.ParseSuit(req.Suit); err != nil {
			badRequest(c, err)
			return
		}
	}

	card, err := a.svc.WildTransform(c.Request.Context(), req.UserID, itemID, suit, rank)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"card": newCardDTO(card)})
}

func (a *API) swap(c *gin.Context) {
	itemID, ok := pathID(c)
	if !ok {
		return
	}
	var req swapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := a.svc.Swap(c.Request.Context(), req.UserID, itemID, req.OfferedCardID, req.TargetTeamID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, swapResponse{LostCard: newCardDTO(&out.Lost), GainedCard: newCardDTO(&out.Gained)})
}

func (a *API) teamHand(c *gin.Context) {
	teamID, ok := pathID(c)
	if !ok {
		return
	}
	cards, err := a.svc.TeamHand(c.Request.Context(), teamID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teamId": teamID, "cards": newCardDTOs(cards)})
}

func (a *API) userRewards(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	cards, items, err := a.svc.UserRewards(c.Request.Context(), userID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "cards": newCardDTOs(cards), "items": newItemDTOs(items)})
}

func (a *API) sites(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sites": a.svc.Sites()})
}

func (a *API) redeemGift(c *gin.Context) {
	itemID, ok := pathID(c)
	if !ok {
		return
	}
	it, err := a.svc.RedeemGift(c.Request.Context(), itemID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": newItemDTO(it)})
}

func (a *API) initialFeedState(ctx context.Context) (*WSMessage, error) {
	view, err := a.svc.Battlefield(ctx)
	if err != nil {
		return nil, err
	}
	return &WSMessage{Type: MsgBattlefield, Data: newBattlefieldResponse(view)}, nil
}
