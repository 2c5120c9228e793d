package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/doubles-rating/internal/api/handlers"
	"github.com/rl-arena/doubles-rating/internal/api/middleware"
	"github.com/rl-arena/doubles-rating/internal/service"
	"github.com/rl-arena/doubles-rating/internal/websocket"
	"github.com/rl-arena/doubles-rating/pkg/ratelimit"
)

// Dependencies are the services the HTTP layer serves. Hub may be nil.
type Dependencies struct {
	Ledger         *service.LedgerService
	Standings      *service.StandingsService
	MVP            *service.MVPService
	Hub            *websocket.Hub
	SubmitLimiter  ratelimit.Limiter
	SubmitLimit    int
	AllowedOrigins []string
	Env            string
}

// SetupRouter API 라우터 설정
func SetupRouter(deps Dependencies) *gin.Engine {
	if deps.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(deps.AllowedOrigins))

	// Handler 초기화
	healthHandler := handlers.NewHealthHandler(deps.Ledger)
	matchHandler := handlers.NewMatchHandler(deps.Ledger)
	playerHandler := handlers.NewPlayerHandler(deps.Ledger)
	standingsHandler := handlers.NewStandingsHandler(deps.Standings)
	mvpHandler := handlers.NewMVPHandler(deps.MVP)

	// Health check
	router.GET("/health", healthHandler.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		matches := v1.Group("/matches")
		{
			submit := []gin.HandlerFunc{matchHandler.SubmitMatch}
			if deps.SubmitLimiter != nil {
				submit = append([]gin.HandlerFunc{
					middleware.RateLimit(deps.SubmitLimiter, deps.SubmitLimit, time.Minute),
				}, submit...)
			}
			matches.POST("", submit...)
			matches.GET("", matchHandler.ListMatches)
			matches.GET("/:id", matchHandler.GetMatch)
		}

		v1.POST("/simulate", matchHandler.Simulate)

		players := v1.Group("/players")
		{
			players.GET("/:id", playerHandler.GetPlayer)
			players.GET("/:id/history", playerHandler.GetPlayerHistory)
		}

		v1.GET("/standings", standingsHandler.GetStandings)

		mvp := v1.Group("/mvp")
		{
			mvp.GET("/evening", mvpHandler.GetEveningMVP)
			mvp.GET("/month", mvpHandler.GetMonthMVP)
		}

		if deps.Hub != nil {
			wsHandler := handlers.NewWebSocketHandler(deps.Hub, deps.AllowedOrigins)
			v1.GET("/ws", wsHandler.HandleWebSocket)
		}
	}

	return router
}
