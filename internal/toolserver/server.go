package toolserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/goperp/internal/ledger"
	"github.com/betbot/goperp/internal/services"
)

var log = logrus.WithField("component", "toolserver")

// Server 把执行服务的操作暴露为 HTTP 工具接口，供上层 agent/聊天层调用。
// 纯转发胶水：不做业务逻辑，不做鉴权（部署时靠网络边界隔离）。
type Server struct {
	svc    *services.FuturesService
	ledger *ledger.Ledger // 可选
}

// New 创建工具服务。ldg 可以为 nil（不暴露账本接口）。
func New(svc *services.FuturesService, ldg *ledger.Ledger) *Server {
	return &Server{svc: svc, ledger: ldg}
}

// Router 组装路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api/futures")

	orders := api.Group("/orders")
	orders.POST("/open_long", s.handleOpenLong)
	orders.POST("/open_short", s.handleOpenShort)
	orders.POST("/close_long", s.handleCloseLong)
	orders.POST("/close_short", s.handleCloseShort)
	orders.POST("/close_position", s.handleClosePosition)
	orders.POST("/limit", s.handleLimitOrder)
	orders.POST("/market", s.handleMarketOrder)
	orders.POST("/stop_loss", s.handleStopLoss)
	orders.POST("/take_profit", s.handleTakeProfit)
	orders.POST("/cancel", s.handleCancelOrder)
	orders.POST("/cancel_all", s.handleCancelAll)
	orders.GET("/open", s.handleGetOpenOrders)

	api.GET("/positions", s.handleGetPositions)
	api.GET("/balance", s.handleGetBalance)
	api.GET("/funding_rate", s.handleGetFundingRate)
	api.GET("/income", s.handleGetIncome)
	api.GET("/liquidation_price", s.handleLiquidationPrice)
	api.POST("/leverage", s.handleSetLeverage)
	api.POST("/margin_type", s.handleSetMarginType)
	api.GET("/platforms", s.handlePlatforms)

	api.GET("/breaker", s.handleBreakerStatus)
	api.POST("/breaker/halt", s.handleBreakerHalt)
	api.POST("/breaker/resume", s.handleBreakerResume)

	if s.ledger != nil {
		r.GET("/api/ledger/recent", s.handleLedgerRecent)
	}

	return r
}
