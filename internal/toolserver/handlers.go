package toolserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betbot/goperp/internal/domain"
)

// 请求体都是扁平 JSON，字段名与 domain 模型一致

type orderBody struct {
	Platform     domain.Platform `json:"platform" binding:"required"`
	Symbol       string          `json:"symbol" binding:"required"`
	Side         domain.Side     `json:"side"`
	PositionSide domain.Side     `json:"positionSide"`
	Size         float64         `json:"size"`
	Price        float64         `json:"price"`
	StopPrice    float64         `json:"stopPrice"`
	Leverage     int             `json:"leverage"`
	ReduceOnly   bool            `json:"reduceOnly"`
	OrderID      string          `json:"orderId"`
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (s *Server) handleOpenLong(c *gin.Context) {
	var body orderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.svc.OpenLong(c.Request.Context(), body.Platform, body.Symbol, body.Size, body.Price, body.Leverage))
}

func (s *Server) handleOpenShort(c *gin.Context) {
	var body orderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.svc.OpenShort(c.Request.Context(), body.Platform, body.Symbol, body.Size, body.Price, body.Leverage))
}

func (s *Server) handleCloseLong(c *gin.Context) {
	var body orderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.svc.CloseLong(c.Request.Context(), body.Platform, body.Symbol, body.Size))
}

func (s *Server) handleCloseShort(c *gin.Context) {
	var body orderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.svc.CloseShort(c.Request.Context(), body.Platform, body.Symbol, body.Size))
}

func (s *Server) handleClosePosition(c *gin.Context) {
	var body orderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.svc.ClosePosition(c.Request.Context(), body.Platform, body.Symbol))
}

func (s *Server) handleLimitOrder(c *gin.Context) {
	var body orderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.svc.PlaceLimitOrder(c.Request.Context(),
		body.Platform, body.Symbol, body.Side, body.Size, body.Price, body.ReduceOnly))
}

func (s *Server) handleMarketOrder(c *gin.Context) {
	var body orderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.svc.PlaceMarketOrder(c.Request.Context(),
		body.Platform, body.Symbol, body.Side, body.Size, body.ReduceOnly))
}

func (s *Server) handleStopLoss(c *gin.Context) {
	var body orderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.svc.PlaceStopLoss(c.Request.Context(),
		body.Platform, body.Symbol, body.PositionSide, body.Size, body.StopPrice))
}

func (s *Server) handleTakeProfit(c *gin.Context) {
	var body orderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.svc.PlaceTakeProfit(c.Request.Context(),
		body.Platform, body.Symbol, body.PositionSide, body.Size, body.StopPrice))
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	var body orderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.svc.CancelOrder(c.Request.Context(), body.Platform, body.Symbol, body.OrderID))
}

func (s *Server) handleCancelAll(c *gin.Context) {
	// platform/symbol 都可省略（全平台/全 symbol）
	var body struct {
		Platform domain.Platform `json:"platform"`
		Symbol   string          `json:"symbol"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	count := s.svc.CancelAllOrders(c.Request.Context(), body.Platform, body.Symbol)
	c.JSON(http.StatusOK, gin.H{"canceled": count})
}

func (s *Server) handleGetOpenOrders(c *gin.Context) {
	orders, err := s.svc.GetOpenOrders(c.Request.Context(),
		domain.Platform(c.Query("platform")), c.Query("symbol"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) handleGetPositions(c *gin.Context) {
	positions, err := s.svc.GetPositions(c.Request.Context(),
		domain.Platform(c.Query("platform")), c.Query("symbol"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) handleGetBalance(c *gin.Context) {
	balances, err := s.svc.GetBalance(c.Request.Context(), domain.Platform(c.Query("platform")))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

func (s *Server) handleGetFundingRate(c *gin.Context) {
	rate, err := s.svc.GetFundingRate(c.Request.Context(),
		domain.Platform(c.Query("platform")), c.Query("symbol"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rate)
}

func (s *Server) handleGetIncome(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	var start, end time.Time
	if v := c.Query("start"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			start = time.UnixMilli(ms)
		}
	}
	if v := c.Query("end"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			end = time.UnixMilli(ms)
		}
	}

	records, err := s.svc.GetIncomeHistory(c.Request.Context(),
		domain.Platform(c.Query("platform")), c.Query("symbol"), start, end, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) handleLiquidationPrice(c *gin.Context) {
	entry, _ := strconv.ParseFloat(c.Query("entryPrice"), 64)
	leverage, _ := strconv.Atoi(c.Query("leverage"))
	mmr, _ := strconv.ParseFloat(c.Query("mmr"), 64)
	side := domain.Side(c.DefaultQuery("side", string(domain.SideLong)))

	price := s.svc.CalculateLiquidationPrice(side, entry, leverage, mmr)
	c.JSON(http.StatusOK, gin.H{"liquidationPrice": price})
}

func (s *Server) handleSetLeverage(c *gin.Context) {
	var body orderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	ok := s.svc.SetLeverage(c.Request.Context(), body.Platform, body.Symbol, body.Leverage)
	c.JSON(http.StatusOK, gin.H{"success": ok})
}

func (s *Server) handleSetMarginType(c *gin.Context) {
	var body struct {
		Platform   domain.Platform   `json:"platform" binding:"required"`
		Symbol     string            `json:"symbol" binding:"required"`
		MarginType domain.MarginType `json:"marginType" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	ok := s.svc.SetMarginType(c.Request.Context(), body.Platform, body.Symbol, body.MarginType)
	c.JSON(http.StatusOK, gin.H{"success": ok})
}

func (s *Server) handlePlatforms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"platforms": s.svc.EnabledPlatforms(),
		"dryRun":    s.svc.DryRun(),
	})
}

func (s *Server) handleBreakerStatus(c *gin.Context) {
	cb := s.svc.Breaker()
	c.JSON(http.StatusOK, gin.H{
		"halted":              cb.Halted(),
		"consecutiveFailures": cb.ConsecutiveFailures(),
	})
}

func (s *Server) handleBreakerHalt(c *gin.Context) {
	s.svc.Breaker().Halt()
	log.Warn("⚠️ 已人工熔断，所有下单请求将被拒绝")
	c.JSON(http.StatusOK, gin.H{"halted": true})
}

func (s *Server) handleBreakerResume(c *gin.Context) {
	s.svc.Breaker().Resume()
	log.Info("✅ 熔断已人工恢复")
	c.JSON(http.StatusOK, gin.H{"halted": false})
}

func (s *Server) handleLedgerRecent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := s.ledger.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
