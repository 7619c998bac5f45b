package api

import (
	"TradeFuse/internal/domain/models"
	domrepo "TradeFuse/internal/domain/repository"
	"TradeFuse/internal/marketdata"
	"TradeFuse/internal/risk"
	"TradeFuse/internal/usecase"
	xhttp "TradeFuse/pkg/http"
	xlogger "TradeFuse/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// EngineHandler exposes the operator API: engine status, audit queries and
// run state controls.
type EngineHandler struct {
	logger     *xlogger.Logger
	controller *usecase.Controller
	collector  *usecase.TickCollector
	storage    domrepo.Storage
	builder    *marketdata.Builder
	book       *risk.Book
}

// NewEngineHandler creates the handler.
func NewEngineHandler(
	logger *xlogger.Logger,
	controller *usecase.Controller,
	collector *usecase.TickCollector,
	storage domrepo.Storage,
	builder *marketdata.Builder,
	book *risk.Book,
) *EngineHandler {
	return &EngineHandler{
		logger:     logger,
		controller: controller,
		collector:  collector,
		storage:    storage,
		builder:    builder,
		book:       book,
	}
}

// RegisterRoutes registers the operator API routes.
func (h *EngineHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/decisions", h.Decisions)
	g.GET("/orders", h.Orders)
	g.GET("/candles", h.Candles)
	g.GET("/positions", h.Positions)
	g.POST("/control/pause", h.Pause)
	g.POST("/control/resume", h.Resume)
	g.POST("/control/emergency", h.Emergency)
}

// Health reports storage and feed health.
func (h *EngineHandler) Health(c echo.Context) error {
	storageErr := h.storage.Health(c.Request().Context())

	status := map[string]interface{}{
		"state":          string(h.controller.State()),
		"feed_connected": h.collector.IsConnected(),
		"storage_ok":     storageErr == nil,
	}
	if storageErr != nil {
		status["storage_error"] = storageErr.Error()
	}
	return xhttp.SuccessResponse(c, status)
}

// Status returns the run state, open positions and recent errors.
func (h *EngineHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"state":          string(h.controller.State()),
		"feed_connected": h.collector.IsConnected(),
		"positions":      h.book.Positions(),
		"recent_errors":  h.logger.Recent().Snapshot(),
	})
}

// Decisions returns the latest fused decisions for one symbol.
func (h *EngineHandler) Decisions(c echo.Context) error {
	req := &models.DecisionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	decisions, err := h.storage.Decisions(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		h.logger.Error("decisions query error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.ListResponse(c, decisions, int64(len(decisions)))
}

// Orders returns the latest orders for one symbol.
func (h *EngineHandler) Orders(c echo.Context) error {
	req := &models.OrdersRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	orders, err := h.storage.Orders(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		h.logger.Error("orders query error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.ListResponse(c, orders, int64(len(orders)))
}

// Candles returns the in-memory candle window for one symbol.
func (h *EngineHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := domrepo.NormalizeTimeframe(req.TF)

	candles, err := h.builder.GetLatestNCandles(c.Request().Context(), req.Symbol, req.Lookback, tf)
	if err != nil {
		h.logger.Error("candles query error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.ListResponse(c, candles, int64(len(candles)))
}

type positionView struct {
	Symbol        string `json:"symbol"`
	Quantity      string `json:"quantity"`
	AvgEntry      string `json:"avg_entry"`
	RealizedPnL   string `json:"realized_pnl"`
	UnrealizedPnL string `json:"unrealized_pnl"`
}

// Positions returns open positions with live unrealized P&L.
func (h *EngineHandler) Positions(c echo.Context) error {
	positions := h.book.Positions()
	out := make([]positionView, 0, len(positions))
	for _, p := range positions {
		view := positionView{
			Symbol:      p.Symbol,
			Quantity:    p.Quantity.String(),
			AvgEntry:    p.AvgEntry.String(),
			RealizedPnL: p.RealizedPnL.String(),
		}
		if mark, ok := h.builder.LastPrice(p.Symbol); ok {
			view.UnrealizedPnL = p.UnrealizedPnL(decimal.NewFromFloat(mark)).String()
		}
		out = append(out, view)
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

// Pause suspends evaluation.
func (h *EngineHandler) Pause(c echo.Context) error {
	req := &models.ControlRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	reason := req.Reason
	if reason == "" {
		reason = "operator request"
	}
	h.controller.Pause(reason)
	return xhttp.AcceptedResponse(c, map[string]string{"state": string(h.controller.State())})
}

// Resume restarts evaluation after a pause.
func (h *EngineHandler) Resume(c echo.Context) error {
	if err := h.controller.Resume(); err != nil {
		return xhttp.ConflictResponse(c, err.Error())
	}
	return xhttp.AcceptedResponse(c, map[string]string{"state": string(h.controller.State())})
}

// Emergency triggers the emergency stop: cancel open orders, flatten all
// positions, halt.
func (h *EngineHandler) Emergency(c echo.Context) error {
	req := &models.ControlRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	reason := req.Reason
	if reason == "" {
		reason = "operator request"
	}
	h.controller.EmergencyStop(c.Request().Context(), reason)
	return xhttp.AcceptedResponse(c, map[string]string{"state": string(h.controller.State())})
}

var _ xhttp.Handler = (*EngineHandler)(nil)
