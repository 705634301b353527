// Package api exposes the RPC command catalog over HTTP. Every command is a
// POST with a JSON body; responses are always HTTP 200 carrying either the
// success payload or an error reason value, so failures never surface as
// transport errors.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openoutcry/crier/internal/auction"
	"github.com/openoutcry/crier/pkg/wire"
)

// Handler maps wire requests onto dispatcher commands.
type Handler struct {
	service *auction.Service
	logger  *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(service *auction.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// NewRouter configures the gin routes for the command catalog.
func NewRouter(service *auction.Service, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	h := NewHandler(service, logger)

	rpc := router.Group("/rpc")
	{
		rpc.POST("/createAuction", h.CreateAuction)
		rpc.POST("/createBid", h.CreateBid)
		rpc.POST("/finalizeAuction", h.FinalizeAuction)
		rpc.POST("/getAuctionData", h.GetAuctionData)
		rpc.POST("/sub", h.Subscribe)
	}

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return router
}

// CreateAuction handles POST /rpc/createAuction.
func (h *Handler) CreateAuction(c *gin.Context) {
	var req wire.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, auction.ErrInvalidParams)
		return
	}

	id, err := h.service.CreateAuction(c.Request.Context(), auction.CreateAuctionCommand{
		Name:      req.Name,
		MinPrice:  req.MinPrice,
		OwnerName: req.UserName,
		Signature: req.Signature,
		PublicKey: req.PublicKey,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.CreateAuctionResponse{Success: true, ID: id})
}

// CreateBid handles POST /rpc/createBid.
func (h *Handler) CreateBid(c *gin.Context) {
	var req wire.CreateBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, auction.ErrInvalidParams)
		return
	}

	err := h.service.PlaceBid(c.Request.Context(), auction.PlaceBidCommand{
		AuctionID: req.AuctionID,
		Amount:    req.Amount,
		Bidder:    req.UserName,
		Signature: req.Signature,
		PublicKey: req.PublicKey,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.GenericResponse{Success: true})
}

// FinalizeAuction handles POST /rpc/finalizeAuction.
func (h *Handler) FinalizeAuction(c *gin.Context) {
	var req wire.FinalizeAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, auction.ErrInvalidParams)
		return
	}

	res, err := h.service.FinalizeAuction(c.Request.Context(), auction.FinalizeAuctionCommand{
		AuctionID: req.AuctionID,
		OwnerName: req.UserName,
		Signature: req.Signature,
		PublicKey: req.PublicKey,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.FinalizeAuctionResponse{
		Success:     true,
		WinnerName:  res.WinnerName,
		WinnerPrice: res.WinnerPrice,
	})
}

// GetAuctionData handles POST /rpc/getAuctionData.
func (h *Handler) GetAuctionData(c *gin.Context) {
	snapshot := h.service.AuctionData()
	out := make([]wire.AuctionData, 0, len(snapshot))
	for _, s := range snapshot {
		row := wire.AuctionData{
			ID:       s.ID,
			Name:     s.Name,
			MinPrice: s.MinPrice,
			UserName: s.OwnerName,
			Closed:   s.Closed,
		}
		if s.CurrentPrice != nil {
			price := s.CurrentPrice.Amount
			row.CurrentPrice = &price
			row.CurrentBidder = s.CurrentPrice.Bidder
		}
		if s.Closed {
			row.WinnerName = s.WinnerName
			winnerPrice := s.WinnerPrice
			row.WinnerPrice = &winnerPrice
		}
		out = append(out, row)
	}
	c.JSON(http.StatusOK, out)
}

// Subscribe handles POST /rpc/sub.
func (h *Handler) Subscribe(c *gin.Context) {
	var req wire.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, auction.ErrInvalidParams)
		return
	}
	if err := h.service.Subscribe(c.Request.Context(), req.Endpoint); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.GenericResponse{Success: true})
}

// fail writes the command failure as a value. Infrastructure errors are
// logged and surfaced as a generic reason.
func (h *Handler) fail(c *gin.Context, err error) {
	reason := reasonFor(err)
	if reason == wire.ReasonInternalError {
		h.logger.Error("command failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(http.StatusOK, wire.GenericResponse{Error: reason})
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, auction.ErrNoAuctionName):
		return wire.ReasonNoAuctionName
	case errors.Is(err, auction.ErrInvalidParams):
		return wire.ReasonInvalidParams
	case errors.Is(err, auction.ErrUnknownAuction):
		return wire.ReasonUnknownAuction
	case errors.Is(err, auction.ErrAuctionClosed):
		return wire.ReasonAuctionClosed
	case errors.Is(err, auction.ErrBidTooLow):
		return wire.ReasonBidTooLow
	case errors.Is(err, auction.ErrOnlyOwnerCanFinalize):
		return wire.ReasonOnlyOwnerCanFinalize
	default:
		return wire.ReasonInternalError
	}
}
