package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
	"github.com/andresuchdata/stockrisk/backend-go/internal/service"
)

type OrderHandler struct {
	service *service.OrderService
}

func NewOrderHandler(svc *service.OrderService) *OrderHandler {
	return &OrderHandler{service: svc}
}

type orderRequest struct {
	Organization string `json:"organization" binding:"required"`
	Location     string `json:"location" binding:"required"`
	Item         string `json:"item" binding:"required"`
	Qty          int    `json:"qty"`
	Priority     string `json:"priority"`
}

func (r orderRequest) key() domain.GroupKey {
	return service.ParseGroupKey(r.Organization, r.Location, r.Item)
}

func (h *OrderHandler) CreateSession(c *gin.Context) {
	id, err := h.service.CreateSession(c.Request.Context())
	if err != nil {
		respondError(c, "failed to create session", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

func (h *OrderHandler) GetOrdered(c *gin.Context) {
	keys, err := h.service.Ordered(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "failed to fetch ordered items", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ordered": keys})
}

func (h *OrderHandler) MarkOrdered(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "invalid request", fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := h.service.MarkOrdered(c.Request.Context(), c.Param("id"), userName(c), req.key()); err != nil {
		respondError(c, "failed to mark ordered", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *OrderHandler) UnmarkOrdered(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "invalid request", fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := h.service.UnmarkOrdered(c.Request.Context(), c.Param("id"), userName(c), req.key()); err != nil {
		respondError(c, "failed to unmark ordered", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "invalid request", fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	order, err := h.service.PlaceOrder(c.Request.Context(), service.OrderRequest{
		Key:       req.key(),
		Qty:       req.Qty,
		Priority:  req.Priority,
		UserName:  userName(c),
		SessionID: sessionID(c),
	})
	if err != nil {
		respondError(c, "failed to place order", err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) GetRecentActions(c *gin.Context) {
	hours, err := queryInt(c, "hours", 24)
	if err != nil {
		respondError(c, "invalid hours", err)
		return
	}
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		respondError(c, "invalid limit", err)
		return
	}
	actions, err := h.service.RecentActions(c.Request.Context(), hours, limit)
	if err != nil {
		respondError(c, "failed to fetch actions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}
