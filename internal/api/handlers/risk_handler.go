package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
	"github.com/andresuchdata/stockrisk/backend-go/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type RiskHandler struct {
	service *service.RiskService
	orders  *service.OrderService
}

func NewRiskHandler(risk *service.RiskService, orders *service.OrderService) *RiskHandler {
	return &RiskHandler{service: risk, orders: orders}
}

func (h *RiskHandler) GetOverview(c *gin.Context) {
	filter, err := parseLedgerFilter(c)
	if err != nil {
		respondError(c, "invalid filter", err)
		return
	}
	overview, err := h.service.Overview(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "failed to fetch overview", err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *RiskHandler) GetAlerts(c *gin.Context) {
	filter, err := parseLedgerFilter(c)
	if err != nil {
		respondError(c, "invalid filter", err)
		return
	}
	alerts, err := h.service.Alerts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "failed to fetch alerts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "total": len(alerts)})
}

// GetActions returns the action panel for the caller's session.
func (h *RiskHandler) GetActions(c *gin.Context) {
	filter, err := parseLedgerFilter(c)
	if err != nil {
		respondError(c, "invalid filter", err)
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		respondError(c, "invalid limit", err)
		return
	}
	entries, err := h.service.Actions(c.Request.Context(), filter, sessionID(c), limit)
	if err != nil {
		respondError(c, "failed to rank actions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": entries})
}

func (h *RiskHandler) GetReorders(c *gin.Context) {
	filter, err := parseLedgerFilter(c)
	if err != nil {
		respondError(c, "invalid filter", err)
		return
	}
	report, err := h.service.Reorders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "failed to plan reorders", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *RiskHandler) GetHeatmap(c *gin.Context) {
	filter, err := parseLedgerFilter(c)
	if err != nil {
		respondError(c, "invalid filter", err)
		return
	}
	cells, err := h.service.Heatmap(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "failed to build heatmap", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cells": cells})
}

// GetWhatIf projects an order for one group. Without order_qty the suggested quantity is used.
func (h *RiskHandler) GetWhatIf(c *gin.Context) {
	key, err := parseGroupKey(c)
	if err != nil {
		respondError(c, "invalid group", err)
		return
	}
	window, err := parseLedgerFilter(c)
	if err != nil {
		respondError(c, "invalid filter", err)
		return
	}

	var qty *int
	if c.Query("order_qty") != "" {
		n, err := queryInt(c, "order_qty", 0)
		if err != nil {
			respondError(c, "invalid order quantity", err)
			return
		}
		qty = &n
	}

	projection, err := h.service.WhatIf(c.Request.Context(), key, window, qty)
	if err != nil {
		respondError(c, "failed to project order", err)
		return
	}
	c.JSON(http.StatusOK, projection)
}

func (h *RiskHandler) GetHistory(c *gin.Context) {
	key, err := parseGroupKey(c)
	if err != nil {
		respondError(c, "invalid group", err)
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		respondError(c, "invalid limit", err)
		return
	}
	points, err := h.service.History(c.Request.Context(), key, limit)
	if err != nil {
		respondError(c, "failed to fetch history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "points": points})
}

// ExportReorders streams the reorder list as an XLSX attachment.
func (h *RiskHandler) ExportReorders(c *gin.Context) {
	filter, err := parseLedgerFilter(c)
	if err != nil {
		respondError(c, "invalid filter", err)
		return
	}

	var buf bytes.Buffer
	n, err := h.service.ExportReorders(c.Request.Context(), filter, &buf)
	if err != nil {
		respondError(c, "failed to export reorders", err)
		return
	}
	if h.orders != nil {
		h.orders.LogAction(c.Request.Context(), domain.ActionExportDownloaded, userName(c), sessionID(c), fmt.Sprintf("rows=%d", n))
	}

	name := fmt.Sprintf("reorders_%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *RiskHandler) GetFilterOptions(c *gin.Context) {
	opts, err := h.service.FilterOptions(c.Request.Context())
	if err != nil {
		respondError(c, "failed to fetch filter options", err)
		return
	}
	c.JSON(http.StatusOK, opts)
}
