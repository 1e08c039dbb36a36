package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
	"github.com/andresuchdata/stockrisk/backend-go/internal/service"
)

type ConfigHandler struct {
	service *service.ConfigService
}

func NewConfigHandler(svc *service.ConfigService) *ConfigHandler {
	return &ConfigHandler{service: svc}
}

func (h *ConfigHandler) GetCriticality(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Criticality())
}

func (h *ConfigHandler) SaveCriticality(c *gin.Context) {
	var cfg domain.CriticalityConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respondError(c, "invalid criticality config", fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	snap, err := h.service.SaveCriticality(c.Request.Context(), cfg, userName(c), sessionID(c))
	if err != nil {
		respondError(c, "failed to save criticality config", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *ConfigHandler) ResetCriticality(c *gin.Context) {
	snap, err := h.service.ResetCriticality(c.Request.Context(), userName(c), sessionID(c))
	if err != nil {
		respondError(c, "failed to reset criticality config", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
