package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/stockrisk/backend-go/internal/service"
)

const uploadField = "file"

type LedgerHandler struct {
	service        *service.IngestService
	maxUploadBytes int64
}

func NewLedgerHandler(ingest *service.IngestService, maxUploadMB int) *LedgerHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 20
	}
	return &LedgerHandler{service: ingest, maxUploadBytes: int64(maxUploadMB) << 20}
}

// readUpload returns the name and content of the multipart "file" field.
func (h *LedgerHandler) readUpload(c *gin.Context) (string, []byte, error) {
	fh, err := c.FormFile(uploadField)
	if err != nil {
		return "", nil, fmt.Errorf("%w: multipart field %q is required", errBadRequest, uploadField)
	}
	if fh.Size > h.maxUploadBytes {
		return "", nil, fmt.Errorf("%w: file exceeds %d bytes", errBadRequest, h.maxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	return fh.Filename, data, nil
}

// Validate checks a ledger file and returns the report without ingesting it.
func (h *LedgerHandler) Validate(c *gin.Context) {
	name, data, err := h.readUpload(c)
	if err != nil {
		respondError(c, "invalid upload", err)
		return
	}
	report, err := h.service.ValidateUpload(c.Request.Context(), name, data)
	if err != nil {
		respondError(c, "failed to validate file", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *LedgerHandler) Upload(c *gin.Context) {
	name, data, err := h.readUpload(c)
	if err != nil {
		respondError(c, "invalid upload", err)
		return
	}
	result, err := h.service.Upload(c.Request.Context(), service.UploadRequest{
		FileName:  name,
		Data:      data,
		UserName:  userName(c),
		SessionID: sessionID(c),
	})
	if err != nil {
		respondError(c, "failed to ingest file", err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *LedgerHandler) GetRuns(c *gin.Context) {
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		respondError(c, "invalid limit", err)
		return
	}
	runs, err := h.service.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		respondError(c, "failed to fetch ingest runs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *LedgerHandler) GetRunFiles(c *gin.Context) {
	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || runID <= 0 {
		respondError(c, "invalid run id", fmt.Errorf("%w: run id must be a positive integer", errBadRequest))
		return
	}
	files, err := h.service.RunFiles(c.Request.Context(), runID)
	if err != nil {
		respondError(c, "failed to fetch run files", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "files": files})
}

func (h *LedgerHandler) GetStats(c *gin.Context) {
	hours, err := queryInt(c, "hours", 24)
	if err != nil {
		respondError(c, "invalid hours", err)
		return
	}
	stats, err := h.service.Stats(c.Request.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		respondError(c, "failed to fetch ingest stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
