package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/stockrisk/backend-go/internal/cache"
	"github.com/andresuchdata/stockrisk/backend-go/internal/domain"
	"github.com/andresuchdata/stockrisk/backend-go/internal/pipeline/ledger"
	"github.com/andresuchdata/stockrisk/backend-go/internal/service"
)

const (
	SessionHeader = "X-Session-ID"
	UserHeader    = "X-User-Name"
	anonymousUser = "anonymous"
)

var errBadRequest = errors.New("bad request")

// parseLedgerFilter reads organization, location, item, from and to (YYYY-MM-DD).
func parseLedgerFilter(c *gin.Context) (domain.LedgerFilter, error) {
	filter := domain.LedgerFilter{
		Organization: strings.TrimSpace(c.Query("organization")),
		Location:     strings.TrimSpace(c.Query("location")),
		Item:         strings.TrimSpace(c.Query("item")),
	}

	parseDate := func(param string) (*time.Time, error) {
		value := strings.TrimSpace(c.Query(param))
		if value == "" {
			return nil, nil
		}
		t, err := time.Parse(domain.DateLayout, value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", errBadRequest, param)
		}
		return &t, nil
	}

	var err error
	if filter.From, err = parseDate("from"); err != nil {
		return filter, err
	}
	if filter.To, err = parseDate("to"); err != nil {
		return filter, err
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return filter, fmt.Errorf("%w: to is before from", errBadRequest)
	}
	return filter, nil
}

// parseGroupKey reads a fully specified group from the query string.
func parseGroupKey(c *gin.Context) (domain.GroupKey, error) {
	key := service.ParseGroupKey(c.Query("organization"), c.Query("location"), c.Query("item"))
	if key.Organization == "" || key.Location == "" || key.Item == "" {
		return key, fmt.Errorf("%w: organization, location and item are required", errBadRequest)
	}
	return key, nil
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	value := strings.TrimSpace(c.Query(name))
	if value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return n, nil
}

func sessionID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(SessionHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(c.Query("session_id"))
}

func userName(c *gin.Context) string {
	if name := strings.TrimSpace(c.GetHeader(UserHeader)); name != "" {
		return name
	}
	return anonymousUser
}

// respondError maps service errors to status codes.
func respondError(c *gin.Context, message string, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": message, "validation": verr.Report})
		return
	case errors.Is(err, domain.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": message, "details": err.Error()})
		return
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, service.ErrInvalidOrder),
		errors.Is(err, service.ErrEmptyUpload),
		errors.Is(err, ledger.ErrUnsupportedFormat),
		errors.Is(err, cache.ErrInvalidSession):
		c.JSON(http.StatusBadRequest, gin.H{"error": message, "details": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": message, "details": err.Error()})
}
