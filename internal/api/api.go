// Package api exposes the resolution engine over HTTP. Validation is a pure
// pre-check: malformed input is rejected before any resolution attempt.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tradeview/marketdata/internal/marketdata"
	"github.com/tradeview/marketdata/internal/resolve"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	maxSymbols   = 50
)

// Resolver is the engine surface the handlers need.
type Resolver interface {
	ResolveQuotes(ctx context.Context, symbols []string) (resolve.Envelope, error)
	ResolveBars(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int) (resolve.Envelope, error)
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(res Resolver, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/health", healthHandler)

	v1 := r.Group("/api/v1")
	v1.GET("/quotes", quotesHandler(res))
	v1.GET("/bars", barsHandler(res))

	return r
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func quotesHandler(res Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		symbols, verr := parseSymbols(c.Query("symbols"))
		if verr != nil {
			writeValidationError(c, verr)
			return
		}

		env, err := res.ResolveQuotes(c.Request.Context(), symbols)
		if err != nil {
			writeResolveError(c, err)
			return
		}
		c.JSON(http.StatusOK, env)
	}
}

func barsHandler(res Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol, verr := parseSymbol(c.Query("symbol"))
		if verr != nil {
			writeValidationError(c, verr)
			return
		}

		tf, err := marketdata.ParseTimeframe(c.DefaultQuery("timeframe", "1d"))
		if err != nil {
			writeValidationError(c, marketdata.NewValidationError(
				"timeframe", err.Error(),
				"use one of: 1m, 5m, 15m, 30m, 1h, 2h, 4h, 1d, 1w, 1mo"))
			return
		}

		limit, verr := parseLimit(c.Query("limit"))
		if verr != nil {
			writeValidationError(c, verr)
			return
		}

		env, rerr := res.ResolveBars(c.Request.Context(), symbol, tf, limit)
		if rerr != nil {
			writeResolveError(c, rerr)
			return
		}
		c.JSON(http.StatusOK, env)
	}
}

// parseSymbols validates a comma-joined symbol list.
func parseSymbols(raw string) ([]string, *marketdata.ValidationError) {
	if strings.TrimSpace(raw) == "" {
		return nil, marketdata.NewValidationError(
			"symbols", "symbol list is empty",
			"pass one or more comma-separated symbols, e.g. symbols=AAPL,MSFT")
	}
	parts := strings.Split(raw, ",")
	if len(parts) > maxSymbols {
		return nil, marketdata.NewValidationError(
			"symbols", "too many symbols in one request",
			"request at most "+strconv.Itoa(maxSymbols)+" symbols per call")
	}

	seen := make(map[string]bool, len(parts))
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		sym := marketdata.NormalizeSymbol(p)
		if err := marketdata.ValidateSymbol(sym); err != nil {
			return nil, marketdata.NewValidationError(
				"symbols", err.Error(),
				"symbols may contain A-Z, 0-9, '.', '-' and '/'")
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	return symbols, nil
}

// parseSymbol validates the singular symbol parameter of a bars query.
func parseSymbol(raw string) (string, *marketdata.ValidationError) {
	if strings.TrimSpace(raw) == "" {
		return "", marketdata.NewValidationError(
			"symbol", "symbol is empty",
			"pass exactly one symbol, e.g. symbol=AAPL")
	}
	if strings.Contains(raw, ",") {
		return "", marketdata.NewValidationError(
			"symbol", "bar queries accept exactly one symbol",
			"request one symbol per bars call, e.g. symbol=AAPL")
	}
	sym := marketdata.NormalizeSymbol(raw)
	if err := marketdata.ValidateSymbol(sym); err != nil {
		return "", marketdata.NewValidationError(
			"symbol", err.Error(),
			"symbols may contain A-Z, 0-9, '.', '-' and '/'")
	}
	return sym, nil
}

func parseLimit(raw string) (int, *marketdata.ValidationError) {
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxLimit {
		return 0, marketdata.NewValidationError(
			"limit", "limit must be an integer between 1 and "+strconv.Itoa(maxLimit),
			"omit limit for the default of "+strconv.Itoa(defaultLimit))
	}
	return limit, nil
}

func writeValidationError(c *gin.Context, verr *marketdata.ValidationError) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":       "VALIDATION_ERROR",
			"message":    verr.Error(),
			"suggestion": verr.Suggestion,
		},
	})
}

func writeResolveError(c *gin.Context, err error) {
	if resolve.IsExhausted(err) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"code":       "DATA_UNAVAILABLE",
				"message":    err.Error(),
				"suggestion": "all data sources are currently unreachable; retry shortly",
			},
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    "INTERNAL",
			"message": err.Error(),
		},
	})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}
