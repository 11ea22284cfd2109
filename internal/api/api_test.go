package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradeview/marketdata/internal/marketdata"
	"github.com/tradeview/marketdata/internal/resolve"
)

type fakeResolver struct {
	quotesFn func(symbols []string) (resolve.Envelope, error)
	barsFn   func(symbol string, tf marketdata.Timeframe, limit int) (resolve.Envelope, error)
}

func (f *fakeResolver) ResolveQuotes(_ context.Context, symbols []string) (resolve.Envelope, error) {
	return f.quotesFn(symbols)
}

func (f *fakeResolver) ResolveBars(_ context.Context, symbol string, tf marketdata.Timeframe, limit int) (resolve.Envelope, error) {
	return f.barsFn(symbol, tf, limit)
}

func doGet(t *testing.T, res Resolver, path string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(res, zap.NewNop())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

type errBody struct {
	Error struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		Suggestion string `json:"suggestion"`
	} `json:"error"`
}

func decodeError(t *testing.T, body []byte) errBody {
	t.Helper()
	var out errBody
	require.NoError(t, json.Unmarshal(body, &out), "error body: %s", body)
	return out
}

func TestHealth(t *testing.T) {
	w := doGet(t, &fakeResolver{}, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQuotesHappyPath(t *testing.T) {
	res := &fakeResolver{quotesFn: func(symbols []string) (resolve.Envelope, error) {
		// lowercase and duplicates are normalized away before resolution
		assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
		return resolve.Envelope{
			Quotes: map[string]marketdata.Quote{"AAPL": {Symbol: "AAPL"}, "MSFT": {Symbol: "MSFT"}},
			Source: resolve.SourceBackend,
		}, nil
	}}

	w := doGet(t, res, "/api/v1/quotes?symbols=aapl,MSFT,aapl")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var env resolve.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, resolve.SourceBackend, env.Source)
	assert.False(t, env.Mock)
}

func TestQuotesValidation(t *testing.T) {
	res := &fakeResolver{quotesFn: func([]string) (resolve.Envelope, error) {
		t.Fatalf("resolver must not be called on validation failure")
		return resolve.Envelope{}, nil
	}}

	for name, path := range map[string]string{
		"missing symbols": "/api/v1/quotes",
		"empty symbols":   "/api/v1/quotes?symbols=",
		"bad characters":  "/api/v1/quotes?symbols=AA$PL",
	} {
		w := doGet(t, res, path)
		require.Equal(t, http.StatusBadRequest, w.Code, name)
		body := decodeError(t, w.Body.Bytes())
		assert.Equal(t, "VALIDATION_ERROR", body.Error.Code, name)
	}
}

func TestQuotesTooManySymbols(t *testing.T) {
	var path = "/api/v1/quotes?symbols=S0"
	for i := 1; i <= maxSymbols; i++ {
		path += fmt.Sprintf(",S%d", i)
	}
	w := doGet(t, &fakeResolver{}, path)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuotesExhaustedMapsTo503(t *testing.T) {
	res := &fakeResolver{quotesFn: func([]string) (resolve.Envelope, error) {
		return resolve.Envelope{}, fmt.Errorf("%w: everything down", marketdata.ErrAllSourcesExhausted)
	}}
	w := doGet(t, res, "/api/v1/quotes?symbols=AAPL")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeError(t, w.Body.Bytes())
	assert.Equal(t, "DATA_UNAVAILABLE", body.Error.Code)
}

func TestQuotesInternalError(t *testing.T) {
	res := &fakeResolver{quotesFn: func([]string) (resolve.Envelope, error) {
		return resolve.Envelope{}, errors.New("boom")
	}}
	w := doGet(t, res, "/api/v1/quotes?symbols=AAPL")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestBarsHappyPathDefaults(t *testing.T) {
	res := &fakeResolver{barsFn: func(symbol string, tf marketdata.Timeframe, limit int) (resolve.Envelope, error) {
		assert.Equal(t, "AAPL", symbol)
		assert.Equal(t, marketdata.Timeframe1d, tf)
		assert.Equal(t, 100, limit)
		return resolve.Envelope{Bars: []marketdata.Bar{{Open: 1}}, Source: resolve.SourceStored}, nil
	}}

	w := doGet(t, res, "/api/v1/bars?symbol=aapl")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestBarsValidation(t *testing.T) {
	for name, path := range map[string]string{
		"missing symbol":    "/api/v1/bars",
		"multiple symbols":  "/api/v1/bars?symbol=AAPL,MSFT",
		"bad characters":    "/api/v1/bars?symbol=AA$PL",
		"bad timeframe":     "/api/v1/bars?symbol=AAPL&timeframe=3m",
		"limit zero":        "/api/v1/bars?symbol=AAPL&limit=0",
		"limit too large":   "/api/v1/bars?symbol=AAPL&limit=1001",
		"limit not numeric": "/api/v1/bars?symbol=AAPL&limit=ten",
	} {
		w := doGet(t, &fakeResolver{}, path)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}
}

func TestBarsValidationNamesSingularField(t *testing.T) {
	// The bars endpoint takes one symbol; its errors must say "symbol",
	// not the quote endpoint's "symbols".
	for name, path := range map[string]string{
		"missing symbol":   "/api/v1/bars",
		"multiple symbols": "/api/v1/bars?symbol=AAPL,MSFT",
		"bad characters":   "/api/v1/bars?symbol=AA$PL",
	} {
		w := doGet(t, &fakeResolver{}, path)
		require.Equal(t, http.StatusBadRequest, w.Code, name)
		body := decodeError(t, w.Body.Bytes())
		assert.Contains(t, body.Error.Message, "invalid symbol:", name)
		assert.NotContains(t, body.Error.Message, "invalid symbols:", name)
		assert.Contains(t, body.Error.Suggestion, "symbol=AAPL", name)
	}
}

func TestBarsLimitPassedThrough(t *testing.T) {
	res := &fakeResolver{barsFn: func(_ string, _ marketdata.Timeframe, limit int) (resolve.Envelope, error) {
		assert.Equal(t, 250, limit)
		return resolve.Envelope{Source: resolve.SourceBackend}, nil
	}}
	w := doGet(t, res, "/api/v1/bars?symbol=AAPL&timeframe=1h&limit=250")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
