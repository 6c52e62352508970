package statushttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oipulse/internal/chain"
	"oipulse/internal/engine"
	"oipulse/internal/signal"
	"oipulse/internal/store"
)

type fakeEngineSource struct {
	status     engine.Status
	indicators map[string]chain.IndicatorSet
}

func (f *fakeEngineSource) Status() engine.Status {
	return f.status
}

func (f *fakeEngineSource) Indicators(instrument string) (chain.IndicatorSet, bool) {
	ind, ok := f.indicators[instrument]
	return ind, ok
}

type fakeLedgerSource struct {
	signals   []signal.Signal
	summaries []store.DaySummaryRecord
	lastLimit int
	err       error
}

func (f *fakeLedgerSource) ListRecentSignals(_ context.Context, limit int) ([]signal.Signal, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.signals, nil
}

func (f *fakeLedgerSource) SummariesOn(_ context.Context, _ string) ([]store.DaySummaryRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.summaries, nil
}

func newTestRouter(eng EngineSource, ledger LedgerSource) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewRouter(eng, ledger).Register(router.Group("/api"))
	return router
}

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStatusEndpoint(t *testing.T) {
	eng := &fakeEngineSource{
		status: engine.Status{
			MarketOpen: true,
			Instruments: []engine.InstrumentStatus{{
				Instrument:     "NIFTY",
				TradingDate:    "2025-08-25",
				Gate:           "OPEN",
				SignalsEmitted: 2,
				Spot:           24060,
			}},
			UpdatedAt: time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC),
		},
	}
	router := newTestRouter(eng, &fakeLedgerSource{})

	w := get(t, router, "/api/status")
	require.Equal(t, http.StatusOK, w.Code)

	var got engine.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.MarketOpen)
	require.Len(t, got.Instruments, 1)
	assert.Equal(t, "NIFTY", got.Instruments[0].Instrument)
	assert.Equal(t, 2, got.Instruments[0].SignalsEmitted)
	assert.InDelta(t, 24060, got.Instruments[0].Spot, 1e-9)
}

func TestIndicatorsEndpoint(t *testing.T) {
	eng := &fakeEngineSource{
		indicators: map[string]chain.IndicatorSet{
			"NIFTY": {Instrument: "NIFTY", Pcr: 1.25, PutOiDelta: -180000, PriceDirection: chain.DirectionUp},
		},
	}
	router := newTestRouter(eng, &fakeLedgerSource{})

	t.Run("known instrument", func(t *testing.T) {
		w := get(t, router, "/api/indicators/NIFTY")
		require.Equal(t, http.StatusOK, w.Code)

		var got chain.IndicatorSet
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.InDelta(t, 1.25, got.Pcr, 1e-9)
		assert.InDelta(t, -180000, got.PutOiDelta, 1e-9)
	})

	t.Run("unknown instrument", func(t *testing.T) {
		w := get(t, router, "/api/indicators/SENSEX")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "error")
	})
}

func TestSignalsEndpoint(t *testing.T) {
	ledger := &fakeLedgerSource{
		signals: []signal.Signal{
			{ID: "sig-2", Instrument: "NIFTY", Action: signal.ActionCEBuy},
			{ID: "sig-1", Instrument: "NIFTY", Action: signal.ActionPEBuy},
		},
	}
	router := newTestRouter(&fakeEngineSource{}, ledger)

	t.Run("default limit", func(t *testing.T) {
		w := get(t, router, "/api/signals")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 50, ledger.lastLimit)

		var body struct {
			Count   int             `json:"count"`
			Signals []signal.Signal `json:"signals"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, 2, body.Count)
		require.Len(t, body.Signals, 2)
		assert.Equal(t, "sig-2", body.Signals[0].ID)
	})

	t.Run("limit clamped", func(t *testing.T) {
		get(t, router, "/api/signals?limit=9999")
		assert.Equal(t, 500, ledger.lastLimit)

		get(t, router, "/api/signals?limit=-3")
		assert.Equal(t, 50, ledger.lastLimit)
	})

	t.Run("ledger failure", func(t *testing.T) {
		broken := &fakeLedgerSource{err: errors.New("db locked")}
		w := get(t, newTestRouter(&fakeEngineSource{}, broken), "/api/signals")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestSummaryEndpoint(t *testing.T) {
	ledger := &fakeLedgerSource{
		summaries: []store.DaySummaryRecord{{
			TradingDate: "2025-08-25",
			Instrument:  "NIFTY",
			Signals:     3,
			Wins:        2,
			NetPoints:   130,
		}},
	}
	router := newTestRouter(&fakeEngineSource{}, ledger)

	t.Run("valid date", func(t *testing.T) {
		w := get(t, router, "/api/summary/2025-08-25")
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			TradingDate string                   `json:"trading_date"`
			Summaries   []store.DaySummaryRecord `json:"summaries"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "2025-08-25", body.TradingDate)
		require.Len(t, body.Summaries, 1)
		assert.Equal(t, 3, body.Summaries[0].Signals)
	})

	t.Run("malformed date", func(t *testing.T) {
		w := get(t, router, "/api/summary/25-08-2025")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRouterWithoutLedgerSkipsLedgerRoutes(t *testing.T) {
	router := newTestRouter(&fakeEngineSource{}, nil)

	w := get(t, router, "/api/signals")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewServer(t *testing.T) {
	t.Run("requires engine", func(t *testing.T) {
		_, err := NewServer(ServerConfig{})
		assert.Error(t, err)
	})

	t.Run("defaults addr and serves healthz", func(t *testing.T) {
		s, err := NewServer(ServerConfig{Engine: &fakeEngineSource{}})
		require.NoError(t, err)
		assert.Equal(t, ":8743", s.Addr())

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ok")
	})
}
