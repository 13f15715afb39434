package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/definite-protocol/dne/internal/engine"
	"github.com/definite-protocol/dne/internal/events"
	"github.com/definite-protocol/dne/internal/risk"
	"github.com/definite-protocol/dne/internal/types"
	"github.com/definite-protocol/dne/internal/venues"
)

const testOperatorToken = "test-operator-token"

func newServerFixture(t *testing.T) *WebServer {
	t.Helper()

	analytics := venues.NewSimAnalytics(types.PortfolioState{
		TotalAssets:     sdkmath.NewInt(1_000_000),
		LeverageRatio:   sdkmath.LegacyNewDecWithPrec(15, 1),
		LiquidityRatio:  sdkmath.LegacyNewDecWithPrec(2, 1),
		DrawdownBps:     500,
		CorrelationRisk: 40,
		VolatilityRisk:  35,
		Timestamp:       time.Now().UTC(),
	})
	riskParams := types.RiskParameters{
		Weights:           types.RiskWeights{Leverage: 25, Liquidity: 20, Drawdown: 30, Correlation: 15, Volatility: 10},
		MaxLeverage:       sdkmath.LegacyNewDecWithPrec(20, 1),
		MinLiquidityRatio: sdkmath.LegacyNewDecWithPrec(1, 1),
		MaxDrawdownBps:    2000,
	}
	breakerParams := types.CircuitBreakerParams{
		PriceDropBps:          1000,
		PriceWindow:           15 * time.Minute,
		VolatilityMultipleBps: 30000,
		MinLiquidityRatio:     sdkmath.LegacyNewDecWithPrec(5, 2),
		MaxDrawdownBps:        2500,
	}
	riskMgr, err := risk.NewManager("owner-address", riskParams, breakerParams, analytics, events.NewBus(), nil)
	require.NoError(t, err)

	eng, err := engine.New(engine.Config{
		Owner:    "owner-address",
		KeeperID: "keeper-address",
		Asset:    "ATOM",
		Params: types.RebalanceParams{
			ExecutionThreshold:     sdkmath.NewInt(100_000),
			CheckInterval:          time.Hour,
			EmergencyCheckInterval: 15 * time.Minute,
			KeeperRewardBps:        10,
			MaxSlippageBps:         50,
		},
		Custody:     venues.NewSimCustodyLedger(sdkmath.NewInt(1_000_000), sdkmath.NewInt(1_000_000)),
		Perpetual:   venues.NewSimPerpetualVenue(sdkmath.NewInt(800_000)),
		Options:     venues.NewSimOptionsVenue(types.SignedFromInt(sdkmath.NewInt(-50_000))),
		PriceFeed:   venues.NewSimPriceFeed(nil),
		RiskManager: riskMgr,
		Bus:         events.NewBus(),
	})
	require.NoError(t, err)

	return NewWebServer("8080", eng, riskMgr, testOperatorToken)
}

func serve(ws *WebServer, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ws.router.ServeHTTP(rr, req)
	return rr
}

func TestPointInTimeLookupsRejectMalformedTimestamp(t *testing.T) {
	ws := newServerFixture(t)

	rr := serve(ws, httptest.NewRequest("GET", "/api/risk/history?at=not-a-time", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(ws, httptest.NewRequest("GET", "/api/prices/latest?at=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLatestPersistedExposureRouteIsRegistered(t *testing.T) {
	ws := newServerFixture(t)

	// No database behind the fixture, so the lookup finds nothing. A 404
	// proves the route resolved to the handler rather than the router.
	rr := serve(ws, httptest.NewRequest("GET", "/api/exposure/latest", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCycleCounterResetRequiresOperatorToken(t *testing.T) {
	ws := newServerFixture(t)
	body := strings.NewReader(`{"cycle_number": 7}`)

	rr := serve(ws, httptest.NewRequest("POST", "/api/cycle-counter/reset", body))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest("POST", "/api/cycle-counter/reset", strings.NewReader(`{"cycle_number": 7}`))
	req.Header.Set("Authorization", "Bearer wrong-token")
	rr = serve(ws, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCycleCounterResetValidatesBody(t *testing.T) {
	ws := newServerFixture(t)

	req := httptest.NewRequest("POST", "/api/cycle-counter/reset", strings.NewReader(`{"cycle_number": -1}`))
	req.Header.Set("Authorization", "Bearer "+testOperatorToken)
	rr := serve(ws, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest("POST", "/api/cycle-counter/reset", strings.NewReader(`not json`))
	req.Header.Set("Authorization", "Bearer "+testOperatorToken)
	rr = serve(ws, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
