package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/definite-protocol/dne/internal/engine"
	"github.com/definite-protocol/dne/internal/logger"
	"github.com/definite-protocol/dne/internal/risk"
	"github.com/definite-protocol/dne/internal/state"
	"github.com/definite-protocol/dne/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the operator API. All responses are JSON; mutating
// endpoints require the operator token and execute under the owner identity.
type WebServer struct {
	router        *mux.Router
	port          string
	engine        *engine.Engine
	riskMgr       *risk.Manager
	operatorToken string
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, eng *engine.Engine, riskMgr *risk.Manager, operatorToken string) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:        mux.NewRouter(),
		port:          port,
		engine:        eng,
		riskMgr:       riskMgr,
		operatorToken: operatorToken,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/risk/metrics", ws.handleGetRiskMetrics).Methods("GET")
	api.HandleFunc("/risk/level", ws.handleGetRiskLevel).Methods("GET")
	api.HandleFunc("/risk/history", ws.handleGetRiskHistory).Methods("GET")
	api.HandleFunc("/circuit-breaker", ws.handleGetCircuitBreaker).Methods("GET")
	api.HandleFunc("/exposure", ws.handleGetExposure).Methods("GET")
	api.HandleFunc("/exposure/latest", ws.handleGetLatestPersistedExposure).Methods("GET")
	api.HandleFunc("/prices/latest", ws.handleGetLatestPrice).Methods("GET")
	api.HandleFunc("/rebalancings", ws.handleGetRebalancings).Methods("GET")
	api.HandleFunc("/rebalancings/latest", ws.handleGetLatestRebalancing).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")
	api.HandleFunc("/keepers", ws.handleGetKeepers).Methods("GET")

	// Operator-token-gated mutations
	api.Handle("/circuit-breaker/activate", ws.requireOperator(ws.handleActivateCircuitBreaker)).Methods("POST")
	api.Handle("/circuit-breaker/deactivate", ws.requireOperator(ws.handleDeactivateCircuitBreaker)).Methods("POST")
	api.Handle("/keepers", ws.requireOperator(ws.handleAddKeeper)).Methods("POST")
	api.Handle("/keepers/{address}", ws.requireOperator(ws.handleRemoveKeeper)).Methods("DELETE")
	api.Handle("/cycle-counter/reset", ws.requireOperator(ws.handleResetCycleCounter)).Methods("POST")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server and engine health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
	}

	breaker := ws.riskMgr.CircuitBreakerState()
	total, failed := ws.engine.Counters()

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy || breaker.Active {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	engineStatus := map[string]interface{}{
		"database_healthy":       dbHealthy,
		"paused":                 ws.engine.Paused(),
		"emergency_mode":         ws.engine.EmergencyMode(),
		"circuit_breaker_active": breaker.Active,
		"total_rebalancings":     total,
		"failed_rebalancings":    failed,
		"risk_level":             ws.riskMgr.GetRiskLevel().String(),
	}
	if cycle, err := state.GetCurrentCycleNumber(); err == nil {
		engineStatus["cycle_number"] = cycle
	}

	response := map[string]interface{}{
		"status":        overallStatus,
		"timestamp":     time.Now().UTC().Format(time.RFC3339Nano),
		"engine_status": engineStatus,
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetRiskMetrics returns the last committed risk assessment
func (ws *WebServer) handleGetRiskMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := ws.riskMgr.GetRiskMetrics()
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "No risk assessment available yet")
		return
	}

	response := map[string]interface{}{
		"metrics":      metrics,
		"risk_level":   ws.riskMgr.GetRiskLevel().String(),
		"health_score": metrics.HealthScore(),
	}
	if hedgeRatio, err := ws.riskMgr.EstimateHedgeRatioBps(); err == nil {
		response["hedge_ratio_bps"] = hedgeRatio
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetRiskLevel returns the discrete risk level
func (ws *WebServer) handleGetRiskLevel(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"risk_level": ws.riskMgr.GetRiskLevel().String(),
		"timestamp":  time.Now().UTC(),
	}
	if metrics, err := ws.riskMgr.GetRiskMetrics(); err == nil {
		response["risk_score"] = metrics.RiskScore
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetRiskHistory returns the persisted assessment in effect at a point
// in time. The "at" query parameter is RFC3339; omitted, it means now.
func (ws *WebServer) handleGetRiskHistory(w http.ResponseWriter, r *http.Request) {
	at, err := parseAtParam(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid 'at' parameter, expected RFC3339 timestamp")
		return
	}

	metrics, err := state.GetRiskScoreAt(at)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "No risk assessment recorded at or before the requested time")
		return
	}

	response := map[string]interface{}{
		"at":           at,
		"metrics":      metrics,
		"health_score": metrics.HealthScore(),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetCircuitBreaker returns the breaker state
func (ws *WebServer) handleGetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.riskMgr.CircuitBreakerState())
}

// handleGetExposure returns a fresh exposure evaluation
func (ws *WebServer) handleGetExposure(w http.ResponseWriter, r *http.Request) {
	snapshot, err := ws.engine.DeltaExposure()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to compute exposure")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to compute exposure")
		return
	}

	needed, err := ws.engine.CheckRebalancingNeeded()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to check rebalancing need")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to check rebalancing need")
		return
	}

	response := map[string]interface{}{
		"snapshot":           snapshot,
		"rebalancing_needed": needed,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetLatestPersistedExposure returns the newest snapshot that reached
// the executor, as opposed to the fresh evaluation served by /exposure.
func (ws *WebServer) handleGetLatestPersistedExposure(w http.ResponseWriter, r *http.Request) {
	snapshot, err := state.GetLatestExposureSnapshot()
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "No exposure snapshot recorded")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, snapshot)
}

// handleGetLatestPrice returns the newest persisted oracle observation at or
// before the optional RFC3339 "at" parameter.
func (ws *WebServer) handleGetLatestPrice(w http.ResponseWriter, r *http.Request) {
	at, err := parseAtParam(r)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid 'at' parameter, expected RFC3339 timestamp")
		return
	}

	price, observedAt, err := state.GetPriceAtOrBefore(at)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "No price observation recorded at or before the requested time")
		return
	}

	response := map[string]interface{}{
		"price":       price.String(),
		"observed_at": observedAt,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetRebalancings returns paginated rebalancing history
func (ws *WebServer) handleGetRebalancings(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	records, err := state.GetRebalancingRecords(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get rebalancing records")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve rebalancing records")
		return
	}

	failedCount, err := state.CountFailedRebalancings()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to count failed rebalancings")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve failure count")
		return
	}

	response := map[string]interface{}{
		"records":      records,
		"count":        len(records),
		"limit":        limit,
		"failed_total": failedCount,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetLatestRebalancing returns the most recent record
func (ws *WebServer) handleGetLatestRebalancing(w http.ResponseWriter, r *http.Request) {
	record, err := state.GetLatestRebalancingRecord()
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "No rebalancing record found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, record)
}

// handleGetParameters returns every active parameter set
func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"risk":             ws.riskMgr.RiskParameters(),
		"circuit_breaker":  ws.riskMgr.CircuitBreakerParams(),
		"rebalance":        ws.engine.Params(),
		"target_delta":     ws.engine.TargetDelta().String(),
		"funding_rate_bps": ws.engine.FundingRateBps(),
		"timestamp":        time.Now().UTC(),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetKeepers returns the authorized keeper addresses
func (ws *WebServer) handleGetKeepers(w http.ResponseWriter, r *http.Request) {
	keepers := ws.engine.Keepers()
	response := map[string]interface{}{
		"keepers": keepers,
		"count":   len(keepers),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleActivateCircuitBreaker trips the breaker manually
func (ws *WebServer) handleActivateCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	owner := ws.engine.Owner()
	err := ws.riskMgr.ActivateCircuitBreaker(owner, types.TriggerKind(body.Reason), time.Now().UTC())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to activate circuit breaker")
		ws.writeErrorResponse(w, ws.statusForError(err), "Failed to activate circuit breaker")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, ws.riskMgr.CircuitBreakerState())
}

// handleDeactivateCircuitBreaker clears the breaker
func (ws *WebServer) handleDeactivateCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	owner := ws.engine.Owner()
	if err := ws.riskMgr.DeactivateCircuitBreaker(owner); err != nil {
		webLogger.Error().Err(err).Msg("Failed to deactivate circuit breaker")
		ws.writeErrorResponse(w, ws.statusForError(err), "Failed to deactivate circuit breaker")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, ws.riskMgr.CircuitBreakerState())
}

// handleAddKeeper authorizes a keeper address
func (ws *WebServer) handleAddKeeper(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Keeper string `json:"keeper"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	owner := ws.engine.Owner()
	if err := ws.engine.AddKeeper(owner, types.Address(body.Keeper)); err != nil {
		webLogger.Error().Err(err).Str("keeper", body.Keeper).Msg("Failed to add keeper")
		ws.writeErrorResponse(w, ws.statusForError(err), "Failed to add keeper")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"keepers": ws.engine.Keepers(),
	})
}

// handleRemoveKeeper revokes a keeper address
func (ws *WebServer) handleRemoveKeeper(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	keeper := vars["address"]

	owner := ws.engine.Owner()
	if err := ws.engine.RemoveKeeper(owner, types.Address(keeper)); err != nil {
		webLogger.Error().Err(err).Str("keeper", keeper).Msg("Failed to remove keeper")
		ws.writeErrorResponse(w, ws.statusForError(err), "Failed to remove keeper")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"keepers": ws.engine.Keepers(),
	})
}

// handleResetCycleCounter sets the persistent cycle counter, a maintenance
// operation used when reconciling the database after manual intervention.
func (ws *WebServer) handleResetCycleCounter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CycleNumber int64 `json:"cycle_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.CycleNumber < 0 {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Cycle number cannot be negative")
		return
	}

	if err := state.ResetCycleNumber(body.CycleNumber); err != nil {
		webLogger.Error().Err(err).Int64("cycleNumber", body.CycleNumber).Msg("Failed to reset cycle counter")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to reset cycle counter")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"cycle_number": body.CycleNumber,
	})
}

// parseAtParam reads the optional RFC3339 "at" query parameter, defaulting
// to the current time.
func parseAtParam(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse(time.RFC3339, raw)
}

// statusForError maps the error taxonomy to HTTP status codes
func (ws *WebServer) statusForError(err error) int {
	switch types.Classify(err) {
	case types.ClassAuthorization:
		return http.StatusForbidden
	case types.ClassValidation:
		return http.StatusBadRequest
	case types.ClassStateGuard, types.ClassTiming:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// requireOperator rejects mutating requests without the operator token
func (ws *WebServer) requireOperator(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ws.operatorToken == "" || r.Header.Get("Authorization") != "Bearer "+ws.operatorToken {
			ws.writeErrorResponse(w, http.StatusUnauthorized, "Operator token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request with timing
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("duration", time.Since(start).String()).
			Msg("Request handled")
	})
}
