package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/definite-protocol/dne/internal/config"
	"github.com/definite-protocol/dne/internal/engine"
	"github.com/definite-protocol/dne/internal/events"
	"github.com/definite-protocol/dne/internal/logger"
	"github.com/definite-protocol/dne/internal/risk"
	"github.com/definite-protocol/dne/internal/state"
	"github.com/definite-protocol/dne/internal/types"
	"github.com/definite-protocol/dne/internal/venues"
	"github.com/definite-protocol/dne/internal/web"
)

// main is the entry point for the DNE daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel)
	log.Info().Msg("DNE Core Logic Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Load engine parameters, falling back to defaults on first boot
	params, err := state.LoadActiveEngineParameters(config.DefaultEngineConfigName)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load active engine parameters, using defaults and saving.")
		params = state.EngineParameters{
			Risk:      config.DefaultRiskParameters(),
			Breaker:   config.DefaultCircuitBreakerParams(),
			Rebalance: config.DefaultRebalanceParams(),
		}
		if err := state.SaveEngineParameters(config.DefaultEngineConfigName, params); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default engine parameters.")
		}
	}
	log.Info().Msg("Engine parameters loaded successfully.")

	// --- 2. Venue Wiring (with Safety Switch) ---
	var (
		custody   venues.CustodyLedger
		perpetual venues.PerpetualVenue
		options   venues.OptionsVenue
		priceFeed venues.PriceFeed
		analytics venues.PortfolioAnalytics
	)

	switch config.Mode {
	case "sim":
		log.Info().Msg("Initializing DNE in SIM mode. All venues are in-memory simulations.")
		feed := venues.NewSimPriceFeed(nil)
		feed.SetPrice(config.Asset, sdkmath.LegacyNewDec(100), 100, time.Now().UTC())
		custody = venues.NewSimCustodyLedger(sdkmath.NewInt(1_000_000), sdkmath.NewInt(1_000_000))
		perpetual = venues.NewSimPerpetualVenue(sdkmath.NewInt(1_000_000))
		options = venues.NewSimOptionsVenue(types.ZeroSigned())
		priceFeed = feed
		analytics = venues.NewSimAnalytics(types.PortfolioState{
			TotalAssets:    sdkmath.NewInt(1_000_000),
			LeverageRatio:  sdkmath.LegacyOneDec(),
			LiquidityRatio: sdkmath.LegacyNewDecWithPrec(5, 1),
			Timestamp:      time.Now().UTC(),
		})
	case "live":
		// Live venue clients are provisioned per deployment; refusing to
		// guess endpoints keeps a misconfigured binary from trading.
		log.Fatal().Msg("DNE_MODE=live requires venue endpoint wiring for this deployment. Halting to prevent accidental execution.")
	default:
		log.Fatal().Str("mode", config.Mode).Msg("Unknown DNE_MODE. Halting.")
	}

	// --- 3. Core Assembly with Dependency Injection ---
	log.Info().Msg("Assembling risk manager and rebalancing engine...")

	bus := events.NewBus()
	archiver := state.NewDBArchiver()

	riskMgr, err := risk.NewManager(
		types.Address(config.OwnerAddress),
		params.Risk,
		params.Breaker,
		analytics,
		bus,
		archiver,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create risk manager")
	}

	eng, err := engine.New(engine.Config{
		Owner:       types.Address(config.OwnerAddress),
		KeeperID:    types.Address(config.KeeperAddress),
		Asset:       config.Asset,
		Params:      params.Rebalance,
		Custody:     custody,
		Perpetual:   perpetual,
		Options:     options,
		PriceFeed:   priceFeed,
		RiskManager: riskMgr,
		Bus:         bus,
		Archiver:    archiver,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create rebalancing engine")
	}

	riskMgr.AttachResponder(risk.NewResponder(custody, eng, bus))
	log.Info().Msg("Engine assembled successfully")

	// --- 4. Start Web Server ---
	webServer := web.NewWebServer(strconv.Itoa(config.WebPort), eng, riskMgr, config.OperatorToken)
	go func() {
		log.Info().Int("port", config.WebPort).Msg("Starting DNE operator API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Run the Evaluation Loop ---
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("interval", eng.EffectiveCheckInterval().String()).Msg("Starting DNE evaluation loop")
	if err := eng.RunLoop(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("Evaluation loop terminated unexpectedly")
	}
	log.Info().Msg("DNE shut down cleanly.")
}
