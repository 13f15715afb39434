package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Mode selects the execution environment: "sim" or "live".
	Mode string

	// Asset is the oracle symbol of the managed asset (e.g. "ALGO", "ETH").
	Asset string

	// OwnerAddress is the address holding owner-only capabilities.
	OwnerAddress string
	// KeeperAddress is the identity the evaluation loop uses for its own
	// upkeep calls, so loop-driven keeper rewards stay attributable.
	KeeperAddress string

	// WebPort is the listen port for the operator API.
	WebPort int
	// OperatorToken gates mutating API endpoints.
	OperatorToken string

	// LogLevel is the zerolog level string ("debug", "info", ...).
	LogLevel string

	// DBHost, DBPort, DBUser, DBPassword, DBName, DBSSLMode configure the
	// PostgreSQL audit store.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Mode, err = getEnv("DNE_MODE")
	if err != nil {
		return err
	}
	if Mode != "sim" && Mode != "live" {
		return errors.New("DNE_MODE must be either \"sim\" or \"live\", got: " + Mode)
	}

	Asset, err = getEnv("DNE_ASSET")
	if err != nil {
		return err
	}

	OwnerAddress, err = getEnv("DNE_OWNER_ADDRESS")
	if err != nil {
		return err
	}

	KeeperAddress, err = getEnv("DNE_KEEPER_ADDRESS")
	if err != nil {
		return err
	}

	WebPort, err = getEnvAsInt("WEB_PORT")
	if err != nil {
		return err
	}

	OperatorToken, err = getEnv("DNE_OPERATOR_TOKEN")
	if err != nil {
		return err
	}

	LogLevel, err = getEnv("LOG_LEVEL")
	if err != nil {
		return err
	}

	DBHost, err = getEnv("DB_HOST")
	if err != nil {
		return err
	}
	DBPort, err = getEnvAsInt("DB_PORT")
	if err != nil {
		return err
	}
	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}
	DBPassword, err = getEnv("DB_PASSWORD")
	if err != nil {
		return err
	}
	DBName, err = getEnv("DB_NAME")
	if err != nil {
		return err
	}
	DBSSLMode, err = getEnv("DB_SSLMODE")
	if err != nil {
		return err
	}

	log.Debug().
		Str("Mode", Mode).
		Str("Asset", Asset).
		Int("WebPort", WebPort).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsInt retrieves an environment variable as an int. Returns error if not set or invalid.
func getEnvAsInt(key string) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}

