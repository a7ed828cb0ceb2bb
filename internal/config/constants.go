package config

import "time"

// API layout
const (
	APIBasePath = "/app-api/v1"
	HealthPath  = "/health/ping"
)

// Token freshness
const (
	DefaultRefreshWindow  = 30 * time.Second
	RefreshRequestTimeout = 15 * time.Second
)

// HTTP client timeouts
const DefaultRequestTimeout = 30 * time.Second

// Database connection pool settings
const (
	DBMaxOpenConns    = 5
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
)

// Gateway server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 10 * time.Second
)

// Ping timeout for store backends at startup
const StorePingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Gateway refresh tokens live this long
const GatewayRefreshTokenTTL = 7 * 24 * time.Hour
