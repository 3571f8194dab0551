package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultPayTo is the wallet that receives payments for metered routes
	DefaultPayTo = "0x71f08aEfe062d28c7AD37344dC0D64e0adF8941E"
	// DefaultRegistryAddress is the ERC-8004 identity registry queried by verify-agent
	DefaultRegistryAddress = "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432"
	// DefaultPaymentAsset is USDC on Base
	DefaultPaymentAsset = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
)

// Rate limit store backends
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// Config holds application configuration
type Config struct {
	ServerPort      string
	BaseURL         string
	AppEnv          string
	ServerDebugMode bool
	EnableHSTS      bool
	// TrustProxy keys rate limiting on X-Forwarded-For / X-Real-IP instead of the peer address
	TrustProxy bool

	RateLimitMax           int
	RateLimitWindow        time.Duration
	RateLimitMaxClients    int
	RateLimitSweepInterval time.Duration
	RateLimitStore         string
	RedisURL               string

	PaymentEnabled bool
	PayTo          string
	PaymentNetwork string
	PaymentAsset   string
	FacilitatorURL string

	ChainRPCURL     string
	RegistryAddress string
	ChainNetwork    string
	ChainTimeout    time.Duration

	MemoryFile string

	OTELEnabled  bool
	OTELEndpoint string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	port := getEnv("PORT", "3000")
	cfg := &Config{
		ServerPort:      port,
		BaseURL:         strings.TrimRight(getEnv("BASE_URL", "http://localhost:"+port), "/"),
		AppEnv:          getEnv("APP_ENV", "production"),
		ServerDebugMode: getEnvBool("SERVER_DEBUG_MODE", false),
		EnableHSTS:      getEnvBool("ENABLE_HSTS", false),
		TrustProxy:      getEnvBool("TRUST_PROXY", false),

		RateLimitMax:           getEnvInt("RATE_LIMIT_MAX", 30),
		RateLimitWindow:        getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second),
		RateLimitMaxClients:    getEnvInt("RATE_LIMIT_MAX_CLIENTS", 10000),
		RateLimitSweepInterval: getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
		RateLimitStore:         strings.ToLower(getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory)),
		RedisURL:               getEnv("REDIS_URL", "redis://localhost:6379/0"),

		PaymentEnabled: getEnvBool("PAYMENT_ENABLED", true),
		PayTo:          getEnv("PAY_TO", DefaultPayTo),
		PaymentNetwork: getEnv("PAYMENT_NETWORK", "base"),
		PaymentAsset:   getEnv("PAYMENT_ASSET", DefaultPaymentAsset),
		FacilitatorURL: strings.TrimRight(getEnv("FACILITATOR_URL", "https://x402.org/facilitator"), "/"),

		ChainRPCURL:     getEnv("CHAIN_RPC_URL", "https://mainnet.base.org"),
		RegistryAddress: getEnv("REGISTRY_ADDRESS", DefaultRegistryAddress),
		ChainNetwork:    getEnv("CHAIN_NETWORK", "base"),
		ChainTimeout:    getEnvDuration("CHAIN_TIMEOUT", 10*time.Second),

		MemoryFile: getEnv("MEMORY_FILE", ".nemp/memories.json"),

		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DebugErrors reports whether internal error messages may be echoed to clients
func (c *Config) DebugErrors() bool {
	return c.ServerDebugMode || strings.EqualFold(c.AppEnv, "development")
}

func (c *Config) validate() error {
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", c.RateLimitMax)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	}
	if c.RateLimitMaxClients <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_CLIENTS must be positive, got %d", c.RateLimitMaxClients)
	}
	switch c.RateLimitStore {
	case RateLimitStoreMemory, RateLimitStoreRedis:
	default:
		return fmt.Errorf("RATE_LIMIT_STORE must be %q or %q, got %q", RateLimitStoreMemory, RateLimitStoreRedis, c.RateLimitStore)
	}
	if !common.IsHexAddress(c.PayTo) {
		return fmt.Errorf("PAY_TO is not a valid address: %q", c.PayTo)
	}
	if !common.IsHexAddress(c.PaymentAsset) {
		return fmt.Errorf("PAYMENT_ASSET is not a valid address: %q", c.PaymentAsset)
	}
	if !common.IsHexAddress(c.RegistryAddress) {
		return fmt.Errorf("REGISTRY_ADDRESS is not a valid address: %q", c.RegistryAddress)
	}
	if c.ChainTimeout <= 0 {
		return fmt.Errorf("CHAIN_TIMEOUT must be positive, got %s", c.ChainTimeout)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s", "1m") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
