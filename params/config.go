package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/aquadex/core/pkg/app/core/market"
)

// API is the REST/WebSocket listen configuration.
type API struct {
	ListenAddr string
}

// Storage is where the Pebble region store lives on disk.
type Storage struct {
	DataDir string
}

// Logging controls where structured logs are written in addition to stdout.
type Logging struct {
	FilePath string // empty disables file logging
}

// DevnetMarket bootstraps a single market on first start so a fresh
// deployment has something to trade against immediately.
type DevnetMarket struct {
	Enabled bool
	Symbol  string
	Config  market.Config

	BookPages, SettlePages, TradePages uint16
	SettleEntryCap, TradeEntryMax      uint64
}

type Config struct {
	API     API
	Storage Storage
	Logging Logging
	Devnet  DevnetMarket
}

func Default() Config {
	return Config{
		API: API{
			ListenAddr: ":8080",
		},
		Storage: Storage{
			DataDir: "data/aquadex",
		},
		Logging: Logging{
			FilePath: "data/aquadex.log",
		},
		Devnet: DevnetMarket{
			Enabled: true,
			Symbol:  "ABC-XYZ",
			Config: market.Config{
				MktDecimals:    6,
				PrcDecimals:    6,
				MinQuantity:    1,
				TakerFee:       5400,
				MakerRebate:    3750,
				ExpireEnable:   true,
				ManagerActions: true,
			},
			BookPages:      64,
			SettlePages:    64,
			TradePages:     72,
			SettleEntryCap: 4096,
			TradeEntryMax:  8192,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	// Override with environment variables
	if addr := os.Getenv("AQUADEX_LISTEN_ADDR"); addr != "" {
		cfg.API.ListenAddr = addr
	}
	if dir := os.Getenv("AQUADEX_DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if logPath := os.Getenv("AQUADEX_LOG_FILE"); logPath != "" {
		cfg.Logging.FilePath = logPath
	}
	if enabled := os.Getenv("AQUADEX_DEVNET_MARKET_ENABLED"); enabled != "" {
		cfg.Devnet.Enabled = enabled == "true"
	}
	if symbol := os.Getenv("AQUADEX_DEVNET_MARKET_SYMBOL"); symbol != "" {
		cfg.Devnet.Symbol = symbol
	}
	if fee := os.Getenv("AQUADEX_DEVNET_TAKER_FEE"); fee != "" {
		if v, err := strconv.ParseUint(fee, 10, 64); err == nil {
			cfg.Devnet.Config.TakerFee = v
		}
	}
	if rebate := os.Getenv("AQUADEX_DEVNET_MAKER_REBATE"); rebate != "" {
		if v, err := strconv.ParseUint(rebate, 10, 64); err == nil {
			cfg.Devnet.Config.MakerRebate = v
		}
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
