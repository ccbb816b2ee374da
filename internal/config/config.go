// Package config loads and hot-reloads the bot's typed configuration:
// every trading tunable plus the ambient surfaces (storage, control
// API, feed/swap transport) a full deployment needs. A single typed
// record is built at startup with fail-fast validation; edits to the
// file are re-read and re-validated via fsnotify and replace the
// Manager's record (components already wired from the startup record
// are not rebuilt).
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds every tunable the bot reads at startup or on reload.
type Config struct {
	Watchlist  WatchlistConfig  `mapstructure:"watchlist"`
	Entry      EntryConfig      `mapstructure:"entry"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Position   PositionConfig   `mapstructure:"position"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Safety     SafetyConfig     `mapstructure:"safety"`
	SmartMoney SmartMoneyConfig `mapstructure:"smart_money"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Wallet     WalletConfig     `mapstructure:"wallet"`
	RPC        RPCConfig        `mapstructure:"rpc"`
	Jupiter    JupiterConfig    `mapstructure:"jupiter"`
	Fees       FeesConfig       `mapstructure:"fees"`
	Blockchain BlockchainConfig `mapstructure:"blockchain"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Control    ControlConfig    `mapstructure:"control"`
	TUI        TUIConfig        `mapstructure:"tui"`
}

// WatchlistConfig is the Watchlist's hard-filter and lifecycle
// surface.
type WatchlistConfig struct {
	MinDataPoints          int     `mapstructure:"min_data_points"`
	MinAgeSeconds          int     `mapstructure:"min_age_seconds"`
	MaxDrawdownFromPeak    float64 `mapstructure:"max_drawdown_from_peak"`
	MinMarketCapSOL        float64 `mapstructure:"min_market_cap_sol"`
	MinUniqueTraders       int     `mapstructure:"min_unique_traders"`
	RequireUptrend         bool    `mapstructure:"require_uptrend"`
	GraduationLiquiditySOL float64 `mapstructure:"graduation_liquidity_sol"`
	CleanupMaxAgeMinutes   int     `mapstructure:"cleanup_max_age_minutes"`
}

// EntryConfig is the two-tier Entry Evaluator's surface.
type EntryConfig struct {
	SnipeMaxAgeSeconds      int     `mapstructure:"snipe_max_age_s"`
	SnipeMinTx              int     `mapstructure:"snipe_min_tx"`
	SnipeMinUniqueBuyers    int     `mapstructure:"snipe_min_unique_buyers"`
	SnipeMinBuyPressure     float64 `mapstructure:"snipe_min_buy_pressure"`
	SnipeMaxMarketCapSOL    float64 `mapstructure:"snipe_max_mcap_sol"`
	MinPumpHeat             float64 `mapstructure:"min_pump_heat"`
}

// ScoringConfig holds the Scoring Engine's gate.
type ScoringConfig struct {
	MinScoreToTrade float64 `mapstructure:"min_score_to_trade"`
}

// TPLevelConfig is one (multiple, fraction) rung of the take-profit
// ladder as loaded from YAML.
type TPLevelConfig struct {
	Multiple float64 `mapstructure:"multiple"`
	Fraction float64 `mapstructure:"fraction"`
}

// PositionConfig is the Position Manager's exit-rule surface.
type PositionConfig struct {
	StopLossFraction           float64         `mapstructure:"stop_loss_fraction"`
	TPLadder                   []TPLevelConfig `mapstructure:"tp_ladder"`
	TrailingActivationMultiple float64         `mapstructure:"trailing_activation_multiple"`
	TrailingDrawdownFraction   float64         `mapstructure:"trailing_drawdown_fraction"`
	MaxSellRetries             int             `mapstructure:"max_sell_retries"`
	SellRetryBaseDelayMs       int             `mapstructure:"sell_retry_base_delay_ms"`
	RugSellRatioThreshold      float64         `mapstructure:"rug_sell_ratio_threshold"`
	RugLargeSellFraction       float64         `mapstructure:"rug_large_sell_fraction"`
	RugDrawdownFromEntry       float64         `mapstructure:"rug_drawdown_from_entry"`
}

// RiskConfig is the Risk Guard's sizing and circuit-breaker surface.
type RiskConfig struct {
	BasePositionSOL        float64 `mapstructure:"base_position_sol"`
	MaxPositionSOL         float64 `mapstructure:"max_position_sol"`
	MaxFractionPerTrade    float64 `mapstructure:"max_fraction_per_trade"`
	MaxConcurrentPositions int     `mapstructure:"max_concurrent_positions"`
	MaxDrawdownFraction    float64 `mapstructure:"max_drawdown_fraction"`
	TiltedLossStreak       int     `mapstructure:"tilted_loss_streak"`
	DailyLossLimitSOL      float64 `mapstructure:"daily_loss_limit_sol"`
	PauseCooldownMinutes   int     `mapstructure:"pause_cooldown_minutes"`
}

// SafetyConfig governs the Safety Analyzer's cache TTL.
type SafetyConfig struct {
	CacheTTLSeconds int `mapstructure:"safety_cache_ttl"`
}

// SmartMoneyConfig governs the Smart-Money Tracker's cache TTL.
type SmartMoneyConfig struct {
	CacheTTLMinutes int `mapstructure:"cache_ttl_minutes"`
}

// TradingConfig is the top-level kill switch plus the AMM program
// addresses excluded from holder-concentration checks.
type TradingConfig struct {
	EnableTrading bool     `mapstructure:"enable_trading"`
	AMMPrograms   []string `mapstructure:"amm_programs"`
}

type WalletConfig struct {
	PrivateKeyEnv string `mapstructure:"private_key_env"`
}

type RPCConfig struct {
	PrimaryURL        string `mapstructure:"primary_url"`
	PrimaryAPIKeyEnv  string `mapstructure:"primary_api_key_env"`
	FallbackURL       string `mapstructure:"fallback_url"`
	FallbackAPIKeyEnv string `mapstructure:"fallback_api_key_env"`
	WebSocketURL      string `mapstructure:"websocket_url"`
}

type JupiterConfig struct {
	QuoteAPIURL    string `mapstructure:"quote_api_url"`
	SlippageBps    int    `mapstructure:"slippage_bps"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type FeesConfig struct {
	StaticPriorityFeeSol float64 `mapstructure:"static_priority_fee_sol"`
	StaticGasFeeSol      float64 `mapstructure:"static_gas_fee_sol"`
}

type BlockchainConfig struct {
	BalanceRefreshSeconds    int `mapstructure:"balance_refresh_seconds"`
	ReconcileIntervalSeconds int `mapstructure:"reconcile_interval_seconds"`
}

type StorageConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

type ControlConfig struct {
	ListenHost string `mapstructure:"listen_host"`
	ListenPort int    `mapstructure:"listen_port"`
}

type TUIConfig struct {
	RefreshRateMs int `mapstructure:"refresh_rate_ms"`
	LogLines      int `mapstructure:"log_lines"`
}

// Manager handles config loading, validation, and hot-reload.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	viper    *viper.Viper
	onChange func(*Config)
}

// NewManager loads Config from configPath, applies defaults, and
// validates it, failing fast before the feed starts.
func NewManager(configPath string) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Position.TPLadder) == 0 {
		cfg.Position.TPLadder = defaultTPLadder()
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	m := &Manager{config: &cfg, viper: v}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("config file changed, reloading")
		m.reload()
	})

	return m, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("watchlist.min_data_points", 20)
	v.SetDefault("watchlist.min_age_seconds", 180)
	v.SetDefault("watchlist.max_drawdown_from_peak", 0.15)
	v.SetDefault("watchlist.min_market_cap_sol", 50)
	v.SetDefault("watchlist.min_unique_traders", 10)
	v.SetDefault("watchlist.require_uptrend", true)
	v.SetDefault("watchlist.graduation_liquidity_sol", 85)
	v.SetDefault("watchlist.cleanup_max_age_minutes", 10)

	v.SetDefault("entry.snipe_max_age_s", 60)
	v.SetDefault("entry.snipe_min_tx", 20)
	v.SetDefault("entry.snipe_min_unique_buyers", 10)
	v.SetDefault("entry.snipe_min_buy_pressure", 0.60)
	v.SetDefault("entry.snipe_max_mcap_sol", 200)
	v.SetDefault("entry.min_pump_heat", 25)

	v.SetDefault("scoring.min_score_to_trade", 50)

	v.SetDefault("position.stop_loss_fraction", 0.25)
	v.SetDefault("position.trailing_activation_multiple", 2.0)
	v.SetDefault("position.trailing_drawdown_fraction", 0.25)
	v.SetDefault("position.max_sell_retries", 3)
	v.SetDefault("position.sell_retry_base_delay_ms", 500)
	v.SetDefault("position.rug_sell_ratio_threshold", 0.75)
	v.SetDefault("position.rug_large_sell_fraction", 0.10)
	v.SetDefault("position.rug_drawdown_from_entry", 0.50)

	v.SetDefault("risk.max_fraction_per_trade", 0.10)
	v.SetDefault("risk.max_drawdown_fraction", 0.20)
	v.SetDefault("risk.tilted_loss_streak", 3)
	v.SetDefault("risk.pause_cooldown_minutes", 60)

	v.SetDefault("safety.safety_cache_ttl", 86400)

	v.SetDefault("smart_money.cache_ttl_minutes", 60)

	v.SetDefault("trading.enable_trading", false)
	v.SetDefault("trading.amm_programs", []string{
		// pump.fun bonding curve + AMM, Raydium V4.
		"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P",
		"pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA",
		"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8",
	})

	v.SetDefault("wallet.private_key_env", "WALLET_PRIVATE_KEY")

	v.SetDefault("rpc.primary_api_key_env", "SHYFT_API_KEY")
	v.SetDefault("rpc.fallback_api_key_env", "HELIUS_API_KEY")
	v.SetDefault("rpc.fallback_url", "https://api.mainnet-beta.solana.com")

	v.SetDefault("jupiter.quote_api_url", "https://quote-api.jup.ag/v6")
	v.SetDefault("jupiter.slippage_bps", 500)
	v.SetDefault("jupiter.timeout_seconds", 10)

	v.SetDefault("blockchain.balance_refresh_seconds", 5)
	v.SetDefault("blockchain.reconcile_interval_seconds", 30)

	v.SetDefault("storage.sqlite_path", "./data/memecore.db")

	v.SetDefault("control.listen_host", "0.0.0.0")
	v.SetDefault("control.listen_port", 8090)

	v.SetDefault("tui.refresh_rate_ms", 250)
	v.SetDefault("tui.log_lines", 200)
}

func defaultTPLadder() []TPLevelConfig {
	return []TPLevelConfig{
		{Multiple: 1.5, Fraction: 0.25},
		{Multiple: 2.0, Fraction: 0.25},
		{Multiple: 3.0, Fraction: 0.25},
		{Multiple: 5.0, Fraction: 0.25},
	}
}

// Validate fails fast on missing or contradictory required keys:
// before the feed starts, not mid-stream.
func Validate(cfg *Config) error {
	if cfg.Watchlist.MinDataPoints <= 0 {
		return fmt.Errorf("watchlist.min_data_points must be positive")
	}
	if cfg.Risk.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("risk.max_concurrent_positions must be positive")
	}
	if cfg.Risk.BasePositionSOL <= 0 {
		return fmt.Errorf("risk.base_position_sol must be positive")
	}
	if cfg.Risk.MaxPositionSOL < cfg.Risk.BasePositionSOL {
		return fmt.Errorf("risk.max_position_sol must be >= base_position_sol")
	}
	var fractionSum float64
	for _, step := range cfg.Position.TPLadder {
		fractionSum += step.Fraction
	}
	if fractionSum > 1.0001 {
		return fmt.Errorf("position.tp_ladder fractions sum to %.4f, must be <= 1.0", fractionSum)
	}
	if cfg.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required")
	}
	return nil
}

// Get returns the current config (thread-safe).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetOnChange registers a callback invoked after a hot-reload.
func (m *Manager) SetOnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Update applies fn to the live config in place, persists the
// trading enable flag (the only field the control surface may flip),
// and notifies subscribers.
func (m *Manager) Update(fn func(*Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn(m.config)
	m.viper.Set("trading.enable_trading", m.config.Trading.EnableTrading)

	if err := m.viper.WriteConfig(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if m.onChange != nil {
		m.onChange(m.config)
	}
	return nil
}

func (m *Manager) reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cfg Config
	if err := m.viper.Unmarshal(&cfg); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal config on reload")
		return
	}
	if len(cfg.Position.TPLadder) == 0 {
		cfg.Position.TPLadder = defaultTPLadder()
	}
	if err := Validate(&cfg); err != nil {
		log.Error().Err(err).Msg("reloaded config failed validation, keeping previous config")
		return
	}

	m.config = &cfg
	if m.onChange != nil {
		m.onChange(&cfg)
	}
}

// GetPrivateKey loads the wallet private key from its configured
// environment variable.
func (m *Manager) GetPrivateKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.Wallet.PrivateKeyEnv)
}

// GetPrimaryAPIKey loads the primary RPC provider's API key.
func (m *Manager) GetPrimaryAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.RPC.PrimaryAPIKeyEnv)
}

// GetFallbackAPIKey loads the fallback RPC provider's API key.
func (m *Manager) GetFallbackAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.RPC.FallbackAPIKeyEnv)
}

// GetBalanceRefresh returns the wallet balance refresh interval.
func (m *Manager) GetBalanceRefresh() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.Blockchain.BalanceRefreshSeconds) * time.Second
}

// GetReconcileInterval returns the Reconciler's polling interval.
func (m *Manager) GetReconcileInterval() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.Blockchain.ReconcileIntervalSeconds) * time.Second
}
