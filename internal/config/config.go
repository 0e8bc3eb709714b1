package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance  BinanceConfig  `yaml:"binance"`
	Trading  TradingConfig  `yaml:"trading"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Cache    CacheConfig    `yaml:"cache"`
	History  HistoryConfig  `yaml:"history"`
	Storage  StorageConfig  `yaml:"storage"`
	UI       UIConfig       `yaml:"ui"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит настройки отслеживаемых инструментов
type TradingConfig struct {
	Symbols         []string `yaml:"symbols"`
	Timeframes      []string `yaml:"timeframes"`
	IntervalSeconds int      `yaml:"interval_seconds"`
}

// AnalysisConfig содержит настройки аналитических модулей
type AnalysisConfig struct {
	FetchTimeoutSeconds int                  `yaml:"fetch_timeout_seconds"`
	MaxParallel         int                  `yaml:"max_parallel"`
	OrderBook           OrderBookConfig      `yaml:"orderbook"`
	TradeFlow           TradeFlowConfig      `yaml:"trade_flow"`
	Funding             FundingConfig        `yaml:"funding"`
	Basis               BasisConfig          `yaml:"basis"`
	OpenInterest        OpenInterestConfig   `yaml:"open_interest"`
	VWAP                VWAPConfig           `yaml:"vwap"`
	Microstructure      MicrostructureConfig `yaml:"microstructure"`
	Liquidation         LiquidationConfig    `yaml:"liquidation"`
	Arbitrage           ArbitrageConfig      `yaml:"arbitrage"`
	Convergence         ConvergenceConfig    `yaml:"convergence"`
}

// OrderBookConfig настройки анализа стакана
type OrderBookConfig struct {
	Depth               int     `yaml:"depth"`
	StrongThreshold     float64 `yaml:"strong_imbalance_threshold"`
	VeryStrongThreshold float64 `yaml:"very_strong_imbalance_threshold"`
	NeutralThreshold    float64 `yaml:"neutral_imbalance_threshold"`
}

// TradeFlowConfig настройки анализа потока сделок
type TradeFlowConfig struct {
	LookbackCandles  int     `yaml:"lookback_candles"`
	AvgVolumePeriods int     `yaml:"avg_volume_periods"`
	StrongThreshold  float64 `yaml:"strong_threshold"`
	NeutralThreshold float64 `yaml:"neutral_threshold"`
}

// FundingConfig настройки анализа ставок финансирования
type FundingConfig struct {
	LookbackHours         int     `yaml:"lookback_hours"`
	ExtremeThresholdPct   float64 `yaml:"extreme_funding_threshold_pct"`
	SentimentThresholdPct float64 `yaml:"sentiment_threshold_pct"`
}

// BasisConfig настройки анализа базиса
type BasisConfig struct {
	ExtremeThresholdPct float64 `yaml:"extreme_threshold_pct"`
	NeutralThresholdPct float64 `yaml:"neutral_threshold_pct"`
}

// OpenInterestConfig настройки анализа открытого интереса
type OpenInterestConfig struct {
	WindowHours       int     `yaml:"window_hours"`
	OIThresholdPct    float64 `yaml:"oi_threshold_pct"`
	PriceThresholdPct float64 `yaml:"price_threshold_pct"`
}

// VWAPConfig настройки анализа VWAP
type VWAPConfig struct {
	ExtremeZ         float64 `yaml:"extreme_z"`
	HighZ            float64 `yaml:"high_z"`
	ModerateZ        float64 `yaml:"moderate_z"`
	AvgVolumePeriods int     `yaml:"avg_volume_periods"`
}

// MicrostructureConfig настройки анализа микроструктуры стакана
type MicrostructureConfig struct {
	WindowSeconds     int     `yaml:"window_seconds"`
	MinWallSize       float64 `yaml:"min_wall_size"`
	FlickerGapSeconds float64 `yaml:"flicker_gap_seconds"`
	RefillThreshold   int     `yaml:"refill_threshold"`
	RefillRatio       float64 `yaml:"refill_ratio"`
}

// LiquidationConfig настройки детектора каскадов ликвидаций
type LiquidationConfig struct {
	LookbackMinutes      int     `yaml:"lookback_minutes"`
	CascadeCount         int     `yaml:"cascade_count"`
	CascadeWindowSeconds int     `yaml:"cascade_window_seconds"`
	OIDropThresholdPct   float64 `yaml:"oi_drop_threshold_pct"`
	StopHuntFloorUSD     float64 `yaml:"stop_hunt_floor_usd"`
}

// ArbitrageConfig настройки межбиржевого монитора
type ArbitrageConfig struct {
	ThresholdPct float64 `yaml:"threshold_pct"`
	FeePct       float64 `yaml:"fee_pct"`
}

// ConvergenceConfig веса и пороги сведения сигналов
type ConvergenceConfig struct {
	OrderBookWeight     int     `yaml:"order_book_weight"`
	TradeFlowWeight     int     `yaml:"trade_flow_weight"`
	VWAPWeight          int     `yaml:"vwap_weight"`
	FundingBasisBonus   int     `yaml:"funding_basis_bonus"`
	FundingBasisPenalty int     `yaml:"funding_basis_penalty"`
	OIWeightStrong      int     `yaml:"oi_weight"`
	OIWeightWeak        int     `yaml:"oi_weight_weak"`
	VolumePenalty       int     `yaml:"volume_penalty"`
	LowVolumeRatio      float64 `yaml:"low_volume_ratio"`
	APlusThreshold      int     `yaml:"a_plus_threshold"`
	AThreshold          int     `yaml:"a_threshold"`
	BThreshold          int     `yaml:"b_threshold"`
}

// CacheConfig свежесть кэша по видам данных, в секундах
type CacheConfig struct {
	OrderBookTTL int `yaml:"order_book_ttl"`
	FundingTTL   int `yaml:"funding_ttl"`
	OITTL        int `yaml:"oi_ttl"`
	BasisTTL     int `yaml:"basis_ttl"`
	TradeFlowTTL int `yaml:"trade_flow_ttl"`
	CandlesTTL   int `yaml:"candles_ttl"`
}

// HistoryConfig настройки хранилища истории открытого интереса
type HistoryConfig struct {
	Path             string `yaml:"path"`
	MaxLookbackHours int    `yaml:"max_lookback_hours"`
}

// StorageConfig настройки архива сигналов
type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	RefreshRate int  `yaml:"refresh_rate_ms"`
	Enabled     bool `yaml:"enabled"`
}

// Default возвращает конфигурацию со всеми значениями по умолчанию
func Default() *Config {
	return &Config{
		Trading: TradingConfig{
			Symbols:         []string{"BTCUSDT"},
			Timeframes:      []string{"1m", "5m", "15m"},
			IntervalSeconds: 30,
		},
		Analysis: AnalysisConfig{
			FetchTimeoutSeconds: 15,
			MaxParallel:         4,
			OrderBook: OrderBookConfig{
				Depth:               10,
				StrongThreshold:     0.4,
				VeryStrongThreshold: 0.6,
				NeutralThreshold:    0.2,
			},
			TradeFlow: TradeFlowConfig{
				LookbackCandles:  5,
				AvgVolumePeriods: 20,
				StrongThreshold:  0.5,
				NeutralThreshold: 0.3,
			},
			Funding: FundingConfig{
				LookbackHours:         24,
				ExtremeThresholdPct:   10.0,
				SentimentThresholdPct: 3.0,
			},
			Basis: BasisConfig{
				ExtremeThresholdPct: 0.3,
				NeutralThresholdPct: 0.1,
			},
			OpenInterest: OpenInterestConfig{
				WindowHours:       4,
				OIThresholdPct:    3.0,
				PriceThresholdPct: 1.0,
			},
			VWAP: VWAPConfig{
				ExtremeZ:         2.0,
				HighZ:            1.0,
				ModerateZ:        0.5,
				AvgVolumePeriods: 20,
			},
			Microstructure: MicrostructureConfig{
				WindowSeconds:     60,
				MinWallSize:       10.0,
				FlickerGapSeconds: 5.0,
				RefillThreshold:   3,
				RefillRatio:       1.2,
			},
			Liquidation: LiquidationConfig{
				LookbackMinutes:      30,
				CascadeCount:         5,
				CascadeWindowSeconds: 300,
				OIDropThresholdPct:   1.5,
				StopHuntFloorUSD:     100_000,
			},
			Arbitrage: ArbitrageConfig{
				ThresholdPct: 0.1,
				FeePct:       0.1,
			},
			Convergence: ConvergenceConfig{
				OrderBookWeight:     25,
				TradeFlowWeight:     25,
				VWAPWeight:          30,
				FundingBasisBonus:   20,
				FundingBasisPenalty: 15,
				OIWeightStrong:      30,
				OIWeightWeak:        10,
				VolumePenalty:       10,
				LowVolumeRatio:      0.6,
				APlusThreshold:      70,
				AThreshold:          50,
				BThreshold:          30,
			},
		},
		Cache: CacheConfig{
			OrderBookTTL: 5,
			FundingTTL:   300,
			OITTL:        300,
			BasisTTL:     5,
			TradeFlowTTL: 2,
			CandlesTTL:   30,
		},
		History: HistoryConfig{
			Path:             "oi_history.json",
			MaxLookbackHours: 24,
		},
		UI: UIConfig{
			RefreshRate: 1000,
			Enabled:     true,
		},
	}
}

// Load загружает конфигурацию из файла поверх значений по умолчанию
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	return config, nil
}
