package models

import (
	"time"
)

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// OrderBookLevel представляет уровень стакана
type OrderBookLevel struct {
	Price  string
	Amount string
}

// OrderBook представляет стакан заявок
type OrderBook struct {
	Symbol    string
	Timestamp time.Time
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
}

// FundingRate представляет ставку финансирования
type FundingRate struct {
	Symbol          string
	Rate            string
	Timestamp       time.Time
	NextFundingTime time.Time
}

// OpenInterest представляет открытый интерес
type OpenInterest struct {
	Symbol    string
	Value     string
	Timestamp time.Time
}

// Trade представляет сделку из ленты
type Trade struct {
	Symbol       string
	Price        float64
	Quantity     float64
	Timestamp    time.Time
	IsBuyerMaker bool
}

// OrderBookMetrics метрики стакана заявок
type OrderBookMetrics struct {
	Imbalance     float64 // дисбаланс от -1 до 1
	Strength      string
	TopBid        float64
	TopAsk        float64
	Spread        float64
	SpreadBps     float64
	BidVolume     float64
	AskVolume     float64
	DepthAnalyzed int
}

// FundingMetrics метрики ставки финансирования
type FundingMetrics struct {
	Rate8h        float64 // ставка за 8 часов в долях
	AnnualizedPct float64 // годовая ставка в процентах
	Sentiment     string
	IsExtreme     bool
	HistoricalAvg *float64 // средняя ставка за окно наблюдения
	Trend         string   // increasing / decreasing / stable
}

// TradeFlowMetrics метрики потока сделок
type TradeFlowMetrics struct {
	Imbalance      float64 // дисбаланс от -1 до 1
	Strength       string
	PriceChangePct float64
	VolumeRatio    float64 // объем текущего периода к скользящей средней
}

// BasisMetrics метрики базиса перпетуала к споту
type BasisMetrics struct {
	SpotPrice      float64
	PerpPrice      float64
	BasisPct       float64
	Strength       string
	ArbOpportunity bool
}

// OIObservation наблюдение открытого интереса, единица хранения истории
type OIObservation struct {
	Timestamp time.Time `json:"timestamp"`
	OI        float64   `json:"oi"`
	Price     float64   `json:"price"`
}

// OIMetrics метрики открытого интереса
type OIMetrics struct {
	CurrentUSD     float64
	CurrentPrice   float64
	Change1hPct    *float64
	Change4hPct    *float64
	Change24hPct   *float64
	WindowPct      *float64 // изменение OI за окно дивергенции
	PriceChangePct *float64 // изменение цены за то же окно
	DivergenceType string   // strong_bullish / weak_bullish / strong_bearish / weak_bearish / neutral
}

// VWAPMetrics метрики VWAP для одного таймфрейма
type VWAPMetrics struct {
	Timeframe      string
	VWAP           float64
	CurrentPrice   float64
	DeviationPct   float64
	ZScore         float64
	DeviationLevel string // extreme / high / moderate / low
	VolumeRatio    float64
}

// FakeWall обнаруженная фиктивная стенка в стакане
type FakeWall struct {
	Side        string
	Price       float64
	AvgSize     float64
	Appearances int
	Confidence  string
}

// IcebergLevel кандидат на айсберг-ордер
type IcebergLevel struct {
	Side    string
	Price   float64
	Refills int
	AvgSize float64
}

// WallDynamics движение крупнейшей стенки за окно наблюдения
type WallDynamics struct {
	Price       float64
	Size        float64
	MovementPct float64
	Signal      string
}

// MicrostructureMetrics метрики микроструктуры стакана
type MicrostructureMetrics struct {
	FakeWalls         []FakeWall
	Icebergs          []IcebergLevel
	BidWall           *WallDynamics
	AskWall           *WallDynamics
	Confidence        string
	SnapshotsAnalyzed int
}

// PriceZone ценовой уровень с объемом ликвидаций
type PriceZone struct {
	Price     float64
	VolumeUSD float64
}

// LiquidationMetrics метрики каскада ликвидаций
type LiquidationMetrics struct {
	CascadeDetected bool
	NotionalUSD     float64
	Direction       string // short_squeeze_bullish / long_squeeze_bearish / neutral
	LongLiqUSD      float64
	ShortLiqUSD     float64
	Ratio           float64
	StopHuntZones   []PriceZone
}

// ArbitrageMetrics метрики межбиржевого арбитража
type ArbitrageMetrics struct {
	PrimaryPrice   float64
	ReferencePrice float64
	DeviationPct   float64
	Status         string // premium / discount / neutral
	Pressure       string // bullish / bearish / neutral
	ArbOpportunity bool
	NetProfitPct   float64
}

// Contribution вклад одного компонента в итоговый балл
type Contribution struct {
	Component string
	Points    int
	Direction string // bullish / bearish / neutral
}

// ConvergenceResult итог сведения сигналов по инструменту
type ConvergenceResult struct {
	Symbol             string
	Timestamp          time.Time
	Score              int // от 0 до 100
	Grade              string
	Recommendation     string
	AlignedSignals     []string
	ConflictingSignals []string
	Unavailable        []string
	Contributions      []Contribution
	Reasoning          string
	CurrentPrice       float64
}

// MetricSet набор метрик одного запроса агрегации
type MetricSet struct {
	OrderBook       *OrderBookMetrics
	Funding         *FundingMetrics
	OpenInterest    *OIMetrics
	Basis           *BasisMetrics
	TradeFlow       *TradeFlowMetrics
	VWAPByTimeframe []VWAPMetrics
	Microstructure  *MicrostructureMetrics
	Liquidation     *LiquidationMetrics
	Arbitrage       *ArbitrageMetrics
}

// AggregationResult ответ агрегатора: метрики плюс сводка
type AggregationResult struct {
	Symbol    string
	RequestID string
	Timestamp time.Time
	Metrics   MetricSet
	Failures  map[string]*MetricError
	Summary   *ConvergenceResult
}
