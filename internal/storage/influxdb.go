package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/pkg/models"
)

// InfluxDBStorage хранилище результатов в InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok, err := client.Ping(ctx)
	if err != nil || !ok {
		client.Close()
		return nil, fmt.Errorf("ошибка подключения к InfluxDB: %w", err)
	}

	return &InfluxDBStorage{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Organization, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Organization),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// SaveResult сохраняет результат сведения сигналов
func (s *InfluxDBStorage) SaveResult(ctx context.Context, result *models.ConvergenceResult) error {
	point := influxdb2.NewPoint(
		"convergence",
		map[string]string{
			"symbol": result.Symbol,
			"grade":  result.Grade,
		},
		map[string]interface{}{
			"score":          result.Score,
			"recommendation": result.Recommendation,
			"price":          result.CurrentPrice,
			"reasoning":      result.Reasoning,
		},
		result.Timestamp,
	)

	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("ошибка записи результата в InfluxDB: %w", err)
	}
	return nil
}

// GetResultHistory возвращает историю результатов по инструменту
func (s *InfluxDBStorage) GetResultHistory(ctx context.Context, symbol string, since time.Time) ([]*models.ConvergenceResult, error) {
	query := fmt.Sprintf(`from(bucket: "%s")
		|> range(start: %s)
		|> filter(fn: (r) => r._measurement == "convergence" and r.symbol == "%s")
		|> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")`,
		s.bucket, since.UTC().Format(time.RFC3339), symbol)

	rows, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса истории из InfluxDB: %w", err)
	}
	defer rows.Close()

	var results []*models.ConvergenceResult
	for rows.Next() {
		record := rows.Record()
		result := &models.ConvergenceResult{
			Symbol:    symbol,
			Timestamp: record.Time(),
		}
		if grade, ok := record.ValueByKey("grade").(string); ok {
			result.Grade = grade
		}
		if score, ok := record.ValueByKey("score").(int64); ok {
			result.Score = int(score)
		}
		if rec, ok := record.ValueByKey("recommendation").(string); ok {
			result.Recommendation = rec
		}
		if price, ok := record.ValueByKey("price").(float64); ok {
			result.CurrentPrice = price
		}
		if reasoning, ok := record.ValueByKey("reasoning").(string); ok {
			result.Reasoning = reasoning
		}
		results = append(results, result)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("ошибка чтения истории из InfluxDB: %w", rows.Err())
	}

	return results, nil
}

// Close закрывает соединение с InfluxDB
func (s *InfluxDBStorage) Close() {
	s.client.Close()
}
