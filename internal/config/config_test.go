package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if len(cfg.Trading.Symbols) == 0 {
		t.Fatal("по умолчанию должен быть хотя бы один инструмент")
	}
	if cfg.Analysis.MaxParallel <= 0 {
		t.Fatalf("предел параллелизма %d должен быть положительным", cfg.Analysis.MaxParallel)
	}
	if cfg.Analysis.Convergence.OrderBookWeight != 25 {
		t.Fatalf("вес стакана %v, ожидалось 25", cfg.Analysis.Convergence.OrderBookWeight)
	}
	if cfg.Analysis.Convergence.VWAPWeight != 30 {
		t.Fatalf("вес VWAP %v, ожидалось 30", cfg.Analysis.Convergence.VWAPWeight)
	}
	if cfg.Analysis.Funding.ExtremeThresholdPct != 10.0 {
		t.Fatalf("порог экстремального финансирования %v, ожидалось 10",
			cfg.Analysis.Funding.ExtremeThresholdPct)
	}
	// Пороги оценок упорядочены
	c := cfg.Analysis.Convergence
	if !(c.APlusThreshold > c.AThreshold && c.AThreshold > c.BThreshold && c.BThreshold > 0) {
		t.Fatalf("пороги оценок не упорядочены: %v > %v > %v", c.APlusThreshold, c.AThreshold, c.BThreshold)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
trading:
  symbols: ["ETHUSDT", "SOLUSDT"]
  interval_seconds: 60
analysis:
  funding:
    extreme_funding_threshold_pct: 15.0
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("запись файла: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("загрузка конфигурации: %v", err)
	}

	if len(cfg.Trading.Symbols) != 2 || cfg.Trading.Symbols[0] != "ETHUSDT" {
		t.Fatalf("инструменты %v", cfg.Trading.Symbols)
	}
	if cfg.Trading.IntervalSeconds != 60 {
		t.Fatalf("интервал %d, ожидалось 60", cfg.Trading.IntervalSeconds)
	}
	if cfg.Analysis.Funding.ExtremeThresholdPct != 15.0 {
		t.Fatalf("порог финансирования %v, ожидалось 15", cfg.Analysis.Funding.ExtremeThresholdPct)
	}
	// Незатронутые разделы сохраняют значения по умолчанию
	if cfg.Analysis.Convergence.OrderBookWeight != 25 {
		t.Fatalf("вес стакана %v после загрузки", cfg.Analysis.Convergence.OrderBookWeight)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "нет.yaml")); err == nil {
		t.Fatal("отсутствующий файл должен возвращать ошибку")
	}
}
