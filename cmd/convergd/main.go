package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/convergd/internal/analysis/aggregator"
	"github.com/skalibog/convergd/internal/cache"
	"github.com/skalibog/convergd/internal/config"
	"github.com/skalibog/convergd/internal/exchange"
	"github.com/skalibog/convergd/internal/history"
	"github.com/skalibog/convergd/internal/storage"
	"github.com/skalibog/convergd/internal/ui"
	"github.com/skalibog/convergd/pkg/logger"
)

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	headless := flag.Bool("headless", false, "работа без терминального интерфейса")
	flag.Parse()

	// Загружаем конфигурацию, при отсутствии файла работаем на значениях
	// по умолчанию
	var cfg *config.Config
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Warn("Файл конфигурации не найден, используются значения по умолчанию",
			zap.String("path", *configPath))
		cfg = config.Default()
	} else {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
		}
	}

	// Создаем контекст с возможностью отмены через горутину
	ctx, cancel := context.WithCancel(context.Background())

	// Настраиваем обработку сигналов завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nЗавершение работы...")
		cancel()
		time.Sleep(5 * time.Second) // Даем горутинам время на завершение
		os.Exit(0)
	}()

	// История открытого интереса переживает перезапуски процесса
	store, err := history.New(cfg.History.Path,
		time.Duration(cfg.History.MaxLookbackHours)*time.Hour)
	if err != nil {
		logger.Fatal("Ошибка открытия истории открытого интереса", zap.Error(err))
	}

	// Архив результатов опционален
	var archive storage.Storage
	if cfg.Storage.Enabled {
		influx, err := storage.NewInfluxDBStorage(cfg.Storage)
		if err != nil {
			logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
		}
		defer influx.Close()
		archive = influx
	}

	// Инициализируем клиент биржи
	client, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка инициализации клиента биржи", zap.Error(err))
	}

	// Создаем агрегатор аналитики
	agg := aggregator.New(cfg, client, cache.New(), store, archive)

	var userInterface *ui.TermUI
	if cfg.UI.Enabled && !*headless {
		userInterface = ui.NewTermUI(cfg.UI)
	}

	// Запускаем аналитический цикл в горутине
	go func() {
		interval := time.Duration(cfg.Trading.IntervalSeconds) * time.Second
		if interval <= 0 {
			interval = 30 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for _, symbol := range cfg.Trading.Symbols {
					result, err := agg.Aggregate(ctx, aggregator.Request{
						Symbol:   symbol,
						UseCache: true,
					})
					if err != nil {
						logger.Warn("Ошибка цикла агрегации",
							zap.String("symbol", symbol), zap.Error(err))
						continue
					}
					if userInterface != nil {
						userInterface.UpdateResult(result.Summary)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if userInterface != nil {
		// Запускаем UI в основном потоке (блокирующий вызов)
		userInterface.Start()
		return
	}

	<-ctx.Done()
}
