package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"StockCast/internal/di"
	"StockCast/internal/domain/models"
	"StockCast/internal/usecase"
	"StockCast/pkg/config"
	"StockCast/pkg/logger"
	xutil "StockCast/pkg/util"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	tickers := flag.String("tickers", "", "comma separated tickers (default from config)")
	modelList := flag.String("models", "", "comma separated model types (default from config)")
	start := flag.String("start", "", "first day of history, YYYY-MM-DD (default from config)")
	end := flag.String("end", "", "last day of history, YYYY-MM-DD (default today)")
	epochs := flag.Int("epochs", 0, "training epochs (default from config)")
	batch := flag.Int("batch", 0, "batch size (default from config)")
	parallelism := flag.Int("parallelism", 0, "concurrent jobs (default from config)")
	enqueue := flag.Bool("enqueue", false, "push jobs to the Redis queue instead of training here")
	asJSON := flag.Bool("json", false, "print the summary as JSON")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if v := xutil.SplitSymbols(*tickers); len(v) > 0 {
		cfg.Training.Tickers = v
	}
	if v := xutil.SplitSymbols(*modelList); len(v) > 0 {
		cfg.Training.Models = v
	}
	if *start != "" {
		cfg.Training.Start = *start
	}
	if *epochs > 0 {
		cfg.Training.Epochs = *epochs
	}
	if *batch > 0 {
		cfg.Training.BatchSize = *batch
	}
	if *parallelism > 0 {
		cfg.Training.Parallelism = *parallelism
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	kit, cleanup, err := di.InitializeToolkit(cfg)
	if err != nil {
		log.Fatalf("initialization failed: %v", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *enqueue {
		if err := enqueueAll(ctx, kit, cfg, *end); err != nil {
			kit.Logger.Error("enqueue failed", logger.Error(err))
			cleanup()
			os.Exit(1)
		}
		return
	}

	req, err := batchRequest(cfg, *end)
	if err != nil {
		log.Fatalf("invalid flags: %v", err)
	}
	sum := kit.Batch.Run(ctx, req)
	printSummary(sum, *asJSON)
	if sum.Failed > 0 {
		cleanup()
		os.Exit(1)
	}
}

func batchRequest(cfg *config.Config, end string) (usecase.BatchRequest, error) {
	req := usecase.BatchRequest{
		Tickers:   cfg.Training.Tickers,
		Epochs:    cfg.Training.Epochs,
		BatchSize: cfg.Training.BatchSize,
	}
	for _, name := range cfg.Training.Models {
		mt, err := models.ParseModelType(name)
		if err != nil {
			return req, err
		}
		req.Models = append(req.Models, mt)
	}
	var err error
	if req.Start, err = time.Parse(models.DateLayout, cfg.Training.Start); err != nil {
		return req, fmt.Errorf("start: %w", err)
	}
	if end != "" {
		if req.End, err = time.Parse(models.DateLayout, end); err != nil {
			return req, fmt.Errorf("end: %w", err)
		}
	}
	return req, nil
}

func enqueueAll(ctx context.Context, kit *di.Toolkit, cfg *config.Config, end string) error {
	if kit.Scheduler == nil {
		return fmt.Errorf("enqueue needs redis.enabled")
	}
	for _, ticker := range cfg.Training.Tickers {
		jobs, err := kit.Scheduler.EnqueueTicker(ctx, models.TrainTickerRequest{
			Ticker:    ticker,
			Models:    cfg.Training.Models,
			Start:     cfg.Training.Start,
			End:       end,
			Epochs:    cfg.Training.Epochs,
			BatchSize: cfg.Training.BatchSize,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", ticker, err)
		}
		for _, j := range jobs {
			fmt.Printf("queued %-6s %-12s %s\n", strings.ToUpper(ticker), j.Model, j.JobID)
		}
	}
	return nil
}

func printSummary(sum usecase.BatchSummary, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(sum)
		return
	}
	fmt.Printf("%-6s %-12s %-8s %10s %10s %8s  %s\n", "TICKER", "MODEL", "STATUS", "RMSE", "MAE", "MAPE%", "ERROR")
	for _, r := range sum.Results {
		status := "ok"
		if !r.Success {
			status = "failed"
		}
		var rmse, mae, mape float64
		if r.Metrics != nil {
			rmse, mae, mape = r.Metrics.RMSE, r.Metrics.MAE, r.Metrics.MAPE
		}
		fmt.Printf("%-6s %-12s %-8s %10.4f %10.4f %8.2f  %s\n", r.Key.Ticker, r.Key.Model, status, rmse, mae, mape, r.Error)
	}
	fmt.Printf("\n%d succeeded, %d failed in %s\n", sum.Succeeded, sum.Failed, sum.Duration.Round(time.Second))
}
