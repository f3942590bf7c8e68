package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"trendr/internal/app"
	"trendr/internal/config"
	"trendr/pkg/logger"
	"trendr/pkg/tracing"
)

var (
	loadEnvFunc    = godotenv.Load
	loadConfigFunc = config.Load
	newAppFunc     = app.New
)

var errUsage = errors.New("usage")

func main() {
	_ = loadEnvFunc()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case errors.Is(err, errUsage):
		if err != errUsage {
			fmt.Fprintln(os.Stderr, err)
		}
		usage(os.Stderr)
		os.Exit(2)
	case err != nil:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  trendr download  --symbol ETH-USD --start 2016-01-01 --interval 1d")
	fmt.Fprintln(w, "  trendr featurize --symbol ETH-USD")
	fmt.Fprintln(w, "  trendr train     --symbol ETH-USD --model gbc")
	fmt.Fprintln(w, "  trendr backtest  --symbol ETH-USD --threshold-long 0.55 --threshold-short 0.45 --tx-cost-bps 5")
	fmt.Fprintln(w, "  trendr signal    --symbol ETH-USD")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "notes:")
	fmt.Fprintln(w, "  - defaults come from the environment and TRENDR_STRATEGY_FILE; flags override both")
	fmt.Fprintln(w, "  - results are printed as JSON on stdout, logs go to stderr")
}

type options struct {
	symbol         string
	model          string
	thresholdLong  float64
	thresholdShort float64
	txCostBps      float64
}

// parseFlags applies command-line overrides on top of cfg.
func parseFlags(cmd string, args []string, cfg *config.Config, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)

	defSymbol := "ETH-USD"
	if len(cfg.Symbols) > 0 {
		defSymbol = cfg.Symbols[0]
	}
	o := options{}
	fs.StringVar(&o.symbol, "symbol", defSymbol, "Ticker, e.g. ETH-USD")
	fs.StringVar(&o.model, "model", cfg.Model, "logreg, gbc or ensemble")
	fs.Float64Var(&o.thresholdLong, "threshold-long", cfg.Backtest.ThresholdLong, "Go long above this P(up)")
	fs.Float64Var(&o.thresholdShort, "threshold-short", cfg.Backtest.ThresholdShort, "Go short below this P(up)")
	fs.Float64Var(&o.txCostBps, "tx-cost-bps", cfg.Backtest.TxCostBps, "Cost per position change in basis points")
	interval := fs.String("interval", cfg.Interval, "Bar interval")
	start := fs.String("start", cfg.Start.Format(time.DateOnly), "First date to download, YYYY-MM-DD")
	dataDir := fs.String("data-dir", cfg.DataDir, "Directory for CSV, report and model files")
	if err := fs.Parse(args); err != nil {
		return o, errUsage
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("%w: unexpected argument %q", errUsage, fs.Arg(0))
	}

	t, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		return o, fmt.Errorf("invalid --start %q: %w", *start, err)
	}
	cfg.Start = t
	cfg.Interval = *interval
	cfg.DataDir = *dataDir
	o.symbol = strings.ToUpper(strings.TrimSpace(o.symbol))
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd := args[0]
	switch cmd {
	case "download", "featurize", "train", "backtest", "signal":
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	cfg := loadConfigFunc()
	o, err := parseFlags(cmd, args[1:], cfg, stderr)
	if err != nil {
		return err
	}

	log := logger.NewWithWriter(cfg.LogLevel, "console", stderr)
	tp, tracer, err := tracing.InitTracer(ctx, tracing.Options{ServiceName: "trendr-cli"})
	if err != nil {
		return err
	}
	defer func() { _ = tracing.Shutdown(tp, time.Second) }()

	a, err := newAppFunc(ctx, cfg, log, tracer)
	if err != nil {
		return err
	}
	defer a.Close()
	svc := a.Service

	var result any
	switch cmd {
	case "download":
		result, err = svc.Download(ctx, o.symbol)
	case "featurize":
		result, err = svc.Featurize(ctx, o.symbol)
	case "train":
		result, err = svc.Train(ctx, o.symbol, o.model)
	case "backtest":
		params := svc.DefaultParams()
		params.ThresholdLong = o.thresholdLong
		params.ThresholdShort = o.thresholdShort
		params.TxCostBps = o.txCostBps
		rep, berr := svc.Backtest(ctx, o.symbol, o.model, params)
		if berr == nil {
			// rows are in the CSV report
			trimmed := *rep
			trimmed.Rows = nil
			result = &trimmed
		}
		err = berr
	case "signal":
		result, err = svc.LatestSignal(ctx, o.symbol, o.model)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
