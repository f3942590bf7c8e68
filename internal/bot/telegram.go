package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"

	"trendr/internal/backtest"
	"trendr/internal/domain"
	"trendr/internal/service"
)

const replyTimeout = 2 * time.Minute

type Pipeline interface {
	LatestSignal(ctx context.Context, symbol, model string) (*domain.Signal, error)
	Backtest(ctx context.Context, symbol, model string, params backtest.Params) (*service.BacktestReport, error)
	DefaultParams() backtest.Params
}

// StartTelegramBot starts long polling in the background and stops it when ctx ends.
// It returns a nil bot when no token is configured.
func StartTelegramBot(ctx context.Context, token string, logger zerolog.Logger, pipeline Pipeline) (*tele.Bot, error) {
	if token == "" {
		logger.Info().Msg("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil, nil
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			logger.Error().Err(err).Msg("telegram handler failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	cmds := &commands{pipeline: pipeline}
	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})
	b.Handle("/signal", func(c tele.Context) error {
		rctx, cancel := context.WithTimeout(ctx, replyTimeout)
		defer cancel()
		return c.Send(cmds.signal(rctx, c.Args()))
	})
	b.Handle("/backtest", func(c tele.Context) error {
		rctx, cancel := context.WithTimeout(ctx, replyTimeout)
		defer cancel()
		return c.Send(cmds.backtest(rctx, c.Args()))
	})

	go b.Start()
	go func() {
		<-ctx.Done()
		b.Stop()
	}()
	logger.Info().Msg("Telegram bot started")
	return b, nil
}

type commands struct {
	pipeline Pipeline
}

// args: SYMBOL [MODEL]
func (c *commands) signal(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /signal ETH-USD [logreg|gbc|ensemble]"
	}
	symbol := strings.ToUpper(args[0])
	sig, err := c.pipeline.LatestSignal(ctx, symbol, optionalArg(args, 1))
	if err != nil {
		return failureText(symbol, err)
	}
	return fmt.Sprintf(
		"%s %s (%s)\nAs of: %s\nP(up): %.3f\nCall: %s",
		sig.Symbol, sig.Interval, sig.ModelKey,
		sig.Date.Format(time.DateOnly), sig.ProbUp, strings.ToUpper(string(sig.Direction)),
	)
}

func (c *commands) backtest(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /backtest ETH-USD [logreg|gbc|ensemble]"
	}
	symbol := strings.ToUpper(args[0])
	rep, err := c.pipeline.Backtest(ctx, symbol, optionalArg(args, 1), c.pipeline.DefaultParams())
	if err != nil {
		return failureText(symbol, err)
	}
	s := rep.Summary
	return fmt.Sprintf(
		"%s backtest (%s v%d)\n%s to %s, %d trades\nCAGR strategy: %.2f%%\nCAGR buy&hold: %.2f%%\nSharpe: %.2f\nMax drawdown: %.2f%%",
		rep.Symbol, rep.Model, rep.Version,
		rep.From.Format(time.DateOnly), rep.To.Format(time.DateOnly), rep.Trades,
		s.CAGRStrategy*100, s.CAGRBuyHold*100, s.Sharpe, s.MaxDrawdown*100,
	)
}

func optionalArg(args []string, i int) string {
	if len(args) > i {
		return strings.ToLower(args[i])
	}
	return ""
}

func failureText(symbol string, err error) string {
	if errors.Is(err, service.ErrNoPriceHistory) {
		return fmt.Sprintf("No price history for %s yet. Download it first.", symbol)
	}
	return fmt.Sprintf("Error for %s: %v", symbol, err)
}
