package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/equityresearch/pkg/events"
	"github.com/codeready-toolchain/equityresearch/pkg/queue"
	"github.com/codeready-toolchain/equityresearch/pkg/research"
	"github.com/codeready-toolchain/equityresearch/pkg/services"
	"github.com/codeready-toolchain/equityresearch/pkg/session"
)

func newStockCmd(opts *globalOptions) *cobra.Command {
	var exchange string
	cmd := &cobra.Command{
		Use:     "stock SYMBOL",
		Short:   "Research a single company and print the report",
		Example: "  equityresearch stock AAPL\n  equityresearch stock RELIANCE --exchange NSE --demo",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := strings.ToUpper(strings.TrimSpace(args[0]))
			if symbol == "" {
				return errors.New("symbol is required")
			}
			return runOnce(cmd, opts, session.Request{
				Kind:     session.KindStock,
				Subject:  symbol,
				Exchange: exchangeOrDefault(exchange),
			})
		},
	}
	cmd.Flags().StringVar(&exchange, "exchange", services.DefaultExchange, "Listing exchange")
	return cmd
}

func newSectorCmd(opts *globalOptions) *cobra.Command {
	var (
		exchange  string
		companies int
	)
	cmd := &cobra.Command{
		Use:     "sector NAME",
		Short:   "Research the leading companies of a sector and print the report",
		Example: "  equityresearch sector Technology --companies 3",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sector := strings.TrimSpace(args[0])
			if sector == "" {
				return errors.New("sector is required")
			}
			return runOnce(cmd, opts, session.Request{
				Kind:         session.KindSector,
				Subject:      sector,
				Exchange:     exchangeOrDefault(exchange),
				NumCompanies: research.NormalizeCompanyCount(companies),
			})
		},
	}
	cmd.Flags().StringVar(&exchange, "exchange", services.DefaultExchange, "Listing exchange")
	cmd.Flags().IntVar(&companies, "companies", research.DefaultCompanyCount, "Number of companies to analyze (1-10)")
	return cmd
}

func exchangeOrDefault(exchange string) string {
	exchange = strings.ToUpper(strings.TrimSpace(exchange))
	if exchange == "" {
		return services.DefaultExchange
	}
	return exchange
}

// reporter is implemented by both report bundles.
type reporter interface {
	Report() string
}

// runOnce runs one pipeline in-process. Progress goes to stderr, the
// report to stdout. The first interrupt requests cooperative cancellation.
func runOnce(cmd *cobra.Command, opts *globalOptions, req session.Request) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg, opts.demo, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	s := session.NewManager().Create(req)
	if !s.MarkRunning() {
		return fmt.Errorf("session %s could not start", s.ID)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		slog.Warn("Interrupt received, cancelling after the current step")
		s.RequestCancel()
	}()

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printProgress(ctx, cmd.ErrOrStderr(), s.Channel().Subscribe(0, 0))
	}()

	runCtx, cancel := context.WithTimeout(ctx, cfg.Queue.SessionTimeout)
	defer cancel()
	result := queue.NewResearchExecutor(p.engine).Execute(runCtx, s)

	_ = s.Finish(result.Status, queue.TerminalEvent(result))
	<-printed

	if result.Status != session.StatusComplete {
		if result.Error != nil {
			return fmt.Errorf("research %s: %w", result.Status, result.Error)
		}
		return fmt.Errorf("research %s", result.Status)
	}

	if r, ok := result.Report.(reporter); ok {
		fmt.Fprintln(cmd.OutOrStdout(), r.Report())
	}
	return nil
}

// printProgress writes one line per progress event until the terminal event.
func printProgress(ctx context.Context, w io.Writer, sub *events.Subscription) {
	for {
		evt, err := sub.Next(ctx)
		if err != nil {
			return
		}
		switch evt.Type {
		case events.EventTypeProgress:
			if evt.Agent != "" {
				fmt.Fprintf(w, "[%s] %s\n", evt.Agent, evt.Message)
			} else {
				fmt.Fprintln(w, evt.Message)
			}
		case events.EventTypeConnected, events.EventTypeKeepalive:
		default:
			fmt.Fprintln(w, evt.Message)
		}
	}
}
