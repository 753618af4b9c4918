package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/equityresearch/pkg/config"
)

var reportDelimiter = strings.Repeat("=", 60)

// ResearchSector discovers the leading companies of a sector, researches
// each of them on one shared set of tool servers and ranks them.
//
// count is clamped to [1,10]. A discovery that fails or names no tickers
// yields a degraded bundle carrying the discovery text and no company
// reports. A company whose research fails gets a degraded entry rather than
// aborting the run.
func (e *Engine) ResearchSector(ctx context.Context, tr Tracker, sessionID, sector, exchange string, count int) (*SectorReportBundle, error) {
	count = NormalizeCompanyCount(count)
	sectorLabel := e.label(config.AgentSector)

	tr.Progress(fmt.Sprintf("Starting SECTOR research on %s...", sector), sectorLabel)
	if err := checkpoint(ctx, tr); err != nil {
		return nil, err
	}

	discovery, tickers, err := e.discover(ctx, tr, sector, exchange, count)
	var discoveryErr *DiscoveryError
	if errors.As(err, &discoveryErr) {
		if err := checkpoint(ctx, tr); err != nil {
			return nil, err
		}
		e.logger.Warn("Sector discovery degraded", "session_id", sessionID, "sector", sector, "error", err)
		return e.degradedSector(sessionID, sector, exchange, discoveryErr), nil
	}
	if err != nil {
		return nil, err
	}

	tr.Progress("Will analyze: "+strings.Join(tickers, ", "), sectorLabel)
	if err := checkpoint(ctx, tr); err != nil {
		return nil, err
	}

	tr.Progress(fmt.Sprintf("Step 2: Researching %d companies...", len(tickers)), e.label(config.AgentFinancial))
	tr.Progress("Connecting to research servers...", "")
	pool, err := e.acquire(ctx, e.serversFor(stockAnalysts...))
	if err != nil {
		return nil, &SetupError{Stage: "connect tool servers", Err: err}
	}
	defer func() {
		if err := pool.Close(); err != nil {
			e.logger.Warn("Failed to close tool servers", "session_id", sessionID, "error", err)
		}
	}()
	tr.Progress("Servers connected for all company research!", "")

	reports := make(map[string]*ReportBundle, len(tickers))
	for i, ticker := range tickers {
		if err := checkpoint(ctx, tr); err != nil {
			return nil, err
		}
		tr.Progress(fmt.Sprintf("Company %d/%d: %s", i+1, len(tickers), ticker), "")

		bundle, err := e.researchEntity(ctx, tr, pool, sessionID, ticker, exchange)
		if err != nil {
			if IsCancellation(err) || ctx.Err() != nil {
				return nil, err
			}
			e.logger.Warn("Company research failed", "session_id", sessionID, "ticker", ticker, "error", err)
			tr.Progress(fmt.Sprintf("Error researching %s: %s", ticker, err), "")
			bundle = failedCompanyBundle(ticker, exchange, sessionID, err, e.now())
		}
		reports[ticker] = bundle
	}
	tr.Progress(fmt.Sprintf("All %d companies researched!", len(tickers)), "")

	if err := checkpoint(ctx, tr); err != nil {
		return nil, err
	}
	portfolioLabel := e.label(config.AgentPortfolio)
	tr.Progress("Step 3: Portfolio Strategist analyzing...", portfolioLabel)
	portfolio, err := e.containedStage(ctx, pool, config.AgentPortfolio, "Portfolio analysis",
		portfolioPrompt(sector, tickers, combineReports(sector, tickers, reports)))
	if err != nil {
		tr.Progress(fmt.Sprintf("%s encountered an error: %s", portfolioLabel, err), portfolioLabel)
	} else {
		tr.Progress("Portfolio analysis complete!", portfolioLabel)
	}

	if err := checkpoint(ctx, tr); err != nil {
		return nil, err
	}
	generatedAt := e.now().Format(TimestampLayout)
	bundle := &SectorReportBundle{
		FullReport:               finalSectorReport(sector, generatedAt, discovery, portfolio, tickers, reports),
		SectorSummary:            discovery,
		PortfolioRecommendations: portfolio,
		CompanyReports:           reports,
		Sections:                 SectorSections{SectorSummary: discovery, Portfolio: portfolio},
		Metadata: SectorMetadata{
			Sector:       sector,
			Exchange:     exchange,
			NumCompanies: len(tickers),
			Tickers:      tickers,
			GeneratedAt:  generatedAt,
			SessionID:    sessionID,
			Type:         TypeSector,
		},
	}

	tr.Progress(fmt.Sprintf("SECTOR RESEARCH COMPLETE for %s!", sector), sectorLabel)
	return bundle, nil
}

// discover runs the discovery stage on its own search-only servers. A
// discovery run that fails or names no tickers returns a *DiscoveryError.
func (e *Engine) discover(ctx context.Context, tr Tracker, sector, exchange string, count int) (string, []string, error) {
	sectorLabel := e.label(config.AgentSector)
	tr.Progress("Step 1: Identifying top companies in sector...", sectorLabel)

	pool, err := e.acquire(ctx, e.serversFor(config.AgentSector))
	if err != nil {
		return "", nil, &SetupError{Stage: "connect search server", Err: err}
	}
	defer func() { _ = pool.Close() }()

	if err := checkpoint(ctx, tr); err != nil {
		return "", nil, err
	}

	text, err := e.containedStage(ctx, pool, config.AgentSector, "Sector discovery", discoveryPrompt(sector, exchange, count))
	if err != nil {
		if IsCancellation(err) || ctx.Err() != nil {
			return "", nil, err
		}
		tr.Progress(fmt.Sprintf("Error in sector identification: %s", err), sectorLabel)
		return "", nil, &DiscoveryError{
			Sector: sector,
			Text:   fmt.Sprintf("Failed to identify companies in %s sector: %s", sector, err),
			Err:    err,
		}
	}
	tr.Progress(sectorLabel+" completed Step 1: Top companies identified!", sectorLabel)

	tickers := ExtractTickers(text, count)
	if len(tickers) == 0 {
		tr.Progress("Could not extract tickers automatically.", sectorLabel)
		return "", nil, &DiscoveryError{Sector: sector, Text: text}
	}
	return text, tickers, nil
}

// researchEntity runs the company pipeline, turning a panic into an error so
// one company cannot take down the sector run.
func (e *Engine) researchEntity(ctx context.Context, tr Tracker, pool ToolServers, sessionID, ticker, exchange string) (bundle *ReportBundle, err error) {
	defer func() {
		if r := recover(); r != nil {
			bundle, err = nil, fmt.Errorf("panic while researching %s: %v", ticker, r)
		}
	}()
	return e.researchWithServers(ctx, tr, pool, sessionID, ticker, exchange)
}

func (e *Engine) degradedSector(sessionID, sector, exchange string, de *DiscoveryError) *SectorReportBundle {
	discovery := de.Text
	return &SectorReportBundle{
		FullReport:     discovery,
		SectorSummary:  discovery,
		CompanyReports: map[string]*ReportBundle{},
		Sections:       SectorSections{SectorSummary: discovery},
		Metadata: SectorMetadata{
			Sector:      sector,
			Exchange:    exchange,
			Tickers:     []string{},
			GeneratedAt: e.now().Format(TimestampLayout),
			SessionID:   sessionID,
			Type:        TypeSector,
			Degraded:    true,
			Error:       de.Error(),
		},
	}
}

// combineReports joins the company reports for the portfolio stage.
func combineReports(sector string, tickers []string, reports map[string]*ReportBundle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Sector Analysis\n\n## Companies Analyzed:\n%s\n\n## Individual Company Reports:\n\n",
		sector, strings.Join(tickers, ", "))
	for _, t := range tickers {
		fmt.Fprintf(&b, "\n%s\n## %s FULL REPORT\n%s\n\n%s\n\n", reportDelimiter, t, reportDelimiter, reports[t].FullReport)
	}
	return b.String()
}

func finalSectorReport(sector, generatedAt, discovery, portfolio string, tickers []string, reports map[string]*ReportBundle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Sector Research Report\nGenerated: %s\n\n%s\n\n---\n\n%s\n\n---\n\n## Detailed Company Reports\n\n",
		sector, generatedAt, discovery, portfolio)
	for _, t := range tickers {
		fmt.Fprintf(&b, "\n## %s - Detailed Analysis\n\n%s\n\n---\n\n", t, reports[t].FullReport)
	}
	return b.String()
}
