package research

import (
	"fmt"
	"strings"
	"time"
)

func stampLines(now time.Time, symbol string) string {
	return fmt.Sprintf("Current datetime: %s\nStock symbol: %s", now.Format(TimestampLayout), symbol)
}

func fundamentalPrompt(symbol string, now time.Time) string {
	return fmt.Sprintf(`Analyze %[1]s from a fundamental perspective.

Only call the market data tools you have been given. If a data point is not available, skip it.

Cover:
- Price, market capitalization and valuation ratios (P/E, P/B, P/S)
- Business profile
- Income statement, cash flow and margins
- Balance sheet strength (debt, equity, cash)
- Returns (ROE, ROA) and growth (revenue, earnings)

Finish with business model, financial health, valuation, growth prospects and red flags.

%[2]s`, symbol, stampLines(now, symbol))
}

func technicalPrompt(symbol string, now time.Time) string {
	return fmt.Sprintf(`Analyze %[1]s from a technical perspective.

Use the market data tools to collect price and volume, price history over one week, one month,
three months, year to date and one year, the 52-week range, trend and momentum.

Finish with the current trend, momentum, support and resistance, volatility and outlook.

%[2]s`, symbol, stampLines(now, symbol))
}

func newsPrompt(symbol string, now time.Time) string {
	return fmt.Sprintf(`Research news and sentiment for %[1]s.

Search for coverage from the last 30 days: company announcements, earnings and guidance,
deals and strategic moves, regulatory or legal developments. Run several searches.
Cite every article with its URL.

Finish with recent developments, sentiment, upcoming catalysts, risks and industry context.

%[2]s`, symbol, stampLines(now, symbol))
}

func comparativePrompt(symbol string, now time.Time) string {
	return fmt.Sprintf(`Compare %[1]s with its industry peers.

Pick three to five direct competitors and compare valuation (P/E, P/B, P/S), profitability
(margins, ROE, ROA) and growth.

Conclude whether %[1]s is good value relative to its peers.

%[2]s`, symbol, stampLines(now, symbol))
}

// fallbackPrompt asks for an answer from what a run already found, without
// further tool calls.
func fallbackPrompt(symbol string) string {
	return fmt.Sprintf(`You were researching %s but ran out of turns before finishing.
Write a short update from whatever partial information you gathered. If you found nothing that
qualifies, say plainly that recent coverage is sparse and mention any relevant context.
Do not run any more searches.

Stock symbol: %s`, symbol, symbol)
}

func synthesisPrompt(symbol, financial, technical, news, comparative string) string {
	return fmt.Sprintf(`You have analyses from four specialists on %s.

## FUNDAMENTAL ANALYSIS
%s

## TECHNICAL ANALYSIS
%s

## NEWS & SENTIMENT ANALYSIS
%s

## PEER COMPARISON ANALYSIS
%s

Combine them into one investment research report using exactly these level-two headings, in order:
%s

Stock symbol: %s`, symbol, financial, technical, news, comparative, headingList(), symbol)
}

func headingList() string {
	var b strings.Builder
	for _, h := range ReportHeadings {
		b.WriteString("## " + h + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func strategicPrompt(symbol, report string) string {
	return fmt.Sprintf(`Below is the complete research report on %s.

Think about the strategic implications, connect the dots, say what you expect to happen next
and give your honest recommendation.

FULL REPORT:

%s

Stock symbol: %s`, symbol, report, symbol)
}

func discoveryPrompt(sector, exchange string, count int) string {
	return fmt.Sprintf(`Identify the top %[1]d publicly traded companies in the %[2]s sector on the %[3]s market,
ranked by market capitalization. Use web search.

For each company give the name, then the ticker and exchange in parentheses, e.g.
"Apple Inc. (AAPL, US)", followed by a one-line description.

Return exactly %[1]d companies with accurate ticker symbols.

Sector: %[2]s`, count, sector, exchange)
}

func portfolioPrompt(sector string, tickers []string, combined string) string {
	return fmt.Sprintf(`You have full research reports on %[1]d companies in the %[2]s sector:

%[3]s

Compare them and give portfolio recommendations:
1. Rank all %[1]d companies from best to worst
2. Name the single top pick
3. Propose an allocation of a hypothetical $10,000
4. Say which companies to avoid and why

Be decisive.

Sector: %[2]s
Companies: %[4]s`, len(tickers), sector, combined, strings.Join(tickers, ", "))
}
