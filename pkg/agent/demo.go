package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/equityresearch/pkg/config"
)

// DemoClient is an offline LLMClient that fills templates instead of
// calling a model. Every reply is structurally valid for the agent that
// asked: the report generator emits the required headings and the sector
// analyst lists tickers in parentheses.
type DemoClient struct {
	delay time.Duration
}

var _ LLMClient = (*DemoClient)(nil)

// NewDemoClient creates a demo client that waits delay before each reply.
func NewDemoClient(delay time.Duration) *DemoClient {
	return &DemoClient{delay: delay}
}

var demoCompanies = []struct{ name, ticker string }{
	{"Apple Inc.", "AAPL"},
	{"Microsoft Corporation", "MSFT"},
	{"NVIDIA Corporation", "NVDA"},
	{"Alphabet Inc.", "GOOGL"},
	{"Amazon.com Inc.", "AMZN"},
	{"Meta Platforms Inc.", "META"},
	{"Broadcom Inc.", "AVGO"},
	{"Oracle Corporation", "ORCL"},
	{"Salesforce Inc.", "CRM"},
	{"Adobe Inc.", "ADBE"},
}

// Generate returns the canned reply for input.Agent.
func (c *DemoClient) Generate(ctx context.Context, input *GenerateInput) (*LLMResponse, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	subject := demoSubject(input.Messages)
	var text string
	switch input.Agent {
	case config.AgentFinancial:
		text = fmt.Sprintf("### Fundamentals for %s\nRevenue grew 8%% year over year with operating margin near 30%%. "+
			"Balance sheet carries net cash. Valuation sits at 24x trailing earnings, slightly above the five-year average.", subject)
	case config.AgentTechnical:
		text = fmt.Sprintf("### Technical picture for %s\nPrice trades above the 50- and 200-day moving averages. "+
			"Support near the March lows, resistance at the 52-week high. Volume is in line with the 3-month average.", subject)
	case config.AgentNews:
		text = fmt.Sprintf("### Recent coverage of %s\n- Quarterly results beat consensus (https://example.com/news/%s-earnings)\n"+
			"- New product cycle announced (https://example.com/news/%s-launch)\nSentiment: moderately bullish.",
			subject, strings.ToLower(subject), strings.ToLower(subject))
	case config.AgentComparative:
		text = fmt.Sprintf("### %s versus peers\n| Metric | %s | Peer median |\n|---|---|---|\n| P/E | 24 | 27 |\n| Net margin | 25%% | 18%% |\n"+
			"%s screens cheaper than peers with better profitability.", subject, subject, subject)
	case config.AgentReport:
		text = demoReport(subject)
	case config.AgentStrategic:
		text = fmt.Sprintf("## My Strategic Take\n\n**My recommendation: HOLD**\n%s is fairly priced after its run. "+
			"Base case target is 8%% above the current price over 12 months.\n\n**Conviction:** 6/10", subject)
	case config.AgentSector:
		text = demoSectorList(subject)
	case config.AgentPortfolio:
		text = "## Sector Investment Analysis\n\n### Company Rankings\n1. The first company listed ranks highest on quality and momentum.\n\n" +
			"### Portfolio Recommendation\n- 50% top pick\n- 30% second pick\n- 20% third pick"
	default:
		text = fmt.Sprintf("Demo response for %s.", subject)
	}

	return &LLMResponse{Text: text, Usage: &TokenUsage{}}, nil
}

// Close is a no-op.
func (c *DemoClient) Close() error { return nil }

// demoSubject picks the subject line ("Symbol: X" or "Sector: X") from the
// last user message, falling back to a generic name.
func demoSubject(messages []ConversationMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != RoleUser {
			continue
		}
		for _, line := range strings.Split(messages[i].Content, "\n") {
			for _, prefix := range []string{"Stock symbol:", "Sector:"} {
				if v, ok := strings.CutPrefix(strings.TrimSpace(line), prefix); ok && strings.TrimSpace(v) != "" {
					return strings.TrimSpace(v)
				}
			}
		}
		break
	}
	return "the company"
}

func demoReport(subject string) string {
	sections := []struct{ heading, body string }{
		{"Executive Summary", subject + " combines steady growth with a strong balance sheet."},
		{"Fundamental Analysis Summary", "Margins are healthy and cash generation is strong."},
		{"Technical Analysis Summary", "The primary trend is up with support well below the current price."},
		{"News & Sentiment Summary", "Recent results beat expectations (https://example.com/news/" + strings.ToLower(subject) + "-earnings)."},
		{"Peer Comparison Summary", "Valuation is below the peer median."},
		{"Synthesis & Investment Considerations", "Bull case rests on the product cycle; bear case on valuation."},
		{"Risk Assessment", "Overall risk level: Medium."},
	}
	var b strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&b, "## %s\n%s\n\n", s.heading, s.body)
	}
	return strings.TrimSpace(b.String())
}

func demoSectorList(sector string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Top Companies in %s\n\n", sector)
	for i, c := range demoCompanies {
		fmt.Fprintf(&b, "%d. **%s (%s, US)**\n   - Sector leader by market capitalization\n", i+1, c.name, c.ticker)
	}
	return b.String()
}
