package config

import (
	"sync"
)

// Built-in tool server IDs.
const (
	ServerMarketData = "yahoo-finance"
	ServerWebSearch  = "brave-search"
)

// BuiltinConfig holds the built-in agents and tool servers. User YAML
// overrides them field by field.
type BuiltinConfig struct {
	Agents          map[string]AgentConfig
	MCPServers      map[string]MCPServerConfig
	MaskingPatterns map[string]MaskingPattern
	PatternGroups   map[string][]string
}

var (
	builtinConfig     *BuiltinConfig
	builtinConfigOnce sync.Once
)

// GetBuiltinConfig returns the singleton built-in configuration (thread-safe, lazy-initialized)
func GetBuiltinConfig() *BuiltinConfig {
	builtinConfigOnce.Do(initBuiltinConfig)
	return builtinConfig
}

func initBuiltinConfig() {
	builtinConfig = &BuiltinConfig{
		Agents:          initBuiltinAgents(),
		MCPServers:      initBuiltinMCPServers(),
		MaskingPatterns: initBuiltinMaskingPatterns(),
		PatternGroups:   initBuiltinPatternGroups(),
	}
}

func initBuiltinMCPServers() map[string]MCPServerConfig {
	return map[string]MCPServerConfig{
		ServerMarketData: {
			Description: "Yahoo Finance market data (quotes, statements, price history)",
			Transport: TransportConfig{
				Type:    TransportTypeStdio,
				Command: "uvx",
				Args:    []string{"mcp-yahoo-finance"},
				Timeout: DefaultToolTimeoutSeconds,
			},
			DataMasking: &MaskingConfig{Enabled: true, PatternGroups: []string{MaskingGroupSecrets}},
		},
		ServerWebSearch: {
			Description: "Brave web search",
			Transport: TransportConfig{
				Type:    TransportTypeStdio,
				Command: "npx",
				Args:    []string{"-y", "@modelcontextprotocol/server-brave-search"},
				Env: map[string]string{
					"BRAVE_API_KEY": "{{.BRAVE_API_KEY}}",
				},
				Timeout: DefaultToolTimeoutSeconds,
			},
			DataMasking: &MaskingConfig{Enabled: true, PatternGroups: []string{MaskingGroupSecrets}},
		},
	}
}

func initBuiltinAgents() map[string]AgentConfig {
	return map[string]AgentConfig{
		AgentFinancial: {
			Label:        "Financial Analyst",
			Description:  "Fundamental analysis: business model, financial health, valuation",
			Instructions: financialInstructions,
			MCPServers:   []string{ServerMarketData},
			MaxTurns:     20,
		},
		AgentTechnical: {
			Label:        "Technical Analyst",
			Description:  "Price action, trend, momentum and key levels",
			Instructions: technicalInstructions,
			MCPServers:   []string{ServerMarketData},
			MaxTurns:     20,
		},
		AgentNews: {
			Label:            "News Analyst",
			Description:      "Recent news flow and market sentiment",
			Instructions:     newsInstructions,
			MCPServers:       []string{ServerMarketData, ServerWebSearch},
			MaxTurns:         14,
			FallbackMaxTurns: 4,
		},
		AgentComparative: {
			Label:        "Risk Analyst",
			Description:  "Peer comparison and relative valuation",
			Instructions: comparativeInstructions,
			MCPServers:   []string{ServerMarketData},
			MaxTurns:     20,
		},
		AgentReport: {
			Label:        "Report Generator",
			Description:  "Synthesizes the four analyst outputs into a sectioned report",
			Instructions: reportInstructions,
			MaxTurns:     3,
		},
		AgentStrategic: {
			Label:        "Strategic Analyst",
			Description:  "Opinionated recommendation over the full report",
			Instructions: strategicInstructions,
			MaxTurns:     3,
		},
		AgentSector: {
			Label:        "Sector Analyst",
			Description:  "Identifies the leading public companies in a sector",
			Instructions: sectorInstructions,
			MCPServers:   []string{ServerWebSearch},
			MaxTurns:     15,
		},
		AgentPortfolio: {
			Label:        "Portfolio Strategist",
			Description:  "Ranks researched companies and proposes an allocation",
			Instructions: portfolioInstructions,
			MaxTurns:     5,
		},
	}
}

const financialInstructions = `You are a fundamental equity analyst. Use the market data tools to collect
price, market cap, valuation ratios, income statement, balance sheet, cash flow,
profitability and growth figures for the requested stock.
Cover the business model, financial health, valuation, growth prospects and red flags.
Call at most a handful of tools, then write the analysis with the data you have.
Say so when a figure is unavailable.`

const technicalInstructions = `You are a technical analyst. Use the market data tools to collect current price,
volume, price history over several horizons and the 52-week range.
Describe the trend, momentum, support and resistance, volatility and recent performance,
and name the price levels worth watching. Stop calling tools once you have enough history.`

const newsInstructions = `You are a news and sentiment analyst. Search for coverage of the company from the
last 30 days: announcements, earnings and guidance, deals, regulatory or legal events.
Summarize recent developments, sentiment, upcoming catalysts and risks.
Cite every article you rely on with its full URL.`

const comparativeInstructions = `You are a comparative analyst. Pick three to five direct peers of the requested
stock and compare valuation (P/E, P/B, P/S), growth, profitability and size.
Present a comparison table and state whether the stock is cheap or expensive relative
to its peers. Work with partial peer data rather than searching indefinitely.`

const reportInstructions = `You are a research report writer. Combine the analyst inputs you are given into one
report. Use exactly these second-level headings, in this order, and nothing after the last one:

## Executive Summary
## Fundamental Analysis Summary
## Technical Analysis Summary
## News & Sentiment Summary
## Peer Comparison Summary
## Synthesis & Investment Considerations
## Risk Assessment

Keep article URLs from the news input in the News & Sentiment Summary section.
Use concrete figures from the inputs and acknowledge disagreements between analysts.`

const strategicInstructions = `You are a strategic analyst giving a direct, first-person investment opinion.
Start with "## My Strategic Take" and a clear BUY, HOLD or AVOID call.
Explain what is really going on, the reasons for your view with numbers, base, bull and bear
scenarios for the next 6-12 months with price targets, the main risks and a conviction score out of 10.`

const sectorInstructions = `You are a sector analyst. Use web search to identify the leading publicly traded
companies in the requested sector and market, ranked by market capitalization.
List each company as "Company Name (TICKER, EXCHANGE)" followed by a one-line description.
Only include companies investors can buy. Stop searching once the list is complete.`

const portfolioInstructions = `You are a portfolio strategist. You receive full research reports on several
companies from the same sector. Rank them from most to least attractive, name one top pick
and an alternative, list the companies to avoid, and propose how to split a hypothetical
$10,000 across them. Include a comparison table and a short sector outlook. Be decisive.`
