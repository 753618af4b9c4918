package research

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultCompanyCount applies when the requested count is not a number.
	DefaultCompanyCount = 5
	MinCompanyCount     = 1
	MaxCompanyCount     = 10
)

var (
	headingRegex = regexp.MustCompile(`(?m)^##\s+(.+)$`)
	linkRegex    = regexp.MustCompile(`https?://[^\s)]+`)

	// Uppercase letters with an optional dotted suffix inside parentheses,
	// optionally followed by ", EXCHANGE": "(AAPL)", "(RELIANCE.NS)", "(MSFT, US)".
	tickerRegex = regexp.MustCompile(`\(([A-Z]+(?:\.[A-Z]+)?)\s*(?:,\s*[A-Z]+)?\)`)
)

// SplitSections maps each "## Title" heading to the trimmed text up to the
// next such heading. Text before the first heading is dropped. A repeated
// title keeps its last body.
func SplitSections(markdown string) map[string]string {
	sections := make(map[string]string)
	matches := headingRegex.FindAllStringSubmatchIndex(markdown, -1)
	for i, m := range matches {
		title := strings.TrimSpace(markdown[m[2]:m[3]])
		end := len(markdown)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections[title] = strings.TrimSpace(markdown[m[1]:end])
	}
	return sections
}

// ExtractLinks returns the http(s) URLs in text, trailing ".,)" stripped,
// deduplicated in first-seen order. Never nil.
func ExtractLinks(text string) []string {
	links := []string{}
	seen := make(map[string]struct{})
	for _, raw := range linkRegex.FindAllString(text, -1) {
		link := strings.TrimRight(raw, ".,)")
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}
	return links
}

// ExtractTickers pulls parenthesized ticker symbols out of free text in
// order of appearance, dropping repeats, and keeps at most limit of them.
// Zero matches yields an empty slice; callers treat that as a failed
// discovery.
func ExtractTickers(text string, limit int) []string {
	tickers := []string{}
	seen := make(map[string]struct{})
	for _, m := range tickerRegex.FindAllStringSubmatch(text, -1) {
		if len(tickers) >= limit {
			break
		}
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		tickers = append(tickers, m[1])
	}
	return tickers
}

// NormalizeSymbol adds the market data suffix for Indian exchanges:
// NSE and INDIA get ".NS", BSE gets ".BO". Symbols that already carry a
// suffix and other exchanges are returned unchanged.
func NormalizeSymbol(symbol, exchange string) string {
	if strings.Contains(symbol, ".") {
		return symbol
	}
	switch strings.ToUpper(exchange) {
	case "NSE", "INDIA":
		return symbol + ".NS"
	case "BSE":
		return symbol + ".BO"
	default:
		return symbol
	}
}

// NormalizeCompanyCount clamps a requested company count to [1,10].
// Integers, floats and numeric strings are accepted; anything else
// (including JSON null) yields DefaultCompanyCount.
func NormalizeCompanyCount(v any) int {
	var n float64
	switch x := v.(type) {
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case float64:
		n = x
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return DefaultCompanyCount
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return DefaultCompanyCount
		}
		n = f
	default:
		return DefaultCompanyCount
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return DefaultCompanyCount
	}
	return int(math.Max(MinCompanyCount, math.Min(MaxCompanyCount, math.Trunc(n))))
}
