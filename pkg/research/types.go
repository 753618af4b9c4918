package research

import (
	"strings"
	"time"
)

// Bundle types.
const (
	TypeStock  = "stock"
	TypeSector = "sector"
)

// TimestampLayout formats generated_at fields.
const TimestampLayout = "2006-01-02 15:04:05"

// Bundle is the result of one research session.
type Bundle interface {
	// BundleType returns TypeStock or TypeSector.
	BundleType() string
	// Report returns the full markdown report.
	Report() string
}

// ReportBundle is the result of researching one company. Every field is
// always present; failed stages leave placeholder text.
type ReportBundle struct {
	FullReport string   `json:"full_report"`
	Sections   Sections `json:"sections"`
	Analyses   Analyses `json:"analyses"`
	Sources    Sources  `json:"sources"`
	Metadata   Metadata `json:"metadata"`
}

// Sections are the named parts of the synthesized report plus the
// strategic take.
type Sections struct {
	ExecutiveSummary string `json:"executive_summary"`
	Fundamental      string `json:"fundamental"`
	Technical        string `json:"technical"`
	News             string `json:"news"`
	Comparison       string `json:"comparison"`
	Synthesis        string `json:"synthesis"`
	Risk             string `json:"risk"`
	Strategic        string `json:"strategic"`
}

// Analyses holds the raw output of each analyst.
type Analyses struct {
	Financial   string `json:"financial"`
	Technical   string `json:"technical"`
	News        string `json:"news"`
	Comparative string `json:"comparative"`
	Strategic   string `json:"strategic"`
}

type Sources struct {
	NewsLinks []string `json:"news_links"`
}

type Metadata struct {
	GeneratedAt string `json:"generated_at"`
	Symbol      string `json:"symbol"`
	Exchange    string `json:"exchange"`
	SessionID   string `json:"session_id"`
	Type        string `json:"type"`
	// Error is set on the degraded bundle of a company whose research failed.
	Error string `json:"error,omitempty"`
}

func (b *ReportBundle) BundleType() string { return TypeStock }
func (b *ReportBundle) Report() string     { return b.FullReport }

// Heading titles the report generator must emit, in order.
const (
	HeadingExecutiveSummary = "Executive Summary"
	HeadingFundamental      = "Fundamental Analysis Summary"
	HeadingTechnical        = "Technical Analysis Summary"
	HeadingNews             = "News & Sentiment Summary"
	HeadingComparison       = "Peer Comparison Summary"
	HeadingSynthesis        = "Synthesis & Investment Considerations"
	HeadingRisk             = "Risk Assessment"
)

// ReportHeadings lists the required headings in order.
var ReportHeadings = []string{
	HeadingExecutiveSummary,
	HeadingFundamental,
	HeadingTechnical,
	HeadingNews,
	HeadingComparison,
	HeadingSynthesis,
	HeadingRisk,
}

func newSections(split map[string]string, strategic string) Sections {
	return Sections{
		ExecutiveSummary: split[HeadingExecutiveSummary],
		Fundamental:      split[HeadingFundamental],
		Technical:        split[HeadingTechnical],
		News:             split[HeadingNews],
		Comparison:       split[HeadingComparison],
		Synthesis:        split[HeadingSynthesis],
		Risk:             split[HeadingRisk],
		Strategic:        strings.TrimSpace(strategic),
	}
}

// failedCompanyBundle stands in for a company whose research could not finish.
func failedCompanyBundle(ticker, exchange, sessionID string, cause error, now time.Time) *ReportBundle {
	return &ReportBundle{
		FullReport: "Unable to complete research on " + ticker,
		Sources:    Sources{NewsLinks: []string{}},
		Metadata: Metadata{
			GeneratedAt: now.Format(TimestampLayout),
			Symbol:      ticker,
			Exchange:    exchange,
			SessionID:   sessionID,
			Type:        TypeStock,
			Error:       cause.Error(),
		},
	}
}

// SectorReportBundle is the result of researching a sector.
type SectorReportBundle struct {
	FullReport               string                   `json:"full_report"`
	SectorSummary            string                   `json:"sector_summary"`
	PortfolioRecommendations string                   `json:"portfolio_recommendations"`
	CompanyReports           map[string]*ReportBundle `json:"company_reports"`
	Sections                 SectorSections           `json:"sections"`
	Metadata                 SectorMetadata           `json:"metadata"`
}

type SectorSections struct {
	SectorSummary string `json:"sector_summary"`
	Portfolio     string `json:"portfolio"`
}

type SectorMetadata struct {
	Sector       string `json:"sector"`
	Exchange     string `json:"exchange"`
	NumCompanies int    `json:"num_companies"`
	// Tickers preserves research order; company_reports is a map.
	Tickers     []string `json:"tickers"`
	GeneratedAt string   `json:"generated_at"`
	SessionID   string   `json:"session_id"`
	Type        string   `json:"type"`
	// Degraded is set when discovery produced no usable tickers and the
	// report carries only the discovery text.
	Degraded bool   `json:"degraded,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (b *SectorReportBundle) BundleType() string { return TypeSector }
func (b *SectorReportBundle) Report() string     { return b.FullReport }
