package api

// StockResearchRequest is the HTTP request body for POST /research/stock.
type StockResearchRequest struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange,omitempty"`
}

// SectorResearchRequest is the HTTP request body for POST /research/sector.
// NumCompanies accepts any JSON value; it is normalized by the service.
type SectorResearchRequest struct {
	Sector       string `json:"sector"`
	Exchange     string `json:"exchange,omitempty"`
	NumCompanies any    `json:"num_companies,omitempty"`
}
