package model

// ResultRecord is one entry of a search results page, before the entity
// behind it has been fetched.
type ResultRecord struct {
	ZPID      string         `json:"zpid"`
	Address   string         `json:"address"`
	DetailURL string         `json:"detail_url"`
	Lat       float64        `json:"lat"`
	Lng       float64        `json:"lng"`
	Raw       map[string]any `json:"-"`
}

// Listing is a fully extracted property ready for the output sink.
type Listing struct {
	ZPID       string         `json:"zpid"`
	Address    string         `json:"address"`
	Status     string         `json:"status"`
	Price      float64        `json:"price"`
	Currency   string         `json:"currency"`
	Bedrooms   float64        `json:"bedrooms"`
	Bathrooms  float64        `json:"bathrooms"`
	LivingArea float64        `json:"living_area"`
	YearBuilt  int            `json:"year_built"`
	HomeType   string         `json:"home_type"`
	Zestimate  float64        `json:"zestimate"`
	Lat        float64        `json:"lat"`
	Lng        float64        `json:"lng"`
	City       string         `json:"city"`
	State      string         `json:"state"`
	ZipCode    string         `json:"zip_code"`
	DetailURL  string         `json:"detail_url"`
	Raw        map[string]any `json:"-"`
}

// Report kinds emitted by the address matcher.
const (
	ReportMatch         = "match"
	ReportNoDetailMatch = "no_detail_match"
)

// MatchReport records the outcome of matching one candidate address
// against the results of a search page.
type MatchReport struct {
	Kind    string  `json:"kind"`
	Target  string  `json:"target"`
	ZPID    string  `json:"zpid,omitempty"`
	Address string  `json:"address,omitempty"`
	Score   float64 `json:"score,omitempty"`
}
