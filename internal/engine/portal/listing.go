package portal

import (
	"fmt"
	"strings"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/engine/extract"
	"github.com/reinetwork/actor-zillow-api-scraper/internal/model"
)

// ProjectListing flattens a property payload onto the output schema.
// The full payload rides along in Raw so sinks can keep everything.
func ProjectListing(prop map[string]any) model.Listing {
	street := extract.SafeString(extract.SafePath(prop, "address", "streetAddress"))
	city := extract.SafeString(extract.SafePath(prop, "address", "city"))
	state := extract.SafeString(extract.SafePath(prop, "address", "state"))
	zip := extract.SafeString(extract.SafePath(prop, "address", "zipcode"))

	l := model.Listing{
		ZPID:       extract.SafeString(prop["zpid"]),
		Address:    joinAddress(street, city, state, zip),
		Status:     extract.SafeString(prop["homeStatus"]),
		Price:      extract.SafeFloat(prop["price"]),
		Currency:   extract.SafeString(prop["currency"]),
		Bedrooms:   extract.SafeFloat(prop["bedrooms"]),
		Bathrooms:  extract.SafeFloat(prop["bathrooms"]),
		LivingArea: extract.SafeFloat(prop["livingArea"]),
		YearBuilt:  extract.SafeInt(prop["yearBuilt"]),
		HomeType:   extract.SafeString(prop["homeType"]),
		Zestimate:  extract.SafeFloat(prop["zestimate"]),
		Lat:        extract.SafeFloat(prop["latitude"]),
		Lng:        extract.SafeFloat(prop["longitude"]),
		City:       city,
		State:      state,
		ZipCode:    zip,
		DetailURL:  extract.SafeString(prop["hdpUrl"]),
		Raw:        prop,
	}
	if l.DetailURL == "" && l.ZPID != "" {
		l.DetailURL = fmt.Sprintf("/homedetails/%s_zpid/", l.ZPID)
	}
	return l
}

func joinAddress(street, city, state, zip string) string {
	var b strings.Builder
	if street != "" {
		b.WriteString(street)
	}
	if city != "" {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(city)
	}
	if state != "" {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(state)
	}
	if zip != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(zip)
	}
	return b.String()
}
