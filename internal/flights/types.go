// Package flights provides a flight-offer search client and the
// human-readable rendering of its results.
package flights

import "strings"

// SearchRequest describes one flight-offer search.
type SearchRequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
	Adults      int    `json:"adults,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
}

// Price is an offer's total price in a single currency.
type Price struct {
	Total    string `json:"total"`
	Currency string `json:"currency"`
}

// Segment is one flight leg inside an itinerary.
type Segment struct {
	Departure    string `json:"departure"`
	Arrival      string `json:"arrival"`
	Carrier      string `json:"carrier"`
	FlightNumber string `json:"flightNumber"`
	Duration     string `json:"duration"`
	Stops        int    `json:"stops"`
}

// Itinerary is an ordered sequence of segments with an overall duration.
type Itinerary struct {
	Duration string    `json:"duration"`
	Segments []Segment `json:"segments"`
}

// Offer is a bookable flight offer.
type Offer struct {
	OfferID        string      `json:"offerId"`
	Price          Price       `json:"price"`
	Airlines       []string    `json:"airlines"`
	Itineraries    []Itinerary `json:"itineraries"`
	SeatsAvailable int         `json:"seatsAvailable"`
}

// Dictionaries carries lookup tables shipped alongside offers, notably
// carrier code to display name.
type Dictionaries struct {
	Carriers map[string]string `json:"carriers"`
}

// SearchResult is the wire shape of a flight-offer search response.
type SearchResult struct {
	TotalOffers  int          `json:"totalOffers"`
	Offers       []Offer      `json:"offers"`
	Dictionaries Dictionaries `json:"dictionaries"`
}

// CarrierName resolves a carrier code through the dictionaries, falling back
// to the code itself.
func (r *SearchResult) CarrierName(code string) string {
	if name, ok := r.Dictionaries.Carriers[code]; ok && strings.TrimSpace(name) != "" {
		return name
	}
	return code
}

func (o *Offer) firstSegment() *Segment {
	for i := range o.Itineraries {
		if len(o.Itineraries[i].Segments) > 0 {
			return &o.Itineraries[i].Segments[0]
		}
	}
	return nil
}
