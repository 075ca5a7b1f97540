package flights

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/haasonsaas/concierge/internal/format"
)

var symbolPrinter = message.NewPrinter(language.English)

// HumanizeOffers rewrites a flight-offer search result into scannable text:
// a count line first, then one block per offer with headline, time window,
// duration/stops, and seat availability. Anything that does not decode as an
// offers document is returned unchanged, and malformed fields inside a
// decoded document degrade to their raw values.
func HumanizeOffers(raw string) string {
	var res SearchResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil || res.Offers == nil {
		return raw
	}

	count := res.TotalOffers
	if count == 0 {
		count = len(res.Offers)
	}

	blocks := []string{fmt.Sprintf("Found %d flights:", count)}
	for i := range res.Offers {
		blocks = append(blocks, humanizeOffer(&res.Offers[i], &res))
	}
	return strings.Join(blocks, "\n\n")
}

func humanizeOffer(o *Offer, res *SearchResult) string {
	lines := []string{offerHeadline(o, res)}
	for i := range o.Itineraries {
		it := &o.Itineraries[i]
		if w := itineraryWindow(it); w != "" {
			lines = append(lines, w)
		}
		if s := itinerarySummary(it); s != "" {
			lines = append(lines, s)
		}
	}
	if o.SeatsAvailable > 0 {
		lines = append(lines, fmt.Sprintf("Seats available: %d", o.SeatsAvailable))
	}
	return strings.Join(lines, "\n")
}

func offerHeadline(o *Offer, res *SearchResult) string {
	var code, number string
	if seg := o.firstSegment(); seg != nil {
		code = seg.Carrier
		number = seg.FlightNumber
	}
	if code == "" && len(o.Airlines) > 0 {
		code = o.Airlines[0]
	}

	left := res.CarrierName(code)
	if number != "" {
		left = strings.TrimSpace(left + " " + number)
	}
	if left == "" {
		left = "Flight"
	}

	price := renderPrice(o.Price)
	if price == "" {
		return left
	}
	return left + " - " + price
}

func renderPrice(p Price) string {
	total := strings.TrimSpace(p.Total)
	code := strings.TrimSpace(p.Currency)
	if total == "" {
		return code
	}
	if sym, ok := currencySymbol(code); ok {
		return sym + total
	}
	if code == "" {
		return total
	}
	return code + " " + total
}

// currencySymbol returns the narrow symbol for an ISO 4217 code. Codes with
// no distinct symbol report false so callers fall back to "CODE amount".
func currencySymbol(code string) (string, bool) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", false
	}
	sym := symbolPrinter.Sprint(currency.NarrowSymbol(unit))
	if sym == "" || sym == "¤" || strings.EqualFold(sym, unit.String()) {
		return "", false
	}
	return sym, true
}

func itineraryWindow(it *Itinerary) string {
	if len(it.Segments) == 0 {
		return ""
	}
	dep := renderStopTime(it.Segments[0].Departure)
	arr := renderStopTime(it.Segments[len(it.Segments)-1].Arrival)
	if dep == "" && arr == "" {
		return ""
	}
	return dep + " → " + arr
}

var stopTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// renderStopTime extracts the timestamp from values like
// "LHR at 2026-09-01T09:00" and renders it on a 12-hour clock. Values that
// do not parse come back verbatim.
func renderStopTime(raw string) string {
	raw = strings.TrimSpace(raw)
	candidate := raw
	if idx := strings.LastIndex(raw, " at "); idx >= 0 {
		candidate = strings.TrimSpace(raw[idx+len(" at "):])
	}
	for _, layout := range stopTimeLayouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			return format.Clock12(t)
		}
	}
	return raw
}

func itinerarySummary(it *Itinerary) string {
	dur := strings.TrimSpace(it.Duration)
	if parsed, err := format.ParseISODuration(dur); err == nil {
		dur = format.HumanizeDuration(parsed)
	}
	label := stopLabel(len(it.Segments))
	switch {
	case label == "":
		return dur
	case dur == "":
		return label
	}
	return dur + ", " + label
}

func stopLabel(segments int) string {
	switch {
	case segments <= 0:
		return ""
	case segments == 1:
		return "nonstop"
	case segments == 2:
		return "1 stop"
	}
	return fmt.Sprintf("%d stops", segments-1)
}
