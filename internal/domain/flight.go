package domain

import (
	"strings"
	"time"
)

// DateLayout is the calendar date format used in params and provider queries.
const DateLayout = "2006-01-02"

// Field names reported by FlightParams.Missing.
const (
	FieldOrigin      = "origin"
	FieldDestination = "destination"
	FieldDeparture   = "departure"
	FieldReturn      = "return"
)

// FlightParams are the structured search parameters extracted from a user's
// free-text request. Dates are kept as DateLayout strings; an empty string
// means unknown.
type FlightParams struct {
	Origin          string `json:"origin"`
	OriginCity      string `json:"origin_city"`
	Destination     string `json:"destination"`
	DestinationCity string `json:"destination_city"`
	DepartureFrom   string `json:"departure_from"`
	DepartureTo     string `json:"departure_to"`
	ReturnAt        string `json:"return_at"`
	TripDays        int    `json:"trip_days"`
	// OneWayTrip asks Merge to drop a saved return leg. It is never stored.
	OneWayTrip      bool   `json:"one_way"`
}

// Missing lists the required fields that are still unknown, in the order the
// user is asked for them.
func (p FlightParams) Missing() []string {
	var missing []string
	if strings.TrimSpace(p.Origin) == "" {
		missing = append(missing, FieldOrigin)
	}
	if strings.TrimSpace(p.Destination) == "" {
		missing = append(missing, FieldDestination)
	}
	if strings.TrimSpace(p.DepartureFrom) == "" {
		missing = append(missing, FieldDeparture)
	}
	return missing
}

// Complete reports whether a search can be issued with p.
func (p FlightParams) Complete() bool {
	return len(p.Missing()) == 0
}

// OneWay reports whether the request has no return leg.
func (p FlightParams) OneWay() bool {
	return p.ReturnAt == "" && p.TripDays <= 0
}

// Window returns the departure window. A missing DepartureTo collapses the
// window to a single day.
func (p FlightParams) Window() (from, to time.Time, err error) {
	from, err = time.Parse(DateLayout, p.DepartureFrom)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if p.DepartureTo == "" {
		return from, from, nil
	}
	to, err = time.Parse(DateLayout, p.DepartureTo)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

// Merge overlays the non-empty fields of next onto p. A new departure window
// drops a stale DepartureTo so windows are never mixed across messages.
// ReturnAt and TripDays exclude each other and the newer one wins; a return
// date before the departure window is dropped.
func (p FlightParams) Merge(next FlightParams) FlightParams {
	out := p
	if next.Origin != "" {
		out.Origin = next.Origin
		out.OriginCity = next.OriginCity
	}
	if next.Destination != "" {
		out.Destination = next.Destination
		out.DestinationCity = next.DestinationCity
	}
	if next.DepartureFrom != "" {
		out.DepartureFrom = next.DepartureFrom
		out.DepartureTo = next.DepartureTo
	}
	switch {
	case next.OneWayTrip:
		out.ReturnAt, out.TripDays = "", 0
	case next.ReturnAt != "":
		out.ReturnAt, out.TripDays = next.ReturnAt, 0
	case next.TripDays > 0:
		out.ReturnAt, out.TripDays = "", next.TripDays
	}
	out.OneWayTrip = false
	if !out.ReturnValid() {
		out.ReturnAt = ""
	}
	return out
}

// ReturnValid reports whether ReturnAt, when set, is a date not before
// DepartureFrom.
func (p FlightParams) ReturnValid() bool {
	if p.ReturnAt == "" {
		return true
	}
	ret, err := time.Parse(DateLayout, p.ReturnAt)
	if err != nil {
		return false
	}
	from, err := time.Parse(DateLayout, p.DepartureFrom)
	if err != nil {
		return true
	}
	return !ret.Before(from)
}

// Offer is a single priced itinerary returned by the flight-search provider.
type Offer struct {
	Origin             string
	Destination        string
	OriginAirport      string
	DestinationAirport string
	Airline            string
	FlightNumber       string
	Price              int64
	Currency           string
	DepartureAt        time.Time
	ReturnAt           time.Time
	Transfers          int
	ReturnTransfers    int
	DurationMinutes    int
	Link               string
}

// RoundTrip reports whether the offer includes a return flight.
func (o Offer) RoundTrip() bool {
	return !o.ReturnAt.IsZero()
}

// DialogState is the per-user memory of the last extracted parameters.
type DialogState struct {
	UserID    int64
	Params    FlightParams
	UpdatedAt time.Time
}

// SearchQuery is a single provider request. DepartureAt and ReturnAt accept
// either YYYY-MM or YYYY-MM-DD.
type SearchQuery struct {
	Origin      string
	Destination string
	DepartureAt string
	ReturnAt    string
	OneWay      bool
}
