package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"avia-bot/internal/domain"
)

const maxTripDays = 365

var iataCode = regexp.MustCompile(`^[A-Z]{3}$`)

func buildExtractionMessages(text string, current domain.FlightParams, now time.Time) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: "system", Content: buildExtractionPrompt(now)},
	}
	if state := buildStatePrompt(current); state != "" {
		messages = append(messages, domain.ChatMessage{Role: "system", Content: state})
	}
	return append(messages, domain.ChatMessage{Role: "user", Content: text})
}

func buildExtractionPrompt(now time.Time) string {
	return strings.Join([]string{
		"Role:",
		"You are a flight search assistant. Users write in Russian or English.",
		"",
		"Task:",
		"Extract flight search parameters from the user's message.",
		"",
		fmt.Sprintf("Today: %s (%s).", now.Format(domain.DateLayout), now.Weekday()),
		"",
		"Extraction Rules:",
		extractionRules(),
		"",
		"Output Contract:",
		extractionContract(),
	}, "\n")
}

func extractionRules() string {
	return strings.Join([]string{
		"1) origin and destination are IATA city codes (MOW for Moscow, LED for Saint Petersburg, PAR for Paris). origin_city and destination_city are city names as the user wrote them, in nominative case.",
		"2) Never guess a city the user did not name or imply. Leave it empty.",
		"3) departure_from and departure_to bound the departure window as YYYY-MM-DD. A single date sets both to that date.",
		"4) \"Beginning of a month\" is days 1-10, \"middle\" is days 11-20, \"end\" is day 21 to the last day; a whole month is day 1 to the last day.",
		"5) Dates must not be in the past: a month that already passed this year means next year.",
		"6) return_at is an explicit return date (YYYY-MM-DD). trip_days is a stay length such as \"на неделю\" = 7. Leave both empty/0 for one-way trips.",
		"7) one_way is true only when the user explicitly asks for a one-way ticket (\"в один конец\", \"без обратного\"); otherwise false.",
		"8) If the current search state is provided, the message may refine it: keep every field the user did not change and output the full updated set.",
	}, "\n")
}

func extractionContract() string {
	return "Return JSON only with keys origin, origin_city, destination, destination_city, " +
		"departure_from, departure_to, return_at (strings), trip_days (integer) and one_way (boolean). " +
		"Use \"\" for unknown strings and 0 for unknown trip_days."
}

func buildStatePrompt(current domain.FlightParams) string {
	if current == (domain.FlightParams{}) {
		return ""
	}
	buf, err := json.Marshal(current)
	if err != nil {
		return ""
	}
	return "Current search state:\n" + string(buf)
}

func parseExtraction(raw string) (domain.FlightParams, error) {
	var out domain.FlightParams
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(raw)))
	if err := dec.Decode(&out); err != nil {
		return domain.FlightParams{}, fmt.Errorf("usecase: decode flight params: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return domain.FlightParams{}, errors.New("usecase: decode flight params: multiple JSON values")
		}
		return domain.FlightParams{}, fmt.Errorf("usecase: decode flight params trailing data: %w", err)
	}
	return out, nil
}

// normalizeParams drops values that cannot be used for a search so they are
// reported as missing instead of sent to the provider.
func normalizeParams(p domain.FlightParams, today time.Time) domain.FlightParams {
	p.Origin = normalizeIATA(p.Origin)
	p.Destination = normalizeIATA(p.Destination)
	p.OriginCity = normalizePromptInput(p.OriginCity)
	p.DestinationCity = normalizePromptInput(p.DestinationCity)
	if p.Origin == "" {
		p.OriginCity = ""
	}
	if p.Destination == "" || p.Destination == p.Origin {
		p.Destination, p.DestinationCity = "", ""
	}

	today = truncateDay(today)
	from, fromOK := parseDate(p.DepartureFrom)
	to, toOK := parseDate(p.DepartureTo)
	switch {
	case !fromOK:
		p.DepartureFrom, p.DepartureTo = "", ""
	case !toOK || to.Before(from):
		to = from
	}
	if p.DepartureFrom != "" {
		if to.Before(today) {
			p.DepartureFrom, p.DepartureTo = "", ""
		} else {
			if from.Before(today) {
				from = today
			}
			p.DepartureFrom = from.Format(domain.DateLayout)
			p.DepartureTo = to.Format(domain.DateLayout)
		}
	}

	if ret, ok := parseDate(p.ReturnAt); !ok || (p.DepartureFrom != "" && ret.Before(from)) {
		p.ReturnAt = ""
	} else {
		p.ReturnAt = ret.Format(domain.DateLayout)
	}
	if p.TripDays < 0 || p.TripDays > maxTripDays || p.ReturnAt != "" {
		p.TripDays = 0
	}
	if p.OneWayTrip {
		p.ReturnAt, p.TripDays = "", 0
	}
	return p
}

func normalizeIATA(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !iataCode.MatchString(s) {
		return ""
	}
	return s
}

func normalizePromptInput(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
