package usecase

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"avia-bot/internal/domain"
)

const (
	defaultMaxOffers     = 10
	defaultMaxMessageLen = 500
	maxWindowMonths      = 3
	maxDailyWindowDays   = 10
	tripDaysTolerance    = 2
)

type Extractor interface {
	Extract(ctx context.Context, text string, current domain.FlightParams) (domain.FlightParams, error)
}

type FlightSearcher interface {
	SearchOffers(ctx context.Context, q domain.SearchQuery) ([]domain.Offer, error)
}

type StateStore interface {
	GetState(ctx context.Context, userID int64) (domain.DialogState, bool, error)
	SaveState(ctx context.Context, s domain.DialogState) error
	DeleteState(ctx context.Context, userID int64) error
}

// SearchService runs the extraction -> search pipeline for one chat message.
type SearchService struct {
	extractor     Extractor
	searcher      FlightSearcher
	state         StateStore
	maxOffers     int
	maxMessageLen int
	now           func() time.Time
}

type ResolveInput struct {
	UserID int64
	Text   string
}

type SearchOutput struct {
	Params domain.FlightParams
	// Offers is ranked and never nil; an empty slice means no flights were found.
	Offers []domain.Offer
}

func NewSearchService(ex Extractor, fs FlightSearcher, st StateStore, maxOffers, maxMessageLen int) (*SearchService, error) {
	if ex == nil {
		return nil, errors.New("usecase: extractor must not be nil")
	}
	if fs == nil {
		return nil, errors.New("usecase: flight searcher must not be nil")
	}
	if st == nil {
		return nil, errors.New("usecase: state store must not be nil")
	}
	if maxOffers <= 0 {
		maxOffers = defaultMaxOffers
	}
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessageLen
	}
	return &SearchService{
		extractor:     ex,
		searcher:      fs,
		state:         st,
		maxOffers:     maxOffers,
		maxMessageLen: maxMessageLen,
		now:           time.Now,
	}, nil
}

// Resolve extracts parameters from the message, merges them into the user's
// dialog state and returns them once origin, destination and departure are
// known. Otherwise it returns an ErrorNeedsClarification listing what is missing.
func (s *SearchService) Resolve(ctx context.Context, in ResolveInput) (domain.FlightParams, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return domain.FlightParams{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(text) > s.maxMessageLen {
		return domain.FlightParams{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	saved, _, err := s.state.GetState(ctx, in.UserID)
	if err != nil {
		return domain.FlightParams{}, newError(ErrorInternal, "state_read_error", err)
	}

	extracted, err := s.extractor.Extract(ctx, text, saved.Params)
	if err != nil {
		var ue *Error
		if errors.As(err, &ue) {
			return domain.FlightParams{}, err
		}
		return domain.FlightParams{}, newError(ErrorUpstream, "extraction_error", err)
	}

	merged := saved.Params.Merge(extracted)
	if merged != saved.Params {
		if err := s.state.SaveState(ctx, domain.DialogState{UserID: in.UserID, Params: merged, UpdatedAt: s.now()}); err != nil {
			return domain.FlightParams{}, newError(ErrorInternal, "state_write_error", err)
		}
	}

	if missing := merged.Missing(); len(missing) > 0 {
		return domain.FlightParams{}, clarificationError("missing_params", missing, nil)
	}
	return merged, nil
}

// Search queries the provider for every month of the departure window and
// returns the ranked offers inside the window.
func (s *SearchService) Search(ctx context.Context, p domain.FlightParams) (SearchOutput, error) {
	if missing := p.Missing(); len(missing) > 0 {
		return SearchOutput{}, clarificationError("missing_params", missing, nil)
	}
	from, to, err := p.Window()
	if err != nil {
		return SearchOutput{}, clarificationError("invalid_departure", []string{domain.FieldDeparture}, err)
	}
	if !p.ReturnValid() {
		return SearchOutput{}, clarificationError("invalid_return", []string{domain.FieldReturn}, nil)
	}

	var found []domain.Offer
	for _, q := range buildQueries(p, from, to) {
		offers, err := s.searcher.SearchOffers(ctx, q)
		if err != nil {
			return SearchOutput{}, searchError(err)
		}
		found = append(found, offers...)
	}

	offers := filterOffers(found, p, from, to)
	rankOffers(offers)
	if len(offers) > s.maxOffers {
		offers = offers[:s.maxOffers]
	}
	return SearchOutput{Params: p, Offers: offers}, nil
}

// Reset forgets the user's dialog state.
func (s *SearchService) Reset(ctx context.Context, userID int64) error {
	if err := s.state.DeleteState(ctx, userID); err != nil {
		return newError(ErrorInternal, "state_delete_error", err)
	}
	return nil
}

func buildQueries(p domain.FlightParams, from, to time.Time) []domain.SearchQuery {
	base := domain.SearchQuery{
		Origin:      p.Origin,
		Destination: p.Destination,
		ReturnAt:    p.ReturnAt,
		OneWay:      p.OneWay(),
	}
	var queries []domain.SearchQuery
	// Windows of up to maxDailyWindowDays are queried day by day: a month
	// query returns only the month's cheapest fares.
	if days := int(to.Sub(from).Hours()/24) + 1; days <= maxDailyWindowDays {
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			q := base
			q.DepartureAt = day.Format(domain.DateLayout)
			queries = append(queries, q)
		}
		return queries
	}

	month := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !month.After(to) && len(queries) < maxWindowMonths {
		q := base
		q.DepartureAt = month.Format("2006-01")
		queries = append(queries, q)
		month = month.AddDate(0, 1, 0)
	}
	return queries
}

func filterOffers(offers []domain.Offer, p domain.FlightParams, from, to time.Time) []domain.Offer {
	out := make([]domain.Offer, 0, len(offers))
	seen := make(map[string]struct{}, len(offers))
	for _, o := range offers {
		if o.DepartureAt.IsZero() {
			continue
		}
		day := truncateDay(o.DepartureAt)
		if day.Before(from) || day.After(to) {
			continue
		}
		if p.TripDays > 0 && !matchesTripLength(o, p.TripDays) {
			continue
		}
		key := offerKey(o)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, o)
	}
	return out
}

func matchesTripLength(o domain.Offer, days int) bool {
	if !o.RoundTrip() {
		return false
	}
	stay := int(truncateDay(o.ReturnAt).Sub(truncateDay(o.DepartureAt)).Hours() / 24)
	diff := stay - days
	return diff >= -tripDaysTolerance && diff <= tripDaysTolerance
}

func offerKey(o domain.Offer) string {
	if o.Link != "" {
		return o.Link
	}
	return strings.Join([]string{
		o.Airline, o.FlightNumber,
		o.DepartureAt.UTC().Format(time.RFC3339), o.ReturnAt.UTC().Format(time.RFC3339),
	}, "|")
}

func searchError(err error) *Error {
	if isTimeout(err) {
		return newError(ErrorSearchUnavailable, "search_timeout", err)
	}
	if status, ok := upstreamStatusCode(err); ok {
		if status == 429 || status >= 500 {
			return newError(ErrorSearchUnavailable, "search_upstream_unavailable", err)
		}
		return newError(ErrorSearchFailed, "search_rejected", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return newError(ErrorSearchUnavailable, "search_network_error", err)
	}
	return newError(ErrorSearchFailed, "search_error", err)
}
