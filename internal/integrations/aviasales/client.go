package aviasales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"avia-bot/internal/domain"
)

const (
	defaultBaseURL  = "https://api.travelpayouts.com"
	pricesForDates  = "/aviasales/v3/prices_for_dates"
	defaultCurrency = "rub"
	defaultLimit    = 30
	linkBase        = "https://www.aviasales.ru"
)

// pricesResponse mirrors the prices_for_dates payload.
type pricesResponse struct {
	Success  bool          `json:"success"`
	Data     []ticketEntry `json:"data"`
	Currency string        `json:"currency"`
	Error    string        `json:"error"`
}

type ticketEntry struct {
	Origin             string  `json:"origin"`
	Destination        string  `json:"destination"`
	OriginAirport      string  `json:"origin_airport"`
	DestinationAirport string  `json:"destination_airport"`
	Price              float64 `json:"price"`
	Airline            string  `json:"airline"`
	FlightNumber       string  `json:"flight_number"`
	DepartureAt        string  `json:"departure_at"`
	ReturnAt           string  `json:"return_at"`
	Transfers          int     `json:"transfers"`
	ReturnTransfers    int     `json:"return_transfers"`
	Duration           int     `json:"duration"`
	Link               string  `json:"link"`
}

// HTTPStatusError captures non-2xx responses from the search API.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("aviasales: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client queries the Travelpayouts flight data API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	currency   string
	limit      int
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithCurrency(currency string) Option {
	return func(c *Client) {
		c.currency = strings.ToLower(strings.TrimSpace(currency))
	}
}

func WithLimit(limit int) Option {
	return func(c *Client) {
		c.limit = limit
	}
}

// NewClient creates a Client authenticated with the API token.
func NewClient(token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("aviasales: token must not be empty")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		token:      token,
		currency:   defaultCurrency,
		limit:      defaultLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.currency == "" {
		c.currency = defaultCurrency
	}
	if c.limit <= 0 || c.limit > 1000 {
		c.limit = defaultLimit
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return c, nil
}

func searchURL(baseURL string, q domain.SearchQuery, currency string, limit int) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	v := url.Values{}
	v.Set("origin", q.Origin)
	v.Set("destination", q.Destination)
	v.Set("departure_at", q.DepartureAt)
	if q.ReturnAt != "" {
		v.Set("return_at", q.ReturnAt)
	}
	v.Set("one_way", strconv.FormatBool(q.OneWay))
	v.Set("direct", "false")
	v.Set("currency", currency)
	v.Set("sorting", "price")
	v.Set("unique", "false")
	v.Set("limit", strconv.Itoa(limit))
	v.Set("page", "1")
	return base + pricesForDates + "?" + v.Encode()
}

// SearchOffers returns the offers for q. An empty slice is a valid result.
func (c *Client) SearchOffers(ctx context.Context, q domain.SearchQuery) ([]domain.Offer, error) {
	if q.Origin == "" || q.Destination == "" || q.DepartureAt == "" {
		return nil, errors.New("aviasales: origin, destination and departure are required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL(c.baseURL, q, c.currency, c.limit), nil)
	if err != nil {
		return nil, fmt.Errorf("aviasales: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Access-Token", c.token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aviasales: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, Body: string(buf)}
	}

	var payload pricesResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 4<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("aviasales: decode response: %w", err)
	}
	if !payload.Success {
		return nil, fmt.Errorf("aviasales: api error: %s", payload.Error)
	}

	currency := payload.Currency
	if currency == "" {
		currency = c.currency
	}
	offers := make([]domain.Offer, 0, len(payload.Data))
	for _, t := range payload.Data {
		offers = append(offers, t.toOffer(currency))
	}
	return offers, nil
}

func (t ticketEntry) toOffer(currency string) domain.Offer {
	o := domain.Offer{
		Origin:             t.Origin,
		Destination:        t.Destination,
		OriginAirport:      t.OriginAirport,
		DestinationAirport: t.DestinationAirport,
		Airline:            t.Airline,
		FlightNumber:       t.FlightNumber,
		Price:              int64(math.Round(t.Price)),
		Currency:           strings.ToUpper(currency),
		Transfers:          t.Transfers,
		ReturnTransfers:    t.ReturnTransfers,
		DurationMinutes:    t.Duration,
		DepartureAt:        parseTime(t.DepartureAt),
		ReturnAt:           parseTime(t.ReturnAt),
	}
	if t.Link != "" {
		o.Link = linkBase + t.Link
	}
	return o
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}
