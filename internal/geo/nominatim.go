package geo

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"hiberry/internal/model"
)

// DefaultNominatimURL is the public OpenStreetMap search endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Nominatim geocodes through a Nominatim compatible search API. Requests
// are throttled to the provider's usage policy.
type Nominatim struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	// CountryCodes narrows the search, e.g. "mx".
	CountryCodes string
}

func NewNominatim(baseURL, userAgent string, logger *zap.Logger) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	if userAgent == "" {
		userAgent = "hiberry-orders"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)
	return &Nominatim{
		http:    client,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		logger:  logger,
	}
}

// SetRate changes the request rate; tests use rate.Inf.
func (n *Nominatim) SetRate(r rate.Limit, burst int) {
	n.limiter.SetLimit(r)
	n.limiter.SetBurst(burst)
}

func (n *Nominatim) Resolve(ctx context.Context, address string) (model.Coordinate, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return model.Coordinate{}, ErrAddressNotFound
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return model.Coordinate{}, err
	}

	params := map[string]string{"q": address, "format": "jsonv2", "limit": "1"}
	if n.CountryCodes != "" {
		params["countrycodes"] = n.CountryCodes
	}
	var places []nominatimPlace
	resp, err := n.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&places).
		Get("/search")
	if err != nil {
		n.logger.Error("geocoder request failed", zap.String("address", address), zap.Error(err))
		return model.Coordinate{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	if resp.StatusCode() != http.StatusOK {
		n.logger.Error("geocoder returned error", zap.String("address", address), zap.Int("status_code", resp.StatusCode()))
		return model.Coordinate{}, fmt.Errorf("geocode %q: provider status %d", address, resp.StatusCode())
	}
	if len(places) == 0 {
		n.logger.Info("address not found", zap.String("address", address))
		return model.Coordinate{}, ErrAddressNotFound
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return model.Coordinate{}, fmt.Errorf("geocode %q: bad latitude %q", address, places[0].Lat)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return model.Coordinate{}, fmt.Errorf("geocode %q: bad longitude %q", address, places[0].Lon)
	}
	n.logger.Info("address found", zap.String("address", address), zap.String("match", places[0].DisplayName))
	return model.Coordinate{Latitude: lat, Longitude: lon}, nil
}
