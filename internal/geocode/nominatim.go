package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shenikar/resqlink/internal/apperr"
	"github.com/shenikar/resqlink/internal/service"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultMaxRetries = 2
	defaultBaseDelay  = 200 * time.Millisecond
	maxResponseBytes  = 1 << 20
)

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// NominatimClient - клиент обратного геокодирования, совместимый с Nominatim /reverse
type NominatimClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
	maxRetries int
	baseDelay  time.Duration
}

// NewNominatimClient создает клиента. rps ограничивает исходящие запросы, публичный Nominatim разрешает 1 в секунду.
func NewNominatimClient(baseURL, userAgent string, timeout time.Duration, rps float64, logger *logrus.Logger) *NominatimClient {
	if rps <= 0 {
		rps = 1
	}
	return &NominatimClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
	}
}

var _ service.Geocoder = (*NominatimClient)(nil)

func (c *NominatimClient) reverseURL(lat, lng float64) string {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("zoom", "18")
	return c.baseURL + "/reverse?" + q.Encode()
}

// ReverseGeocode возвращает display_name для точки. Любой сбой - CodeExternal,
// решение о запасном варианте принимает вызывающий код.
func (c *NominatimClient) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	log := c.logger.WithFields(logrus.Fields{"component": "geocoder", "lat": lat, "lng": lng})
	delay := c.baseDelay

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", apperr.External("geocoder rate limit wait aborted", err)
		}

		address, retry, err := c.reverse(ctx, lat, lng)
		if err == nil {
			return address, nil
		}
		lastErr = err
		if !retry || attempt == c.maxRetries {
			break
		}

		log.WithError(err).Warnf("Reverse geocoding failed. Retrying in %v. Retries left: %d", delay, c.maxRetries-attempt)
		select {
		case <-ctx.Done():
			return "", apperr.External("reverse geocoding canceled", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2 // Экспоненциальная задержка
	}
	return "", apperr.External("reverse geocoding failed", lastErr)
}

// reverse выполняет один запрос, retry сообщает, имеет ли смысл повторять
func (c *NominatimClient) reverse(ctx context.Context, lat, lng float64) (address string, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.reverseURL(lat, lng), nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to create geocoder request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", ctx.Err() == nil, fmt.Errorf("failed to send geocoder request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("geocoder responded with status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false, fmt.Errorf("geocoder responded with status %d", resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return "", false, fmt.Errorf("failed to decode geocoder response: %w", err)
	}
	if body.Error != "" {
		return "", false, fmt.Errorf("geocoder error: %s", body.Error)
	}
	if strings.TrimSpace(body.DisplayName) == "" {
		return "", false, fmt.Errorf("geocoder returned no address")
	}
	return strings.TrimSpace(body.DisplayName), false, nil
}
