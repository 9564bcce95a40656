// Package noaa fetches water levels from the NOAA CO-OPS Tides and Currents
// data API.
package noaa

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
	"time"

	"go.uber.org/zap"

	"github.com/twpayne/go-inundation"
)

const (
	// DefaultBaseURL is the URL of the NOAA CO-OPS data getter.
	DefaultBaseURL = "https://api.tidesandcurrents.noaa.gov/api/prod/datagetter"

	// DefaultApplication identifies this client to NOAA.
	DefaultApplication = "go_inundation"

	dateLayout = "20060102"
	timeLayout = "2006-01-02 15:04"
)

var errAPI = errors.New("noaa API error")

// A Request selects water levels.
type Request struct {
	Station   string
	Product   string
	Datum     string
	TimeZone  string
	Units     string
	BeginDate time.Time
	EndDate   time.Time
}

// A Client fetches water levels from NOAA.
type Client struct {
	baseURL     string
	application string
	httpClient  *http.Client
	logger      *zap.Logger
}

// A ClientOption sets an option on a Client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithApplication sets the application name sent with each request.
func WithApplication(application string) ClientOption {
	return func(c *Client) {
		c.application = application
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient = &http.Client{
			Timeout: timeout,
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient returns a new Client.
func NewClient(options ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		application: DefaultApplication,
		httpClient:  http.DefaultClient,
		logger:      zap.NewNop(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

type response struct {
	Metadata *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"metadata"`
	Data []struct {
		T string `json:"t"`
		V string `json:"v"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// WaterLevels returns the water levels selected by req. Levels that NOAA does
// not report are NaN.
func (c *Client) WaterLevels(ctx context.Context, req Request) ([]inundation.Sample, error) {
	if req.Station == "" {
		return nil, fmt.Errorf("%w: no station", inundation.ErrInvalidArgument)
	}
	if req.EndDate.Before(req.BeginDate) {
		return nil, fmt.Errorf("%w: end date before begin date", inundation.ErrInvalidArgument)
	}

	values := url.Values{
		"product":     {req.Product},
		"application": {c.application},
		"begin_date":  {req.BeginDate.Format(dateLayout)},
		"end_date":    {req.EndDate.Format(dateLayout)},
		"datum":       {req.Datum},
		"station":     {req.Station},
		"time_zone":   {req.TimeZone},
		"units":       {req.Units},
		"format":      {"json"},
	}
	requestURL := c.baseURL + "?" + values.Encode()

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 1024))
		return nil, fmt.Errorf("%w: %s: %s", errAPI, httpResponse.Status, body)
	}

	var resp response
	if err := json.NewDecoder(httpResponse.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s", errAPI, resp.Error.Message)
	}

	location, err := timeZoneLocation(req.TimeZone)
	if err != nil {
		return nil, err
	}

	samples := make([]inundation.Sample, 0, len(resp.Data))
	for _, datum := range resp.Data {
		t, err := time.ParseInLocation(timeLayout, datum.T, location)
		if err != nil {
			return nil, fmt.Errorf("%w: time %q", inundation.ErrInvalidArgument, datum.T)
		}
		level, err := strconv.ParseFloat(datum.V, 64)
		if err != nil {
			level = math.NaN()
		}
		samples = append(samples, inundation.Sample{
			Time:  t,
			Level: level,
		})
	}

	c.logger.Info("fetched water levels",
		zap.String("station", req.Station),
		zap.Int("samples", len(samples)),
		zap.Duration("duration", time.Since(start)),
	)
	return samples, nil
}

// timeZoneLocation returns the location of NOAA's time zone. Local standard
// and daylight times are returned as the local time zone.
func timeZoneLocation(timeZone string) (*time.Location, error) {
	switch timeZone {
	case "", "gmt", "GMT":
		return time.UTC, nil
	case "lst", "LST", "lst_ldt", "LST_LDT":
		return time.Local, nil
	default:
		return nil, fmt.Errorf("%w: time zone %q", inundation.ErrInvalidArgument, timeZone)
	}
}
