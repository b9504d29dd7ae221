// Package mbta wraps the MBTA v3 JSON:API endpoints the tracker uses.
package mbta

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

	"github.com/route109-tracker/internal/common/logger"
)

const (
	DefaultBaseURL = "https://api-v3.mbta.com"
	userAgent      = "route109-tracker/1.0"
)

// Sparse fieldsets; requesting only what the collector records keeps
// snapshot lines small.
const (
	PredictionFieldsBoarding = "departure_time,arrival_time,stop_sequence,schedule_relationship"
	PredictionFieldsTerminal = "departure_time,schedule_relationship,stop_sequence"
	VehicleFields            = "current_stop_sequence,current_status,direction_id,updated_at,latitude,longitude,bearing,speed"
	ScheduleFields           = "departure_time,stop_sequence"
)

// APIError is returned for non-200 responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("MBTA API request failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("MBTA API request failed: status %d, body: %s", e.StatusCode, body)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logger.Logger
}

func NewClient(apiKey string, log logger.Logger) *Client {
	return &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger: log,
	}
}

// WithBaseURL overrides the API base URL, mainly for tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Predictions fetches predictions for a route, stop, and direction with the
// given sparse fieldset.
func (c *Client) Predictions(ctx context.Context, routeID, stopID string, directionID int, fields string) ([]Resource, error) {
	params := url.Values{}
	params.Set("filter[route]", routeID)
	params.Set("filter[stop]", stopID)
	params.Set("filter[direction_id]", strconv.Itoa(directionID))
	if fields != "" {
		params.Set("fields[prediction]", fields)
	}
	doc, err := c.get(ctx, "/predictions", params)
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

// PredictionsWithVehicles fetches the full prediction document for a route
// with vehicles and trips side-loaded, as the raw logger records it.
func (c *Client) PredictionsWithVehicles(ctx context.Context, routeID string) (*RawDocument, error) {
	params := url.Values{}
	params.Set("filter[route]", routeID)
	params.Set("include", "vehicle,trip")
	return c.getRaw(ctx, "/predictions", params)
}

// Vehicles fetches all vehicles currently running a route.
func (c *Client) Vehicles(ctx context.Context, routeID string) ([]Resource, error) {
	params := url.Values{}
	params.Set("filter[route]", routeID)
	params.Set("fields[vehicle]", VehicleFields)
	doc, err := c.get(ctx, "/vehicles", params)
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

// VehiclesRaw fetches the full vehicle document for the raw logger.
func (c *Client) VehiclesRaw(ctx context.Context, routeID string) (*RawDocument, error) {
	params := url.Values{}
	params.Set("filter[route]", routeID)
	return c.getRaw(ctx, "/vehicles", params)
}

// Schedules fetches scheduled departures for a route, stop, and direction.
func (c *Client) Schedules(ctx context.Context, routeID, stopID string, directionID int) ([]Resource, error) {
	params := url.Values{}
	params.Set("filter[route]", routeID)
	params.Set("filter[stop]", stopID)
	params.Set("filter[direction_id]", strconv.Itoa(directionID))
	params.Set("fields[schedule]", ScheduleFields)
	doc, err := c.get(ctx, "/schedules", params)
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

// RoutePatterns fetches the route patterns for a route, sorted by sort_order.
func (c *Client) RoutePatterns(ctx context.Context, routeID string) ([]Resource, error) {
	params := url.Values{}
	params.Set("filter[route]", routeID)
	params.Set("page[limit]", "50")
	params.Set("sort", "sort_order")
	params.Set("fields[route_pattern]", "direction_id,name,sort_order,typicality")
	doc, err := c.get(ctx, "/route_patterns", params)
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

// StopsForPattern fetches the ordered stops of a route pattern.
func (c *Client) StopsForPattern(ctx context.Context, patternID string) ([]Resource, error) {
	doc, err := c.get(ctx, "/route_patterns/"+url.PathEscape(patternID)+"/stops", url.Values{})
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

// StopsFiltered fetches stops filtered by route pattern.
func (c *Client) StopsFiltered(ctx context.Context, patternID string) ([]Resource, error) {
	params := url.Values{}
	params.Set("filter[route_pattern]", patternID)
	params.Set("fields[stop]", "name")
	doc, err := c.get(ctx, "/stops", params)
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

// StopsForDirection fetches stops for a route and direction, the last-resort
// fallback when pattern stops are unavailable.
func (c *Client) StopsForDirection(ctx context.Context, routeID string, directionID int) ([]Resource, error) {
	params := url.Values{}
	params.Set("filter[route]", routeID)
	params.Set("filter[direction_id]", strconv.Itoa(directionID))
	params.Set("fields[stop]", "name")
	doc, err := c.get(ctx, "/stops", params)
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (*Document, error) {
	raw, err := c.getRaw(ctx, path, params)
	if err != nil {
		return nil, err
	}
	return &raw.Document, nil
}

func (c *Client) getRaw(ctx context.Context, path string, params url.Values) (*RawDocument, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", path, err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.api+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response for %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding response for %s: %w", path, err)
	}

	if c.logger != nil {
		c.logger.Debug("MBTA API fetch", "path", path, "resources", len(doc.Data), "included", len(doc.Included))
	}

	return &RawDocument{Document: doc, Body: body}, nil
}
