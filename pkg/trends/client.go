// Package trends fetches per-keyword popularity scores from the web
// trends provider, under an aggressive rate-limit regime: one in-flight
// call, adaptive delays, an hourly cap, quota-aware retries and durable
// progress for long bulk runs.
package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/lwoyr/AdsTrendsAPI/internal/errors"
	sharedhttp "github.com/lwoyr/AdsTrendsAPI/pkg/shared/http"
)

const (
	defaultBaseURL = "https://trends.google.com/trends/api"
	// 12-month window, United States, matching the historical-metrics
	// targeting on the ads side.
	timeframe = "today 12-m"
	geo       = "US"
)

// ScoreAPI is the upstream surface the adapter depends on. FetchScore
// returns the 12-month average popularity in [0, 100]; an empty series
// reports 0.
type ScoreAPI interface {
	FetchScore(ctx context.Context, keyword string) (float64, error)
}

// Client implements ScoreAPI against the trends widget endpoints: an
// explore call yields a widget token, the timeline call yields the
// interest series.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

// NewClient builds the HTTP client.
func NewClient(logger *zap.Logger) *Client {
	return &Client{
		httpClient: sharedhttp.NewClient(sharedhttp.TrendsClientConfig()),
		baseURL:    defaultBaseURL,
		logger:     logger,
	}
}

type exploreResponse struct {
	Widgets []struct {
		ID      string          `json:"id"`
		Token   string          `json:"token"`
		Request json.RawMessage `json:"request"`
	} `json:"widgets"`
}

type multilineResponse struct {
	Default struct {
		TimelineData []struct {
			Value []float64 `json:"value"`
		} `json:"timelineData"`
	} `json:"default"`
}

// FetchScore resolves one keyword's average interest over the last 12
// months.
func (c *Client) FetchScore(ctx context.Context, kw string) (float64, error) {
	token, request, err := c.explore(ctx, kw)
	if err != nil {
		return 0, err
	}

	series, err := c.timeline(ctx, token, request)
	if err != nil {
		return 0, err
	}

	if len(series) == 0 {
		return 0, nil
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series)), nil
}

func (c *Client) explore(ctx context.Context, kw string) (string, json.RawMessage, error) {
	exploreReq := fmt.Sprintf(`{"comparisonItem":[{"keyword":%q,"geo":%q,"time":%q}],"category":0,"property":""}`,
		kw, geo, timeframe)

	query := url.Values{}
	query.Set("hl", "en-US")
	query.Set("tz", "360")
	query.Set("req", exploreReq)

	body, err := c.get(ctx, c.baseURL+"/explore?"+query.Encode())
	if err != nil {
		return "", nil, err
	}

	var decoded exploreResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamTransient, "failed to decode explore response")
	}

	for _, widget := range decoded.Widgets {
		if widget.ID == "TIMESERIES" {
			return widget.Token, widget.Request, nil
		}
	}
	return "", nil, apperrors.New(apperrors.ErrorTypeUpstreamTransient, "explore response has no timeseries widget")
}

func (c *Client) timeline(ctx context.Context, token string, request json.RawMessage) ([]float64, error) {
	query := url.Values{}
	query.Set("hl", "en-US")
	query.Set("tz", "360")
	query.Set("token", token)
	query.Set("req", string(request))

	body, err := c.get(ctx, c.baseURL+"/widgetdata/multiline?"+query.Encode())
	if err != nil {
		return nil, err
	}

	var decoded multilineResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamTransient, "failed to decode timeline response")
	}

	series := make([]float64, 0, len(decoded.Default.TimelineData))
	for _, point := range decoded.Default.TimelineData {
		if len(point.Value) > 0 {
			series = append(series, point.Value[0])
		}
	}
	return series, nil
}

// get fetches a trends endpoint, strips the anti-JSON prefix and
// classifies failures.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to build trends request")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamTransient, "trends request failed")
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, 4<<20))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamTransient, "failed to read trends response")
	}

	if err := classifyStatus(response.StatusCode, body); err != nil {
		return nil, err
	}

	// Responses are prefixed with an anti-hijacking garbage line.
	if idx := strings.IndexByte(string(body), '{'); idx > 0 {
		body = body[idx:]
	}
	return body, nil
}

// classifyStatus maps upstream responses to the typed taxonomy. Quota
// signals: 429, or a body mentioning CAPTCHA or quota.
func classifyStatus(statusCode int, body []byte) error {
	if statusCode == http.StatusOK {
		return nil
	}

	lower := strings.ToLower(string(body))
	if statusCode == http.StatusTooManyRequests ||
		strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "quota") {
		return apperrors.Newf(apperrors.ErrorTypeUpstreamQuota, "trends upstream rejected request with %d", statusCode)
	}

	return apperrors.Newf(apperrors.ErrorTypeUpstreamTransient, "trends upstream returned %d", statusCode)
}
