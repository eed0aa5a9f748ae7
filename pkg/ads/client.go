// Package ads fetches historical search-volume metrics from the ad
// platform, with retry and circuit-breaker protection.
package ads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/lwoyr/AdsTrendsAPI/internal/config"
	apperrors "github.com/lwoyr/AdsTrendsAPI/internal/errors"
	sharedhttp "github.com/lwoyr/AdsTrendsAPI/pkg/shared/http"
)

const defaultEndpoint = "https://googleads.googleapis.com/v16"

// HistoricalMetric is one positional result from the upstream.
type HistoricalMetric struct {
	AvgMonthlySearches *int64
}

// MetricsAPI is the upstream surface the adapter depends on.
type MetricsAPI interface {
	GenerateHistoricalMetrics(ctx context.Context, keywords []string) ([]HistoricalMetric, error)
}

// Client calls the ad platform's keyword historical-metrics endpoint.
// Requests carry fixed targeting: English, United States.
type Client struct {
	httpClient     *http.Client
	endpoint       string
	developerToken string
	customerID     string
	logger         *zap.Logger
}

// NewClient builds an authenticated client from the credentials. The
// refresh token is exchanged lazily by the oauth2 transport.
func NewClient(cfg config.AdsConfig, logger *zap.Logger) *Client {
	base := sharedhttp.NewClient(sharedhttp.AdsClientConfig())

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	tokenSource := oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	return &Client{
		httpClient:     oauth2.NewClient(ctx, tokenSource),
		endpoint:       defaultEndpoint,
		developerToken: cfg.DeveloperToken,
		customerID:     cfg.NormalizedCustomerID(),
		logger:         logger,
	}
}

type historicalMetricsRequest struct {
	Keywords           []string `json:"keywords"`
	Language           string   `json:"language"`
	GeoTargetConstants []string `json:"geoTargetConstants"`
}

type historicalMetricsResponse struct {
	Results []struct {
		Text           string `json:"text"`
		KeywordMetrics *struct {
			AvgMonthlySearches *json.Number `json:"avgMonthlySearches"`
		} `json:"keywordMetrics"`
	} `json:"results"`
}

// GenerateHistoricalMetrics issues one batched request for the keyword
// list and returns the positional result sequence.
func (c *Client) GenerateHistoricalMetrics(ctx context.Context, keywords []string) ([]HistoricalMetric, error) {
	payload := historicalMetricsRequest{
		Keywords: keywords,
		// English language constant and United States geo target.
		Language:           "languageConstants/1000",
		GeoTargetConstants: []string{"geoTargetConstants/2840"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to encode metrics request")
	}

	url := fmt.Sprintf("%s/customers/%s:generateKeywordHistoricalMetrics", c.endpoint, c.customerID)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to build metrics request")
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("developer-token", c.developerToken)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamTransient, "ads request failed")
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		if response.StatusCode >= 500 || response.StatusCode == http.StatusTooManyRequests {
			return nil, apperrors.Newf(apperrors.ErrorTypeUpstreamTransient, "ads upstream returned %d", response.StatusCode).
				WithDetails(string(snippet))
		}
		return nil, apperrors.Newf(apperrors.ErrorTypeInternal, "ads upstream rejected request with %d", response.StatusCode).
			WithDetails(string(snippet))
	}

	var decoded historicalMetricsResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamTransient, "failed to decode ads response")
	}

	results := make([]HistoricalMetric, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		var metric HistoricalMetric
		if r.KeywordMetrics != nil && r.KeywordMetrics.AvgMonthlySearches != nil {
			if v, err := r.KeywordMetrics.AvgMonthlySearches.Int64(); err == nil {
				metric.AvgMonthlySearches = &v
			}
		}
		results = append(results, metric)
	}
	return results, nil
}
