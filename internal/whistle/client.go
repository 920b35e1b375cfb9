package whistle

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/logger"
	"github.com/bytedance/sonic"
)

const (
	DefaultBaseURL   = "https://app.whistle.com/api/"
	DefaultTimeout   = 30 * time.Second
	UserAgent        = "WhistleApp/102 (iPhone; iOS 7.0.4; Scale/2.00)"
	AppID            = "com.whistle.WhistleApp"
	AuthTokenHeader  = "X-Whistle-AuthToken"
	maxResponseBytes = 4 << 20
)

// Client performs requests against the Whistle API
type Client struct {
	baseURL *url.URL
	http    *http.Client
	log     logger.Logger
}

type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	errFactory := errors.New()

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidRequest, err)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: DefaultTimeout},
		log:     logger.New("whistle"),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ExchangeToken trades account credentials for an auth token
func (c *Client) ExchangeToken(ctx context.Context, email, password string) (string, error) {
	errFactory := errors.New()

	body, err := sonic.Marshal(tokenRequest{
		Password: password,
		Email:    email,
		AppID:    AppID,
	})
	if err != nil {
		return "", errFactory.Wrap(ErrInvalidRequest, err)
	}

	c.log.Debug().Str("email", email).Msg("Requesting auth token")

	data, status, err := c.do(ctx, http.MethodPost, "tokens.json", "", body)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		c.log.Error().Int("status", status).Msg("Username / password combination didn't work")
		return "", errFactory.WithData(ErrInvalidCredentials, StatusError{Status: status, Path: "tokens.json"})
	}

	var resp tokenResponse
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return "", errFactory.Wrap(ErrParseFailure, err)
	}
	if resp.Token == nil || *resp.Token == "" {
		return "", errFactory.WithData(ErrParseFailure, FieldError{Path: "tokens.json", Field: "token"})
	}

	return resp.Token.String(), nil
}

// Dogs lists every dog visible to the account
func (c *Client) Dogs(ctx context.Context, token string) ([]Dog, error) {
	var dogs []Dog
	if err := c.get(ctx, token, "dogs.json", &dogs); err != nil {
		return nil, err
	}
	return dogs, nil
}

// Dailies returns the last count daily activity records of a dog
func (c *Client) Dailies(ctx context.Context, token, dogID string, count int) ([]DailyStat, error) {
	path := "dogs/" + url.PathEscape(dogID) + "/dailies?count=" + strconv.Itoa(count)

	var stats []DailyStat
	if err := c.get(ctx, token, path, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// DailyTotals returns per-day totals starting at the given yyyy-MM-dd date
func (c *Client) DailyTotals(ctx context.Context, token, dogID, startDate string) ([]DailyStat, error) {
	path := "dogs/" + url.PathEscape(dogID) + "/stats/daily_totals/?start_time=" + url.QueryEscape(startDate)

	var stats []DailyStat
	if err := c.get(ctx, token, path, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// Goals returns the goal streaks of a dog
func (c *Client) Goals(ctx context.Context, token, dogID string) (GoalStats, error) {
	var goals GoalStats
	err := c.get(ctx, token, "dogs/"+url.PathEscape(dogID)+"/stats/goals", &goals)
	return goals, err
}

// Device returns the state of a tracker
func (c *Client) Device(ctx context.Context, token, deviceID string) (DeviceInfo, error) {
	var info DeviceInfo
	err := c.get(ctx, token, "devices/"+url.PathEscape(deviceID)+".json", &info)
	return info, err
}

func (c *Client) get(ctx context.Context, token, path string, out any) error {
	errFactory := errors.New()

	data, status, err := c.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		c.log.Error().Int("status", status).Str("path", path).Msg("Failed to get requested data")
		return errFactory.WithData(ErrNonSuccessStatus, StatusError{Status: status, Path: path})
	}

	if err := sonic.Unmarshal(data, out); err != nil {
		return errFactory.Wrap(ErrParseFailure, err)
	}

	return nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body []byte) ([]byte, int, error) {
	errFactory := errors.New()

	ref, err := url.Parse(path)
	if err != nil {
		return nil, 0, errFactory.Wrap(ErrInvalidRequest, err)
	}
	target := c.baseURL.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, 0, errFactory.Wrap(ErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if token != "" {
		req.Header.Set(AuthTokenHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, errFactory.Wrap(ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, errFactory.Wrap(ErrTransport, err)
	}

	return data, resp.StatusCode, nil
}
