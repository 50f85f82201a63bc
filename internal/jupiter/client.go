// Package jupiter is a client for the Jupiter price and swap APIs.
package jupiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public Jupiter endpoint.
const DefaultBaseURL = "https://lite-api.jup.ag"

const (
	defaultTimeout         = 15 * time.Second
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 5 * time.Second
)

var (
	// ErrNoRoute is returned when no route can fill the requested amount.
	ErrNoRoute = errors.New("no route found")
	// ErrNotTradable is returned for mints the aggregator refuses to trade.
	ErrNotTradable = errors.New("token not tradable")
)

// Client talks to the Jupiter HTTP API.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key in the x-api-key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if key != "" {
			c.http.SetHeader("x-api-key", key)
		}
	}
}

// WithRateLimit spaces requests to at most rps per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRetry overrides the retry count and initial wait.
func WithRetry(count int, wait time.Duration) Option {
	return func(c *Client) {
		c.http.SetRetryCount(count).SetRetryWaitTime(wait)
	}
}

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.SetTransport(rt)
	}
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(defaultTimeout).
			SetRetryCount(defaultRetryAttempts-1).
			SetRetryWaitTime(defaultRetryBaseDelay).
			SetRetryMaxWaitTime(defaultRetryMaxBackoff).
			AddRetryCondition(isRetryableResp).
			SetHeader("Accept", "application/json"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// apiError is the error body of the swap API.
type apiError struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

func decodeError(resp *resty.Response) error {
	var body apiError
	_ = json.Unmarshal(resp.Body(), &body)

	switch body.ErrorCode {
	case "COULD_NOT_FIND_ANY_ROUTE", "NO_ROUTES_FOUND", "ROUTE_PLAN_DOES_NOT_CONSUME_ALL_THE_AMOUNT":
		return fmt.Errorf("%w: %s", ErrNoRoute, body.Error)
	case "TOKEN_NOT_TRADABLE", "NOT_SUPPORTED":
		return fmt.Errorf("%w: %s", ErrNotTradable, body.Error)
	}
	msg := body.Error
	if msg == "" {
		msg = string(resp.Body())
	}
	return fmt.Errorf("jupiter HTTP %d: %s", resp.StatusCode(), msg)
}

// SpotPrice returns the price of mint in units of vsMint. A nil price means
// the API has no quote for the mint.
func (c *Client) SpotPrice(ctx context.Context, mint, vsMint string) (*decimal.Decimal, error) {
	prices, err := c.Prices(ctx, []string{mint}, vsMint)
	if err != nil {
		return nil, err
	}
	p, ok := prices[mint]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Prices returns the price of each mint in units of vsMint. Mints without a
// price are absent from the map.
func (c *Client) Prices(ctx context.Context, mints []string, vsMint string) (map[string]decimal.Decimal, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("ids", strings.Join(mints, ","))
	if vsMint != "" {
		req.SetQueryParam("vsToken", vsMint)
	}

	resp, err := req.Get("/price/v2")
	if err != nil {
		return nil, fmt.Errorf("price request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, decodeError(resp)
	}

	var body struct {
		Data map[string]*struct {
			ID    string `json:"id"`
			Price string `json:"price"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(body.Data))
	for mint, entry := range body.Data {
		if entry == nil || entry.Price == "" {
			continue
		}
		p, err := decimal.NewFromString(entry.Price)
		if err != nil || !p.IsPositive() {
			continue
		}
		out[mint] = p
	}
	return out, nil
}

// QuoteRequest selects an exact-in swap route.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // raw input units
	SlippageBps int
}

// Quote is a route returned by the quote API. Raw is sent back unchanged
// when building the swap.
type Quote struct {
	InputMint            string
	OutputMint           string
	InAmount             uint64
	OutAmount            uint64
	OtherAmountThreshold uint64
	SlippageBps          int
	PriceImpactPct       decimal.Decimal
	Raw                  json.RawMessage
}

type quoteBody struct {
	InputMint            string `json:"inputMint"`
	OutputMint           string `json:"outputMint"`
	InAmount             string `json:"inAmount"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	SlippageBps          int    `json:"slippageBps"`
	PriceImpactPct       string `json:"priceImpactPct"`
}

// Quote fetches a fresh route.
func (c *Client) Quote(ctx context.Context, q QuoteRequest) (*Quote, error) {
	if q.Amount == 0 {
		return nil, fmt.Errorf("%w: zero amount", ErrNoRoute)
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"inputMint":   q.InputMint,
			"outputMint":  q.OutputMint,
			"amount":      strconv.FormatUint(q.Amount, 10),
			"slippageBps": strconv.Itoa(q.SlippageBps),
			"swapMode":    "ExactIn",
		}).
		Get("/swap/v1/quote")
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, decodeError(resp)
	}

	var body quoteBody
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	out, err := strconv.ParseUint(body.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode quote outAmount %q: %w", body.OutAmount, err)
	}
	if out == 0 {
		return nil, fmt.Errorf("%w: zero output", ErrNoRoute)
	}
	in, _ := strconv.ParseUint(body.InAmount, 10, 64)
	threshold, _ := strconv.ParseUint(body.OtherAmountThreshold, 10, 64)
	impact, _ := decimal.NewFromString(body.PriceImpactPct)

	return &Quote{
		InputMint:            body.InputMint,
		OutputMint:           body.OutputMint,
		InAmount:             in,
		OutAmount:            out,
		OtherAmountThreshold: threshold,
		SlippageBps:          body.SlippageBps,
		PriceImpactPct:       impact,
		Raw:                  json.RawMessage(resp.Body()),
	}, nil
}

// SwapTransaction is an unsigned serialized transaction built for a quote.
type SwapTransaction struct {
	Transaction          string // base64
	LastValidBlockHeight uint64
}

// BuildSwap asks the API to build the swap transaction for user.
func (c *Client) BuildSwap(ctx context.Context, quote *Quote, user string) (*SwapTransaction, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return nil, errors.New("build swap: missing quote")
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"quoteResponse":             quote.Raw,
		"userPublicKey":             user,
		"wrapAndUnwrapSol":          true,
		"dynamicComputeUnitLimit":   true,
		"prioritizationFeeLamports": "auto",
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/swap/v1/swap")
	if err != nil {
		return nil, fmt.Errorf("swap request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, decodeError(resp)
	}

	var out struct {
		SwapTransaction      string `json:"swapTransaction"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode swap response: %w", err)
	}
	if out.SwapTransaction == "" {
		return nil, errors.New("swap response without transaction")
	}
	return &SwapTransaction{Transaction: out.SwapTransaction, LastValidBlockHeight: out.LastValidBlockHeight}, nil
}
