package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"irs-settlement/internal/swap/application"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	defaultRetries     = 2
	defaultBackoff     = 200 * time.Millisecond
	maxQuoteDecimals   = 18
)

var errRetryable = errors.New("oracle: retryable")

// HTTPOracle reads rates from a JSON endpoint:
//
//	GET {base}/rates/{benchmark}?source=0x..&as_of=RFC3339
//	{"rate": "5.3100", "updated_at": "2026-03-31T00:00:00Z"}
type HTTPOracle struct {
	baseURL string
	token   string
	client  *http.Client
	retries int
	backoff time.Duration
	logger  *zap.Logger
}

// HTTPOption configures the oracle.
type HTTPOption func(*HTTPOracle)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(o *HTTPOracle) {
		if client != nil {
			o.client = client
		}
	}
}

// WithRetries sets how many times a failed read is retried.
func WithRetries(retries int, backoff time.Duration) HTTPOption {
	return func(o *HTTPOracle) {
		if retries >= 0 {
			o.retries = retries
		}
		if backoff > 0 {
			o.backoff = backoff
		}
	}
}

// WithToken sends a bearer token.
func WithToken(token string) HTTPOption {
	return func(o *HTTPOracle) { o.token = token }
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger *zap.Logger) HTTPOption {
	return func(o *HTTPOracle) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewHTTPOracle constructs the oracle.
func NewHTTPOracle(baseURL string, opts ...HTTPOption) (*HTTPOracle, error) {
	if baseURL == "" {
		return nil, errors.New("http oracle: empty base url")
	}
	o := &HTTPOracle{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		retries: defaultRetries,
		backoff: defaultBackoff,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

type rateResponse struct {
	Rate      string    `json:"rate"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetRate fetches the rate, retrying transport errors and 5xx responses.
func (o *HTTPOracle) GetRate(ctx context.Context, req application.RateRequest) (application.RateValue, error) {
	if req.Benchmark == "" {
		return application.RateValue{}, errors.New("http oracle: empty benchmark")
	}
	query := url.Values{}
	query.Set("source", req.Source.Hex())
	if !req.AsOf.IsZero() {
		query.Set("as_of", req.AsOf.UTC().Format(time.RFC3339))
	}
	endpoint := o.baseURL + "/rates/" + url.PathEscape(req.Benchmark) + "?" + query.Encode()

	var lastErr error
	for attempt := 0; attempt <= o.retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(o.backoff * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return application.RateValue{}, ctx.Err()
			case <-timer.C:
			}
		}
		var resp rateResponse
		err := o.doJSON(ctx, endpoint, &resp)
		if err == nil {
			return toRateValue(resp, o.baseURL)
		}
		lastErr = err
		if !errors.Is(err, errRetryable) || ctx.Err() != nil {
			break
		}
		o.logger.Debug("oracle read retry", zap.String("benchmark", req.Benchmark), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	if ctx.Err() != nil {
		return application.RateValue{}, ctx.Err()
	}
	return application.RateValue{}, lastErr
}

func (o *HTTPOracle) doJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errRetryable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNoRate
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: http %d", errRetryable, resp.StatusCode)
	case resp.StatusCode >= 300:
		return fmt.Errorf("http oracle: http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func toRateValue(resp rateResponse, source string) (application.RateValue, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(resp.Rate))
	if err != nil {
		return application.RateValue{}, fmt.Errorf("http oracle: invalid rate %q", resp.Rate)
	}
	decimals := int32(0)
	if exp := d.Exponent(); exp < 0 {
		decimals = -exp
	}
	if decimals > maxQuoteDecimals {
		d = d.Truncate(maxQuoteDecimals)
		decimals = maxQuoteDecimals
	}
	n := d.Shift(decimals).BigInt()
	if !n.IsInt64() {
		return application.RateValue{}, fmt.Errorf("http oracle: rate %q out of range", resp.Rate)
	}
	return application.RateValue{
		Value:     n.Int64(),
		Decimals:  uint8(decimals),
		UpdatedAt: resp.UpdatedAt.UTC(),
		Source:    source,
	}, nil
}
