package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrJamesThe3rd/lipa/internal/config"
	"github.com/MrJamesThe3rd/lipa/internal/metrics"
	"github.com/MrJamesThe3rd/lipa/internal/payment"
)

const (
	authPath  = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	defaultTokenTTL = 3599 * time.Second
	transactionDesc = "Payment for Services"
)

// AccessToken is a bearer credential valid for ExpiresIn from the moment it was issued.
type AccessToken struct {
	Value     string
	ExpiresIn time.Duration
}

type PushResponse struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	ResponseDescription string
	CustomerMessage     string
}

type QueryResponse struct {
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
}

// Client talks to the Daraja API. It never touches the ledger; callers persist what it returns.
type Client struct {
	cfg     config.Mpesa
	http    *http.Client
	now     func() time.Time
	metrics *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(cfg config.Mpesa, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.cfg.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/")

	return c
}

// Authenticate exchanges the consumer key and secret for an access token. It does not retry.
func (c *Client) Authenticate(ctx context.Context) (tok AccessToken, err error) {
	defer func(start time.Time) { c.metrics.ObserveGateway("auth", start, err) }(time.Now())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+authPath, nil)
	if err != nil {
		return AccessToken{}, &AuthError{Err: fmt.Errorf("creating request: %w", err)}
	}

	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return AccessToken{}, &AuthError{Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return AccessToken{}, &AuthError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	var result struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return AccessToken{}, &AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}

	if result.AccessToken == "" {
		return AccessToken{}, &AuthError{StatusCode: resp.StatusCode, Message: "response has no access_token"}
	}

	ttl := defaultTokenTTL
	if secs, err := result.ExpiresIn.Int64(); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}

	return AccessToken{Value: result.AccessToken, ExpiresIn: ttl}, nil
}

// Token satisfies TokenSource without any caching.
func (c *Client) Token(ctx context.Context) (string, error) {
	tok, err := c.Authenticate(ctx)
	if err != nil {
		return "", err
	}

	return tok.Value, nil
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// InitiatePush sends the payment prompt to the payer's phone for tx.
func (c *Client) InitiatePush(ctx context.Context, tx *payment.Transaction, token string) (resp *PushResponse, err error) {
	defer func(start time.Time) { c.metrics.ObserveGateway("push", start, err) }(time.Now())

	password, timestamp := credentials(c.cfg.ShortCode, c.cfg.PassKey, c.now())

	body := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   c.cfg.TransactionType,
		Amount:            tx.Amount.IntPart(),
		PartyA:            tx.PayerPhone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       tx.PayerPhone,
		CallBackURL:       c.CallbackURL(),
		AccountReference:  tx.AccountReference(),
		TransactionDesc:   transactionDesc,
	}

	var out stkPushResponse
	if err := c.post(ctx, "push", pushPath, token, body, &out); err != nil {
		return nil, err
	}

	if out.CheckoutRequestID == "" {
		return nil, &ResponseError{Op: "push", Message: "missing CheckoutRequestID"}
	}

	if out.ResponseCode != "" && out.ResponseCode != "0" {
		return nil, &ResponseError{Op: "push", Message: fmt.Sprintf("response code %s: %s", out.ResponseCode, out.ResponseDescription)}
	}

	return &PushResponse{
		MerchantRequestID:   out.MerchantRequestID,
		CheckoutRequestID:   out.CheckoutRequestID,
		ResponseDescription: out.ResponseDescription,
		CustomerMessage:     out.CustomerMessage,
	}, nil
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	CheckoutRequestID string      `json:"CheckoutRequestID"`
	ResultCode        json.Number `json:"ResultCode"`
	ResultDesc        string      `json:"ResultDesc"`
}

// QueryPush asks the provider for the outcome of an earlier push. A payer who has not answered
// yet yields a RequestError for which IsStillProcessing is true.
func (c *Client) QueryPush(ctx context.Context, checkoutRequestID, token string) (resp *QueryResponse, err error) {
	defer func(start time.Time) { c.metrics.ObserveGateway("query", start, err) }(time.Now())

	password, timestamp := credentials(c.cfg.ShortCode, c.cfg.PassKey, c.now())

	body := stkQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var out stkQueryResponse
	if err := c.post(ctx, "query", queryPath, token, body, &out); err != nil {
		return nil, err
	}

	code, err := strconv.Atoi(out.ResultCode.String())
	if err != nil {
		return nil, &ResponseError{Op: "query", Message: fmt.Sprintf("invalid ResultCode %q", out.ResultCode)}
	}

	return &QueryResponse{
		CheckoutRequestID: checkoutRequestID,
		ResultCode:        code,
		ResultDesc:        out.ResultDesc,
	}, nil
}

// CallbackURL is where the provider posts push outcomes.
func (c *Client) CallbackURL() string {
	return strings.TrimRight(c.cfg.CallbackBaseURL, "/") + "/callback"
}

func (c *Client) post(ctx context.Context, op, path, token string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return &RequestError{Op: op, Err: fmt.Errorf("encoding request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &RequestError{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Op: op, Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			ErrorCode    string `json:"errorCode"`
			ErrorMessage string `json:"errorMessage"`
		}
		_ = json.Unmarshal(body, &apiErr)

		return &RequestError{Op: op, StatusCode: resp.StatusCode, Code: apiErr.ErrorCode, Message: errorMessage(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &ResponseError{Op: op, Message: fmt.Sprintf("decoding response: %v", err)}
	}

	return nil
}

// errorMessage pulls errorMessage out of a Daraja error body, falling back to the raw text.
func errorMessage(body []byte) string {
	var apiErr struct {
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.ErrorMessage != "" {
		return apiErr.ErrorMessage
	}

	return strings.TrimSpace(string(body))
}
