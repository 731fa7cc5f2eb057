package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Gateway-reported payment states.
const (
	StatusPending  = 1
	StatusPaid     = 2
	StatusRejected = 3
	StatusVoided   = 4
)

var (
	ErrNotConfigured   = errors.New("flow api key / secret key not configured")
	ErrGatewayHTTP     = errors.New("flow http error")
	ErrGatewayResponse = errors.New("flow response not parseable")
)

type Client struct {
	apiURL    string
	apiKey    string
	secretKey string
	client    *http.Client
}

func NewClient(apiURL, apiKey, secretKey string) *Client {
	return &Client{
		apiURL:    strings.TrimRight(apiURL, "/"),
		apiKey:    apiKey,
		secretKey: secretKey,
		client:    &http.Client{Timeout: 20 * time.Second},
	}
}

type CreatePaymentParams struct {
	CommerceOrder   string
	Subject         string
	Currency        string
	Amount          int64
	Email           string
	URLConfirmation string
	URLReturn       string
	Optional        string
}

type CreatePaymentResult struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// PaymentStatus carries the authoritative state reported by the gateway.
// Raw retains the full response body for logging and display.
type PaymentStatus struct {
	Status int
	Raw    json.RawMessage
}

func (c *Client) CreatePayment(ctx context.Context, p CreatePaymentParams) (*CreatePaymentResult, error) {
	if c.apiKey == "" || c.secretKey == "" {
		return nil, ErrNotConfigured
	}

	params := map[string]string{
		"commerceOrder":   p.CommerceOrder,
		"subject":         p.Subject,
		"currency":        p.Currency,
		"amount":          strconv.FormatInt(p.Amount, 10),
		"email":           p.Email,
		"urlConfirmation": p.URLConfirmation,
		"urlReturn":       p.URLReturn,
		"optional":        p.Optional,
		"apiKey":          c.apiKey,
	}
	params["s"] = Sign(params, c.secretKey)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	endpoint := c.apiURL + "/payment/create"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out CreatePaymentResult
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	if out.Token == "" || out.URL == "" {
		return nil, fmt.Errorf("%w: missing token or url", ErrGatewayResponse)
	}
	return &out, nil
}

func (c *Client) GetStatus(ctx context.Context, token string) (*PaymentStatus, error) {
	if c.apiKey == "" || c.secretKey == "" {
		return nil, ErrNotConfigured
	}

	params := map[string]string{
		"apiKey": c.apiKey,
		"token":  token,
	}
	params["s"] = Sign(params, c.secretKey)

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}

	endpoint := c.apiURL + "/payment/getStatus?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := c.doJSON(req, &raw); err != nil {
		return nil, err
	}
	var body struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrGatewayResponse, excerpt(raw))
	}
	return &PaymentStatus{Status: body.Status, Raw: raw}, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrGatewayHTTP, resp.StatusCode, excerpt(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s", ErrGatewayResponse, excerpt(body))
	}
	return nil
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}
