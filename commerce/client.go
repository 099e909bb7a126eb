// Package commerce is a client for the remote commerce REST API that owns
// products, accounts, orders and feedback.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"storefront/metrics"
	models "storefront/model"
)

var (
	// ErrUnauthorized means the credential is missing, expired or rejected.
	ErrUnauthorized = errors.New("commerce api: unauthorized")
	ErrNotFound     = errors.New("commerce api: not found")
)

// APIError is any other non-2xx answer.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("commerce api: status %d", e.Status)
	}
	return fmt.Sprintf("commerce api: status %d: %s", e.Status, e.Message)
}

// API is the subset of the remote commerce API used by the storefront.
type API interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id string) (models.Product, error)

	Register(ctx context.Context, req models.RegisterRequest) (models.AuthResult, error)
	Login(ctx context.Context, email, password string) (models.AuthResult, error)
	Me(ctx context.Context, token string) (models.User, error)

	CreateOrder(ctx context.Context, token string, req models.OrderRequest) (models.Order, error)
	ListOrders(ctx context.Context, token string) ([]models.Order, error)
	GetOrder(ctx context.Context, token, id string) (models.Order, error)
	CancelOrder(ctx context.Context, token, id string) (models.Order, error)

	SubmitFeedback(ctx context.Context, token string, fb models.Feedback) (models.Feedback, error)
	ListFeedback(ctx context.Context, token, orderID string) ([]models.Feedback, error)
}

// Client talks JSON over HTTP to the commerce API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        logrus.FieldLogger
}

var _ API = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration, log logrus.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do sends in as the JSON body (if non-nil) and decodes the answer into out (if non-nil).
// token, when set, is sent as a bearer credential.
func (c *Client) do(ctx context.Context, endpoint, method, path, token string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "%s: encode request", endpoint)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "%s: build request", endpoint)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPICall(endpoint, "error")
		return errors.Wrapf(err, "%s: commerce api unavailable", endpoint)
	}
	defer resp.Body.Close()

	log := c.log.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"status":   resp.StatusCode,
		"elapsed":  time.Since(start),
	})

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		metrics.RecordAPICall(endpoint, "unauthorized")
		log.Info("credential rejected by commerce api")
		return errors.WithStack(ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		metrics.RecordAPICall(endpoint, "error")
		return errors.Wrap(ErrNotFound, endpoint)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		metrics.RecordAPICall(endpoint, "error")
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var eb errorBody
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &eb) == nil {
			if eb.Error != "" {
				msg = eb.Error
			} else if eb.Message != "" {
				msg = eb.Message
			}
		}
		log.WithField("message", msg).Warn("commerce api request failed")
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	metrics.RecordAPICall(endpoint, "ok")
	log.Debug("commerce api request")
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "%s: decode response", endpoint)
	}
	return nil
}

func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	err := c.do(ctx, "list_products", http.MethodGet, "/api/products", "", nil, &out)
	return out, err
}

func (c *Client) GetProduct(ctx context.Context, id string) (models.Product, error) {
	var out models.Product
	err := c.do(ctx, "get_product", http.MethodGet, "/api/products/"+url.PathEscape(id), "", nil, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (models.AuthResult, error) {
	var out models.AuthResult
	err := c.do(ctx, "register", http.MethodPost, "/api/auth/register", "", req, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (models.AuthResult, error) {
	in := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{email, password}
	var out models.AuthResult
	err := c.do(ctx, "login", http.MethodPost, "/api/auth/login", "", in, &out)
	return out, err
}

func (c *Client) Me(ctx context.Context, token string) (models.User, error) {
	var out models.User
	err := c.do(ctx, "me", http.MethodGet, "/api/auth/me", token, nil, &out)
	return out, err
}

func (c *Client) CreateOrder(ctx context.Context, token string, req models.OrderRequest) (models.Order, error) {
	var out models.Order
	err := c.do(ctx, "create_order", http.MethodPost, "/api/orders", token, req, &out)
	return out, err
}

func (c *Client) ListOrders(ctx context.Context, token string) ([]models.Order, error) {
	var out []models.Order
	err := c.do(ctx, "list_orders", http.MethodGet, "/api/orders", token, nil, &out)
	return out, err
}

func (c *Client) GetOrder(ctx context.Context, token, id string) (models.Order, error) {
	var out models.Order
	err := c.do(ctx, "get_order", http.MethodGet, "/api/orders/"+url.PathEscape(id), token, nil, &out)
	return out, err
}

func (c *Client) CancelOrder(ctx context.Context, token, id string) (models.Order, error) {
	var out models.Order
	err := c.do(ctx, "cancel_order", http.MethodPut, "/api/orders/"+url.PathEscape(id)+"/cancel", token, nil, &out)
	return out, err
}

func (c *Client) SubmitFeedback(ctx context.Context, token string, fb models.Feedback) (models.Feedback, error) {
	var out models.Feedback
	err := c.do(ctx, "submit_feedback", http.MethodPost, "/api/feedback", token, fb, &out)
	return out, err
}

func (c *Client) ListFeedback(ctx context.Context, token, orderID string) ([]models.Feedback, error) {
	var out []models.Feedback
	err := c.do(ctx, "list_feedback", http.MethodGet, "/api/feedback/order/"+url.PathEscape(orderID), token, nil, &out)
	return out, err
}
