// Package management calls the cloud directory management API for the
// self-service account operations.
package management

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"cloudgate/internal/account/models"
	"cloudgate/internal/platform/metrics"
	dErrors "cloudgate/pkg/domain-errors"
)

const (
	signUpPath         = "/cloud_directory/sign_up"
	forgotPasswordPath = "/cloud_directory/forgot_password"
	resendPath         = "/cloud_directory/resend/"

	// IAMAPIKeyGrantType is the IAM extension grant that trades an API key
	// for a bearer token.
	IAMAPIKeyGrantType = "urn:ibm:params:oauth:grant-type:apikey"

	maxErrorBody = 64 << 10
)

// Config locates the management API.
type Config struct {
	// ManagementURL is the tenant-scoped base, e.g.
	// https://host/management/v4/<tenantId>.
	ManagementURL string
}

// Client is a management API client authenticated with a bearer token.
type Client struct {
	baseURL    string
	tokens     oauth2.TokenSource
	httpClient *http.Client
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMetrics records call latency on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New builds a client. tokens supplies the bearer for every call.
func New(cfg Config, tokens oauth2.TokenSource, opts ...Option) (*Client, error) {
	if cfg.ManagementURL == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "management url is required")
	}
	if tokens == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "management token source is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.ManagementURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tracer:     otel.Tracer("cloudgate/account/management"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IAMTokenSource exchanges an IAM API key for bearer tokens, caching each
// until it expires.
func IAMTokenSource(ctx context.Context, tokenURL, apiKey string, hc *http.Client) oauth2.TokenSource {
	if hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	}
	cfg := &clientcredentials.Config{
		TokenURL:  tokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
		EndpointParams: url.Values{
			"grant_type": {IAMAPIKeyGrantType},
			"apikey":     {apiKey},
		},
	}
	return cfg.TokenSource(ctx)
}

type scimUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"displayName"`
	Emails      []models.Email `json:"emails"`
}

func (u scimUser) profile() *models.Profile {
	p := &models.Profile{ID: u.ID, DisplayName: u.DisplayName}
	for _, e := range u.Emails {
		if e.Primary {
			p.Email = e.Value
			break
		}
	}
	if p.Email == "" && len(u.Emails) > 0 {
		p.Email = u.Emails[0].Value
	}
	return p
}

// SignUp creates a cloud directory user and its profile.
func (c *Client) SignUp(ctx context.Context, record models.UserRecord, language string) (*models.Profile, error) {
	q := url.Values{"shouldCreateProfile": {"true"}}
	setLanguage(q, language)
	var user scimUser
	if err := c.do(ctx, "sign_up", signUpPath, q, record, &user); err != nil {
		return nil, err
	}
	return user.profile(), nil
}

// ForgotPassword starts the password reset notification for email.
func (c *Client) ForgotPassword(ctx context.Context, email, language string) (*models.Profile, error) {
	q := url.Values{}
	setLanguage(q, language)
	var user scimUser
	if err := c.do(ctx, "forgot_password", forgotPasswordPath, q, map[string]string{"user": email}, &user); err != nil {
		return nil, err
	}
	return user.profile(), nil
}

// ResendNotification re-sends the templated notification to the user.
func (c *Client) ResendNotification(ctx context.Context, uuid, templateName, language string) error {
	q := url.Values{}
	setLanguage(q, language)
	return c.do(ctx, "resend_notification", resendPath+url.PathEscape(templateName), q, map[string]string{"uuid": uuid}, nil)
}

func setLanguage(q url.Values, language string) {
	if language != "" {
		q.Set("language", language)
	}
}

// do performs one POST. Failures are always *models.OperationError.
func (c *Client) do(ctx context.Context, operation, path string, query url.Values, body, out any) error {
	ctx, span := c.tracer.Start(ctx, "management."+operation,
		trace.WithAttributes(attribute.String("management.operation", operation)))
	defer span.End()
	start := time.Now()
	defer c.metrics.ObserveManagementCall(operation, start)

	err := c.post(ctx, path, query, body, out)
	if err != nil {
		var opErr *models.OperationError
		if errors.As(err, &opErr) {
			span.SetAttributes(attribute.Int("http.status_code", opErr.Code))
		}
		span.SetStatus(codes.Error, operation+" failed")
	}
	return err
}

func (c *Client) post(ctx context.Context, path string, query url.Values, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return models.NewOperationError(http.StatusInternalServerError, "encode request", err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return models.NewOperationError(http.StatusInternalServerError, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	tok, err := c.tokens.Token()
	if err != nil {
		return models.NewOperationError(http.StatusInternalServerError, "obtain management token", err)
	}
	tok.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.NewOperationError(http.StatusInternalServerError, "management request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return models.NewOperationError(resp.StatusCode, errorMessage(raw, resp.Status), nil)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return models.NewOperationError(http.StatusInternalServerError, "decode management response", err)
	}
	return nil
}

// errorBody covers both the SCIM error shape and the plain API error shape.
type errorBody struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func errorMessage(raw []byte, status string) string {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case body.Detail != "":
			return body.Detail
		case body.Message != "":
			return body.Message
		case body.Error != "":
			return body.Error
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" && len(s) < 512 {
		return s
	}
	return fmt.Sprintf("management api returned %s", status)
}
