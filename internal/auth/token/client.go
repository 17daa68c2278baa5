// Package token exchanges authorization artifacts for tokens at the IdP
// token endpoint and verifies the identity tokens it returns.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"cloudgate/internal/auth/models"
	dErrors "cloudgate/pkg/domain-errors"
)

// Path is appended to the OAuth server URL for token requests.
const Path = "/token"

// AuthorizePath is appended to the OAuth server URL for the browser redirect.
const AuthorizePath = "/authorization"

// Config identifies this relying party to the IdP.
type Config struct {
	ClientID       string
	Secret         string
	OAuthServerURL string
	RedirectURI    string
	Scopes         []string
}

// Grant carries the parameters for one token request. Only the fields the
// grant type needs are read.
type Grant struct {
	Type      models.GrantType
	Code      string
	Username  string
	Password  string
	Assertion string
}

// Client performs exactly one token request per Exchange. It never retries.
type Client struct {
	oauth      oauth2.Config
	httpClient *http.Client
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for token requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New validates cfg and builds a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.ClientID == "" || cfg.Secret == "" || cfg.OAuthServerURL == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "client id, secret and oauth server url are required")
	}
	base := strings.TrimRight(cfg.OAuthServerURL, "/")
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid"}
	}

	c := &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.Secret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + AuthorizePath,
				TokenURL:  base + Path,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tracer:     otel.Tracer("cloudgate/auth/token"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AuthCodeURL builds the browser redirect to the IdP authorization endpoint.
// language, when set, is forwarded so the IdP renders its login UI localized.
func (c *Client) AuthCodeURL(state, language string) string {
	opts := []oauth2.AuthCodeOption{}
	if language != "" {
		opts = append(opts, oauth2.SetAuthURLParam("language", language))
	}
	return c.oauth.AuthCodeURL(state, opts...)
}

// Exchange posts one grant to the token endpoint.
func (c *Client) Exchange(ctx context.Context, grant Grant) (*models.TokenSet, error) {
	ctx, span := c.tracer.Start(ctx, "token.exchange",
		trace.WithAttributes(attribute.String("oauth.grant_type", grant.Type.String())))
	defer span.End()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.exchange(ctx, grant)
	if err != nil {
		var exErr *ExchangeError
		if !errors.As(err, &exErr) {
			exErr = toExchangeError(err)
		}
		span.SetAttributes(attribute.Int("http.status_code", exErr.HTTPStatus))
		span.SetStatus(codes.Error, exErr.ErrorCode)
		return nil, exErr
	}
	return toTokenSet(tok), nil
}

func (c *Client) exchange(ctx context.Context, grant Grant) (*oauth2.Token, error) {
	switch grant.Type {
	case models.GrantAuthorizationCode:
		if grant.Code == "" {
			return nil, &ExchangeError{Err: dErrors.New(dErrors.CodeBadRequest, "authorization code is required")}
		}
		return c.oauth.Exchange(ctx, grant.Code)
	case models.GrantPassword:
		return c.oauth.PasswordCredentialsToken(ctx, grant.Username, grant.Password)
	case models.GrantJWTBearer:
		if grant.Assertion == "" {
			return nil, &ExchangeError{Err: dErrors.New(dErrors.CodeBadRequest, "assertion is required")}
		}
		// clientcredentials lets grant_type be overridden for extension grants.
		cc := c.clientCredentials()
		cc.EndpointParams = map[string][]string{
			"grant_type": {models.GrantJWTBearer.String()},
			"assertion":  {grant.Assertion},
		}
		return cc.Token(ctx)
	case models.GrantClientCredentials:
		cc := c.clientCredentials()
		return cc.Token(ctx)
	default:
		return nil, &ExchangeError{Err: dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unsupported grant type %q", grant.Type))}
	}
}

func (c *Client) clientCredentials() *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:     c.oauth.ClientID,
		ClientSecret: c.oauth.ClientSecret,
		TokenURL:     c.oauth.Endpoint.TokenURL,
		AuthStyle:    c.oauth.Endpoint.AuthStyle,
	}
}

// TokenSource returns an app-to-app token source that caches until expiry.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return c.clientCredentials().TokenSource(ctx)
}

func toTokenSet(tok *oauth2.Token) *models.TokenSet {
	set := &models.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		set.IdentityToken = idToken
	}
	return set
}
