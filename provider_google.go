package tourguard

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleIssuer = "https://accounts.google.com"

// GoogleProvider logs users in with Google's OpenID Connect endpoints.
type GoogleProvider struct {
	oauthConfig     *oauth2.Config
	idTokenVerifier *oidc.IDTokenVerifier
}

// NewGoogleProvider discovers Google's OIDC endpoints. Client id, secret and
// redirect URL come from cfg and have no defaults.
func NewGoogleProvider(ctx context.Context, cfg Config) (*GoogleProvider, error) {
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("google client id, secret and redirect url are required")
	}

	// Discover Google OIDC endpoints
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}

	return newGoogleProvider(cfg, google.Endpoint, provider.Verifier(&oidc.Config{
		ClientID: cfg.GoogleClientID,
	})), nil
}

func newGoogleProvider(cfg Config, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier) *GoogleProvider {
	return &GoogleProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes: []string{
				oidc.ScopeOpenID,
				"profile",
				"email",
			},
		},
		idTokenVerifier: verifier,
	}
}

func (g *GoogleProvider) Name() string { return "google" }

func (g *GoogleProvider) AuthCodeURL(state, nonce string) string {
	return g.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
		oidc.Nonce(nonce),
	)
}

// Exchange trades the code for tokens and verifies the ID token's signature,
// audience, expiry and nonce.
func (g *GoogleProvider) Exchange(ctx context.Context, code, nonce string) (*Profile, error) {
	token, err := g.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("no id_token in response")
	}

	idToken, err := g.idTokenVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}

	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
		Nonce         string `json:"nonce"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse id_token claims: %w", err)
	}

	if claims.Sub == "" {
		return nil, errors.New("id_token without subject")
	}
	// Verify nonce against cookie
	if claims.Nonce == "" || claims.Nonce != nonce {
		return nil, errors.New("invalid nonce")
	}

	return &Profile{
		Provider:      g.Name(),
		Subject:       claims.Sub,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}
