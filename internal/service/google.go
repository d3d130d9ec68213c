package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

// ErrGoogleNotConfigured is returned when no Google client id is set.
var ErrGoogleNotConfigured = errors.New("google sign-in is not configured")

// GoogleIdentity is the verified subset of a Google ID token.
type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// GoogleVerifier turns a browser credential or an authorization code into a
// verified identity.
type GoogleVerifier interface {
	VerifyCredential(ctx context.Context, credential string) (*GoogleIdentity, error)
	ExchangeCode(ctx context.Context, code string) (*GoogleIdentity, error)
}

type googleVerifier struct {
	clientID string
	oauth    *oauth2.Config
}

// NewGoogleVerifier returns a verifier for the given OAuth client. The code
// flow needs a client secret; the credential flow only needs the id.
func NewGoogleVerifier(clientID, clientSecret, redirectURL string) GoogleVerifier {
	return &googleVerifier{
		clientID: clientID,
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
	}
}

func (g *googleVerifier) VerifyCredential(ctx context.Context, credential string) (*GoogleIdentity, error) {
	if g.clientID == "" {
		return nil, ErrGoogleNotConfigured
	}
	payload, err := idtoken.Validate(ctx, credential, g.clientID)
	if err != nil {
		return nil, fmt.Errorf("validate id token: %w", err)
	}

	id := &GoogleIdentity{Subject: payload.Subject}
	id.Email, _ = payload.Claims["email"].(string)
	id.EmailVerified, _ = payload.Claims["email_verified"].(bool)
	id.Name, _ = payload.Claims["name"].(string)
	id.Picture, _ = payload.Claims["picture"].(string)
	return id, nil
}

func (g *googleVerifier) ExchangeCode(ctx context.Context, code string) (*GoogleIdentity, error) {
	if g.clientID == "" || g.oauth.ClientSecret == "" {
		return nil, ErrGoogleNotConfigured
	}
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, errors.New("token response has no id_token")
	}
	return g.VerifyCredential(ctx, raw)
}
