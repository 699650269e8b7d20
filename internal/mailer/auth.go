package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"
)

// Auth describes how to log in to a mail server. Mechanism is "password" or "oauth2".
type Auth struct {
	Mechanism string
	Username  string
	Password  string

	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	RefreshToken string
}

// SASLClient returns the SASL mechanism for a. A nil client with nil error means no auth.
func SASLClient(ctx context.Context, a Auth) (sasl.Client, error) {
	switch a.Mechanism {
	case "", "password":
		if a.Username == "" {
			return nil, nil
		}
		if a.Password == "" {
			return nil, errors.New("mail auth: password is empty")
		}
		return sasl.NewPlainClient("", a.Username, a.Password), nil
	case "oauth2":
		tok, err := AccessToken(ctx, a)
		if err != nil {
			return nil, err
		}
		return sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{Username: a.Username, Token: tok}), nil
	default:
		return nil, fmt.Errorf("mail auth: unknown mechanism %q", a.Mechanism)
	}
}

// AccessToken exchanges the stored refresh token for a fresh access token.
func AccessToken(ctx context.Context, a Auth) (string, error) {
	if a.RefreshToken == "" {
		return "", errors.New("mail auth: refresh token is empty")
	}
	conf := &oauth2.Config{
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: a.TokenURL},
		Scopes:       a.Scopes,
	}
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: a.RefreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("mail auth: refresh token: %w", err)
	}
	return tok.AccessToken, nil
}
