// Package firebase resolves bearer ID tokens into shopper principals.
package firebase

import (
	"context"
	"fmt"
	"strings"

	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/dmehra2102/Marketplace-Checkout/internal/checkout/domain"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/apperr"
)

type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// NewAuthClient builds the Firebase auth client. An empty credentials file
// falls back to application default credentials.
func NewAuthClient(ctx context.Context, projectID, credentialsFile string) (*auth.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := fb.NewApp(ctx, &fb.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app init: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth init: %w", err)
	}
	return client, nil
}

type IdentityProvider struct {
	verifier TokenVerifier
}

func NewIdentityProvider(v TokenVerifier) *IdentityProvider {
	return &IdentityProvider{verifier: v}
}

// Resolve verifies the token and reads the shopper's membership tiers from
// the "plan" or "plans" custom claim.
func (p *IdentityProvider) Resolve(ctx context.Context, idToken string) (domain.Principal, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return domain.Principal{}, apperr.New(apperr.KindUnauthorized, "missing bearer token")
	}
	token, err := p.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return domain.Principal{}, apperr.Wrap(apperr.KindUnauthorized, err, "invalid token")
	}
	uid := strings.TrimSpace(token.UID)
	if uid == "" {
		return domain.Principal{}, apperr.New(apperr.KindUnauthorized, "invalid uid in token")
	}

	principal := domain.Principal{UserID: uid}
	if email, ok := token.Claims["email"].(string); ok {
		principal.Email = strings.TrimSpace(email)
	}
	if plan, ok := token.Claims["plan"].(string); ok && plan != "" {
		principal.Plans = append(principal.Plans, plan)
	}
	if plans, ok := token.Claims["plans"].([]any); ok {
		for _, raw := range plans {
			if s, ok := raw.(string); ok && s != "" {
				principal.Plans = append(principal.Plans, s)
			}
		}
	}
	return principal, nil
}
