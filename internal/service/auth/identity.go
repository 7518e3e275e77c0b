package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"ringring-backend/internal/domain"
	"ringring-backend/pkg/config"
)

// IdentityProvider verifies an external credential (a Google ID token)
type IdentityProvider interface {
	Verify(ctx context.Context, credential string) (*domain.Identity, error)
}

// NewIdentityProvider builds the provider selected by cfg.Provider
func NewIdentityProvider(ctx context.Context, cfg config.IdentityConfig) (IdentityProvider, error) {
	switch cfg.Provider {
	case "oidc":
		return NewOIDCIdentityProvider(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
	case "firebase":
		return NewFirebaseIdentityProvider(ctx, cfg.FirebaseProject, cfg.CredentialsFile)
	default:
		return nil, fmt.Errorf("unknown identity provider: %s", cfg.Provider)
	}
}

// FirebaseIdentityProvider verifies Firebase ID tokens from Google sign-in
type FirebaseIdentityProvider struct {
	client *firebaseauth.Client
}

// NewFirebaseIdentityProvider initializes the Firebase Auth client
func NewFirebaseIdentityProvider(ctx context.Context, projectID, credentialsPath string) (*FirebaseIdentityProvider, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase auth: %w", err)
	}
	return &FirebaseIdentityProvider{client: client}, nil
}

// Verify implements IdentityProvider
func (p *FirebaseIdentityProvider) Verify(ctx context.Context, credential string) (*domain.Identity, error) {
	token, err := p.client.VerifyIDToken(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("failed to verify Firebase ID token: %w", err)
	}
	return identityFromClaims(token.UID, token.Claims), nil
}

// OIDCIdentityProvider verifies Google ID tokens directly against the issuer
type OIDCIdentityProvider struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCIdentityProvider discovers the issuer's keys
func NewOIDCIdentityProvider(ctx context.Context, issuer, clientID string) (*OIDCIdentityProvider, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC issuer %s: %w", issuer, err)
	}
	return &OIDCIdentityProvider{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// Verify implements IdentityProvider
func (p *OIDCIdentityProvider) Verify(ctx context.Context, credential string) (*domain.Identity, error) {
	token, err := p.verifier.Verify(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	claims := map[string]interface{}{}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode ID token claims: %w", err)
	}
	return identityFromClaims(token.Subject, claims), nil
}

func identityFromClaims(subject string, claims map[string]interface{}) *domain.Identity {
	identity := &domain.Identity{Subject: subject}
	identity.Name, _ = claims["name"].(string)
	identity.Email, _ = claims["email"].(string)
	identity.AvatarURL, _ = claims["picture"].(string)
	identity.EmailVerified, _ = claims["email_verified"].(bool)
	return identity
}
