package auth

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/primebarber/site-backend/config"
)

// Identity is what a verified ID token tells us about the caller.
type Identity struct {
	UID     string
	Email   string
	Name    string
	Picture string
}

// TokenVerifier checks a bearer ID token.
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (Identity, error)
}

type FirebaseVerifier struct {
	client *fbauth.Client
}

// InitializeFirebase builds a verifier from a service-account credentials file.
func InitializeFirebase(ctx context.Context, cfg config.FirebaseConfig) (*FirebaseVerifier, error) {
	if cfg.CredentialsPath == "" {
		return nil, fmt.Errorf("firebase.credentials_path is required")
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.CredentialsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Auth client: %w", err)
	}

	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (Identity, error) {
	tok, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return Identity{}, err
	}

	id := Identity{UID: tok.UID}
	if email, ok := tok.Claims["email"].(string); ok {
		id.Email = email
	}
	if name, ok := tok.Claims["name"].(string); ok {
		id.Name = name
	}
	if pic, ok := tok.Claims["picture"].(string); ok {
		id.Picture = pic
	}
	return id, nil
}
