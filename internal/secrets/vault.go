// Package secrets resolves vault: references in configuration values.
//
// A reference has the form vault:<mount>/<path>#<key> and names one key of a
// KV v2 secret, e.g. vault:secret/site-backend/stripe#secret_key.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

const refPrefix = "vault:"

var ErrNoVault = errors.New("value references vault but VAULT_ADDR is not set")

// KV reads one key of a KV v2 secret.
type KV interface {
	GetKV(ctx context.Context, secretPath, key string) (string, error)
}

// Vault is a KV reader backed by the HashiCorp Vault API.
type Vault struct {
	api *vault.Client
}

// NewVault builds a client from the standard VAULT_* environment. It returns
// nil and no error when VAULT_ADDR is unset.
func NewVault() (*Vault, error) {
	if os.Getenv(vault.EnvVaultAddress) == "" {
		return nil, nil
	}
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}
	return newVault(cfg, os.Getenv(vault.EnvVaultToken))
}

func newVault(cfg *vault.Config, token string) (*Vault, error) {
	api, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if token != "" {
		api.SetToken(token)
	}
	return &Vault{api: api}, nil
}

func (v *Vault) GetKV(ctx context.Context, secretPath, key string) (string, error) {
	mount, rel, _ := strings.Cut(secretPath, "/")
	sec, err := v.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}
	raw, ok := sec.Data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s#%s is not a string", secretPath, key)
	}
	return s, nil
}

// IsRef reports whether v is a vault reference.
func IsRef(v string) bool { return strings.HasPrefix(v, refPrefix) }

func parseRef(v string) (path, key string, err error) {
	path, key, ok := strings.Cut(strings.TrimPrefix(v, refPrefix), "#")
	if !ok || path == "" || key == "" || !strings.Contains(path, "/") {
		return "", "", fmt.Errorf("malformed vault reference %q: want vault:<mount>/<path>#<key>", v)
	}
	return path, key, nil
}

// Resolve replaces every vault reference among fields with the secret it
// names. Plain values are left alone. kv may be nil when no field holds a
// reference.
func Resolve(ctx context.Context, kv KV, fields []*string) error {
	for _, f := range fields {
		if f == nil || !IsRef(*f) {
			continue
		}
		if kv == nil {
			return ErrNoVault
		}
		path, key, err := parseRef(*f)
		if err != nil {
			return err
		}
		val, err := kv.GetKV(ctx, path, key)
		if err != nil {
			return err
		}
		*f = val
	}
	return nil
}
