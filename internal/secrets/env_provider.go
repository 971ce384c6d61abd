package secrets

import (
	"context"
	"os"
	"strings"

	txsecrets "github.com/gxo-labs/txinstall/pkg/txinstall/v1/secrets"
)

// EnvProvider resolves secrets from environment variables. A non-empty Prefix
// is prepended to every key, so {{ secret "db_password" }} with prefix
// "TXINSTALL_" reads TXINSTALL_DB_PASSWORD.
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates an EnvProvider with the given key prefix.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

// GetSecret looks up the environment variable for key.
func (p *EnvProvider) GetSecret(_ context.Context, key string) (string, bool, error) {
	name := key
	if p.Prefix != "" {
		name = p.Prefix + strings.ToUpper(key)
	}
	value, found := os.LookupEnv(name)
	return value, found, nil
}

var _ txsecrets.Provider = (*EnvProvider)(nil)
