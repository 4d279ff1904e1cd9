package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
)

// StaticProvider serves secrets from memory. It backs local development and tests.
type StaticProvider struct {
	secrets map[string]map[string]string
}

// NewStaticProvider copies secrets into a new provider.
func NewStaticProvider(secrets map[string]map[string]string) *StaticProvider {
	p := &StaticProvider{secrets: make(map[string]map[string]string, len(secrets))}
	for name, kv := range secrets {
		p.secrets[strings.ToLower(name)] = maps.Clone(kv)
	}
	return p
}

// NewEnvProvider reads a JSON object of secrets from the environment variable
// key, e.g. {"dev/acme/amazon-ads": {"client_id": "..."}}.
func NewEnvProvider(key string) (*StaticProvider, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return NewStaticProvider(nil), nil
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal([]byte(raw), &secrets); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return NewStaticProvider(secrets), nil
}

func (p *StaticProvider) GetSecret(_ context.Context, name string) (map[string]string, error) {
	kv, ok := p.secrets[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return maps.Clone(kv), nil
}

func (p *StaticProvider) ListSecrets(_ context.Context, prefix string) ([]string, error) {
	prefix = strings.ToLower(prefix)
	var names []string
	for name := range p.secrets {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}
