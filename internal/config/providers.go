package config

import (
	"os"
	"strings"

	"lexrag/internal/util"
)

// ProviderRef is one entry of a provider list such as "openai:primary|ollama:nomic|mock".
// The part after the colon is a key alias for hosted vendors and a model alias for ollama.
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

// ParseProviderList splits a "|" separated provider list. Names are lowercased;
// an empty list falls back to the deterministic mock provider.
func ParseProviderList(raw string) []ProviderRef {
	parts := strings.Split(raw, "|")
	out := make([]ProviderRef, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		name, alias, _ := strings.Cut(p, ":")
		out = append(out, ProviderRef{
			Raw:      p,
			Name:     strings.ToLower(strings.TrimSpace(name)),
			KeyAlias: strings.TrimSpace(alias),
		})
	}
	if len(out) == 0 {
		out = append(out, ProviderRef{Raw: "mock", Name: "mock"})
	}
	return out
}

// hosted vendors and the env var holding their shared key
var vendorKeyEnv = map[string]string{
	"openai": "OPENAI_API_KEY",
	"groq":   "GROQ_API_KEY",
}

// EnvToken turns an alias into an env var suffix: "key-1.eu" -> "KEY_1_EU".
func EnvToken(s string) string {
	return strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(strings.ToUpper(s))
}

// KeyEnvNames lists the env vars consulted for the ref's API key, alias first.
// Providers that need no key return nil.
func (r ProviderRef) KeyEnvNames() []string {
	fallback, ok := vendorKeyEnv[r.Name]
	if !ok {
		return nil
	}
	var names []string
	if r.KeyAlias != "" {
		names = append(names, "LEXRAG_"+strings.ToUpper(r.Name)+"_KEY_"+EnvToken(r.KeyAlias))
	}
	return append(names, fallback)
}

// APIKey resolves the ref's key from the environment.
func (r ProviderRef) APIKey() string {
	for _, name := range r.KeyEnvNames() {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

func validateProviders(kind, raw string) error {
	for _, ref := range ParseProviderList(raw) {
		names := ref.KeyEnvNames()
		if len(names) == 0 {
			continue
		}
		if ref.APIKey() == "" {
			return util.ConfigError("%s provider %s has no api key (set %s)", kind, ref.Raw, strings.Join(names, " or "))
		}
	}
	return nil
}
