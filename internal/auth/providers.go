package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ProviderUserInfo is what an external identity provider reports about the
// authenticated user. ProviderAccountID is the provider-scoped stable
// identifier; the rest is optional profile data.
type ProviderUserInfo struct {
	ProviderAccountID string
	Email             *string
	Name              *string
	AvatarURL         *string
	Metadata          map[string]any
}

// Provider authenticates a client-supplied credential against an external
// identity provider.
type Provider interface {
	ProviderID() string
	Authenticate(ctx context.Context, credential json.RawMessage) (*ProviderUserInfo, error)
}

// extraProviders holds providers that are compiled in behind build tags.
var extraProviders = map[string]func(config json.RawMessage, client *http.Client) (Provider, error){}

// newProvider constructs the provider implementation for a provider id using
// the application's stored config. The "password" provider is handled
// directly by the login and grant paths and is never constructed here.
func (s *Service) newProvider(providerID string, config json.RawMessage) (Provider, error) {
	switch providerID {
	case "wechat":
		return newWeChatProvider(config, s.httpClient)
	default:
		if build, ok := extraProviders[providerID]; ok {
			return build(config, s.httpClient)
		}
		return nil, fmt.Errorf("%w: %s", ErrProviderNotSupported, providerID)
	}
}
