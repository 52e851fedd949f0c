//go:build testproviders || integration

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// TestProvider short-circuits the federated flow for deterministic tests:
// the credential itself names the provider account. Only compiled in under
// the testproviders or integration build tags.
type TestProvider struct{}

type testCredential struct {
	AccountID string  `json:"account_id"`
	Email     *string `json:"email"`
	Name      *string `json:"name"`
}

func init() {
	extraProviders["test"] = func(_ json.RawMessage, _ *http.Client) (Provider, error) {
		return &TestProvider{}, nil
	}
}

func (p *TestProvider) ProviderID() string { return "test" }

func (p *TestProvider) Authenticate(_ context.Context, credential json.RawMessage) (*ProviderUserInfo, error) {
	var cred testCredential
	if err := json.Unmarshal(credential, &cred); err != nil || cred.AccountID == "" {
		return nil, fmt.Errorf("%w: Invalid test credential", ErrValidation)
	}
	return &ProviderUserInfo{
		ProviderAccountID: cred.AccountID,
		Email:             cred.Email,
		Name:              cred.Name,
		Metadata:          map[string]any{"provider": "test"},
	}, nil
}
