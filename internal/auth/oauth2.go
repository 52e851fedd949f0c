package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TokenRequest is the JSON body of POST /oauth/token. Which fields are
// required depends on grant_type.
type TokenRequest struct {
	GrantType string `json:"grant_type"`
	// authorization_code flow
	Code         *string `json:"code"`
	RedirectURI  *string `json:"redirect_uri"`
	CodeVerifier *string `json:"code_verifier"`
	// password flow
	Username *string `json:"username"`
	Password *string `json:"password"`
	// refresh_token flow
	RefreshToken *string `json:"refresh_token"`
	// common
	Scope *string `json:"scope"`
}

// OAuthTokenResponse is the RFC 6749 §5.1 token response.
type OAuthTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// IntrospectResponse is the RFC 7662 §2.2 introspection response. Inactive
// tokens carry only active=false.
type IntrospectResponse struct {
	Active bool   `json:"active"`
	Sub    string `json:"sub,omitempty"`
	Aud    string `json:"aud,omitempty"`
	Exp    int64  `json:"exp,omitempty"`
	Scope  string `json:"scope,omitempty"`
}

// Token dispatches an OAuth 2.0 token request for an authenticated
// application.
func (s *Service) Token(ctx context.Context, app *Application, req *TokenRequest) (*OAuthTokenResponse, error) {
	switch req.GrantType {
	case "authorization_code":
		return s.grantAuthorizationCode(ctx, app, req)
	case "client_credentials":
		return s.grantClientCredentials(app)
	case "refresh_token":
		return s.grantRefreshToken(ctx, app, req)
	case "password":
		return s.grantPassword(ctx, app, req)
	default:
		return nil, fmt.Errorf("%w: Unsupported grant_type: %s", ErrValidation, req.GrantType)
	}
}

// grantAuthorizationCode implements grant_type=authorization_code per
// RFC 6749 §4.1.3 with PKCE (RFC 7636).
func (s *Service) grantAuthorizationCode(ctx context.Context, app *Application, req *TokenRequest) (*OAuthTokenResponse, error) {
	if req.Code == nil {
		return nil, fmt.Errorf("%w: Missing 'code' parameter", ErrValidation)
	}
	if req.RedirectURI == nil {
		return nil, fmt.Errorf("%w: Missing 'redirect_uri' parameter", ErrValidation)
	}

	userID, scopes, err := s.exchangeAuthorizationCode(ctx, *req.Code, app.ID, *req.RedirectURI, req.CodeVerifier)
	if err != nil {
		return nil, err
	}

	user, err := s.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrForbidden
	}

	accessToken, err := s.jwt.IssueAccessToken(user.ID, app.ClientID, scopes, user.Role)
	if err != nil {
		return nil, err
	}
	refreshToken, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if _, err := s.storeRefreshToken(ctx, user.ID, app.ID, refreshToken, scopes, ""); err != nil {
		return nil, err
	}

	s.logger.Info("authorization code exchanged", "app_id", app.ID, "user_id", user.ID)
	return &OAuthTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwt.AccessExpiry().Seconds()),
		Scope:        strings.Join(scopes, " "),
	}, nil
}

// grantClientCredentials issues an app-only token per RFC 6749 §4.4.3. No
// refresh token is issued.
func (s *Service) grantClientCredentials(app *Application) (*OAuthTokenResponse, error) {
	accessToken, err := s.jwt.IssueAppToken(app.ID)
	if err != nil {
		return nil, err
	}
	return &OAuthTokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.jwt.AccessExpiry().Seconds()),
	}, nil
}

// grantRefreshToken rotates a refresh token per RFC 6749 §6.
func (s *Service) grantRefreshToken(ctx context.Context, app *Application, req *TokenRequest) (*OAuthTokenResponse, error) {
	if req.RefreshToken == nil {
		return nil, fmt.Errorf("%w: Missing 'refresh_token' parameter", ErrValidation)
	}

	userID, newToken, scopes, err := s.rotateRefreshToken(ctx, *req.RefreshToken, app.ID)
	if err != nil {
		return nil, err
	}

	user, err := s.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrForbidden
	}

	accessToken, err := s.jwt.IssueAccessToken(user.ID, app.ClientID, scopes, user.Role)
	if err != nil {
		return nil, err
	}

	return &OAuthTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: newToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwt.AccessExpiry().Seconds()),
		Scope:        strings.Join(scopes, " "),
	}, nil
}

// grantPassword implements grant_type=password per RFC 6749 §4.3. The
// requested scope is intersected with the application's allowed set; unknown
// scopes are dropped silently.
func (s *Service) grantPassword(ctx context.Context, app *Application, req *TokenRequest) (*OAuthTokenResponse, error) {
	if req.Username == nil {
		return nil, fmt.Errorf("%w: Missing 'username' parameter", ErrValidation)
	}
	if req.Password == nil {
		return nil, fmt.Errorf("%w: Missing 'password' parameter", ErrValidation)
	}

	user, err := s.UserByEmail(ctx, normalizeEmail(*req.Username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	account, err := s.passwordAccount(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if account.Credential == nil {
		return nil, ErrInvalidCredentials
	}
	ok, err := verifyPassword(*req.Password, *account.Credential)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	scopes := app.AllowedScopes
	if req.Scope != nil {
		scopes = intersectScopes(strings.Split(*req.Scope, " "), app.AllowedScopes)
	}

	if !user.IsActive {
		return nil, ErrForbidden
	}

	accessToken, err := s.jwt.IssueAccessToken(user.ID, app.ClientID, scopes, user.Role)
	if err != nil {
		return nil, err
	}
	refreshToken, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if _, err := s.storeRefreshToken(ctx, user.ID, app.ID, refreshToken, scopes, ""); err != nil {
		return nil, err
	}

	s.logger.Info("password grant issued", "app_id", app.ID, "user_id", user.ID)
	return &OAuthTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwt.AccessExpiry().Seconds()),
		Scope:        strings.Join(scopes, " "),
	}, nil
}

// Introspect reports whether an access token is active, per RFC 7662. Any
// verification failure maps to active=false rather than an error.
func (s *Service) Introspect(token string) *IntrospectResponse {
	claims, err := s.jwt.VerifyAccessToken(token)
	if err != nil {
		return &IntrospectResponse{Active: false}
	}
	return &IntrospectResponse{
		Active: true,
		Sub:    claims.Subject,
		Aud:    claims.Audience[0],
		Exp:    claims.ExpiresAt.Unix(),
		Scope:  strings.Join(claims.Scopes, " "),
	}
}

// intersectScopes keeps the requested scopes that the application allows,
// preserving request order.
func intersectScopes(requested, allowed []string) []string {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, scope := range allowed {
		allowedSet[scope] = struct{}{}
	}
	granted := []string{}
	for _, scope := range requested {
		if _, ok := allowedSet[scope]; ok {
			granted = append(granted, scope)
		}
	}
	return granted
}
