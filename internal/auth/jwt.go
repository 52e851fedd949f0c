package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const rsaKeyBits = 2048

// Claims are the access-token claims issued to end users. aud is the
// client_id of the application the token was issued through.
type Claims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
	Role   string   `json:"role"`
}

// AppClaims are the access-token claims issued to an application itself via
// the client_credentials grant.
type AppClaims struct {
	jwt.RegisteredClaims
	GrantType string `json:"grant_type"`
}

// JWTManager signs and verifies RS256 access tokens. The key pair is loaded
// once at startup and immutable afterwards.
type JWTManager struct {
	privateKey   *rsa.PrivateKey
	publicKey    *rsa.PublicKey
	issuer       string
	accessExpiry time.Duration
}

// NewJWTManager loads an RSA key pair from PEM files. The private key may be
// PKCS#1 or PKCS#8; the public key may be PKIX or PKCS#1.
func NewJWTManager(privateKeyPath, publicKeyPath, issuer string, accessExpiry time.Duration) (*JWTManager, error) {
	privBytes, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	pubBytes, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	return newJWTManagerFromPEM(privBytes, pubBytes, issuer, accessExpiry)
}

// NewJWTManagerGenerated creates a JWTManager with an ephemeral RSA key pair.
// All tokens are invalidated on restart; intended for tests and development.
func NewJWTManagerGenerated(issuer string, accessExpiry time.Duration) (*JWTManager, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generating RSA key pair: %w", err)
	}
	return &JWTManager{
		privateKey:   privateKey,
		publicKey:    &privateKey.PublicKey,
		issuer:       issuer,
		accessExpiry: accessExpiry,
	}, nil
}

func newJWTManagerFromPEM(privatePEM, publicPEM []byte, issuer string, accessExpiry time.Duration) (*JWTManager, error) {
	privBlock, _ := pem.Decode(privatePEM)
	if privBlock == nil {
		return nil, errors.New("decoding private key PEM block")
	}

	var privateKey *rsa.PrivateKey
	switch privBlock.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(privBlock.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing PKCS#1 private key: %w", err)
		}
		privateKey = key
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(privBlock.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing PKCS#8 private key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("PKCS#8 key is not an RSA key")
		}
		privateKey = rsaKey
	default:
		return nil, fmt.Errorf("unsupported private key PEM type: %s", privBlock.Type)
	}

	pubBlock, _ := pem.Decode(publicPEM)
	if pubBlock == nil {
		return nil, errors.New("decoding public key PEM block")
	}

	var publicKey *rsa.PublicKey
	switch pubBlock.Type {
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(pubBlock.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing PKCS#1 public key: %w", err)
		}
		publicKey = key
	default:
		pubInterface, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing public key: %w", err)
		}
		key, ok := pubInterface.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not an RSA key")
		}
		publicKey = key
	}

	return &JWTManager{
		privateKey:   privateKey,
		publicKey:    publicKey,
		issuer:       issuer,
		accessExpiry: accessExpiry,
	}, nil
}

// AccessExpiry returns the configured access token lifetime.
func (m *JWTManager) AccessExpiry() time.Duration {
	return m.accessExpiry
}

// IssueAccessToken signs a user access token bound to the issuing
// application's client_id.
func (m *JWTManager) IssueAccessToken(userID, clientID string, scopes []string, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{clientID},
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Scopes: scopes,
		Role:   role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(m.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// IssueAppToken signs an application access token for the
// client_credentials grant.
func (m *JWTManager) IssueAppToken(appID string) (string, error) {
	now := time.Now()
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   appID,
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		GrantType: "client_credentials",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(m.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing app token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken parses and verifies a user access token. Issuer is
// enforced; sub, aud, exp, and iat are required. Audience is NOT matched
// against anything: it names the relying party, not this service.
func (m *JWTManager) VerifyAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, m.keyFunc,
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || len(claims.Audience) == 0 || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyAppToken mirrors VerifyAccessToken for the app-claims shape.
func (m *JWTManager) VerifyAppToken(tokenString string) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, m.keyFunc,
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*AppClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// keyFunc rejects tokens signed with anything other than RSA. This prevents
// alg:none and HMAC key-confusion attacks.
func (m *JWTManager) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return m.publicKey, nil
}
