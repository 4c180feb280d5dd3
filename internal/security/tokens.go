package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired or signed by someone else.
	ErrInvalidToken = errors.New("invalid token")
)

// IDClaims holds the claims of a signed ID token. Admin is the elevated-privilege
// claim; it is only set on tokens minted for accounts flagged as admins.
type IDClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	Admin     bool   `json:"admin,omitempty"`
	SessionID string `json:"sid"`
}

// RefreshClaims holds the claims of a refresh token (jti binds it to one rotation).
type RefreshClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// IssuedToken is a signed token with its jti and expiry.
type IssuedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// TokenProvider issues and validates ID and refresh JWTs using RS256 or ES256.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	idTTL      time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with privateKey and verifies with publicKey.
// issuer and audience are stamped on every token and checked on validation.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, idTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		idTTL:      idTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// IssueID mints an ID token for the account. admin sets the elevated claim.
func (p *TokenProvider) IssueID(sessionID, userID, email string, admin bool) (IssuedToken, error) {
	jti, err := generateJTI()
	if err != nil {
		return IssuedToken{}, err
	}
	now := p.now()
	exp := now.Add(p.idTTL)
	claims := IDClaims{
		RegisteredClaims: p.registered(jti, userID, now, exp),
		Email:            email,
		Admin:            admin,
		SessionID:        sessionID,
	}
	token, err := p.sign(claims)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: token, JTI: jti, ExpiresAt: exp}, nil
}

// IssueRefresh mints a long-lived refresh token. Callers store the jti on the
// refresh session so a replayed, already-rotated token can be detected.
func (p *TokenProvider) IssueRefresh(sessionID, userID string) (IssuedToken, error) {
	jti, err := generateJTI()
	if err != nil {
		return IssuedToken{}, err
	}
	now := p.now()
	exp := now.Add(p.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: p.registered(jti, userID, now, exp),
		SessionID:        sessionID,
	}
	token, err := p.sign(claims)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: token, JTI: jti, ExpiresAt: exp}, nil
}

// ValidateID parses and validates an ID token (signature, exp, iss, aud).
func (p *TokenProvider) ValidateID(tokenString string) (*IDClaims, error) {
	claims := &IDClaims{}
	if err := p.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateRefresh parses and validates a refresh token (signature, exp, iss, aud).
func (p *TokenProvider) ValidateRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := p.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (p *TokenProvider) registered(jti, subject string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        jti,
		Subject:   subject,
		Issuer:    p.issuer,
		Audience:  jwt.ClaimStrings{p.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidKey
	}
	return jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
}

type issuedClaims interface {
	jwt.Claims
	GetIssuer() (string, error)
	GetAudience() (jwt.ClaimStrings, error)
}

func (p *TokenProvider) parse(tokenString string, claims issuedClaims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	}, jwt.WithTimeFunc(p.now))
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	if iss, _ := claims.GetIssuer(); iss != p.issuer {
		return ErrInvalidToken
	}
	if aud, _ := claims.GetAudience(); !slices.Contains(aud, p.audience) {
		return ErrInvalidToken
	}
	return nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
