package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/accountd-io/authserver/types"
)

const tokenIssuer = "accountd-authserver"

// ErrTokenInvalid is returned for any token that fails verification:
// bad signature, wrong signing method, expired, malformed, or missing
// required claims. Callers never see a partially decoded token.
var ErrTokenInvalid = errors.New("token invalid")

// AccessClaims is the payload of an access token. It carries enough
// identity for downstream authorization without a store round-trip.
type AccessClaims struct {
	Email  string       `json:"email"`
	Role   types.Role   `json:"role"`
	Status types.Status `json:"status"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies access and refresh tokens. The two kinds
// use distinct secrets so possession of one never authorizes the other's
// operations.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenCodec constructs a codec from the two secrets and TTLs.
func NewTokenCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssueAccess signs a short-lived access token for the account.
func (c *TokenCodec) IssueAccess(account types.Account) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Email:  account.Email,
		Role:   account.Role,
		Status: account.Status,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.accessSecret)
}

// IssueRefresh signs a refresh token carrying only the account id,
// minimizing blast radius if it leaks before revocation.
func (c *TokenCodec) IssueRefresh(accountID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.refreshTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.refreshSecret)
}

// VerifyAccess checks signature and expiry of an access token and
// returns its claims.
func (c *TokenCodec) VerifyAccess(tokenString string) (AccessClaims, error) {
	claims := AccessClaims{}
	if err := c.parse(tokenString, &claims, c.accessSecret); err != nil {
		return AccessClaims{}, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return AccessClaims{}, ErrTokenInvalid
	}
	return claims, nil
}

// VerifyRefresh checks signature and expiry of a refresh token and
// returns the account id it was issued for.
func (c *TokenCodec) VerifyRefresh(tokenString string) (string, error) {
	claims := jwt.RegisteredClaims{}
	if err := c.parse(tokenString, &claims, c.refreshSecret); err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}

func (c *TokenCodec) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}
