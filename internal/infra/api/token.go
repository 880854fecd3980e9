package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ===== Session/JWT primitives =====

type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

var errInvalidToken = errors.New("invalid token")

// Claims binds a token to the device it was issued for.
type Claims struct {
	Kind     TokenKind `json:"kind"`
	DeviceID string    `json:"did,omitempty"`
	Staff    bool      `json:"staff,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

// Issue mints an access and a refresh token for userID on deviceID.
func (m *TokenManager) Issue(userID, deviceID string, staff bool) (TokenPair, error) {
	access, err := m.mint(userID, deviceID, staff, AccessToken, m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.mint(userID, deviceID, staff, RefreshToken, m.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(m.accessTTL.Seconds()),
	}, nil
}

func (m *TokenManager) mint(userID, deviceID string, staff bool, kind TokenKind, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		Kind:     kind,
		DeviceID: deviceID,
		Staff:    staff,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   userID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse validates tok and checks that it is of the expected kind.
func (m *TokenManager) Parse(tok string, kind TokenKind) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil || !tkn.Valid || claims.Kind != kind || claims.Subject == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// bearerToken extracts the token from "Authorization: Bearer <jwt>".
func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
		return strings.TrimSpace(hdr[7:])
	}
	return ""
}
