package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Audiences keep a link minted for one purpose from being accepted by another.
const (
	AudiencePhotoDownload = "photo-download"
	AudienceClientImport  = "client-import"
)

var ErrInvalidTicket = errors.New("invalid file ticket")

// Ticket is what a verified link grants: access to Path on behalf of OwnerID until ExpiresAt.
type Ticket struct {
	OwnerID   string
	Path      string
	ExpiresAt time.Time
}

type ticketClaims struct {
	Path string `json:"path"`
	jwt.RegisteredClaims
}

// SignedURLSigner mints HS256 tickets for stored files. Photo downloads and import previews each get
// their own signer and audience.
type SignedURLSigner struct {
	secret   []byte
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewSignedURLSigner(secret, audience string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SignedURLSigner{secret: []byte(secret), audience: audience, ttl: ttl, now: time.Now}
}

func (s *SignedURLSigner) TTL() time.Duration {
	return s.ttl
}

// Issue signs a ticket for relPath owned by ownerID.
func (s *SignedURLSigner) Issue(ownerID, relPath string) (string, time.Time, error) {
	if ownerID == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("%w: owner and path are required", ErrInvalidTicket)
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("signing secret missing")
	}
	now := s.now()
	expiresAt := now.Add(s.ttl).Truncate(time.Second)
	claims := ticketClaims{
		Path: relPath,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign ticket: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks signature, audience and expiry.
func (s *SignedURLSigner) Verify(token string) (Ticket, error) {
	var claims ticketClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}
	if claims.Subject == "" || claims.Path == "" {
		return Ticket{}, fmt.Errorf("%w: incomplete claims", ErrInvalidTicket)
	}
	return Ticket{OwnerID: claims.Subject, Path: claims.Path, ExpiresAt: claims.ExpiresAt.Time}, nil
}
