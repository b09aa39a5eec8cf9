package service

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zlnvch/sketchrelay/models"
)

var ErrUnauthenticated = errors.New("no valid token or guest name")

const (
	maxGuestNameRunes = 64
	guestSuffixLength = 9
	base36            = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// ResolveIdentity admits a connection. A valid token wins; an invalid or
// missing token falls back to the guest name; with neither the connection
// is refused.
func (s *Service) ResolveIdentity(token string, guestName string) (models.Identity, error) {
	if token != "" {
		identity, _, err := s.VerifyJWT(token)
		if err == nil {
			return identity, nil
		}
		if strings.TrimSpace(guestName) == "" {
			return models.Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
	}

	name := truncateRunes(strings.TrimSpace(stripNUL(guestName)), maxGuestNameRunes)
	if name == "" {
		return models.Identity{}, ErrUnauthenticated
	}

	return models.Identity{Id: NewGuestId(), Name: name, Guest: true}, nil
}

// NewGuestId returns guest_<unix millis>_<9 base36 chars>.
func NewGuestId() string {
	var suffix [guestSuffixLength]byte
	for i := range suffix {
		suffix[i] = base36[rand.IntN(len(base36))]
	}
	return fmt.Sprintf("guest_%d_%s", time.Now().UnixMilli(), suffix[:])
}

func (s *Service) CreateJWT(userId string, name string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"userId": userId,
		"name":   name,
		"exp":    time.Now().Add(ttl).Unix(),
		"iat":    time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.JWTSecret)
	if err != nil {
		return "", err
	}

	return signedToken, nil
}

func (s *Service) VerifyJWT(tokenString string) (models.Identity, time.Time, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return s.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Identity{}, time.Time{}, err
	}

	if !token.Valid {
		return models.Identity{}, time.Time{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, time.Time{}, errors.New("invalid token claims")
	}

	id := stringClaim(claims, "userId")
	if id == "" {
		id = stringClaim(claims, "sub")
	}
	if id == "" {
		return models.Identity{}, time.Time{}, errors.New("missing subject claim")
	}

	name := stringClaim(claims, "name")
	if name == "" {
		name = stringClaim(claims, "email")
	}
	if name == "" {
		name = "Anonymous"
	}

	var expiry time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiry = exp.Time
	}

	return models.Identity{Id: id, Name: name}, expiry, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return strings.TrimSpace(stripNUL(v))
}

// Postgres text columns reject NUL
func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
