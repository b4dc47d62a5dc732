package auth

import (
	"crypto/sha256"
	"errors"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

var ErrBadToken = errors.New("invalid token")

// notices only have to survive one redirect
const noticeTTL = time.Minute

const noticePurpose = "clinic-portal notice v1"

type NoticeKind string

const (
	NoticeInfo  NoticeKind = "info"
	NoticeError NoticeKind = "error"
)

type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
}

type NoticeClaims struct {
	Notice
	jwt.RegisteredClaims
}

// signingKey derives a per-purpose key from JWT_SECRET.
func signingKey(secret, purpose string) ([]byte, error) {
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose)), key); err != nil {
		return nil, err
	}
	return key, nil
}

func MakeNotice(n Notice, secret string) (string, error) {
	return makeNotice(n, secret, time.Now())
}

func makeNotice(n Notice, secret string, now time.Time) (string, error) {
	c := NoticeClaims{
		Notice: n,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(noticeTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	key, err := signingKey(secret, noticePurpose)
	if err != nil {
		return "", err
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(key)
}

func ParseNotice(raw, secret string) (Notice, error) {
	key, err := signingKey(secret, noticePurpose)
	if err != nil {
		return Notice{}, err
	}
	tok, err := jwt.ParseWithClaims(raw, &NoticeClaims{}, func(t *jwt.Token) (any, error) {
		// block alg confusion
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadToken
		}
		return key, nil
	})
	if err != nil {
		return Notice{}, err
	}
	c, ok := tok.Claims.(*NoticeClaims)
	if !ok || !tok.Valid {
		return Notice{}, ErrBadToken
	}
	return c.Notice, nil
}

// PeekExpiry reads the exp claim of a backend access token. The signature
// is not checked: the portal does not hold the backend key, so the result
// is only good for skipping a round trip on a token that is already dead.
func PeekExpiry(raw string) (time.Time, error) {
	var c jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &c); err != nil {
		return time.Time{}, err
	}
	if c.ExpiresAt == nil {
		return time.Time{}, ErrBadToken
	}
	return c.ExpiresAt.Time, nil
}

// Expired reports whether raw is a JWT whose exp is in the past.
// Anything that does not parse is left for the backend to judge.
func Expired(raw string, now time.Time) bool {
	exp, err := PeekExpiry(raw)
	if err != nil {
		return false
	}
	return !exp.After(now)
}
