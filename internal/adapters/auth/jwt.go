package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dkeye/ChessSignal/internal/core"
	"github.com/dkeye/ChessSignal/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const accessTokenType = "access"

// JWTValidator accepts HMAC-signed access tokens. The subject is read from
// user_id (string or number) and falls back to sub.
type JWTValidator struct {
	secret    []byte
	ttl       time.Duration
	directory core.UserDirectory
	now       func() time.Time
}

var _ Validator = (*JWTValidator)(nil)

func NewJWTValidator(secret string, ttl time.Duration, directory core.UserDirectory) *JWTValidator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTValidator{
		secret:    []byte(secret),
		ttl:       ttl,
		directory: directory,
		now:       time.Now,
	}
}

func (v *JWTValidator) Validate(ctx context.Context, tokenString string) (domain.Identity, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	token, err := parser.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return domain.Identity{}, ErrInvalidToken
	}

	if tt, present := claims["token_type"]; present && tt != accessTokenType {
		return domain.Identity{}, fmt.Errorf("%w: token_type %v", ErrInvalidToken, tt)
	}
	uid := subject(claims)
	if uid == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	username, _ := claims["username"].(string)

	ident, err := domain.NewIdentity(domain.UserID(uid), username)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if v.directory != nil {
		known, err := v.directory.Lookup(ctx, ident.UserID)
		if err != nil {
			return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if known.Username != "" {
			ident.Username = known.Username
		}
	}
	return ident, nil
}

func subject(claims jwt.MapClaims) string {
	switch id := claims["user_id"].(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	}
	sub, _ := claims["sub"].(string)
	return sub
}

// Issue signs an access token for ident. Used for local tooling and tests;
// production tokens come from the account service.
func (v *JWTValidator) Issue(ident domain.Identity) (string, error) {
	now := v.now()
	claims := jwt.MapClaims{
		"token_type": accessTokenType,
		"user_id":    string(ident.UserID),
		"iat":        now.Unix(),
		"exp":        now.Add(v.ttl).Unix(),
		"jti":        uuid.NewString(),
	}
	if ident.Username != "" {
		claims["username"] = ident.Username
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}
