// Package auth resolves the identity behind a socket handshake.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/dkeye/ChessSignal/internal/domain"
	"github.com/rs/zerolog/log"
)

// Validator checks an access credential and returns who it belongs to.
type Validator interface {
	Validate(ctx context.Context, token string) (domain.Identity, error)
}

// Authenticator never rejects a handshake. A missing or bad token resolves
// to an anonymous identity and the consumer decides whether that is enough.
type Authenticator struct {
	validator Validator
}

func NewAuthenticator(v Validator) *Authenticator {
	return &Authenticator{validator: v}
}

func (a *Authenticator) Resolve(r *http.Request) domain.Identity {
	token, source := TokenFromRequest(r)
	if token == "" {
		return domain.Identity{}
	}
	ident, err := a.validator.Validate(r.Context(), token)
	if err != nil {
		log.Debug().Err(err).Str("module", "auth").Str("source", source).Msg("token rejected, anonymous")
		return domain.Identity{}
	}
	return ident
}

// TokenFromRequest looks at the Authorization bearer header first, then the
// token query parameter.
func TokenFromRequest(r *http.Request) (token, source string) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if t := strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")); t != "" {
			return t, "header"
		}
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, "query"
	}
	return "", ""
}
