package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"reqtrack/internal/logging"
	"reqtrack/internal/requests"
)

// Claims is the bearer token payload accepted by the API. LibraryToken is
// the caller's current Jellyfin access token, recorded so reconciliation can
// act as the most recently seen admin.
type Claims struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	IsAdmin      bool   `json:"is_admin"`
	LibraryToken string `json:"jellyfin_token,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller of an API request. LibraryToken is
// the token from the bearer claims, or the stored one when the claims carry
// none.
type Principal struct {
	UserID       string
	Username     string
	Admin        bool
	LibraryToken string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

var errMissingBearer = errors.New("missing bearer token")

// tokenVerifier validates HS256 bearer tokens.
type tokenVerifier struct {
	secret []byte
	issuer string
}

func newTokenVerifier(secret, issuer string) *tokenVerifier {
	return &tokenVerifier{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}
}

func (v *tokenVerifier) parse(raw string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("token verification is not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, errors.New("token has no user_id")
	}
	return claims, nil
}

// sign issues a token for claims. The API itself never mints tokens.
func (v *tokenVerifier) sign(claims Claims) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("token signing is not configured")
	}
	if v.issuer != "" && claims.Issuer == "" {
		claims.Issuer = v.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// SignToken issues an HS256 bearer token accepted by the API.
func SignToken(secret, issuer string, claims Claims) (string, error) {
	token, err := newTokenVerifier(secret, issuer).sign(claims)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errMissingBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMissingBearer
	}
	return token, nil
}

// authMiddleware validates bearer tokens and records the caller in the user
// directory. Requests without a valid token are rejected with 401.
func (s *apiServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r.Header.Get("Authorization"))
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := s.verifier.parse(raw)
		if err != nil {
			s.log(r.Context()).Debug("bearer token rejected", logging.Error(err))
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		principal, err := s.identify(r.Context(), claims)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
	})
}

// requireAdmin rejects callers that are not admins with 403.
func (s *apiServer) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFrom(r.Context())
		if !ok || !principal.Admin {
			s.writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// identify upserts the caller. A caller first seen with an admin claim is
// stored as admin; afterwards the stored role and the claim are both honored.
func (s *apiServer) identify(ctx context.Context, claims *Claims) (Principal, error) {
	_, err := s.daemon.store.GetUser(ctx, claims.UserID)
	firstSeen := errors.Is(err, requests.ErrNotFound)
	if err != nil && !firstSeen {
		return Principal{}, err
	}

	user, err := s.daemon.store.LinkUser(ctx, requests.UserLink{
		UserID:       claims.UserID,
		Username:     claims.Username,
		LibraryToken: claims.LibraryToken,
	})
	if err != nil {
		return Principal{}, err
	}
	if firstSeen && claims.IsAdmin {
		user, err = s.daemon.store.SetRole(ctx, user.UserID, requests.RoleAdmin, requests.SystemActor)
		if err != nil {
			return Principal{}, err
		}
	}
	token := strings.TrimSpace(claims.LibraryToken)
	if token == "" {
		token = user.LibraryToken
	}
	return Principal{
		UserID:       user.UserID,
		Username:     user.Username,
		Admin:        claims.IsAdmin || user.Role == requests.RoleAdmin,
		LibraryToken: token,
	}, nil
}
