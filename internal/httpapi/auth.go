package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/lumenbank/internal/access"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	claimsContextKey = "auth_claims"
	bearerPrefix     = "Bearer "
)

var (
	// ErrInvalidToken indicates a bearer token that is missing, malformed, expired or foreign.
	ErrInvalidToken = errors.New("invalid token")
	errEmptyKey     = errors.New("signing key is empty")
)

// Claims identify the caller and the privilege it acts with.
type Claims struct {
	jwt.RegisteredClaims
	Level access.Level `json:"level"`
}

// UserID returns the subject as an account id.
func (claims *Claims) UserID() (ledger.UserID, error) {
	return ledger.NewUserID(claims.Subject)
}

// Authenticator issues and verifies HS256 bearer tokens.
type Authenticator struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

// NewAuthenticator returns an Authenticator bound to issuer.
func NewAuthenticator(signingKey []byte, issuer string) (*Authenticator, error) {
	if len(signingKey) == 0 {
		return nil, errEmptyKey
	}
	return &Authenticator{signingKey: signingKey, issuer: issuer, now: time.Now}, nil
}

// Issue signs a token for subject valid for ttl.
func (authenticator *Authenticator) Issue(subject string, level access.Level, ttl time.Duration) (string, error) {
	issuedAt := authenticator.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    authenticator.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
		Level: level,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(authenticator.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses raw and checks signature, issuer, expiry and subject.
func (authenticator *Authenticator) Verify(raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return authenticator.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(authenticator.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(authenticator.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &claims, nil
}

func (authenticator *Authenticator) middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "bearer token required"))
			return
		}
		claims, err := authenticator.Verify(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "invalid token"))
			return
		}
		ctx.Set(claimsContextKey, claims)
		ctx.Next()
	}
}

func requireLevel(required access.Level) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims := getClaims(ctx)
		if claims == nil || !claims.Level.AtLeast(required) {
			ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse(codeForbidden, "requires "+required.String()))
			return
		}
		ctx.Next()
	}
}

func getClaims(ctx *gin.Context) *Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*Claims)
	return claims
}
