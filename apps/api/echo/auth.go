package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/session"
)

const (
	contextTokenKey   = "sessionToken"
	contextSessionKey = "session"
	tokenQueryParam   = "token"
	authScheme        = "Bearer"
)

// Claims represents the session handle transmitted via a JWT. Subject is the session ID.
type Claims struct {
	jwt.StandardClaims
	Lab        string `json:"lab,omitempty"`
	Department string `json:"department,omitempty"`
}

func GetSessionClaims(conf *core.Config, sum session.Summary) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   sum.ID,
			ExpiresAt: now.Add(conf.Session.TTL).Unix(),
			IssuedAt:  now.Unix(),
		},
		Lab:        sum.Lab,
		Department: sum.Department,
	}
}

// GenerateToken generates a signed JWT token string representing the session Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// newJWTMiddleware authenticates session tokens. The token is looked up in the Authorization
// header, then in the session cookie, then in the token query parameter (for <img> feeds).
func newJWTMiddleware(conf *core.Config) echo.MiddlewareFunc {
	return middleware.JWTWithConfig(middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
		AuthScheme:    authScheme,
		TokenLookup:   "header:" + echo.HeaderAuthorization,
		BeforeFunc: func(ctx echo.Context) {
			req := ctx.Request()
			if req.Header.Get(echo.HeaderAuthorization) != "" {
				return
			}
			if token := lookupToken(ctx, conf.Server.CookieName); token != "" {
				req.Header.Set(echo.HeaderAuthorization, authScheme+" "+token)
			}
		},
		ErrorHandler: func(err error) error {
			if err == middleware.ErrJWTMissing {
				return errNoToken
			}
			return errInvalidToken
		},
	})
}

// lookupToken returns the session token of the cookie or of the query string.
func lookupToken(ctx echo.Context, cookieName string) string {
	if cookie, err := ctx.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ctx.QueryParam(tokenQueryParam)
}

// parseSessionID returns the ID of the session the request carries a valid token for, if any.
func parseSessionID(ctx echo.Context, conf *core.Config) string {
	token := strings.TrimPrefix(ctx.Request().Header.Get(echo.HeaderAuthorization), authScheme+" ")
	if token == "" {
		token = lookupToken(ctx, conf.Server.CookieName)
	}
	if token == "" {
		return ""
	}

	claims := new(Claims)
	t, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != middleware.AlgorithmHS256 {
			return nil, errors.Errorf("unexpected jwt signing method=%v", t.Header["alg"])
		}
		return []byte(conf.SecretKey), nil
	})
	if err != nil || !t.Valid {
		return ""
	}
	return claims.Subject
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errInvalidToken
}

func getContextSession(ctx echo.Context) (*session.Session, bool) {
	sess, ok := ctx.Get(contextSessionKey).(*session.Session)
	return sess, ok
}

func setSessionCookie(ctx echo.Context, conf *core.Config, token string) {
	ctx.SetCookie(&http.Cookie{
		Name:     conf.Server.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(conf.Session.TTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(ctx echo.Context, conf *core.Config) {
	ctx.SetCookie(&http.Cookie{
		Name:     conf.Server.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
