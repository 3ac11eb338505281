package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/attendance/core/session"
)

// sessionMiddleware loads the session of the authenticated token into the context.
func sessionMiddleware(svc session.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			sess, err := svc.Get(claims.Subject)
			if err != nil {
				return err
			}
			ctx.Set(contextSessionKey, sess)
			return next(ctx)
		}
	}
}
