package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/session"
	"github.com/trezcool/maktaba/core/user"
)

const contextObjectKey = "object"

// sessionMiddleware guards a route group: the token's session must still be live and meet req.
// Browsers are redirected to the login page; API clients get a 401 pointing at it.
func (s *Server) sessionMiddleware(req session.Requirement) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}

			var loginPath string
			guard := session.NewGuard(
				s.deps.Sessions,
				session.RedirectFunc(func(path string) { loginPath = path }),
				s.deps.Conf.Server.LoginPath,
				req,
			)
			if guard.Check(claims.Id) != session.Authenticated {
				if ident, ok := s.deps.Sessions.Current(claims.Id); ok && ident.IsLoggedIn {
					return errHttpForbidden // logged in, but not an admin
				}
				return redirectToLogin(ctx, loginPath)
			}

			ident, _ := guard.Identity()
			ctx.Set(contextSessionKey, ident)
			return next(ctx)
		}
	}
}

func redirectToLogin(ctx echo.Context, loginPath string) error {
	if strings.Contains(ctx.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML) {
		return ctx.Redirect(http.StatusSeeOther, loginPath)
	}
	ctx.Response().Header().Set(echo.HeaderLocation, loginPath)
	return errLoginRequired
}

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(claims, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func contextHasAnyRole(claims Claims, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if core.StringInSlice(role, claims.Roles) {
			return true
		}
	}
	return false
}

func ctxUserOrAdminMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			if ctx.Param("id") == ctxUsr.ID || ctxUsr.IsAdmin() {
				if usr, err := svc.GetByID(ctx.Param("id")); err == nil {
					ctx.Set(contextObjectKey, usr)
					return next(ctx)
				} else if errors.Cause(err) != user.ErrNotFound {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return errHttpNotFound
		}
	}
}

// bookMiddleware loads the book named by the `id` param into the context.
func bookMiddleware(svc *library.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			book, err := svc.Book(ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == library.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding book by ID")
			}
			ctx.Set(contextObjectKey, book)
			return next(ctx)
		}
	}
}
