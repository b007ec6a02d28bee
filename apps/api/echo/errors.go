package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/ai"
	"github.com/trezcool/maktaba/core/chat"
	"github.com/trezcool/maktaba/core/library"
	"github.com/trezcool/maktaba/core/remark"
	"github.com/trezcool/maktaba/core/store"
	"github.com/trezcool/maktaba/core/user"
	"github.com/trezcool/maktaba/storage/blob"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errLoginRequired        = echo.NewHTTPError(http.StatusUnauthorized, "login required")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			message = fieldErrors(origErr, translator)
		case *core.ValidationError:
			code = http.StatusBadRequest
			message = validationMessage(origErr)
		case *store.Failure:
			code, message = failureResponse(origErr)
		case *ai.UnavailableError:
			code = http.StatusServiceUnavailable
			message = origErr.Error()
		}

		if code == 0 || code == http.StatusInternalServerError { // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			if message == nil {
				message = msg
			}
			logger.Error(msg, errors.Wrap(err, msg), contextSubject(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func fieldErrors(errs validator.ValidationErrors, translator ut.Translator) map[string]string {
	fldErrs := make(map[string]string, len(errs))
	for _, vErr := range errs {
		fldErrs[vErr.Field()] = vErr.Translate(translator)
	}
	return fldErrs
}

func validationMessage(verr *core.ValidationError) interface{} {
	if verr.Fields == nil {
		return verr.Error()
	}
	fldErrs := make(map[string]string, len(verr.Fields))
	for _, fErr := range verr.Fields {
		fldErrs[fErr.Field] = fErr.Error
	}
	return fldErrs
}

// failureResponse maps an unsuccessful store result to a status. Unknown causes are server
// errors, reported with the result's user facing message.
func failureResponse(f *store.Failure) (int, interface{}) {
	var verr *core.ValidationError
	switch {
	case errors.As(f, &verr):
		return http.StatusBadRequest, validationMessage(verr)
	case errors.Is(f, store.ErrCapReached), errors.Is(f, store.ErrDuplicate):
		return http.StatusConflict, f.Message
	case errors.Is(f, store.ErrQuotaExceeded):
		return http.StatusInsufficientStorage, f.Message
	case errors.Is(f, store.ErrInvalid), errors.Is(f, blob.ErrEmpty):
		return http.StatusBadRequest, f.Message
	case errors.Is(f, blob.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, f.Message
	case errors.Is(f, library.ErrNotFound), errors.Is(f, remark.ErrUnknownBook):
		return http.StatusNotFound, f.Message
	case errors.Is(f, remark.ErrNoCurrentUser), errors.Is(f, chat.ErrNoAuthor):
		return http.StatusUnauthorized, f.Message
	}
	return http.StatusInternalServerError, f.Message
}

// contextSubject is who the failing request was made by, for error reports.
func contextSubject(ctx echo.Context) interface{} {
	if ident, ok := getContextSession(ctx); ok {
		return ident
	}
	var usr user.User
	if claims, err := getContextClaims(ctx); err == nil {
		usr.ID = claims.Subject
		usr.Name = claims.Name
		usr.Email = claims.Email
	}
	return usr
}
