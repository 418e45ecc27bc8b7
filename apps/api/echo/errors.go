package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/hifadhi/core"
	"github.com/trezcool/hifadhi/core/identity"
	"github.com/trezcool/hifadhi/storage/bucket"
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that maps our error
// taxonomy to JSON responses; the body is always `{"error": ...}` (plus "details"
// for relayed storage failures) so browser clients have one shape to parse.
// signalShutdown is called in order to gracefully shutdown the Server whenever a
// core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}
		var details string

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == echo.ErrMethodNotAllowed {
				code = http.StatusMethodNotAllowed
				message = "method not allowed"
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case *bucket.UpstreamError:
			// relay the backend's status and text verbatim
			code = origErr.StatusCode
			message = fmt.Sprintf("storage %s failed", origErr.Op)
			details = fmt.Sprintf("%d: %s", origErr.StatusCode, origErr.Detail)
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error; detail stays in the logs
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var prc identity.Principal
			if p, cErr := getContextPrincipal(ctx); cErr == nil {
				prc = p
			}
			logger.Error(msg, errors.Wrap(err, msg), prc)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		body := echo.Map{"error": message}
		if details != "" {
			body["details"] = details
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, body)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
