package echoapi

import (
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/hifadhi/core"
	"github.com/trezcool/hifadhi/core/entitlement"
	"github.com/trezcool/hifadhi/core/object"
	"github.com/trezcool/hifadhi/storage/bucket"
)

// transferProofPrefix is the namespace for pending-payment evidence uploads.
// Keys under it skip the subscription check: the uploader is, by definition,
// not a subscriber yet. A valid bearer token is still required.
const transferProofPrefix = "transfer-proofs/"

var errMissingPath = echo.NewHTTPError(http.StatusBadRequest, "path query parameter is required")

type (
	gatewayApi struct {
		conf        *core.Config
		logger      core.Logger
		entitlement *entitlement.Service
		bucket      *bucket.Client
		mailSvc     core.EmailService
		validate    *validator.Validate
		translator  ut.Translator
	}

	uploadRequest struct {
		Path string `json:"path" validate:"required,objectkey"`
	}

	uploadResponse struct {
		Success bool   `json:"success"`
		Path    string `json:"path"`
		URL     string `json:"url"`
	}

	modifyResponse struct {
		Success bool   `json:"success"`
		Path    string `json:"path,omitempty"`
	}
)

func registerGatewayAPI(app *echo.Echo, deps *Deps) {
	api := gatewayApi{
		conf:        deps.Conf,
		logger:      deps.Logger,
		entitlement: deps.Entitlement,
		bucket:      deps.Bucket,
		mailSvc:     deps.MailSvc,
		validate:    deps.Validate,
		translator:  deps.Translator,
	}

	// admin-only object preview (payment-proof images etc.) without handing
	// signed URLs to the client
	app.GET("/view", api.view, adminMiddleware())

	// pre-subscription proof-of-transfer upload; entitlement bypassed
	app.POST("/upload", api.upload)

	// entitled read-write surface
	app.PUT("/", api.put)
	app.DELETE("/", api.del)
}

// Handlers

func (api *gatewayApi) view(ctx echo.Context) error {
	key, err := api.queryKey(ctx)
	if err != nil {
		return err
	}

	obj, err := api.bucket.Get(ctx.Request().Context(), key)
	if err != nil {
		return err
	}
	defer obj.Body.Close()

	return ctx.Stream(http.StatusOK, obj.ContentType, obj.Body)
}

func (api *gatewayApi) upload(ctx echo.Context) error {
	data := uploadRequest{Path: core.CleanString(ctx.FormValue("path"))}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}
	key, err := object.CleanKey(data.Path)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "path", Error: err.Error()})
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(errors.New("file is required"),
			core.FieldError{Field: "file", Error: "this field is required"})
	}
	src, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening multipart file")
	}
	defer src.Close()

	reqCtx := ctx.Request().Context()
	if err = api.bucket.Put(reqCtx, key, src, fh.Size, fh.Header.Get(echo.HeaderContentType)); err != nil {
		return err
	}

	api.notifyUploaded(ctx, key)

	return ctx.JSON(http.StatusOK, uploadResponse{
		Success: true,
		Path:    key,
		URL:     api.bucket.PublicURL(key),
	})
}

func (api *gatewayApi) put(ctx echo.Context) error {
	key, err := api.queryKey(ctx)
	if err != nil {
		return err
	}
	if err = api.authorize(ctx, key); err != nil {
		return err
	}

	req := ctx.Request()
	if err = api.bucket.Put(req.Context(), key, req.Body, req.ContentLength, req.Header.Get(echo.HeaderContentType)); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, modifyResponse{Success: true, Path: key})
}

func (api *gatewayApi) del(ctx echo.Context) error {
	key, err := api.queryKey(ctx)
	if err != nil {
		return err
	}
	if err = api.authorize(ctx, key); err != nil {
		return err
	}

	// backend 404 is already swallowed by the client: delete is idempotent
	if err = api.bucket.Delete(ctx.Request().Context(), key); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, modifyResponse{Success: true})
}

// Helpers

// queryKey extracts and validates the `path` query parameter.
func (api *gatewayApi) queryKey(ctx echo.Context) (string, error) {
	path := core.CleanString(ctx.QueryParam("path"))
	if path == "" {
		return "", errMissingPath
	}
	key, err := object.CleanKey(path)
	if err != nil {
		return "", core.NewValidationError(err, core.FieldError{Field: "path", Error: err.Error()})
	}
	return key, nil
}

// authorize enforces the entitlement rule on write/delete: admins pass, the
// transfer-proof namespace passes, everyone else needs an active subscription.
// The check is recomputed on every request; results are never cached.
func (api *gatewayApi) authorize(ctx echo.Context, key string) error {
	prc, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if prc.IsAdmin() || strings.HasPrefix(key, transferProofPrefix) {
		return nil
	}
	if !api.entitlement.HasActiveSubscription(ctx.Request().Context(), prc.ID) {
		return errSubscriptionRequired
	}
	return nil
}

// notifyUploaded sends a best-effort notice to the admin inbox when a new
// transfer proof lands. Delivery runs in the background; a failure never
// affects the upload response.
func (api *gatewayApi) notifyUploaded(ctx echo.Context, key string) {
	if api.mailSvc == nil || api.conf.AdminEmail == "" || !strings.HasPrefix(key, transferProofPrefix) {
		return
	}
	prc, err := getContextPrincipal(ctx)
	if err != nil {
		return
	}
	api.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Address: api.conf.AdminEmail}},
		Subject: "New transfer proof uploaded",
		BodyStr: fmt.Sprintf("%s (%s) uploaded a new transfer proof: %s", prc.Email, prc.ID, key),
	})
}
