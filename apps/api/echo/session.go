package echoapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/session"
	barcodesvc "github.com/trezcool/attendance/services/barcode"
	camerasvc "github.com/trezcool/attendance/services/camera"
)

const (
	masterfileField = "masterfile"
	feedInterval    = 50 * time.Millisecond
)

type sessionApi struct {
	conf     *core.Config
	svc      session.Service
	validate *validator.Validate
}

type startResponse struct {
	ID         string `json:"session_id"`
	Token      string `json:"token"`
	Lab        string `json:"lab"`
	Department string `json:"department"`
	Total      int    `json:"total"`
}

func registerSessionAPI(app *echo.Echo, conf *core.Config, svc session.Service, validate *validator.Validate) {
	api := sessionApi{
		conf:     conf,
		svc:      svc,
		validate: validate,
	}

	// middleware are set per route: group middleware would shadow `POST /session`
	auth := []echo.MiddlewareFunc{newJWTMiddleware(conf), sessionMiddleware(svc)}

	sg := app.Group("/session")
	sg.POST("", api.start)
	sg.DELETE("", api.end, auth...)
	sg.GET("/status", api.status, auth...)
	sg.POST("/scan", api.scan, auth...)
	sg.GET("/export", api.export, auth...)
	sg.POST("/export/mail", api.mailExport, auth...)
	sg.GET("/scans", api.scans, auth...)
	sg.POST("/camera", api.startCamera, auth...)
	sg.DELETE("/camera", api.stopCamera, auth...)
	sg.GET("/feed", api.feed, auth...)
}

// Handlers

func (api *sessionApi) start(ctx echo.Context) error {
	var data StartRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StartRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	params := session.StartParams{
		Department: data.Department,
		Lab:        data.Lab,
		Replaces:   parseSessionID(ctx, api.conf),
	}
	fh, err := ctx.FormFile(masterfileField)
	switch {
	case err == nil:
		f, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening uploaded file")
		}
		defer func() { _ = f.Close() }()
		params.File = f
		params.Filename = fh.Filename
	case err != http.ErrMissingFile && err != http.ErrNotMultipart:
		return errors.Wrap(err, "reading uploaded file")
	}

	sum, err := api.svc.Start(ctx.Request().Context(), params)
	if err != nil {
		return err
	}

	token, err := GenerateToken(api.conf, GetSessionClaims(api.conf, sum))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	setSessionCookie(ctx, api.conf, token)

	return ctx.JSON(http.StatusCreated, startResponse{
		ID:         sum.ID,
		Token:      token,
		Lab:        sum.Lab,
		Department: sum.Department,
		Total:      sum.Total,
	})
}

func (api *sessionApi) status(ctx echo.Context) error {
	sess, _ := getContextSession(ctx)
	sum, err := api.svc.Status(ctx.Request().Context(), sess.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *sessionApi) scan(ctx echo.Context) error {
	var data ScanRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScanRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	sess, _ := getContextSession(ctx)
	reqCtx := ctx.Request().Context()

	if data.Image != "" {
		img, err := barcodesvc.DecodeDataURL(data.Image)
		if err != nil {
			return err
		}
		res, err := api.svc.ScanImage(reqCtx, sess.ID, img)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, res)
	}

	res, err := api.svc.Scan(reqCtx, sess.ID, data.Payload, session.SourceHTTP)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, session.ImageScan{Barcodes: 1, Results: []session.Result{res}})
}

func (api *sessionApi) export(ctx echo.Context) error {
	sess, _ := getContextSession(ctx)
	data, err := api.svc.Export(ctx.Request().Context(), sess.ID)
	if err != nil {
		return err
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", session.ExportFilename))
	return ctx.Blob(http.StatusOK, session.ExportContentType, data)
}

func (api *sessionApi) mailExport(ctx echo.Context) error {
	var data MailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MailRequest")
	}
	to, err := data.Validate(api.validate)
	if err != nil {
		return err
	}
	sess, _ := getContextSession(ctx)
	if err = api.svc.MailExport(ctx.Request().Context(), sess.ID, to...); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusAccepted)
}

func (api *sessionApi) scans(ctx echo.Context) error {
	var ord Ordering
	ord.Bind(ctx)
	sess, _ := getContextSession(ctx)
	recs, err := api.svc.ScanRecords(ctx.Request().Context(), sess.ID, ord.Orderings)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *sessionApi) startCamera(ctx echo.Context) error {
	var data CameraRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CameraRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	sess, _ := getContextSession(ctx)
	status, err := api.svc.StartCamera(ctx.Request().Context(), sess.ID, data.URL)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *sessionApi) stopCamera(ctx echo.Context) error {
	sess, _ := getContextSession(ctx)
	if err := api.svc.StopCamera(ctx.Request().Context(), sess.ID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// feed re-streams the frames captured by the session camera until the client leaves or the session ends.
func (api *sessionApi) feed(ctx echo.Context) error {
	sess, _ := getContextSession(ctx)
	fw := camerasvc.NewFeedWriter(ctx.Response())

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, fw.ContentType())
	res.Header().Set("Cache-Control", "no-cache")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ticker := time.NewTicker(feedInterval)
	defer ticker.Stop()

	var seen uint64
	reqCtx := ctx.Request().Context()
	for {
		select {
		case <-reqCtx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := api.svc.Get(sess.ID); err != nil {
			return fw.Close()
		}
		frame, seq := sess.LatestFrame()
		if seq == seen {
			continue
		}
		seen = seq
		if err := fw.WriteFrame(frame.Image, frame.ContentType); err != nil {
			return nil // client gone
		}
		res.Flush()
	}
}

func (api *sessionApi) end(ctx echo.Context) error {
	sess, _ := getContextSession(ctx)
	if err := api.svc.End(ctx.Request().Context(), sess.ID); err != nil {
		return err
	}
	clearSessionCookie(ctx, api.conf)
	return ctx.NoContent(http.StatusNoContent)
}
