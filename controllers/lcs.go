package controllers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shaurya/tradeledger/auth"
	"github.com/shaurya/tradeledger/framework"
	"github.com/shaurya/tradeledger/ledger"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// MaxDocumentBytes bounds an uploaded document.
const MaxDocumentBytes = 10 << 20

// LCsController serves letters of credit. Writes go through the mutation
// queue and answer once the ledger has the change.
type LCsController struct {
	Deps
}

// List answers with every LC for the logged-in user, with the user's role
// and today's date.
func (c *LCsController) List(ctx *framework.Context) error {
	id := identity(ctx)
	view, err := c.lcList(ctx, id.Username, id.Role)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, view)
}

func (c *LCsController) Index(ctx *framework.Context) error {
	lcs, err := c.Ops.AllLCs(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, framework.H{"lcs": lcs})
}

func (c *LCsController) Show(ctx *framework.Context) error {
	lc, err := c.Ops.FetchLC(ctx.Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, framework.H{
		"lc":          lc,
		"statusLabel": statusLabel(ctx, lc.CurrentStatus),
	})
}

// Create accepts the LC as a JSON body, or as a JSON string in the "lc"
// form field.
func (c *LCsController) Create(ctx *framework.Context) error {
	var raw []byte
	if ctx.IsJSON() {
		body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, framework.MaxBodyBytes))
		if err != nil {
			return ctx.BadRequest(err)
		}
		raw = body
	} else {
		raw = []byte(ctx.FormValue("lc"))
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return ctx.BadRequest(errors.New("lc not provided"))
	}

	lc, err := ledger.ParseLC(raw)
	if err != nil {
		return err
	}
	msg, err := c.Ops.CreateLC(ctx.Context(), identity(ctx).Username, lc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, framework.H{"result": msg, "shipmentId": lc.ShipmentID})
}

type statusForm struct {
	Status string `json:"status" validate:"required"`
	Value  any    `json:"value"`
}

// Status flips one status flag of the LC in the path.
func (c *LCsController) Status(ctx *framework.Context) error {
	var form statusForm
	if err := ctx.Bind(&form); err != nil {
		return err
	}
	field, err := ledger.ParseStatusField(form.Status)
	if err != nil {
		return err
	}
	value, err := cast.ToBoolE(form.Value)
	if err != nil {
		return ctx.UnprocessableEntity(map[string][]string{"value": {fmt.Sprintf("%v is not a boolean", form.Value)}})
	}

	lc, err := c.Ops.UpdateStatus(ctx.Context(), identity(ctx).Username, ctx.Param("lc_id"), field, value)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, framework.H{
		"result":     lc,
		"statusFlag": value,
		"state":      form.Status,
	})
}

// Documents stores the multipart "file" against the LC in the path. The
// document is named by the "name" field, or the file name without its
// extension.
func (c *LCsController) Documents(ctx *framework.Context) error {
	ctx.Request.Body = http.MaxBytesReader(ctx.Response, ctx.Request.Body, MaxDocumentBytes+1<<20)
	if err := ctx.Request.ParseMultipartForm(MaxDocumentBytes); err != nil {
		return ctx.BadRequest(fmt.Errorf("parse upload: %w", err))
	}
	file, header, err := ctx.Request.FormFile("file")
	if err != nil {
		return ctx.BadRequest(fmt.Errorf("file not provided: %w", err))
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxDocumentBytes+1))
	if err != nil {
		return ctx.BadRequest(err)
	}
	if len(data) > MaxDocumentBytes {
		return &framework.HTTPError{Code: http.StatusRequestEntityTooLarge, Message: "Document too large"}
	}

	name := ctx.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}

	shipmentID := ctx.Param("lc_id")
	lc, err := c.Ops.UploadDocument(ctx.Context(), identity(ctx).Username, shipmentID, name,
		base64.StdEncoding.EncodeToString(data))
	if err != nil {
		return err
	}
	ctx.Log().Info("Document uploaded",
		zap.String("shipment_id", shipmentID),
		zap.String("name", name),
		zap.Int("bytes", len(data)),
	)
	return ctx.JSON(http.StatusCreated, framework.H{"lc": lc})
}

// Events lists the recorded ledger events of the LC in the path, newest
// first.
func (c *LCsController) Events(ctx *framework.Context) error {
	limit := 50
	if s := ctx.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return ctx.BadRequest(fmt.Errorf("invalid limit %q", s))
		}
		limit = min(n, 500)
	}
	shipmentID := ctx.Param("lc_id")
	if _, err := c.Ops.FetchLC(ctx.Context(), shipmentID); err != nil {
		return err
	}
	history, err := c.Deps.Events.History(ctx.Context(), shipmentID, limit)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, framework.H{"shipmentId": shipmentID, "events": history})
}

// GetDocument returns the decoded document named by ?file= from the LC
// last opened on a role page.
func (c *LCsController) GetDocument(ctx *framework.Context) error {
	name := ctx.Query("file")
	if name == "" {
		return ctx.BadRequest(errors.New("file not provided"))
	}
	shipmentID := ctx.SessionString(auth.SessionShipmentID)
	if shipmentID == "" {
		shipmentID = ctx.Query("shipmentId")
	}
	if shipmentID == "" {
		return ctx.BadRequest(errors.New("no LC selected"))
	}

	encoded, err := c.Ops.FileView(ctx.Context(), shipmentID, name)
	if err != nil {
		return err
	}
	data, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return ctx.InternalError(fmt.Errorf("decode %s: %w", name, err))
	}
	return ctx.Data(http.StatusOK, "image/png", data)
}
