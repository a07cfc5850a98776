package portal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shaurya/tradeledger/config"
	"github.com/shaurya/tradeledger/framework"
	"github.com/shaurya/tradeledger/ledger"
	"github.com/shaurya/tradeledger/portal"
	tltest "github.com/shaurya/tradeledger/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func sampleLC(id string) framework.H {
	return framework.H{
		"shipmentId":      id,
		"contentDesc":     "Cotton bales",
		"contentValue":    "125000.50",
		"exporterCompany": "Acme Exports",
		"exporterBank":    "First Export Bank",
		"importerCompany": "Globex Imports",
		"importerBank":    "Importer Trust",
		"freightCompany":  "Blue Line",
		"portOfLoading":   "Chennai",
		"portOfEntry":     "Rotterdam",
	}
}

func TestProtectedRoutesNeedLogin(t *testing.T) {
	s := tltest.NewSuite(t)

	for _, path := range []string{"/lcList", "/lcs", "/lcs/LC-1", "/customs", "/jobs/"} {
		res := s.GET(path)
		assert.Equal(t, http.StatusUnauthorized, res.Code, path)
	}

	res := s.GET("/lcList", "Accept", "text/html")
	assert.Equal(t, http.StatusFound, res.Code)
	assert.Equal(t, "/login", res.Header.Get("Location"))
}

func TestLoginFlow(t *testing.T) {
	s := tltest.NewSuite(t)

	res := s.POST("/processLogin", framework.H{"username": "customs", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, res.String(), "Invalid username or password")

	res = s.GET("/login")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.String(), "Invalid username or password")

	res = s.Login("customs", "customs")
	var view struct {
		LCApplications []json.RawMessage `json:"lcApplications"`
		Role           string            `json:"role"`
		Username       string            `json:"username"`
		Date           string            `json:"date"`
	}
	require.NoError(t, res.JSON(&view))
	assert.Equal(t, ledger.RoleCustoms, view.Role)
	assert.Equal(t, "customs", view.Username)
	assert.Empty(t, view.LCApplications)
	assert.NotEmpty(t, view.Date)

	assert.Equal(t, http.StatusOK, s.GET("/lcList").Code)

	res = s.GET("/logout")
	assert.Equal(t, http.StatusFound, res.Code)
	assert.Equal(t, http.StatusUnauthorized, s.GET("/lcList").Code)
}

func TestLCLifecycle(t *testing.T) {
	s := tltest.NewSuite(t)
	s.Login("importerBank", "importerBank")

	res := s.POST("/lcs", sampleLC("LC-100"))
	require.Equal(t, http.StatusCreated, res.Code, res.String())
	var created struct {
		Result     string `json:"result"`
		ShipmentID string `json:"shipmentId"`
	}
	require.NoError(t, res.JSON(&created))
	assert.True(t, strings.HasPrefix(created.Result, "LC created successfully for shipmentId :LC-100."))

	res = s.POST("/lcs", framework.H{"contentDesc": "no id"})
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = s.GET("/lcs/LC-100")
	require.Equal(t, http.StatusOK, res.Code)
	var lc ledger.LC
	require.NoError(t, res.JSON(&lc))
	assert.Equal(t, ledger.StatusCreated, lc.CurrentStatus)
	assert.Equal(t, "Globex Imports", lc.ImporterCompany)

	assert.Equal(t, http.StatusNotFound, s.GET("/lcs/LC-404").Code)

	res = s.POST("/lcs/LC-100/status", framework.H{"status": "ExporterBankApproved", "value": "true"})
	require.Equal(t, http.StatusOK, res.Code, res.String())
	var updated struct {
		Result     ledger.LC `json:"result"`
		StatusFlag bool      `json:"statusFlag"`
		State      string    `json:"state"`
	}
	require.NoError(t, res.JSON(&updated))
	assert.True(t, updated.StatusFlag)
	assert.Equal(t, "ExporterBankApproved", updated.State)
	assert.Equal(t, ledger.StatusExporterBankApproved, updated.Result.CurrentStatus)

	res = s.POST("/lcs/LC-100/status", framework.H{"status": "Shipped", "value": true})
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = s.POST("/lcs/LC-404/status", framework.H{"status": "CustomsApproved", "value": true})
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = s.GET("/lcList")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.String(), "LC-100")
	assert.Contains(t, res.String(), "Approved by exporter bank")

	res = s.GET("/lcs/LC-100/events")
	require.Equal(t, http.StatusOK, res.Code)
	var history struct {
		Events []struct {
			Type  string `json:"type"`
			Actor string `json:"actor"`
		} `json:"events"`
	}
	require.NoError(t, res.JSON(&history))
	require.Len(t, history.Events, 2)
	assert.Equal(t, "lc.status_updated", history.Events[0].Type)
	assert.Equal(t, "importerBank", history.Events[1].Actor)
}

func TestDocumentsAndPages(t *testing.T) {
	s := tltest.NewSuite(t)
	s.Login("exporter", "exporter")
	require.Equal(t, http.StatusCreated, s.POST("/lcs", sampleLC("LC-7")).Code)

	png := []byte("\x89PNG\r\n\x1a\nfake")
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "Bill of Lading.png")
	require.NoError(t, err)
	_, err = part.Write(png)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	res := s.Do(http.MethodPost, "/lcs/LC-7/documents", &body, "Content-Type", mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, res.Code, res.String())
	var uploaded struct {
		LC ledger.LC `json:"lc"`
	}
	require.NoError(t, res.JSON(&uploaded))
	require.Len(t, uploaded.LC.DocumentNames, 1)
	name := uploaded.LC.DocumentNames[0]

	res = s.GET("/exporter?shipmentId=LC-7")
	require.Equal(t, http.StatusOK, res.Code, res.String())
	assert.Contains(t, res.String(), "LC-7")

	res = s.GET("/getDocument?file=" + name)
	require.Equal(t, http.StatusOK, res.Code, res.String())
	assert.Equal(t, "image/png", res.Header.Get("Content-Type"))
	assert.Equal(t, png, res.Body)

	assert.Equal(t, http.StatusNotFound, s.GET("/getDocument?file=missing").Code)

	res = s.GET("/customs?shipmentId=LC-404")
	assert.Equal(t, http.StatusFound, res.Code)
	assert.Equal(t, "/lcList", res.Header.Get("Location"))

	assert.Equal(t, http.StatusNotFound, s.GET("/nowhere").Code)

	res = s.GET("/lcList/export")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Header.Get("Content-Type"), "spreadsheetml")
}

func TestRegister(t *testing.T) {
	s := tltest.NewSuite(t)

	res := s.POST("/register", framework.H{"username": "alice"})
	require.Equal(t, http.StatusCreated, res.Code, res.String())
	var creds struct {
		Registration string `json:"registration"`
		ID           string `json:"id"`
		Secret       string `json:"secret"`
	}
	require.NoError(t, res.JSON(&creds))
	assert.Equal(t, "alice", creds.ID)
	assert.NotEmpty(t, creds.Secret)
	assert.Equal(t, "Enroll ID: alice  Secret: "+creds.Secret, creds.Registration)

	res = s.POST("/register", framework.H{"username": "alice"})
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Contains(t, res.String(), "Failed to register user:")

	res = s.GET("/login")
	assert.Contains(t, res.String(), "Failed to register user:")
}

func TestAPIToken(t *testing.T) {
	s := tltest.NewSuite(t)

	res := s.POST("/api/token", framework.H{"username": "customs", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	token := s.Token("customs", "customs")
	assert.Equal(t, http.StatusOK, s.GETWithAuth("/lcList", token).Code)
	assert.Equal(t, http.StatusUnauthorized, s.GETWithAuth("/lcList", "garbage").Code)
}

func TestWebSocketMutations(t *testing.T) {
	s := tltest.NewSuite(t)
	s.Login("importerBank", "importerBank")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := s.DialWS(ctx, "/ws")

	seen := map[string]map[string]any{}
	read := func(want string) map[string]any {
		t.Helper()
		for {
			if msg, ok := seen[want]; ok {
				delete(seen, want)
				return msg
			}
			var msg map[string]any
			require.NoError(t, wsjson.Read(ctx, conn, &msg))
			typ, _ := msg["type"].(string)
			seen[typ] = msg
		}
	}

	require.NoError(t, wsjson.Write(ctx, conn, framework.H{"type": "createLC", "lc": sampleLC("LC-WS")}))
	msg := read("createLC")
	assert.Contains(t, msg["result"], "LC created successfully for shipmentId :LC-WS.")

	event := read("event")
	assert.Equal(t, "LC-WS", event["event"].(map[string]any)["shipmentId"])

	require.NoError(t, wsjson.Write(ctx, conn, framework.H{
		"type": "updateStatus",
		"req":  framework.H{"shipmentId": "LC-WS", "status": "PaymentComplete", "value": true},
	}))
	msg = read("updateStatus")
	assert.Equal(t, true, msg["statusFlag"])

	require.NoError(t, wsjson.Write(ctx, conn, framework.H{"type": "transfer"}))
	msg = read("error")
	assert.Contains(t, msg["error"], "unknown message type")

	lc, err := s.Portal.Ops.FetchLC(ctx, "LC-WS")
	require.NoError(t, err)
	assert.True(t, lc.PaymentComplete)
}

func TestWebSocketNeedsLogin(t *testing.T) {
	s := tltest.NewSuite(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(s.Server.URL, "http") + "/ws"
	_, res, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestHealthAndOperations(t *testing.T) {
	s := tltest.NewSuite(t)

	res := s.GET("/health/ready")
	require.Equal(t, http.StatusOK, res.Code, res.String())
	var ready struct {
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, res.JSON(&ready))
	assert.Equal(t, "ok", ready.Checks["ledger"])
	assert.Equal(t, "ok", ready.Checks["database"])

	s.Login("importerBank", "importerBank")
	require.Equal(t, http.StatusCreated, s.POST("/lcs", sampleLC("LC-OPS")).Code)

	res = s.GET("/jobs/")
	require.Equal(t, http.StatusOK, res.Code, res.String())
	var dash struct {
		Mutations struct {
			Name      string `json:"name"`
			Processed uint64 `json:"processed"`
		} `json:"mutations"`
	}
	require.NoError(t, res.JSON(&dash))
	assert.Equal(t, "ledger", dash.Mutations.Name)
	assert.GreaterOrEqual(t, dash.Mutations.Processed, uint64(1))

	assert.Equal(t, http.StatusOK, s.GET("/metrics").Code)

	table := s.App.Router.Inspect()
	for _, route := range []string{"/processLogin", "/lcs/{lc_id}/status", "/ws", "/jobs/*", "/admin/mutations", "/admin/events/*"} {
		assert.Contains(t, table, route)
	}
}

func TestMemoryOnlyPortal(t *testing.T) {
	s := tltest.NewSuite(t, tltest.WithoutDatabase(), tltest.WithConfig(func(cfg *config.Config) {
		cfg.Ledger.SeedUsers = false
	}))

	res := s.POST("/processLogin", framework.H{"username": "customs", "password": "customs"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, http.StatusUnauthorized, s.GET("/admin/mutations").Code)

	require.NoError(t, s.Portal.Contract.CreateUser(context.Background(), "auditor", "auditor", "Customs"))
	s.Login("auditor", "auditor")
	assert.Equal(t, http.StatusServiceUnavailable, s.GET("/admin/mutations").Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.GET("/admin/events").Code)
}

func TestAuditPanel(t *testing.T) {
	s := tltest.NewSuite(t)
	assert.Equal(t, http.StatusUnauthorized, s.GET("/admin/events").Code)

	s.Login("importerBank", "importerBank")
	require.Equal(t, http.StatusCreated, s.POST("/lcs", sampleLC("LC-A1")).Code)
	require.Equal(t, http.StatusCreated, s.POST("/lcs", sampleLC("LC-A2")).Code)
	res := s.POST("/lcs/LC-A1/status", framework.H{"status": "ExporterBankApproved", "value": true})
	require.Equal(t, http.StatusOK, res.Code, res.String())

	var page struct {
		Events []struct {
			EventID    string `json:"eventId"`
			Kind       string `json:"kind"`
			ShipmentID string `json:"shipmentId"`
		} `json:"events"`
		Total int64 `json:"total"`
	}
	res = s.GET("/admin/events?shipmentId=LC-A1")
	require.Equal(t, http.StatusOK, res.Code, res.String())
	require.NoError(t, res.JSON(&page))
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Events, 2)
	assert.Equal(t, "lc.status_updated", page.Events[0].Kind)

	res = s.GET("/admin/events?type=lc.created&perPage=1&page=2")
	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, res.JSON(&page))
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Events, 1)
	assert.Equal(t, "LC-A1", page.Events[0].ShipmentID)

	assert.Equal(t, http.StatusBadRequest, s.GET("/admin/events?since=yesterday").Code)

	res = s.GET("/admin/events/" + page.Events[0].EventID)
	require.Equal(t, http.StatusOK, res.Code, res.String())
	var one struct {
		Event struct {
			Type  string `json:"type"`
			Actor string `json:"actor"`
		} `json:"event"`
	}
	require.NoError(t, res.JSON(&one))
	assert.Equal(t, "lc.created", one.Event.Type)
	assert.Equal(t, "importerBank", one.Event.Actor)
	assert.Equal(t, http.StatusNotFound, s.GET("/admin/events/missing").Code)

	res = s.GET("/admin/events/export.csv?shipmentId=LC-A2")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "text/csv", res.Header.Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(res.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "event_id,type,shipment_id"))
	assert.Contains(t, lines[1], "lc.created,LC-A2,importerBank")
}

func TestBuildRejectsUnavailableStore(t *testing.T) {
	for _, store := range []string{"sql", "redis", "couchdb"} {
		t.Run(store, func(t *testing.T) {
			cfg := tltest.Config(t.TempDir())
			cfg.Database.Driver = ""
			cfg.Ledger.Store = store

			app := framework.NewWithConfig(cfg)
			t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
			_, err := portal.Build(app)
			assert.Error(t, err)
		})
	}
}

func TestSeedDemo(t *testing.T) {
	s := tltest.NewSuite(t)
	ctx := context.Background()

	n, err := s.Portal.SeedDemo(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(portal.DemoLCs()), n)

	n, err = s.Portal.SeedDemo(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	lcs, err := s.Portal.Ops.AllLCs(ctx)
	require.NoError(t, err)
	require.Len(t, lcs, 2)
	assert.Equal(t, "DEMO-001", lcs[0].ShipmentID)
	assert.Equal(t, "48250.75", lcs[1].ContentValue.StringFixed(2))
}
