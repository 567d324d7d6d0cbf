package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"trunkctl/internal/events"
	"trunkctl/internal/gateway"
	"trunkctl/internal/trunks"

	"github.com/gin-gonic/gin"
)

type fakeGateways struct {
	created []gateway.Config
	deleted []string
}

func (f *fakeGateways) CreateGateway(_ context.Context, cfg gateway.Config) error {
	f.created = append(f.created, cfg)
	return nil
}

func (f *fakeGateways) DeleteGateway(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

type fakeSubscribers struct {
	ops []string
}

func (f *fakeSubscribers) CreateSubscriber(_ context.Context, username, _ string) error {
	f.ops = append(f.ops, "create:"+username)
	return nil
}

func (f *fakeSubscribers) DeleteSubscriber(_ context.Context, username string) error {
	f.ops = append(f.ops, "delete:"+username)
	return nil
}

type fakePublisher struct {
	published []events.CallUpdateEvent
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, ev events.CallUpdateEvent) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, ev)
	return nil
}

func newRouter(t *testing.T) (*gin.Engine, *fakeGateways, *fakeSubscribers, *trunks.MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gw := &fakeGateways{}
	subs := &fakeSubscribers{}
	repo := trunks.NewMemoryRepo()
	h := &Handlers{
		Trunks:    repo,
		Lifecycle: &trunks.Orchestrator{Gateways: gw, Subscribers: subs},
		Gateways:  gw,
		Events:    &fakePublisher{},
	}

	r := gin.New()
	registerRoutes(r, h)
	return r, gw, subs, repo
}

func registerRoutes(r *gin.Engine, h *Handlers) {
	r.POST("/v1/gateways", h.CreateGateway)
	r.DELETE("/v1/gateways/:name", h.DeleteGateway)
	r.POST("/v1/sip_trunks", h.CreateTrunk)
	r.GET("/v1/sip_trunks/:id", h.GetTrunk)
	r.PATCH("/v1/sip_trunks/:id", h.UpdateTrunk)
	r.DELETE("/v1/sip_trunks/:id", h.DeleteTrunk)
	r.POST("/v1/calls/:id/redirect", h.RedirectCall)
}

func do(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateGateway(t *testing.T) {
	r, gw, _, _ := newRouter(t)

	w := do(t, r, http.MethodPost, "/v1/gateways",
		`{"name":"gw-1","username":"u","password":"p","realm":"sip.example.com","proxy":"sip.example.com:5070"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if len(gw.created) != 1 || gw.created[0].Name != "gw-1" {
		t.Fatalf("unexpected creates: %+v", gw.created)
	}
}

func TestCreateGateway_RejectsMissingFields(t *testing.T) {
	r, gw, _, _ := newRouter(t)

	w := do(t, r, http.MethodPost, "/v1/gateways", `{"name":"gw-1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	if len(gw.created) != 0 {
		t.Fatalf("no gateway should be created")
	}
}

func TestDeleteGateway(t *testing.T) {
	r, gw, _, _ := newRouter(t)

	w := do(t, r, http.MethodDelete, "/v1/gateways/gw-1", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status %d", w.Code)
	}
	if len(gw.deleted) != 1 || gw.deleted[0] != "gw-1" {
		t.Fatalf("unexpected deletes: %v", gw.deleted)
	}
}

func TestTrunkLifecycleOverHTTP(t *testing.T) {
	r, gw, subs, _ := newRouter(t)

	// Create a client_credentials trunk; credentials are generated.
	w := do(t, r, http.MethodPost, "/v1/sip_trunks",
		`{"id":"trunk-1","authentication_mode":"client_credentials"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", w.Code, w.Body.String())
	}
	var created trunks.Trunk
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Username == "" || created.Password == "" {
		t.Fatalf("expected generated credentials: %+v", created)
	}
	if len(subs.ops) != 1 || subs.ops[0] != "create:"+created.Username {
		t.Fatalf("unexpected subscriber ops: %v", subs.ops)
	}

	// Flip to outbound_registration: subscriber goes away, gateway appears.
	w = do(t, r, http.MethodPatch, "/v1/sip_trunks/trunk-1",
		`{"authentication_mode":"outbound_registration","username":"alice","password":"pw","outbound_host":"sip.example.com:5070"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", w.Code, w.Body.String())
	}
	if len(subs.ops) != 2 || subs.ops[1] != "delete:"+created.Username {
		t.Fatalf("expected subscriber teardown, got %v", subs.ops)
	}
	if len(gw.created) != 1 || gw.created[0].Realm != "sip.example.com" || gw.created[0].Proxy != "sip.example.com:5070" {
		t.Fatalf("unexpected gateway create: %+v", gw.created)
	}

	// Delete tears the gateway down.
	w = do(t, r, http.MethodDelete, "/v1/sip_trunks/trunk-1", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status %d", w.Code)
	}
	if len(gw.deleted) != 1 || gw.deleted[0] != "trunk-1" {
		t.Fatalf("expected gateway delete, got %v", gw.deleted)
	}

	if w = do(t, r, http.MethodGet, "/v1/sip_trunks/trunk-1", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestCreateTrunk_ValidationFailure(t *testing.T) {
	r, gw, subs, _ := newRouter(t)

	w := do(t, r, http.MethodPost, "/v1/sip_trunks",
		`{"id":"trunk-1","authentication_mode":"outbound_registration"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if len(gw.created) != 0 || len(subs.ops) != 0 {
		t.Fatalf("nothing should be provisioned on validation failure")
	}
}

func TestCreateTrunk_Conflict(t *testing.T) {
	r, _, _, _ := newRouter(t)

	body := `{"id":"trunk-1","authentication_mode":"ip_address"}`
	if w := do(t, r, http.MethodPost, "/v1/sip_trunks", body); w.Code != http.StatusCreated {
		t.Fatalf("first create: %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/v1/sip_trunks", body); w.Code != http.StatusConflict {
		t.Fatalf("expected conflict, got %d", w.Code)
	}
}

func TestUpdateTrunk_NotFound(t *testing.T) {
	r, _, _, _ := newRouter(t)

	w := do(t, r, http.MethodPatch, "/v1/sip_trunks/nope", `{"username":"x"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}

func TestRedirectCall(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pub := &fakePublisher{}
	r := gin.New()
	registerRoutes(r, &Handlers{Events: pub})

	w := do(t, r, http.MethodPost, "/v1/calls/call-1/redirect",
		`{"url":"https://example.com/voice.xml","method":"GET"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected one event, got %d", len(pub.published))
	}
	ev := pub.published[0]
	if ev.CallID != "call-1" || ev.URL != "https://example.com/voice.xml" || ev.Method != "GET" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestRedirectCall_RequiresURL(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pub := &fakePublisher{}
	r := gin.New()
	registerRoutes(r, &Handlers{Events: pub})

	w := do(t, r, http.MethodPost, "/v1/calls/call-1/redirect", `{"method":"GET"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	if len(pub.published) != 0 {
		t.Fatalf("nothing should be published")
	}
}
