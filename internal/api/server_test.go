package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/flowpbx/sccpd/internal/database"
	"github.com/flowpbx/sccpd/internal/monitor"
	"github.com/flowpbx/sccpd/internal/sccp"
	"github.com/flowpbx/sccpd/internal/sccp/wire"
	"gopkg.in/yaml.v3"
)

const (
	testAdmin    = "admin"
	testPassword = "correct-horse-battery"
	testDevice   = "SEP00112233AABB"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testProvisioning() sccp.Provisioning {
	return sccp.Provisioning{
		Lines: []sccp.LineConfig{
			{Name: "100", CallerIDName: "Reception", CallerIDNumber: "100"},
			{Name: "300"},
		},
		Devices: []sccp.DeviceConfig{{
			ID:      testDevice,
			Buttons: []sccp.ButtonConfig{{Type: sccp.ButtonLine, Line: "100"}},
		}},
	}
}

type testEnv struct {
	server     *Server
	dispatcher *sccp.Dispatcher
	messages   database.DeviceMessageRepository
	admins     database.AdminUserRepository
	token      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("database.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	admins := database.NewAdminUserRepository(db)
	if _, err := database.EnsureAdmin(ctx, admins, testAdmin, testPassword); err != nil {
		t.Fatalf("EnsureAdmin() error: %v", err)
	}
	sysCfg, err := database.NewSystemConfigRepository(ctx, db)
	if err != nil {
		t.Fatalf("NewSystemConfigRepository() error: %v", err)
	}
	prov := database.NewProvisioningRepository(db)
	if err := prov.Save(ctx, testProvisioning()); err != nil {
		t.Fatalf("saving provisioning: %v", err)
	}
	messages := database.NewDeviceMessageRepository(db)

	mon := monitor.New(monitor.SystemClock{}, time.Second, logger)
	store := sccp.NewStore()
	calls := sccp.NewLocalCallControl(logger)
	alloc := sccp.NewAllocator(store, calls, mon, logger)
	calls.Bind(alloc)
	d := sccp.NewDispatcher(store, alloc, mon, messages, sccp.DefaultOptions(), logger)
	if _, err := d.ApplyConfig(testProvisioning()); err != nil {
		t.Fatalf("ApplyConfig() error: %v", err)
	}

	srv := NewServer(Options{
		Dispatcher:   d,
		Provisioning: prov,
		AdminUsers:   admins,
		SystemConfig: sysCfg,
		JWTSecret:    testSecret,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("sccpd_up 1\n"))
		}),
		Version: "test",
	}, logger)
	t.Cleanup(srv.Close)

	env := &testEnv{server: srv, dispatcher: d, messages: messages, admins: admins}
	env.token = env.login(t, testAdmin, testPassword)
	return env
}

// registerPhone connects testDevice over an in-memory pipe and walks it
// through registration. Everything the server sends is discarded.
func (e *testEnv) registerPhone(t *testing.T) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	go io.Copy(io.Discard, client) //nolint:errcheck

	s := sccp.NewSession(server, netip.MustParseAddrPort("192.0.2.10:50000"), time.Now())
	e.dispatcher.Accept(s)
	e.dispatcher.Handle(s, &wire.Register{DeviceName: testDevice, ProtocolVersion: 11})
	e.dispatcher.Handle(s, &wire.CapabilitiesRes{Capabilities: []wire.Capability{{Codec: wire.CodecG711Ulaw}}})
	e.dispatcher.Handle(s, &wire.RegisterAvailableLines{MaxLines: 1})

	if st := e.dispatcher.Store().Device(testDevice).State(); st != sccp.Registered {
		t.Fatalf("device state = %v, want registered", st)
	}
}

func (e *testEnv) do(t *testing.T, method, path, contentType, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "198.51.100.7:40000"
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) login(t *testing.T, user, pass string) string {
	t.Helper()
	body, _ := json.Marshal(loginRequest{Username: user, Password: pass})
	rr := e.do(t, http.MethodPost, "/api/v1/auth/login", "application/json", string(body), false)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var resp loginResponse
	decodeData(t, rr, &resp)
	if resp.Token == "" {
		t.Fatal("login returned an empty token")
	}
	return resp.Token
}

// decodeData unwraps the envelope into dst.
func decodeData(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding envelope: %v (%s)", err, rr.Body.String())
	}
	if env.Error != "" {
		t.Fatalf("unexpected error in envelope: %s", env.Error)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/health", "", "", false)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var data map[string]any
	decodeData(t, rr, &data)
	if data["status"] != "ok" {
		t.Errorf("status = %v, want ok", data["status"])
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestMetricsMounted(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/metrics", "", "", false)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "sccpd_up") {
		t.Errorf("body = %q, want metrics output", rr.Body.String())
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"username":"root","password":"nope"}`, http.StatusUnauthorized},
		{"missing password", `{"username":"admin"}`, http.StatusBadRequest},
		{"malformed", `{"username":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/v1/auth/login", "application/json", tt.body, false)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestLogin_UpgradesWeakHash(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	weak := database.PasswordParams{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}
	hash, err := weak.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	user, err := env.admins.GetByUsername(ctx, testAdmin)
	if err != nil || user == nil {
		t.Fatalf("GetByUsername() = %v, %v", user, err)
	}
	user.PasswordHash = hash
	if err := env.admins.Update(ctx, user); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	env.login(t, testAdmin, testPassword)

	user, err = env.admins.GetByUsername(ctx, testAdmin)
	if err != nil {
		t.Fatalf("GetByUsername() error: %v", err)
	}
	if user.PasswordHash == hash {
		t.Fatal("password hash was not upgraded after login")
	}
	if database.NeedsRehash(user.PasswordHash) {
		t.Errorf("upgraded hash %q still needs a rehash", user.PasswordHash)
	}
	if ok, err := database.CheckPassword(testPassword, user.PasswordHash); err != nil || !ok {
		t.Errorf("CheckPassword() on upgraded hash = %v, %v, want true", ok, err)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/v1/devices", "/api/v1/lines", "/api/v1/channels", "/api/v1/config", "/api/v1/auth/me"} {
		rr := env.do(t, http.MethodGet, path, "", "", false)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, rr.Code)
		}
	}

	rr := env.do(t, http.MethodGet, "/api/v1/auth/me", "", "", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /auth/me status = %d, want 200", rr.Code)
	}
	var me map[string]any
	decodeData(t, rr, &me)
	if me["username"] != testAdmin {
		t.Errorf("username = %v, want %s", me["username"], testAdmin)
	}
}

func TestDevices(t *testing.T) {
	env := newTestEnv(t)
	env.registerPhone(t)

	rr := env.do(t, http.MethodGet, "/api/v1/devices", "", "", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rr.Code)
	}
	var page struct {
		Items []sccp.DeviceSnapshot `json:"items"`
		Total int                   `json:"total"`
	}
	decodeData(t, rr, &page)
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("devices = %+v, want one", page)
	}
	if page.Items[0].State != "registered" {
		t.Errorf("state = %q, want registered", page.Items[0].State)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/devices/"+testDevice, "", "", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rr.Code)
	}
	var dev sccp.DeviceSnapshot
	decodeData(t, rr, &dev)
	if dev.IP != "192.0.2.10" {
		t.Errorf("ip = %q, want 192.0.2.10", dev.IP)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/devices/SEPFFFFFFFFFFFF", "", "", true)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/devices?limit=abc", "", "", true)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rr.Code)
	}
}

func TestSetDeviceMessage(t *testing.T) {
	env := newTestEnv(t)
	env.registerPhone(t)
	ctx := context.Background()

	path := "/api/v1/devices/" + testDevice + "/message"
	rr := env.do(t, http.MethodPut, path, "application/json", `{"message":"Out to lunch"}`, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	stored, err := env.messages.DeviceMessage(ctx, testDevice)
	if err != nil {
		t.Fatalf("DeviceMessage() error: %v", err)
	}
	if stored != "Out to lunch" {
		t.Errorf("stored message = %q, want %q", stored, "Out to lunch")
	}
	if got := env.dispatcher.Store().Device(testDevice).Message(); got != "Out to lunch" {
		t.Errorf("device message = %q, want %q", got, "Out to lunch")
	}

	rr = env.do(t, http.MethodPut, path, "application/json", `{"message":""}`, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("clear status = %d, want 200", rr.Code)
	}
	stored, err = env.messages.DeviceMessage(ctx, testDevice)
	if err != nil {
		t.Fatalf("DeviceMessage() error: %v", err)
	}
	if stored != "" {
		t.Errorf("stored message after clear = %q, want empty", stored)
	}

	long := `{"message":"` + strings.Repeat("x", maxPromptLen+1) + `"}`
	if rr := env.do(t, http.MethodPut, path, "application/json", long, true); rr.Code != http.StatusBadRequest {
		t.Errorf("long message status = %d, want 400", rr.Code)
	}
	if rr := env.do(t, http.MethodPut, "/api/v1/devices/SEPFFFFFFFFFFFF/message", "application/json", `{"message":"hi"}`, true); rr.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rr.Code)
	}
}

func TestLines(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/lines", "", "", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rr.Code)
	}
	var page struct {
		Items []sccp.LineSnapshot `json:"items"`
	}
	decodeData(t, rr, &page)
	if len(page.Items) != 2 || page.Items[0].Name != "100" || page.Items[1].Name != "300" {
		t.Fatalf("lines = %+v, want 100 and 300", page.Items)
	}

	if rr := env.do(t, http.MethodGet, "/api/v1/lines/999", "", "", true); rr.Code != http.StatusNotFound {
		t.Errorf("unknown line status = %d, want 404", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/lines/100/state", "", "", true)
	var state map[string]string
	decodeData(t, rr, &state)
	if state["state"] != sccp.DeviceStateUnavailable.String() {
		t.Errorf("state before registration = %q, want %q", state["state"], sccp.DeviceStateUnavailable)
	}

	env.registerPhone(t)
	rr = env.do(t, http.MethodGet, "/api/v1/lines/100/state", "", "", true)
	decodeData(t, rr, &state)
	if state["state"] != sccp.DeviceStateNotInUse.String() {
		t.Errorf("state after registration = %q, want %q", state["state"], sccp.DeviceStateNotInUse)
	}
}

func TestChannels(t *testing.T) {
	env := newTestEnv(t)
	env.registerPhone(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown line", `{"dial":"999"}`, http.StatusNotFound},
		{"no device", `{"dial":"300"}`, http.StatusConflict},
		{"empty dial", `{"dial":""}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/v1/channels", "application/json", tt.body, true)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}

	rr := env.do(t, http.MethodPost, "/api/v1/channels", "application/json", `{"dial":"100"}`, true)
	if rr.Code != http.StatusCreated {
		t.Fatalf("request status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var ch sccp.ChannelSnapshot
	decodeData(t, rr, &ch)
	if ch.Line != "100" || ch.State != sccp.StateRinging.String() {
		t.Errorf("channel = %+v, want ringing on 100", ch)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/channels", "", "", true)
	var page struct {
		Total int `json:"total"`
	}
	decodeData(t, rr, &page)
	if page.Total != 1 {
		t.Errorf("channels total = %d, want 1", page.Total)
	}

	id := strconv.FormatUint(uint64(ch.CallID), 10)
	if rr := env.do(t, http.MethodGet, "/api/v1/channels/"+id, "", "", true); rr.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/v1/channels/"+id, "", "", true); rr.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/v1/channels/"+id, "", "", true); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/v1/channels/abc", "", "", true); rr.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rr.Code)
	}
}

func TestGetConfig(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/config", "", "", true)
	var p sccp.Provisioning
	decodeData(t, rr, &p)
	if len(p.Lines) != 2 || len(p.Devices) != 1 {
		t.Fatalf("config = %+v, want 2 lines and 1 device", p)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	req.Header.Set("Accept", "application/yaml")
	yrr := httptest.NewRecorder()
	env.server.ServeHTTP(yrr, req)
	if ct := yrr.Header().Get("Content-Type"); ct != yamlContentType {
		t.Fatalf("Content-Type = %q, want %q", ct, yamlContentType)
	}
	var yp sccp.Provisioning
	if err := yaml.Unmarshal(yrr.Body.Bytes(), &yp); err != nil {
		t.Fatalf("decoding yaml: %v", err)
	}
	if len(yp.Lines) != 2 || yp.Devices[0].ID != testDevice {
		t.Errorf("yaml config = %+v, want the stored document", yp)
	}
}

func TestPutConfig(t *testing.T) {
	env := newTestEnv(t)
	env.registerPhone(t)

	doc := `
lines:
  - name: "100"
  - name: "400"
    label: Support
devices: []
`
	rr := env.do(t, http.MethodPut, "/api/v1/config", "application/yaml", doc, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var resp configResponse
	decodeData(t, rr, &resp)
	if resp.Revision != 1 {
		t.Errorf("revision = %d, want 1", resp.Revision)
	}
	if len(resp.Applied.DevicesRemoved) != 1 || resp.Applied.DevicesRemoved[0] != testDevice {
		t.Errorf("devices removed = %v, want [%s]", resp.Applied.DevicesRemoved, testDevice)
	}
	if env.dispatcher.Store().Line("400") == nil {
		t.Error("line 400 not applied")
	}
	if env.dispatcher.Store().Line("300") != nil {
		t.Error("line 300 still present")
	}

	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(sccp.Provisioning{Lines: []sccp.LineConfig{{Name: "500"}}}) //nolint:errcheck
	rr = env.do(t, http.MethodPut, "/api/v1/config", "application/json", buf.String(), true)
	if rr.Code != http.StatusOK {
		t.Fatalf("json put status = %d, want 200", rr.Code)
	}
	decodeData(t, rr, &resp)
	if resp.Revision != 2 {
		t.Errorf("revision = %d, want 2", resp.Revision)
	}
}

func TestPutConfig_Rejected(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"duplicate line", "application/json", `{"lines":[{"name":"1"},{"name":"1"}]}`, http.StatusUnprocessableEntity},
		{"unknown line on button", "application/json", `{"devices":[{"id":"SEP1","buttons":[{"type":"line","line":"9"}]}]}`, http.StatusUnprocessableEntity},
		{"unknown yaml key", "application/yaml", "lines: []\nextensions: []\n", http.StatusBadRequest},
		{"two yaml documents", "application/yaml", "lines: []\n---\nlines: []\n", http.StatusBadRequest},
		{"empty body", "application/json", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPut, "/api/v1/config", tt.contentType, tt.body, true)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}

	if env.dispatcher.Store().Line("100") == nil {
		t.Error("rejected config changed the running registries")
	}
}
