package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"rinnai_bridge/internal/logger"
)

type vendorStub struct {
	t           *testing.T
	loginCalls  int64
	lastLoginQS map[string]string
	loginResp   string

	listResp  string
	stateResp string
	lastAuth  string
}

func newVendorStub(t *testing.T) (*vendorStub, *httptest.Server) {
	t.Helper()
	stub := &vendorStub{
		t:         t,
		loginResp: `{"success":true,"data":{"token":"tok-123"}}`,
		listResp:  `{"success":true,"data":{"list":[{"id":"dev-1","name":"Heater","mac":"AABB","deviceType":"SR","authCode":"ac","classID":"cid","online":"1"}]}}`,
		stateResp: `{"success":true,"data":{"operationMode":"3","heatingTempSettingNM":45,"enabled":true}}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case loginPath:
			atomic.AddInt64(&stub.loginCalls, 1)
			stub.lastLoginQS = map[string]string{}
			for k := range r.URL.Query() {
				stub.lastLoginQS[k] = r.URL.Query().Get(k)
			}
			w.Write([]byte(stub.loginResp))
		case deviceListPath:
			stub.lastAuth = r.Header.Get("Authorization")
			w.Write([]byte(stub.listResp))
		case deviceStatePath:
			stub.lastAuth = r.Header.Get("Authorization")
			w.Write([]byte(stub.stateResp))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return stub, srv
}

func newHTTPClient(t *testing.T, base string) *Client {
	t.Helper()
	return NewClient(Config{
		Username: "alice",
		Password: "secret",
		APIBase:  base,
		TokenTTL: time.Hour,
	}, logger.Get(logger.ErrorLevel))
}

func TestLogin_SendsHashedCredentials(t *testing.T) {
	stub, srv := newVendorStub(t)
	c := newHTTPClient(t, srv.URL)

	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}

	qs := stub.lastLoginQS
	if qs["username"] != "alice" {
		t.Fatalf("username = %q", qs["username"])
	}
	// MD5("secret"), uppercased. The plain password must never hit the wire.
	if qs["password"] != "5EBE2294ECD0E0F08EAB7690D2A6EE69" {
		t.Fatalf("password = %q", qs["password"])
	}
	if qs["accessKey"] == "" {
		t.Fatalf("accessKey missing")
	}
}

func TestLogin_TokenCachedUntilTTL(t *testing.T) {
	stub, srv := newVendorStub(t)
	c := newHTTPClient(t, srv.URL)

	for i := 0; i < 3; i++ {
		if err := c.Login(context.Background()); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}
	if n := atomic.LoadInt64(&stub.loginCalls); n != 1 {
		t.Fatalf("login calls = %d, want 1", n)
	}

	// An expired window forces a fresh login.
	c.loginMu.Lock()
	c.lastLogin = time.Now().Add(-2 * time.Hour)
	c.loginMu.Unlock()
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("relogin: %v", err)
	}
	if n := atomic.LoadInt64(&stub.loginCalls); n != 2 {
		t.Fatalf("login calls after expiry = %d, want 2", n)
	}
}

func TestLogin_RejectedIsAuthFailure(t *testing.T) {
	stub, srv := newVendorStub(t)
	stub.loginResp = `{"success":false,"msg":"bad credentials"}`
	c := newHTTPClient(t, srv.URL)

	err := c.Login(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
}

func TestLogin_EmptyTokenIsAuthFailure(t *testing.T) {
	stub, srv := newVendorStub(t)
	stub.loginResp = `{"success":true,"data":{"token":""}}`
	c := newHTTPClient(t, srv.URL)

	if err := c.Login(context.Background()); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
}

func TestFetchDeviceList(t *testing.T) {
	stub, srv := newVendorStub(t)
	c := newHTTPClient(t, srv.URL)

	list, err := c.FetchDeviceList(context.Background())
	if err != nil {
		t.Fatalf("fetch list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "dev-1" || list[0].MAC != "AABB" || list[0].OnlineMarker != "1" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if stub.lastAuth != "Bearer tok-123" {
		t.Fatalf("auth header = %q", stub.lastAuth)
	}
}

func TestFetchDeviceList_UsesTokenOfOwnLogin(t *testing.T) {
	stub, srv := newVendorStub(t)
	c := newHTTPClient(t, srv.URL)

	if _, err := c.FetchDeviceList(context.Background()); err != nil {
		t.Fatalf("fetch list: %v", err)
	}
	if stub.lastAuth != "Bearer tok-123" {
		t.Fatalf("auth header = %q", stub.lastAuth)
	}

	// The vendor rotates the token; after expiry the request must carry
	// the token of the login it just performed, in one step.
	stub.loginResp = `{"success":true,"data":{"token":"tok-456"}}`
	c.loginMu.Lock()
	c.lastLogin = time.Now().Add(-2 * time.Hour)
	c.loginMu.Unlock()

	if _, err := c.FetchDeviceList(context.Background()); err != nil {
		t.Fatalf("fetch list after rotation: %v", err)
	}
	if stub.lastAuth != "Bearer tok-456" {
		t.Fatalf("auth header after rotation = %q", stub.lastAuth)
	}
}

func TestFetchDeviceState_StringifiesMixedTypes(t *testing.T) {
	_, srv := newVendorStub(t)
	c := newHTTPClient(t, srv.URL)

	fields, err := c.FetchDeviceState(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("fetch state: %v", err)
	}
	// Numeric and boolean values arrive as strings; firmwares disagree on
	// the JSON types.
	if fields["operationMode"] != "3" {
		t.Fatalf("operationMode = %q", fields["operationMode"])
	}
	if fields["heatingTempSettingNM"] != "45" {
		t.Fatalf("heatingTempSettingNM = %q", fields["heatingTempSettingNM"])
	}
	if fields["enabled"] != "true" {
		t.Fatalf("enabled = %q", fields["enabled"])
	}
}

func TestFetchDeviceState_VendorError(t *testing.T) {
	stub, srv := newVendorStub(t)
	stub.stateResp = `{"success":false,"msg":"device busy"}`
	c := newHTTPClient(t, srv.URL)

	if _, err := c.FetchDeviceState(context.Background(), "dev-1"); err == nil {
		t.Fatalf("expected error")
	} else if errors.Is(err, ErrAuthFailed) {
		t.Fatalf("non-login failures must not read as auth failures: %v", err)
	}
}

func TestStringifyFields_FractionsAndObjects(t *testing.T) {
	var data map[string]any
	if err := json.Unmarshal([]byte(`{"a":1.5,"b":{"x":1},"c":null}`), &data); err != nil {
		t.Fatal(err)
	}
	out := stringifyFields(data)
	if out["a"] != "1.5" {
		t.Fatalf("a = %q", out["a"])
	}
	if out["b"] != `{"x":1}` {
		t.Fatalf("b = %q", out["b"])
	}
	if _, ok := out["c"]; ok {
		t.Fatalf("null values must be skipped")
	}
}
