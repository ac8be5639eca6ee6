package inbound

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-shopinstall/core"
	"github.com/goliatone/go-shopinstall/providers/shopify"
)

const (
	testClientID     = "client_1"
	testClientSecret = "secret_1"
	testBaseURL      = "https://app.test"
)

type tokenStub struct {
	server   *httptest.Server
	requests atomic.Int32
	status   int
	body     string
}

func newTokenStub(t *testing.T, status int, body string) *tokenStub {
	t.Helper()
	stub := &tokenStub{status: status, body: body}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.requests.Add(1)
		payload := map[string]string{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["client_id"] != testClientID || payload["client_secret"] != testClientSecret || payload["code"] == "" {
			t.Errorf("unexpected exchange payload %#v", payload)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(stub.status)
		_, _ = w.Write([]byte(stub.body))
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

type harness struct {
	handler http.Handler
	stub    *tokenStub
	config  core.Config
}

func newHarness(t *testing.T, stub *tokenStub) *harness {
	t.Helper()
	provider, err := shopify.New(shopify.Config{
		ClientID:       testClientID,
		ClientSecret:   testClientSecret,
		DomainSuffixes: []string{".example.com"},
		HTTPClient:     stub.server.Client(),
		BuildTokenURL: func(string) (string, error) {
			return stub.server.URL + "/admin/oauth/access_token", nil
		},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	service, err := core.NewService(core.Config{
		BaseURL: testBaseURL,
		Credentials: core.CredentialsConfig{
			ClientID:     testClientID,
			ClientSecret: testClientSecret,
			Scopes:       []string{"read_products"},
		},
		Shop: core.ShopConfig{DomainSuffixes: []string{".example.com"}},
	}, core.WithProvider(provider))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &harness{
		handler: NewHandler(service).Routes(),
		stub:    stub,
		config:  service.Config(),
	}
}

func (h *harness) do(t *testing.T, method, target string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec.Result()
}

// install runs /install and returns the session cookie and the state from the redirect.
func (h *harness) install(t *testing.T, shop string) (*http.Cookie, string) {
	t.Helper()
	res := h.do(t, http.MethodGet, "/install?shop="+url.QueryEscape(shop))
	if res.StatusCode != http.StatusFound {
		t.Fatalf("expected 302 from install, got %d", res.StatusCode)
	}
	location, err := url.Parse(res.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	var session *http.Cookie
	for _, cookie := range res.Cookies() {
		if cookie.Name == h.config.State.CookieName {
			session = cookie
		}
	}
	if session == nil || session.Value == "" {
		t.Fatalf("expected session cookie from install")
	}
	return session, location.Query().Get("state")
}

func signedCallback(shop, code, state string) url.Values {
	params := url.Values{}
	params.Set("shop", shop)
	params.Set("code", code)
	params.Set("state", state)
	params.Set("timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	params.Set("hmac", shopify.SignCallback(testClientSecret, params))
	return params
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestInstall_RedirectsToAuthorizeURL(t *testing.T) {
	h := newHarness(t, newTokenStub(t, http.StatusOK, `{"access_token":"tok","scope":"read_products"}`))

	res := h.do(t, http.MethodGet, "/install?shop=foo.example.com")
	if res.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", res.StatusCode)
	}
	location, err := url.Parse(res.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if location.Host != "foo.example.com" || location.Path != "/admin/oauth/authorize" {
		t.Fatalf("unexpected authorize endpoint %q", location)
	}
	query := location.Query()
	if query.Get("client_id") != testClientID {
		t.Fatalf("expected client_id %q, got %q", testClientID, query.Get("client_id"))
	}
	if query.Get("scope") != "read_products" {
		t.Fatalf("expected scope read_products, got %q", query.Get("scope"))
	}
	if query.Get("state") == "" {
		t.Fatalf("expected non-empty state")
	}
	if query.Get("redirect_uri") != testBaseURL+"/callback" {
		t.Fatalf("expected redirect_uri %q, got %q", testBaseURL+"/callback", query.Get("redirect_uri"))
	}

	cookies := res.Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	cookie := cookies[0]
	if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("expected hardened session cookie, got %#v", cookie)
	}
	if cookie.MaxAge != int(h.config.State.TTL/time.Second) {
		t.Fatalf("expected max-age of state ttl, got %d", cookie.MaxAge)
	}
}

func TestInstall_StatesAreUniquePerAttempt(t *testing.T) {
	h := newHarness(t, newTokenStub(t, http.StatusOK, `{}`))
	seen := map[string]struct{}{}
	for i := 0; i < 20; i++ {
		_, state := h.install(t, "foo.example.com")
		if len(state) < 22 {
			t.Fatalf("expected at least 128 bits of encoded state, got %q", state)
		}
		if _, ok := seen[state]; ok {
			t.Fatalf("state %q repeated", state)
		}
		seen[state] = struct{}{}
	}
}

func TestInstall_MissingShop(t *testing.T) {
	h := newHarness(t, newTokenStub(t, http.StatusOK, `{}`))

	res := h.do(t, http.MethodGet, "/install")
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.StatusCode)
	}
	if body := readBody(t, res); !strings.Contains(body, "Missing shop parameter") {
		t.Fatalf("expected missing shop hint, got %q", body)
	}
}

func TestInstall_RejectsForeignShop(t *testing.T) {
	h := newHarness(t, newTokenStub(t, http.StatusOK, `{}`))

	for _, shop := range []string{"evil.com", "foo.example.com.evil.com", "169.254.169.254"} {
		res := h.do(t, http.MethodGet, "/install?shop="+url.QueryEscape(shop))
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", shop, res.StatusCode)
		}
		if location := res.Header.Get("Location"); location != "" {
			t.Fatalf("expected no redirect for %q, got %q", shop, location)
		}
	}
}

func TestInstall_RejectsNonGet(t *testing.T) {
	h := newHarness(t, newTokenStub(t, http.StatusOK, `{}`))

	for _, path := range []string{"/install?shop=foo.example.com", "/callback"} {
		res := h.do(t, http.MethodPost, path)
		if res.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405 for POST %s, got %d", path, res.StatusCode)
		}
	}
}

func TestCallback_MissingParameters(t *testing.T) {
	h := newHarness(t, newTokenStub(t, http.StatusOK, `{}`))

	for _, target := range []string{"/callback", "/callback?shop=foo.example.com", "/callback?code=abc"} {
		res := h.do(t, http.MethodGet, target)
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", target, res.StatusCode)
		}
		if body := readBody(t, res); !strings.Contains(body, "Required parameters missing") {
			t.Fatalf("expected missing parameter text for %s, got %q", target, body)
		}
	}
	if h.stub.requests.Load() != 0 {
		t.Fatalf("expected no exchange requests")
	}
}

func TestCallback_InvalidSignature(t *testing.T) {
	h := newHarness(t, newTokenStub(t, http.StatusOK, `{"access_token":"tok","scope":"read_products"}`))
	cookie, state := h.install(t, "foo.example.com")

	params := signedCallback("foo.example.com", "code_1", state)
	params.Set("hmac", strings.Repeat("0", 64))
	res := h.do(t, http.MethodGet, "/callback?"+params.Encode(), cookie)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.StatusCode)
	}
	if body := readBody(t, res); !strings.Contains(body, "HMAC validation failed") {
		t.Fatalf("expected hmac failure text, got %q", body)
	}

	tampered := signedCallback("foo.example.com", "code_1", state)
	tampered.Set("code", "code_2")
	res = h.do(t, http.MethodGet, "/callback?"+tampered.Encode(), cookie)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for tampered code, got %d", res.StatusCode)
	}
	if h.stub.requests.Load() != 0 {
		t.Fatalf("expected no exchange requests, got %d", h.stub.requests.Load())
	}
}

func TestCallback_StateMismatch(t *testing.T) {
	h := newHarness(t, newTokenStub(t, http.StatusOK, `{"access_token":"tok","scope":"read_products"}`))
	cookie, _ := h.install(t, "foo.example.com")

	params := signedCallback("foo.example.com", "code_1", "forged-state")
	res := h.do(t, http.MethodGet, "/callback?"+params.Encode(), cookie)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.StatusCode)
	}
	if h.stub.requests.Load() != 0 {
		t.Fatalf("expected no exchange requests, got %d", h.stub.requests.Load())
	}
}

func TestCallback_MissingSessionCookie(t *testing.T) {
	h := newHarness(t, newTokenStub(t, http.StatusOK, `{"access_token":"tok","scope":"read_products"}`))
	_, state := h.install(t, "foo.example.com")

	params := signedCallback("foo.example.com", "code_1", state)
	res := h.do(t, http.MethodGet, "/callback?"+params.Encode())
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without session, got %d", res.StatusCode)
	}
}

func TestCallback_ShopMustMatchSession(t *testing.T) {
	h := newHarness(t, newTokenStub(t, http.StatusOK, `{"access_token":"tok","scope":"read_products"}`))
	cookie, state := h.install(t, "foo.example.com")

	params := signedCallback("bar.example.com", "code_1", state)
	res := h.do(t, http.MethodGet, "/callback?"+params.Encode(), cookie)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for shop mismatch, got %d", res.StatusCode)
	}
	if h.stub.requests.Load() != 0 {
		t.Fatalf("expected no exchange requests")
	}
}

func TestCallback_Success(t *testing.T) {
	h := newHarness(t, newTokenStub(t, http.StatusOK, `{"access_token":"tok","scope":"read_products"}`))
	cookie, state := h.install(t, "foo.example.com")

	params := signedCallback("foo.example.com", "code_1", state)
	res := h.do(t, http.MethodGet, "/callback?"+params.Encode(), cookie)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	body := readBody(t, res)
	if !strings.Contains(body, "tok") {
		t.Fatalf("expected access token in body, got %q", body)
	}
	if !strings.Contains(body, "read_products") {
		t.Fatalf("expected granted scope in body, got %q", body)
	}
	if h.stub.requests.Load() != 1 {
		t.Fatalf("expected one exchange request, got %d", h.stub.requests.Load())
	}

	cleared := false
	for _, c := range res.Cookies() {
		if c.Name == h.config.State.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected session cookie to be cleared")
	}

	replay := h.do(t, http.MethodGet, "/callback?"+params.Encode(), cookie)
	if replay.StatusCode != http.StatusForbidden {
		t.Fatalf("expected replayed callback to be rejected with 403, got %d", replay.StatusCode)
	}
	if h.stub.requests.Load() != 1 {
		t.Fatalf("expected replay not to reach the exchange, got %d requests", h.stub.requests.Load())
	}
}

func TestCallback_AcceptsMixedCaseShop(t *testing.T) {
	h := newHarness(t, newTokenStub(t, http.StatusOK, `{"access_token":"tok","scope":"read_products"}`))
	cookie, state := h.install(t, "Foo.example.com")

	params := signedCallback("Foo.example.com", "code_1", state)
	res := h.do(t, http.MethodGet, "/callback?"+params.Encode(), cookie)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for mixed case shop, got %d: %s", res.StatusCode, readBody(t, res))
	}
	if body := readBody(t, res); !strings.Contains(body, "foo.example.com") {
		t.Fatalf("expected lowercased shop in success page, got %q", body)
	}
}

func TestCallback_ExchangeFailureRedirectsToBase(t *testing.T) {
	h := newHarness(t, newTokenStub(t, http.StatusInternalServerError, `{"errors":"boom"}`))
	cookie, state := h.install(t, "foo.example.com")

	params := signedCallback("foo.example.com", "code_1", state)
	res := h.do(t, http.MethodGet, "/callback?"+params.Encode(), cookie)
	if res.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", res.StatusCode)
	}
	if location := res.Header.Get("Location"); location != testBaseURL {
		t.Fatalf("expected redirect to base url, got %q", location)
	}
	if h.stub.requests.Load() != 1 {
		t.Fatalf("expected one exchange request, got %d", h.stub.requests.Load())
	}
}

func TestCallback_ConcurrentInstallsAreIsolated(t *testing.T) {
	h := newHarness(t, newTokenStub(t, http.StatusOK, `{"access_token":"tok","scope":"read_products"}`))

	const attempts = 16
	type attempt struct {
		cookie *http.Cookie
		state  string
	}
	started := make([]attempt, attempts)
	for i := range started {
		cookie, state := h.install(t, "foo.example.com")
		started[i] = attempt{cookie: cookie, state: state}
	}

	var wg sync.WaitGroup
	statuses := make([]int, attempts)
	for i := range started {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			params := signedCallback("foo.example.com", "code_"+strconv.Itoa(i), started[i].state)
			req := httptest.NewRequest(http.MethodGet, "/callback?"+params.Encode(), nil)
			req.AddCookie(started[i].cookie)
			rec := httptest.NewRecorder()
			h.handler.ServeHTTP(rec, req)
			statuses[i] = rec.Code
		}(i)
	}
	wg.Wait()

	for i, status := range statuses {
		if status != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i, status)
		}
	}
	if got := h.stub.requests.Load(); got != attempts {
		t.Fatalf("expected %d exchanges, got %d", attempts, got)
	}
}

func TestLandingAndHealth(t *testing.T) {
	h := newHarness(t, newTokenStub(t, http.StatusOK, `{}`))

	res := h.do(t, http.MethodGet, "/")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected landing 200, got %d", res.StatusCode)
	}
	if body := readBody(t, res); !strings.Contains(body, `action="/install"`) {
		t.Fatalf("expected install form, got %q", body)
	}

	res = h.do(t, http.MethodGet, "/healthz")
	if res.StatusCode != http.StatusOK || readBody(t, res) != "ok" {
		t.Fatalf("expected healthz ok")
	}

	res = h.do(t, http.MethodGet, "/metrics")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected metrics to be unmounted without handler, got %d", res.StatusCode)
	}
}

func TestMetricsHandlerIsMounted(t *testing.T) {
	stub := newTokenStub(t, http.StatusOK, `{}`)
	h := newHarness(t, stub)
	service, err := core.NewService(h.config, core.WithProvider(stubProvider{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handler := NewHandler(service, WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("metrics"))
	}))).Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "metrics" {
		t.Fatalf("expected metrics handler, got %d %q", rec.Code, rec.Body.String())
	}
}

type stubProvider struct{}

func (stubProvider) ID() string { return "stub" }

func (stubProvider) NormalizeShopDomain(raw string) (string, error) { return raw, nil }

func (stubProvider) ValidateShopDomain(raw string) (string, error) { return raw, nil }

func (stubProvider) AuthorizeURL(core.AuthorizationRequest) (string, error) {
	return "https://example.com/authorize", nil
}

func (stubProvider) VerifyCallback(context.Context, core.CallbackPayload) error { return nil }

func (stubProvider) ExchangeCode(context.Context, core.ExchangeRequest) (core.AccessCredential, error) {
	return core.AccessCredential{AccessToken: "stub"}, nil
}
