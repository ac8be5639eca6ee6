package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const testValidHMAC = "valid-hmac"

type testProvider struct {
	exchangeCalls atomic.Int32
	exchangeErr   error
	authorizeErr  error
	lastAuthorize AuthorizationRequest
	mu            sync.Mutex
}

func (p *testProvider) ID() string { return "test" }

func (p *testProvider) NormalizeShopDomain(raw string) (string, error) {
	shop := strings.ToLower(strings.TrimSpace(raw))
	if shop != "" && !strings.Contains(shop, ".") {
		shop += ".myshopify.com"
	}
	return p.ValidateShopDomain(shop)
}

func (p *testProvider) ValidateShopDomain(raw string) (string, error) {
	shop := strings.TrimSpace(raw)
	if shop == "" || !strings.HasSuffix(shop, ".myshopify.com") || strings.Count(shop, ".") != 2 {
		return "", fmt.Errorf("test provider: invalid shop %q", raw)
	}
	return shop, nil
}

func (p *testProvider) AuthorizeURL(req AuthorizationRequest) (string, error) {
	p.mu.Lock()
	p.lastAuthorize = req
	p.mu.Unlock()
	if p.authorizeErr != nil {
		return "", p.authorizeErr
	}
	query := url.Values{}
	query.Set("state", req.State)
	query.Set("redirect_uri", req.RedirectURI)
	query.Set("scope", strings.Join(req.Scopes, ","))
	return "https://" + req.Shop + "/admin/oauth/authorize?" + query.Encode(), nil
}

func (p *testProvider) VerifyCallback(_ context.Context, payload CallbackPayload) error {
	if payload.HMAC != testValidHMAC {
		return fmt.Errorf("test provider: bad signature")
	}
	return nil
}

func (p *testProvider) ExchangeCode(_ context.Context, req ExchangeRequest) (AccessCredential, error) {
	p.exchangeCalls.Add(1)
	if p.exchangeErr != nil {
		return AccessCredential{}, p.exchangeErr
	}
	return AccessCredential{
		AccessToken: "tok_" + req.Code,
		Scope:       []string{"read_products"},
	}, nil
}

func (p *testProvider) authorizeRequest() AuthorizationRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAuthorize
}

func testConfig() Config {
	return Config{
		BaseURL: "https://app.example",
		Credentials: CredentialsConfig{
			ClientID:     "client_1",
			ClientSecret: "secret_1",
			Scopes:       []string{"read_products"},
		},
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func callbackQuery(shop, code, state, hmac string) url.Values {
	query := url.Values{}
	if shop != "" {
		query.Set("shop", shop)
	}
	if code != "" {
		query.Set("code", code)
	}
	if state != "" {
		query.Set("state", state)
	}
	if hmac != "" {
		query.Set("hmac", hmac)
	}
	return query
}

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) hasCounter(name string, tags map[string]string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, counter := range m.counters {
		if counter.name != name {
			continue
		}
		matched := true
		for key, value := range tags {
			if counter.tags[key] != value {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

type stubLoggerProvider struct {
	logger Logger
}

func (p stubLoggerProvider) GetLogger(string) Logger {
	return p.logger
}
