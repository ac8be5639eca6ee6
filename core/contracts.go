package core

import (
	"context"
	"net/url"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	AccessModeOffline = "offline"
	AccessModePerUser = "per-user"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Provider implements the provider side of the install handshake.
type Provider interface {
	ID() string
	// NormalizeShopDomain accepts user input such as a bare store name.
	NormalizeShopDomain(raw string) (string, error)
	// ValidateShopDomain accepts only fully qualified allowed domains.
	ValidateShopDomain(raw string) (string, error)
	AuthorizeURL(req AuthorizationRequest) (string, error)
	VerifyCallback(ctx context.Context, payload CallbackPayload) error
	ExchangeCode(ctx context.Context, req ExchangeRequest) (AccessCredential, error)
}

type InstallStateStore interface {
	Save(ctx context.Context, record InstallStateRecord) error
	// Consume returns the record for the session and removes it.
	Consume(ctx context.Context, sessionID string) (InstallStateRecord, error)
}

type AuthorizationRequest struct {
	Shop        string
	State       string
	RedirectURI string
	Scopes      []string
	AccessMode  string
}

type InstallStateRecord struct {
	SessionID   string
	State       string
	Shop        string
	RedirectURI string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

type CallbackPayload struct {
	Shop      string
	Code      string
	HMAC      string
	State     string
	Timestamp string
	Params    url.Values
}

func CallbackPayloadFromQuery(query url.Values) CallbackPayload {
	params := url.Values{}
	for key, values := range query {
		params[key] = append([]string(nil), values...)
	}
	return CallbackPayload{
		Shop:      query.Get("shop"),
		Code:      query.Get("code"),
		HMAC:      query.Get("hmac"),
		State:     query.Get("state"),
		Timestamp: query.Get("timestamp"),
		Params:    params,
	}
}

type ExchangeRequest struct {
	Shop string
	Code string
}

type AccessCredential struct {
	AccessToken         string
	Scope               []string
	ExpiresIn           int64
	AssociatedUserScope []string
	AssociatedUser      map[string]any
	Raw                 map[string]any
}

type BeginInstallRequest struct {
	Shop string
	// SessionID is generated when empty.
	SessionID string
}

type BeginInstallResponse struct {
	URL       string
	Shop      string
	State     string
	SessionID string
	ExpiresAt time.Time
}

type CompleteInstallRequest struct {
	SessionID string
	Query     url.Values
}

type InstallCompletion struct {
	Shop       string
	Credential AccessCredential
}

type Installer interface {
	BeginInstall(ctx context.Context, req BeginInstallRequest) (BeginInstallResponse, error)
	CompleteInstall(ctx context.Context, req CompleteInstallRequest) (InstallCompletion, error)
	Config() Config
}
