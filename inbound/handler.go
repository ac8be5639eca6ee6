package inbound

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-shopinstall/core"
)

const (
	PathLanding = "/"
	PathInstall = "/install"
	PathHealth  = "/healthz"
	PathMetrics = "/metrics"
)

type Handler struct {
	installer core.Installer
	config    core.Config
	logger    core.Logger
	metrics   http.Handler
	appName   string
}

type HandlerOption func(*Handler)

func WithLogger(logger core.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMetricsHandler mounts handler on /metrics.
func WithMetricsHandler(handler http.Handler) HandlerOption {
	return func(h *Handler) {
		h.metrics = handler
	}
}

func WithAppName(name string) HandlerOption {
	return func(h *Handler) {
		if strings.TrimSpace(name) != "" {
			h.appName = strings.TrimSpace(name)
		}
	}
}

func NewHandler(installer core.Installer, opts ...HandlerOption) *Handler {
	handler := &Handler{
		installer: installer,
		logger:    glog.Nop(),
		appName:   "Shop Install",
	}
	if installer != nil {
		handler.config = installer.Config()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	handler.logger = glog.Ensure(handler.logger)
	return handler
}

// RegisterRoutes mounts the install routes. Methods other than GET and HEAD
// are answered with 405 by the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleLanding)
	mux.HandleFunc("GET "+PathInstall, h.handleInstall)
	mux.HandleFunc("GET "+h.callbackPath(), h.handleCallback)
	mux.HandleFunc("GET "+PathHealth, h.handleHealth)
	if h.metrics != nil {
		mux.Handle("GET "+PathMetrics, h.metrics)
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func (h *Handler) handleLanding(w http.ResponseWriter, r *http.Request) {
	h.render(r.Context(), w, http.StatusOK, "index.html", landingView{
		AppName:     h.appName,
		InstallPath: PathInstall,
		ShopHint:    "your-development-shop.myshopify.com",
	})
}

func (h *Handler) handleInstall(w http.ResponseWriter, r *http.Request) {
	shop := r.URL.Query().Get("shop")
	if strings.TrimSpace(shop) == "" {
		http.Error(w, missingShopMessage, http.StatusBadRequest)
		return
	}

	response, err := h.installer.BeginInstall(r.Context(), core.BeginInstallRequest{Shop: shop})
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, h.sessionCookie(response.SessionID, response.ExpiresAt))
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, response.URL, http.StatusFound)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	if cookie, err := r.Cookie(h.cookieName()); err == nil {
		sessionID = cookie.Value
	}

	completion, err := h.installer.CompleteInstall(r.Context(), core.CompleteInstallRequest{
		SessionID: sessionID,
		Query:     r.URL.Query(),
	})
	w.Header().Set("Cache-Control", "no-store")
	if err != nil {
		if sessionID != "" && stateConsumed(err) {
			http.SetCookie(w, h.expiredCookie())
		}
		if core.IsTextCode(err, core.ServiceErrorExchangeFailed) {
			http.Redirect(w, r, h.baseURL(), http.StatusFound)
			return
		}
		writeError(w, err)
		return
	}

	http.SetCookie(w, h.expiredCookie())
	h.render(r.Context(), w, http.StatusOK, "success.html", successView{
		AppName:     h.appName,
		Shop:        completion.Shop,
		AccessToken: completion.Credential.AccessToken,
		Scope:       strings.Join(completion.Credential.Scope, ","),
		ExpiresIn:   completion.Credential.ExpiresIn,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) render(ctx context.Context, w http.ResponseWriter, status int, name string, view any) {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name, view); err != nil {
		renderErr := renderFailure(err, name)
		h.logger.WithContext(ctx).Error("render failed", "template", name, "error", renderErr)
		writeError(w, renderErr)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body.Bytes())
}

func (h *Handler) sessionCookie(sessionID string, expiresAt time.Time) *http.Cookie {
	maxAge := int(h.config.State.TTL / time.Second)
	if maxAge <= 0 {
		maxAge = int(time.Until(expiresAt) / time.Second)
	}
	return &http.Cookie{
		Name:     h.cookieName(),
		Value:    sessionID,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.config.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) expiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     h.cookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) cookieName() string {
	if name := strings.TrimSpace(h.config.State.CookieName); name != "" {
		return name
	}
	return core.DefaultConfig().State.CookieName
}

func (h *Handler) callbackPath() string {
	if path := strings.TrimSpace(h.config.CallbackPath); path != "" {
		return path
	}
	return core.DefaultConfig().CallbackPath
}

func (h *Handler) baseURL() string {
	if base := strings.TrimSpace(h.config.BaseURL); base != "" {
		return base
	}
	return PathLanding
}

// stateConsumed reports whether the callback got far enough to use up the session.
func stateConsumed(err error) bool {
	return core.IsTextCode(err, core.ServiceErrorStateMismatch) ||
		core.IsTextCode(err, core.ServiceErrorExchangeFailed)
}
