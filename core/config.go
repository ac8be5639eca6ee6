package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	defaultServiceName     = "shopinstall"
	defaultCallbackPath    = "/callback"
	defaultShopSuffix      = ".myshopify.com"
	defaultStateTTL        = 10 * time.Minute
	defaultStateCookieName = "shopinstall_session"
	defaultExchangeTimeout = 10 * time.Second
	defaultListenAddress   = ":3000"
)

const (
	StoreDriverMemory   = "memory"
	StoreDriverSQLite   = "sqlite3"
	StoreDriverPostgres = "postgres"
)

type CredentialsConfig struct {
	ClientID     string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string   `koanf:"client_secret" mapstructure:"client_secret"`
	Scopes       []string `koanf:"scopes" mapstructure:"scopes"`
}

type ShopConfig struct {
	DomainSuffixes []string `koanf:"domain_suffixes" mapstructure:"domain_suffixes"`
	AccessMode     string   `koanf:"access_mode" mapstructure:"access_mode"`
}

type StateConfig struct {
	TTL        time.Duration `koanf:"ttl" mapstructure:"ttl"`
	CookieName string        `koanf:"cookie_name" mapstructure:"cookie_name"`
}

type ExchangeConfig struct {
	Timeout time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

// CallbackConfig.MaxAge bounds the age of the signed callback timestamp. Zero disables the check.
type CallbackConfig struct {
	MaxAge time.Duration `koanf:"max_age" mapstructure:"max_age"`
}

type HTTPConfig struct {
	Listen  string `koanf:"listen" mapstructure:"listen"`
	Metrics bool   `koanf:"metrics" mapstructure:"metrics"`
}

type StoreConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
}

type Config struct {
	ServiceName  string            `koanf:"service_name" mapstructure:"service_name"`
	BaseURL      string            `koanf:"base_url" mapstructure:"base_url"`
	CallbackPath string            `koanf:"callback_path" mapstructure:"callback_path"`
	Credentials  CredentialsConfig `koanf:"credentials" mapstructure:"credentials"`
	Shop         ShopConfig        `koanf:"shop" mapstructure:"shop"`
	State        StateConfig       `koanf:"state" mapstructure:"state"`
	Exchange     ExchangeConfig    `koanf:"exchange" mapstructure:"exchange"`
	Callback     CallbackConfig    `koanf:"callback" mapstructure:"callback"`
	HTTP         HTTPConfig        `koanf:"http" mapstructure:"http"`
	Store        StoreConfig       `koanf:"store" mapstructure:"store"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:  defaultServiceName,
		CallbackPath: defaultCallbackPath,
		Credentials:  CredentialsConfig{Scopes: []string{}},
		Shop: ShopConfig{
			DomainSuffixes: []string{defaultShopSuffix},
			AccessMode:     AccessModeOffline,
		},
		State: StateConfig{
			TTL:        defaultStateTTL,
			CookieName: defaultStateCookieName,
		},
		Exchange: ExchangeConfig{Timeout: defaultExchangeTimeout},
		HTTP:     HTTPConfig{Listen: defaultListenAddress},
		Store:    StoreConfig{Driver: StoreDriverMemory},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if _, err := parseBaseURL(c.BaseURL); err != nil {
		return err
	}
	if !strings.HasPrefix(strings.TrimSpace(c.CallbackPath), "/") {
		return fmt.Errorf("core: callback_path must start with /")
	}
	if strings.TrimSpace(c.Credentials.ClientID) == "" {
		return fmt.Errorf("core: credentials.client_id is required")
	}
	if strings.TrimSpace(c.Credentials.ClientSecret) == "" {
		return fmt.Errorf("core: credentials.client_secret is required")
	}
	if len(NormalizeScopes(c.Credentials.Scopes)) == 0 {
		return fmt.Errorf("core: credentials.scopes requires at least one scope")
	}
	if len(c.Shop.DomainSuffixes) == 0 {
		return fmt.Errorf("core: shop.domain_suffixes requires at least one suffix")
	}
	for _, suffix := range c.Shop.DomainSuffixes {
		trimmed := strings.TrimSpace(suffix)
		if !strings.HasPrefix(trimmed, ".") || len(trimmed) < 3 {
			return fmt.Errorf("core: shop domain suffix %q is invalid", suffix)
		}
	}
	switch strings.TrimSpace(c.Shop.AccessMode) {
	case "", AccessModeOffline, AccessModePerUser:
	default:
		return fmt.Errorf("core: shop.access_mode %q is invalid", c.Shop.AccessMode)
	}
	if c.State.TTL <= 0 {
		return fmt.Errorf("core: state.ttl must be positive")
	}
	if strings.TrimSpace(c.State.CookieName) == "" {
		return fmt.Errorf("core: state.cookie_name is required")
	}
	if c.Exchange.Timeout <= 0 {
		return fmt.Errorf("core: exchange.timeout must be positive")
	}
	if c.Callback.MaxAge < 0 {
		return fmt.Errorf("core: callback.max_age must not be negative")
	}
	switch strings.TrimSpace(c.Store.Driver) {
	case "", StoreDriverMemory:
	case StoreDriverSQLite, StoreDriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("core: store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("core: store.driver %q is not supported", c.Store.Driver)
	}
	return nil
}

// RedirectURI is the callback URL registered with the provider.
func (c Config) RedirectURI() string {
	base, err := parseBaseURL(c.BaseURL)
	if err != nil {
		return ""
	}
	path := strings.TrimSpace(c.CallbackPath)
	if path == "" {
		path = defaultCallbackPath
	}
	return base.JoinPath(path).String()
}

// SecureCookies reports whether cookies must carry the Secure attribute.
func (c Config) SecureCookies() bool {
	base, err := parseBaseURL(c.BaseURL)
	if err != nil {
		return false
	}
	return base.Scheme == "https"
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	if strings.TrimSpace(out.Credentials.ClientSecret) != "" {
		out.Credentials.ClientSecret = "[redacted]"
	}
	if strings.TrimSpace(out.Store.DSN) != "" && out.Store.Driver == StoreDriverPostgres {
		out.Store.DSN = redactDSN(out.Store.DSN)
	}
	out.Credentials.Scopes = append([]string(nil), c.Credentials.Scopes...)
	out.Shop.DomainSuffixes = append([]string(nil), c.Shop.DomainSuffixes...)
	return out
}

// NormalizeScopes trims, lowercases and dedupes scopes keeping first-seen order.
func NormalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	seen := map[string]struct{}{}
	for _, scope := range scopes {
		for _, part := range strings.FieldsFunc(scope, isScopeSeparator) {
			normalized := strings.ToLower(strings.TrimSpace(part))
			if normalized == "" {
				continue
			}
			if _, ok := seen[normalized]; ok {
				continue
			}
			seen[normalized] = struct{}{}
			out = append(out, normalized)
		}
	}
	return out
}

func isScopeSeparator(r rune) bool {
	return r == ',' || r == ' ' || r == '\t' || r == '\n'
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("core: base_url is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("core: parse base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("core: base_url must use http or https")
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("core: base_url host is required")
	}
	if parsed.Path != "" && parsed.Path != "/" {
		// routes are mounted at the root; a prefix must be stripped upstream
		return nil, fmt.Errorf("core: base_url must not carry a path, got %q", parsed.Path)
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed, nil
}

func redactDSN(dsn string) string {
	parsed, err := url.Parse(dsn)
	if err != nil || parsed.User == nil {
		return dsn
	}
	if _, ok := parsed.User.Password(); ok {
		parsed.User = url.UserPassword(parsed.User.Username(), "redacted")
	}
	return parsed.String()
}
