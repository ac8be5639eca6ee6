// Package viperconfig feeds flags, environment variables and config files
// resolved by viper into the core configuration pipeline.
package viperconfig

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/goliatone/go-shopinstall/core"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "SHOPINSTALL"

// Keys understood by the loader. Flags registered by RegisterFlags use the
// same names; environment variables use EnvPrefix and underscores.
const (
	KeyServiceName     = "service-name"
	KeyBaseURL         = "base-url"
	KeyCallbackPath    = "callback-path"
	KeyClientID        = "client-id"
	KeyClientSecret    = "client-secret"
	KeyScopes          = "scopes"
	KeyShopSuffixes    = "shop-suffixes"
	KeyAccessMode      = "access-mode"
	KeyStateTTL        = "state-ttl"
	KeyCookieName      = "cookie-name"
	KeyExchangeTimeout = "exchange-timeout"
	KeyCallbackMaxAge  = "callback-max-age"
	KeyListen          = "listen"
	KeyMetrics         = "metrics"
	KeyStoreDriver     = "store-driver"
	KeyStoreDSN        = "store-dsn"
)

// legacyEnv maps keys to the variable names used by existing app deployments.
var legacyEnv = map[string]string{
	KeyBaseURL:      "BASE_URL",
	KeyClientID:     "SHOPIFY_API_KEY",
	KeyClientSecret: "SHOPIFY_API_SECRET",
	KeyScopes:       "SHOPIFY_SCOPES",
}

type Loader struct {
	v *viper.Viper
}

// New configures v for environment lookup and returns a loader over it.
func New(v *viper.Viper) *Loader {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key := range legacyEnv {
		_ = v.BindEnv(append([]string{key}, envNames(key)...)...)
	}
	return &Loader{v: v}
}

// RegisterFlags adds the configuration flags to flags and binds them.
func (l *Loader) RegisterFlags(flags *pflag.FlagSet) error {
	defaults := core.DefaultConfig()
	flags.String(KeyServiceName, "", "service name used in logs and metrics")
	flags.String(KeyBaseURL, "", "public base URL of the app (e.g. https://app.example.com)")
	flags.String(KeyCallbackPath, "", fmt.Sprintf("callback path appended to the base URL (default %s)", defaults.CallbackPath))
	flags.String(KeyClientID, "", "Shopify API key")
	flags.String(KeyClientSecret, "", "Shopify API secret")
	flags.String(KeyScopes, "", "comma separated scopes to request")
	flags.String(KeyShopSuffixes, "", "comma separated allowed shop domain suffixes")
	flags.String(KeyAccessMode, "", "offline or per-user")
	flags.Duration(KeyStateTTL, 0, fmt.Sprintf("lifetime of a pending install (default %s)", defaults.State.TTL))
	flags.String(KeyCookieName, "", "install session cookie name")
	flags.Duration(KeyExchangeTimeout, 0, fmt.Sprintf("token exchange timeout (default %s)", defaults.Exchange.Timeout))
	flags.Duration(KeyCallbackMaxAge, 0, "reject callbacks whose timestamp is older than this (0 disables)")
	flags.String(KeyListen, "", fmt.Sprintf("listen address (default %s)", defaults.HTTP.Listen))
	flags.Bool(KeyMetrics, false, "expose prometheus metrics on /metrics")
	flags.String(KeyStoreDriver, "", "install state store: memory, sqlite3 or postgres")
	flags.String(KeyStoreDSN, "", "database DSN for sql state stores")

	var bindErr error
	flags.VisitAll(func(flag *pflag.Flag) {
		if bindErr != nil {
			return
		}
		if err := l.v.BindPFlag(flag.Name, flag); err != nil {
			bindErr = fmt.Errorf("viperconfig: bind flag %q: %w", flag.Name, err)
		}
	})
	return bindErr
}

// ReadDotEnv merges a KEY=VALUE file. Missing files are ignored unless required.
func (l *Loader) ReadDotEnv(path string, required bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	dotenv := viper.New()
	dotenv.SetConfigFile(path)
	dotenv.SetConfigType("env")
	if err := dotenv.ReadInConfig(); err != nil {
		if !required && isNotFound(err) {
			return nil
		}
		return fmt.Errorf("viperconfig: read %s: %w", path, err)
	}
	for _, key := range allKeys() {
		for _, name := range envNames(key) {
			name = strings.ToLower(name)
			if dotenv.IsSet(name) {
				l.v.SetDefault(key, dotenv.Get(name))
				break
			}
		}
	}
	return nil
}

// ReadConfigFile merges a structured config file (yaml, json, toml).
func (l *Loader) ReadConfigFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	l.v.SetConfigFile(path)
	if err := l.v.MergeInConfig(); err != nil {
		return fmt.Errorf("viperconfig: read %s: %w", path, err)
	}
	return nil
}

// LoadRaw returns only the values that were set so lower layers keep their defaults.
func (l *Loader) LoadRaw(context.Context) (map[string]any, error) {
	v := l.v
	raw := map[string]any{}
	section := func(name string) map[string]any {
		if existing, ok := raw[name].(map[string]any); ok {
			return existing
		}
		created := map[string]any{}
		raw[name] = created
		return created
	}
	setString := func(target map[string]any, field, key string) {
		if value := strings.TrimSpace(v.GetString(key)); value != "" {
			target[field] = value
		}
	}
	setDuration := func(target map[string]any, field, key string) error {
		if !v.IsSet(key) {
			return nil
		}
		value := v.GetDuration(key)
		if value < 0 {
			return fmt.Errorf("viperconfig: %s must not be negative", key)
		}
		if value > 0 {
			target[field] = value
		}
		return nil
	}

	setString(raw, "service_name", KeyServiceName)
	setString(raw, "base_url", KeyBaseURL)
	setString(raw, "callback_path", KeyCallbackPath)

	setString(section("credentials"), "client_id", KeyClientID)
	setString(section("credentials"), "client_secret", KeyClientSecret)
	if scopes := splitList(v.GetString(KeyScopes)); len(scopes) > 0 {
		section("credentials")["scopes"] = scopes
	}

	if suffixes := splitList(v.GetString(KeyShopSuffixes)); len(suffixes) > 0 {
		section("shop")["domain_suffixes"] = suffixes
	}
	setString(section("shop"), "access_mode", KeyAccessMode)

	if err := setDuration(section("state"), "ttl", KeyStateTTL); err != nil {
		return nil, err
	}
	setString(section("state"), "cookie_name", KeyCookieName)
	if err := setDuration(section("exchange"), "timeout", KeyExchangeTimeout); err != nil {
		return nil, err
	}
	if err := setDuration(section("callback"), "max_age", KeyCallbackMaxAge); err != nil {
		return nil, err
	}

	setString(section("http"), "listen", KeyListen)
	if v.GetBool(KeyMetrics) {
		section("http")["metrics"] = true
	}
	setString(section("store"), "driver", KeyStoreDriver)
	setString(section("store"), "dsn", KeyStoreDSN)

	for name, value := range raw {
		if nested, ok := value.(map[string]any); ok && len(nested) == 0 {
			delete(raw, name)
		}
	}
	return raw, nil
}

func splitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// envNames lists the variable names for key in precedence order.
func envNames(key string) []string {
	names := []string{EnvPrefix + "_" + envName(key)}
	if legacy, ok := legacyEnv[key]; ok {
		names = append(names, legacy)
	}
	return names
}

func allKeys() []string {
	return []string{
		KeyServiceName, KeyBaseURL, KeyCallbackPath, KeyClientID, KeyClientSecret,
		KeyScopes, KeyShopSuffixes, KeyAccessMode, KeyStateTTL, KeyCookieName,
		KeyExchangeTimeout, KeyCallbackMaxAge, KeyListen, KeyMetrics, KeyStoreDriver, KeyStoreDSN,
	}
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

var _ core.RawConfigLoader = (*Loader)(nil)
