package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// ProviderFactory builds the install provider once the configuration is resolved.
type ProviderFactory func(cfg Config, httpClient *http.Client) (Provider, error)

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	stateStore      InstallStateStore
	provider        Provider
	providerFactory ProviderFactory
	httpClient      *http.Client
	now             func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithInstallStateStore(store InstallStateStore) Option {
	return func(b *serviceBuilder) {
		b.stateStore = store
	}
}

func WithProvider(provider Provider) Option {
	return func(b *serviceBuilder) {
		b.provider = provider
	}
}

func WithProviderFactory(factory ProviderFactory) Option {
	return func(b *serviceBuilder) {
		b.providerFactory = factory
	}
}

// WithHTTPClient sets the client handed to the provider factory for token exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(b *serviceBuilder) {
		b.httpClient = client
	}
}

// WithClock overrides the time source used for state expiry and callback age checks.
func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve(defaultServiceName, nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	if mapped == nil {
		return nil
	}
	if mapped.Code == 0 {
		mapped.Code = http.StatusInternalServerError
	}
	if strings.TrimSpace(mapped.TextCode) == "" {
		mapped.TextCode = ServiceErrorInternal
	}
	return mapped
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load decodes raw values over defaults. Validation runs once all layers are merged.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw, cfgx.WithDefaults(defaults))
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}

	// list values replace lower layers instead of merging with them
	resolved.Credentials.Scopes = firstNonEmpty(runtime.Credentials.Scopes, loaded.Credentials.Scopes, defaults.Credentials.Scopes)
	resolved.Shop.DomainSuffixes = firstNonEmpty(runtime.Shop.DomainSuffixes, loaded.Shop.DomainSuffixes, defaults.Shop.DomainSuffixes)
	resolved.Credentials.Scopes = NormalizeScopes(resolved.Credentials.Scopes)

	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func firstNonEmpty(lists ...[]string) []string {
	for _, list := range lists {
		if len(list) > 0 {
			return append([]string(nil), list...)
		}
	}
	return []string{}
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(target map[string]any, key, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			target[key] = value
		}
	}
	setSection := func(key string, section map[string]any) {
		if len(section) > 0 {
			layer[key] = section
		}
	}

	setString(layer, "service_name", cfg.ServiceName)
	setString(layer, "base_url", cfg.BaseURL)
	setString(layer, "callback_path", cfg.CallbackPath)

	credentials := map[string]any{}
	setString(credentials, "client_id", cfg.Credentials.ClientID)
	setString(credentials, "client_secret", cfg.Credentials.ClientSecret)
	if includeZero || len(cfg.Credentials.Scopes) > 0 {
		credentials["scopes"] = append([]string(nil), cfg.Credentials.Scopes...)
	}
	setSection("credentials", credentials)

	shop := map[string]any{}
	if includeZero || len(cfg.Shop.DomainSuffixes) > 0 {
		shop["domain_suffixes"] = append([]string(nil), cfg.Shop.DomainSuffixes...)
	}
	setString(shop, "access_mode", cfg.Shop.AccessMode)
	setSection("shop", shop)

	state := map[string]any{}
	if includeZero || cfg.State.TTL > 0 {
		state["ttl"] = cfg.State.TTL
	}
	setString(state, "cookie_name", cfg.State.CookieName)
	setSection("state", state)

	if includeZero || cfg.Exchange.Timeout > 0 {
		layer["exchange"] = map[string]any{"timeout": cfg.Exchange.Timeout}
	}
	if includeZero || cfg.Callback.MaxAge > 0 {
		layer["callback"] = map[string]any{"max_age": cfg.Callback.MaxAge}
	}

	httpSection := map[string]any{}
	setString(httpSection, "listen", cfg.HTTP.Listen)
	if includeZero || cfg.HTTP.Metrics {
		httpSection["metrics"] = cfg.HTTP.Metrics
	}
	setSection("http", httpSection)

	store := map[string]any{}
	setString(store, "driver", cfg.Store.Driver)
	setString(store, "dsn", cfg.Store.DSN)
	setSection("store", store)

	return layer
}
