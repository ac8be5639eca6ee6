package shopinstall

import "github.com/goliatone/go-shopinstall/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type InstallStateStore = core.InstallStateStore
type InstallStateRecord = core.InstallStateRecord
type Provider = core.Provider
type MetricsRecorder = core.MetricsRecorder

type BeginInstallRequest = core.BeginInstallRequest
type BeginInstallResponse = core.BeginInstallResponse
type CompleteInstallRequest = core.CompleteInstallRequest
type InstallCompletion = core.InstallCompletion

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithErrorMapper       = core.WithErrorMapper
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithInstallStateStore = core.WithInstallStateStore
	WithProvider          = core.WithProvider
	WithProviderFactory   = core.WithProviderFactory
	WithHTTPClient        = core.WithHTTPClient
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewService builds the install service. The Shopify provider is created from
// the resolved configuration unless WithProvider or WithProviderFactory is given.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	all := make([]Option, 0, len(opts)+1)
	all = append(all, core.WithProviderFactory(ShopifyProviderFactory))
	all = append(all, opts...)
	return core.NewService(cfg, all...)
}

var _ core.ProviderFactory = ShopifyProviderFactory
