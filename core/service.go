package core

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	stateStore      InstallStateStore
	provider        Provider
	now             func() time.Time
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	StateStore      InstallStateStore
	Provider        Provider
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(defaultServiceName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(defaultServiceName); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = func() time.Time {
			return time.Now().UTC()
		}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.stateStore == nil {
		builder.stateStore = NewMemoryInstallStateStore(finalConfig.State.TTL)
	}
	installProvider := builder.provider
	if installProvider == nil {
		if builder.providerFactory == nil {
			return nil, mapBuildError(builder.errorMapper, ErrProviderUnavailable)
		}
		httpClient := builder.httpClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: finalConfig.Exchange.Timeout}
		}
		installProvider, err = builder.providerFactory(finalConfig, httpClient)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		stateStore:      builder.stateStore,
		provider:        installProvider,
		now:             builder.now,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorMapper:     s.errorMapper,
		StateStore:      s.stateStore,
		Provider:        s.provider,
	}
}

// BeginInstall validates the shop, persists a fresh anti-forgery state under
// the install session and returns the provider authorization URL.
func (s *Service) BeginInstall(ctx context.Context, req BeginInstallRequest) (response BeginInstallResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"shop": strings.TrimSpace(req.Shop),
	}
	defer func() {
		if response.SessionID != "" {
			fields["session_id"] = response.SessionID
		}
		s.observeOperation(ctx, startedAt, "begin_install", err, fields)
	}()

	if s == nil || s.provider == nil {
		err = internalError(ErrProviderUnavailable, "install service is not configured")
		return BeginInstallResponse{}, err
	}
	fields["provider_id"] = s.provider.ID()

	rawShop := strings.TrimSpace(req.Shop)
	if rawShop == "" {
		err = missingParameterError("shop")
		return BeginInstallResponse{}, err
	}
	shop, domainErr := s.provider.NormalizeShopDomain(rawShop)
	if domainErr != nil {
		err = invalidShopDomainError(domainErr, rawShop)
		return BeginInstallResponse{}, err
	}

	state, stateErr := generateInstallState()
	if stateErr != nil {
		err = internalError(stateErr, "could not start install")
		return BeginInstallResponse{}, err
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	redirectURI := s.config.RedirectURI()
	authURL, urlErr := s.provider.AuthorizeURL(AuthorizationRequest{
		Shop:        shop,
		State:       state,
		RedirectURI: redirectURI,
		Scopes:      append([]string(nil), s.config.Credentials.Scopes...),
		AccessMode:  s.config.Shop.AccessMode,
	})
	if urlErr != nil {
		err = internalError(urlErr, "could not build authorization url")
		return BeginInstallResponse{}, err
	}

	now := s.now()
	record := InstallStateRecord{
		SessionID:   sessionID,
		State:       state,
		Shop:        shop,
		RedirectURI: redirectURI,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.config.State.TTL),
	}
	if saveErr := s.stateStore.Save(ctx, record); saveErr != nil {
		err = internalError(saveErr, "could not persist install state")
		return BeginInstallResponse{}, err
	}

	fields["shop"] = shop
	return BeginInstallResponse{
		URL:       authURL,
		Shop:      shop,
		State:     state,
		SessionID: sessionID,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// CompleteInstall runs the callback checks in order (parameters, signature,
// state) and only then exchanges the code. The first failure is terminal.
func (s *Service) CompleteInstall(ctx context.Context, req CompleteInstallRequest) (completion InstallCompletion, err error) {
	startedAt := time.Now().UTC()
	payload := CallbackPayloadFromQuery(req.Query)
	fields := map[string]any{
		"shop": strings.TrimSpace(payload.Shop),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "complete_install", err, fields)
	}()

	if s == nil || s.provider == nil {
		err = internalError(ErrProviderUnavailable, "install service is not configured")
		return InstallCompletion{}, err
	}
	fields["provider_id"] = s.provider.ID()

	missing := make([]string, 0, 2)
	if strings.TrimSpace(payload.Shop) == "" {
		missing = append(missing, "shop")
	}
	if strings.TrimSpace(payload.Code) == "" {
		missing = append(missing, "code")
	}
	if len(missing) > 0 {
		err = missingParameterError(missing...)
		return InstallCompletion{}, err
	}
	shop, domainErr := s.provider.ValidateShopDomain(payload.Shop)
	if domainErr != nil {
		err = invalidShopDomainError(domainErr, payload.Shop)
		return InstallCompletion{}, err
	}
	fields["shop"] = shop

	if verifyErr := s.provider.VerifyCallback(ctx, payload); verifyErr != nil {
		err = signatureInvalidError(verifyErr, shop)
		return InstallCompletion{}, err
	}
	if ageErr := s.checkCallbackAge(payload.Timestamp); ageErr != nil {
		err = signatureInvalidError(ageErr, shop)
		return InstallCompletion{}, err
	}

	if stateErr := s.verifyInstallState(ctx, req.SessionID, payload.State, shop); stateErr != nil {
		err = stateMismatchError(stateErr, shop)
		return InstallCompletion{}, err
	}

	credential, exchangeErr := s.provider.ExchangeCode(ctx, ExchangeRequest{
		Shop: shop,
		Code: strings.TrimSpace(payload.Code),
	})
	if exchangeErr != nil {
		err = exchangeFailedError(exchangeErr, shop)
		return InstallCompletion{}, err
	}
	fields["granted_scope"] = strings.Join(credential.Scope, ",")

	return InstallCompletion{
		Shop:       shop,
		Credential: credential,
	}, nil
}

func (s *Service) verifyInstallState(ctx context.Context, sessionID, state, shop string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("core: install session is required")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return fmt.Errorf("core: callback state is required")
	}
	record, err := s.stateStore.Consume(ctx, sessionID)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(record.State), []byte(state)) != 1 {
		return fmt.Errorf("core: callback state mismatch")
	}
	if !strings.EqualFold(strings.TrimSpace(record.Shop), shop) {
		return fmt.Errorf("core: callback shop does not match install session")
	}
	return nil
}

func (s *Service) checkCallbackAge(timestamp string) error {
	maxAge := s.config.Callback.MaxAge
	if maxAge <= 0 {
		return nil
	}
	timestamp = strings.TrimSpace(timestamp)
	if timestamp == "" {
		return fmt.Errorf("core: callback timestamp is required")
	}
	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("core: parse callback timestamp: %w", err)
	}
	delta := s.now().Sub(time.Unix(seconds, 0).UTC())
	if delta < 0 {
		delta = -delta
	}
	if delta > maxAge {
		return fmt.Errorf("core: callback timestamp outside allowed window")
	}
	return nil
}
