package shopify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/goliatone/go-shopinstall/core"
)

const (
	ProviderID = "shopify"

	defaultAuthorizePath = "/admin/oauth/authorize"
	defaultTokenPath     = "/admin/oauth/access_token"
	defaultDomainSuffix  = ".myshopify.com"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	ClientID            string
	ClientSecret        string
	DomainSuffixes      []string
	HTTPClient          HTTPDoer
	TokenRequestTimeout time.Duration
	// BuildTokenURL overrides the exchange endpoint for a validated shop.
	BuildTokenURL func(shop string) (string, error)
}

type Provider struct {
	clientID     string
	clientSecret string
	suffixes     []string
	domainRules  []*regexp.Regexp
	exchange     *ExchangeClient
}

func New(cfg Config) (*Provider, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	clientSecret := strings.TrimSpace(cfg.ClientSecret)
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("providers/shopify: client id and client secret are required")
	}

	suffixes := normalizeSuffixes(cfg.DomainSuffixes)
	rules := make([]*regexp.Regexp, 0, len(suffixes))
	for _, suffix := range suffixes {
		rule, err := regexp.Compile(`^[a-z0-9][a-z0-9-]*` + regexp.QuoteMeta(suffix) + `$`)
		if err != nil {
			return nil, fmt.Errorf("providers/shopify: compile domain rule for %q: %w", suffix, err)
		}
		rules = append(rules, rule)
	}

	provider := &Provider{
		clientID:     clientID,
		clientSecret: clientSecret,
		suffixes:     suffixes,
		domainRules:  rules,
	}
	tokenURL := cfg.BuildTokenURL
	if tokenURL == nil {
		tokenURL = provider.defaultTokenURL
	}
	provider.exchange = NewExchangeClient(ExchangeClientConfig{
		ClientID:            clientID,
		ClientSecret:        clientSecret,
		TokenRequestTimeout: cfg.TokenRequestTimeout,
		HTTPClient:          cfg.HTTPClient,
		BuildTokenURL:       tokenURL,
	})
	return provider, nil
}

func (p *Provider) ID() string {
	return ProviderID
}

// NormalizeShopDomain accepts a bare store name, a host or an admin URL and
// returns the validated host.
func (p *Provider) NormalizeShopDomain(raw string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(raw))
	if trimmed == "" {
		return "", &DomainError{Reason: "shop is required"}
	}
	if strings.Contains(trimmed, "://") {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", &DomainError{Domain: raw, Reason: "not a valid url"}
		}
		trimmed = strings.TrimSpace(strings.ToLower(parsed.Hostname()))
	}
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed != "" && !strings.Contains(trimmed, ".") && len(p.suffixes) > 0 {
		trimmed += p.suffixes[0]
	}
	return p.ValidateShopDomain(trimmed)
}

// ValidateShopDomain accepts only a host under an allowed suffix and returns
// it lowercased.
func (p *Provider) ValidateShopDomain(raw string) (string, error) {
	shop := strings.ToLower(strings.TrimSpace(raw))
	if shop == "" {
		return "", &DomainError{Reason: "shop is required"}
	}
	for _, rule := range p.domainRules {
		if rule.MatchString(shop) {
			return shop, nil
		}
	}
	return "", &DomainError{Domain: raw, Reason: "must be a host under " + strings.Join(p.suffixes, ", ")}
}

func (p *Provider) AuthorizeURL(req core.AuthorizationRequest) (string, error) {
	shop, err := p.ValidateShopDomain(req.Shop)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.State) == "" {
		return "", fmt.Errorf("providers/shopify: state is required")
	}
	if strings.TrimSpace(req.RedirectURI) == "" {
		return "", fmt.Errorf("providers/shopify: redirect uri is required")
	}

	query := url.Values{}
	query.Set("client_id", p.clientID)
	query.Set("scope", strings.Join(req.Scopes, ","))
	query.Set("redirect_uri", req.RedirectURI)
	query.Set("state", req.State)
	if req.AccessMode == core.AccessModePerUser {
		query.Add("grant_options[]", core.AccessModePerUser)
	}
	return (&url.URL{
		Scheme:   "https",
		Host:     shop,
		Path:     defaultAuthorizePath,
		RawQuery: query.Encode(),
	}).String(), nil
}

func (p *Provider) VerifyCallback(_ context.Context, payload core.CallbackPayload) error {
	params := payload.Params
	if params == nil {
		params = url.Values{}
		for key, value := range map[string]string{
			"shop":      payload.Shop,
			"code":      payload.Code,
			"state":     payload.State,
			"timestamp": payload.Timestamp,
		} {
			if value != "" {
				params.Set(key, value)
			}
		}
	}
	provided := payload.HMAC
	if provided == "" {
		provided = params.Get("hmac")
	}
	return VerifyCallbackHMAC(p.clientSecret, params, provided)
}

func (p *Provider) ExchangeCode(ctx context.Context, req core.ExchangeRequest) (core.AccessCredential, error) {
	shop, err := p.ValidateShopDomain(req.Shop)
	if err != nil {
		return core.AccessCredential{}, &ExchangeError{Message: "refusing exchange", Cause: err}
	}
	return p.exchange.Exchange(ctx, shop, req.Code)
}

func (p *Provider) defaultTokenURL(shop string) (string, error) {
	validated, err := p.ValidateShopDomain(shop)
	if err != nil {
		return "", err
	}
	return (&url.URL{
		Scheme: "https",
		Host:   validated,
		Path:   defaultTokenPath,
	}).String(), nil
}

func normalizeSuffixes(suffixes []string) []string {
	out := make([]string, 0, len(suffixes))
	seen := map[string]struct{}{}
	for _, suffix := range suffixes {
		normalized := strings.ToLower(strings.TrimSpace(suffix))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		out = append(out, defaultDomainSuffix)
	}
	return out
}

var _ core.Provider = (*Provider)(nil)
