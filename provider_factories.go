package shopinstall

import (
	"net/http"

	"github.com/goliatone/go-shopinstall/core"
	"github.com/goliatone/go-shopinstall/providers/shopify"
)

// ShopifyProviderFactory maps resolved service configuration onto the Shopify provider.
func ShopifyProviderFactory(cfg core.Config, httpClient *http.Client) (core.Provider, error) {
	providerCfg := shopify.Config{
		ClientID:            cfg.Credentials.ClientID,
		ClientSecret:        cfg.Credentials.ClientSecret,
		DomainSuffixes:      append([]string(nil), cfg.Shop.DomainSuffixes...),
		TokenRequestTimeout: cfg.Exchange.Timeout,
	}
	if httpClient != nil {
		providerCfg.HTTPClient = httpClient
	}
	return shopify.New(providerCfg)
}
