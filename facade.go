package shopinstall

import (
	"fmt"
	"net/http"

	"github.com/goliatone/go-shopinstall/core"
	"github.com/goliatone/go-shopinstall/inbound"
)

// Facade pairs an installer with the HTTP surface serving it.
type Facade struct {
	installer core.Installer
	handler   *inbound.Handler
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	handlerOptions []inbound.HandlerOption
}

func WithHandlerOptions(opts ...inbound.HandlerOption) FacadeOption {
	return func(options *facadeOptions) {
		options.handlerOptions = append(options.handlerOptions, opts...)
	}
}

func NewFacade(installer core.Installer, opts ...FacadeOption) (*Facade, error) {
	if installer == nil {
		return nil, fmt.Errorf("shopinstall: installer is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	return &Facade{
		installer: installer,
		handler:   inbound.NewHandler(installer, cfg.handlerOptions...),
	}, nil
}

func (f *Facade) Installer() core.Installer {
	if f == nil {
		return nil
	}
	return f.installer
}

// Handler returns the routed HTTP handler (landing, install, callback, health).
func (f *Facade) Handler() http.Handler {
	if f == nil || f.handler == nil {
		return http.NotFoundHandler()
	}
	return f.handler.Routes()
}

func (f *Facade) RegisterRoutes(mux *http.ServeMux) {
	if f == nil || f.handler == nil || mux == nil {
		return
	}
	f.handler.RegisterRoutes(mux)
}
