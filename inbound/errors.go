package inbound

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-shopinstall/core"
)

const missingShopMessage = "Missing shop parameter. Please add ?shop=your-development-shop.myshopify.com to your request"

func inboundWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func renderFailure(source error, template string) error {
	return inboundWrapError(
		source,
		goerrors.CategoryInternal,
		"inbound: render page",
		http.StatusInternalServerError,
		core.ServiceErrorInternal,
		map[string]any{"template": template},
	)
}

// writeError answers with the status and public message carried by err.
func writeError(w http.ResponseWriter, err error) {
	status := core.HTTPStatus(err)
	message := core.PublicMessage(err)
	if core.IsTextCode(err, core.ServiceErrorMissingParameter) {
		message = "Required parameters missing"
	}
	http.Error(w, message, status)
}
