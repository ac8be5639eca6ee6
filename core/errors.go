package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorMissingParameter  = "INSTALL_MISSING_PARAMETER"
	ServiceErrorInvalidShopDomain = "INSTALL_INVALID_SHOP_DOMAIN"
	ServiceErrorSignatureInvalid  = "INSTALL_SIGNATURE_INVALID"
	ServiceErrorStateMismatch     = "INSTALL_STATE_MISMATCH"
	ServiceErrorExchangeFailed    = "INSTALL_EXCHANGE_FAILED"
	ServiceErrorInternal          = "INSTALL_INTERNAL_ERROR"
)

var (
	ErrSignatureInvalid    = errors.New("core: callback signature verification failed")
	ErrStateNotFound       = errors.New("core: install state not found")
	ErrStateExpired        = errors.New("core: install state expired")
	ErrInvalidShopDomain   = errors.New("core: invalid shop domain")
	ErrExchangeFailed      = errors.New("core: token exchange failed")
	ErrProviderUnavailable = errors.New("core: provider is not configured")
)

func installError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func installWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return installError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func missingParameterError(names ...string) error {
	message := "required parameters missing"
	if len(names) == 1 {
		message = "missing " + names[0] + " parameter"
	}
	return installError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		ServiceErrorMissingParameter,
		map[string]any{"parameters": append([]string(nil), names...)},
	)
}

func invalidShopDomainError(source error, shop string) error {
	return installWrapError(
		source,
		goerrors.CategoryBadInput,
		"invalid shop domain",
		http.StatusBadRequest,
		ServiceErrorInvalidShopDomain,
		map[string]any{"shop": shop},
	)
}

func signatureInvalidError(source error, shop string) error {
	return installWrapError(
		source,
		goerrors.CategoryAuth,
		"HMAC validation failed",
		http.StatusBadRequest,
		ServiceErrorSignatureInvalid,
		map[string]any{"shop": shop},
	)
}

func stateMismatchError(source error, shop string) error {
	return installWrapError(
		source,
		goerrors.CategoryAuthz,
		"request origin cannot be verified",
		http.StatusForbidden,
		ServiceErrorStateMismatch,
		map[string]any{"shop": shop},
	)
}

func exchangeFailedError(source error, shop string) error {
	return installWrapError(
		source,
		goerrors.CategoryExternal,
		"token exchange failed",
		http.StatusBadGateway,
		ServiceErrorExchangeFailed,
		map[string]any{"shop": shop},
	)
}

func internalError(source error, message string) error {
	return installWrapError(
		source,
		goerrors.CategoryInternal,
		message,
		http.StatusInternalServerError,
		ServiceErrorInternal,
		nil,
	)
}

// TextCode returns the taxonomy code carried by err, or ServiceErrorInternal.
func TextCode(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && strings.TrimSpace(richErr.TextCode) != "" {
		return richErr.TextCode
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ServiceErrorExchangeFailed
	}
	return ServiceErrorInternal
}

// HTTPStatus returns the status a caller should see for err.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code > 0 {
		return richErr.Code
	}
	switch TextCode(err) {
	case ServiceErrorMissingParameter, ServiceErrorInvalidShopDomain, ServiceErrorSignatureInvalid:
		return http.StatusBadRequest
	case ServiceErrorStateMismatch:
		return http.StatusForbidden
	case ServiceErrorExchangeFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text shown to end callers for err.
func PublicMessage(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category != goerrors.CategoryInternal {
		if message := strings.TrimSpace(richErr.Message); message != "" {
			return message
		}
	}
	return "An unexpected error occurred"
}

func IsTextCode(err error, code string) bool {
	return err != nil && TextCode(err) == code
}
