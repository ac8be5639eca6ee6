package shopify

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidShopDomain   = errors.New("providers/shopify: invalid shop domain")
	ErrSignatureMissing    = errors.New("providers/shopify: callback hmac is missing")
	ErrSignatureInvalid    = errors.New("providers/shopify: callback hmac is invalid")
	ErrTokenExchangeFailed = errors.New("providers/shopify: token exchange failed")
)

// DomainError describes why a shop domain was refused.
type DomainError struct {
	Domain string
	Reason string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ErrInvalidShopDomain.Error()
	}
	parts := []string{ErrInvalidShopDomain.Error()}
	if strings.TrimSpace(e.Domain) != "" {
		parts = append(parts, fmt.Sprintf("%q", e.Domain))
	}
	if strings.TrimSpace(e.Reason) != "" {
		parts = append(parts, strings.TrimSpace(e.Reason))
	}
	return strings.Join(parts, ": ")
}

func (e *DomainError) Unwrap() error {
	return ErrInvalidShopDomain
}

type ExchangeError struct {
	StatusCode int
	ErrorCode  string
	Message    string
	Cause      error
}

func (e *ExchangeError) Error() string {
	if e == nil {
		return ErrTokenExchangeFailed.Error()
	}
	base := ErrTokenExchangeFailed.Error()
	if strings.TrimSpace(e.ErrorCode) != "" {
		base += ": " + strings.TrimSpace(e.ErrorCode)
	}
	if strings.TrimSpace(e.Message) != "" {
		base += ": " + strings.TrimSpace(e.Message)
	}
	if e.StatusCode > 0 {
		base += fmt.Sprintf(" (status=%d)", e.StatusCode)
	}
	if e.Cause != nil {
		base += ": " + e.Cause.Error()
	}
	return base
}

func (e *ExchangeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
