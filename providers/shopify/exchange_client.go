package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-shopinstall/core"
)

const (
	defaultExchangeRequestTimeout = 10 * time.Second
	maxExchangeResponseBodyBytes  = 1 << 20
)

type ExchangeClientConfig struct {
	ClientID            string
	ClientSecret        string
	TokenRequestTimeout time.Duration
	HTTPClient          HTTPDoer
	BuildTokenURL       func(shop string) (string, error)
}

// ExchangeClient trades an authorization code for an access token.
type ExchangeClient struct {
	config     ExchangeClientConfig
	httpClient HTTPDoer
}

type exchangeRequestBody struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
}

func NewExchangeClient(cfg ExchangeClientConfig) *ExchangeClient {
	timeout := cfg.TokenRequestTimeout
	if timeout <= 0 {
		timeout = defaultExchangeRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &ExchangeClient{
		config: ExchangeClientConfig{
			ClientID:            strings.TrimSpace(cfg.ClientID),
			ClientSecret:        strings.TrimSpace(cfg.ClientSecret),
			TokenRequestTimeout: timeout,
			BuildTokenURL:       cfg.BuildTokenURL,
		},
		httpClient: httpClient,
	}
}

func (c *ExchangeClient) Exchange(ctx context.Context, shop, code string) (core.AccessCredential, error) {
	if c == nil || c.httpClient == nil || c.config.BuildTokenURL == nil {
		return core.AccessCredential{}, &ExchangeError{
			Message: "exchange client is not configured",
			Cause:   ErrTokenExchangeFailed,
		}
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return core.AccessCredential{}, &ExchangeError{
			Message: "authorization code is required",
			Cause:   ErrTokenExchangeFailed,
		}
	}
	tokenURL, err := c.config.BuildTokenURL(shop)
	if err != nil {
		return core.AccessCredential{}, &ExchangeError{
			Message: "resolve token url",
			Cause:   err,
		}
	}
	body, err := json.Marshal(exchangeRequestBody{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		Code:         code,
	})
	if err != nil {
		return core.AccessCredential{}, &ExchangeError{
			Message: "encode exchange request",
			Cause:   err,
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx, cancel := context.WithTimeout(ctx, c.config.TokenRequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, tokenURL, bytes.NewReader(body))
	if err != nil {
		return core.AccessCredential{}, &ExchangeError{
			Message: "build exchange request",
			Cause:   err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return core.AccessCredential{}, &ExchangeError{
			Message: "exchange request failed",
			Cause:   err,
		}
	}
	defer response.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(response.Body, maxExchangeResponseBodyBytes+1))
	if readErr != nil {
		return core.AccessCredential{}, &ExchangeError{
			StatusCode: response.StatusCode,
			Message:    "read exchange response",
			Cause:      readErr,
		}
	}
	if int64(len(raw)) > maxExchangeResponseBodyBytes {
		return core.AccessCredential{}, &ExchangeError{
			StatusCode: response.StatusCode,
			Message:    fmt.Sprintf("exchange response exceeds %d bytes", maxExchangeResponseBodyBytes),
			Cause:      ErrTokenExchangeFailed,
		}
	}

	payload := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil && response.StatusCode < http.StatusMultipleChoices {
			return core.AccessCredential{}, &ExchangeError{
				StatusCode: response.StatusCode,
				Message:    "decode exchange response",
				Cause:      err,
			}
		}
	}

	errorCode := strings.TrimSpace(readAnyString(payload["error"]))
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices || errorCode != "" {
		message := strings.TrimSpace(readAnyString(payload["error_description"]))
		if message == "" {
			message = "shopify rejected the authorization code"
		}
		return core.AccessCredential{}, &ExchangeError{
			StatusCode: response.StatusCode,
			ErrorCode:  errorCode,
			Message:    message,
			Cause:      ErrTokenExchangeFailed,
		}
	}

	accessToken := strings.TrimSpace(readAnyString(payload["access_token"]))
	if accessToken == "" {
		return core.AccessCredential{}, &ExchangeError{
			StatusCode: response.StatusCode,
			Message:    "exchange response missing access token",
			Cause:      ErrTokenExchangeFailed,
		}
	}

	credential := core.AccessCredential{
		AccessToken:         accessToken,
		Scope:               parseScopeList(readAnyString(payload["scope"])),
		ExpiresIn:           readAnyInt64(payload["expires_in"]),
		AssociatedUserScope: parseScopeList(readAnyString(payload["associated_user_scope"])),
		Raw:                 sanitizeExchangePayload(payload),
	}
	if user, ok := payload["associated_user"].(map[string]any); ok {
		credential.AssociatedUser = user
	}
	return credential, nil
}

func parseScopeList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case fmt.Stringer:
		return typed.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(typed)
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

func sanitizeExchangePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		if key == "access_token" || key == "refresh_token" {
			continue
		}
		out[key] = value
	}
	return out
}
