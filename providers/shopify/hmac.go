package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	keyEscaper   = strings.NewReplacer("%", "%25", "&", "%26", "=", "%3D")
	valueEscaper = strings.NewReplacer("%", "%25", "&", "%26")
)

// CanonicalSigningString renders callback parameters in the form Shopify signs:
// hmac and signature removed, keys sorted, pairs joined with "&". Array keys
// such as ids[] lose their brackets and always render as a list.
func CanonicalSigningString(params url.Values) string {
	sourceKeys := make([]string, 0, len(params))
	for key := range params {
		sourceKeys = append(sourceKeys, key)
	}
	sort.Strings(sourceKeys)

	values := make(map[string][]string, len(params))
	arrays := map[string]bool{}
	for _, key := range sourceKeys {
		if key == "hmac" || key == "signature" {
			continue
		}
		vals := params[key]
		name := key
		if trimmed, ok := strings.CutSuffix(key, "[]"); ok && trimmed != "" {
			name = trimmed
			arrays[name] = true
		}
		values[name] = append(values[name], vals...)
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, keyEscaper.Replace(key)+"="+valueEscaper.Replace(canonicalValue(values[key], arrays[key])))
	}
	return strings.Join(pairs, "&")
}

func canonicalValue(values []string, array bool) string {
	if !array {
		switch len(values) {
		case 0:
			return ""
		case 1:
			return values[0]
		}
	}
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `"`+value+`"`)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// SignCallback returns the lowercase hex HMAC-SHA256 of the canonical form of params.
func SignCallback(secret string, params url.Values) string {
	return hex.EncodeToString(computeCallbackMAC(secret, params))
}

func computeCallbackMAC(secret string, params url.Values) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(CanonicalSigningString(params)))
	return mac.Sum(nil)
}

// VerifyCallbackHMAC checks provided against the expected digest in constant time.
func VerifyCallbackHMAC(secret string, params url.Values, provided string) error {
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("providers/shopify: client secret is required")
	}
	provided = strings.TrimSpace(provided)
	if provided == "" {
		return ErrSignatureMissing
	}
	decoded, err := hex.DecodeString(provided)
	if err != nil {
		return fmt.Errorf("%w: decode: %v", ErrSignatureInvalid, err)
	}
	expected := computeCallbackMAC(secret, params)
	if subtle.ConstantTimeCompare(expected, decoded) != 1 {
		return ErrSignatureInvalid
	}
	return nil
}
