package call

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// maxErrorDetail bounds the sanitized error detail stored in audit records.
const maxErrorDetail = 512

// sensitiveKeywords lists substrings that indicate a sensitive argument key.
// Comparison is case-insensitive. Medical payloads (OCR text, file content)
// are kept out of the audit trail; the digest still covers them.
var sensitiveKeywords = []string{
	"password", "secret", "token", "api_key", "apikey",
	"credential", "auth", "private_key", "privatekey",
	"content", "ocr_text",
}

// RedactSensitiveArgs returns a copy of args with sensitive values masked.
// A key is considered sensitive if it contains any of the sensitiveKeywords
// (case-insensitive). Values are replaced with "***REDACTED***".
func RedactSensitiveArgs(args map[string]interface{}) map[string]interface{} {
	if len(args) == 0 {
		return args
	}
	redacted := make(map[string]interface{}, len(args))
	for k, v := range args {
		if isSensitiveKey(k) {
			redacted[k] = "***REDACTED***"
		} else {
			redacted[k] = v
		}
	}
	return redacted
}

// isSensitiveKey checks if a key name indicates sensitive data.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DigestArgs computes a stable xxhash digest over the full argument map,
// including redacted keys. Keys are hashed in sorted order so equal maps
// always produce equal digests.
func DigestArgs(args map[string]interface{}) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := xxhash.New()
	for _, k := range keys {
		_, _ = h.WriteString(k)
		_, _ = h.WriteString("=")
		b, err := json.Marshal(args[k])
		if err != nil {
			_, _ = h.WriteString(fmt.Sprintf("%v", args[k]))
		} else {
			_, _ = h.Write(b)
		}
		_, _ = h.WriteString(";")
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// SanitizeErrorDetail truncates and flattens an error message for audit
// storage. Newlines are collapsed so JSON Lines sinks stay one record
// per line.
func SanitizeErrorDetail(err error) string {
	if err == nil {
		return ""
	}
	detail := strings.ReplaceAll(err.Error(), "\n", " ")
	if len(detail) > maxErrorDetail {
		detail = detail[:maxErrorDetail] + "..."
	}
	return detail
}
