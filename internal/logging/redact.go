package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// sensitiveKeyParts are matched case-insensitively as substrings of field
// keys. A match masks the value regardless of its type.
var sensitiveKeyParts = []string{
	"api_key",
	"apikey",
	"secret",
	"password",
	"token",
	"credential",
	"auth",
}

// maskedKeepEdges is the minimum value length at which the mask keeps a
// short prefix and suffix for debuggability. Anything shorter is fully
// masked.
const maskedKeepEdges = 9

// Redact returns a copy of fields with sensitive values masked. Non-string
// sensitive values are replaced wholesale since partial masking of numbers
// or objects leaks structure.
func Redact(fields []zap.Field) []zap.Field {
	var out []zap.Field
	for i, f := range fields {
		if !isSensitiveKey(f.Key) {
			if out != nil {
				out = append(out, f)
			}
			continue
		}
		if out == nil {
			out = make([]zap.Field, 0, len(fields))
			out = append(out, fields[:i]...)
		}
		out = append(out, zap.String(f.Key, maskField(f)))
	}
	if out == nil {
		return fields
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

func maskField(f zap.Field) string {
	if f.Type == zapcore.StringType {
		return MaskValue(f.String)
	}
	return "***"
}

// MaskValue masks a sensitive string. Short values are fully replaced;
// longer ones keep a two-character prefix and suffix so operators can tell
// which key was in play without being able to reuse it.
func MaskValue(v string) string {
	if len(v) < maskedKeepEdges {
		return "***"
	}
	return fmt.Sprintf("%s***%s", v[:2], v[len(v)-2:])
}
