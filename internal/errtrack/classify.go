// Package errtrack classifies, deduplicates, and retains the failures
// reported by business code. It never swallows or reinterprets the error it
// is handed; callers keep propagating their errors normally, and this
// package only records what happened.
package errtrack

import (
	"fmt"
	"strings"
)

// Category is the fixed failure taxonomy.
type Category string

const (
	CategoryRemoteCall    Category = "remote_call"
	CategoryData          Category = "data"
	CategorySystem        Category = "system"
	CategoryValidation    Category = "validation"
	CategoryConfiguration Category = "configuration"
	CategoryNetwork       Category = "network"
	CategoryUnknown       Category = "unknown"
)

// Severity ranks how urgently a failure needs attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// categoryRule matches either the error's concrete type name or its message.
// Rules are evaluated in order; type-name patterns are checked across all
// rules before any message pattern, because the type is the stronger signal.
type categoryRule struct {
	category     Category
	typeParts    []string
	messageParts []string
}

var categoryRules = []categoryRule{
	{
		category:     CategoryRemoteCall,
		typeParts:    []string{"apierror", "statuserror", "ratelimit"},
		messageParts: []string{"rate limit", "api error", "status 429", "status 529", "overloaded", "model_not_found", "billing"},
	},
	{
		category:     CategoryData,
		typeParts:    []string{"syntaxerror", "unmarshaltypeerror", "unmarshalerror", "parseerror", "decodeerror"},
		messageParts: []string{"unmarshal", "unexpected end of json", "invalid character", "parse", "decode", "malformed"},
	},
	{
		category:     CategorySystem,
		typeParts:    []string{"patherror", "linkerror", "syscallerror"},
		messageParts: []string{"no such file", "permission denied", "out of memory", "disk", "too many open files", "resource temporarily unavailable"},
	},
	{
		category:     CategoryValidation,
		typeParts:    []string{"validationerror", "invalidvalidationerror"},
		messageParts: []string{"validation failed", "invalid input", "required field", "out of range", "must be"},
	},
	{
		category:     CategoryConfiguration,
		typeParts:    []string{"configerror"},
		messageParts: []string{"config", "missing environment", "not configured", "invalid setting"},
	},
	{
		category:     CategoryNetwork,
		typeParts:    []string{"dnserror", "operror", "addrerror", "urlerror"},
		messageParts: []string{"connection refused", "connection reset", "timeout", "deadline exceeded", "no route to host", "tls", "eof", "broken pipe"},
	},
}

// severityRule is an ordered pattern pass over type name and message.
type severityRule struct {
	severity Severity
	parts    []string
}

var severityRules = []severityRule{
	{SeverityCritical, []string{"panic", "fatal", "out of memory", "corrupt", "data loss"}},
	{SeverityHigh, []string{"rate limit", "permission denied", "authentication", "billing", "disk full"}},
	{SeverityMedium, []string{"timeout", "deadline exceeded", "connection refused", "connection reset", "unavailable"}},
	{SeverityLow, []string{"not found", "validation", "invalid input"}},
}

// categoryDefaultSeverity supplies the fallback when no severity pattern
// matches.
var categoryDefaultSeverity = map[Category]Severity{
	CategoryRemoteCall:    SeverityHigh,
	CategoryData:          SeverityMedium,
	CategorySystem:        SeverityHigh,
	CategoryValidation:    SeverityLow,
	CategoryConfiguration: SeverityHigh,
	CategoryNetwork:       SeverityMedium,
	CategoryUnknown:       SeverityMedium,
}

// Classify maps an error onto the taxonomy. The concrete type name is
// checked before the message text so wrapped messages cannot shadow a
// precise type match.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	typeName := strings.ToLower(fmt.Sprintf("%T", err))
	for _, rule := range categoryRules {
		for _, part := range rule.typeParts {
			if strings.Contains(typeName, part) {
				return rule.category
			}
		}
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range categoryRules {
		for _, part := range rule.messageParts {
			if strings.Contains(msg, part) {
				return rule.category
			}
		}
	}
	return CategoryUnknown
}

// Assess determines severity: ordered pattern pass first, category default
// second.
func Assess(err error, category Category) Severity {
	if err == nil {
		return SeverityLow
	}
	haystack := strings.ToLower(fmt.Sprintf("%T %s", err, err.Error()))
	for _, rule := range severityRules {
		for _, part := range rule.parts {
			if strings.Contains(haystack, part) {
				return rule.severity
			}
		}
	}
	if s, ok := categoryDefaultSeverity[category]; ok {
		return s
	}
	return SeverityMedium
}
