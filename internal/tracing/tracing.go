package tracing

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	codes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used for installer spans.
const TracerName = "github.com/gxo-labs/txinstall"

// RedactedValue replaces sensitive values in span attributes and error text.
const RedactedValue = "[REDACTED]"

// DefaultRedactedKeywords lists the lower-case parameter names whose values are
// never exported.
var DefaultRedactedKeywords = map[string]struct{}{
	"password":      {},
	"token":         {},
	"secret":        {},
	"apikey":        {},
	"privatekey":    {},
	"authorization": {},
}

// GetTracer returns a tracer from the globally configured OpenTelemetry
// provider. Without a configured provider this is a no-op tracer.
func GetTracer() oteltrace.Tracer {
	return otel.Tracer(TracerName)
}

// RedactStringMap returns a copy of input where the value of every key that
// matches a keyword (case-insensitive) is replaced by placeholder. An empty
// placeholder means RedactedValue.
func RedactStringMap(input map[string]string, keywords map[string]struct{}, placeholder string) map[string]string {
	if len(keywords) == 0 || input == nil {
		return input
	}
	if placeholder == "" {
		placeholder = RedactedValue
	}
	output := make(map[string]string, len(input))
	for k, v := range input {
		if _, redact := keywords[strings.ToLower(k)]; redact {
			output[k] = placeholder
		} else {
			output[k] = v
		}
	}
	return output
}

// RedactAttributes returns a copy of attrs with the values of keyword-matching
// keys replaced by RedactedValue. Matching uses the last dot-separated segment
// of the attribute key.
func RedactAttributes(attrs []attribute.KeyValue, keywords map[string]struct{}) []attribute.KeyValue {
	if len(keywords) == 0 || len(attrs) == 0 {
		return attrs
	}
	redacted := make([]attribute.KeyValue, 0, len(attrs))
	for _, kv := range attrs {
		key := strings.ToLower(string(kv.Key))
		if idx := strings.LastIndex(key, "."); idx >= 0 {
			key = key[idx+1:]
		}
		if _, redact := keywords[key]; redact {
			redacted = append(redacted, attribute.String(string(kv.Key), RedactedValue))
		} else {
			redacted = append(redacted, kv)
		}
	}
	return redacted
}

// RedactSecretsInString replaces the text following a sensitive keyword on
// each line of input. Keywords must be lower-case.
func RedactSecretsInString(input string, keywords map[string]struct{}) string {
	if len(keywords) == 0 || input == "" {
		return input
	}

	redacted := false
	lines := strings.Split(input, "\n")
	outputLines := make([]string, len(lines))

	for i, line := range lines {
		outputLine := line
		lowerLine := strings.ToLower(line)
		for keyword := range keywords {
			if idx := strings.Index(lowerLine, keyword); idx != -1 {
				redactStart := idx + len(keyword)
				for redactStart < len(line) && strings.ContainsAny(string(line[redactStart]), ":= '\"") {
					redactStart++
				}
				if redactStart < len(line) {
					outputLine = line[:redactStart] + RedactedValue
					redacted = true
					break
				}
			}
		}
		outputLines[i] = outputLine
	}

	if !redacted {
		return input
	}
	return strings.Join(outputLines, "\n")
}

// RecordErrorWithContext records err on span with a redacted message and marks
// the span as failed. It does nothing for a nil error or a non-recording span.
func RecordErrorWithContext(span oteltrace.Span, err error, keywords map[string]struct{}) {
	if err == nil || span == nil || !span.IsRecording() {
		return
	}
	redactedErrMsg := RedactSecretsInString(err.Error(), keywords)
	span.RecordError(errors.New(redactedErrMsg), oteltrace.WithStackTrace(true))
	span.SetStatus(codes.Error, redactedErrMsg)
}
