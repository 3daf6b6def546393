package logging

import (
	"bytes"
	"io"
	"regexp"
	"strings"
)

// RedactionMarker replaces secrets in log output.
const RedactionMarker = "***REDACTED***"

// minSecretLen guards against redacting short strings that would mangle
// unrelated output.
const minSecretLen = 8

// credentialPatterns match credentials by shape rather than value. The
// first group is kept and the rest of the match becomes RedactionMarker.
// Value classes stop at quotes and backslashes so the JSON zerolog emits
// stays well formed.
var credentialPatterns = []*regexp.Regexp{
	// env assignment: BUNGIE_API_KEY=abc, RAIDHUB_API_KEY=abc
	regexp.MustCompile(`\b([A-Z_]*API_KEY=)[^\s&"\\]+`),
	// JSON field, raw or escaped inside a zerolog string: "apiKey":"abc"
	regexp.MustCompile(`(\\?["']apiKey\\?["']\s*:\s*\\?["'])[^"'\\]+`),
	// HTTP header: X-API-Key: abc
	regexp.MustCompile(`(?i)(x-api-key:\s*)[^\s,}"\\]+`),
	// URL parameter: ?api_key=abc, &apikey=abc
	regexp.MustCompile(`([?&]api[_-]?key=)[^&\s"\\]+`),
}

var markerReplacement = []byte("${1}" + RedactionMarker)

type redactingWriter struct {
	out     io.Writer
	secrets [][]byte
}

// NewRedactingWriter wraps out so that every literal occurrence of any
// secret, and any credential-shaped token (env assignment, apiKey JSON
// field, X-API-Key header, api_key URL parameter), is replaced with
// RedactionMarker before it is written. Secrets shorter than eight
// characters are ignored.
func NewRedactingWriter(out io.Writer, secrets ...string) io.Writer {
	w := &redactingWriter{out: out}
	for _, s := range secrets {
		if len(s) >= minSecretLen {
			w.secrets = append(w.secrets, []byte(s))
		}
	}
	return w
}

// Write redacts p and forwards it. zerolog issues one Write per event, so
// a secret is never split across calls.
func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := p
	for _, s := range w.secrets {
		if bytes.Contains(redacted, s) {
			redacted = bytes.ReplaceAll(redacted, s, []byte(RedactionMarker))
		}
	}
	for _, re := range credentialPatterns {
		redacted = re.ReplaceAll(redacted, markerReplacement)
	}
	if _, err := w.out.Write(redacted); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Redact replaces every literal occurrence of each secret in s, and any
// credential-shaped token, with RedactionMarker.
func Redact(s string, secrets ...string) string {
	for _, secret := range secrets {
		if len(secret) >= minSecretLen {
			s = strings.ReplaceAll(s, secret, RedactionMarker)
		}
	}
	for _, re := range credentialPatterns {
		s = re.ReplaceAllString(s, "${1}"+RedactionMarker)
	}
	return s
}
