// Package configuration provides reading of generic Unix-type key=value
// configuration files, both for the application settings and for the
// descriptive metadata files shipped within every module.
package configuration

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// maxLenientLine bounds a single line of lenient content.
const maxLenientLine = 1 << 20

type genericConfigProvider interface {
	Read(filenames ...string) (envMap map[string]string, err error)
}

// Handler is the principal implementation for the configuration services.
type Handler struct {
	genericHandler genericConfigProvider
}

// NewHandler returns a pointer to a new configuration [Handler].
func NewHandler(genericHandler genericConfigProvider) *Handler {
	return &Handler{
		genericHandler: genericHandler,
	}
}

// ReadGeneric reads generic Unix-type configuration files into a map
// (map[key]value).
func (c *Handler) ReadGeneric(filenames ...string) (map[string]string, error) {
	data, err := c.genericHandler.Read(filenames...)
	if err != nil {
		return data, fmt.Errorf("(config) %w", err)
	}

	return data, nil
}

// ReadLenient parses free-form key=value content, as found in module
// metadata written by arbitrary authors. Every line is split on its first "="
// and both sides are trimmed. Values are kept verbatim otherwise: no quote
// removal, no inline comments and no variable expansion. Lines without a key
// are skipped.
func (c *Handler) ReadLenient(content string) map[string]string {
	envMap := make(map[string]string)

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLenientLine)

	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		key = strings.TrimSpace(key)

		if !ok || key == "" || strings.HasPrefix(key, "#") {
			continue
		}

		envMap[key] = strings.TrimSpace(value)
	}

	return envMap
}

// MapKeyToString returns the string value for a key, or an empty string.
func (c *Handler) MapKeyToString(envMap map[string]string, key string) string {
	if value, exists := envMap[key]; exists {
		return value
	}

	return ""
}

// MapKeyToStringDefault returns the string value for a key, or the given
// default if the key is missing or empty.
func (c *Handler) MapKeyToStringDefault(envMap map[string]string, key string, def string) string {
	if value := c.MapKeyToString(envMap, key); value != "" {
		return value
	}

	return def
}

// MapKeyToBool returns the boolean value for a key, or false if the key is
// missing or not parseable.
func (c *Handler) MapKeyToBool(envMap map[string]string, key string) bool {
	value := strings.ToLower(c.MapKeyToString(envMap, key))

	switch value {
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return false
	}

	return b
}
