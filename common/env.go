package common

import (
	"fmt"
	"os"
	"strconv"
)

const (
	EnvServer           = "CS_SERVER"
	EnvToken            = "CS_TOKEN"
	EnvDatabase         = "CS_DATABASE"
	EnvDebug            = "CS_DEBUG"
	EnvSchemaValidation = "CS_SCHEMA_VALIDATION"
	EnvRequestTimeout   = "CS_REQUEST_TIMEOUT" // Override default request timeout in seconds
	EnvPostPageDelay    = "CS_POST_PAGE_DELAY" // Override inter-page throttle in milliseconds
	EnvSkipLiveTests    = "CS_SKIP_LIVE_TESTS"
)

// ParseEnvBool reports whether an environment variable is set to a truthy
// value.
func ParseEnvBool(name string) bool {
	switch os.Getenv(name) {
	case "1", "true", "TRUE", "yes":
		return true
	}

	return false
}

// ParseEnvInt64 looks up an environment variable and attempts to parse
// it as an int64. It returns the parsed value, a boolean indicating
// whether the variable was set, and any error encountered.
func ParseEnvInt64(name string) (int64, bool, error) {
	val := os.Getenv(name)
	if val == "" {
		return 0, false, nil
	}

	v, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s value: %w", name, err)
	}

	return v, true, nil
}
