package util

import (
	"fmt"
	"os"
	"strings"
)

// Errors collects the problems found while reading configuration, so a
// misconfigured process reports every missing variable at once instead of
// failing on the first one.
type Errors []error

func (e Errors) Error() string {
	messages := make([]string, 0, len(e))
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Add appends an error to the collection.
func (e *Errors) Add(err error) {
	*e = append(*e, err)
}

// RequireEnv reads an environment variable that must be set. If it isn't,
// an error is recorded in errs and the empty string is returned.
func RequireEnv(varName string, errs *Errors) string {
	envVar := os.Getenv(varName)
	if len(envVar) == 0 {
		errs.Add(fmt.Errorf("environment variable %s must be set", varName))
	}
	return envVar
}

// EnvOrDefault reads an environment variable, falling back to a default
// when it is unset or empty.
func EnvOrDefault(varName string, defaultVal string) string {
	envVar := os.Getenv(varName)
	if len(envVar) == 0 {
		return defaultVal
	}
	return envVar
}
