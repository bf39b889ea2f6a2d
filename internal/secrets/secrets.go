// Package secrets resolves credentials that may be given literally, as ${VAR}
// references or as mounted secret files (Docker or Kubernetes secrets).
//
// Secret values are never logged. Errors name the setting or file, not the value.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/logger"
)

const (
	// maxSecretFileSize bounds a secret file read, tokens and passwords are small
	maxSecretFileSize = 64 * 1024

	// groupOtherPerms are the permission bits that trigger a warning
	groupOtherPerms = 0o077
)

// Ref binds one secret setting to the environment variable that may point at its file
type Ref struct {
	Name    string  // setting name used in errors, e.g. "replicate.apitoken"
	FileEnv string  // env var holding a secret file path, e.g. "REPLICATE_API_TOKEN_FILE"
	Value   *string // setting value, replaced in place with the resolved secret
}

func configError(err error, key string, value any) error {
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Context(key, value).
		Build()
}

// ExpandString expands ${VAR} and ${VAR:-default} references in s.
// A referenced variable that is unset or empty and has no default is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if !hasFallback {
			missing = append(missing, name)
		}
		return fallback
	})

	if len(missing) > 0 {
		return "", configError(
			fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", ")),
			"variables", strings.Join(missing, ","))
	}
	return expanded, nil
}

// ReadFile reads a secret file. Trailing newlines are trimmed, other
// whitespace is kept. Files readable by group or other are accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", configError(errors.NewStd("secret file path is empty"), "path", path)
	}
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return "", configError(fmt.Errorf("secret file not found: %s", path), "path", path)
	case err != nil:
		return "", configError(err, "path", path)
	case !info.Mode().IsRegular():
		return "", configError(fmt.Errorf("secret path is not a regular file: %s", path), "path", path)
	case info.Size() > maxSecretFileSize:
		return "", configError(fmt.Errorf("secret file too large (max %d bytes): %s", maxSecretFileSize, path), "path", path)
	}

	if perm := info.Mode().Perm(); perm&groupOtherPerms != 0 {
		logger.Global().Module("secrets").Warn("secret file is readable by group or other",
			logger.String("path", path),
			logger.String("perms", perm.String()))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", configError(err, "path", path)
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", configError(fmt.Errorf("secret file is empty: %s", path), "path", path)
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded. Both empty resolves to "".
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}

// ResolveAll resolves every ref in place. The file named by a ref's FileEnv
// variable takes precedence over its configured value.
func ResolveAll(refs []Ref) error {
	var errs []error
	for _, ref := range refs {
		secret, err := Resolve(os.Getenv(ref.FileEnv), *ref.Value)
		if err != nil {
			errs = append(errs, configError(err, "setting", ref.Name))
			continue
		}
		*ref.Value = secret
	}
	return errors.Join(errs...)
}
