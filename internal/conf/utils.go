package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/iconforge/internal/errors"
)

// GetDefaultConfigPaths returns the directories searched for config.yaml, in order.
// The first entry is where a default config is created.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}

	if runtime.GOOS == "windows" {
		return []string{
			".",
			filepath.Join(homeDir, "AppData", "Roaming", "iconforge"),
		}, nil
	}

	return []string{
		".",
		filepath.Join(homeDir, ".config", "iconforge"),
		"/etc/iconforge",
	}, nil
}
