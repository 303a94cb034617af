package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Credentials holds the API keys a run distributes work across. Each
// key gets its own worker pool so per-account quotas are respected.
type Credentials struct {
	Keys []string `yaml:"keys"`
}

// LoadCredentials reads the credentials file. A missing file, an
// unreadable file, or a file with no usable keys is a fatal error:
// without at least one key no worker can start.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials file: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials file: %w", err)
	}

	keys := creds.Keys[:0]
	for _, k := range creds.Keys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	creds.Keys = keys

	if len(creds.Keys) == 0 {
		return Credentials{}, fmt.Errorf("credentials file %s contains no keys", path)
	}
	return creds, nil
}
