package instance

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rigstead/berth/internal/errors"
)

// EnvSSHKey overrides the private key path when no explicit path is given.
const EnvSSHKey = "BERTH_SSH_KEY"

// defaultKeyNames are probed under ~/.ssh, in preference order.
var defaultKeyNames = []string{"id_ed25519", "id_rsa", "id_ecdsa"}

// ResolveKeyPath picks the SSH private key for an instance. Precedence:
// the explicit path if non-empty, then $BERTH_SSH_KEY, then the first of
// ~/.ssh/id_ed25519, id_rsa, id_ecdsa that exists.
//
// Explicit and environment paths are intentional, so a missing file there is
// an error rather than a silent fall-through to the defaults.
func ResolveKeyPath(explicit string) (string, error) {
	if explicit != "" {
		return requireKeyFile(explicit, "key_path")
	}

	if env := os.Getenv(EnvSSHKey); env != "" {
		return requireKeyFile(env, EnvSSHKey)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewValidationError("cannot locate home directory for default ssh keys").
			WithCause(err)
	}
	for _, name := range defaultKeyNames {
		path := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", errors.NewValidationError(fmt.Sprintf(
		"no ssh private key found (checked ~/.ssh/{%s}); pass --key or set ssh.key_path",
		strings.Join(defaultKeyNames, ","))).WithField("key_path")
}

// requireKeyFile expands a leading ~ and verifies the key file exists.
func requireKeyFile(path, field string) (string, error) {
	expanded := expandTilde(path)
	if _, err := os.Stat(expanded); err != nil {
		return "", errors.NewValidationError("ssh key file not found").
			WithField(field).WithValue(path).WithCause(err)
	}
	return expanded, nil
}

// expandTilde rewrites a leading "~/" against the current home directory.
func expandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
