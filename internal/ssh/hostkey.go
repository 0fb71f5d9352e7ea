// Package ssh verifies remote host identity for sftp backup
// destinations and loads the operator's client key material.
package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/yourusername/unifi-ops/internal/logging"
)

// HostKeyCallback returns a host key check backed by the known_hosts
// file at path. With trustOnFirstUse set, a host with no recorded key
// is pinned on its first connection; a host whose key differs from the
// recorded one is always rejected, since that is the signature of an
// interception.
func HostKeyCallback(path string, trustOnFirstUse bool) (xssh.HostKeyCallback, error) {
	if path == "" {
		return nil, fmt.Errorf("known_hosts path must not be empty")
	}
	if err := ensureKnownHosts(path); err != nil {
		return nil, err
	}

	recorded, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("reading known_hosts %s: %w", path, err)
	}

	return func(hostname string, remote net.Addr, key xssh.PublicKey) error {
		err := recorded(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return err
		}

		fingerprint := xssh.FingerprintSHA256(key)
		if len(keyErr.Want) > 0 {
			logging.L().Warn("sftp host key changed",
				"host", hostname,
				"fingerprint", fingerprint,
			)
			return fmt.Errorf("host key for %s changed, refusing to connect", hostname)
		}

		if !trustOnFirstUse {
			return fmt.Errorf("no recorded host key for %s", hostname)
		}
		if err := recordHostKey(path, hostname, remote, key); err != nil {
			return err
		}
		logging.L().Info("sftp host key recorded",
			"host", hostname,
			"fingerprint", fingerprint,
		)
		return nil
	}, nil
}

func ensureKnownHosts(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating known_hosts directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating known_hosts %s: %w", path, err)
	}
	return f.Close()
}

func recordHostKey(path, hostname string, remote net.Addr, key xssh.PublicKey) error {
	// knownhosts.Line normalizes ports and brackets the same way the
	// lookup does, so the recorded entry matches future connections.
	addresses := []string{hostname}
	if remote != nil && remote.String() != hostname {
		addresses = append(addresses, remote.String())
	}
	line := knownhosts.Line(addresses, key)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening known_hosts %s: %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("recording host key for %s: %w", hostname, err)
	}
	return nil
}
