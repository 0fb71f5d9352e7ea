package ssh

import (
	"fmt"
	"os"

	xssh "golang.org/x/crypto/ssh"
)

// LoadSigner reads and parses the private key at path for client
// authentication. The key file's contents never appear in errors.
func LoadSigner(path string) (xssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	signer, err := xssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parsing private key %s: %w", path, err)
	}
	return signer, nil
}
