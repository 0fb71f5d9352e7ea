package backup

import (
	"fmt"
	"io"
	"path"
	"time"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"

	"github.com/yourusername/unifi-ops/internal/logging"
	sshclient "github.com/yourusername/unifi-ops/internal/ssh"
)

// SFTPDestination stores artifacts on a remote SFTP server.
type SFTPDestination struct {
	config     *DestinationConfig
	sshClient  *xssh.Client
	sftpClient *sftp.Client
}

// NewSFTPDestination creates a new SFTP destination
func NewSFTPDestination(config *DestinationConfig) (*SFTPDestination, error) {
	dest := &SFTPDestination{
		config: config,
	}

	if err := dest.connect(); err != nil {
		return nil, err
	}

	return dest, nil
}

// connect establishes SSH and SFTP connections
func (sd *SFTPDestination) connect() error {
	knownHostsPath := sd.config.KnownHostsPath
	if knownHostsPath == "" {
		knownHostsPath = "./data/known_hosts"
	}

	hostKeyCallback, err := sshclient.HostKeyCallback(knownHostsPath, sd.config.TrustOnFirstUse)
	if err != nil {
		return fmt.Errorf("failed to configure host key verification: %w", err)
	}

	sshConfig := &xssh.ClientConfig{
		User:            sd.config.SFTPUsername,
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}

	if sd.config.SFTPKeyPath != "" {
		signer, err := sshclient.LoadSigner(sd.config.SFTPKeyPath)
		if err != nil {
			return fmt.Errorf("failed to load SSH key: %w", err)
		}

		sshConfig.Auth = []xssh.AuthMethod{xssh.PublicKeys(signer)}
	} else if sd.config.SFTPPassword != "" {
		sshConfig.Auth = []xssh.AuthMethod{xssh.Password(sd.config.SFTPPassword)}
	} else {
		return fmt.Errorf("no authentication method provided for SFTP")
	}

	addr := fmt.Sprintf("%s:%d", sd.config.SFTPHost, sd.config.SFTPPort)
	logging.L().Debug("connecting to sftp destination", "addr", addr)

	sshClient, err := xssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SSH server: %w", err)
	}
	sd.sshClient = sshClient

	sftpClient, err := sftp.NewClient(sshClient,
		sftp.MaxPacketUnchecked(131072),
		sftp.UseConcurrentWrites(true),
	)
	if err != nil {
		sshClient.Close()
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}
	sd.sftpClient = sftpClient

	if err := sd.sftpClient.MkdirAll(sd.config.Path); err != nil {
		sd.Close()
		return fmt.Errorf("failed to create base directory: %w", err)
	}

	return nil
}

// Close closes the SFTP and SSH connections
func (sd *SFTPDestination) Close() error {
	if sd.sftpClient != nil {
		sd.sftpClient.Close()
	}
	if sd.sshClient != nil {
		sd.sshClient.Close()
	}
	return nil
}

// Store uploads an artifact to the SFTP destination.
func (sd *SFTPDestination) Store(filename string, reader io.Reader) (int64, error) {
	destPath := path.Join(sd.config.Path, filename)

	file, err := sd.sftpClient.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create remote file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, reader)
	if err != nil {
		sd.sftpClient.Remove(destPath) // Cleanup on error
		return 0, fmt.Errorf("failed to write remote file: %w", err)
	}

	logging.L().Debug("stored artifact", "destination", "sftp", "path", destPath, "bytes", written)
	return written, nil
}

// Open reads an artifact from the SFTP destination.
func (sd *SFTPDestination) Open(filename string) (io.ReadCloser, error) {
	file, err := sd.sftpClient.Open(path.Join(sd.config.Path, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to open remote file: %w", err)
	}
	return file, nil
}

// Delete removes an artifact from the SFTP destination.
func (sd *SFTPDestination) Delete(filename string) error {
	if err := sd.sftpClient.Remove(path.Join(sd.config.Path, filename)); err != nil {
		return fmt.Errorf("failed to delete remote file: %w", err)
	}
	return nil
}

// List returns all artifacts in the SFTP destination.
func (sd *SFTPDestination) List() ([]StoredFile, error) {
	entries, err := sd.sftpClient.ReadDir(sd.config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote directory: %w", err)
	}

	var files []StoredFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		files = append(files, StoredFile{
			Filename:  entry.Name(),
			SizeBytes: entry.Size(),
			CreatedAt: entry.ModTime().Unix(),
		})
	}

	return files, nil
}

// Type returns the destination type
func (sd *SFTPDestination) Type() string {
	return "sftp"
}
