package backup

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"

	"github.com/TheGojiOG/vuserver/internal/config"
)

// SFTPDestination stores backups on a remote SFTP server
type SFTPDestination struct {
	basePath   string
	addr       string
	sshClient  *xssh.Client
	sftpClient *sftp.Client
}

// NewSFTPDestination connects to the SFTP server and ensures the base directory exists
func NewSFTPDestination(cfg config.BackupDestinationConfig) (*SFTPDestination, error) {
	sshConfig, err := sftpClientConfig(cfg)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	log.Printf("[SFTPDest] Connecting to %s...", addr)

	sshClient, err := xssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH server: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshClient,
		sftp.MaxPacketUnchecked(131072),
		sftp.UseConcurrentWrites(true),
		sftp.MaxConcurrentRequestsPerFile(64),
	)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}

	dest := newSFTPDestinationWithClient(sftpClient, cfg.Path)
	dest.sshClient = sshClient
	dest.addr = addr

	if err := dest.sftpClient.MkdirAll(dest.basePath); err != nil {
		dest.Close()
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	log.Printf("[SFTPDest] Connected successfully")
	return dest, nil
}

func newSFTPDestinationWithClient(client *sftp.Client, basePath string) *SFTPDestination {
	if basePath == "" {
		basePath = "."
	}
	return &SFTPDestination{basePath: basePath, sftpClient: client}
}

func sftpClientConfig(cfg config.BackupDestinationConfig) (*xssh.ClientConfig, error) {
	if cfg.Host == "" || cfg.Username == "" {
		return nil, fmt.Errorf("sftp destination requires host and username")
	}

	hostKeyCallback, err := newHostKeyCallback(cfg.KnownHostsPath, cfg.TrustOnFirstUse)
	if err != nil {
		return nil, fmt.Errorf("failed to configure host key verification: %w", err)
	}

	sshConfig := &xssh.ClientConfig{
		User:            cfg.Username,
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}

	switch {
	case cfg.KeyPath != "":
		keyData, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}

		var signer xssh.Signer
		if cfg.Password != "" {
			signer, err = xssh.ParsePrivateKeyWithPassphrase(keyData, []byte(cfg.Password))
		} else {
			signer, err = xssh.ParsePrivateKey(keyData)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		sshConfig.Auth = []xssh.AuthMethod{xssh.PublicKeys(signer)}
	case cfg.Password != "":
		sshConfig.Auth = []xssh.AuthMethod{xssh.Password(cfg.Password)}
	default:
		return nil, fmt.Errorf("no authentication method provided for SFTP")
	}

	return sshConfig, nil
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

// Upload uploads a backup file to the SFTP destination
func (sd *SFTPDestination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	destPath := path.Join(sd.basePath, path.Base(filename))
	log.Printf("[SFTPDest] Uploading %s to %s (%d bytes)", filename, destPath, sizeBytes)

	file, err := sd.sftpClient.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer file.Close()

	written, err := file.ReadFrom(reader)
	if err != nil {
		sd.sftpClient.Remove(destPath)
		return fmt.Errorf("failed to write remote file: %w", err)
	}

	if written != sizeBytes {
		sd.sftpClient.Remove(destPath)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", sizeBytes, written)
	}

	log.Printf("[SFTPDest] Upload complete: %s", filename)
	return nil
}

// Download downloads a backup file from the SFTP destination
func (sd *SFTPDestination) Download(filename string, writer io.Writer) error {
	srcPath := path.Join(sd.basePath, path.Base(filename))
	log.Printf("[SFTPDest] Downloading %s from %s", filename, srcPath)

	file, err := sd.sftpClient.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteTo(writer); err != nil {
		return fmt.Errorf("failed to read remote file: %w", err)
	}

	log.Printf("[SFTPDest] Download complete: %s", filename)
	return nil
}

// Delete removes a backup file from the SFTP destination
func (sd *SFTPDestination) Delete(filename string) error {
	destPath := path.Join(sd.basePath, path.Base(filename))
	log.Printf("[SFTPDest] Deleting %s", destPath)

	if err := sd.sftpClient.Remove(destPath); err != nil {
		return fmt.Errorf("failed to delete remote file: %w", err)
	}

	log.Printf("[SFTPDest] Delete complete: %s", filename)
	return nil
}

// List returns all backup files in the SFTP destination
func (sd *SFTPDestination) List() ([]BackupFile, error) {
	entries, err := sd.sftpClient.ReadDir(sd.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote directory: %w", err)
	}

	var files []BackupFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		files = append(files, BackupFile{
			Filename:  entry.Name(),
			SizeBytes: entry.Size(),
			CreatedAt: entry.ModTime().Unix(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt > files[j].CreatedAt
	})
	return files, nil
}

// GetType returns the destination type
func (sd *SFTPDestination) GetType() string {
	return "sftp"
}

// Location returns the sftp:// URL of the base path
func (sd *SFTPDestination) Location() string {
	return "sftp://" + sd.addr + path.Join("/", sd.basePath)
}
