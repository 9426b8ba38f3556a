package backup

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/TheGojiOG/vuserver/internal/logging"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// hostKeyVerifier checks SFTP host keys against a known_hosts file and,
// when trustOnFirstUse is set, records keys of hosts it has never seen.
type hostKeyVerifier struct {
	path            string
	trustOnFirstUse bool
	mu              sync.Mutex
}

func newHostKeyCallback(knownHostsPath string, trustOnFirstUse bool) (ssh.HostKeyCallback, error) {
	if strings.TrimSpace(knownHostsPath) == "" {
		return nil, errors.New("known_hosts path is required for SFTP destinations")
	}

	if err := ensureKnownHostsFile(knownHostsPath); err != nil {
		return nil, err
	}

	v := &hostKeyVerifier{path: knownHostsPath, trustOnFirstUse: trustOnFirstUse}
	return v.verify, nil
}

func (v *hostKeyVerifier) verify(hostname string, remote net.Addr, key ssh.PublicKey) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Re-read on every dial so keys accepted by an earlier connection count.
	check, err := knownhosts.New(v.path)
	if err != nil {
		return fmt.Errorf("failed to read known_hosts: %w", err)
	}

	err = check(hostname, remote, key)
	if err == nil {
		return nil
	}

	var keyErr *knownhosts.KeyError
	if !errors.As(err, &keyErr) {
		return err
	}

	fingerprint := ssh.FingerprintSHA256(key)
	if len(keyErr.Want) > 0 {
		logging.L().Warn("sftp_host_key_changed", "host", hostname, "fingerprint", fingerprint)
		return fmt.Errorf("SSH host key changed for %s", hostname)
	}

	if !v.trustOnFirstUse {
		return fmt.Errorf("unknown SSH host key for %s (%s)", hostname, fingerprint)
	}

	if err := appendKnownHost(v.path, hostname, remote, key); err != nil {
		return err
	}
	logging.L().Info("sftp_host_key_accepted", "host", hostname, "fingerprint", fingerprint)
	return nil
}

func ensureKnownHostsFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create known_hosts directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create known_hosts file: %w", err)
	}
	return file.Close()
}

func appendKnownHost(path, hostname string, remote net.Addr, key ssh.PublicKey) error {
	line := knownhosts.Line(knownHostsAddresses(hostname, remote), key) + "\n"

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write known_hosts entry: %w", err)
	}
	return nil
}

// knownHostsAddresses returns the dialed name and, when it differs, the
// remote IP, both normalized by knownhosts.Normalize.
func knownHostsAddresses(hostname string, remote net.Addr) []string {
	var addrs []string
	if hostname != "" {
		addrs = append(addrs, knownhosts.Normalize(hostname))
	}
	if remote != nil {
		ip := knownhosts.Normalize(remote.String())
		if len(addrs) == 0 || ip != addrs[0] {
			addrs = append(addrs, ip)
		}
	}
	return addrs
}
