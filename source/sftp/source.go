// Package sftp provides an SFTP file source for omnivolume.
//
// Basic usage with password authentication:
//
//	src, err := sftp.New(sftp.Config{
//	    Host:     "example.com",
//	    User:     "username",
//	    Password: "password",
//	    Path:     "/images/disk.raw",
//	})
//
// With SSH key authentication and host key verification:
//
//	src, err := sftp.New(sftp.Config{
//	    Host:           "example.com",
//	    User:           "username",
//	    KeyFile:        "/path/to/id_ed25519",
//	    KnownHostsFile: "/home/me/.ssh/known_hosts",
//	    Path:           "/images/disk.raw",
//	})
package sftp

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/grokify/omnivolume"
)

func init() {
	omnivolume.Register("sftp", NewFromConfig)
}

// Source implements omnivolume.Source over a remote *sftp.File.
type Source struct {
	file       *sftp.File
	path       string
	sshClient  *ssh.Client
	sftpClient *sftp.Client
	ownsClient bool
	closed     bool
	mu         sync.RWMutex
}

// New dials the server described by cfg and opens cfg.Path.
// The SSH and SFTP connections are closed together with the source.
func New(cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30
	}

	var authMethods []ssh.AuthMethod

	if cfg.Password != "" {
		authMethods = append(authMethods, ssh.Password(cfg.Password))
	}

	if cfg.KeyFile != "" {
		keyAuth, err := keyFileAuth(cfg.KeyFile, cfg.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("sftp: loading key file: %w", err)
		}
		authMethods = append(authMethods, keyAuth)
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("sftp: no authentication method provided (password or key_file required)")
	}

	hostKeyCallback, err := hostKeyCallback(cfg.KnownHostsFile)
	if err != nil {
		return nil, err
	}

	sshConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		Timeout:         time.Duration(cfg.Timeout) * time.Second,
		HostKeyCallback: hostKeyCallback,
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	sshClient, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("sftp: SSH connection failed: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		if closeErr := sshClient.Close(); closeErr != nil {
			return nil, fmt.Errorf("sftp: SFTP session failed: %w (also failed to close SSH: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("sftp: SFTP session failed: %w", err)
	}

	src, err := open(sftpClient, fullPath(cfg.Root, cfg.Path), cfg.Access)
	if err != nil {
		_ = sftpClient.Close()
		_ = sshClient.Close()
		return nil, err
	}
	src.sshClient = sshClient
	src.ownsClient = true
	return src, nil
}

// NewWithClient opens p on an existing SFTP client. Closing the source
// closes only the remote file.
func NewWithClient(client *sftp.Client, p string, flags omnivolume.AccessFlags) (*Source, error) {
	if p == "" {
		return nil, ErrPathRequired
	}
	return open(client, p, flags)
}

func open(client *sftp.Client, p string, flags omnivolume.AccessFlags) (*Source, error) {
	flag, err := flags.OSFlags()
	if err != nil {
		return nil, err
	}

	if flags.Truncates() {
		if err := client.MkdirAll(path.Dir(p)); err != nil {
			return nil, fmt.Errorf("sftp: creating directory: %w", err)
		}
	}

	f, err := client.OpenFile(p, flag)
	if err != nil {
		return nil, translateError(err, p)
	}
	return &Source{file: f, path: p, sftpClient: client}, nil
}

// NewFromConfig creates a new SFTP source from a config map.
// This is used by the omnivolume registry.
func NewFromConfig(configMap map[string]string) (omnivolume.Source, error) {
	return New(ConfigFromMap(configMap))
}

// keyFileAuth creates an SSH auth method from a private key file.
func keyFileAuth(keyFile, passphrase string) (ssh.AuthMethod, error) {
	keyData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyData)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	return ssh.PublicKeys(signer), nil
}

// hostKeyCallback verifies host keys against knownHostsFile, or accepts
// any key when no file is configured.
func hostKeyCallback(knownHostsFile string) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // G106: opt-in verification via KnownHostsFile
	}
	cb, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("sftp: loading known hosts: %w", err)
	}
	return cb, nil
}

func fullPath(root, p string) string {
	if root == "" || path.IsAbs(p) {
		return p
	}
	return path.Join(root, p)
}

// Read reads from the current position.
func (s *Source) Read(p []byte) (int, error) {
	return s.file.Read(p)
}

// Write writes at the current position.
func (s *Source) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

// Seek moves the current position.
func (s *Source) Seek(offset int64, whence int) (int64, error) {
	return s.file.Seek(offset, whence)
}

// Size returns the remote file size.
func (s *Source) Size() (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, translateError(err, s.path)
	}
	return info.Size(), nil
}

// IsOpen reports whether Close has not been called yet.
func (s *Source) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// Name returns the remote path.
func (s *Source) Name() string {
	return s.path
}

// Close closes the remote file and, for sources created by New, the
// SFTP and SSH connections.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.ownsClient {
		if err := s.sftpClient.Close(); err != nil {
			errs = append(errs, err)
		}
		if s.sshClient != nil {
			if err := s.sshClient.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("sftp: close errors: %w", errors.Join(errs...))
	}
	return nil
}

// translateError converts SFTP errors to omnivolume errors.
// The path parameter provides context for error messages.
func translateError(err error, p string) error {
	if err == nil {
		return nil
	}

	if os.IsNotExist(err) {
		return omnivolume.NotFoundError("sftp file %s does not exist", p)
	}
	if os.IsPermission(err) {
		return fmt.Errorf("sftp file %s: %w", p, omnivolume.ErrPermissionDenied)
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		if os.IsNotExist(pathErr.Err) {
			return omnivolume.NotFoundError("sftp file %s does not exist", p)
		}
		if os.IsPermission(pathErr.Err) {
			return fmt.Errorf("sftp file %s: %w", p, omnivolume.ErrPermissionDenied)
		}
	}

	var statusErr *sftp.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.FxCode() {
		case sftp.ErrSSHFxNoSuchFile:
			return omnivolume.NotFoundError("sftp file %s does not exist", p)
		case sftp.ErrSSHFxPermissionDenied:
			return fmt.Errorf("sftp file %s: %w", p, omnivolume.ErrPermissionDenied)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("sftp: network error for %q: %w", p, err)
	}

	return fmt.Errorf("sftp: error for %q: %w", p, err)
}

// Ensure Source implements the omnivolume capability interfaces
var (
	_ omnivolume.Source       = (*Source)(nil)
	_ omnivolume.Sizer        = (*Source)(nil)
	_ omnivolume.OpenReporter = (*Source)(nil)
)
