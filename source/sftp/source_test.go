package sftp

import (
	"io"
	"net"
	"os"
	"testing"

	"github.com/pkg/sftp"

	"github.com/grokify/omnivolume"
)

// newTestClient returns an SFTP client talking to an in-memory server.
func newTestClient(t *testing.T) *sftp.Client {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go func() { _ = server.Serve() }()

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	if err != nil {
		t.Fatalf("NewClientPipe failed: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client
}

func putFile(t *testing.T, client *sftp.Client, p string, data []byte) {
	t.Helper()
	f, err := client.Create(p)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestNewWithClientRead(t *testing.T) {
	client := newTestClient(t)
	putFile(t, client, "/disk.raw", []byte("some data"))

	src, err := NewWithClient(client, "/disk.raw", omnivolume.AccessRead)
	if err != nil {
		t.Fatalf("NewWithClient failed: %v", err)
	}
	defer func() { _ = src.Close() }()

	if src.Name() != "/disk.raw" {
		t.Errorf("Name = %q, want %q", src.Name(), "/disk.raw")
	}

	size, err := src.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 9 {
		t.Errorf("Size = %d, want 9", size)
	}

	if _, err := src.Seek(5, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	content, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(content) != "data" {
		t.Errorf("content = %q, want %q", content, "data")
	}
}

func TestNewWithClientHandle(t *testing.T) {
	client := newTestClient(t)
	putFile(t, client, "/disk.raw", []byte("Hellodata"))

	src, err := NewWithClient(client, "/disk.raw", omnivolume.AccessRead)
	if err != nil {
		t.Fatalf("NewWithClient failed: %v", err)
	}
	h, err := omnivolume.OpenSource(src, omnivolume.AccessRead)
	if err != nil {
		t.Fatalf("OpenSource failed: %v", err)
	}

	buf := make([]byte, 4)
	if _, err := h.ReadAtOffset(buf, 5); err != nil {
		t.Fatalf("ReadAtOffset failed: %v", err)
	}
	if string(buf) != "data" {
		t.Errorf("ReadAtOffset = %q, want %q", buf, "data")
	}

	if err := h.Free(); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if src.IsOpen() {
		t.Error("Free should close the source")
	}
}

func TestNewWithClientNotFound(t *testing.T) {
	client := newTestClient(t)

	_, err := NewWithClient(client, "/missing.raw", omnivolume.AccessRead)
	if !omnivolume.IsNotFound(err) {
		t.Errorf("NewWithClient missing file error = %v, want not found", err)
	}
}

func TestNewWithClientEmptyPath(t *testing.T) {
	client := newTestClient(t)

	if _, err := NewWithClient(client, "", omnivolume.AccessRead); err != ErrPathRequired {
		t.Errorf("NewWithClient empty path error = %v, want ErrPathRequired", err)
	}
}

func TestTranslateError(t *testing.T) {
	if err := translateError(nil, "p"); err != nil {
		t.Errorf("translateError(nil) = %v, want nil", err)
	}
	if err := translateError(os.ErrNotExist, "p"); !omnivolume.IsNotFound(err) {
		t.Errorf("translateError(ErrNotExist) = %v, want not found", err)
	}
	if err := translateError(os.ErrPermission, "p"); !omnivolume.IsPermissionDenied(err) {
		t.Errorf("translateError(ErrPermission) = %v, want permission denied", err)
	}
	err := translateError(&os.PathError{Op: "open", Path: "p", Err: os.ErrNotExist}, "p")
	if !omnivolume.IsNotFound(err) {
		t.Errorf("translateError(PathError) = %v, want not found", err)
	}
}

func TestFullPath(t *testing.T) {
	tests := []struct {
		root, p, want string
	}{
		{"", "disk.raw", "disk.raw"},
		{"/images", "disk.raw", "/images/disk.raw"},
		{"/images", "/abs/disk.raw", "/abs/disk.raw"},
	}

	for _, tt := range tests {
		if got := fullPath(tt.root, tt.p); got != tt.want {
			t.Errorf("fullPath(%q, %q) = %q, want %q", tt.root, tt.p, got, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{Host: "h", User: "u", Path: "/p", Access: omnivolume.AccessRead}, false},
		{"missing host", Config{User: "u", Path: "/p", Access: omnivolume.AccessRead}, true},
		{"missing user", Config{Host: "h", Path: "/p", Access: omnivolume.AccessRead}, true},
		{"missing path", Config{Host: "h", User: "u", Access: omnivolume.AccessRead}, true},
		{"missing access", Config{Host: "h", User: "u", Path: "/p"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigFromMap(t *testing.T) {
	config := ConfigFromMap(map[string]string{
		"host":     "example.com",
		"port":     "2222",
		"user":     "alice",
		"password": "secret",
		"path":     "disk.raw",
		"root":     "/images",
		"access":   "rw",
		"timeout":  "5",
	})

	if config.Host != "example.com" {
		t.Errorf("Host = %q, want %q", config.Host, "example.com")
	}
	if config.Port != 2222 {
		t.Errorf("Port = %d, want 2222", config.Port)
	}
	if config.User != "alice" {
		t.Errorf("User = %q, want %q", config.User, "alice")
	}
	if config.Password != "secret" {
		t.Errorf("Password = %q, want %q", config.Password, "secret")
	}
	if config.Path != "disk.raw" || config.Root != "/images" {
		t.Errorf("Path, Root = %q, %q, want %q, %q", config.Path, config.Root, "disk.raw", "/images")
	}
	if config.Access != omnivolume.AccessReadWrite {
		t.Errorf("Access = %s, want read|write", config.Access)
	}
	if config.Timeout != 5 {
		t.Errorf("Timeout = %d, want 5", config.Timeout)
	}

	config = ConfigFromMap(map[string]string{"access": "bogus", "port": "x"})
	if config.Port != 22 {
		t.Errorf("Port = %d, want default 22", config.Port)
	}
	if config.Access.Valid() {
		t.Error("bogus access should leave invalid flags for Validate to report")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OMNIVOLUME_SFTP_HOST", "env-host")
	t.Setenv("OMNIVOLUME_SFTP_USER", "env-user")
	t.Setenv("OMNIVOLUME_SFTP_PATH", "/env/disk.raw")
	t.Setenv("OMNIVOLUME_SFTP_PORT", "2022")

	config := ConfigFromEnv()
	if config.Host != "env-host" {
		t.Errorf("Host = %q, want %q", config.Host, "env-host")
	}
	if config.User != "env-user" {
		t.Errorf("User = %q, want %q", config.User, "env-user")
	}
	if config.Path != "/env/disk.raw" {
		t.Errorf("Path = %q, want %q", config.Path, "/env/disk.raw")
	}
	if config.Port != 2022 {
		t.Errorf("Port = %d, want 2022", config.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.Port != 22 {
		t.Errorf("Port = %d, want 22", config.Port)
	}
	if config.Timeout != 30 {
		t.Errorf("Timeout = %d, want 30", config.Timeout)
	}
	if config.Access != omnivolume.AccessRead {
		t.Errorf("Access = %s, want read", config.Access)
	}
}

func TestNewNoAuth(t *testing.T) {
	_, err := New(Config{Host: "h", User: "u", Path: "/p", Access: omnivolume.AccessRead})
	if err == nil {
		t.Error("New without auth should fail")
	}
}

func TestRegistry(t *testing.T) {
	if !omnivolume.IsRegistered("sftp") {
		t.Error("sftp source should be registered")
	}
}
