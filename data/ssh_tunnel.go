package data

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHTunnel forwards a local port to the warehouse through an SSH jump host,
// optionally hopping through a bastion first.
type SSHTunnel struct {
	sshHost        string
	sshPort        int
	sshUser        string
	sshKeyPath     string
	remoteHost     string
	remotePort     int
	bastionHost    string
	bastionPort    int
	bastionUser    string
	bastionKeyPath string

	localPort   int
	listener    net.Listener
	bastionConn *ssh.Client
	targetConn  *ssh.Client
	stopChan    chan struct{}
}

// NewSSHTunnel creates a new SSHTunnel instance
func NewSSHTunnel(sshHost string, sshPort int, sshUser string, sshKeyPath string,
	remoteHost string, remotePort int,
	bastionHost string, bastionPort int, bastionUser string, bastionKeyPath string) *SSHTunnel {

	if sshPort == 0 {
		sshPort = 22
	}
	if bastionPort == 0 {
		bastionPort = 22
	}

	return &SSHTunnel{
		sshHost:        sshHost,
		sshPort:        sshPort,
		sshUser:        sshUser,
		sshKeyPath:     sshKeyPath,
		remoteHost:     remoteHost,
		remotePort:     remotePort,
		bastionHost:    bastionHost,
		bastionPort:    bastionPort,
		bastionUser:    bastionUser,
		bastionKeyPath: bastionKeyPath,
		stopChan:       make(chan struct{}),
	}
}

// loadSigner loads and parses an SSH private key, expanding ~ and env vars.
func loadSigner(keyPath string) (ssh.Signer, error) {
	expanded := os.ExpandEnv(keyPath)
	if len(expanded) >= 2 && expanded[:2] == "~/" {
		home, _ := os.UserHomeDir()
		expanded = filepath.Join(home, expanded[2:])
	}

	keyData, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key file: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key: %w", err)
	}
	return signer, nil
}

// clientConfig builds the ssh.ClientConfig for a hop.
func clientConfig(user string, keyPath string) (*ssh.ClientConfig, error) {
	signer, err := loadSigner(keyPath)
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}, nil
}

// dialTarget connects to the SSH jump host, through the bastion when one is
// configured.
func (t *SSHTunnel) dialTarget() error {
	targetAddr := fmt.Sprintf("%s:%d", t.sshHost, t.sshPort)

	targetCfg, err := clientConfig(t.sshUser, t.sshKeyPath)
	if err != nil {
		return err
	}

	if t.bastionHost == "" {
		client, err := ssh.Dial("tcp", targetAddr, targetCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to SSH host %s: %w", targetAddr, err)
		}
		t.targetConn = client
		return nil
	}

	// Double hop: bastion first, then the jump host through it.
	bastionUser := t.bastionUser
	if bastionUser == "" {
		bastionUser = t.sshUser
	}
	bastionKeyPath := t.bastionKeyPath
	if bastionKeyPath == "" {
		bastionKeyPath = t.sshKeyPath
	}

	bastionCfg, err := clientConfig(bastionUser, bastionKeyPath)
	if err != nil {
		return err
	}

	bastionAddr := fmt.Sprintf("%s:%d", t.bastionHost, t.bastionPort)
	bastionClient, err := ssh.Dial("tcp", bastionAddr, bastionCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to bastion %s: %w", bastionAddr, err)
	}

	conn, err := bastionClient.Dial("tcp", targetAddr)
	if err != nil {
		bastionClient.Close()
		return fmt.Errorf("failed to dial %s through bastion: %w", targetAddr, err)
	}

	ncc, chans, reqs, err := ssh.NewClientConn(conn, targetAddr, targetCfg)
	if err != nil {
		conn.Close()
		bastionClient.Close()
		return fmt.Errorf("failed to establish SSH through bastion: %w", err)
	}

	t.bastionConn = bastionClient
	t.targetConn = ssh.NewClient(ncc, chans, reqs)
	return nil
}

// Start brings up the tunnel and returns the local port to connect to.
func (t *SSHTunnel) Start() (int, error) {
	if t.localPort != 0 {
		return t.localPort, nil
	}

	if err := t.dialTarget(); err != nil {
		return 0, err
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Stop()
		return 0, fmt.Errorf("failed to create local listener: %w", err)
	}
	t.listener = listener
	t.localPort = listener.Addr().(*net.TCPAddr).Port

	go t.acceptLoop()

	return t.localPort, nil
}

// acceptLoop forwards local connections to the warehouse through SSH.
func (t *SSHTunnel) acceptLoop() {
	remoteAddr := fmt.Sprintf("%s:%d", t.remoteHost, t.remotePort)
	for {
		clientConn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.stopChan:
				return
			default:
				continue
			}
		}

		remoteConn, err := t.targetConn.Dial("tcp", remoteAddr)
		if err != nil {
			clientConn.Close()
			continue
		}

		go proxy(clientConn, remoteConn)
		go proxy(remoteConn, clientConn)
	}
}

func proxy(dst io.WriteCloser, src io.ReadCloser) {
	defer dst.Close()
	defer src.Close()
	_, _ = io.Copy(dst, src)
}

// Stop tears down the tunnel and all SSH connections.
func (t *SSHTunnel) Stop() {
	select {
	case <-t.stopChan:
	default:
		close(t.stopChan)
	}

	if t.listener != nil {
		t.listener.Close()
		t.listener = nil
	}
	if t.targetConn != nil {
		t.targetConn.Close()
		t.targetConn = nil
	}
	if t.bastionConn != nil {
		t.bastionConn.Close()
		t.bastionConn = nil
	}
	t.localPort = 0
}
