package source

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	httpauth "github.com/go-git/go-git/v5/plumbing/transport/http"
	sshauth "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/skeema/knownhosts"
)

// Auth holds credentials for remote repositories. Basic credentials
// apply to http(s) remotes, the key pair to ssh remotes.
type Auth struct {
	Username         string
	Password         string
	SSHKeyPath       string
	SSHKeyPassphrase string
	KnownHostsPath   string
}

func (a Auth) method(url string) (transport.AuthMethod, error) {
	endpoint, err := transport.NewEndpoint(url)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(endpoint.Protocol) {
	case "ssh", "git+ssh":
		if strings.TrimSpace(a.SSHKeyPath) == "" {
			return nil, nil
		}
		return a.sshAuth(endpoint)
	case "http", "https":
		username := strings.TrimSpace(a.Username)
		if username == "" && a.Password == "" {
			return nil, nil
		}
		return &httpauth.BasicAuth{Username: username, Password: a.Password}, nil
	default:
		return nil, nil
	}
}

func (a Auth) sshAuth(endpoint *transport.Endpoint) (transport.AuthMethod, error) {
	key, err := os.ReadFile(a.SSHKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}

	username := strings.TrimSpace(endpoint.User)
	if username == "" {
		username = sshauth.DefaultUsername
	}

	pk, err := sshauth.NewPublicKeys(username, key, a.SSHKeyPassphrase)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(a.KnownHostsPath) == "" {
		return nil, errors.New("ssh known hosts configuration required")
	}

	db, err := knownhosts.NewDB(a.KnownHostsPath)
	if err != nil {
		return nil, err
	}

	host := hostWithPort(endpoint)
	if host != "" && len(db.HostKeyAlgorithms(host)) == 0 {
		return nil, fmt.Errorf("no known_hosts entry for %s", host)
	}

	pk.HostKeyCallbackHelper = sshauth.HostKeyCallbackHelper{HostKeyCallback: db.HostKeyCallback()}
	return pk, nil
}

func hostWithPort(endpoint *transport.Endpoint) string {
	host := strings.TrimSpace(endpoint.Host)
	if host == "" {
		return ""
	}
	port := endpoint.Port
	if port == 0 {
		port = 22
	}
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s:%d", host, port)
}
