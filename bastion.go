package goftp

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// connectToBastion opens the SSH connection FTP traffic is tunnelled through.
func connectToBastion(config Config) (*ssh.Client, error) {
	var authMethods []ssh.AuthMethod

	if config.BastionPassword != "" {
		authMethods = append(authMethods, ssh.Password(config.BastionPassword))
	} else {
		var keyData []byte
		var err error

		if config.BastionKey != "" {
			keyData = []byte(config.BastionKey)
		} else if config.BastionKeyPath != "" {
			keyData, err = os.ReadFile(ExpandPath(config.BastionKeyPath))
			if err != nil {
				return nil, fmt.Errorf("failed to read bastion key file: %w", err)
			}
		} else {
			return nil, fmt.Errorf("no SSH key or password configured for bastion host")
		}

		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse bastion SSH key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	bastionUser := config.BastionUser
	if bastionUser == "" {
		bastionUser = config.User
	}

	hostKeyCallback, err := buildHostKeyCallback(config)
	if err != nil {
		return nil, fmt.Errorf("failed to configure host key verification for bastion: %w", err)
	}

	bastionConfig := &ssh.ClientConfig{
		User:            bastionUser,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         config.Timeout,
	}

	bastionAddr := fmt.Sprintf("%s:%d", config.BastionHost, config.BastionPort)
	return ssh.Dial("tcp", bastionAddr, bastionConfig)
}

// bastionDialer returns a dial function that opens every FTP connection,
// control and passive data alike, through the bastion.
func bastionDialer(client *ssh.Client) func(network, address string) (net.Conn, error) {
	return func(network, address string) (net.Conn, error) {
		return client.Dial(network, address)
	}
}

func buildHostKeyCallback(config Config) (ssh.HostKeyCallback, error) {
	logger := config.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	if config.InsecureIgnoreHostKey {
		logger.Info("bastion host key verification disabled, this is insecure", "bastion", config.BastionHost)
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if config.KnownHostsFile != "" {
		expandedPath := ExpandPath(config.KnownHostsFile)
		callback, err := knownhosts.New(expandedPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts file %s: %w", expandedPath, err)
		}
		return callback, nil
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		defaultKnownHosts := filepath.Join(homeDir, ".ssh", "known_hosts")
		if _, err := os.Stat(defaultKnownHosts); err == nil {
			callback, err := knownhosts.New(defaultKnownHosts)
			if err == nil {
				return callback, nil
			}
			logger.Info("could not parse known_hosts file", "path", defaultKnownHosts, "error", err.Error())
		}
	}

	return nil, fmt.Errorf("no known_hosts file found for bastion %s; set KnownHostsFile or InsecureIgnoreHostKey", config.BastionHost)
}

// ExpandPath expands ~ to home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
