package upload

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// sftpConn speaks SFTP for banks that front their ingest with SSH.
type sftpConn struct {
	bank   string
	cfg    BankConfig
	creds  Credentials
	logger *slog.Logger

	ssh    *ssh.Client
	client *sftp.Client
}

func newSFTPConn(bank string, cfg BankConfig, creds Credentials, logger *slog.Logger) *sftpConn {
	return &sftpConn{bank: bank, cfg: cfg, creds: creds, logger: logger}
}

func (c *sftpConn) Connect() error {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	sshCfg := &ssh.ClientConfig{
		User:            c.creds.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(c.creds.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connTimeout,
	}

	c.logger.Info("connecting", "bank", c.bank, "protocol", "sftp", "addr", addr)
	sshClient, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to %s at %s: %w", c.bank, addr, err)
	}
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return fmt.Errorf("failed to open sftp session to %s: %w", c.bank, err)
	}

	c.ssh = sshClient
	c.client = client
	c.logger.Info("connected", "bank", c.bank, "addr", addr)
	return nil
}

func (c *sftpConn) Disconnect() error {
	var err error
	if c.client != nil {
		err = c.client.Close()
		c.client = nil
	}
	if c.ssh != nil {
		if closeErr := c.ssh.Close(); err == nil {
			err = closeErr
		}
		c.ssh = nil
	}
	if err != nil {
		return fmt.Errorf("failed to close connection to %s: %w", c.bank, err)
	}
	return nil
}

func (c *sftpConn) IsConnected() bool {
	if c.client == nil {
		return false
	}
	_, err := c.client.Getwd()
	return err == nil
}

func (c *sftpConn) UploadFile(localPath, remoteName string) error {
	if c.client == nil {
		return fmt.Errorf("not connected to %s", c.bank)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	remotePath := path.Join(c.cfg.TargetDirectory(c.bank, localPath), remoteName)
	dst, err := c.client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create %s on %s: %w", remotePath, c.bank, err)
	}
	defer dst.Close()

	var r io.Reader = src
	if info.Size() > progressThreshold {
		r = &progressReader{r: src, total: info.Size(), logger: c.logger, name: filepath.Base(localPath)}
	}

	c.logger.Info("uploading", "bank", c.bank, "file", remoteName, "bytes", info.Size())
	if _, err := io.Copy(dst, r); err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", remoteName, c.bank, err)
	}
	return nil
}
