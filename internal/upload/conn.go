package upload

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
)

// Server operations can stall for minutes on slow ingest hosts.
const connTimeout = 600 * time.Second

// progressThreshold is the file size above which upload progress is
// logged.
const progressThreshold = 10 * 1024 * 1024

// Connection is one live session to a bank's ingest server.
type Connection interface {
	Connect() error
	Disconnect() error
	// UploadFile stores localPath under remoteName, switching remote
	// directory or host first when the bank requires it.
	UploadFile(localPath, remoteName string) error
	IsConnected() bool
}

// ftpConn speaks FTP and explicit-TLS FTPS. Banks with per-content-type
// hosts reconnect transparently when consecutive files need different
// servers.
type ftpConn struct {
	bank   string
	cfg    BankConfig
	creds  Credentials
	logger *slog.Logger

	conn        *ftp.ServerConn
	currentHost string
	currentDir  string
}

func newFTPConn(bank string, cfg BankConfig, creds Credentials, logger *slog.Logger) *ftpConn {
	return &ftpConn{bank: bank, cfg: cfg, creds: creds, logger: logger}
}

func (c *ftpConn) Connect() error {
	return c.connectHost(c.cfg.HostFor(""))
}

func (c *ftpConn) connectHost(host string) error {
	addr := fmt.Sprintf("%s:%d", host, c.cfg.Port)
	opts := []ftp.DialOption{ftp.DialWithTimeout(connTimeout)}
	if c.cfg.Passive {
		// Classic PASV data connections; several bank endpoints mishandle
		// EPSV behind their load balancers.
		opts = append(opts, ftp.DialWithDisabledEPSV(true))
	}
	if c.cfg.Protocol == ProtocolFTPS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: host}))
	}

	c.logger.Info("connecting", "bank", c.bank, "protocol", string(c.cfg.Protocol), "addr", addr)
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to %s at %s: %w", c.bank, addr, err)
	}
	if err := conn.Login(c.creds.Username, c.creds.Password); err != nil {
		conn.Quit()
		return fmt.Errorf("login to %s failed: %w", c.bank, err)
	}

	c.conn = conn
	c.currentHost = host
	c.currentDir = ""
	c.logger.Info("connected", "bank", c.bank, "addr", addr)
	return nil
}

func (c *ftpConn) Disconnect() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Quit()
	c.conn = nil
	c.currentHost = ""
	if err != nil {
		return fmt.Errorf("failed to close connection to %s: %w", c.bank, err)
	}
	return nil
}

func (c *ftpConn) IsConnected() bool {
	if c.conn == nil {
		return false
	}
	return c.conn.NoOp() == nil
}

// ensureHost reconnects when the file belongs to a different ingest
// server than the current session.
func (c *ftpConn) ensureHost(localPath string) error {
	want := c.cfg.HostFor(localPath)
	if c.conn != nil && c.currentHost == want && c.IsConnected() {
		return nil
	}
	if c.conn != nil {
		c.logger.Info("switching ingest server",
			"bank", c.bank, "from", c.currentHost, "to", want)
		if err := c.Disconnect(); err != nil {
			c.logger.Warn("failed to close previous connection", "bank", c.bank, "error", err)
		}
	}
	return c.connectHost(want)
}

func (c *ftpConn) ensureDir(dir string) error {
	if dir == "" || dir == "/" || dir == c.currentDir {
		return nil
	}
	if err := c.conn.ChangeDir(dir); err != nil {
		return fmt.Errorf("failed to change directory to %s on %s: %w", dir, c.bank, err)
	}
	c.currentDir = dir
	return nil
}

func (c *ftpConn) UploadFile(localPath, remoteName string) error {
	if err := c.ensureHost(localPath); err != nil {
		return err
	}
	if err := c.ensureDir(c.cfg.TargetDirectory(c.bank, localPath)); err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	var r io.Reader = f
	if info.Size() > progressThreshold {
		r = &progressReader{r: f, total: info.Size(), logger: c.logger, name: filepath.Base(localPath)}
	}

	c.logger.Info("uploading", "bank", c.bank, "file", remoteName, "bytes", info.Size())
	if err := c.conn.Stor(remoteName, r); err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", remoteName, c.bank, err)
	}
	return nil
}

// progressReader logs transfer progress roughly every 10 MB.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	logged int64
	logger *slog.Logger
	name   string
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)
	if p.read-p.logged >= progressThreshold {
		p.logged = p.read
		pct := float64(p.read) / float64(p.total) * 100
		p.logger.Debug("upload progress", "file", p.name,
			"transferred", p.read, "total", p.total, "percent", fmt.Sprintf("%.1f", pct))
	}
	return n, err
}
