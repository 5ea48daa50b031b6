package upload

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
)

const (
	connectAttempts   = 3
	connectRetryDelay = 5 * time.Second
)

// dialFunc builds an unconnected session for one bank. Tests swap it for
// a fake.
type dialFunc func(bank string, cfg BankConfig, creds Credentials, logger *slog.Logger) (Connection, error)

func defaultDial(bank string, cfg BankConfig, creds Credentials, logger *slog.Logger) (Connection, error) {
	switch cfg.Protocol {
	case ProtocolFTP, ProtocolFTPS:
		return newFTPConn(bank, cfg, creds, logger), nil
	case ProtocolSFTP:
		return newSFTPConn(bank, cfg, creds, logger), nil
	default:
		return nil, fmt.Errorf("unsupported protocol %q for %s", cfg.Protocol, bank)
	}
}

// Manager pools at most one connection per bank and reconnects with a
// fixed delay when the initial dial fails.
type Manager struct {
	logger *slog.Logger
	dial   dialFunc
	conns  map[string]Connection
}

// NewManager builds a connection manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, dial: defaultDial, conns: make(map[string]Connection)}
}

// Get returns a live connection for bank, reusing the pooled one when it
// still responds.
func (m *Manager) Get(bank string, creds Credentials) (Connection, error) {
	if conn, ok := m.conns[bank]; ok && conn.IsConnected() {
		return conn, nil
	}

	cfg, err := Config(bank)
	if err != nil {
		return nil, err
	}
	conn, err := m.dial(bank, cfg, creds, m.logger)
	if err != nil {
		return nil, err
	}

	attempt := 0
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(connectRetryDelay), connectAttempts-1)
	err = backoff.Retry(func() error {
		attempt++
		if err := conn.Connect(); err != nil {
			m.logger.Warn("connection attempt failed",
				"bank", bank, "attempt", attempt, "error", err)
			return err
		}
		return nil
	}, bo)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", bank, connectAttempts, err)
	}

	m.conns[bank] = conn
	return conn, nil
}

// Disconnect closes and drops the pooled connection for bank.
func (m *Manager) Disconnect(bank string) error {
	conn, ok := m.conns[bank]
	if !ok {
		return nil
	}
	delete(m.conns, bank)
	return conn.Disconnect()
}

// DisconnectAll closes every pooled connection, collecting all errors.
func (m *Manager) DisconnectAll() error {
	var result *multierror.Error
	for bank, conn := range m.conns {
		if err := conn.Disconnect(); err != nil {
			m.logger.Warn("failed to disconnect", "bank", bank, "error", err)
			result = multierror.Append(result, err)
		} else {
			m.logger.Info("disconnected", "bank", bank)
		}
	}
	m.conns = make(map[string]Connection)
	return result.ErrorOrNil()
}
