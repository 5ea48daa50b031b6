package upload

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"

	"github.com/dannyjpn/photostock/internal/export"
)

const uploadAttempts = 3

// Options configures one upload run.
type Options struct {
	// MediaDir holds the prepared files to deliver.
	MediaDir string
	// ExportDir must contain the bank submission files written by a prior
	// export run; uploading without metadata gets files rejected.
	ExportDir string
	Prefix    string
	Banks     []string
	// DryRun filters and validates the bank connections without
	// transferring any file.
	DryRun bool
}

// BankStats tallies one bank's run.
type BankStats struct {
	Success      int
	Failure      int
	Skipped      int
	Errored      int
	Discontinued bool
}

// Failed reports whether anything went wrong for the bank.
func (s BankStats) Failed() bool {
	return s.Failure > 0 || s.Errored > 0
}

// Uploader delivers prepared media to the configured banks.
type Uploader struct {
	manager *Manager
	logger  *slog.Logger
	creds   func(bank string) (Credentials, error)
}

// NewUploader builds an uploader reading credentials from the
// environment.
func NewUploader(manager *Manager, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{manager: manager, logger: logger, creds: CredentialsFromEnv}
}

// Run uploads every compatible file in MediaDir to each requested bank
// and returns per-bank tallies plus the collected failures.
func (u *Uploader) Run(opts Options) (map[string]BankStats, error) {
	files, err := u.scanMediaDir(opts.MediaDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		u.logger.Warn("no media files found", "dir", opts.MediaDir)
		return map[string]BankStats{}, nil
	}
	u.logger.Info("media scan finished", "dir", opts.MediaDir, "files", len(files))

	var result *multierror.Error
	stats := make(map[string]BankStats, len(opts.Banks))
	for _, bank := range opts.Banks {
		bankStats, err := u.uploadBank(bank, files, opts)
		if err != nil {
			result = multierror.Append(result, err)
		}
		stats[bank] = bankStats
	}

	if err := u.manager.DisconnectAll(); err != nil {
		result = multierror.Append(result, err)
	}
	return stats, result.ErrorOrNil()
}

// scanMediaDir lists files in dir with an extension some bank accepts.
func (u *Uploader) scanMediaDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan media directory %s: %w", dir, err)
	}
	supported := SupportedExtensions()

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if supported[ext] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (u *Uploader) uploadBank(bank string, files []string, opts Options) (BankStats, error) {
	cfg, err := Config(bank)
	if err != nil {
		return BankStats{Errored: len(files)}, err
	}

	if cfg.Discontinued {
		u.logger.Warn("bank discontinued, skipping", "bank", bank, "note", cfg.DiscontinuedNote)
		return BankStats{Skipped: len(files), Discontinued: true}, nil
	}

	var uploadable []string
	stats := BankStats{}
	for _, f := range files {
		if cfg.Supports(f) {
			uploadable = append(uploadable, f)
		} else {
			stats.Skipped++
		}
	}
	if len(uploadable) == 0 {
		u.logger.Info("no compatible files", "bank", bank)
		return stats, nil
	}

	exportCSV := export.OutputPath(opts.ExportDir, opts.Prefix, bank)
	if _, err := os.Stat(exportCSV); err != nil {
		stats.Errored = len(uploadable)
		return stats, fmt.Errorf("export file %s not found for %s, run export first: %w", exportCSV, bank, err)
	}

	creds, err := u.creds(bank)
	if err != nil {
		stats.Errored = len(uploadable)
		return stats, err
	}
	conn, err := u.manager.Get(bank, creds)
	if err != nil {
		stats.Errored = len(uploadable)
		return stats, err
	}

	// A dry run still logs in, so bad credentials or hosts surface
	// before a real run; only the transfers are skipped.
	if opts.DryRun {
		for _, f := range uploadable {
			u.logger.Info("dry run, would upload", "bank", bank, "file", filepath.Base(f))
			stats.Success++
		}
		return stats, nil
	}

	var result *multierror.Error
	for _, f := range uploadable {
		if err := u.uploadFile(conn, bank, f); err != nil {
			u.logger.Error("upload failed", "bank", bank, "file", filepath.Base(f), "error", err)
			stats.Failure++
			result = multierror.Append(result, err)
			continue
		}
		stats.Success++
	}

	u.logger.Info("bank upload finished", "bank", bank,
		"success", stats.Success, "failure", stats.Failure, "skipped", stats.Skipped)
	return stats, result.ErrorOrNil()
}

// uploadFile retries transient transfer failures with exponential
// backoff. Reconnection happens inside the connection when the session
// dropped mid-run.
func (u *Uploader) uploadFile(conn Connection, bank, localPath string) error {
	remoteName := filepath.Base(localPath)
	attempt := 0
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uploadAttempts-1)
	return backoff.Retry(func() error {
		attempt++
		if err := conn.UploadFile(localPath, remoteName); err != nil {
			u.logger.Warn("upload attempt failed",
				"bank", bank, "file", remoteName, "attempt", attempt, "error", err)
			return err
		}
		return nil
	}, bo)
}
