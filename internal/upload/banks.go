// Package upload delivers media files to photobank ingest servers over
// FTP, FTPS and SFTP.
package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Protocol selects the transfer implementation for a bank.
type Protocol string

const (
	ProtocolFTP          Protocol = "ftp"
	ProtocolFTPS         Protocol = "ftps"
	ProtocolSFTP         Protocol = "sftp"
	ProtocolDiscontinued Protocol = "discontinued"
)

// ContentType routes files of multi-host banks to the right server.
type ContentType string

const (
	ContentPhotos ContentType = "photos"
	ContentVideo  ContentType = "video"
	ContentAudio  ContentType = "audio"
)

// BankConfig describes one bank's ingest endpoint.
type BankConfig struct {
	Protocol Protocol
	Host     string
	Port     int
	// Hosts overrides Host per content type for banks that run separate
	// ingest servers for photos, video and audio.
	Hosts   map[ContentType]string
	Passive bool
	// Directory is the default remote directory. Directories, when set,
	// routes files by type through TargetDirectory.
	Directory        string
	Directories      map[string]string
	SupportedFormats []string
	Discontinued     bool
	DiscontinuedNote string
}

var bankConfigs = map[string]BankConfig{
	"ShutterStock": {
		Protocol:         ProtocolFTPS,
		Host:             "ftps.shutterstock.com",
		Port:             21,
		Passive:          true,
		Directory:        "/",
		SupportedFormats: []string{".jpg", ".eps", ".tiff", ".mp4", ".mov"},
	},
	"AdobeStock": {
		Protocol:         ProtocolSFTP,
		Host:             "sftp.contributor.adobestock.com",
		Port:             22,
		Directory:        "/",
		SupportedFormats: []string{".jpg", ".ai", ".eps", ".mp4", ".mov"},
	},
	"Dreamstime": {
		Protocol:  ProtocolFTP,
		Host:      "upload.dreamstime.com",
		Port:      21,
		Passive:   true,
		Directory: "/",
		Directories: map[string]string{
			"photos":     "/",
			"additional": "/additional",
			"video":      "/video",
			"audio":      "/audio",
		},
		SupportedFormats: []string{".jpg", ".eps", ".mov", ".mp4", ".wav"},
	},
	"DepositPhotos": {
		Protocol:         ProtocolFTP,
		Host:             "ftp.depositphotos.com",
		Port:             21,
		Passive:          true,
		Directory:        "/",
		SupportedFormats: []string{".jpg", ".zip"},
	},
	"BigStockPhoto": {
		Protocol:         ProtocolDiscontinued,
		Discontinued:     true,
		DiscontinuedNote: "BigStockPhoto no longer accepts uploads",
	},
	"123RF": {
		Protocol: ProtocolFTP,
		Port:     21,
		Passive:  true,
		Hosts: map[ContentType]string{
			ContentPhotos: "ftp.123rf.com",
			ContentVideo:  "footage.ftp.123rf.com",
			ContentAudio:  "audio.ftp.123rf.com",
		},
		Directory:        "/",
		SupportedFormats: []string{".jpg", ".eps", ".mp4", ".mp3"},
	},
	"CanStockPhoto": {
		Protocol:         ProtocolDiscontinued,
		Discontinued:     true,
		DiscontinuedNote: "CanStockPhoto shut down and no longer accepts uploads",
	},
	"Pond5": {
		Protocol:         ProtocolFTP,
		Host:             "ftp.pond5.com",
		Port:             21,
		Passive:          true,
		Directory:        "/",
		SupportedFormats: []string{".jpg", ".mp4", ".mov", ".wav", ".eps"},
	},
	"Alamy": {
		Protocol:  ProtocolFTP,
		Host:      "upload.alamy.com",
		Port:      21,
		Passive:   true,
		Directory: "/",
		Directories: map[string]string{
			"stock":   "/Stock",
			"vectors": "/Vectors",
		},
		SupportedFormats: []string{".jpg", ".tiff", ".eps"},
	},
	"GettyImages": {
		Protocol:         ProtocolDiscontinued,
		Discontinued:     true,
		DiscontinuedNote: "GettyImages ingest requires the ESP portal, not FTP",
	},
}

// Config returns the endpoint configuration for bank.
func Config(bank string) (BankConfig, error) {
	cfg, ok := bankConfigs[bank]
	if !ok {
		return BankConfig{}, fmt.Errorf("unsupported photobank %q", bank)
	}
	return cfg, nil
}

// Supports reports whether the bank accepts the file's extension.
func (c BankConfig) Supports(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, f := range c.SupportedFormats {
		if f == ext {
			return true
		}
	}
	return false
}

// SupportedExtensions collects every extension accepted by at least one
// bank.
func SupportedExtensions() map[string]bool {
	out := make(map[string]bool)
	for _, cfg := range bankConfigs {
		for _, ext := range cfg.SupportedFormats {
			out[ext] = true
		}
	}
	return out
}

var (
	videoExtensions = map[string]bool{
		".mp4": true, ".mov": true, ".avi": true, ".wmv": true, ".mkv": true, ".flv": true, ".webm": true,
	}
	audioExtensions = map[string]bool{
		".mp3": true, ".wav": true, ".flac": true, ".aac": true, ".ogg": true, ".wma": true,
	}
	vectorExtensions = map[string]bool{".eps": true, ".ai": true}
)

// ContentTypeOf classifies a file for multi-host routing.
func ContentTypeOf(filename string) ContentType {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case videoExtensions[ext]:
		return ContentVideo
	case audioExtensions[ext]:
		return ContentAudio
	default:
		return ContentPhotos
	}
}

// HostFor resolves the ingest host for a file, honoring per-content-type
// hosts.
func (c BankConfig) HostFor(filename string) string {
	if len(c.Hosts) == 0 {
		return c.Host
	}
	if host, ok := c.Hosts[ContentTypeOf(filename)]; ok {
		return host
	}
	return c.Hosts[ContentPhotos]
}

// TargetDirectory picks the remote directory for a file. Banks with a
// single directory always use it; Alamy splits vectors from stock and
// Dreamstime routes by media type.
func (c BankConfig) TargetDirectory(bank, filename string) string {
	if len(c.Directories) == 0 {
		if c.Directory != "" {
			return c.Directory
		}
		return "/"
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch bank {
	case "Alamy":
		if vectorExtensions[ext] {
			return c.Directories["vectors"]
		}
		return c.Directories["stock"]
	case "Dreamstime":
		switch {
		case videoExtensions[ext]:
			return c.Directories["video"]
		case audioExtensions[ext]:
			return c.Directories["audio"]
		case vectorExtensions[ext] || ext == ".raw" || ext == ".nef" || ext == ".dng":
			return c.Directories["additional"]
		default:
			return c.Directories["photos"]
		}
	}
	return "/"
}

// Credentials is one bank's login pair.
type Credentials struct {
	Username string
	Password string
}

// envPrefix normalizes a bank name into its environment variable prefix.
// A leading digit is moved to the back so the name stays a valid
// identifier prefix.
func envPrefix(bank string) string {
	upper := strings.ToUpper(bank)
	if bank == "123RF" {
		return "RF123"
	}
	return upper
}

// CredentialsFromEnv reads <BANK>_FTP_USERNAME and <BANK>_FTP_PASSWORD.
func CredentialsFromEnv(bank string) (Credentials, error) {
	prefix := envPrefix(bank)
	user := os.Getenv(prefix + "_FTP_USERNAME")
	pass := os.Getenv(prefix + "_FTP_PASSWORD")
	if user == "" || pass == "" {
		return Credentials{}, fmt.Errorf("missing credentials for %s, set %s_FTP_USERNAME and %s_FTP_PASSWORD",
			bank, prefix, prefix)
	}
	return Credentials{Username: user, Password: pass}, nil
}
