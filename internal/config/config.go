package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the runtime settings of the desktop client.
type Config struct {
	APIURL              string
	DataDir             string
	DBFile              string
	LogLevel            string
	LogFile             string
	RequestTimeout      time.Duration
	AddressCheckTimeout time.Duration
	RedirectDelay       time.Duration
	Endpoints           Endpoints
}

// Endpoints lists the backend paths the client talks to.
type Endpoints struct {
	Login        string
	CurrentUser  string
	AddressCheck string
	Messages     string
}

const (
	DefaultAPIURL              = "http://127.0.0.1:8000"
	DefaultDBFile              = "portal.db"
	DefaultRequestTimeout      = 15 * time.Second
	DefaultAddressCheckTimeout = 5 * time.Second
	// DefaultRedirectDelay keeps the success message on screen before the
	// destination window replaces the login window.
	DefaultRedirectDelay = 600 * time.Millisecond
)

// Load reads configuration from .env, falling back to config.yaml, with
// environment variables taking precedence. Missing files are not an error;
// the defaults describe a local backend.
func Load(searchDir string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	for _, name := range []string{".env", "config.yaml"} {
		path := filepath.Join(searchDir, name)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		break
	}

	cfg := Config{
		APIURL:              strings.TrimRight(strings.TrimSpace(v.GetString("API_URL")), "/"),
		DataDir:             v.GetString("DATA_DIR"),
		DBFile:              v.GetString("DB_FILE"),
		LogLevel:            strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		LogFile:             v.GetString("LOG_FILE"),
		RequestTimeout:      v.GetDuration("REQUEST_TIMEOUT"),
		AddressCheckTimeout: v.GetDuration("ADDRESS_CHECK_TIMEOUT"),
		RedirectDelay:       v.GetDuration("REDIRECT_DELAY"),
		Endpoints: Endpoints{
			Login:        v.GetString("LOGIN_PATH"),
			CurrentUser:  v.GetString("ME_PATH"),
			AddressCheck: v.GetString("ADDRESS_CHECK_PATH"),
			Messages:     v.GetString("MESSAGES_PATH"),
		},
	}
	if cfg.APIURL == "" {
		return Config{}, errors.New("config: API_URL is empty")
	}
	if cfg.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return Config{}, err
		}
		cfg.DataDir = dir
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, "logs", "client.log")
	}
	if cfg.RedirectDelay < 0 {
		cfg.RedirectDelay = 0
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("API_URL", DefaultAPIURL)
	v.SetDefault("DB_FILE", DefaultDBFile)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REQUEST_TIMEOUT", DefaultRequestTimeout)
	v.SetDefault("ADDRESS_CHECK_TIMEOUT", DefaultAddressCheckTimeout)
	v.SetDefault("REDIRECT_DELAY", DefaultRedirectDelay)
	v.SetDefault("LOGIN_PATH", "/api/auth/login/")
	v.SetDefault("ME_PATH", "/api/me/")
	v.SetDefault("ADDRESS_CHECK_PATH", "/api/addresses/check/")
	v.SetDefault("MESSAGES_PATH", "/api/messages/")
}

// defaultDataDir returns ~/.portal-client.
func defaultDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".portal-client"), nil
}
