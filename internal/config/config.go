package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bigredeye/cqa/pkg/conf"
)

const (
	StaticMode = "static"
	GitlabMode = "gitlab"
	ApiMode    = "api"
)

type Config struct {
	Server struct {
		ListenAddress     string
		MetricsAddress    string
		LoopbackAddresses []string
		BlockedPaths      []string
	}

	Domain struct {
		Base string
	}

	Docker struct {
		Host             string
		GatewayContainer string
		PingTimeout      time.Duration
	}

	Cleanup struct {
		AtStartup string
	}

	Builds struct {
		IdleWindow        time.Duration
		SourceDir         string
		HostnameCacheSize int64
		MaxConcurrent     int64
	}

	Platform struct {
		Mode   string
		Static struct {
			File           string
			ReloadInterval time.Duration
		}
		GitLab struct {
			BaseURL string
			Token   string
		}
		Api struct {
			BaseURL string
			Token   string
		}
	}

	DataBase struct {
		Host string
		Port uint16
		User string
		Pass string
		Name string
	}

	Telegram struct {
		BotToken string
		ChatID   int64
	}

	Log struct {
		Development bool
		File        string
	}
}

var defaults = map[string]interface{}{
	"server.listenaddress":           ":80",
	"server.loopbackaddresses":       []string{"127.0.0.1", "::1", "::ffff:127.0.0.1"},
	"server.blockedpaths":            []string{"/robots.txt", "/favicon.ico"},
	"domain.base":                    "cqa",
	"docker.host":                    "unix:///var/run/docker.sock",
	"docker.pingtimeout":             30 * time.Second,
	"builds.idlewindow":              5 * time.Minute,
	"builds.sourcedir":               "/tmp/cqa",
	"builds.hostnamecachesize":       1024,
	"builds.maxconcurrent":           4,
	"platform.mode":                  StaticMode,
	"platform.static.reloadinterval": time.Minute,
	"database.port":                  5432,
}

func ParseConfig(path string) (*Config, error) {
	config := &Config{}
	err := conf.ParseConfig(config,
		conf.EnvPrefix("CQA"),
		conf.ConfigFile(path),
		conf.Defaults(defaults),
	)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to parse config")
	}

	// The socket path used to be configured with DOCKER_SOCK.
	if sock := os.Getenv("DOCKER_SOCK"); sock != "" && os.Getenv("CQA_DOCKER_HOST") == "" {
		config.Docker.Host = "unix://" + sock
	}
	if config.Docker.GatewayContainer == "" {
		config.Docker.GatewayContainer, err = os.Hostname()
		if err != nil {
			return nil, errors.Wrap(err, "Failed to resolve gateway container name")
		}
	}
	config.Cleanup.AtStartup = strings.ToUpper(config.Cleanup.AtStartup)

	if err := config.validate(); err != nil {
		return nil, errors.Wrap(err, "Invalid config")
	}
	return config, nil
}

func (c *Config) validate() error {
	switch c.Platform.Mode {
	case StaticMode, GitlabMode, ApiMode:
	default:
		return errors.Errorf("unknown platform mode %q", c.Platform.Mode)
	}
	switch c.Cleanup.AtStartup {
	case "", "ALL", "STOPPED":
	default:
		return errors.Errorf("unknown startup cleanup scope %q", c.Cleanup.AtStartup)
	}
	if c.Builds.IdleWindow <= 0 {
		return errors.New("builds idle window must be positive")
	}
	if c.Builds.MaxConcurrent < 0 {
		return errors.New("builds max concurrent must not be negative")
	}
	if c.Builds.HostnameCacheSize <= 0 {
		return errors.New("hostname cache size must be positive")
	}
	return nil
}

// DSN returns the postgres connection string, or an empty string when
// builds should be kept in memory.
func (c *Config) DSN() string {
	if c.DataBase.Host == "" {
		return ""
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DataBase.Host, c.DataBase.Port, c.DataBase.User, c.DataBase.Pass, c.DataBase.Name)
}
