package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned when a loaded configuration cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultConfigName is the file searched for when no path is given.
const DefaultConfigName = "agent"

// Agent holds batch agent configuration. It is built once at startup and
// passed by value into the components that need it.
type Agent struct {
	// Host identifies this agent in incident reports (defaults to hostname).
	Host string `envconfig:"AGENT_HOST"`

	// BatchPath is the artifact root listed when a path request names no directory.
	BatchPath string `envconfig:"AGENT_BATCH_PATH"`

	// ServerPort is the TCP port the agent listens on.
	ServerPort int `envconfig:"AGENT_SERVER_PORT"`

	// ThreadNum is the number of connections handled concurrently.
	ThreadNum int `envconfig:"AGENT_THREAD_NUM"`

	// ManagementIP and ManagementPort locate the management server.
	ManagementIP   string `envconfig:"MANAGEMENT_SERVER_IP"`
	ManagementPort int    `envconfig:"MANAGEMENT_SERVER_PORT"`

	// ExecTimeout bounds a single program run. Zero means unbounded.
	ExecTimeout time.Duration `envconfig:"AGENT_EXEC_TIMEOUT"`

	// ReportTimeout bounds dialing and writing one result report.
	ReportTimeout time.Duration `envconfig:"AGENT_REPORT_TIMEOUT"`

	// ReadTimeout bounds reading the request frame of a connection.
	ReadTimeout time.Duration `envconfig:"AGENT_READ_TIMEOUT"`

	// StatusAddr enables the HTTP status endpoint when set, e.g. ":9101".
	StatusAddr string `envconfig:"AGENT_STATUS_ADDR"`

	// PathRecursive makes path listings walk the whole tree.
	PathRecursive bool `envconfig:"AGENT_PATH_RECURSIVE"`

	JavaBin  string `envconfig:"AGENT_JAVA_BIN"`
	ShellBin string `envconfig:"AGENT_SHELL_BIN"`

	// AdminEmails receive incident mail when a result names no admin.
	AdminEmails []string `envconfig:"ADMIN_EMAIL"`

	Mail Mail `envconfig:"MAIL"`

	LogLevel string `envconfig:"LOG_LEVEL"`
}

// Mail holds SMTP settings for incident notifications.
type Mail struct {
	// From is the sender address, also used as the SMTP username.
	From     string `envconfig:"SYSTEM_EMAIL"`
	Password string `envconfig:"SYSTEM_PASSWORD"`
	SMTPHost string `envconfig:"SMTP_HOST"`
	SMTPPort int    `envconfig:"SMTP_PORT"`
}

// Enabled reports whether enough is configured to send mail.
func (m Mail) Enabled() bool {
	return m.SMTPHost != "" && m.From != ""
}

// ManagementAddr returns the dial address of the management server.
func (a Agent) ManagementAddr() string {
	return net.JoinHostPort(a.ManagementIP, strconv.Itoa(a.ManagementPort))
}

// ListenAddr returns the address the agent binds.
func (a Agent) ListenAddr() string {
	return net.JoinHostPort("", strconv.Itoa(a.ServerPort))
}

// Identity returns the host:port string that names this agent.
func (a Agent) Identity() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.ServerPort))
}

// Validate checks that the configuration is usable.
func (a Agent) Validate() error {
	var problems []string
	if a.ServerPort <= 0 || a.ServerPort > 65535 {
		problems = append(problems, fmt.Sprintf("agent.server.port %d out of range", a.ServerPort))
	}
	if a.ManagementIP == "" {
		problems = append(problems, "management.server.ip is required")
	}
	if a.ManagementPort <= 0 || a.ManagementPort > 65535 {
		problems = append(problems, fmt.Sprintf("management.server.port %d out of range", a.ManagementPort))
	}
	if a.ThreadNum < 1 {
		problems = append(problems, fmt.Sprintf("threadNum must be at least 1, got %d", a.ThreadNum))
	}
	if a.ExecTimeout < 0 || a.ReportTimeout < 0 || a.ReadTimeout < 0 {
		problems = append(problems, "timeouts must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// LoadAgent builds the agent configuration from defaults, the config file and
// the environment, in increasing priority. With an empty path, agent.properties
// (or agent.yaml) is searched in the working directory and may be absent.
func LoadAgent(path string) (Agent, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Agent{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := Agent{
		Host:           v.GetString("agent.host"),
		BatchPath:      v.GetString("agent.batch.path"),
		ServerPort:     v.GetInt("agent.server.port"),
		ThreadNum:      v.GetInt("threadNum"),
		ManagementIP:   v.GetString("management.server.ip"),
		ManagementPort: v.GetInt("management.server.port"),
		ExecTimeout:    v.GetDuration("agent.exec.timeout"),
		ReportTimeout:  v.GetDuration("agent.report.timeout"),
		ReadTimeout:    v.GetDuration("agent.read.timeout"),
		StatusAddr:     v.GetString("agent.status.addr"),
		PathRecursive:  v.GetBool("agent.path.recursive"),
		JavaBin:        v.GetString("agent.java.bin"),
		ShellBin:       v.GetString("agent.shell.bin"),
		AdminEmails:    stringList(v, "admin.email"),
		Mail: Mail{
			From:     v.GetString("system.email"),
			Password: v.GetString("system.password"),
			SMTPHost: v.GetString("mail.smtp.host"),
			SMTPPort: v.GetInt("mail.smtp.port"),
		},
		LogLevel: v.GetString("log.level"),
	}

	if err := Load("", &cfg); err != nil {
		return Agent{}, err
	}

	if cfg.Host == "" {
		cfg.Host, _ = os.Hostname()
		if cfg.Host == "" {
			cfg.Host = "localhost"
		}
	}

	if err := cfg.Validate(); err != nil {
		return Agent{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.server.port", 9100)
	v.SetDefault("threadNum", 10)
	v.SetDefault("management.server.ip", "127.0.0.1")
	v.SetDefault("management.server.port", 9200)
	v.SetDefault("agent.exec.timeout", time.Hour)
	v.SetDefault("agent.report.timeout", 10*time.Second)
	v.SetDefault("agent.read.timeout", 30*time.Second)
	v.SetDefault("agent.path.recursive", false)
	v.SetDefault("agent.java.bin", "java")
	v.SetDefault("agent.shell.bin", "sh")
	v.SetDefault("mail.smtp.port", 587)
	v.SetDefault("log.level", "info")
}

// stringList reads a comma separated property or a YAML list.
func stringList(v *viper.Viper, key string) []string {
	raw := v.GetString(key)
	if raw == "" {
		return v.GetStringSlice(key)
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
