package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

const sampleProperties = `agent.batch.path=/opt/batch
management.server.ip=10.0.0.5
management.server.port=7000
agent.server.port=7100
threadNum=4
admin.email=ops@example.com, dba@example.com
system.email=agent@example.com
system.password=secret
mail.smtp.host=smtp.example.com
agent.exec.timeout=90s
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAgent_Properties(t *testing.T) {
	path := writeConfig(t, "agent.properties", sampleProperties)

	cfg, err := LoadAgent(path)
	if err != nil {
		t.Fatalf("LoadAgent() error = %v", err)
	}

	if cfg.BatchPath != "/opt/batch" {
		t.Errorf("BatchPath = %q, want %q", cfg.BatchPath, "/opt/batch")
	}
	if cfg.ManagementAddr() != "10.0.0.5:7000" {
		t.Errorf("ManagementAddr() = %q, want %q", cfg.ManagementAddr(), "10.0.0.5:7000")
	}
	if cfg.ServerPort != 7100 || cfg.ThreadNum != 4 {
		t.Errorf("ServerPort/ThreadNum = %d/%d, want 7100/4", cfg.ServerPort, cfg.ThreadNum)
	}
	wantAdmins := []string{"ops@example.com", "dba@example.com"}
	if !reflect.DeepEqual(cfg.AdminEmails, wantAdmins) {
		t.Errorf("AdminEmails = %v, want %v", cfg.AdminEmails, wantAdmins)
	}
	if cfg.ExecTimeout != 90*time.Second {
		t.Errorf("ExecTimeout = %v, want 90s", cfg.ExecTimeout)
	}
	if !cfg.Mail.Enabled() || cfg.Mail.SMTPPort != 587 {
		t.Errorf("Mail = %+v, want enabled on default port 587", cfg.Mail)
	}
	if cfg.ReportTimeout != 10*time.Second || cfg.ReadTimeout != 30*time.Second {
		t.Errorf("default timeouts = %v/%v", cfg.ReportTimeout, cfg.ReadTimeout)
	}
	if cfg.Host == "" {
		t.Error("Host should default to the hostname")
	}
}

func TestLoadAgent_YAML(t *testing.T) {
	path := writeConfig(t, "agent.yaml", `
agent:
  server:
    port: 7200
management:
  server:
    ip: mgmt.internal
admin:
  email:
    - a@example.com
    - b@example.com
`)

	cfg, err := LoadAgent(path)
	if err != nil {
		t.Fatalf("LoadAgent() error = %v", err)
	}
	if cfg.ServerPort != 7200 || cfg.ManagementIP != "mgmt.internal" {
		t.Errorf("got port %d ip %q", cfg.ServerPort, cfg.ManagementIP)
	}
	if len(cfg.AdminEmails) != 2 {
		t.Errorf("AdminEmails = %v, want 2 entries", cfg.AdminEmails)
	}
}

func TestLoadAgent_EnvOverride(t *testing.T) {
	path := writeConfig(t, "agent.properties", sampleProperties)
	t.Setenv("AGENT_SERVER_PORT", "7300")
	t.Setenv("MANAGEMENT_SERVER_IP", "10.9.9.9")
	t.Setenv("MAIL_SMTP_HOST", "relay.example.com")
	t.Setenv("AGENT_READ_TIMEOUT", "2s")

	cfg, err := LoadAgent(path)
	if err != nil {
		t.Fatalf("LoadAgent() error = %v", err)
	}

	if cfg.ServerPort != 7300 {
		t.Errorf("ServerPort = %d, want 7300", cfg.ServerPort)
	}
	if cfg.ManagementIP != "10.9.9.9" {
		t.Errorf("ManagementIP = %q, want %q", cfg.ManagementIP, "10.9.9.9")
	}
	if cfg.Mail.SMTPHost != "relay.example.com" {
		t.Errorf("SMTPHost = %q, want %q", cfg.Mail.SMTPHost, "relay.example.com")
	}
	if cfg.ReadTimeout != 2*time.Second {
		t.Errorf("ReadTimeout = %v, want 2s", cfg.ReadTimeout)
	}
	// Unset variables leave file values alone.
	if cfg.ManagementPort != 7000 || cfg.ThreadNum != 4 {
		t.Errorf("ManagementPort/ThreadNum = %d/%d, want 7000/4", cfg.ManagementPort, cfg.ThreadNum)
	}
}

func TestLoadAgent_MissingExplicitFile(t *testing.T) {
	_, err := LoadAgent(filepath.Join(t.TempDir(), "nope.properties"))
	if err == nil {
		t.Fatal("LoadAgent() expected error for missing file")
	}
}

func TestLoadAgent_Invalid(t *testing.T) {
	path := writeConfig(t, "agent.properties", "threadNum=0\nagent.server.port=70000\n")

	_, err := LoadAgent(path)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("LoadAgent() error = %v, want ErrInvalidConfig", err)
	}
}

func TestAgent_Validate(t *testing.T) {
	valid := Agent{ServerPort: 9100, ThreadNum: 1, ManagementIP: "127.0.0.1", ManagementPort: 9200}

	tests := []struct {
		name    string
		mutate  func(*Agent)
		wantErr bool
	}{
		{"valid", func(a *Agent) {}, false},
		{"zero port", func(a *Agent) { a.ServerPort = 0 }, true},
		{"no management ip", func(a *Agent) { a.ManagementIP = "" }, true},
		{"bad management port", func(a *Agent) { a.ManagementPort = 65536 }, true},
		{"no threads", func(a *Agent) { a.ThreadNum = 0 }, true},
		{"negative timeout", func(a *Agent) { a.ExecTimeout = -time.Second }, true},
		{"zero timeouts", func(a *Agent) { a.ExecTimeout, a.ReadTimeout = 0, 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
