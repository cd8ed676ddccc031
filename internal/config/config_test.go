package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_defaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8080 || cfg.Mode != "release" || cfg.PingPeriod != 54*time.Second {
		t.Errorf("base defaults: %+v", cfg)
	}
	if cfg.Rooms.RolePolicy != "strict" || cfg.Rooms.MaxRoomIDLen != 64 || cfg.Rooms.JoinRateInterval != 10*time.Second {
		t.Errorf("rooms defaults: %+v", cfg.Rooms)
	}
	m := cfg.Media
	if len(m.ListenIPs) != 1 || m.ListenIPs[0].IP != "0.0.0.0" || !m.EnableUDP || !m.EnableTCP || !m.PreferUDP {
		t.Errorf("media defaults: %+v", m)
	}
	if len(m.Codecs) != 2 || m.Codecs[0].MimeType != "audio/opus" || m.Codecs[0].Channels != 2 || m.Codecs[1].ClockRate != 90000 {
		t.Errorf("codec defaults: %+v", m.Codecs)
	}
	if m.NegotiationTimeout != 30*time.Second || m.MaxPendingTransports != 64 {
		t.Errorf("negotiation defaults: %+v", m)
	}
	if cfg.Directory.TTL != time.Hour || cfg.Directory.RedisAddr != "" {
		t.Errorf("directory defaults: %+v", cfg.Directory)
	}
}

func TestLoad_fileAndEnv(t *testing.T) {
	path := writeConfig(t, `
mode: debug
port: 9000
rooms:
  role_policy: advisory
media:
  listen_ips:
    - ip: 10.0.0.5
      announced_ip: 203.0.113.7
  enable_tcp: false
  negotiation_timeout: 5s
  ice_servers: ["stun:stun.example.org:3478"]
admin:
  jwt_secret: s3cret
`)
	t.Setenv("BROADCAST_PORT", "9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != "debug" || cfg.Port != 9100 {
		t.Errorf("mode/port = %s/%d", cfg.Mode, cfg.Port)
	}
	if cfg.Rooms.RolePolicy != "advisory" || cfg.Admin.JWTSecret != "s3cret" {
		t.Errorf("cfg = %+v", cfg)
	}
	lc := cfg.ListenConfig()
	if len(lc.ListenIPs) != 1 || lc.ListenIPs[0].AnnouncedIP != "203.0.113.7" || lc.EnableTCP || !lc.EnableUDP {
		t.Errorf("listen = %+v", lc)
	}
	if cfg.Media.NegotiationTimeout != 5*time.Second || len(cfg.Media.ICEServers) != 1 {
		t.Errorf("media = %+v", cfg.Media)
	}
}

func TestLoad_rejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
media:
  enable_udp: false
  enable_tcp: false
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "both false") {
		t.Errorf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Port:       8080,
			PingPeriod: time.Second,
			Rooms:      RoomsConfig{RolePolicy: "strict"},
			Media: MediaConfig{
				ListenIPs:            []ListenIP{{IP: "0.0.0.0"}},
				EnableUDP:            true,
				Codecs:               []CodecConfig{{MimeType: "audio/opus", ClockRate: 48000}},
				NegotiationTimeout:   time.Second,
				MaxPendingTransports: 1,
			},
		}
	}
	ok := base()
	if err := ok.Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}

	cases := map[string]func(*Config){
		"port":         func(c *Config) { c.Port = 70000 },
		"role policy":  func(c *Config) { c.Rooms.RolePolicy = "first" },
		"no ips":       func(c *Config) { c.Media.ListenIPs = nil },
		"bad ip":       func(c *Config) { c.Media.ListenIPs = []ListenIP{{IP: "host"}} },
		"bad announce": func(c *Config) { c.Media.ListenIPs = []ListenIP{{IP: "0.0.0.0", AnnouncedIP: "x"}} },
		"timeout":      func(c *Config) { c.Media.NegotiationTimeout = 0 },
		"pending":      func(c *Config) { c.Media.MaxPendingTransports = 0 },
		"codec kind":   func(c *Config) { c.Media.Codecs = []CodecConfig{{MimeType: "opus"}} },
		"udp range":    func(c *Config) { c.Media.UDPPortMin, c.Media.UDPPortMax = 50000, 40000 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
