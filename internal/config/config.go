package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Rooms     RoomsConfig     `mapstructure:"rooms"`
	Media     MediaConfig     `mapstructure:"media"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Directory DirectoryConfig `mapstructure:"directory"`
}

type RoomsConfig struct {
	RolePolicy       string        `mapstructure:"role_policy"`
	MaxRoomIDLen     int           `mapstructure:"max_room_id_len"`
	JoinRateLimit    int           `mapstructure:"join_rate_limit"`
	JoinRateInterval time.Duration `mapstructure:"join_rate_interval"`
}

type ListenIP struct {
	IP          string `mapstructure:"ip"`
	AnnouncedIP string `mapstructure:"announced_ip"`
}

type CodecConfig struct {
	MimeType    string `mapstructure:"mime_type"`
	ClockRate   uint32 `mapstructure:"clock_rate"`
	Channels    uint16 `mapstructure:"channels"`
	PayloadType uint8  `mapstructure:"payload_type"`
	Fmtp        string `mapstructure:"fmtp"`
}

type MediaConfig struct {
	ListenIPs            []ListenIP    `mapstructure:"listen_ips"`
	EnableUDP            bool          `mapstructure:"enable_udp"`
	EnableTCP            bool          `mapstructure:"enable_tcp"`
	PreferUDP            bool          `mapstructure:"prefer_udp"`
	TCPPort              int           `mapstructure:"tcp_port"`
	UDPPortMin           uint16        `mapstructure:"udp_port_min"`
	UDPPortMax           uint16        `mapstructure:"udp_port_max"`
	Codecs               []CodecConfig `mapstructure:"codecs"`
	NegotiationTimeout   time.Duration `mapstructure:"negotiation_timeout"`
	MaxPendingTransports int64         `mapstructure:"max_pending_transports"`
	ICEServers           []string      `mapstructure:"ice_servers"`
}

type AdminConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DirectoryConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// Load reads .env, then the yaml file at path (config/config.$CONFIG_ENV.yaml
// when path is empty), then BROADCAST_* environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("read .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if path == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)

	setDefaults(v)
	v.SetEnvPrefix("BROADCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Warn().Str("module", "config").Str("file", path).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", path).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("role_policy", cfg.Rooms.RolePolicy).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("rooms.role_policy", "strict")
	v.SetDefault("rooms.max_room_id_len", 64)
	v.SetDefault("rooms.join_rate_limit", 10)
	v.SetDefault("rooms.join_rate_interval", "10s")

	v.SetDefault("media.listen_ips", []map[string]any{{"ip": "0.0.0.0"}})
	v.SetDefault("media.enable_udp", true)
	v.SetDefault("media.enable_tcp", true)
	v.SetDefault("media.prefer_udp", true)
	v.SetDefault("media.tcp_port", 0)
	v.SetDefault("media.udp_port_min", 0)
	v.SetDefault("media.udp_port_max", 0)
	v.SetDefault("media.codecs", []map[string]any{
		{"mime_type": "audio/opus", "clock_rate": 48000, "channels": 2, "payload_type": 111, "fmtp": "minptime=10;useinbandfec=1"},
		{"mime_type": "video/VP8", "clock_rate": 90000, "payload_type": 96},
	})
	v.SetDefault("media.negotiation_timeout", "30s")
	v.SetDefault("media.max_pending_transports", 64)
	v.SetDefault("media.ice_servers", []string{})

	v.SetDefault("admin.jwt_secret", "")

	v.SetDefault("directory.redis_addr", "")
	v.SetDefault("directory.redis_password", "")
	v.SetDefault("directory.redis_db", 0)
	v.SetDefault("directory.ttl", "1h")
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.PingPeriod <= 0 {
		errs = append(errs, errors.New("ping_period must be positive"))
	}
	switch c.Rooms.RolePolicy {
	case "", "strict", "advisory":
	default:
		errs = append(errs, fmt.Errorf("rooms.role_policy %q: want strict or advisory", c.Rooms.RolePolicy))
	}

	m := c.Media
	if !m.EnableUDP && !m.EnableTCP {
		errs = append(errs, errors.New("media: enable_udp and enable_tcp are both false"))
	}
	if len(m.ListenIPs) == 0 {
		errs = append(errs, errors.New("media.listen_ips is empty"))
	}
	for _, l := range m.ListenIPs {
		if net.ParseIP(l.IP) == nil {
			errs = append(errs, fmt.Errorf("media.listen_ips: bad ip %q", l.IP))
		}
		if l.AnnouncedIP != "" && net.ParseIP(l.AnnouncedIP) == nil {
			errs = append(errs, fmt.Errorf("media.listen_ips: bad announced_ip %q", l.AnnouncedIP))
		}
	}
	if m.NegotiationTimeout <= 0 {
		errs = append(errs, errors.New("media.negotiation_timeout must be positive"))
	}
	if m.MaxPendingTransports <= 0 {
		errs = append(errs, errors.New("media.max_pending_transports must be positive"))
	}
	if m.UDPPortMin > m.UDPPortMax {
		errs = append(errs, fmt.Errorf("media: udp_port_min %d above udp_port_max %d", m.UDPPortMin, m.UDPPortMax))
	}
	if len(m.Codecs) == 0 {
		errs = append(errs, errors.New("media.codecs is empty"))
	}
	for _, cc := range m.Codecs {
		kind, _, _ := strings.Cut(strings.ToLower(cc.MimeType), "/")
		if kind != "audio" && kind != "video" {
			errs = append(errs, fmt.Errorf("media.codecs: %q has unknown kind", cc.MimeType))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ListenConfig is the transport listen configuration the media settings describe.
func (c *Config) ListenConfig() core.ListenConfig {
	lc := core.ListenConfig{
		EnableUDP: c.Media.EnableUDP,
		EnableTCP: c.Media.EnableTCP,
		PreferUDP: c.Media.PreferUDP,
	}
	for _, l := range c.Media.ListenIPs {
		lc.ListenIPs = append(lc.ListenIPs, core.ListenIP{IP: l.IP, AnnouncedIP: l.AnnouncedIP})
	}
	return lc
}
