package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ConfigPath is the variable which stores the config path command line parameter
	ConfigPath string
)

// Config stores the configuration of one lobby node
type Config struct {
	// Node identity of this process
	Node NodeConfig
	// Discovery settings for finding the primary over UDP
	Discovery DiscoveryConfig
	// Replication settings for the primary/backup TCP protocol
	Replication ReplicationConfig
	// Client settings of the client facing acceptor
	Client ClientConfig
	// APIAddr address of the status API, empty disables it
	APIAddr string
	// Notifier settings for publishing formed sessions
	Notifier NotifierConfig
	// LogConfig configuration for logging
	LogConfig LogConfig
}

type NodeConfig struct {
	// AdvertiseHost is the host other nodes use to reach this node.
	// Empty means detect the local IPv4 address.
	AdvertiseHost string
}

type DiscoveryConfig struct {
	// Listen address of the UDP discovery socket
	Listen string
	// Targets the probes are sent to, normally the broadcast address
	Targets []string
	// Timeout after which a node with no answer promotes itself
	Timeout time.Duration
	// ProbeInterval between two IS_PRIMARY_THERE probes
	ProbeInterval time.Duration
	// Probes is the maximum number of probes sent
	Probes int
}

type ReplicationConfig struct {
	Listen            string
	HeartbeatInterval time.Duration
	// Retries is the number of attempts before a peer is declared unreachable
	Retries         int
	RetryBackoff    time.Duration
	DialTimeout     time.Duration
	RequestTimeout  time.Duration
	MaxMessageBytes int
}

type ClientConfig struct {
	Listen string
	// PeerPortBase is the first port handed out to matched players
	PeerPortBase int
}

type NotifierConfig struct {
	NatsURL string
	Subject string
}

// LogConfig stores the config for logging purpose
type LogConfig struct {
	// Path of the log file
	Path string
	// Format to log. Only `json` is currently supported
	Format string
	// Level log level, one of panic|fatal|error|warn|warning|info|debug|trace
	Level string
}

const (
	DefaultDiscoveryPort   = 15000
	DefaultReplicationPort = 8000
)

// SetDefaults registers the default value of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("node.advertise_host", "")

	v.SetDefault("discovery.listen", fmt.Sprintf("0.0.0.0:%d", DefaultDiscoveryPort))
	v.SetDefault("discovery.targets", []string{fmt.Sprintf("255.255.255.255:%d", DefaultDiscoveryPort)})
	v.SetDefault("discovery.timeout", 2000*time.Millisecond)
	v.SetDefault("discovery.probe_interval", 500*time.Millisecond)
	v.SetDefault("discovery.probes", 3)

	v.SetDefault("replication.listen", fmt.Sprintf("0.0.0.0:%d", DefaultReplicationPort))
	v.SetDefault("replication.heartbeat_interval", 5*time.Second)
	v.SetDefault("replication.retries", 2)
	v.SetDefault("replication.retry_backoff", 100*time.Millisecond)
	v.SetDefault("replication.dial_timeout", time.Second)
	v.SetDefault("replication.request_timeout", 3*time.Second)
	v.SetDefault("replication.max_message_bytes", 1<<20)

	v.SetDefault("client.listen", "0.0.0.0:9999")
	v.SetDefault("client.peer_port_base", 9000)

	v.SetDefault("api.addr", "0.0.0.0:7074")

	v.SetDefault("notifier.nats_url", "")
	v.SetDefault("notifier.subject", "lobby.sessions")

	v.SetDefault("log.path", "")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.level", "info")
}

// NewViper returns a viper instance with defaults and LOBBY_ prefixed
// environment overrides, e.g. LOBBY_REPLICATION_LISTEN
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("lobby")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ParseConfig reads the `config` file found in dir on top of the defaults
func ParseConfig(dir string) (*Config, *viper.Viper, error) {
	v := NewViper()
	v.SetConfigName("config")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("error reading config file: %s", err)
	}
	c, err := FromViper(v)
	if err != nil {
		return nil, nil, err
	}
	return c, v, nil
}

// Default returns the configuration made only of default values
func Default() *Config {
	c, _ := FromViper(NewViper())
	return c
}

// FromViper builds a Config from the keys in v
func FromViper(v *viper.Viper) (*Config, error) {
	c := &Config{
		Node: NodeConfig{
			AdvertiseHost: v.GetString("node.advertise_host"),
		},
		Discovery: DiscoveryConfig{
			Listen:        v.GetString("discovery.listen"),
			Targets:       v.GetStringSlice("discovery.targets"),
			Timeout:       v.GetDuration("discovery.timeout"),
			ProbeInterval: v.GetDuration("discovery.probe_interval"),
			Probes:        v.GetInt("discovery.probes"),
		},
		Replication: ReplicationConfig{
			Listen:            v.GetString("replication.listen"),
			HeartbeatInterval: v.GetDuration("replication.heartbeat_interval"),
			Retries:           v.GetInt("replication.retries"),
			RetryBackoff:      v.GetDuration("replication.retry_backoff"),
			DialTimeout:       v.GetDuration("replication.dial_timeout"),
			RequestTimeout:    v.GetDuration("replication.request_timeout"),
			MaxMessageBytes:   v.GetInt("replication.max_message_bytes"),
		},
		Client: ClientConfig{
			Listen:       v.GetString("client.listen"),
			PeerPortBase: v.GetInt("client.peer_port_base"),
		},
		APIAddr: v.GetString("api.addr"),
		Notifier: NotifierConfig{
			NatsURL: v.GetString("notifier.nats_url"),
			Subject: v.GetString("notifier.subject"),
		},
		LogConfig: LogConfig{
			Path:   v.GetString("log.path"),
			Format: v.GetString("log.format"),
			Level:  v.GetString("log.level"),
		},
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the values that would otherwise make the node misbehave silently
func (c *Config) Validate() error {
	if c.Replication.Retries < 1 {
		return fmt.Errorf("replication.retries must be at least 1, got %d", c.Replication.Retries)
	}
	if c.Replication.HeartbeatInterval <= 0 {
		return fmt.Errorf("replication.heartbeat_interval must be positive")
	}
	if c.Discovery.Timeout <= 0 {
		return fmt.Errorf("discovery.timeout must be positive")
	}
	if c.Client.PeerPortBase <= 0 || c.Client.PeerPortBase > 65535 {
		return fmt.Errorf("client.peer_port_base out of range: %d", c.Client.PeerPortBase)
	}
	return nil
}
