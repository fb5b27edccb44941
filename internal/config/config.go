package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/thatsimonsguy/physense-bridge/internal/model"
)

const (
	DefaultHost        = "127.0.0.1"
	DefaultReceivePort = 6666
	DefaultSendPort    = 6665
	DefaultAPIPort     = 8080
	DefaultJournalKeep = 10000
)

type MQTT struct {
	Broker    string `json:"broker" yaml:"broker"`
	RootTopic string `json:"root_topic" yaml:"root_topic"`
	ClientID  string `json:"client_id" yaml:"client_id"`
	Username  string `json:"username" yaml:"username"`
	Password  string `json:"password" yaml:"password"`
}

type Config struct {
	ConfigFile string        `json:"-" yaml:"-"`
	LogLevel   zerolog.Level `json:"-" yaml:"-"`

	Host        string `json:"host" yaml:"host"`
	ReceivePort int    `json:"receive_port" yaml:"receive_port"`
	RemoteHost  string `json:"remote_host" yaml:"remote_host"`
	SendPort    int    `json:"send_port" yaml:"send_port"`

	Level   string `json:"log_level" yaml:"log_level"`
	LogFile string `json:"log_file" yaml:"log_file"`

	DBPath      string `json:"db_path" yaml:"db_path"`
	JournalKeep int    `json:"journal_keep" yaml:"journal_keep"`
	APIPort     int    `json:"api_port" yaml:"api_port"`

	EnableDatadog bool     `json:"enable_datadog" yaml:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr" yaml:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace" yaml:"dd_namespace"`
	DDTags        []string `json:"dd_tags" yaml:"dd_tags"`

	NtfyServer string `json:"ntfy_server" yaml:"ntfy_server"`
	NtfyTopic  string `json:"ntfy_topic" yaml:"ntfy_topic"`

	MQTT MQTT `json:"mqtt" yaml:"mqtt"`

	ServiceUnitPath string `json:"service_unit_path" yaml:"service_unit_path"`
}

// Local is the endpoint the simulator receives actuator commands on.
func (cfg Config) Local() model.Endpoint {
	return model.Endpoint{Host: cfg.Host, Port: cfg.ReceivePort}
}

// Remote is the peer endpoint input events are sent to.
func (cfg Config) Remote() model.Endpoint {
	return model.Endpoint{Host: cfg.RemoteHost, Port: cfg.SendPort}
}

func Load() Config {
	cfg, err := load(flag.CommandLine, os.Args[1:])
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	return cfg
}

// Parse loads a config from args using a private flag set, for tools that already own
// the global one.
func Parse(args []string) (Config, error) {
	return load(flag.NewFlagSet("bridge", flag.ContinueOnError), args)
}

func load(fs *flag.FlagSet, args []string) (Config, error) {
	var flags Config

	fs.StringVar(&flags.ConfigFile, "config-file", "", "Path to bridge config file (.json, .yaml or .yml)")
	fs.StringVar(&flags.Host, "host", DefaultHost, "Local address to receive actuator commands on")
	fs.IntVar(&flags.ReceivePort, "receive-port", DefaultReceivePort, "Port to receive actuator commands on")
	fs.StringVar(&flags.RemoteHost, "remote-host", "", "Peer address to send input events to (defaults to host)")
	fs.IntVar(&flags.SendPort, "send-port", DefaultSendPort, "Peer port to send input events to")
	fs.StringVar(&flags.Level, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&flags.LogFile, "log-file", "", "Append logs to this file as well as stdout")
	fs.StringVar(&flags.DBPath, "db", "", "Path to the SQLite event journal (empty disables)")
	fs.IntVar(&flags.JournalKeep, "journal-keep", DefaultJournalKeep, "Journal rows to retain (0 keeps everything)")
	fs.IntVar(&flags.APIPort, "api-port", DefaultAPIPort, "HTTP API port (0 disables)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := flags
	if flags.ConfigFile != "" {
		if err := readFile(flags.ConfigFile, &cfg); err != nil {
			return Config{}, err
		}
		// flags given explicitly win over the file
		fs.Visit(func(f *flag.Flag) {
			applyFlag(&cfg, &flags, f.Name)
		})
	}

	cfg.setDefaults()
	cfg.LogLevel = parseLogLevel(cfg.Level)
	cfg.validate()
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	expanded := []byte(os.ExpandEnv(string(data)))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(expanded, cfg)
	default:
		err = json.Unmarshal(expanded, cfg)
	}
	if err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func applyFlag(cfg, flags *Config, name string) {
	switch name {
	case "host":
		cfg.Host = flags.Host
	case "receive-port":
		cfg.ReceivePort = flags.ReceivePort
	case "remote-host":
		cfg.RemoteHost = flags.RemoteHost
	case "send-port":
		cfg.SendPort = flags.SendPort
	case "log-level":
		cfg.Level = flags.Level
	case "log-file":
		cfg.LogFile = flags.LogFile
	case "db":
		cfg.DBPath = flags.DBPath
	case "journal-keep":
		cfg.JournalKeep = flags.JournalKeep
	case "api-port":
		cfg.APIPort = flags.APIPort
	}
}

func (cfg *Config) setDefaults() {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.RemoteHost == "" {
		cfg.RemoteHost = cfg.Host
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.DDAgentAddr == "" {
		cfg.DDAgentAddr = "127.0.0.1:8125"
	}
	if cfg.DDNamespace == "" {
		cfg.DDNamespace = "physense."
	}
	if cfg.NtfyServer == "" {
		cfg.NtfyServer = "https://ntfy.sh"
	}
	if cfg.MQTT.RootTopic == "" {
		cfg.MQTT.RootTopic = "physense"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "physense-bridge"
	}
	if cfg.ServiceUnitPath == "" {
		cfg.ServiceUnitPath = "/etc/systemd/system/physense-bridge.service"
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var problems []string

	checkPort := func(name string, port int, allowZero bool) {
		if port < 0 || port > 65535 || (port == 0 && !allowZero) {
			problems = append(problems, fmt.Sprintf("%s %d out of range", name, port))
		}
	}
	checkPort("receive_port", cfg.ReceivePort, true)
	checkPort("send_port", cfg.SendPort, false)
	checkPort("api_port", cfg.APIPort, true)

	if cfg.JournalKeep < 0 {
		problems = append(problems, fmt.Sprintf("journal_keep %d is negative", cfg.JournalKeep))
	}

	if cfg.Host == cfg.RemoteHost && cfg.ReceivePort == cfg.SendPort {
		problems = append(problems, fmt.Sprintf("receive and send endpoints are both %s", cfg.Local()))
	}

	if len(problems) > 0 {
		panic("Invalid bridge config: " + strings.Join(problems, ", "))
	}
}
