package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
	BackendFabric = "fabric"
)

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LedgerConfig struct {
	Backend         string `mapstructure:"backend"`
	DefaultIdentity string `mapstructure:"default_identity"`
	ScanPolicy      string `mapstructure:"scan_policy"`
	SeedOnStart     bool   `mapstructure:"seed_on_start"`
}

type SQLiteConfig struct {
	Path    string `mapstructure:"path"`
	LogMode bool   `mapstructure:"log_mode"`
}

type MongoConfig struct {
	URI        string        `mapstructure:"uri"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type FabricConfig struct {
	Channel       string `mapstructure:"channel"`
	Chaincode     string `mapstructure:"chaincode"`
	MspID         string `mapstructure:"msp_id"`
	CertPath      string `mapstructure:"cert_path"`
	KeyPath       string `mapstructure:"key_path"`
	TLSCertPath   string `mapstructure:"tls_cert_path"`
	PeerEndpoint  string `mapstructure:"peer_endpoint"`
	PeerHostAlias string `mapstructure:"peer_host_alias"`

	EvaluateTimeout     time.Duration `mapstructure:"evaluate_timeout"`
	EndorseTimeout      time.Duration `mapstructure:"endorse_timeout"`
	SubmitTimeout       time.Duration `mapstructure:"submit_timeout"`
	CommitStatusTimeout time.Duration `mapstructure:"commit_status_timeout"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	SQLite  SQLiteConfig  `mapstructure:"sqlite"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Fabric  FabricConfig  `mapstructure:"fabric"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3001")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.request_timeout", 30*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("ledger.backend", BackendMemory)
	v.SetDefault("ledger.default_identity", "admin")
	v.SetDefault("ledger.scan_policy", "lenient")
	v.SetDefault("ledger.seed_on_start", false)

	v.SetDefault("sqlite.path", "data/ledger.db")
	v.SetDefault("sqlite.log_mode", false)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "smeledger")
	v.SetDefault("mongo.collection", "world_state")
	v.SetDefault("mongo.timeout", 10*time.Second)

	v.SetDefault("fabric.channel", "mychannel")
	v.SetDefault("fabric.chaincode", "sme-cashflow")
	v.SetDefault("fabric.msp_id", "Org1MSP")
	v.SetDefault("fabric.cert_path", "")
	v.SetDefault("fabric.key_path", "")
	v.SetDefault("fabric.tls_cert_path", "")
	v.SetDefault("fabric.peer_endpoint", "localhost:7051")
	v.SetDefault("fabric.peer_host_alias", "peer0.org1.example.com")
	v.SetDefault("fabric.evaluate_timeout", 5*time.Second)
	v.SetDefault("fabric.endorse_timeout", 15*time.Second)
	v.SetDefault("fabric.submit_timeout", 5*time.Second)
	v.SetDefault("fabric.commit_status_timeout", time.Minute)
}

// Load reads configuration from path, or from config.yaml in the working
// directory or ./configs when path is empty. A missing default file is not
// an error. Environment variables override file values, e.g.
// SMELEDGER_LEDGER_BACKEND=sqlite.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("SMELEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case BackendMemory, BackendSQLite, BackendMongo, BackendFabric:
	default:
		return fmt.Errorf("invalid ledger.backend %q", c.Ledger.Backend)
	}

	switch strings.ToLower(c.Ledger.ScanPolicy) {
	case "", "lenient", "strict":
	default:
		return fmt.Errorf("invalid ledger.scan_policy %q", c.Ledger.ScanPolicy)
	}

	if c.Ledger.Backend == BackendFabric {
		if c.Fabric.CertPath == "" || c.Fabric.KeyPath == "" || c.Fabric.TLSCertPath == "" {
			return fmt.Errorf("fabric backend requires cert_path, key_path and tls_cert_path")
		}
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	return nil
}
