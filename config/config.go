package config

import (
	"crypto/ecdsa"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v2"

	"github.com/PatrickKish1/x402-manager-backend/common/errors"
	commonlog "github.com/PatrickKish1/x402-manager-backend/common/log"
)

// Network holds the per-network signing and chain parameters. The validator
// key is the platform key used to fund free validation runs on that network;
// a network without a key cannot be signed for.
type Network struct {
	ChainID             int64  `yaml:"chainId"`
	RPC                 string `yaml:"rpc"`
	ValidatorPrivateKey string `yaml:"validatorPrivateKey"`
	AssetAddress        string `yaml:"assetAddress"`
	AssetName           string `yaml:"assetName"`
	AssetVersion        string `yaml:"assetVersion"`
	AssetDecimals       uint8  `yaml:"assetDecimals"`
}

// Networks maps a network name to its configuration.
type Networks map[string]*Network

// ErrNoValidatorKey is returned when a network has no configured platform
// key. Falling back to a different network's key is never acceptable.
var ErrNoValidatorKey = errors.New("no validator key configured for network")

// PrivateKey resolves the network's validator key.
func (n *Network) PrivateKey() (*ecdsa.PrivateKey, error) {
	if n == nil || n.ValidatorPrivateKey == "" {
		return nil, errors.ConfigurationMissing(ErrNoValidatorKey)
	}
	key, err := crypto.HexToECDSA(trimHexPrefix(n.ValidatorPrivateKey))
	if err != nil {
		return nil, errors.ConfigurationMissing(errors.Wrap(err, "parse validator private key"))
	}
	return key, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0:2] == "0x" {
		return s[2:]
	}
	return s
}

type RateLimit struct {
	RatePerSecond float64 `yaml:"ratePerSecond"`
	BurstSize     int     `yaml:"burstSize"`
	RatePerMinute int     `yaml:"ratePerMinute"`
}

type Config struct {
	Address      string   `yaml:"address"`
	AllowOrigins []string `yaml:"allowOrigins"`
	Database     struct {
		Provider string `yaml:"provider"`
	} `yaml:"database"`
	Logger  commonlog.Config `yaml:"logger"`
	Gateway struct {
		ServiceCacheExpiration time.Duration `yaml:"serviceCacheExpiration"`
		UpstreamTimeout        time.Duration `yaml:"upstreamTimeout"`
		TrackerWorkers         int           `yaml:"trackerWorkers"`
	} `yaml:"gateway"`
	Abuse struct {
		// FailOpen keeps the free tier available when the datastore is
		// unreachable. The verifier is fail-closed regardless.
		FailOpen bool `yaml:"failOpen"`
	} `yaml:"abuse"`
	Validation struct {
		RateLimit RateLimit `yaml:"rateLimit"`
		Workers   int       `yaml:"workers"`
	} `yaml:"validation"`
	Monitor struct {
		Enable bool `yaml:"enable"`
	} `yaml:"monitor"`
	NoncePruneInterval time.Duration `yaml:"noncePruneInterval"`
	Networks           Networks      `yaml:"networks"`
}

var (
	instance *Config
	once     sync.Once
)

func loadConfig(config *Config) error {
	configPath := "/etc/config/config.yaml"
	if envPath := os.Getenv("CONFIG_FILE"); envPath != "" {
		configPath = envPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return yaml.UnmarshalStrict(data, config)
}

func GetConfig() *Config {
	once.Do(func() {
		instance = defaultConfig()
		if err := loadConfig(instance); err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}
	})

	return instance
}

func defaultConfig() *Config {
	c := &Config{
		Address:            ":8080",
		AllowOrigins:       []string{"*"},
		NoncePruneInterval: time.Hour,
		Networks:           Networks{},
	}
	c.Database.Provider = "root:123456@tcp(mysql:3306)/x402?parseTime=true"
	c.Logger.Level = "info"
	c.Gateway.ServiceCacheExpiration = 5 * time.Minute
	c.Gateway.UpstreamTimeout = 60 * time.Second
	c.Gateway.TrackerWorkers = 4
	c.Abuse.FailOpen = true
	c.Validation.RateLimit = RateLimit{RatePerSecond: 2, BurstSize: 5, RatePerMinute: 60}
	c.Validation.Workers = 4
	return c
}
