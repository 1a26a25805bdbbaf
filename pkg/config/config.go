package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "CHECKOUT"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Etcd    EtcdConfig    `mapstructure:"etcd"`
	Redis   RedisConfig   `mapstructure:"redis"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Local   LocalConfig   `mapstructure:"local"`
	Log     LogConfig     `mapstructure:"log"`
	Catalog CatalogConfig `mapstructure:"catalog"`
}

type ServerConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	// AdvertiseHost is the host other services dial; Host may be a
	// wildcard bind address.
	AdvertiseHost string `mapstructure:"advertise_host"`
}

// RegistrationHost is the host written to service discovery. Without an
// advertise host a wildcard bind address is replaced by the machine
// hostname.
func (c *ServerConfig) RegistrationHost() string {
	if c.AdvertiseHost != "" {
		return c.AdvertiseHost
	}
	switch c.Host {
	case "", "0.0.0.0", "::":
		if name, err := os.Hostname(); err == nil {
			return name
		}
	}
	return c.Host
}

type GatewayConfig struct {
	Port        int    `mapstructure:"port"`
	Host        string `mapstructure:"host"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb"`
	// CheckoutService, when set, makes the gateway forward to a remote
	// checkout service instead of opening the store in process.
	CheckoutService string `mapstructure:"checkout_service"`
	CheckoutAddr    string `mapstructure:"checkout_addr"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Prefix      string        `mapstructure:"prefix"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RemoteConfig holds the credentials of the hosted document database and
// object storage. All six string fields are required to enable remote mode.
type RemoteConfig struct {
	URI            string        `mapstructure:"uri"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Database       string        `mapstructure:"database"`
	Bucket         string        `mapstructure:"bucket"`
	PublicBaseURL  string        `mapstructure:"public_base_url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// Complete reports whether every remote credential is present.
func (c *RemoteConfig) Complete() bool {
	for _, v := range []string{c.URI, c.Username, c.Password, c.Database, c.Bucket, c.PublicBaseURL} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// LocalConfig selects the key-value store used when the remote backend is
// unavailable. Driver is one of sqlite, mysql, redis or memory.
type LocalConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
}

type CatalogConfig struct {
	Courses []CourseConfig `mapstructure:"courses"`
}

type CourseConfig struct {
	ID    string  `mapstructure:"id"`
	Title string  `mapstructure:"title"`
	Price float64 `mapstructure:"price"`
}

// DefaultCourses is the catalog used when none is configured.
var DefaultCourses = []CourseConfig{
	{ID: "top-100-ai-tools", Title: "Top 100 AI Tools for Creators", Price: 499},
}

// Load reads the YAML file at configPath (skipped when empty) and applies
// CHECKOUT_* environment overrides, e.g. CHECKOUT_REMOTE_URI.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		// Read config file
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(config.Catalog.Courses) == 0 {
		config.Catalog.Courses = append([]CourseConfig(nil), DefaultCourses...)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "checkout-service")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 50061)
	v.SetDefault("server.advertise_host", "")

	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8080)
	v.SetDefault("gateway.max_upload_mb", 10)
	v.SetDefault("gateway.checkout_service", "")
	v.SetDefault("gateway.checkout_addr", "")

	v.SetDefault("etcd.endpoints", []string{})
	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.prefix", "/services/")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.username", "")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "checkout")
	v.SetDefault("mysql.max_idle_conns", 5)
	v.SetDefault("mysql.max_open_conns", 20)

	v.SetDefault("remote.uri", "")
	v.SetDefault("remote.username", "")
	v.SetDefault("remote.password", "")
	v.SetDefault("remote.database", "")
	v.SetDefault("remote.bucket", "")
	v.SetDefault("remote.public_base_url", "")
	v.SetDefault("remote.connect_timeout", 10*time.Second)

	v.SetDefault("local.driver", "sqlite")
	v.SetDefault("local.path", "./data/checkout.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})
}

func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}
