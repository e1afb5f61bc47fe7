// Package config loads the server configuration.
//
// Sources, lowest precedence first: built-in defaults, an optional YAML file,
// then APPLEPAY_* environment variables. A .env file in the working directory
// is loaded into the environment before anything else and never overrides
// variables that are already set.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/stremovskyy/go-applepay/log"
	"github.com/stremovskyy/go-applepay/merchant"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "APPLEPAY"

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	ApplePay ApplePayConfig `mapstructure:"applepay" yaml:"applepay"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// Mode is the gin mode: debug, release or test.
	Mode string `mapstructure:"mode" yaml:"mode"`

	// TLSCertFile and TLSKeyFile enable HTTPS. Apple Pay JS only runs on
	// pages served over HTTPS, so leave them empty only behind a TLS proxy.
	TLSCertFile string `mapstructure:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file" yaml:"tls_key_file"`

	// DomainAssociationFile is served at the Apple domain verification path.
	DomainAssociationFile string `mapstructure:"domain_association_file" yaml:"domain_association_file"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// TrustedProxies lists the proxy IPs or CIDRs allowed to set X-Forwarded-For.
	// Empty means client IPs always come from the connection.
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`
}

type ApplePayConfig struct {
	StoreName    string `mapstructure:"store_name" yaml:"store_name"`
	CountryCode  string `mapstructure:"country_code" yaml:"country_code"`
	CurrencyCode string `mapstructure:"currency_code" yaml:"currency_code"`

	merchant.Options `mapstructure:",squash" yaml:",inline"`

	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	LogHTTPBodies bool          `mapstructure:"log_http_bodies" yaml:"log_http_bodies"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "console" for development output or "json" for production.
	Format string `mapstructure:"format" yaml:"format"`
}

var defaults = map[string]any{
	"server.addr":                    ":5000",
	"server.mode":                    "release",
	"server.tls_cert_file":           "",
	"server.tls_key_file":            "",
	"server.domain_association_file": "",
	"server.shutdown_timeout":        5 * time.Second,
	"server.trusted_proxies":         []string{},

	"applepay.store_name":                      "Apple Pay JS Example",
	"applepay.country_code":                    "GB",
	"applepay.currency_code":                   "GBP",
	"applepay.use_certificate_store":           false,
	"applepay.merchant_certificate":            "",
	"applepay.merchant_certificate_file_name":  "",
	"applepay.merchant_certificate_password":   "",
	"applepay.merchant_certificate_thumbprint": "",
	"applepay.certificate_store_location":      string(merchant.StoreLocationCurrentUser),
	"applepay.certificate_store_path":          "",
	"applepay.timeout":                         30 * time.Second,
	"applepay.log_http_bodies":                 false,

	"log.level":  "info",
	"log.format": "console",
}

// Load reads configuration from path (may be empty) and the environment.
//
// envFiles are dotenv files to load first; when none are given ".env" is
// tried. Missing dotenv files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadDotenv(envFiles); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key, EnvName(key)); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EnvName maps a configuration key to its environment variable.
//
// Keys in the applepay section drop the section name, so
// "applepay.store_name" is read from APPLEPAY_STORE_NAME and
// "server.addr" from APPLEPAY_SERVER_ADDR.
func EnvName(key string) string {
	key = strings.TrimPrefix(key, "applepay.")
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func loadDotenv(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks values that cannot be fixed up by defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is empty")
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode %q is not one of debug, release, test", c.Server.Mode)
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return fmt.Errorf("server.tls_cert_file and server.tls_key_file must be set together")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}
	for _, proxy := range c.Server.TrustedProxies {
		if net.ParseIP(proxy) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(proxy); err != nil {
			return fmt.Errorf("server.trusted_proxies: %q is not an IP or CIDR", proxy)
		}
	}
	if c.ApplePay.Timeout <= 0 {
		return fmt.Errorf("applepay.timeout must be > 0")
	}
	if _, err := merchant.ParseStoreLocation(string(c.ApplePay.CertificateStoreLocation)); err != nil {
		return fmt.Errorf("applepay.certificate_store_location: %w", err)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q is not one of console, json", c.Log.Format)
	}
	return nil
}

// TLSEnabled reports whether the server should listen with HTTPS.
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

const redacted = "***"

// Redacted returns a copy of c that is safe to print.
func (c Config) Redacted() Config {
	if c.ApplePay.MerchantCertificate != "" {
		c.ApplePay.MerchantCertificate = redacted
	}
	if c.ApplePay.MerchantCertificatePassword != "" {
		c.ApplePay.MerchantCertificatePassword = redacted
	}
	return c
}
