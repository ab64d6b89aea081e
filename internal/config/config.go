package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const EnvProduction = "production"

type Config struct {
	App struct {
		Env     string        `envconfig:"APP_ENV" default:"development"`
		Port    int           `envconfig:"PORT" default:"8080"`
		Timeout time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
	}

	Log struct {
		Level  string `envconfig:"LOG_LEVEL" default:"info"`
		Format string `envconfig:"LOG_FORMAT" default:"console"`
		Output string `envconfig:"LOG_OUTPUT" default:"stderr"`
	}

	// Empty URL keeps all state in memory
	Database struct {
		URL string `envconfig:"DATABASE_URL"`
	}

	Signing struct {
		PrivateKeyPEM   string `envconfig:"SIGNING_PRIVATE_KEY_PEM"`
		CertificatePEM  string `envconfig:"SIGNING_CERTIFICATE_PEM"`
		PrivateKeyFile  string `envconfig:"SIGNING_PRIVATE_KEY_FILE"`
		CertificateFile string `envconfig:"SIGNING_CERTIFICATE_FILE"`
		HashAlgorithm   string `envconfig:"SIGNING_HASH_ALGORITHM" default:"sha256"`
		TrustStorePath  string `envconfig:"TRUST_STORE_PATH"`
		CheckRevocation bool   `envconfig:"SIGNING_CHECK_REVOCATION" default:"false"`
		SoftFail        bool   `envconfig:"TRUST_SOFT_FAIL" default:"true"`
	}

	Peppol struct {
		Providers     []string      `envconfig:"PEPPOL_PROVIDERS" default:"mock"`
		Timeout       time.Duration `envconfig:"PEPPOL_TIMEOUT" default:"30s"`
		TradeshiftURL string        `envconfig:"TRADESHIFT_BASE_URL"`
		TradeshiftKey string        `envconfig:"TRADESHIFT_API_KEY"`
		BaswareURL    string        `envconfig:"BASWARE_BASE_URL"`
		BaswareKey    string        `envconfig:"BASWARE_API_KEY"`
	}
}

// Load reads an optional .env file, then the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Production reports whether signing credentials are mandatory
func (c *Config) Production() bool {
	return strings.EqualFold(c.App.Env, EnvProduction)
}

// Validate checks settings that do not need the network
func (c *Config) Validate() error {
	if len(c.Peppol.Providers) == 0 {
		return fmt.Errorf("PEPPOL_PROVIDERS: at least one provider is required")
	}
	for _, name := range c.Peppol.Providers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "mock", "tradeshift", "basware":
		default:
			return fmt.Errorf("PEPPOL_PROVIDERS: unknown provider %q", name)
		}
	}

	if c.Production() {
		if c.Signing.PrivateKeyPEM == "" && c.Signing.PrivateKeyFile == "" {
			return fmt.Errorf("SIGNING_PRIVATE_KEY_PEM is required in production")
		}
		if c.Signing.CertificatePEM == "" && c.Signing.CertificateFile == "" {
			return fmt.Errorf("SIGNING_CERTIFICATE_PEM is required in production")
		}
	}
	return nil
}

// PrivateKey returns the signing key PEM, from the file when one is set
func (c *Config) PrivateKey() ([]byte, error) {
	return pemValue(c.Signing.PrivateKeyPEM, c.Signing.PrivateKeyFile)
}

// Certificate returns the signing certificate PEM, from the file when one is set
func (c *Config) Certificate() ([]byte, error) {
	return pemValue(c.Signing.CertificatePEM, c.Signing.CertificateFile)
}

// pemValue accepts PEM passed inline with literal \n escapes, as secret
// stores commonly deliver it.
func pemValue(inline, path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return data, nil
	}
	if inline == "" {
		return nil, nil
	}
	return []byte(strings.ReplaceAll(inline, `\n`, "\n")), nil
}

// ProviderNames returns the enabled providers, normalized
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Peppol.Providers))
	for _, n := range c.Peppol.Providers {
		names = append(names, strings.ToLower(strings.TrimSpace(n)))
	}
	return names
}
