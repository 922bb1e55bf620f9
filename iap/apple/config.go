package apple

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/awa/go-iap/appstore"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	defaultTimeout = 15 * time.Second

	envEndpoint               = "IAP_VERIFY_ENDPOINT"
	envSandbox                = "IAP_VERIFY_SANDBOX"
	envTimeout                = "IAP_VERIFY_TIMEOUT"
	envExcludeOldTransactions = "IAP_EXCLUDE_OLD_TRANSACTIONS"
)

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Option func(v *Validator)

// WithEndpoint overrides the verifyReceipt URL.
func WithEndpoint(url string) Option {
	return func(v *Validator) {
		v.endpoint = url
	}
}

// WithSandbox points the validator at the sandbox verifyReceipt endpoint.
func WithSandbox() Option {
	return WithEndpoint(appstore.SandboxURL)
}

// WithHTTPClient sets the transport used for the remote call.
func WithHTTPClient(client Doer) Option {
	return func(v *Validator) {
		v.httpClient = client
	}
}

// WithTimeout bounds each remote call. Zero or negative disables the bound,
// leaving only the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) {
		v.timeout = d
	}
}

// WithExcludeOldTransactions asks the service to only return the latest
// renewal transaction for auto-renewable subscriptions.
func WithExcludeOldTransactions(exclude bool) Option {
	return func(v *Validator) {
		v.excludeOldTransactions = exclude
	}
}

type Config struct {
	Endpoint               string
	Timeout                time.Duration
	ExcludeOldTransactions bool
}

func DefaultConfig() Config {
	return Config{
		Endpoint: appstore.ProductionURL,
		Timeout:  defaultTimeout,
	}
}

// LoadConfigFromEnv builds a Config from the environment, loading a .env file
// from the working directory first if there is one. Variables already set in
// the environment win over the file.
func LoadConfigFromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, errors.Wrap(err, "failed to load .env file")
	}

	cfg := DefaultConfig()

	sandbox, err := getEnvBool(envSandbox, false)
	if err != nil {
		return Config{}, err
	}
	if sandbox {
		cfg.Endpoint = appstore.SandboxURL
	}
	if endpoint := os.Getenv(envEndpoint); endpoint != "" {
		cfg.Endpoint = endpoint
	}

	if raw := os.Getenv(envTimeout); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, errors.Wrapf(err, "parse %s", envTimeout)
		}
		cfg.Timeout = timeout
	}

	cfg.ExcludeOldTransactions, err = getEnvBool(envExcludeOldTransactions, false)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Options converts the config into validator options.
func (c Config) Options() []Option {
	opts := []Option{
		WithTimeout(c.Timeout),
		WithExcludeOldTransactions(c.ExcludeOldTransactions),
	}
	if c.Endpoint != "" {
		opts = append(opts, WithEndpoint(c.Endpoint))
	}
	return opts
}

func getEnvBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.Wrapf(err, "parse %s", key)
	}
	return v, nil
}
