package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host            string
		Addr            string
		DebugHost       string
		ShutdownTimeout time.Duration
		// UpstreamTimeout bounds each call to the identity provider, the
		// entitlement RPC and the storage backend.
		UpstreamTimeout time.Duration
		MaxUploadSize   string // echo BodyLimit format, e.g "25M"
	}

	// StorageConfig holds the S3-compatible bucket coordinates and the static
	// signing key pair. The secret key never leaves this process.
	StorageConfig struct {
		AccountID       string
		AccessKeyID     string
		SecretAccessKey string
		Bucket          string
		PublicBaseURL   string
		// Endpoint overrides the account-derived backend URL; used for local
		// S3-compatible stores and in tests.
		Endpoint string
	}

	// AuthConfig points at the identity provider. APIKey authorizes the
	// introspection call on behalf of the end user; ServiceKey authorizes
	// service-level RPCs (the entitlement check).
	AuthConfig struct {
		BaseURL    string
		APIKey     string
		ServiceKey string
	}

	Config struct {
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		FrontendBaseURL  string
		SendgridApiKey   string
		RollbarToken     string
		AdminEmail       string
		DefaultFrom      string

		Server  ServerConfig
		Storage StorageConfig
		Auth    AuthConfig
	}
)

// NewConfig loads the configuration once at process start: defaults first, then an
// optional config/.env.<env> file, then `<ENV>_`-prefixed environment variables.
// The resulting struct is passed by reference everywhere; nothing reads the
// environment at request time.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Hifadhi")
	v.SetDefault("build", "dev")
	v.SetDefault("host", "localhost")
	v.SetDefault("addr", ":8000")
	v.SetDefault("debugHost", "localhost:6060")
	v.SetDefault("shutdownTimeout", 5*time.Second)
	v.SetDefault("upstreamTimeout", 15*time.Second)
	v.SetDefault("maxUploadSize", "25M")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseUrl", "http://localhost:3000")

	env := os.Getenv("ENV")
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		FrontendBaseURL:  v.GetString("frontendBaseUrl"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		AdminEmail:       v.GetString("adminEmail"),
		DefaultFrom:      v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:            v.GetString("host"),
			Addr:            v.GetString("addr"),
			DebugHost:       v.GetString("debugHost"),
			ShutdownTimeout: v.GetDuration("shutdownTimeout"),
			UpstreamTimeout: v.GetDuration("upstreamTimeout"),
			MaxUploadSize:   v.GetString("maxUploadSize"),
		},
		Storage: StorageConfig{
			AccountID:       v.GetString("storageAccountId"),
			AccessKeyID:     v.GetString("storageAccessKeyId"),
			SecretAccessKey: v.GetString("storageSecretAccessKey"),
			Bucket:          v.GetString("storageBucket"),
			PublicBaseURL:   v.GetString("storagePublicBaseUrl"),
			Endpoint:        v.GetString("storageEndpoint"),
		},
		Auth: AuthConfig{
			BaseURL:    v.GetString("authBaseUrl"),
			APIKey:     v.GetString("authApiKey"),
			ServiceKey: v.GetString("authServiceKey"),
		},
	}
}

// Validate reports every missing required secret at once so a misconfigured
// deployment fails fast with the complete list instead of one key at a time.
func (conf *Config) Validate() error {
	required := map[string]string{
		"STORAGEACCOUNTID":       conf.Storage.AccountID,
		"STORAGEACCESSKEYID":     conf.Storage.AccessKeyID,
		"STORAGESECRETACCESSKEY": conf.Storage.SecretAccessKey,
		"STORAGEBUCKET":          conf.Storage.Bucket,
		"AUTHBASEURL":            conf.Auth.BaseURL,
		"AUTHAPIKEY":             conf.Auth.APIKey,
	}
	var missing []string
	for key, val := range required {
		if val == "" {
			missing = append(missing, conf.Env+"_"+key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &ConfigError{Missing: missing}
	}
	return nil
}

// Ready reports whether all secrets required to serve a request are present.
// The gateway checks it per request and answers 500 when it fails, independent
// of authentication.
func (conf *Config) Ready() bool {
	return conf.Validate() == nil
}

func (conf *Config) DefaultFromEmail() mail.Address {
	if addr, err := mail.ParseAddress(conf.DefaultFrom); err == nil {
		return *addr
	}
	return mail.Address{Name: conf.AppName, Address: conf.DefaultFrom}
}
