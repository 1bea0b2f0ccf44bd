package core

import (
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridApiKey   string
		Locale           string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Bucket   BucketConfig
		Session  SessionConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugAddress              string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		URL string // empty: revoked sessions are kept in memory
	}

	// BucketConfig points at an S3 compatible bucket holding avatars.
	BucketConfig struct {
		Name          string // empty: avatar uploads are disabled
		Region        string
		Endpoint      string
		AccessKey     string
		SecretKey     string
		PublicBaseURL string
		UsePathStyle  bool
	}

	SessionConfig struct {
		IdleTimeout         time.Duration
		ActivityThrottle    time.Duration
		ProfileFetchTimeout time.Duration
		DenialCooldown      time.Duration
		LoginPath           string
		FallbackPath        string
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Pesantren")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("defaultFromEmail", "Pesantren <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("locale", "id")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "pesantren")
	v.SetDefault("database.user", "pesantren")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.url", "")

	v.SetDefault("bucket.name", "")
	v.SetDefault("bucket.region", "us-east-1")
	v.SetDefault("bucket.endpoint", "")
	v.SetDefault("bucket.accessKey", "")
	v.SetDefault("bucket.secretKey", "")
	v.SetDefault("bucket.publicBaseURL", "")
	v.SetDefault("bucket.usePathStyle", true)

	v.SetDefault("session.idleTimeout", 20*time.Minute)
	v.SetDefault("session.activityThrottle", time.Second)
	v.SetDefault("session.profileFetchTimeout", 3*time.Second)
	v.SetDefault("session.denialCooldown", 2*time.Second)
	v.SetDefault("session.loginPath", "/login")
	v.SetDefault("session.fallbackPath", "/")
}

// DefaultConfig returns the configuration built from defaults only.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	conf, _ := fromViper(v, "DEV")
	return conf
}

// LoadConfig reads the configuration from `config/.env.<env>` (when present) and the environment.
// Environment variables are prefixed with the upper-cased ENV, eg. `PROD_SECRETKEY`.
func LoadConfig() (*Config, error) {
	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	v := viper.New()
	setDefaults(v)
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "getting working directory")
	}
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.AutomaticEnv()

	return fromViper(v, env)
}

func fromViper(v *viper.Viper, env string) (*Config, error) {
	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		return nil, errors.Wrap(err, "parsing defaultFromEmail")
	}

	conf := &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: *from,
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		Locale:           v.GetString("locale"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugAddress:              v.GetString("server.debugAddress"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("server.passwordResetTimeoutDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis.url"),
		},
		Bucket: BucketConfig{
			Name:          v.GetString("bucket.name"),
			Region:        v.GetString("bucket.region"),
			Endpoint:      v.GetString("bucket.endpoint"),
			AccessKey:     v.GetString("bucket.accessKey"),
			SecretKey:     v.GetString("bucket.secretKey"),
			PublicBaseURL: v.GetString("bucket.publicBaseURL"),
			UsePathStyle:  v.GetBool("bucket.usePathStyle"),
		},
		Session: SessionConfig{
			IdleTimeout:         v.GetDuration("session.idleTimeout"),
			ActivityThrottle:    v.GetDuration("session.activityThrottle"),
			ProfileFetchTimeout: v.GetDuration("session.profileFetchTimeout"),
			DenialCooldown:      v.GetDuration("session.denialCooldown"),
			LoginPath:           v.GetString("session.loginPath"),
			FallbackPath:        v.GetString("session.fallbackPath"),
		},
	}
	return conf, nil
}
