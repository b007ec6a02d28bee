package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppName      string
	Env          string // DEV (local; default), TEST, QA, PROD
	Build        string
	Debug        bool
	TestMode     bool
	SecretKey    string
	WorkDir      string
	RollbarToken string

	FrontendBaseURL           string
	SendgridApiKey            string
	PasswordResetTimeoutDelta time.Duration
	defaultFromEmail          string

	Server struct {
		Host                      string
		Port                      string
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		SessionTTL                time.Duration
		LoginPath                 string
	}

	Storage struct {
		Backend   string // memory | json | sqlite | postgres
		Namespace string
		DataDir   string
		Quota     string // human size, e.g. 5MB; empty means unlimited
		BookCap   int
		Watch     bool
	}

	Uploads struct {
		Dir     string
		BaseURL string
		MaxSize string
	}

	Database struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	AI struct {
		APIKey      string
		BaseURL     string // optional API endpoint override, e.g. a proxy
		Model       string
		Temperature float64
		Timeout     time.Duration
	}
}

// Address returns the API server's listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

// NewConfig loads the app configuration from defaults, an optional YAML file, an optional
// .env file and the environment, in increasing priority.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("appName", "Maktaba")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("secretKey", "p9xk2-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 60*time.Second)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.sessionTTL", 12*time.Hour)
	v.SetDefault("server.loginPath", "/login")

	v.SetDefault("storage.backend", "json")
	v.SetDefault("storage.namespace", "maktaba")
	v.SetDefault("storage.dataDir", "data")
	v.SetDefault("storage.quota", "5MB")
	v.SetDefault("storage.bookCap", 10)
	v.SetDefault("storage.watch", true)

	v.SetDefault("uploads.dir", filepath.Join("data", "uploads"))
	v.SetDefault("uploads.baseURL", "/uploads")
	v.SetDefault("uploads.maxSize", "50MB")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "maktaba")
	v.SetDefault("database.user", "maktaba")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("ai.apiKey", "")
	v.SetDefault("ai.baseURL", "")
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.temperature", 0.4)
	v.SetDefault("ai.timeout", 30*time.Second)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
		v.SetDefault("storage.backend", "memory")
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := os.Getenv("WORKDIR")
	if wd == "" {
		var err error
		if wd, err = os.Getwd(); err != nil {
			log.Fatalf("config.os.Getwd(): %v", err)
		}
	}
	confDir := filepath.Join(wd, "config")

	// optional YAML config
	v.SetConfigName("maktaba")
	v.SetConfigType("yaml")
	v.AddConfigPath(confDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("config.ReadInConfig(): %v", err)
		}
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(confDir, ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:      v.GetString("appName"),
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		WorkDir:      wd,
		RollbarToken: v.GetString("rollbarToken"),

		FrontendBaseURL:           strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		defaultFromEmail:          v.GetString("defaultFromEmail"),
	}

	conf.Server.Host = v.GetString("server.host")
	conf.Server.Port = v.GetString("server.port")
	conf.Server.DebugHost = v.GetString("server.debugHost")
	conf.Server.ReadTimeout = v.GetDuration("server.readTimeout")
	conf.Server.WriteTimeout = v.GetDuration("server.writeTimeout")
	conf.Server.ShutdownTimeout = v.GetDuration("server.shutdownTimeout")
	conf.Server.JWTExpirationDelta = v.GetDuration("server.jwtExpirationDelta")
	conf.Server.JWTRefreshExpirationDelta = v.GetDuration("server.jwtRefreshExpirationDelta")
	conf.Server.SessionTTL = v.GetDuration("server.sessionTTL")
	conf.Server.LoginPath = v.GetString("server.loginPath")

	conf.Storage.Backend = strings.ToLower(v.GetString("storage.backend"))
	conf.Storage.Namespace = v.GetString("storage.namespace")
	conf.Storage.DataDir = absPath(wd, v.GetString("storage.dataDir"))
	conf.Storage.Quota = v.GetString("storage.quota")
	conf.Storage.BookCap = v.GetInt("storage.bookCap")
	conf.Storage.Watch = v.GetBool("storage.watch")

	conf.Uploads.Dir = absPath(wd, v.GetString("uploads.dir"))
	conf.Uploads.BaseURL = strings.TrimRight(v.GetString("uploads.baseURL"), "/")
	conf.Uploads.MaxSize = v.GetString("uploads.maxSize")

	conf.Database.Engine = v.GetString("database.engine")
	conf.Database.Host = v.GetString("database.host")
	conf.Database.Port = v.GetString("database.port")
	conf.Database.Name = v.GetString("database.name")
	conf.Database.User = v.GetString("database.user")
	conf.Database.Password = v.GetString("database.password")
	conf.Database.AdminUser = v.GetString("database.adminUser")
	conf.Database.AdminPassword = v.GetString("database.adminPassword")
	conf.Database.DisableTLS = v.GetBool("database.disableTLS")

	conf.AI.APIKey = v.GetString("ai.apiKey")
	conf.AI.BaseURL = v.GetString("ai.baseURL")
	conf.AI.Model = v.GetString("ai.model")
	conf.AI.Temperature = v.GetFloat64("ai.temperature")
	conf.AI.Timeout = v.GetDuration("ai.timeout")

	return conf
}

// NewTestConfig returns a Config suitable for tests: in-memory storage, debug off and fixed secrets.
func NewTestConfig() *Config {
	conf := &Config{
		AppName:                   "Maktaba",
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		SecretKey:                 "test-secret",
		FrontendBaseURL:           "http://localhost:3000",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		defaultFromEmail:          "noreply@localhost",
	}
	conf.Server.Port = "0"
	conf.Server.ShutdownTimeout = time.Second
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 4 * time.Hour
	conf.Server.SessionTTL = time.Hour
	conf.Server.LoginPath = "/login"
	conf.Storage.Backend = "memory"
	conf.Storage.Namespace = "maktaba"
	conf.Storage.BookCap = 10
	conf.Uploads.BaseURL = "/uploads"
	conf.Uploads.MaxSize = "1MB"
	conf.AI.Timeout = 5 * time.Second
	return conf
}

// DatabaseAddress returns the host:port of the configured database.
func (c *Config) DatabaseAddress() string {
	if _, err := strconv.Atoi(c.Database.Port); err != nil || c.Database.Port == "" {
		return c.Database.Host
	}
	return net.JoinHostPort(c.Database.Host, c.Database.Port)
}

func absPath(wd, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(wd, p)
}
