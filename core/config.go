package core

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	// Config holds all runtime settings. It is loaded once in main and passed
	// down explicitly; nothing else in this app reads the environment.
	Config struct {
		Debug    bool
		TestMode bool
		Env      string
		Build    string
		AppName  string

		// SecretKey signs the session cookie.
		SecretKey string
		// AllowedDomain is the only email domain granted access.
		AllowedDomain string

		Server    ServerConfig
		Google    GoogleConfig
		Sophia    SophiaConfig
		Firestore FirestoreConfig
		Call      CallConfig

		RollbarToken string
	}

	ServerConfig struct {
		Host            string
		Port            int
		ShutdownTimeout time.Duration
	}

	// GoogleConfig configures the OAuth client used for staff sign-in.
	GoogleConfig struct {
		ClientID     string
		ClientSecret string
		RedirectURL  string
	}

	// SophiaConfig configures the client for the SophiA school-management API.
	SophiaConfig struct {
		Tenant       string
		User         string
		Password     string
		Hostname     string
		Timeout      time.Duration
		PhotoTimeout time.Duration
	}

	FirestoreConfig struct {
		Project    string
		Collection string
	}

	// CallConfig holds the call-panel policy: how many entries a panel shows
	// and for how long a call stays visible.
	CallConfig struct {
		MaxVisible       int
		InactivityWindow time.Duration
		SweepInterval    time.Duration
	}
)

func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "ChamadaVisual")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "k#2ma(ch@mada$visual!dev*key)c4rb0nell^not-for-prod")
	v.SetDefault("allowedDomain", "colegiocarbonell.com.br")
	v.SetDefault("serverHost", "0.0.0.0")
	v.SetDefault("serverPort", 8000)
	v.SetDefault("shutdownTimeout", 20*time.Second)
	v.SetDefault("oauthRedirectURL", "http://localhost:8000/google-auth")
	v.SetDefault("sophiaTimeout", 10*time.Second)
	v.SetDefault("sophiaPhotoTimeout", 5*time.Second)
	v.SetDefault("firestoreCollection", "chamadas")
	v.SetDefault("callMaxVisible", 10)
	v.SetDefault("callInactivityWindow", 10*time.Minute)
	v.SetDefault("callSweepInterval", time.Minute)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err = godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Debug:         v.GetBool("debug"),
		TestMode:      v.GetBool("testMode"),
		Env:           env,
		Build:         v.GetString("build"),
		AppName:       v.GetString("appName"),
		SecretKey:     v.GetString("secretKey"),
		AllowedDomain: v.GetString("allowedDomain"),
		Server: ServerConfig{
			Host:            v.GetString("serverHost"),
			Port:            v.GetInt("serverPort"),
			ShutdownTimeout: v.GetDuration("shutdownTimeout"),
		},
		Google: GoogleConfig{
			ClientID:     v.GetString("googleClientID"),
			ClientSecret: v.GetString("googleClientSecret"),
			RedirectURL:  v.GetString("oauthRedirectURL"),
		},
		Sophia: SophiaConfig{
			Tenant:       v.GetString("sophiaTenant"),
			User:         v.GetString("sophiaUser"),
			Password:     v.GetString("sophiaPassword"),
			Hostname:     v.GetString("sophiaApiHostname"),
			Timeout:      v.GetDuration("sophiaTimeout"),
			PhotoTimeout: v.GetDuration("sophiaPhotoTimeout"),
		},
		Firestore: FirestoreConfig{
			Project:    v.GetString("firestoreProject"),
			Collection: v.GetString("firestoreCollection"),
		},
		Call: CallConfig{
			MaxVisible:       v.GetInt("callMaxVisible"),
			InactivityWindow: v.GetDuration("callInactivityWindow"),
			SweepInterval:    v.GetDuration("callSweepInterval"),
		},
		RollbarToken: v.GetString("rollbarToken"),
	}
}
