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

type (
	ServerConfig struct {
		Addr            string
		DebugHost       string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		MaxUploadSize   string
		CookieName      string
	}

	SessionConfig struct {
		Capacity        int
		TTL             time.Duration
		ReapInterval    time.Duration
		TimestampLayout string
	}

	CameraConfig struct {
		URL           string
		ReadTimeout   time.Duration
		FrameInterval time.Duration
	}

	DatabaseConfig struct {
		Engine     string // inmem | postgres | sqlite
		Host       string
		Port       int
		User       string
		Password   string
		Name       string
		DisableTLS bool
		Path       string // sqlite file
	}

	Config struct {
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		WorkDir          string
		RollbarToken     string
		SendgridApiKey   string
		DefaultFromEmail mail.Address

		Server   ServerConfig
		Session  SessionConfig
		Camera   CameraConfig
		Database DatabaseConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewConfig reads the configuration from defaults, `config/.env.<env>` and the environment, in that order.
// Environment variables are prefixed by the current ENV, e.g. DEV_SERVER_ADDR.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Attendance")
	v.SetDefault("secretKey", "k1x$9*pqv+lab-attendance=c5%w8n&zt0d!a7s@e4m2)jy(b6")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("defaultFromEmail", "Attendance <noreply@localhost>")

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.writeTimeout", 0*time.Second) // the camera feed is a long-lived response
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.maxUploadSize", "10M")
	v.SetDefault("server.cookieName", "attendance_session")

	v.SetDefault("session.capacity", 60)
	v.SetDefault("session.ttl", 12*time.Hour)
	v.SetDefault("session.reapInterval", 10*time.Minute)
	v.SetDefault("session.timestampLayout", "2006-01-02 15:04:05")

	v.SetDefault("camera.url", "")
	v.SetDefault("camera.readTimeout", 5*time.Second)
	v.SetDefault("camera.frameInterval", 100*time.Millisecond)

	v.SetDefault("database.engine", "inmem")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "attendance")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.path", "attendance.db")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	workDir := Getwd()
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	fromEmail, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		WorkDir:          workDir,
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		DefaultFromEmail: *fromEmail,
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			DebugHost:       v.GetString("server.debugHost"),
			ReadTimeout:     v.GetDuration("server.readTimeout"),
			WriteTimeout:    v.GetDuration("server.writeTimeout"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			MaxUploadSize:   v.GetString("server.maxUploadSize"),
			CookieName:      v.GetString("server.cookieName"),
		},
		Session: SessionConfig{
			Capacity:        v.GetInt("session.capacity"),
			TTL:             v.GetDuration("session.ttl"),
			ReapInterval:    v.GetDuration("session.reapInterval"),
			TimestampLayout: v.GetString("session.timestampLayout"),
		},
		Camera: CameraConfig{
			URL:           v.GetString("camera.url"),
			ReadTimeout:   v.GetDuration("camera.readTimeout"),
			FrameInterval: v.GetDuration("camera.frameInterval"),
		},
		Database: DatabaseConfig{
			Engine:     v.GetString("database.engine"),
			Host:       v.GetString("database.host"),
			Port:       v.GetInt("database.port"),
			User:       v.GetString("database.user"),
			Password:   v.GetString("database.password"),
			Name:       v.GetString("database.name"),
			DisableTLS: v.GetBool("database.disableTLS"),
			Path:       v.GetString("database.path"),
		},
	}
}

// NewTestConfig returns the configuration used by tests: no debug output, fast timeouts.
func NewTestConfig() *Config {
	return &Config{
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		AppName:          "Attendance",
		SecretKey:        "test-secret",
		DefaultFromEmail: mail.Address{Name: "Attendance", Address: "noreply@test.cd"},
		Server: ServerConfig{
			MaxUploadSize: "2M",
			CookieName:    "attendance_session",
		},
		Session: SessionConfig{
			Capacity:        60,
			TTL:             time.Hour,
			TimestampLayout: "2006-01-02 15:04:05",
		},
		Camera: CameraConfig{
			ReadTimeout:   time.Second,
			FrameInterval: 10 * time.Millisecond,
		},
		Database: DatabaseConfig{Engine: "inmem"},
	}
}
