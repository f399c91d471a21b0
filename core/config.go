package core

import (
	"fmt"
	"log"
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
	Config struct {
		AppName          string
		Build            string
		Env              string // DEV (local; default), TEST, QA, PROD
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridApiKey   string
		WorkDir          string

		Server    ServerConfig
		Database  DatabaseConfig
		Reward    RewardConfig
		Rank      RankConfig
		Dashboard DashboardConfig
		Cache     CacheConfig
		LLM       LLMConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
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

	RewardConfig struct {
		// ReadingSharePercent is the part of a chapter's XP credited for reading it.
		// The quiz gets the remainder.
		ReadingSharePercent int
		PassPercent         float64
	}

	// RankConfig holds rank bands as "Label:minXP" pairs, lowest first.
	RankConfig struct {
		Bands []RankBand
	}

	RankBand struct {
		Label string
		MinXP int
	}

	DashboardConfig struct {
		LeaderboardSize int
	}

	CacheConfig struct {
		ChapterCacheSize int
	}

	LLMConfig struct {
		GeminiAPIKey  string
		Models        []string
		MaxAttempts   int
		RateLimitWait time.Duration
	}
)

func (db DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", db.Host, db.Port)
}

// NewConfig reads the configuration from the environment.
// Variables are prefixed with the environment name, eg. DEV_DATABASE_NAME.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

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

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, env)

	conf := &Config{
		AppName:         v.GetString("app.name"),
		Build:           v.GetString("app.build"),
		Env:             env,
		Debug:           v.GetBool("app.debug"),
		TestMode:        v.GetBool("app.testmode"),
		SecretKey:       v.GetString("app.secretkey"),
		FrontendBaseURL: v.GetString("app.frontendbaseurl"),
		DefaultFromEmail: mail.Address{
			Name:    v.GetString("app.name"),
			Address: v.GetString("app.defaultfromemail"),
		},
		RollbarToken:   v.GetString("rollbar.token"),
		SendgridApiKey: v.GetString("sendgrid.apikey"),
		WorkDir:        workDir,
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debughost"),
			ShutdownTimeout:           v.GetDuration("server.shutdowntimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtexpirationdelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtrefreshexpirationdelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminuser"),
			AdminPassword: v.GetString("database.adminpassword"),
			DisableTLS:    v.GetBool("database.disabletls"),
		},
		Reward: RewardConfig{
			ReadingSharePercent: v.GetInt("reward.readingsharepercent"),
			PassPercent:         v.GetFloat64("reward.passpercent"),
		},
		Dashboard: DashboardConfig{LeaderboardSize: v.GetInt("dashboard.leaderboardsize")},
		Cache:     CacheConfig{ChapterCacheSize: v.GetInt("cache.chaptercachesize")},
		LLM: LLMConfig{
			GeminiAPIKey:  v.GetString("llm.geminiapikey"),
			Models:        splitList(v.GetString("llm.models")),
			MaxAttempts:   v.GetInt("llm.maxattempts"),
			RateLimitWait: v.GetDuration("llm.ratelimitwait"),
		},
	}

	bands, err := ParseRankBands(v.GetString("rank.bands"))
	if err != nil {
		log.Fatalf("config.rank.bands: %v", err)
	}
	conf.Rank.Bands = bands
	return conf
}

func setDefaults(v *viper.Viper, env string) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("app.name", "Gamifica")
	v.SetDefault("app.build", "develop")
	v.SetDefault("app.debug", env == "DEV")
	v.SetDefault("app.testmode", env == "TEST")
	v.SetDefault("app.secretkey", "k8#v-2lq)u3w$+zq=d&rb1(h!s)#*y7(#pe4h^$cmgn2emq")
	v.SetDefault("app.frontendbaseurl", "http://localhost:3000")
	v.SetDefault("app.defaultfromemail", "noreply@localhost")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debughost", ":4000")
	v.SetDefault("server.shutdowntimeout", 5*time.Second)
	v.SetDefault("server.jwtexpirationdelta", 7*24*time.Hour)
	v.SetDefault("server.jwtrefreshexpirationdelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "gamifica")
	v.SetDefault("database.user", "gamifica")
	v.SetDefault("database.password", "gamifica")
	v.SetDefault("database.adminuser", "postgres")
	v.SetDefault("database.adminpassword", "")
	v.SetDefault("database.disabletls", env == "DEV" || env == "TEST")

	v.SetDefault("reward.readingsharepercent", 30)
	v.SetDefault("reward.passpercent", 70.0)
	v.SetDefault("rank.bands", "Novice:0,Apprentice:100,Explorer:250,Specialist:500,Master:1000")
	v.SetDefault("dashboard.leaderboardsize", 5)
	v.SetDefault("cache.chaptercachesize", 512)

	v.SetDefault("llm.geminiapikey", "")
	v.SetDefault("llm.models", "gemini-2.5-flash,gemini-2.0-flash,gemini-flash-latest")
	v.SetDefault("llm.maxattempts", 3)
	v.SetDefault("llm.ratelimitwait", 5*time.Second)
}

// ParseRankBands parses "Label:minXP" pairs separated by commas.
// Bands must start at 0 and be strictly increasing.
func ParseRankBands(s string) ([]RankBand, error) {
	var bands []RankBand
	for _, pair := range splitList(s) {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid rank band %q", pair)
		}
		minXP, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid rank band %q: %v", pair, err)
		}
		label := strings.TrimSpace(parts[0])
		if n := len(bands); n > 0 && minXP <= bands[n-1].MinXP {
			return nil, fmt.Errorf("rank band %q must be above %d XP", label, bands[n-1].MinXP)
		}
		bands = append(bands, RankBand{Label: label, MinXP: minXP})
	}
	if len(bands) == 0 || bands[0].MinXP != 0 {
		return nil, fmt.Errorf("rank bands must start at 0 XP")
	}
	return bands, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
