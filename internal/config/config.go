package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"complaintdesk/internal/domain"
	"complaintdesk/internal/rules"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	defaultDBPath              = "./complaints.db"
	defaultClarificationRounds = 3
)

type Config struct {
	SlackBotToken string `yaml:"slack_bot_token"`
	SlackAppToken string `yaml:"slack_app_token"`

	DBPath    string `yaml:"db_path"`
	RulesPath string `yaml:"rules_path"`

	OperatorSlackIDs []string          `yaml:"operator_slack_ids"`
	RoutingChannels  map[string]string `yaml:"routing_channels"`
	DigestChannelID  string            `yaml:"digest_channel_id"`
	DigestSchedule   string            `yaml:"digest_schedule"`

	// Zero leaves the value from the rule tables in place.
	SimilarityThreshold        float64 `yaml:"similarity_threshold"`
	SecondaryMargin            float64 `yaml:"secondary_margin"`
	MaxClarificationRounds     int     `yaml:"max_clarification_rounds"`
	ExternalHTTPTimeoutSeconds int     `yaml:"external_http_timeout_seconds"`
	Timezone                   string  `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

func LoadConfig() Config {
	var cfg Config

	envFile := ".env"
	if p := os.Getenv("DOTENV_PATH"); p != "" {
		envFile = p
	}
	if err := godotenv.Load(envFile); err == nil {
		log.Printf("Loaded environment from %s", envFile)
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Error loading %s: %v", envFile, err)
	}

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.RulesPath, "RULES_PATH")
	envOverrideAllowEmpty(&cfg.DigestChannelID, "DIGEST_CHANNEL_ID")
	envOverrideAllowEmpty(&cfg.DigestSchedule, "DIGEST_SCHEDULE")
	envOverrideFloat(&cfg.SimilarityThreshold, "SIMILARITY_THRESHOLD")
	envOverrideFloat(&cfg.SecondaryMargin, "SECONDARY_MARGIN")
	envOverrideInt(&cfg.MaxClarificationRounds, "MAX_CLARIFICATION_ROUNDS")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.Timezone, "TIMEZONE")

	if ids := os.Getenv("OPERATOR_SLACK_IDS"); ids != "" {
		cfg.OperatorSlackIDs = splitList(ids)
	}
	// ROUTING_CHANNELS=human_review=C01,product_backlog=C02
	if routes := os.Getenv("ROUTING_CHANNELS"); routes != "" {
		cfg.RoutingChannels = make(map[string]string)
		for _, pair := range splitList(routes) {
			target, channel, ok := strings.Cut(pair, "=")
			if !ok {
				log.Fatalf("invalid ROUTING_CHANNELS entry '%s': want target=channel", pair)
			}
			cfg.RoutingChannels[strings.TrimSpace(target)] = strings.TrimSpace(channel)
		}
	}

	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.MaxClarificationRounds == 0 {
		cfg.MaxClarificationRounds = defaultClarificationRounds
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	if (cfg.SlackBotToken == "") != (cfg.SlackAppToken == "") {
		log.Fatalf("slack_bot_token and slack_app_token must be set together (via config.yaml or env var)")
	}
	if !cfg.SlackEnabled() {
		log.Printf("WARNING: Slack is not configured. Only the statistics digest log will run.")
	}

	for target, channel := range cfg.RoutingChannels {
		if !domain.RoutingTarget(target).Valid() {
			log.Fatalf("invalid routing_channels key '%s': not a routing target", target)
		}
		if channel == "" {
			log.Fatalf("routing_channels '%s' has an empty channel ID", target)
		}
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.DigestSchedule != "" {
		if _, err := cron.ParseStandard(cfg.DigestSchedule); err != nil {
			log.Fatalf("invalid digest_schedule '%s': %v", cfg.DigestSchedule, err)
		}
	}
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		log.Fatalf("invalid similarity_threshold '%f': must be in (0, 1]", cfg.SimilarityThreshold)
	}
	if cfg.SecondaryMargin < 0 || cfg.SecondaryMargin > 1 {
		log.Fatalf("invalid secondary_margin '%f': must be between 0 and 1", cfg.SecondaryMargin)
	}
	if cfg.MaxClarificationRounds < 1 {
		log.Fatalf("invalid max_clarification_rounds '%d': must be >= 1", cfg.MaxClarificationRounds)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		log.Fatalf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (c Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

// RoutingChannel returns the channel configured for a routing target.
func (c Config) RoutingChannel(target domain.RoutingTarget) (string, bool) {
	ch, ok := c.RoutingChannels[string(target)]
	return ch, ok && ch != ""
}

// ApplyRuleOverrides copies the tuning values set in config or env over the
// loaded rule tables.
func (c Config) ApplyRuleOverrides(r *rules.Rules) {
	if c.SimilarityThreshold > 0 {
		r.Similarity.Threshold = c.SimilarityThreshold
	}
	if c.SecondaryMargin > 0 {
		r.SecondaryMargin = c.SecondaryMargin
	}
}
