package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 30 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

var defaultClusters = []string{"health", "civil", "climate", "culture", "digital", "food"}

var reviewerRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

type Config struct {
	Reviewer string `yaml:"reviewer"`

	DataDir      string   `yaml:"data_dir"`
	ManifestRoot string   `yaml:"manifest_root"`
	Clusters     []string `yaml:"clusters"`
	LabelDir     string   `yaml:"label_dir"`

	GitHubToken  string `yaml:"github_token"`
	GitHubRepo   string `yaml:"github_repo"`
	GitHubBranch string `yaml:"github_branch"`
	GitHubAPIURL string `yaml:"github_api_url"`

	HistoryDBPath string `yaml:"history_db_path"`
	ListenAddr    string `yaml:"listen_addr"`

	SlackBotToken    string `yaml:"slack_bot_token"`
	SlackChannelID   string `yaml:"slack_channel_id"`
	ProgressSchedule string `yaml:"progress_schedule"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	LLMModel        string `yaml:"llm_model"`
	LLMGuidePath    string `yaml:"llm_label_guide_path"`

	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`
	Timezone                   string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

func LoadConfig() Config {
	var cfg Config

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

	envOverride(&cfg.Reviewer, "LABELER_REVIEWER")
	envOverride(&cfg.DataDir, "DATA_DIR")
	envOverride(&cfg.ManifestRoot, "MANIFEST_ROOT")
	envOverride(&cfg.LabelDir, "LABEL_DIR")
	envOverride(&cfg.GitHubToken, "GITHUB_TOKEN")
	envOverride(&cfg.GitHubRepo, "GITHUB_REPO")
	envOverride(&cfg.GitHubBranch, "GITHUB_BRANCH")
	envOverride(&cfg.GitHubAPIURL, "GITHUB_API_URL")
	envOverrideAllowEmpty(&cfg.HistoryDBPath, "HISTORY_DB_PATH")
	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.ProgressSchedule, "PROGRESS_SCHEDULE")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.LLMGuidePath, "LLM_LABEL_GUIDE_PATH")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.Timezone, "TIMEZONE")

	if clusters := os.Getenv("CLUSTERS"); clusters != "" {
		cfg.Clusters = splitList(clusters)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "./final_output_2"
	}
	if cfg.ManifestRoot == "" {
		cfg.ManifestRoot = "."
	}
	if len(cfg.Clusters) == 0 {
		cfg.Clusters = append([]string(nil), defaultClusters...)
	}
	if cfg.LabelDir == "" {
		cfg.LabelDir = "."
	}
	if cfg.GitHubBranch == "" {
		cfg.GitHubBranch = "main"
	}
	if cfg.GitHubAPIURL == "" {
		cfg.GitHubAPIURL = "https://api.github.com"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8501"
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "claude-sonnet-4-20250514"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	if cfg.Reviewer == "" {
		log.Fatalf("Required config 'reviewer' is not set (via config.yaml or LABELER_REVIEWER)")
	}
	if !reviewerRe.MatchString(cfg.Reviewer) {
		log.Fatalf("invalid reviewer '%s': only letters, digits, '.', '_' and '-' are allowed", cfg.Reviewer)
	}

	if info, err := os.Stat(cfg.DataDir); err != nil || !info.IsDir() {
		log.Fatalf("data_dir '%s' not found: the document root must exist before labeling starts", cfg.DataDir)
	}

	if (cfg.GitHubToken == "") != (cfg.GitHubRepo == "") {
		log.Fatalf("Partial GitHub config: github_token and github_repo are required together")
	}
	if cfg.GitHubRepo != "" && strings.Count(cfg.GitHubRepo, "/") != 1 {
		log.Fatalf("invalid github_repo '%s': expected owner/repo", cfg.GitHubRepo)
	}
	if !cfg.GitHubConfigured() {
		log.Printf("WARNING: GitHub is not configured. Labels are saved to %s.", cfg.LabelDir)
	}

	if cfg.SlackChannelID != "" && cfg.SlackBotToken == "" {
		log.Fatalf("slack_channel_id is set but slack_bot_token is missing")
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

	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		log.Fatalf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.LLMGuidePath != "" {
		if err := validateGuidePath(cfg.LLMGuidePath); err != nil {
			log.Fatalf("invalid llm_label_guide_path '%s': %v", cfg.LLMGuidePath, err)
		}
	}

	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
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

func (c Config) GitHubConfigured() bool {
	return c.GitHubToken != "" && c.GitHubRepo != ""
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) SuggestionsEnabled() bool {
	return c.AnthropicAPIKey != ""
}

func validateGuidePath(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read label guide: %w", err)
	}
	var g struct {
		Labels []struct{} `yaml:"labels"`
	}
	if err := yaml.Unmarshal(data, &g); err != nil {
		return fmt.Errorf("parse label guide yaml: %w", err)
	}
	return nil
}
