// Package config loads and validates the bot configuration.
//
// The settings live in config.yml. Mail credentials are kept apart in
// .mail_config.yml, whose keys are merged under "mail". Any key can be
// overridden from the environment with the WIKIBOT_ prefix, dots replaced
// by underscores: WIKIBOT_MAIL_SMTP_PASSWORD, WIKIBOT_TRANSLATION_API_KEY.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "WIKIBOT"

// Bot is the identity the bot commits and mails under.
type Bot struct {
	// Author is compared against last authors to decide auto-translation.
	Author       string `mapstructure:"author" yaml:"author"`
	Email        string `mapstructure:"email" yaml:"email"`
	CommitPrefix string `mapstructure:"commit_prefix" yaml:"commit_prefix"`
	SSHKey       string `mapstructure:"ssh_key" yaml:"ssh_key,omitempty"`
}

// Area is a local clone of the wiki repository.
type Area struct {
	RelPath   string `mapstructure:"relpath" yaml:"relpath"`
	GitRemote string `mapstructure:"git_remote" yaml:"git_remote"`
	Branch    string `mapstructure:"branch" yaml:"branch"`
}

// Gitlab locates the forge for links in reports.
type Gitlab struct {
	Home string `mapstructure:"home" yaml:"home"`
}

// Mail holds the SMTP settings.
type Mail struct {
	SMTPHost      string   `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort      int      `mapstructure:"smtp_port" yaml:"smtp_port"`
	SMTPAddress   string   `mapstructure:"smtp_address" yaml:"smtp_address"`
	SMTPUsername  string   `mapstructure:"smtp_username" yaml:"smtp_username"`
	SMTPPassword  string   `mapstructure:"smtp_password" yaml:"smtp_password"`
	ReceiverAdmin []string `mapstructure:"receiver_admin" yaml:"receiver_admin"`
	DryRun        bool     `mapstructure:"dry_run" yaml:"dry_run"`
}

// Translation selects the machine translation backend.
type Translation struct {
	Backend   string        `mapstructure:"backend" yaml:"backend"`
	Model     string        `mapstructure:"model" yaml:"model,omitempty"`
	APIKey    string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Command   []string      `mapstructure:"command" yaml:"command,omitempty"`
	MaxTokens int           `mapstructure:"max_tokens" yaml:"max_tokens,omitempty"`
	Banner    bool          `mapstructure:"banner" yaml:"banner"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"` // per backend call
}

// Gitbook configures the site tool.
type Gitbook struct {
	Binary string `mapstructure:"binary" yaml:"binary"`
	Port   int    `mapstructure:"port" yaml:"port"`
}

// Monitor configures the polling loop.
type Monitor struct {
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	WatermarkFile string        `mapstructure:"watermark_file" yaml:"watermark_file"`
}

// Supervisor configures process supervision.
type Supervisor struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	LogDir       string        `mapstructure:"log_dir" yaml:"log_dir"`
}

// Log configures the logger.
type Log struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file,omitempty"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// History locates the run database.
type History struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// StatusFeed configures the status server. Empty Addr disables it.
type StatusFeed struct {
	Addr string `mapstructure:"addr" yaml:"addr,omitempty"`
}

// Config is the whole configuration.
type Config struct {
	Bot         Bot         `mapstructure:"bot" yaml:"bot"`
	TestArea    Area        `mapstructure:"testarea" yaml:"testarea"`
	WorkArea    Area        `mapstructure:"workarea" yaml:"workarea"`
	Gitlab      Gitlab      `mapstructure:"gitlab" yaml:"gitlab"`
	Mail        Mail        `mapstructure:"mail" yaml:"mail"`
	Translation Translation `mapstructure:"translation" yaml:"translation"`
	Gitbook     Gitbook     `mapstructure:"gitbook" yaml:"gitbook"`
	Monitor     Monitor     `mapstructure:"monitor" yaml:"monitor"`
	Supervisor  Supervisor  `mapstructure:"supervisor" yaml:"supervisor"`
	Log         Log         `mapstructure:"log" yaml:"log"`
	History     History     `mapstructure:"history" yaml:"history"`
	StatusFeed  StatusFeed  `mapstructure:"statusfeed" yaml:"statusfeed"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.author", "")
	v.SetDefault("bot.email", "")
	v.SetDefault("bot.commit_prefix", "")
	v.SetDefault("bot.ssh_key", "")
	v.SetDefault("testarea.relpath", "testarea")
	v.SetDefault("testarea.git_remote", "")
	v.SetDefault("testarea.branch", "master")
	v.SetDefault("workarea.relpath", "workarea")
	v.SetDefault("workarea.git_remote", "")
	v.SetDefault("workarea.branch", "master")
	v.SetDefault("gitlab.home", "")
	v.SetDefault("mail.smtp_host", "")
	v.SetDefault("mail.smtp_port", 465)
	v.SetDefault("mail.smtp_address", "")
	v.SetDefault("mail.smtp_username", "")
	v.SetDefault("mail.smtp_password", "")
	v.SetDefault("mail.receiver_admin", []string{})
	v.SetDefault("mail.dry_run", false)
	v.SetDefault("translation.backend", "passthrough")
	v.SetDefault("translation.model", "")
	v.SetDefault("translation.api_key", "")
	v.SetDefault("translation.banner", true)
	v.SetDefault("translation.timeout", 2*time.Minute)
	v.SetDefault("gitbook.binary", "gitbook")
	v.SetDefault("gitbook.port", 3001)
	v.SetDefault("monitor.poll_interval", 10*time.Second)
	v.SetDefault("monitor.watermark_file", ".commit_success")
	v.SetDefault("supervisor.poll_interval", 10*time.Second)
	v.SetDefault("supervisor.log_dir", "logs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("history.path", "wikibot.db")
	v.SetDefault("statusfeed.addr", "")
}

// Load reads path and, when it exists, mailPath. An empty mailPath skips
// the secret file.
func Load(path, mailPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if mailPath != "" {
		if _, err := os.Stat(mailPath); err == nil {
			mv := viper.New()
			mv.SetConfigFile(mailPath)
			mv.SetConfigType("yaml")
			if err := mv.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", mailPath, err)
			}
			if err := v.MergeConfigMap(map[string]any{"mail": mv.AllSettings()}); err != nil {
				return nil, fmt.Errorf("failed to merge %s: %w", mailPath, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &cfg, nil
}

// Validate reports every missing or invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	require := func(ok bool, field string) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s is required", field))
		}
	}

	require(c.Bot.Author != "", "bot.author")
	require(c.Bot.Email != "", "bot.email")
	require(c.TestArea.RelPath != "", "testarea.relpath")
	require(c.TestArea.GitRemote != "", "testarea.git_remote")
	require(c.WorkArea.RelPath != "", "workarea.relpath")
	require(c.WorkArea.GitRemote != "", "workarea.git_remote")
	require(c.Gitlab.Home != "", "gitlab.home")
	require(c.Mail.SMTPAddress != "", "mail.smtp_address")
	require(len(c.Mail.ReceiverAdmin) > 0, "mail.receiver_admin")
	if !c.Mail.DryRun {
		require(c.Mail.SMTPHost != "", "mail.smtp_host")
		require(c.Mail.SMTPPassword != "", "mail.smtp_password")
	}
	require(c.Translation.Backend != "", "translation.backend")

	if c.TestArea.RelPath != "" && c.TestArea.RelPath == c.WorkArea.RelPath {
		errs = append(errs, errors.New("testarea.relpath and workarea.relpath must differ"))
	}
	if c.Mail.SMTPPort <= 0 || c.Mail.SMTPPort > 65535 {
		errs = append(errs, fmt.Errorf("mail.smtp_port %d is out of range", c.Mail.SMTPPort))
	}
	if c.Gitbook.Port <= 0 || c.Gitbook.Port > 65535 {
		errs = append(errs, fmt.Errorf("gitbook.port %d is out of range", c.Gitbook.Port))
	}
	if c.Monitor.PollInterval <= 0 {
		errs = append(errs, errors.New("monitor.poll_interval must be positive"))
	}
	if c.Supervisor.PollInterval <= 0 {
		errs = append(errs, errors.New("supervisor.poll_interval must be positive"))
	}
	if c.Translation.Timeout <= 0 {
		errs = append(errs, errors.New("translation.timeout must be positive"))
	}
	return errors.Join(errs...)
}

const redacted = "********"

// Redacted returns a copy with secrets masked.
func (c Config) Redacted() Config {
	if c.Mail.SMTPPassword != "" {
		c.Mail.SMTPPassword = redacted
	}
	if c.Translation.APIKey != "" {
		c.Translation.APIKey = redacted
	}
	c.Mail.ReceiverAdmin = append([]string(nil), c.Mail.ReceiverAdmin...)
	return c
}

// YAML renders the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
