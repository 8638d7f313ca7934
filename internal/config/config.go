package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPlaywright = "playwright"
	DriverChromedp   = "chromedp"
)

type Config struct {
	AppConfig        *AppConfig
	BrowserConfig    *BrowserConfig
	AutomationConfig *AutomationConfig
	StoreConfig      *StoreConfig
	AMQPConfig       *AMQPConfig
}

type AppConfig struct {
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	Debug         bool   `envconfig:"DEBUG" default:"false"`
	LogFile       string `envconfig:"LOG_FILE"`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"20"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
	TraceEnabled  bool   `envconfig:"TRACE_ENABLED" default:"false"`
}

type BrowserConfig struct {
	Driver      string `envconfig:"BROWSER_DRIVER" default:"playwright"`
	Headless    bool   `envconfig:"BROWSER_HEADLESS" default:"false"`
	SlowMo      int    `envconfig:"BROWSER_SLOW_MO" default:"0"`
	Timeout     int    `envconfig:"BROWSER_TIMEOUT" default:"30000"`
	UserDataDir string `envconfig:"BROWSER_USER_DATA_DIR" default:"./browser-data"`
	CDPURL      string `envconfig:"BROWSER_CDP_URL"`
	ChromePath  string `envconfig:"BROWSER_CHROME_PATH"`
}

type AutomationConfig struct {
	AppURL                  string  `envconfig:"WA_APP_URL" default:"https://web.whatsapp.com"`
	WarmupMs                int     `envconfig:"WA_WARMUP_MS" default:"5000"`
	LocatorTimeoutMs        int     `envconfig:"WA_LOCATOR_TIMEOUT_MS" default:"15000"`
	CommandTimeoutSeconds   int     `envconfig:"WA_COMMAND_TIMEOUT_SECONDS" default:"30"`
	SettleMs                int     `envconfig:"WA_SETTLE_MS" default:"1500"`
	AttachSettleMs          int     `envconfig:"WA_ATTACH_SETTLE_MS" default:"2000"`
	NavigationSettleMs      int     `envconfig:"WA_NAVIGATION_SETTLE_MS" default:"3000"`
	DelayBufferMs           int     `envconfig:"WA_DELAY_BUFFER_MS" default:"500"`
	KeystrokePacingMs       int     `envconfig:"WA_KEYSTROKE_PACING_MS" default:"25"`
	VerifyRecent            int     `envconfig:"WA_VERIFY_RECENT" default:"10"`
	VerifyFailOpen          bool    `envconfig:"WA_VERIFY_FAIL_OPEN" default:"true"`
	RecipientTimeoutSeconds int     `envconfig:"WA_RECIPIENT_TIMEOUT_SECONDS" default:"120"`
	MaxPerMinute            float64 `envconfig:"WA_MAX_PER_MINUTE" default:"0"`
	SelectorsFile           string  `envconfig:"WA_SELECTORS_FILE"`
	AutoReplyIntervalSecs   int     `envconfig:"WA_AUTO_REPLY_INTERVAL_SECONDS" default:"5"`
}

type StoreConfig struct {
	Path string `envconfig:"STORE_PATH" default:"./wa-blaster.db"`
}

type AMQPConfig struct {
	URL               string `envconfig:"AMQP_URL"`
	Exchange          string `envconfig:"AMQP_EXCHANGE" default:"wa.blaster"`
	CommandQueue      string `envconfig:"AMQP_COMMAND_QUEUE" default:"wa.blaster.commands"`
	CommandRoutingKey string `envconfig:"AMQP_COMMAND_ROUTING_KEY" default:"wa.command.#"`
	ResultRoutingKey  string `envconfig:"AMQP_RESULT_ROUTING_KEY" default:"wa.result"`
	Prefetch          int    `envconfig:"AMQP_PREFETCH" default:"1"`
	ReconnectCapSecs  int    `envconfig:"AMQP_RECONNECT_CAP_SECONDS" default:"30"`
}

func GetConfig() (*Config, error) {
	_ = godotenv.Load()

	var conf Config

	if err := envconfig.Process("", &conf); err != nil {
		return nil, fmt.Errorf("read config from env vars: %w", err)
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}

	return &conf, nil
}

func (c *Config) validate() error {
	switch c.BrowserConfig.Driver {
	case DriverPlaywright, DriverChromedp:
	default:
		return fmt.Errorf("unknown BROWSER_DRIVER %q", c.BrowserConfig.Driver)
	}

	if c.AutomationConfig.CommandTimeoutSeconds <= 0 {
		return fmt.Errorf("WA_COMMAND_TIMEOUT_SECONDS must be positive")
	}

	return nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (a *AutomationConfig) Warmup() time.Duration         { return ms(a.WarmupMs) }
func (a *AutomationConfig) LocatorTimeout() time.Duration { return ms(a.LocatorTimeoutMs) }
func (a *AutomationConfig) Settle() time.Duration         { return ms(a.SettleMs) }
func (a *AutomationConfig) AttachSettle() time.Duration   { return ms(a.AttachSettleMs) }
func (a *AutomationConfig) NavigationSettle() time.Duration {
	return ms(a.NavigationSettleMs)
}
func (a *AutomationConfig) DelayBuffer() time.Duration     { return ms(a.DelayBufferMs) }
func (a *AutomationConfig) KeystrokePacing() time.Duration { return ms(a.KeystrokePacingMs) }

func (a *AutomationConfig) CommandTimeout() time.Duration {
	return time.Duration(a.CommandTimeoutSeconds) * time.Second
}

func (a *AutomationConfig) RecipientTimeout() time.Duration {
	return time.Duration(a.RecipientTimeoutSeconds) * time.Second
}

func (a *AutomationConfig) AutoReplyInterval() time.Duration {
	return time.Duration(a.AutoReplyIntervalSecs) * time.Second
}
