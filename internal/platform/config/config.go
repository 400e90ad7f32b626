package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Auth      AuthConfig      `koanf:"auth"`
	Audit     AuditConfig     `koanf:"audit"`
	Webhooks  WebhooksConfig  `koanf:"webhooks"`
	Providers ProvidersConfig `koanf:"providers"`
	Notify    NotifyConfig    `koanf:"notify"`
	Flow      FlowConfig      `koanf:"flow"`
	Redis     RedisConfig     `koanf:"redis"`
	Kafka     KafkaConfig     `koanf:"kafka"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MigrationsPath string `koanf:"migrationspath"`
	MaxConns       int    `koanf:"maxconns"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AuthConfig controls service tokens accepted by internal endpoints.
type AuthConfig struct {
	SigningKey string `koanf:"signingkey"`
	Issuer     string `koanf:"issuer"`
}

type AuditConfig struct {
	BufferSize    int `koanf:"buffersize"`
	BatchSize     int `koanf:"batchsize"`
	FlushInterval int `koanf:"flushinterval"` // milliseconds
}

// WebhooksConfig controls the public provider-facing endpoints.
type WebhooksConfig struct {
	// PublicBaseURL is the externally visible origin Twilio signs against,
	// e.g. https://hooks.example.com. Empty means derive from the request.
	PublicBaseURL  string  `koanf:"publicbaseurl"`
	MaxBodyBytes   int64   `koanf:"maxbodybytes"`
	RateLimit      float64 `koanf:"ratelimit"`
	RateLimitBurst int     `koanf:"rateburst"`
	// TrustProxy keys rate limits on the last X-Forwarded-For hop. Enable
	// only behind a reverse proxy that appends that header.
	TrustProxy bool `koanf:"trustproxy"`
}

type ProvidersConfig struct {
	Twilio   TwilioConfig   `koanf:"twilio"`
	WhatsApp WhatsAppConfig `koanf:"whatsapp"`
	Resend   ResendConfig   `koanf:"resend"`
	Graph    GraphConfig    `koanf:"graph"`
	Breaker  BreakerConfig  `koanf:"breaker"`
	// TimeoutSecs bounds every outbound provider HTTP call.
	TimeoutSecs int `koanf:"timeoutsecs"`
}

type TwilioConfig struct {
	APIBaseURL string `koanf:"apibaseurl"`
}

type WhatsAppConfig struct {
	APIBaseURL string `koanf:"apibaseurl"`
	APIVersion string `koanf:"apiversion"`
}

type ResendConfig struct {
	From       string `koanf:"from"`
	APIBaseURL string `koanf:"apibaseurl"`
}

type GraphConfig struct {
	APIVersion string `koanf:"apiversion"`
}

// BreakerConfig mirrors gobreaker.Settings knobs.
type BreakerConfig struct {
	MaxRequests  uint32  `koanf:"maxrequests"`
	IntervalSecs int     `koanf:"intervalsecs"`
	TimeoutSecs  int     `koanf:"timeoutsecs"`
	MinRequests  uint32  `koanf:"minrequests"`
	FailureRatio float64 `koanf:"failureratio"`
}

type NotifyConfig struct {
	DedupTTLSecs    int      `koanf:"dedupttlsecs"`
	DefaultChannels []string `koanf:"defaultchannels"`
}

type FlowConfig struct {
	FlowID        string `koanf:"flowid"`
	InitialScreen string `koanf:"initialscreen"`
	SuccessScreen string `koanf:"successscreen"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
	GroupID string   `koanf:"groupid"`
}

func Load(configPaths ...string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	_ = k.Load(confmap.Provider(map[string]any{
		"server.port":                    8080,
		"server.host":                    "0.0.0.0",
		"database.maxconns":              10,
		"database.migrationspath":        "migrations",
		"log.level":                      "info",
		"log.format":                     "json",
		"auth.issuer":                    "fixhooks",
		"audit.buffersize":               1024,
		"audit.batchsize":                50,
		"audit.flushinterval":            500,
		"webhooks.maxbodybytes":          1 << 20,
		"webhooks.ratelimit":             20.0,
		"webhooks.rateburst":             40,
		"webhooks.trustproxy":            false,
		"providers.timeoutsecs":          10,
		"providers.twilio.apibaseurl":    "https://api.twilio.com",
		"providers.whatsapp.apibaseurl":  "https://graph.facebook.com",
		"providers.whatsapp.apiversion":  "v18.0",
		"providers.resend.from":          "UberFix <hello@tx.uberfix.shop>",
		"providers.graph.apiversion":     "v19.0",
		"providers.breaker.maxrequests":  1,
		"providers.breaker.intervalsecs": 60,
		"providers.breaker.timeoutsecs":  30,
		"providers.breaker.minrequests":  5,
		"providers.breaker.failureratio": 0.6,
		"notify.dedupttlsecs":            86400,
		"notify.defaultchannels":         []string{"in_app"},
		"flow.flowid":                    "1403208574894392",
		"flow.initialscreen":             "REQUEST_FORM",
		"flow.successscreen":             "SUCCESS",
		"kafka.topic":                    "maintenance.request.events",
		"kafka.groupid":                  "fixhooks-notify",
	}, "."), nil)

	// YAML file (optional)
	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// Config file is optional, skip if not found
			continue
		}
	}

	// Environment variables override everything
	// FIXHOOKS_SERVER_PORT -> server.port
	_ = k.Load(env.ProviderWithValue("FIXHOOKS_", ".", func(s, v string) (string, any) {
		key := strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "FIXHOOKS_")),
			"_", ".",
		)
		// Comma-separated lists, e.g. FIXHOOKS_KAFKA_BROKERS=a:9092,b:9092
		if strings.Contains(v, ",") {
			return key, strings.Split(v, ",")
		}
		return key, v
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
