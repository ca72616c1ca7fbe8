package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	API        APIConfig
	Tracking   TrackingSettings
	Session    SessionConfig
	Audit      AuditConfig
	Collect    CollectConfig
	Site       SiteConfig
	Request    RequestConfig
	Monitoring MonitoringConfig
}

type APIConfig struct {
	Port        string
	Host        string
	Environment string
}

// DevMode reports whether the service runs in the development environment,
// which changes exclusion-rule 2 and forces exclusion diagnostics on.
func (a APIConfig) DevMode() bool {
	return a.Environment == "development"
}

// TrackingSettings is the process-wide tracking configuration. It is loaded
// once in main and read concurrently without locking; nothing mutates it
// after Load returns.
type TrackingSettings struct {
	MeasurementID string
	APISecret     string

	StripQueryString        bool
	AutoSendPageView        bool
	RequireGaCookieClientID bool
	CreateGclidCookie       bool
	CreateClientIDCookie    bool
	SessionDuration         time.Duration

	AutoSendAddToCart        bool
	AutoSendRemoveFromCart   bool
	AutoSendPurchaseComplete bool

	SendAnalyticsData      bool
	SendAnalyticsInDevMode bool
	FilterBotUserAgents    bool
	AdminExclude           bool
	LogExcludedAnalytics   bool

	GroupExcludes []string

	// ServerExcludes maps a request-attribute name (remoteAddr, userAgent,
	// referrer, host, path) to regex patterns; any match suppresses tracking.
	ServerExcludes map[string][]*regexp.Regexp
}

type SessionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CookieName    string
}

type AuditConfig struct {
	Enabled      bool
	DatabaseURL  string
	MaxConns     int
	MaxIdleConns int
}

type CollectConfig struct {
	Endpoint string
	Timeout  time.Duration
}

type SiteConfig struct {
	BaseURL         string
	Name            string
	MetadataEnabled bool
}

// RequestConfig tells the snapshot middleware how to recognize host-side
// facts it cannot derive on its own: control-panel requests, live previews,
// and the authenticated caller forwarded by the fronting CMS.
type RequestConfig struct {
	ControlPanelPrefix string
	LivePreviewParam   string
	UserHeader         string
	AdminHeader        string
	GroupsHeader       string
}

type MonitoringConfig struct {
	LogLevel string
}

// defaultServerExcludes suppresses tracking for requests originating from
// localhost, matching the stock configuration most installs never change.
const defaultServerExcludes = `{"remoteAddr":["^localhost$|^127(?:\\.[0-9]+){0,2}\\.[0-9]+$|^(?:0*\\:)*?:?0*1$"]}`

func Load() (*Config, error) {
	cfg := &Config{
		API: APIConfig{
			Port:        getEnv("API_PORT", "8484"),
			Host:        getEnv("API_HOST", "0.0.0.0"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Tracking: TrackingSettings{
			MeasurementID:            getEnv("GA_MEASUREMENT_ID", ""),
			APISecret:                getEnv("GA_API_SECRET", ""),
			StripQueryString:         getEnvBool("STRIP_QUERY_STRING", true),
			AutoSendPageView:         getEnvBool("AUTO_SEND_PAGE_VIEW", true),
			RequireGaCookieClientID:  getEnvBool("REQUIRE_GA_COOKIE_CLIENT_ID", true),
			CreateGclidCookie:        getEnvBool("CREATE_GCLID_COOKIE", true),
			CreateClientIDCookie:     getEnvBool("CREATE_CLIENT_ID_COOKIE", true),
			SessionDuration:          getEnvDuration("SESSION_DURATION", 30*time.Minute),
			AutoSendAddToCart:        getEnvBool("AUTO_SEND_ADD_TO_CART", true),
			AutoSendRemoveFromCart:   getEnvBool("AUTO_SEND_REMOVE_FROM_CART", true),
			AutoSendPurchaseComplete: getEnvBool("AUTO_SEND_PURCHASE_COMPLETE", true),
			SendAnalyticsData:        getEnvBool("SEND_ANALYTICS_DATA", true),
			SendAnalyticsInDevMode:   getEnvBool("SEND_ANALYTICS_IN_DEV_MODE", true),
			FilterBotUserAgents:      getEnvBool("FILTER_BOT_USER_AGENTS", true),
			AdminExclude:             getEnvBool("ADMIN_EXCLUDE", false),
			LogExcludedAnalytics:     getEnvBool("LOG_EXCLUDED_ANALYTICS", true),
			GroupExcludes:            getEnvSlice("GROUP_EXCLUDES", []string{}),
		},
		Session: SessionConfig{
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			CookieName:    getEnv("SESSION_COOKIE_NAME", "beacon_session"),
		},
		Audit: AuditConfig{
			Enabled:      getEnvBool("AUDIT_ENABLED", false),
			DatabaseURL:  getEnv("AUDIT_DATABASE_URL", ""),
			MaxConns:     getEnvInt("AUDIT_DB_MAX_CONNS", 10),
			MaxIdleConns: getEnvInt("AUDIT_DB_MAX_IDLE_CONNS", 2),
		},
		Collect: CollectConfig{
			Endpoint: getEnv("COLLECT_ENDPOINT", "https://www.google-analytics.com/mp/collect"),
			Timeout:  getEnvDuration("COLLECT_TIMEOUT", 5*time.Second),
		},
		Site: SiteConfig{
			BaseURL:         getEnv("SITE_BASE_URL", ""),
			Name:            getEnv("SITE_NAME", ""),
			MetadataEnabled: getEnvBool("SITE_METADATA_ENABLED", false),
		},
		Request: RequestConfig{
			ControlPanelPrefix: getEnv("CP_PATH_PREFIX", "/admin"),
			LivePreviewParam:   getEnv("LIVE_PREVIEW_PARAM", "x-live-preview"),
			UserHeader:         getEnv("AUTH_USER_HEADER", "X-Auth-User"),
			AdminHeader:        getEnv("AUTH_ADMIN_HEADER", "X-Auth-Admin"),
			GroupsHeader:       getEnv("AUTH_GROUPS_HEADER", "X-Auth-Groups"),
		},
		Monitoring: MonitoringConfig{
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
	}

	excludes, err := parseServerExcludes(getEnv("SERVER_EXCLUDES", defaultServerExcludes))
	if err != nil {
		return nil, err
	}
	cfg.Tracking.ServerExcludes = excludes

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Audit.Enabled && c.Audit.DatabaseURL == "" {
		return fmt.Errorf("AUDIT_DATABASE_URL is required when AUDIT_ENABLED is on")
	}
	if c.Tracking.SessionDuration <= 0 {
		return fmt.Errorf("SESSION_DURATION must be positive")
	}
	if c.Collect.Endpoint == "" {
		return fmt.Errorf("COLLECT_ENDPOINT is required")
	}
	return nil
}

// parseServerExcludes decodes the SERVER_EXCLUDES JSON map and compiles every
// pattern up front, so a bad regex fails startup instead of every request.
func parseServerExcludes(raw string) (map[string][]*regexp.Regexp, error) {
	if raw == "" {
		return map[string][]*regexp.Regexp{}, nil
	}

	var patterns map[string][]string
	if err := json.Unmarshal([]byte(raw), &patterns); err != nil {
		return nil, fmt.Errorf("SERVER_EXCLUDES is not valid JSON: %w", err)
	}

	compiled := make(map[string][]*regexp.Regexp, len(patterns))
	for attr, items := range patterns {
		for _, item := range items {
			re, err := regexp.Compile(item)
			if err != nil {
				return nil, fmt.Errorf("SERVER_EXCLUDES pattern %q for %q: %w", item, attr, err)
			}
			compiled[attr] = append(compiled[attr], re)
		}
	}
	return compiled, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				result = append(result, item)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
