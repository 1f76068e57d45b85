// Package config provides configuration management for the side-api service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Vendor names.
const (
	Baemin  = "baemin"
	Coupang = "coupang"
	Ddangyo = "ddangyo"
	Yogiyo  = "yogiyo"
)

// DefaultUserAgent is the desktop user agent applied to every pooled page.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config holds all configuration for the side-api service.
type Config struct {
	// Server settings
	Port        int
	LogLevel    string
	CORSOrigins []string
	RateLimit   int // requests per minute per IP, 0 disables
	IdleTimeout time.Duration

	// Browser settings
	ChromePath        string
	Headless          bool
	Stealth           bool
	UserDataDir       string
	SharedContext     bool
	MaxContexts       int
	NavigationTimeout time.Duration
	ViewportWidth     int
	ViewportHeight    int
	UserAgent         string

	// Storage settings
	CookieStore  string // "file" or "sqlite"
	CookieDir    string
	CookieDBPath string
	SettingsPath string

	// Cache settings
	CacheTTL       time.Duration
	CacheResetCron string
	CacheDedupe    bool

	// Vendors keyed by name.
	Vendors map[string]*VendorConfig
}

// VendorConfig holds the credentials, landing pages, login heuristics and
// API path templates of one vendor back office.
type VendorConfig struct {
	Name       string `yaml:"-"`
	Enabled    bool   `yaml:"enabled"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	LandingURL string `yaml:"landingUrl"`
	LoginURL   string `yaml:"loginUrl"`

	// Login form selectors.
	UserSelector     string `yaml:"userSelector"`
	PasswordSelector string `yaml:"passwordSelector"`
	SubmitSelector   string `yaml:"submitSelector"`

	// Logged-in heuristics: URL substring after navigating to the landing
	// page, selectors that must be absent, and a JWT cookie whose expiry
	// is checked.
	LoggedInURL    string   `yaml:"loggedInUrl"`
	LoginSelectors []string `yaml:"loginSelectors"`
	TokenCookie    string   `yaml:"tokenCookie"`

	// Overlays clicked away before the login form is filled.
	DismissSelectors []string `yaml:"dismissSelectors"`

	Endpoints map[string]string `yaml:"endpoints"`
}

// Endpoint returns an API path template by logical name.
func (v *VendorConfig) Endpoint(name string) string {
	if v == nil || v.Endpoints == nil {
		return ""
	}
	return v.Endpoints[name]
}

// vendorDef describes how a vendor is read from the environment.
type vendorDef struct {
	prefix    string
	endpoints map[string]string // logical name -> env suffix
	defaults  VendorConfig
}

var vendorDefs = map[string]vendorDef{
	Baemin: {
		prefix: "BM",
		endpoints: map[string]string{
			"ownerInfo":     "OWNER_INFO_URL",
			"shopInfo":      "SHOP_INFO_URL",
			"ownerV1":       "OWNER_URL_V1",
			"ownerV2":       "OWNER_URL_V2",
			"menuList":      "GET_MENU_LIST_URL",
			"optionList":    "GET_OPTION_LIST_URL",
			"soldoutMenu":   "SOLDOUT_MENU_URL",
			"activeMenu":    "ACTIVE_MENU_URL",
			"soldoutOption": "SOLDOUT_OPTION_URL",
			"activeOption":  "ACTIVE_OPTION_URL",
			"temporaryStop": "TEMPORARY_STOP_URL",
		},
		defaults: VendorConfig{
			UserSelector:     `input[name="id"]`,
			PasswordSelector: `input[name="password"]`,
			SubmitSelector:   `button[type="submit"]`,
		},
	},
	Coupang: {
		prefix: "CP",
		endpoints: map[string]string{
			"shopInfo":          "SHOP_INFO_URL",
			"menuList":          "GET_MENU_LIST_URL",
			"optionList":        "GET_OPTION_URL",
			"updateStatus":      "UPDATE_STATUS_URL",
			"changeMenu":        "CHANGE_STATUS_MENU",
			"changeOption":      "CHANGE_STATUS_OPTION",
			"irregularHolidays": "IRREGULAR_HOLIDAYS",
		},
		defaults: VendorConfig{
			UserSelector:     "#loginId",
			PasswordSelector: "#password",
			SubmitSelector:   `button[type="submit"]`,
			LoggedInURL:      "/home",
		},
	},
	Ddangyo: {
		prefix: "DG",
		endpoints: map[string]string{
			"shopInfo":      "SHOP_INFO_URL",
			"menuList":      "GET_MENU_LIST_URL",
			"optionList":    "GET_OPTION_URL",
			"changeMenu":    "CHANGE_STATUS_MENU",
			"changeOption":  "CHANGE_STATUS_OPTION",
			"temporaryStop": "TEMPORARY_STOP_URL",
		},
		defaults: VendorConfig{
			UserSelector:     `input[id="mf_ibx_mbrId"]`,
			PasswordSelector: `input[id="mf_sct_pwd"]`,
			SubmitSelector:   `input[id="mf_btn_webLogin"]`,
			LoginSelectors:   []string{`input[id="mf_ibx_mbrId"]`, `input[id="mf_sct_pwd"]`},
		},
	},
	Yogiyo: {
		prefix: "YG",
		endpoints: map[string]string{
			"ownerInfo":     "OWNER_INFO_URL",
			"shopInfo":      "SHOP_INFO_URL",
			"menuList":      "GET_MENU_LIST_URL",
			"optionList":    "GET_OPTION_LIST_URL",
			"changeMenu":    "CHANGE_STATUS_MENU",
			"changeOption":  "CHANGE_STATUS_OPTION",
			"temporaryStop": "TEMPORARY_STOP_URL",
		},
		defaults: VendorConfig{
			UserSelector:     `input[name="username"]`,
			PasswordSelector: `input[name="password"]`,
			SubmitSelector:   `button[type="submit"]`,
			TokenCookie:      "EXT_ACCESS_TOKEN",
		},
	},
}

// VendorNames returns the supported vendors in mount order.
func VendorNames() []string {
	return []string{Baemin, Coupang, Ddangyo, Yogiyo}
}

// Load creates a Config from environment variables with sensible defaults.
// When VENDORS_FILE is set, the YAML file it names is applied on top of the
// vendor settings read from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvInt("PORT", 3000),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		CORSOrigins:       getEnvList("CORS_ORIGINS", []string{"*"}),
		RateLimit:         getEnvInt("RATE_LIMIT_PER_MINUTE", 0),
		IdleTimeout:       getEnvDuration("IDLE_TIMEOUT", 0),
		ChromePath:        getEnv("CHROME_PATH", getEnv("PUPPETEER_EXECUTABLE_PATH", "")),
		Headless:          getEnvBool("BROWSER_HEADLESS", true),
		Stealth:           getEnvBool("BROWSER_STEALTH", true),
		UserDataDir:       getEnv("BROWSER_USER_DATA_DIR", ""),
		SharedContext:     getEnvBool("BROWSER_SHARED_CONTEXT", false),
		MaxContexts:       getEnvInt("MAX_CONTEXTS", 5),
		NavigationTimeout: getEnvDuration("NAVIGATION_TIMEOUT", 30*time.Second),
		ViewportWidth:     getEnvInt("VIEWPORT_WIDTH", 1920),
		ViewportHeight:    getEnvInt("VIEWPORT_HEIGHT", 1080),
		UserAgent:         getEnv("USER_AGENT", DefaultUserAgent),
		CookieStore:       strings.ToLower(getEnv("COOKIE_STORE", "file")),
		CookieDir:         getEnv("COOKIE_DIR", "."),
		CookieDBPath:      getEnv("COOKIE_DB_PATH", "side-api.db"),
		SettingsPath:      getEnv("SETTINGS_PATH", "settings.json"),
		CacheTTL:          getEnvDuration("CACHE_TTL", 24*time.Hour),
		CacheResetCron:    getEnv("CACHE_RESET_CRON", ""),
		CacheDedupe:       getEnvBool("CACHE_DEDUPE", true),
		Vendors:           make(map[string]*VendorConfig),
	}

	for _, name := range VendorNames() {
		cfg.Vendors[name] = loadVendor(name, vendorDefs[name])
	}

	if path := getEnv("VENDORS_FILE", ""); path != "" {
		if err := cfg.applyVendorsFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadVendor(name string, def vendorDef) *VendorConfig {
	env := func(suffix string) string { return def.prefix + "_" + suffix }

	v := &VendorConfig{
		Name:             name,
		Username:         getEnv(env("ID"), ""),
		Password:         getEnv(env("PW"), ""),
		LandingURL:       getEnv(env("URL"), ""),
		LoginURL:         getEnv(env("LOGIN_URL"), def.defaults.LoginURL),
		UserSelector:     getEnv(env("LOGIN_USER_SELECTOR"), def.defaults.UserSelector),
		PasswordSelector: getEnv(env("LOGIN_PASSWORD_SELECTOR"), def.defaults.PasswordSelector),
		SubmitSelector:   getEnv(env("LOGIN_SUBMIT_SELECTOR"), def.defaults.SubmitSelector),
		LoggedInURL:      getEnv(env("LOGGED_IN_URL"), def.defaults.LoggedInURL),
		LoginSelectors:   getEnvList(env("LOGIN_FORM_SELECTORS"), def.defaults.LoginSelectors),
		TokenCookie:      getEnv(env("TOKEN_COOKIE"), def.defaults.TokenCookie),
		DismissSelectors: getEnvList(env("DISMISS_SELECTORS"), def.defaults.DismissSelectors),
		Endpoints:        make(map[string]string, len(def.endpoints)),
	}
	for logical, suffix := range def.endpoints {
		v.Endpoints[logical] = getEnv(env(suffix), "")
	}
	v.Enabled = getEnvBool(env("ENABLED"), v.LandingURL != "")
	return v
}

// vendorsFile is the VENDORS_FILE document.
type vendorsFile struct {
	Vendors map[string]VendorConfig `yaml:"vendors"`
}

func (c *Config) applyVendorsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read vendors file: %w", err)
	}
	var doc vendorsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse vendors file: %w", err)
	}
	for name, override := range doc.Vendors {
		v, ok := c.Vendors[name]
		if !ok {
			return fmt.Errorf("vendors file: unknown vendor %q", name)
		}
		v.merge(override)
	}
	return nil
}

// merge copies the non-empty fields of o into v.
func (v *VendorConfig) merge(o VendorConfig) {
	set := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	set(&v.Username, o.Username)
	set(&v.Password, o.Password)
	set(&v.LandingURL, o.LandingURL)
	set(&v.LoginURL, o.LoginURL)
	set(&v.UserSelector, o.UserSelector)
	set(&v.PasswordSelector, o.PasswordSelector)
	set(&v.SubmitSelector, o.SubmitSelector)
	set(&v.LoggedInURL, o.LoggedInURL)
	set(&v.TokenCookie, o.TokenCookie)
	if len(o.LoginSelectors) > 0 {
		v.LoginSelectors = o.LoginSelectors
	}
	if len(o.DismissSelectors) > 0 {
		v.DismissSelectors = o.DismissSelectors
	}
	for k, ep := range o.Endpoints {
		v.Endpoints[k] = ep
	}
	if o.Enabled || v.LandingURL != "" {
		v.Enabled = true
	}
}

func (c *Config) validate() error {
	if c.MaxContexts < 1 {
		return fmt.Errorf("MAX_CONTEXTS must be at least 1, got %d", c.MaxContexts)
	}
	switch c.CookieStore {
	case "file", "sqlite":
	default:
		return fmt.Errorf("COOKIE_STORE must be file or sqlite, got %q", c.CookieStore)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
