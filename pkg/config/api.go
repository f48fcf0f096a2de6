package config

import "time"

// APIConfig holds runtime configuration for the platform API service.
type APIConfig struct {
	Environment   string
	Addr          string
	DatabaseURL   string
	MigrationsDir string

	JWTSecret           string
	SecretEncryptionKey string
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	MagicLinkTTL        time.Duration
	GuestSessionTTL     time.Duration

	// AuthProviders lists configured external auth providers. Guest sessions
	// are only offered when this list is empty.
	AuthProviders []string

	SiteURL    string
	SiteName   string
	ContentDir string
	HasBlog    bool

	GitHubToken         string
	GitHubAPIBase       string
	GitHubTemplateOwner string
	GitHubTemplateRepo  string
	GitHubOrg           string

	VercelToken   string
	VercelAPIBase string
	VercelTeamID  string

	BillingWebhookSecret string
	BillingSigTolerance  time.Duration

	SendGridAPIKey string
	MailFrom       string
	MailFromName   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int

	DeployPollInterval time.Duration
	DeployStaleAfter   time.Duration
	DeployWatchEvery   time.Duration

	InstallerCacheTTL time.Duration

	RetryAttempts int
	RetryDelay    time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:   GetString("APP_ENV", "development"),
		Addr:          GetString("API_ADDR", ":4000"),
		DatabaseURL:   GetString("DATABASE_URL", "postgres://shipkit:shipkit@db:5432/shipkit?sslmode=disable"),
		MigrationsDir: GetString("DB_MIGRATIONS_DIR", "db/migrations"),

		JWTSecret:           GetString("JWT_SECRET", "supersecuresecret"),
		SecretEncryptionKey: GetString("SECRET_ENCRYPTION_KEY", "supersecuresecret"),
		AccessTokenTTL:      time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RefreshTokenTTL:     time.Duration(GetInt("REFRESH_TOKEN_TTL_HOURS", 24)) * time.Hour,
		MagicLinkTTL:        time.Duration(GetInt("MAGIC_LINK_TTL_MIN", 15)) * time.Minute,
		GuestSessionTTL:     time.Duration(GetInt("GUEST_SESSION_TTL_HOURS", 12)) * time.Hour,

		AuthProviders: GetList("AUTH_PROVIDERS", nil),

		SiteURL:    GetString("SITE_URL", "https://shipkit.io"),
		SiteName:   GetString("SITE_NAME", "Shipkit"),
		ContentDir: GetString("CONTENT_DIR", "content/blog"),
		HasBlog:    GetBool("HAS_BLOG", true),

		GitHubToken:         GetString("GITHUB_ACCESS_TOKEN", ""),
		GitHubAPIBase:       GetString("GITHUB_API_BASE", "https://api.github.com"),
		GitHubTemplateOwner: GetString("GITHUB_TEMPLATE_OWNER", "shipkit"),
		GitHubTemplateRepo:  GetString("GITHUB_TEMPLATE_REPO", "shipkit-template"),
		GitHubOrg:           GetString("GITHUB_ORG", ""),

		VercelToken:   GetString("VERCEL_ACCESS_TOKEN", ""),
		VercelAPIBase: GetString("VERCEL_API_BASE", "https://api.vercel.com"),
		VercelTeamID:  GetString("VERCEL_TEAM_ID", ""),

		BillingWebhookSecret: GetString("BILLING_WEBHOOK_SECRET", ""),
		BillingSigTolerance:  time.Duration(GetInt("BILLING_SIG_TOLERANCE_SECONDS", 300)) * time.Second,

		SendGridAPIKey: GetString("SENDGRID_API_KEY", ""),
		MailFrom:       GetString("MAIL_FROM", "hello@shipkit.io"),
		MailFromName:   GetString("MAIL_FROM_NAME", "Shipkit"),

		RedisAddr:     GetString("REDIS_ADDR", ""),
		RedisPassword: GetString("REDIS_PASSWORD", ""),
		RedisDB:       GetInt("REDIS_DB", 0),

		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),

		DeployPollInterval: time.Duration(GetInt("DEPLOY_POLL_SECONDS", 3)) * time.Second,
		DeployStaleAfter:   time.Duration(GetInt("DEPLOY_STALE_MINUTES", 10)) * time.Minute,
		DeployWatchEvery:   time.Duration(GetInt("DEPLOY_WATCH_SECONDS", 30)) * time.Second,

		InstallerCacheTTL: time.Duration(GetInt("INSTALLER_CACHE_TTL_MIN", 30)) * time.Minute,

		RetryAttempts: GetInt("ACTION_RETRY_ATTEMPTS", 3),
		RetryDelay:    time.Duration(GetInt("ACTION_RETRY_DELAY_MS", 500)) * time.Millisecond,
	}
}
