package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/ConciergePipe/internal/api"
	"github.com/BTreeMap/ConciergePipe/internal/concierge"
	"github.com/BTreeMap/ConciergePipe/internal/genai"
	"github.com/BTreeMap/ConciergePipe/internal/intent"
	"github.com/BTreeMap/ConciergePipe/internal/locker"
	"github.com/BTreeMap/ConciergePipe/internal/lockfile"
	"github.com/BTreeMap/ConciergePipe/internal/messaging"
	"github.com/BTreeMap/ConciergePipe/internal/metrics"
	"github.com/BTreeMap/ConciergePipe/internal/store"
	"github.com/BTreeMap/ConciergePipe/internal/util"
	"github.com/BTreeMap/ConciergePipe/internal/webhook"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ConciergePipe state data
	DefaultStateDir = "/var/lib/conciergepipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "concierge.db"
	// DefaultSendRate is the default outbound SMS segments per second
	DefaultSendRate = 5
)

// SMS providers and completion backends selectable by configuration.
const (
	ProviderOpenPhone = "openphone"
	ProviderTwilio    = "twilio"

	BackendOpenAI   = "openai"
	BackendGemini   = "gemini"
	BackendEndpoint = "endpoint"
	BackendNone     = "none"

	GreetingStandard = "standard"
	GreetingPlain    = "plain"
)

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(os.Stdout, config.LogFormat, config.LogLevel)

	flags, err := parseCommandLineFlags(config, os.Args[1:])
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		slog.Error("ConciergePipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ConciergePipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir          string
	DatabaseURL       string
	APIAddr           string
	SigningSecret     string
	AdminToken        string
	SMSProvider       string
	OpenPhoneKey      string
	OpenPhoneURL      string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
	TwilioWebhookURL  string
	LLMBackend        string
	OpenAIKey         string
	OpenAIModel       string
	GeminiKey         string
	GeminiModel       string
	RecommendationURL string
	RecommendationKey string
	LLMTimeout        time.Duration
	RedisAddr         string
	RedisPassword     string
	LockTimeout       time.Duration
	ProcessingTimeout time.Duration
	SendRate          float64
	GreetingStyle     string
	LogLevel          string
	LogFormat         string
}

// Flags holds command line flag values
type Flags struct {
	Config
	noStateLock bool
}

// initializeLogger installs the default slog logger. format "json" selects the JSON handler.
func initializeLogger(w io.Writer, format, level string) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:          util.GetEnv("CONCIERGE_STATE_DIR", DefaultStateDir),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		APIAddr:           util.GetEnv("API_ADDR", api.DefaultAddr),
		SigningSecret:     os.Getenv("WEBHOOK_SIGNING_SECRET"),
		AdminToken:        os.Getenv("ADMIN_API_TOKEN"),
		SMSProvider:       strings.ToLower(util.GetEnv("SMS_PROVIDER", ProviderOpenPhone)),
		OpenPhoneKey:      os.Getenv("OPENPHONE_API_KEY"),
		OpenPhoneURL:      util.GetEnv("OPENPHONE_API_URL", messaging.DefaultOpenPhoneURL),
		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:  os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioWebhookURL:  os.Getenv("TWILIO_WEBHOOK_URL"),
		LLMBackend:        strings.ToLower(os.Getenv("LLM_BACKEND")),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       util.GetEnv("OPENAI_MODEL", genai.DefaultModel),
		GeminiKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       util.GetEnv("GEMINI_MODEL", genai.DefaultGeminiModel),
		RecommendationURL: os.Getenv("RECOMMENDATION_URL"),
		RecommendationKey: os.Getenv("RECOMMENDATION_API_KEY"),
		LLMTimeout:        util.ParseDurationEnv("LLM_TIMEOUT", concierge.DefaultCompletionTimeout),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		LockTimeout:       util.ParseDurationEnv("LOCK_TIMEOUT", locker.DefaultTimeout),
		ProcessingTimeout: util.ParseDurationEnv("PROCESSING_TIMEOUT", webhook.DefaultProcessingTimeout),
		SendRate:          util.ParseFloatEnv("SEND_RATE_PER_SEC", DefaultSendRate),
		GreetingStyle:     strings.ToLower(util.GetEnv("GREETING_STYLE", GreetingStandard)),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		LogFormat:         os.Getenv("LOG_FORMAT"),
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"CONCIERGE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"WEBHOOK_SIGNING_SECRET_SET", config.SigningSecret != "",
		"ADMIN_API_TOKEN_SET", config.AdminToken != "",
		"SMS_PROVIDER", config.SMSProvider,
		"OPENPHONE_API_KEY_SET", config.OpenPhoneKey != "",
		"TWILIO_AUTH_TOKEN_SET", config.TwilioAuthToken != "",
		"LLM_BACKEND", config.LLMBackend,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"GEMINI_API_KEY_SET", config.GeminiKey != "",
		"RECOMMENDATION_URL_SET", config.RecommendationURL != "",
		"REDIS_ADDR_SET", config.RedisAddr != "",
		"LLM_TIMEOUT", config.LLMTimeout,
		"LOCK_TIMEOUT", config.LockTimeout,
		"PROCESSING_TIMEOUT", config.ProcessingTimeout)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	fs := flag.NewFlagSet("ConciergePipe", flag.ContinueOnError)
	flags := Flags{Config: config}

	fs.StringVar(&flags.StateDir, "state-dir", config.StateDir, "state directory for ConciergePipe data (overrides $CONCIERGE_STATE_DIR)")
	fs.StringVar(&flags.DatabaseURL, "db-dsn", config.DatabaseURL, "PostgreSQL DSN or SQLite path; empty for in-memory (overrides $DATABASE_URL)")
	fs.StringVar(&flags.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&flags.AdminToken, "admin-token", config.AdminToken, "bearer token for the operator conversation view; empty disables it (overrides $ADMIN_API_TOKEN)")
	fs.StringVar(&flags.SMSProvider, "sms-provider", config.SMSProvider, "outbound SMS provider: openphone or twilio (overrides $SMS_PROVIDER)")
	fs.StringVar(&flags.LLMBackend, "llm-backend", config.LLMBackend, "completion backend: openai, gemini, endpoint or none; empty picks the first configured (overrides $LLM_BACKEND)")
	fs.StringVar(&flags.OpenAIKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&flags.OpenAIModel, "openai-model", config.OpenAIModel, "OpenAI model (overrides $OPENAI_MODEL)")
	fs.StringVar(&flags.GeminiModel, "gemini-model", config.GeminiModel, "Gemini model (overrides $GEMINI_MODEL)")
	fs.StringVar(&flags.RecommendationURL, "recommendation-url", config.RecommendationURL, "HTTP recommendation endpoint (overrides $RECOMMENDATION_URL)")
	fs.DurationVar(&flags.LLMTimeout, "llm-timeout", config.LLMTimeout, "completion timeout (overrides $LLM_TIMEOUT)")
	fs.StringVar(&flags.RedisAddr, "redis-addr", config.RedisAddr, "Redis address for distributed conversation locks (overrides $REDIS_ADDR)")
	fs.DurationVar(&flags.LockTimeout, "lock-timeout", config.LockTimeout, "conversation lock wait (overrides $LOCK_TIMEOUT)")
	fs.DurationVar(&flags.ProcessingTimeout, "processing-timeout", config.ProcessingTimeout, "bound on handling one inbound message (overrides $PROCESSING_TIMEOUT)")
	fs.Float64Var(&flags.SendRate, "send-rate", config.SendRate, "outbound SMS segments per second, 0 for unlimited (overrides $SEND_RATE_PER_SEC)")
	fs.StringVar(&flags.GreetingStyle, "greeting-style", config.GreetingStyle, "confirmation greeting: standard or plain (overrides $GREETING_STYLE)")
	fs.BoolVar(&flags.noStateLock, "no-state-lock", false, "do not lock the state directory (SQLite only)")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	// Follow a moved state directory when the DSN is still the derived default
	if config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && flags.DatabaseURL == config.DatabaseURL && flags.StateDir != config.StateDir {
		flags.DatabaseURL = filepath.Join(flags.StateDir, DefaultDBFileName)
		slog.Debug("Updated db DSN based on state directory", "state_dir", flags.StateDir)
	}

	slog.Debug("flags parsed",
		"stateDir", flags.StateDir,
		"dbDSN_set", flags.DatabaseURL != "",
		"apiAddr", flags.APIAddr,
		"smsProvider", flags.SMSProvider,
		"llmBackend", flags.LLMBackend,
		"redisAddr_set", flags.RedisAddr != "",
		"sendRate", flags.SendRate)

	return flags, nil
}

// run wires the modules and serves until ctx is cancelled.
func run(ctx context.Context, flags Flags) error {
	st, release, err := openStore(flags)
	if err != nil {
		return err
	}
	defer release()

	lck, closeLocker, err := buildLocker(ctx, flags)
	if err != nil {
		return err
	}
	defer closeLocker()

	completer, backend, err := buildCompleter(ctx, flags)
	if err != nil {
		return err
	}

	sender, err := buildSender(flags)
	if err != nil {
		return err
	}

	m := metrics.New()
	categorizer := intent.NewCategorizer(intent.NewDefaultRouter())
	composer := concierge.NewComposer(completer,
		concierge.WithCompletionTimeout(flags.LLMTimeout),
		concierge.WithBackendName(backend),
		concierge.WithComposerMetrics(m),
		concierge.WithCategorizer(categorizer),
	)
	machine := concierge.NewMachine(st, composer,
		concierge.WithLocker(lck),
		concierge.WithPersonalizer(buildPersonalizer(flags.GreetingStyle, categorizer)),
		concierge.WithMetrics(m),
	)

	slog.Info("Bootstrapping ConciergePipe", "store", storeKind(flags.DatabaseURL), "llm_backend", backend, "sms_provider", sender.Provider(), "api_addr", flags.APIAddr)
	return api.Run(ctx, api.Deps{Engine: machine, Sender: sender, Store: st, Metrics: m}, buildAPIOptions(flags)...)
}

func storeKind(dsn string) string {
	if strings.TrimSpace(dsn) == "" {
		return "memory"
	}
	return store.DetectDSNType(dsn)
}

// openStore opens the backend and, for SQLite, locks the state directory.
func openStore(flags Flags) (store.Backend, func(), error) {
	kind := storeKind(flags.DatabaseURL)

	var lock *lockfile.Lock
	if kind == store.DSNTypeSQLite && !flags.noStateLock {
		var err error
		lock, err = lockfile.AcquireLock(filepath.Dir(flags.DatabaseURL), kind)
		if err != nil {
			return nil, nil, err
		}
	}

	st, err := store.Open(flags.DatabaseURL)
	if err != nil {
		lock.Release()
		return nil, nil, fmt.Errorf("failed to open %s store: %w", kind, err)
	}
	slog.Debug("Store opened", "kind", kind)

	return st, func() {
		if err := st.Close(); err != nil {
			slog.Warn("Failed to close store", "error", err)
		}
		lock.Release()
	}, nil
}

// buildLocker returns a Redis locker when an address is configured, else an in-process one.
func buildLocker(ctx context.Context, flags Flags) (locker.Locker, func(), error) {
	if flags.RedisAddr == "" {
		slog.Debug("Using in-process conversation locks", "timeout", flags.LockTimeout)
		return locker.NewLocalLocker(flags.LockTimeout), func() {}, nil
	}
	rl, err := locker.NewRedisLocker(ctx, locker.RedisOpts{
		Addr:     flags.RedisAddr,
		Password: flags.RedisPassword,
		Timeout:  flags.LockTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", flags.RedisAddr, err)
	}
	slog.Info("Using Redis conversation locks", "addr", flags.RedisAddr, "timeout", flags.LockTimeout)
	return rl, func() {
		if err := rl.Close(); err != nil {
			slog.Warn("Failed to close redis locker", "error", err)
		}
	}, nil
}

// selectBackend resolves an empty backend to the first one with credentials.
func selectBackend(flags Flags) string {
	if flags.LLMBackend != "" {
		return flags.LLMBackend
	}
	switch {
	case flags.RecommendationURL != "":
		return BackendEndpoint
	case flags.OpenAIKey != "":
		return BackendOpenAI
	case flags.GeminiKey != "":
		return BackendGemini
	default:
		return BackendNone
	}
}

// buildCompleter constructs the completion backend. BackendNone yields a nil Completer,
// which makes the composer answer with its fallback reply.
func buildCompleter(ctx context.Context, flags Flags) (genai.Completer, string, error) {
	backend := selectBackend(flags)
	switch backend {
	case BackendOpenAI:
		c, err := genai.NewClient(genai.WithAPIKey(flags.OpenAIKey), genai.WithModel(flags.OpenAIModel))
		if err != nil {
			return nil, backend, fmt.Errorf("failed to create OpenAI backend: %w", err)
		}
		return c, backend, nil
	case BackendGemini:
		c, err := genai.NewGeminiClient(ctx, genai.WithAPIKey(flags.GeminiKey), genai.WithModel(flags.GeminiModel))
		if err != nil {
			return nil, backend, fmt.Errorf("failed to create Gemini backend: %w", err)
		}
		return c, backend, nil
	case BackendEndpoint:
		c, err := genai.NewEndpointClient(genai.WithEndpoint(flags.RecommendationURL, flags.RecommendationKey))
		if err != nil {
			return nil, backend, fmt.Errorf("failed to create recommendation endpoint backend: %w", err)
		}
		return c, backend, nil
	case BackendNone:
		slog.Warn("No completion backend configured, recommendation questions get the fallback reply")
		return nil, backend, nil
	default:
		return nil, backend, fmt.Errorf("unknown LLM backend %q", backend)
	}
}

// buildSender constructs the outbound provider client wrapped in the send rate limiter.
func buildSender(flags Flags) (messaging.Sender, error) {
	var (
		sender messaging.Sender
		err    error
	)
	switch flags.SMSProvider {
	case ProviderOpenPhone, "":
		sender, err = messaging.NewOpenPhoneSender(
			messaging.WithAPIKey(flags.OpenPhoneKey),
			messaging.WithURL(flags.OpenPhoneURL),
		)
	case ProviderTwilio:
		sender, err = messaging.NewTwilioSender(
			messaging.WithAccountSID(flags.TwilioAccountSID),
			messaging.WithAuthToken(flags.TwilioAuthToken),
			messaging.WithTwilioFromNumber(flags.TwilioFromNumber),
		)
	default:
		return nil, fmt.Errorf("unknown SMS provider %q", flags.SMSProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s sender: %w", flags.SMSProvider, err)
	}
	if flags.SendRate <= 0 {
		return sender, nil
	}
	return messaging.NewRateLimitedSender(sender, flags.SendRate, int(flags.SendRate)+1), nil
}

func buildPersonalizer(style string, categorizer *intent.Categorizer) concierge.Personalizer {
	if style == GreetingPlain {
		return concierge.NewPlainPersonalizer(categorizer)
	}
	if style != GreetingStandard && style != "" {
		slog.Warn("Unknown greeting style, using standard", "style", style)
	}
	return concierge.NewStandardPersonalizer(categorizer)
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if flags.APIAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.APIAddr))
	}
	if flags.SigningSecret != "" {
		apiOpts = append(apiOpts, api.WithSigningSecret(flags.SigningSecret))
	}
	if flags.AdminToken != "" {
		apiOpts = append(apiOpts, api.WithAdminToken(flags.AdminToken))
	}
	if flags.TwilioAuthToken != "" {
		apiOpts = append(apiOpts, api.WithTwilioValidation(flags.TwilioAuthToken, flags.TwilioWebhookURL))
	}
	if flags.ProcessingTimeout > 0 {
		apiOpts = append(apiOpts, api.WithProcessingTimeout(flags.ProcessingTimeout))
	}
	return apiOpts
}
