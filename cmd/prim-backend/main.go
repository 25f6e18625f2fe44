package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prim-health/prim-backend/internal/api"
	"github.com/prim-health/prim-backend/internal/email"
	"github.com/prim-health/prim-backend/internal/flow"
	"github.com/prim-health/prim-backend/internal/genai"
	"github.com/prim-health/prim-backend/internal/ledger"
	"github.com/prim-health/prim-backend/internal/lockfile"
	"github.com/prim-health/prim-backend/internal/messaging"
	"github.com/prim-health/prim-backend/internal/store"
	"github.com/prim-health/prim-backend/internal/twiliowhatsapp"
	"github.com/prim-health/prim-backend/internal/users"
	"github.com/prim-health/prim-backend/internal/util"
	"github.com/prim-health/prim-backend/internal/vapi"
	"github.com/prim-health/prim-backend/internal/whatsapp"
)

// Chat transport selectors.
const (
	// TransportTwilio sends and receives WhatsApp traffic through the
	// Twilio Business API (inbound arrives via webhook).
	TransportTwilio = "twilio"
	// TransportWhatsmeow uses a directly linked WhatsApp device.
	TransportWhatsmeow = "whatsmeow"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: user directory and message ledger share one backend.
	st, err := store.NewStore(ctx, buildStoreOptions(flags)...)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.EnsureIndexes(ctx); err != nil {
		slog.Error("Failed to ensure store indexes", "error", err)
		os.Exit(1)
	}
	directory := users.NewDirectory(st)
	led := ledger.NewLedger(st)

	aiClient, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		slog.Error("Failed to initialize GenAI client", "error", err)
		os.Exit(1)
	}

	// The whatsmeow session store is a local file; locking its directory
	// keeps a second instance from corrupting the session.
	if *flags.chatTransport == TransportWhatsmeow {
		sessionDSN := *flags.whatsappDSN
		if sessionDSN == "" {
			sessionDSN = whatsapp.DefaultSQLitePath
		}
		if store.DetectDSNType(sessionDSN) != "postgres" {
			lock, err := lockfile.AcquireLock(filepath.Dir(sessionDSN))
			if err != nil {
				slog.Error("Failed to lock state directory", "error", err)
				os.Exit(1)
			}
			defer lock.Release()
		}
	}

	messenger, err := buildMessagingService(flags)
	if err != nil {
		slog.Error("Failed to initialize chat transport", "error", err)
		os.Exit(1)
	}
	if err := messenger.Start(ctx); err != nil {
		slog.Error("Failed to start chat transport", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := messenger.Stop(); err != nil {
			slog.Warn("Failed to stop chat transport cleanly", "error", err)
		}
	}()

	caller, err := vapi.NewClient(buildVapiOptions(flags)...)
	if err != nil {
		slog.Error("Failed to initialize voice client", "error", err)
		os.Exit(1)
	}

	mailer, err := email.NewClient(buildEmailOptions(flags)...)
	if err != nil {
		slog.Error("Failed to initialize email client", "error", err)
		os.Exit(1)
	}

	engine := flow.NewEngine(directory, led, aiClient, messenger, caller, mailer, buildFlowOptions(flags)...)

	// The whatsmeow transport delivers inbound turns over a channel rather
	// than a webhook, so pump them into the engine here.
	go func() {
		for turn := range messenger.Responses() {
			if err := engine.HandleChatTurn(ctx, turn); err != nil {
				slog.Error("Failed to handle inbound chat turn", "error", err, "from", turn.From)
			}
		}
	}()

	server := api.NewServer(engine, buildAPIOptions(flags)...)
	slog.Info("Bootstrapping Prim backend", "transport", *flags.chatTransport, "api_addr", *flags.apiAddr)
	if err := server.Run(ctx); err != nil {
		slog.Error("Prim backend failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Prim backend exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL    string
	MongoDatabase  string
	APIAddr        string
	OpenAIKey      string
	TwilioSID      string
	TwilioToken    string
	TwilioFrom     string
	ChatTransport  string
	WhatsAppDSN    string
	VapiKey        string
	VapiPhoneID    string
	VapiAssistant  string
	PostmarkToken  string
	EmailFrom      string
	VerifyToken    string
	TallyFormID    string
	SelfNumber     string
	LeadPhrase     string
	BetaMode       bool
	BaseURL        string
}

// Flags holds command line flag values
type Flags struct {
	apiAddr       *string
	dbDSN         *string
	mongoDatabase *string
	openaiKey     *string
	chatTransport *string
	whatsappDSN   *string
	qrOutput      *string
	numeric       *bool
	twilioFrom    *string
	vapiKey       *string
	vapiPhoneID   *string
	vapiAssistant *string
	postmarkToken *string
	emailFrom     *string
	verifyToken   *string
	tallyFormID   *string
	selfNumber    *string
	leadPhrase    *string
	betaMode      *bool
	baseURL       *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MongoDatabase: os.Getenv("MONGO_DATABASE"),
		APIAddr:       os.Getenv("API_ADDR"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		TwilioSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:    os.Getenv("TWILIO_WHATSAPP_NUMBER"),
		ChatTransport: os.Getenv("CHAT_TRANSPORT"),
		WhatsAppDSN:   os.Getenv("WHATSAPP_DB_DSN"),
		VapiKey:       os.Getenv("VAPI_API_KEY"),
		VapiPhoneID:   os.Getenv("VAPI_PHONE_NUMBER_ID"),
		VapiAssistant: os.Getenv("VAPI_ONBOARDING_ASSISTANT_ID"),
		PostmarkToken: os.Getenv("POSTMARK_SERVER_TOKEN"),
		EmailFrom:     os.Getenv("EMAIL_FROM"),
		VerifyToken:   os.Getenv("WHATSAPP_VERIFY_TOKEN"),
		TallyFormID:   os.Getenv("TALLY_FORM_ID"),
		SelfNumber:    os.Getenv("PRIM_SELF_NUMBER"),
		LeadPhrase:    os.Getenv("LEAD_PHRASE"),
		BetaMode:      util.ParseBoolEnv("BETA_MODE", false),
		BaseURL:       os.Getenv("BASE_URL"),
	}

	if config.ChatTransport == "" {
		config.ChatTransport = TransportTwilio
		slog.Debug("No CHAT_TRANSPORT set, defaulting to Twilio", "transport", config.ChatTransport)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"MONGO_DATABASE", config.MongoDatabase,
		"API_ADDR", config.APIAddr,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "",
		"CHAT_TRANSPORT", config.ChatTransport,
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"VAPI_API_KEY_SET", config.VapiKey != "",
		"POSTMARK_SERVER_TOKEN_SET", config.PostmarkToken != "",
		"TALLY_FORM_ID", config.TallyFormID,
		"BETA_MODE", config.BetaMode,
		"BASE_URL", config.BaseURL)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN for the user directory and message ledger (overrides $DATABASE_URL)"),
		mongoDatabase: flag.String("mongo-database", config.MongoDatabase, "MongoDB database name when using a mongodb:// DSN (overrides $MONGO_DATABASE)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		chatTransport: flag.String("chat-transport", config.ChatTransport, "chat transport: twilio or whatsmeow (overrides $CHAT_TRANSPORT)"),
		whatsappDSN:   flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "session store DSN for the whatsmeow transport (overrides $WHATSAPP_DB_DSN)"),
		qrOutput:      flag.String("qr-output", "", "path to write whatsmeow login QR code"),
		numeric:       flag.Bool("numeric-code", false, "use numeric whatsmeow login code instead of QR code"),
		twilioFrom:    flag.String("twilio-from", config.TwilioFrom, "Twilio WhatsApp sender number (overrides $TWILIO_WHATSAPP_NUMBER)"),
		vapiKey:       flag.String("vapi-api-key", config.VapiKey, "VAPI API key (overrides $VAPI_API_KEY)"),
		vapiPhoneID:   flag.String("vapi-phone-number-id", config.VapiPhoneID, "VAPI outbound phone number ID (overrides $VAPI_PHONE_NUMBER_ID)"),
		vapiAssistant: flag.String("vapi-assistant-id", config.VapiAssistant, "pre-built VAPI assistant for onboarding calls (overrides $VAPI_ONBOARDING_ASSISTANT_ID)"),
		postmarkToken: flag.String("postmark-token", config.PostmarkToken, "Postmark server token (overrides $POSTMARK_SERVER_TOKEN)"),
		emailFrom:     flag.String("email-from", config.EmailFrom, "sender address for outbound email (overrides $EMAIL_FROM)"),
		verifyToken:   flag.String("verify-token", config.VerifyToken, "WhatsApp webhook verification token (overrides $WHATSAPP_VERIFY_TOKEN)"),
		tallyFormID:   flag.String("tally-form-id", config.TallyFormID, "accepted Tally lead form ID (overrides $TALLY_FORM_ID)"),
		selfNumber:    flag.String("self-number", config.SelfNumber, "Prim's own WhatsApp number, used to discard self-messages (overrides $PRIM_SELF_NUMBER)"),
		leadPhrase:    flag.String("lead-phrase", config.LeadPhrase, "phrase in inbound chat that marks a qualified lead (overrides $LEAD_PHRASE)"),
		betaMode:      flag.Bool("beta-mode", config.BetaMode, "reply with the beta waiting persona instead of the healthcare persona (overrides $BETA_MODE)"),
		baseURL:       flag.String("base-url", config.BaseURL, "public base URL of this server, used for voice callbacks (overrides $BASE_URL)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"apiAddr", *flags.apiAddr,
		"dbDSN_set", *flags.dbDSN != "",
		"chatTransport", *flags.chatTransport,
		"openaiKeySet", *flags.openaiKey != "",
		"betaMode", *flags.betaMode,
		"baseURL", *flags.baseURL)

	return flags
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		slog.Debug("Configuring store from DSN", "dsn_type", store.DetectDSNType(*flags.dbDSN))
		storeOpts = append(storeOpts, store.WithDSN(*flags.dbDSN))
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	if *flags.mongoDatabase != "" {
		storeOpts = append(storeOpts, store.WithMongoDatabase(*flags.mongoDatabase))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildMessagingService constructs the chat transport selected by flags.
func buildMessagingService(flags Flags) (messaging.Service, error) {
	if *flags.chatTransport == TransportWhatsmeow {
		var waOpts []whatsapp.Option
		if *flags.whatsappDSN != "" {
			waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDSN))
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(client), nil
	}

	var twOpts []twiliowhatsapp.Option
	if *flags.twilioFrom != "" {
		twOpts = append(twOpts, twiliowhatsapp.WithFromWhats(*flags.twilioFrom))
	}
	client, err := twiliowhatsapp.NewClient(twOpts...)
	if err != nil {
		return nil, err
	}
	return messaging.NewTwilioService(client), nil
}

// buildVapiOptions constructs voice client configuration options
func buildVapiOptions(flags Flags) []vapi.Option {
	var vapiOpts []vapi.Option
	if *flags.vapiKey != "" {
		vapiOpts = append(vapiOpts, vapi.WithAPIKey(*flags.vapiKey))
	}
	if *flags.vapiPhoneID != "" {
		vapiOpts = append(vapiOpts, vapi.WithPhoneNumberID(*flags.vapiPhoneID))
	}
	if *flags.vapiAssistant != "" {
		vapiOpts = append(vapiOpts, vapi.WithAssistantID(*flags.vapiAssistant))
	}
	return vapiOpts
}

// buildEmailOptions constructs email client configuration options
func buildEmailOptions(flags Flags) []email.Option {
	var emailOpts []email.Option
	if *flags.postmarkToken != "" {
		emailOpts = append(emailOpts, email.WithServerToken(*flags.postmarkToken))
	}
	if *flags.emailFrom != "" {
		emailOpts = append(emailOpts, email.WithFrom(*flags.emailFrom))
	}
	return emailOpts
}

// buildFlowOptions constructs conversation engine configuration options
func buildFlowOptions(flags Flags) []flow.Option {
	var flowOpts []flow.Option
	if *flags.selfNumber != "" {
		flowOpts = append(flowOpts, flow.WithSelfNumber(*flags.selfNumber))
	}
	if *flags.leadPhrase != "" {
		flowOpts = append(flowOpts, flow.WithLeadPhrase(*flags.leadPhrase))
	}
	flowOpts = append(flowOpts, flow.WithBetaMode(*flags.betaMode))
	if *flags.baseURL != "" {
		flowOpts = append(flowOpts, flow.WithServerURL(*flags.baseURL+"/api/v1/vapi-webhook"))
	}
	return flowOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.verifyToken != "" {
		apiOpts = append(apiOpts, api.WithVerifyToken(*flags.verifyToken))
	}
	if *flags.tallyFormID != "" {
		apiOpts = append(apiOpts, api.WithTallyFormID(*flags.tallyFormID))
	}
	return apiOpts
}
