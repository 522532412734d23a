package app

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jun/notabl/backend/internal/adapter"
	"github.com/jun/notabl/backend/internal/adapter/googledrive"
	"github.com/jun/notabl/backend/internal/adapter/memory"
	"github.com/jun/notabl/backend/internal/adapter/postgres"
	"github.com/jun/notabl/backend/internal/auth"
	"github.com/jun/notabl/backend/internal/config"
	"github.com/jun/notabl/backend/internal/crypto"
	"github.com/jun/notabl/backend/internal/handler"
	"github.com/jun/notabl/backend/internal/markdown"
	"github.com/jun/notabl/backend/internal/model"
	"github.com/jun/notabl/backend/internal/pipeline"
	"github.com/jun/notabl/backend/internal/secret"
	"github.com/jun/notabl/backend/internal/session"
	"github.com/jun/notabl/backend/internal/transcript"
	"github.com/jun/notabl/backend/internal/ws"
)

const devJWTSecret = "default-dev-secret"

// HybridProvider keeps demo accounts in the demo provider and everyone else in the primary one.
type HybridProvider struct {
	primary adapter.StorageProvider
	demo    adapter.StorageProvider
}

func (h *HybridProvider) GetAdapter(ctx context.Context, userID string) (adapter.StorageAdapter, error) {
	if model.IsDemoUser(userID) {
		return h.demo.GetAdapter(ctx, userID)
	}
	return h.primary.GetAdapter(ctx, userID)
}

// Deps are the services the router is built from.
type Deps struct {
	Config           config.Config
	Storage          adapter.StorageProvider
	AuthService      *auth.AuthService
	Fetcher          transcript.Fetcher
	Locker           session.Locker
	Exporter         handler.Exporter
	Hub              *ws.Hub
	JWTSecret        string
	APIGatewaySecret string
}

// App holds the dependencies for the Lambda function and the local server.
type App struct {
	cfg               config.Config
	authHandler       *handler.AuthHandler
	noteHandler       *handler.NoteHandler
	folderHandler     *handler.FolderHandler
	searchHandler     *handler.SearchHandler
	syncHandler       *handler.SyncHandler
	transcriptHandler *handler.TranscriptHandler
	processingHandler *handler.ProcessingHandler
	manager           *pipeline.Manager
	hub               *ws.Hub
	jwtSecret         string
	apiGatewaySecret  string
	closers           []func() error
}

// New builds the handlers and the processing manager from deps.
func New(d Deps) *App {
	if d.Locker == nil {
		d.Locker = session.NewMemoryLocker()
	}

	opts := []pipeline.Option{pipeline.WithInline(d.Config.InlineProcessing)}
	if d.Hub != nil {
		opts = append(opts, pipeline.WithPublisher(d.Hub))
	}
	manager := pipeline.NewManager(d.Storage, d.Locker, d.Fetcher, opts...)

	return &App{
		cfg: d.Config,
		authHandler: handler.NewAuthHandler(d.AuthService, d.Storage, handler.AuthConfig{
			JWTSecret:   d.JWTSecret,
			FrontendURL: d.Config.FrontendURL,
			Cookies:     handler.CookieOptions{DevMode: d.Config.DevMode},
		}),
		noteHandler:       handler.NewNoteHandler(d.Storage, d.JWTSecret, markdown.NewRenderer(), d.Exporter),
		folderHandler:     handler.NewFolderHandler(d.Storage, d.JWTSecret),
		searchHandler:     handler.NewSearchHandler(d.Storage, d.JWTSecret),
		syncHandler:       handler.NewSyncHandler(d.Storage, d.JWTSecret),
		transcriptHandler: handler.NewTranscriptHandler(d.Fetcher),
		processingHandler: handler.NewProcessingHandler(manager, d.JWTSecret),
		manager:           manager,
		hub:               d.Hub,
		jwtSecret:         d.JWTSecret,
		apiGatewaySecret:  d.APIGatewaySecret,
	}
}

// NewApp wires the application against AWS, Google and the configured storage backend.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	var resolver secret.Resolver
	if cfg.DevMode {
		resolver = secret.NewEnvResolver()
		log.Info().Msg("using EnvResolver (DEV_MODE=true)")
	} else {
		resolver = secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))
		log.Info().Msg("using SSMResolver (SSM Parameter Store)")
	}
	resolver = secret.NewCached(resolver)

	jwtSecret := secret.GetOrDefault(ctx, resolver, cfg.JWTSecretParam, "")
	if jwtSecret == "" {
		if !cfg.DevMode {
			return nil, errors.New("jwt secret is not configured")
		}
		log.Warn().Msg("JWT secret not set, using development default")
		jwtSecret = devJWTSecret
	}
	googleClientSecret := secret.GetOrDefault(ctx, resolver, cfg.GoogleClientSecretParam, "")
	apiGatewaySecret := secret.GetOrDefault(ctx, resolver, cfg.APIGatewaySecretParam, "")
	transcriptKey := secret.GetOrDefault(ctx, resolver, cfg.ScrapeCreatorsKeyParam, "")

	var encryptor crypto.Encryptor
	if cfg.DevMode {
		encryptor = crypto.NewMockEncryptor()
		log.Info().Msg("using MockEncryptor (DEV_MODE=true)")
	} else {
		encryptor = crypto.NewKMSService(kms.NewFromConfig(awsCfg), cfg.KMSKeyID)
	}

	var (
		storage    adapter.StorageProvider
		tokenTable auth.DynamoAPI
		locker     session.Locker
		closers    []func() error
	)
	switch cfg.StorageBackend {
	case config.BackendMemory:
		storage = memory.NewProvider(nil, "")
		locker = session.NewMemoryLocker()
	case config.BackendDynamoDB:
		dynamoClient := dynamodb.NewFromConfig(awsCfg)
		storage = memory.NewProvider(dynamoClient, cfg.FileStoreTable)
		tokenTable = dynamoClient
		locker = session.NewLockManager(dynamoClient, cfg.ProcessingLockTable)
	case config.BackendPostgres:
		pg, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		closers = append(closers, pg.Close)
		storage = &HybridProvider{primary: pg, demo: memory.NewProvider(nil, "")}
		if !cfg.DevMode {
			dynamoClient := dynamodb.NewFromConfig(awsCfg)
			tokenTable = dynamoClient
			locker = session.NewLockManager(dynamoClient, cfg.ProcessingLockTable)
		} else {
			locker = session.NewMemoryLocker()
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	log.Info().Str("backend", cfg.StorageBackend).Msg("storage configured")

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: googleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/drive.file",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
	authService := auth.NewAuthService(oauthConfig, tokenTable, cfg.UserTokensTable, encryptor)

	fetcher := transcript.NewClient(transcript.Config{
		APIKey:  transcriptKey,
		BaseURL: cfg.ScrapeCreatorsURL,
		Timeout: cfg.TranscriptTimeout,
	})

	hub := ws.NewHub()
	go hub.Run()

	app := New(Deps{
		Config:           cfg,
		Storage:          storage,
		AuthService:      authService,
		Fetcher:          fetcher,
		Locker:           locker,
		Exporter:         googledrive.NewProvider(authService),
		Hub:              hub,
		JWTSecret:        jwtSecret,
		APIGatewaySecret: apiGatewaySecret,
	})
	app.closers = closers
	return app, nil
}

// Hub returns the websocket hub receiving processing events.
func (app *App) Hub() *ws.Hub {
	return app.hub
}

// Config returns the configuration the app was built with.
func (app *App) Config() config.Config {
	return app.cfg
}

// UserID resolves the user behind a session cookie or bearer token.
func (app *App) UserID(headers map[string]string) (string, error) {
	return handler.GetUserID(eventsRequest(headers), app.jwtSecret)
}

// Shutdown stops the running jobs and releases the storage backend.
func (app *App) Shutdown(ctx context.Context) error {
	err := app.manager.Shutdown(ctx)
	if app.hub != nil {
		app.hub.Close()
	}
	for _, c := range app.closers {
		err = errors.Join(err, c())
	}
	return err
}
