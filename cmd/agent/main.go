// Agent runs the Pawsit session agent: it owns the identity client, resolves each
// sign-in to a destination, interprets deep links and serves the renderer over gRPC.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	grpchealth "google.golang.org/grpc/health"

	"pawsit/agent/internal/admin"
	"pawsit/agent/internal/audit"
	auditrepo "pawsit/agent/internal/audit/repository"
	"pawsit/agent/internal/config"
	"pawsit/agent/internal/db"
	"pawsit/agent/internal/deeplink"
	"pawsit/agent/internal/devlinks"
	"pawsit/agent/internal/health"
	"pawsit/agent/internal/identity/client"
	"pawsit/agent/internal/identity/oidc"
	identityrepo "pawsit/agent/internal/identity/repository"
	"pawsit/agent/internal/identity/service"
	"pawsit/agent/internal/links"
	"pawsit/agent/internal/navigation"
	"pawsit/agent/internal/policy/engine"
	profilerepo "pawsit/agent/internal/profile/repository"
	profileservice "pawsit/agent/internal/profile/service"
	"pawsit/agent/internal/security"
	"pawsit/agent/internal/server"
	"pawsit/agent/internal/server/interceptors"
	"pawsit/agent/internal/session"
	shellhandler "pawsit/agent/internal/shell/handler"
	"pawsit/agent/internal/telemetry"
	otelsetup "pawsit/agent/internal/telemetry/otel"
	"pawsit/agent/internal/telemetry/producer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("agent exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	log := providers.NewLogger("pawsit/agent", otelsetup.ParseLevel(cfg.LogLevel), os.Stdout)
	slog.SetDefault(log)

	kafka := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	emitter := telemetry.Multi(otelsetup.NewEventEmitter(providers.LoggerProvider), kafka)

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer sqlDB.Close()

	accounts := identityrepo.NewPostgresAccountRepository(sqlDB)
	profiles := profilerepo.NewPostgresRepository(sqlDB)
	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(sqlDB), interceptors.ClientIP, log)

	var (
		backend   client.Backend
		verifier  client.Verifier
		registrar shellhandler.Registrar
		recovery  shellhandler.PasswordRecovery
		elevation admin.ElevationSetter
		devStore  *devlinks.MemoryStore
	)
	switch cfg.IdentityMode {
	case config.IdentityModeOIDC:
		p, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
			IssuerURL:    cfg.OIDCIssuerURL,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			Scopes:       cfg.OIDCScopeList(),
			AdminClaim:   cfg.OIDCAdminClaim,
		})
		if err != nil {
			return fmt.Errorf("oidc: %w", err)
		}
		backend, verifier = p, p
		log.Info("identity backend: oidc", "issuer", cfg.OIDCIssuerURL)
	default:
		signer, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
		if err != nil {
			return fmt.Errorf("jwt keys: %w", err)
		}
		tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.IDTTL(), cfg.RefreshTTL())
		authSvc := service.NewAuthService(
			accounts,
			identityrepo.NewPostgresSessionRepository(sqlDB),
			security.NewHasher(cfg.BcryptCost),
			tokens,
			cfg.RefreshTTL(),
			auditLogger,
			log,
		)
		var outbox deeplink.LinkOutbox
		if !cfg.IsProduction() {
			devStore = devlinks.NewMemoryStore()
			outbox = devStore
		}
		authSvc.EnablePasswordReset(service.PasswordResetConfig{
			Codes:     identityrepo.NewPostgresActionCodeRepository(sqlDB),
			Sender:    deeplink.NewResetLinkSender(cfg.DeepLinkPrefixList()[0], cfg.ResetTTL(), outbox, log),
			TTL:       cfg.ResetTTL(),
			PerMinute: cfg.PasswordResetPerMinute,
		})
		backend, verifier = authSvc, authSvc
		registrar = profileservice.NewRegistrar(authSvc, profiles, log)
		recovery = authSvc
		elevation = authSvc
		log.Info("identity backend: local", "alg", security.KeyAlg(pub))
	}

	auth := client.New(backend, verifier, log)
	nav := navigation.New(log)

	opts := []session.Option{session.WithLogger(log), session.WithEmitter(emitter)}
	var policyChecker health.PolicyChecker
	if cfg.RoutingPolicyFile != "" {
		pol, err := engine.LoadRegoPolicy(ctx, cfg.RoutingPolicyFile)
		if err != nil {
			return fmt.Errorf("routing policy: %w", err)
		}
		opts = append(opts, session.WithPolicy(pol))
		policyChecker = pol
		log.Info("routing policy loaded", "file", cfg.RoutingPolicyFile)
	}
	resolver := session.NewResolver(auth, profiles, nav, opts...)

	feed := deeplink.NewFeed(cfg.LaunchURL)
	interpreter := deeplink.NewInterpreter(cfg.DeepLinkPrefixList(), nav, log, emitter)

	var console shellhandler.AdminConsole
	if elevation != nil {
		redirectHome := func() {
			d := resolver.Snapshot().Destination
			if !d.Valid() {
				d = session.DestinationUnauthenticatedHome
			}
			nav.ResetTo(d.String())
		}
		console = admin.NewConsole(auth, accounts, profiles, elevation, redirectHome, log, emitter)
	}

	healthSrv := grpchealth.NewServer()
	checker := health.NewChecker(healthSrv, sqlDB, policyChecker, log, shellhandler.ServiceName)

	grpcSrv := server.NewGRPCServer(server.Deps{
		Shell: shellhandler.NewServer(shellhandler.Deps{
			Auth:      auth,
			Registrar: registrar,
			Recovery:  recovery,
			Console:   console,
			Links:     feed,
			Nav:       nav,
			Session:   resolver,
			Log:       log,
		}),
		Health:        healthSrv,
		RendererToken: cfg.RendererToken,
		Audit:         auditLogger,
		Actor:         func(context.Context) string { return resolver.Snapshot().UserID },
		Emitter:       emitter,
		Log:           log,
	})

	var linksSrv *links.Server
	if cfg.HTTPAddr != "" {
		lc := links.Config{
			Addr:              cfg.HTTPAddr,
			AppPrefix:         cfg.AppPrefix(),
			AppleAppID:        cfg.AppleAppID,
			AndroidPackage:    cfg.AndroidPackage,
			AndroidCertSHA256: cfg.AndroidCertList(),
		}
		if devStore != nil {
			lc.DevLinks = devStore
		}
		linksSrv = links.NewServer(lc, feed, log)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// The resolver subscribes before the interpreter so a launch link is replayed
	// on top of the first reset rather than lost under it.
	stopResolver := resolver.Start(gctx)
	stopLinks := interpreter.Start(gctx, feed)

	g.Go(func() error {
		log.Info("shell gRPC server listening", "addr", cfg.GRPCAddr)
		return grpcSrv.Serve(lis)
	})
	if linksSrv != nil {
		g.Go(linksSrv.ListenAndServe)
	}
	g.Go(func() error {
		checker.Run(gctx, health.DefaultInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		healthSrv.Shutdown()
		grpcSrv.GracefulStop()
		if linksSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := linksSrv.Shutdown(sctx); err != nil {
				log.Warn("links server shutdown", "error", err)
			}
		}
		return nil
	})

	runErr := g.Wait()
	stopLinks()
	stopResolver()

	// Let in-flight async telemetry finish before the exporters go away.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := kafka.Close(); err != nil {
		log.Warn("kafka producer close", "error", err)
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := providers.Shutdown(sctx); err != nil {
		log.Warn("otel shutdown", "error", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
