package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	consulsd "github.com/go-kit/kit/sd/consul"
	kitgrpc "github.com/go-kit/kit/transport/grpc"
	"github.com/gorilla/mux"
	"github.com/hashicorp/consul/api"
	"github.com/ichigozero/taskgate/authsvc"
	authclient "github.com/ichigozero/taskgate/authsvc/client"
	"github.com/ichigozero/taskgate/authsvc/pkg/authendpoint"
	"github.com/ichigozero/taskgate/authsvc/pkg/authservice"
	"github.com/ichigozero/taskgate/authsvc/pkg/authtransport"
	"github.com/ichigozero/taskgate/supabase"
	"github.com/ichigozero/taskgate/tasksvc"
	taskgorm "github.com/ichigozero/taskgate/tasksvc/db/gorm"
	taskremote "github.com/ichigozero/taskgate/tasksvc/db/remote"
	"github.com/ichigozero/taskgate/tasksvc/pkg/taskendpoint"
	"github.com/ichigozero/taskgate/tasksvc/pkg/taskservice"
	"github.com/ichigozero/taskgate/tasksvc/pkg/tasktransport"
	"github.com/ichigozero/taskgate/usersvc"
	usergorm "github.com/ichigozero/taskgate/usersvc/db/gorm"
	userremote "github.com/ichigozero/taskgate/usersvc/db/remote"
	"github.com/ichigozero/taskgate/usersvc/pkg/userendpoint"
	"github.com/ichigozero/taskgate/usersvc/pkg/userservice"
	"github.com/ichigozero/taskgate/usersvc/pkg/usertransport"
	"github.com/joho/godotenv"
	"github.com/oklog/oklog/pkg/group"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/twinj/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	libgorm "gorm.io/gorm"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	fs := flag.NewFlagSet("apigateway", flag.ExitOnError)
	var (
		httpAddr = fs.String(
			"http.addr",
			getEnv("HTTP_ADDR", ":8000"),
			"HTTP listen address",
		)
		grpcAddr = fs.String(
			"grpc.addr",
			getEnv("GRPC_ADDR", ""),
			"gRPC health listen address, disabled when empty",
		)
		consulAddr = fs.String(
			"consul.addr",
			getEnv("CONSUL_ADDR", ""),
			"Consul agent address, registration disabled when empty",
		)
		store = fs.String(
			"store",
			getEnv("STORE", "remote"),
			"task and profile store: remote or gorm",
		)
		databaseURL = fs.String(
			"database.url",
			getEnv("DATABASE_URL", ""),
			"Postgres URL for the gorm store, sqlite when empty",
		)
		supabaseURL = fs.String(
			"supabase.url",
			getEnv("SUPABASE_URL", ""),
			"Supabase project URL",
		)
		supabaseKey = fs.String(
			"supabase.key",
			getEnv("SUPABASE_KEY", ""),
			"Supabase anon key",
		)
		serviceRoleKey = fs.String(
			"supabase.service-role-key",
			getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			"Supabase service role key, defaults to the anon key",
		)
		jwtSecret = fs.String(
			"supabase.jwt-secret",
			getEnv("SUPABASE_JWT_SECRET", ""),
			"shared secret for HS256 token verification",
		)
		remoteTimeout = fs.Duration(
			"remote.timeout",
			time.Duration(getEnvAsInt("REMOTE_TIMEOUT", 5000))*time.Millisecond,
			"timeout of each outbound call",
		)
		retryMax = fs.Int(
			"retry.max",
			getEnvAsInt("RETRY_MAX", 3),
			"attempts per idempotent outbound read",
		)
		retryTimeout = fs.Duration(
			"retry.timeout",
			time.Duration(getEnvAsInt("RETRY_TIMEOUT", 10000))*time.Millisecond,
			"per-read timeout, including retries",
		)
		logLevel = fs.String(
			"log.level",
			getEnv("LOG_LEVEL", "info"),
			"debug, info, warn or error",
		)
	)

	fs.Usage = usageFor(fs, os.Args[0]+" [flags]")
	fs.Parse(os.Args[1:])

	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = level.NewFilter(logger, levelOption(*logLevel))
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}

	var supabaseClient *supabase.Client
	if *supabaseURL != "" {
		var err error
		supabaseClient, err = supabase.New(supabase.Config{
			URL:          *supabaseURL,
			Key:          *supabaseKey,
			ServiceKey:   *serviceRoleKey,
			Timeout:      *remoteTimeout,
			RetryMax:     *retryMax,
			RetryTimeout: *retryTimeout,
		}, log.With(logger, "component", "supabase"))
		if err != nil {
			level.Error(logger).Log("during", "supabase.New", "err", err)
			os.Exit(1)
		}
	}

	verifier := authservice.NewVerifier(*jwtSecret)
	if verifier.VerifiesSignature() {
		level.Info(logger).Log("token_verification", "HS256 signature")
	} else {
		level.Warn(logger).Log("token_verification", "decode only, relying on the downstream service")
	}

	var (
		taskRepository tasksvc.TaskRepository
		userRepository usersvc.UserRepository
		provider       authsvc.IdentityProvider
		afterRegister  func(context.Context, authsvc.User) error
	)
	if supabaseClient != nil {
		provider = authclient.New(supabaseClient)
	}
	switch *store {
	case "remote":
		if supabaseClient == nil {
			level.Error(logger).Log("err", "the remote store needs -supabase.url")
			os.Exit(1)
		}
		taskRepository = taskremote.NewTaskRepository(supabaseClient)
		userRepository = userremote.NewUserRepository(supabaseClient, provider)
	case "gorm":
		db, err := openDB(*databaseURL)
		if err != nil {
			level.Error(logger).Log("during", "gorm.Open", "err", err)
			os.Exit(1)
		}
		if err := taskgorm.Migrate(db); err != nil {
			level.Error(logger).Log("during", "Migrate", "table", "tasks", "err", err)
			os.Exit(1)
		}
		if err := usergorm.Migrate(db); err != nil {
			level.Error(logger).Log("during", "Migrate", "table", "profiles", "err", err)
			os.Exit(1)
		}
		users := usergorm.NewUserRepository(db, provider)
		taskRepository = taskgorm.NewTaskRepository(db)
		userRepository = users
		afterRegister = func(ctx context.Context, u authsvc.User) error {
			return users.Save(ctx, usersvc.Profile{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt})
		}
	default:
		level.Error(logger).Log("err", "unknown store", "store", *store)
		os.Exit(1)
	}

	var taskService taskservice.Service
	{
		taskService = taskservice.New(taskRepository, taskservice.Validator{}, logger)
		taskService = taskservice.AuthorizingMiddleware(taskRepository)(taskService)
		taskService = taskservice.InstrumentingMiddleware(
			kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
				Namespace: "api",
				Subsystem: "task_service",
				Name:      "request_count",
				Help:      "Number of requests received.",
			}, []string{"method", "success"}),
			kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
				Namespace: "api",
				Subsystem: "task_service",
				Name:      "request_latency_seconds",
				Help:      "Total duration of requests in seconds.",
			}, []string{"method", "success"}),
		)(taskService)
	}

	var userService userservice.Service
	{
		userService = userservice.New(userRepository, logger)
		userService = userservice.InstrumentingMiddleware(
			kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
				Namespace: "api",
				Subsystem: "user_service",
				Name:      "request_count",
				Help:      "Number of requests received.",
			}, []string{"method"}),
			kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
				Namespace: "api",
				Subsystem: "user_service",
				Name:      "request_latency_seconds",
				Help:      "Total duration of requests in seconds.",
			}, []string{"method"}),
		)(userService)
	}

	authenticate := authendpoint.NewAuthenticater(verifier)

	r := mux.NewRouter()
	if provider != nil {
		var authService authservice.Service
		{
			authService = authservice.New(provider, verifier, logger)
			if afterRegister != nil {
				authService = authservice.RegistrationHook(afterRegister)(authService)
			}
		}
		endpoints := authendpoint.New(authService, logger)
		authHTTPHandler := authtransport.NewHTTPHandler(endpoints, logger)
		r.PathPrefix("/auth").Handler(http.StripPrefix("/auth", authHTTPHandler))
	} else {
		level.Warn(logger).Log("msg", "no identity provider configured, /auth routes disabled")
	}
	{
		endpoints := userendpoint.New(userService, logger)
		guard := endpoint.Chain(authenticate, authendpoint.AdminOnly())
		userHTTPHandler := usertransport.NewHTTPHandler(endpoints, guard, logger)
		r.PathPrefix("/admin").Handler(http.StripPrefix("/admin", userHTTPHandler))
	}
	{
		endpoints := taskendpoint.New(taskService, logger)
		taskHTTPHandler := tasktransport.NewHTTPHandler(endpoints, authenticate, logger)
		r.PathPrefix("/").Handler(taskHTTPHandler)
	}

	if *consulAddr != "" {
		registrar, err := newRegistrar(*consulAddr, *httpAddr, logger)
		if err != nil {
			level.Error(logger).Log("during", "consul", "err", err)
			os.Exit(1)
		}
		registrar.Register()
		defer registrar.Deregister()
	}

	var g group.Group
	{
		httpListener, err := net.Listen("tcp", *httpAddr)
		if err != nil {
			level.Error(logger).Log("transport", "HTTP", "during", "Listen", "err", err)
			os.Exit(1)
		}
		g.Add(func() error {
			level.Info(logger).Log("transport", "HTTP", "addr", *httpAddr, "store", *store)
			return http.Serve(httpListener, r)
		}, func(error) {
			httpListener.Close()
		})
	}
	if *grpcAddr != "" {
		grpcListener, err := net.Listen("tcp", *grpcAddr)
		if err != nil {
			level.Error(logger).Log("transport", "gRPC", "during", "Listen", "err", err)
			os.Exit(1)
		}
		healthServer := health.NewServer()
		healthServer.SetServingStatus("taskgate", healthpb.HealthCheckResponse_SERVING)
		baseServer := grpc.NewServer(grpc.UnaryInterceptor(kitgrpc.Interceptor))
		healthpb.RegisterHealthServer(baseServer, healthServer)
		g.Add(func() error {
			level.Info(logger).Log("transport", "gRPC", "addr", *grpcAddr)
			return baseServer.Serve(grpcListener)
		}, func(error) {
			healthServer.Shutdown()
			baseServer.GracefulStop()
			grpcListener.Close()
		})
	}
	{
		// This function just sits and waits for ctrl-C.
		cancelInterrupt := make(chan struct{})
		g.Add(func() error {
			c := make(chan os.Signal, 1)
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-c:
				return fmt.Errorf("received signal %s", sig)
			case <-cancelInterrupt:
				return nil
			}
		}, func(error) {
			close(cancelInterrupt)
		})
	}
	level.Info(logger).Log("exit", g.Run())
}

func openDB(databaseURL string) (*libgorm.DB, error) {
	if databaseURL != "" {
		return libgorm.Open(postgres.Open(databaseURL), &libgorm.Config{})
	}
	return libgorm.Open(sqlite.Open("gorm.db"), &libgorm.Config{})
}

// newRegistrar registers the HTTP listener with Consul, health-checked
// through /health.
func newRegistrar(consulAddr, httpAddr string, logger log.Logger) (*consulsd.Registrar, error) {
	consulConfig := api.DefaultConfig()
	consulConfig.Address = consulAddr
	consulClient, err := api.NewClient(consulConfig)
	if err != nil {
		return nil, err
	}

	host, port, err := net.SplitHostPort(httpAddr)
	if err != nil {
		return nil, err
	}
	if host == "" {
		host = "localhost"
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return nil, err
	}

	asr := &api.AgentServiceRegistration{
		ID:      uuid.NewV4().String(),
		Name:    "taskgate",
		Address: host,
		Port:    p,
		Check: &api.AgentServiceCheck{
			HTTP:     fmt.Sprintf("http://%s/health", net.JoinHostPort(host, port)),
			Interval: "10s",
			Timeout:  "1s",
		},
	}
	return consulsd.NewRegistrar(consulsd.NewClient(consulClient), asr, logger), nil
}

func levelOption(s string) level.Option {
	switch s {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	}
	return level.AllowInfo()
}

func usageFor(fs *flag.FlagSet, short string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "USAGE\n")
		fmt.Fprintf(os.Stderr, "  %s\n", short)
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		w := tabwriter.NewWriter(os.Stderr, 0, 2, 2, ' ', 0)
		fs.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(w, "\t-%s %s\t%s\n", f.Name, f.DefValue, f.Usage)
		})
		w.Flush()
		fmt.Fprintf(os.Stderr, "\n")
	}
}

func getEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		value = fallback
	}
	return value
}

func getEnvAsInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}

	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}
