package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/vspherebroker/audit"
	"github.com/jonwraymond/vspherebroker/auth"
	"github.com/jonwraymond/vspherebroker/broker"
	"github.com/jonwraymond/vspherebroker/config"
	"github.com/jonwraymond/vspherebroker/health"
	"github.com/jonwraymond/vspherebroker/mcpserver"
	"github.com/jonwraymond/vspherebroker/observe"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	var stdio bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the broker",
		Long: `Start the broker.

By default the MCP endpoint is served over SSE at server.mcp_path, next to
/healthz, /readyz, /health, POST /admin/hosts/{host}/reset and, with the
prometheus exporter, /metrics.
With --stdio the broker speaks MCP on stdin/stdout instead and serves no HTTP.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Context(), opts.v, opts.configFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, stdio)
		},
	}
	flags := cmd.Flags()
	flags.String("host", "", "listen address (SERVER_HOST)")
	flags.Int("port", 0, "listen port (SERVER_PORT)")
	flags.String("log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	flags.BoolVar(&stdio, "stdio", false, "serve MCP over stdin/stdout")
	opts.bindFlag(flags, "host", "server.host")
	opts.bindFlag(flags, "port", "server.port")
	opts.bindFlag(flags, "log-level", "telemetry.log_level")
	return cmd
}

// runtime is everything serve starts and must stop.
type runtime struct {
	obs      observe.Observer
	sink     *audit.WriterSink
	broker   *broker.Broker
	registry *prometheus.Registry
}

func start(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{registry: prometheus.NewRegistry()}
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	oc := cfg.ObserveConfig(Version)
	oc.Metrics.Registerer = rt.registry
	obs, err := observe.NewObserver(ctx, oc)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	rt.obs = obs

	inst, err := observe.InstrumenterFromObserver(obs, broker.Label)
	if err != nil {
		_ = rt.stop(ctx)
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	sink, err := audit.OpenFile(cfg.Audit.Path)
	if err != nil {
		_ = rt.stop(ctx)
		return nil, err
	}
	rt.sink = sink

	bc := cfg.BrokerConfig()
	bc.Audit = sink
	bc.Instrumenter = inst
	bc.Logger = obs.Logger()
	b, err := broker.New(bc)
	if err != nil {
		_ = rt.stop(ctx)
		return nil, err
	}
	rt.broker = b
	return rt, nil
}

// stop releases resources in reverse start order and joins the errors.
func (rt *runtime) stop(ctx context.Context) error {
	var errs []error
	if rt.broker != nil {
		errs = append(errs, rt.broker.Shutdown(ctx))
	}
	if rt.obs != nil {
		errs = append(errs, rt.obs.Shutdown(ctx))
	}
	if rt.sink != nil {
		errs = append(errs, rt.sink.Close())
	}
	return errors.Join(errs...)
}

// handler mounts health, metrics, host reset and MCP on one mux.
func (rt *runtime) handler(cfg *config.Config, mcpSrv *mcpserver.Server) http.Handler {
	agg := health.NewAggregator(health.AggregatorConfig{Timeout: 2 * time.Second})
	agg.Register("vcenter_sessions", rt.broker.HealthChecker())

	mux := http.NewServeMux()
	health.RegisterHandlers(mux, agg)
	if cfg.Telemetry.MetricsExporter == "prometheus" {
		mux.Handle("GET "+cfg.Telemetry.MetricsPath, promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc(resetHostPath, resetHostHandler(rt.broker))
	mux.Handle(cfg.Server.MCPPath, auth.WithAuthHeaders(mcpSrv.Handler()))
	return mux
}

func serve(ctx context.Context, cfg *config.Config, stdio bool) (err error) {
	rt, err := start(ctx, cfg)
	if err != nil {
		return err
	}
	logger := rt.obs.Logger()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, rt.stop(stopCtx))
	}()

	mcpSrv := mcpserver.New(rt.broker, mcpserver.Config{
		Name:    cfg.Server.Name,
		Version: Version,
		Logger:  logger,
	})

	if stdio {
		logger.Info(ctx, "serving mcp over stdio")
		if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           rt.handler(cfg, mcpSrv),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "broker listening",
			observe.Field{Key: "addr", Value: srv.Addr},
			observe.Field{Key: "mcp_path", Value: cfg.Server.MCPPath},
			observe.Field{Key: "default_host", Value: rt.broker.DefaultHost()})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
