package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/gaslog/gaslog/internal/cache"
	"github.com/gaslog/gaslog/internal/config"
	"github.com/gaslog/gaslog/internal/logging"
	"github.com/gaslog/gaslog/internal/maintenance"
	"github.com/gaslog/gaslog/internal/server"
	"github.com/gaslog/gaslog/internal/server/routes"
	"github.com/gaslog/gaslog/internal/session"
	"github.com/gaslog/gaslog/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(ctx context.Context, opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["devices"] = config.DeviceSummaries(cfg.Devices)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	registry, err := server.NewDeviceRegistry(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "构建设备注册表失败: %v\n", err)
		return 1
	}

	// 启动顺序：配置 → 设备注册表 → 会话缓存 → 记录器/维护任务 → Fiber server，
	// 所有请求共享同一个缓存实例。
	store, err := cache.Open(cfg.Global.StoragePath,
		cache.WithLogger(logger),
		cache.WithDefaultTTL(cfg.Global.CacheTTL.DurationValue()),
		cache.WithLenientCounter(cfg.Global.LenientCounter),
	)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化会话缓存失败: %v\n", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("cache_close_failed")
		}
	}()

	locations := &session.LatestLocation{}
	recorder := session.NewRecorder(store, locations, logger)
	ingest := server.NewSessionIngest(recorder, locations, logger)
	janitor := maintenance.New(store,
		cfg.Global.MaintenanceInterval.DurationValue(),
		cfg.Global.MaxCacheBytes,
		logger,
	)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["devices"] = config.DeviceSummaries(cfg.Devices)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_path"] = store.Root()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	app, err := buildApp(cfg, registry, ingest, store, janitor, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务初始化失败: %v\n", err)
		return 1
	}

	if err := serve(ctx, app, janitor, cfg.Global.ListenPort, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("gaslog", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 GASLOG_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("GASLOG_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func buildApp(cfg *config.Config, registry *server.DeviceRegistry, ingest *server.SessionIngest, store *cache.Cache, janitor *maintenance.Janitor, logger *logrus.Logger) (*fiber.App, error) {
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Ingest:     ingest,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterFileRoutes(app, store, routes.FileRouteOptions{
		Logger:            logger,
		CompressByDefault: cfg.Global.ExportCompression,
	})
	routes.RegisterDeviceRoutes(app, registry, ingest.Active)
	routes.RegisterMaintenanceRoutes(app, janitor)
	return app, nil
}

// serve 并发运行 HTTP 服务与维护任务，ctx 结束时优雅关闭；任一任务失败都会取消其余任务。
func serve(ctx context.Context, app *fiber.App, janitor *maintenance.Janitor, port int, logger *logrus.Logger) error {
	p := pool.New().WithContext(ctx).WithCancelOnError()

	p.Go(func(ctx context.Context) error {
		logger.WithFields(logrus.Fields{
			"action": "listen",
			"port":   port,
		}).Info("Fiber 服务启动")
		return app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	})
	p.Go(func(ctx context.Context) error {
		return janitor.Run(ctx)
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		logger.WithField("action", "shutdown").Info("Fiber 服务关闭")
		return app.Shutdown()
	})

	return p.Wait()
}
