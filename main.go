package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/asset-gate/asset-gate/internal/cache"
	"github.com/asset-gate/asset-gate/internal/config"
	"github.com/asset-gate/asset-gate/internal/controller"
	"github.com/asset-gate/asset-gate/internal/logging"
	"github.com/asset-gate/asset-gate/internal/server"
	"github.com/asset-gate/asset-gate/internal/server/routes"
	"github.com/asset-gate/asset-gate/internal/upstream"
	"github.com/asset-gate/asset-gate/internal/version"
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
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
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
		fields["origin"] = cfg.Site.Origin
		fields["cache_version"] = cfg.Site.CacheVersion
		fields["critical_assets"] = len(cfg.Site.CriticalAssets)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	store, err := cache.NewStore(cfg.Global.StorageBackend, cfg.Global.StoragePath)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存存储失败: %v\n", err)
		return 1
	}
	defer store.Close()

	client := upstream.NewClient(cfg)
	fetcher := upstream.NewFetcher(client)

	ctrl, err := controller.New(cfg.Site, store, fetcher, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建缓存控制器失败: %v\n", err)
		return 1
	}
	defer ctrl.Close()

	// 启动顺序遵循“安装 → 激活 → 监听”：新世代先全量预缓存关键资产，
	// 成功后立即切换；失败时若磁盘上还有旧世代则降级续用，否则直接退出。
	ctx := context.Background()
	if err := ctrl.Install(ctx); err != nil {
		if ctrl.ServingGeneration() == "" {
			fmt.Fprintf(stdErr, "关键资产预缓存失败且无可用旧世代: %v\n", err)
			return 1
		}
		logger.WithFields(logrus.Fields{
			"action":     "startup",
			"generation": ctrl.ServingGeneration(),
			"error":      err.Error(),
		}).Warn("安装失败，降级使用旧世代继续服务")
	} else if err := ctrl.Activate(ctx); err != nil {
		fmt.Fprintf(stdErr, "世代切换失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["origin"] = cfg.Site.Origin
	fields["generation"] = ctrl.ServingGeneration()
	fields["phase"] = string(ctrl.Phase())
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_backend"] = cfg.Global.StorageBackend
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, ctrl, store, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("asset-gate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 ASSET_GATE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("ASSET_GATE_CONFIG")
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

func startHTTPServer(cfg *config.Config, ctrl *controller.Controller, store cache.Store, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Resolver:   ctrl,
		Origin:     cfg.Site.OriginURL(),
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterAdminRoutes(app, ctrl, store)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
