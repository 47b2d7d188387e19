package app

import (
	"errors"
	"fmt"

	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/logger"
	"github.com/dujiao-next/bookshop/internal/provider"
	"github.com/dujiao-next/bookshop/internal/router"
	"github.com/dujiao-next/bookshop/internal/worker"
)

// BuildRunner 构建服务运行器，返回的 cleanup 用于释放容器持有的连接
func BuildRunner(cfg *config.Config, mode string) (*Runner, func(), error) {
	if cfg == nil {
		return nil, nil, errors.New("config is nil")
	}

	container := provider.NewContainer(cfg)
	cleanup := func() {
		if err := container.Close(); err != nil {
			logger.Warnw("container_close_failed", "error", err)
		}
	}

	var services []Service

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		services = append(services, NewHTTPService(addr, engine))
	}

	// 初始化 Worker 服务：定时维护始终运行，队列消费仅在启用队列时运行
	if mode == ModeAll || mode == ModeWorker {
		consumer := worker.NewConsumer(container)
		services = append(services, worker.NewMaintenanceService(consumer))
		if container.QueueClient.Enabled() {
			workerService, err := worker.NewService(&cfg.Queue, consumer)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			services = append(services, workerService)
		} else {
			logger.Warnw("queue_disabled_worker_skipped", "mode", mode)
		}
	}

	if len(services) == 0 {
		cleanup()
		return nil, nil, fmt.Errorf("unknown run mode %q", mode)
	}

	return NewRunner(services...), cleanup, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, cleanup, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}
	defer cleanup()

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
