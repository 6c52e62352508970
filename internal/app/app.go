package app

import (
	"context"
	"fmt"

	oicfg "oipulse/internal/config"
	"oipulse/internal/engine"
	"oipulse/internal/logger"
	statushttp "oipulse/internal/transport/http/status"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动轮询引擎与状态接口。
type App struct {
	cfg        *oicfg.Config
	engine     *engine.Engine
	statusHTTP *statushttp.Server
	closers    []func() error
	Summary    *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *oicfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动轮询引擎与状态接口，阻塞到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}

	if a.Summary != nil {
		a.Summary.Print()
	}

	if a.engine == nil {
		return fmt.Errorf("engine not initialized")
	}
	defer a.closeStores()

	group, ctx := errgroup.WithContext(ctx)

	if a.statusHTTP != nil {
		group.Go(func() error {
			if err := a.statusHTTP.Start(ctx); err != nil {
				return fmt.Errorf("status http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		return a.engine.Run(ctx)
	})

	return group.Wait()
}

// Engine 暴露底层引擎实例（供测试与回放工具使用）。
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

func (a *App) closeStores() {
	for _, closeFn := range a.closers {
		if closeFn == nil {
			continue
		}
		if err := closeFn(); err != nil {
			logger.Warnf("关闭存储失败: %v", err)
		}
	}
}
