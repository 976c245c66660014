package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heronvp/heron/internal/conf"
)

// Run 组装依赖并启动 HTTP 服务
// 返回的函数用于优雅退出
func Run(bc *conf.Bootstrap, log *slog.Logger) (func(), error) {
	handler, cleanup, err := wireApp(bc, log)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", bc.Server.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP 服务已启动", "port", bc.Server.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP 服务异常退出", "err", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("HTTP 服务关闭失败", "err", err)
		}
		cleanup()
	}, nil
}
