package rpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// MediaClient 封装可选的外部媒体分析服务客户端
// 未配置地址时为 nil，调用方需判空
type MediaClient struct {
	conn   *grpc.ClientConn
	health grpc_health_v1.HealthClient
}

// NewMediaClient 创建媒体分析服务客户端实例
// 连接是惰性的，启动时仅异步做一次健康检查
func NewMediaClient(addr string) *MediaClient {
	if addr == "" {
		return nil
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		slog.Error("NewMediaClient", "err", err)
		return nil
	}

	c := &MediaClient{
		conn:   conn,
		health: grpc_health_v1.NewHealthClient(conn),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := c.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
		if err != nil {
			slog.Error("HealthCheck", "err", err)
			return
		}
		if resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			slog.Info("HealthCheck OK", "addr", addr)
		} else {
			slog.Error("HealthCheck", "status", resp.GetStatus())
		}
	}()
	return c
}

// Healthy 查询媒体分析服务是否可用
func (c *MediaClient) Healthy(ctx context.Context) bool {
	if c == nil {
		return false
	}
	resp, err := c.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return false
	}
	return resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING
}

// Close 关闭底层连接
func (c *MediaClient) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
