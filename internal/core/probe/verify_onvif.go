package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// defaultOnvifPorts ONVIF 设备服务的常见端口，按命中率排序
var defaultOnvifPorts = []int{80, 8000, 8080}

const (
	onvifConfidenceOK   = 0.95
	onvifConfidenceAuth = 0.70
)

// verifyONVIF 依次探测各端口的 device_service
// 所有端口共享同一个超时预算，超时后放弃剩余端口
// 只返回第一个有信号的端口结果，无信号时返回 nil
func (c Core) verifyONVIF(ctx context.Context, host string) *Candidate {
	ctx, cancel := context.WithTimeout(ctx, c.onvifTimeout)
	defer cancel()

	// 主机自带端口时去掉它，各探测端口自行拼接
	hostOnly, _, err := net.SplitHostPort(host)
	if err != nil {
		hostOnly = strings.Trim(host, "[]")
	}

	for _, port := range c.onvifPorts {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		addr := net.JoinHostPort(hostOnly, strconv.Itoa(port))
		serviceURL := fmt.Sprintf("http://%s/onvif/device_service", addr)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, serviceURL+"?wsdl", nil)
		if err != nil {
			continue
		}
		resp, err := c.client.Do(req)
		if err != nil {
			slog.DebugContext(ctx, "onvif port probe failed", "host", hostOnly, "port", port, "err", err)
			continue
		}
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			cand := Candidate{
				Protocol:           ProtocolONVIF,
				URL:                serviceURL,
				Confidence:         onvifConfidenceOK,
				Verified:           true,
				VerificationMethod: VerifyOnvifPing,
			}
			if resp.Header.Get("WWW-Authenticate") != "" {
				cand.RequiresAuth = true
			}
			return &cand
		case http.StatusUnauthorized:
			return &Candidate{
				Protocol:           ProtocolONVIF,
				URL:                serviceURL,
				Confidence:         onvifConfidenceAuth,
				VerificationMethod: VerifyOnvifPing,
				RequiresAuth:       true,
				Notes:              "onvif auth required",
			}
		default:
			slog.DebugContext(ctx, "onvif port probe unexpected status",
				"host", hostOnly, "port", port, "status", resp.StatusCode)
		}
	}
	return nil
}
