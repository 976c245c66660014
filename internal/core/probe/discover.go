package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/gowvp/onvif"
)

// DiscoveredDevice 局域网 WS-Discovery 发现的设备
type DiscoveredDevice struct {
	Xaddr string `json:"xaddr"`
}

// Discover 通过 WS-Discovery 广播发现局域网内的 ONVIF 设备
// 3 秒内未收到新设备即结束
func (c Core) Discover(ctx context.Context) ([]DiscoveredDevice, error) {
	recv, err := onvif.AllAvailableDevicesAtSpecificEthernetInterfaces()
	if err != nil {
		return nil, err
	}

	out := make([]DiscoveredDevice, 0, 4)
	seen := make(map[string]struct{})
	for {
		select {
		case dev, ok := <-recv:
			if !ok {
				return out, nil
			}
			xaddr := dev.GetDeviceParams().Xaddr
			if _, exists := seen[xaddr]; exists {
				continue
			}
			seen[xaddr] = struct{}{}
			out = append(out, DiscoveredDevice{Xaddr: xaddr})
		case <-ctx.Done():
			return out, nil
		case <-time.After(3 * time.Second):
			slog.DebugContext(ctx, "discover timeout")
			return out, nil
		}
	}
}
