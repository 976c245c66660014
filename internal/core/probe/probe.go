package probe

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/heronvp/heron/internal/conf"
	"github.com/ixugo/goddd/pkg/reason"
	"golang.org/x/sync/errgroup"
)

// Core 探测引擎
// 编排候选生成与验证，网络层失败不作为错误返回
type Core struct {
	client       *http.Client
	workers      int
	timeout      time.Duration
	onvifTimeout time.Duration
	onvifPorts   []int
}

type Option func(*Core)

// WithOnvifPorts 覆盖默认的 ONVIF 探测端口，测试用
func WithOnvifPorts(ports ...int) Option {
	return func(c *Core) {
		c.onvifPorts = ports
	}
}

func NewCore(cfg *conf.Probe, opts ...Option) Core {
	c := Core{
		// 不设置 client 级超时，由每次调用的 context 控制
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        30,
				MaxIdleConnsPerHost: 30,
				MaxConnsPerHost:     100,
			},
		},
		workers:      8,
		timeout:      2000 * time.Millisecond,
		onvifTimeout: 3000 * time.Millisecond,
		onvifPorts:   defaultOnvifPorts,
	}
	if cfg != nil {
		if cfg.Workers > 0 {
			c.workers = cfg.Workers
		}
		if cfg.TimeoutMs > 0 {
			c.timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
		}
		if cfg.OnvifTimeoutMs > 0 {
			c.onvifTimeout = time.Duration(cfg.OnvifTimeoutMs) * time.Millisecond
		}
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Probe 对单台主机执行全协议探测，返回按可信度排序的候选列表
// 主机完全不可达时返回全未验证的列表而非错误
func (c Core) Probe(ctx context.Context, in *ProbeInput) ([]*Candidate, error) {
	if in.IP == "" {
		return nil, reason.ErrBadRequest.SetMsg("ip is required")
	}
	if in.DeviceType != "" && !in.DeviceType.Valid() {
		return nil, reason.ErrBadRequest.SetMsg("unknown device type")
	}

	host := NormalizeHost(in.IP)
	candidates := append(GenerateRTSP(host), GenerateMJPEG(host)...)

	results := make([]*Candidate, 0, len(candidates)+1)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for _, cand := range candidates {
		g.Go(func() error {
			vctx, cancel := context.WithTimeout(gctx, c.timeout)
			defer cancel()

			start := time.Now()
			switch cand.Protocol {
			case ProtocolRTSP:
				verifyRTSP(vctx, cand)
			case ProtocolMJPEG:
				verifyMJPEG(vctx, c.client, cand)
			}
			if cand.Verified {
				cand.LatencyMs = time.Since(start).Milliseconds()
			}

			mu.Lock()
			results = append(results, cand)
			mu.Unlock()
			return nil
		})
	}

	// ONVIF 各端口串行，占用工作池中的一个席位
	if in.IncludeOnvif {
		g.Go(func() error {
			start := time.Now()
			if cand := c.verifyONVIF(gctx, host); cand != nil {
				if cand.Verified {
					cand.LatencyMs = time.Since(start).Milliseconds()
				}
				mu.Lock()
				results = append(results, cand)
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()

	sortCandidates(results)
	return results, nil
}

// sortCandidates 已验证优先，其次置信度降序，
// 同分按协议优先级 onvif > rtsp > mjpeg，最后按模板序号
func sortCandidates(items []*Candidate) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Verified != b.Verified {
			return a.Verified
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		pa, pb := protocolPrecedence(a.Protocol), protocolPrecedence(b.Protocol)
		if pa != pb {
			return pa < pb
		}
		return a.rank < b.rank
	})
}
