package api

import (
	"github.com/gin-gonic/gin"
	"github.com/heronvp/heron/internal/core/probe"
	"github.com/ixugo/goddd/pkg/web"
)

type ProbeAPI struct {
	core probe.Core
}

func NewProbeAPI(core probe.Core) ProbeAPI {
	return ProbeAPI{core: core}
}

func registerProbe(r gin.IRouter, api ProbeAPI, mid ...gin.HandlerFunc) {
	group := r.Group("/probe", mid...)
	group.POST("", web.WrapH(api.probe))
	group.POST("/discover", web.WrapH(api.discover))
}

type probeOutput struct {
	Candidates []*probe.Candidate `json:"candidates"`
}

// probe 根据 IP 与设备类型生成候选流地址并在线验证
func (a ProbeAPI) probe(c *gin.Context, in *probe.ProbeInput) (*probeOutput, error) {
	items, err := a.core.Probe(c.Request.Context(), in)
	if err != nil {
		return nil, err
	}
	return &probeOutput{Candidates: items}, nil
}

// discover 通过 WS-Discovery 组播搜索局域网内的 ONVIF 设备
func (a ProbeAPI) discover(c *gin.Context, _ *struct{}) (gin.H, error) {
	items, err := a.core.Discover(c.Request.Context())
	if err != nil {
		return nil, err
	}
	return gin.H{"items": items, "total": len(items)}, nil
}
