package bridge

import (
	"github.com/ixugo/goddd/pkg/web"
)

type AddBridgeInput struct {
	Name    string `json:"name" binding:"required"`
	UserID  string `json:"user_id"`
	RTSPURL string `json:"rtsp_url"`
}

// AddBridgeOutput 创建结果，pair_code 仅在创建响应中出现一次
type AddBridgeOutput struct {
	Bridge   *Bridge `json:"bridge"`
	PairCode string  `json:"pair_code"`
}

type FindBridgeInput struct {
	web.PagerFilter
	Name   string `form:"name"`
	Paired *bool  `form:"paired"`
}

type PairInput struct {
	PairCode     string `json:"pairCode" binding:"required"`
	AgentVersion string `json:"agentVersion"`
	MachineID    string `json:"machineId"`
}

// PairOutput 配对成功后下发给 agent 的全部信息
type PairOutput struct {
	BridgeID       string `json:"bridgeId"`
	APIKey         string `json:"apiKey"`
	RTSPURL        string `json:"rtspUrl,omitempty"`
	BackendURL     string `json:"backendUrl"`
	UploadBaseURL  string `json:"uploadBaseUrl"`
	PollIntervalMs int    `json:"pollIntervalMs"`
}

// AgentConfigOutput agent 状态轮询返回的配置
type AgentConfigOutput struct {
	BridgeID       string `json:"bridgeId"`
	RTSPURL        string `json:"rtspUrl,omitempty"`
	PollIntervalMs int    `json:"pollIntervalMs"`
}
