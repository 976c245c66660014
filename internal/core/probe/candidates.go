package probe

import (
	"fmt"
	"net"
	"strings"
)

// rtspPaths 常见厂商的 RTSP 路径约定，按出现频率从高到低排列
// 设备类型不过滤该表，所有类型统一尝试
var rtspPaths = []string{
	"/Streaming/Channels/101",                // Hikvision
	"/cam/realmonitor?channel=1&subtype=0",   // Dahua
	"/live.sdp",                              // 通用
	"/h264Preview_01_main",                   // Reolink
	"/axis-media/media.amp",                  // Axis
	"/live/ch00_0",                           // XMeye 及同方案
	"/videoMain",                             // Foscam
	"/stream1",                               // TP-Link 等
	"/11",                                    // 部分国产模组
	"/media/video1",                          // Vivotek
}

// mjpegPaths MJPEG 快照流的常见路径
var mjpegPaths = []string{
	"/video.mjpg",
	"/mjpg/video.mjpg",
	"/cgi-bin/mjpg/video.cgi",
}

const (
	rtspBaseConfidence  = 0.90
	rtspConfidenceStep  = 0.05
	mjpegBaseConfidence = 0.60
	mjpegConfidenceStep = 0.10
)

// NormalizeHost 去掉末尾斜杠与协议前缀，保留用户显式指定的端口
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	for _, prefix := range []string{"rtsp://", "http://", "https://"} {
		host = strings.TrimPrefix(host, prefix)
	}
	return strings.TrimRight(host, "/")
}

// hostWithPort 主机未带端口时补上默认端口
// IPv6 字面量自动加方括号
func hostWithPort(host, port string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), port)
}

// hostForURL 不补端口，仅保证 IPv6 字面量在 URL 中合法
func hostForURL(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	if strings.Contains(host, ":") {
		return "[" + strings.Trim(host, "[]") + "]"
	}
	return host
}

// GenerateRTSP 生成 RTSP 候选地址，纯函数，不访问网络
func GenerateRTSP(host string) []*Candidate {
	addr := hostWithPort(host, "554")
	out := make([]*Candidate, 0, len(rtspPaths))
	for i, p := range rtspPaths {
		out = append(out, &Candidate{
			Protocol:           ProtocolRTSP,
			URL:                fmt.Sprintf("rtsp://%s%s", addr, p),
			Confidence:         rtspBaseConfidence - float64(i)*rtspConfidenceStep,
			VerificationMethod: VerifyNone,
			rank:               i,
		})
	}
	return out
}

// GenerateMJPEG 生成 MJPEG 候选地址，纯函数，不访问网络
func GenerateMJPEG(host string) []*Candidate {
	addr := hostForURL(host)
	out := make([]*Candidate, 0, len(mjpegPaths))
	for i, p := range mjpegPaths {
		out = append(out, &Candidate{
			Protocol:           ProtocolMJPEG,
			URL:                fmt.Sprintf("http://%s%s", addr, p),
			Confidence:         mjpegBaseConfidence - float64(i)*mjpegConfidenceStep,
			VerificationMethod: VerifyNone,
			rank:               i,
		})
	}
	return out
}
