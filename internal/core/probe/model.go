package probe

// Protocol 候选流协议
type Protocol string

const (
	ProtocolRTSP  Protocol = "rtsp"
	ProtocolMJPEG Protocol = "mjpeg"
	ProtocolONVIF Protocol = "onvif"
)

// DeviceType 接入设备类型
type DeviceType string

const (
	DeviceTypeIP     DeviceType = "ip"
	DeviceTypeDVR    DeviceType = "dvr"
	DeviceTypeNVR    DeviceType = "nvr"
	DeviceTypeUSB    DeviceType = "usb"
	DeviceTypeMobile DeviceType = "mobile"
	DeviceTypeCloud  DeviceType = "cloud"
)

func (d DeviceType) Valid() bool {
	switch d {
	case DeviceTypeIP, DeviceTypeDVR, DeviceTypeNVR, DeviceTypeUSB, DeviceTypeMobile, DeviceTypeCloud:
		return true
	}
	return false
}

// VerifyMethod 验证手段
type VerifyMethod string

const (
	VerifyStreamProbe VerifyMethod = "stream-probe"
	VerifyHTTPHead    VerifyMethod = "http-head"
	VerifyOnvifPing   VerifyMethod = "onvif-ping"
	VerifyNone        VerifyMethod = "none"
)

// ProbeInput 一次探测请求，按调用构造，不落库
type ProbeInput struct {
	IP           string     `json:"ip" binding:"required"`
	DeviceType   DeviceType `json:"deviceType" binding:"required"`
	IncludeOnvif bool       `json:"includeOnvif"`
}

// Candidate 一个假设的 (协议, URL) 流地址及其验证结果
// 结果仅在响应中存在，排序是派生属性，不入库
type Candidate struct {
	Protocol           Protocol     `json:"protocol"`
	URL                string       `json:"url"`
	Confidence         float64      `json:"confidence"`
	Verified           bool         `json:"verified"`
	VerificationMethod VerifyMethod `json:"verificationMethod"`
	LatencyMs          int64        `json:"latencyMs,omitempty"`
	Notes              string       `json:"notes,omitempty"`
	RequiresAuth       bool         `json:"requiresAuth,omitempty"`

	rank int // 模板序号，越小越常见
}

// protocolPrecedence 同置信度时的协议优先级，越小越靠前
func protocolPrecedence(p Protocol) int {
	switch p {
	case ProtocolONVIF:
		return 0
	case ProtocolRTSP:
		return 1
	default:
		return 2
	}
}
