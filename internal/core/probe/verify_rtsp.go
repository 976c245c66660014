package probe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pion/sdp/v3"
)

const rtspUserAgent = "heron-probe"

// 限制 DESCRIBE 响应体大小，防止异常设备撑爆内存
const maxSDPBytes = 64 << 10

// verifyRTSP 发起 DESCRIBE 握手并解析 SDP，确认存在视频轨
// 任何网络错误都只体现为 Verified=false，不向上传递
func verifyRTSP(ctx context.Context, cand *Candidate) {
	u, err := url.Parse(cand.URL)
	if err != nil {
		cand.Notes = "invalid url"
		return
	}
	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":554"
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	} else {
		_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	}

	req := fmt.Sprintf("DESCRIBE %s RTSP/1.0\r\nCSeq: 1\r\nAccept: application/sdp\r\nUser-Agent: %s\r\n\r\n",
		cand.URL, rtspUserAgent)
	if _, err := conn.Write([]byte(req)); err != nil {
		return
	}

	br := bufio.NewReader(conn)
	code, err := readRTSPStatus(br)
	if err != nil {
		return
	}

	switch {
	case code == 401 || code == 403:
		// 路径存在但需要凭据，保留为未验证的强信号
		cand.RequiresAuth = true
		cand.Notes = "rtsp auth required"
		return
	case code < 200 || code >= 300:
		cand.Notes = fmt.Sprintf("rtsp status %d", code)
		return
	}

	body, err := readRTSPBody(br)
	if err != nil {
		return
	}

	var desc sdp.SessionDescription
	if err := desc.Unmarshal(body); err != nil {
		cand.Notes = "unparsable sdp"
		return
	}
	for _, m := range desc.MediaDescriptions {
		if m.MediaName.Media == "video" {
			cand.Verified = true
			cand.VerificationMethod = VerifyStreamProbe
			return
		}
	}
	cand.Notes = "no video track in sdp"
}

// readRTSPStatus 读取状态行，如 "RTSP/1.0 200 OK"
func readRTSPStatus(br *bufio.Reader) (int, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return 0, err
	}
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return 0, fmt.Errorf("malformed status line: %q", line)
	}
	return strconv.Atoi(parts[1])
}

// readRTSPBody 跳过响应头，按 Content-Length 读取 SDP 正文
func readRTSPBody(br *bufio.Reader) ([]byte, error) {
	tp := textproto.NewReader(br)
	header, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, err
	}

	length := int64(maxSDPBytes)
	if v := header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n < length {
			length = n
		}
	}
	return io.ReadAll(io.LimitReader(br, length))
}
