package probe

import (
	"context"
	"fmt"
	"net/http"
)

// verifyMJPEG 发送 HEAD 请求，2xx 即认为可用
// 网络失败不抛出，候选保持未验证状态
func verifyMJPEG(ctx context.Context, cli *http.Client, cand *Candidate) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, cand.URL, nil)
	if err != nil {
		cand.Notes = "invalid url"
		return
	}
	resp, err := cli.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		cand.Verified = true
		cand.VerificationMethod = VerifyHTTPHead
		return
	}
	if resp.StatusCode == http.StatusUnauthorized {
		cand.RequiresAuth = true
	}
	cand.Notes = fmt.Sprintf("http status %d", resp.StatusCode)
}
