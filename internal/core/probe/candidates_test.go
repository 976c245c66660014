package probe

import (
	"math"
	"strings"
	"testing"
)

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"192.168.1.10", "192.168.1.10"},
		{"rtsp://192.168.1.10", "192.168.1.10"},
		{"http://192.168.1.10/", "192.168.1.10"},
		{"https://cam.local", "cam.local"},
		{" 192.168.1.10/ ", "192.168.1.10"},
		{"192.168.1.10:8554", "192.168.1.10:8554"},
	}
	for _, tt := range tests {
		if got := NormalizeHost(tt.in); got != tt.want {
			t.Errorf("NormalizeHost(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerateRTSP(t *testing.T) {
	items := GenerateRTSP("192.168.1.10")
	if len(items) != len(rtspPaths) {
		t.Fatalf("expected %d candidates, got %d", len(rtspPaths), len(items))
	}
	if items[0].URL != "rtsp://192.168.1.10:554/Streaming/Channels/101" {
		t.Errorf("unexpected first url: %s", items[0].URL)
	}
	for i := 1; i < len(items); i++ {
		if items[i].Confidence >= items[i-1].Confidence {
			t.Errorf("confidence not descending at %d: %f >= %f", i, items[i].Confidence, items[i-1].Confidence)
		}
	}
	for _, c := range items {
		if c.Protocol != ProtocolRTSP || c.Verified || c.VerificationMethod != VerifyNone {
			t.Errorf("unexpected candidate state: %+v", c)
		}
	}
}

func TestGenerateRTSPKeepsExplicitPort(t *testing.T) {
	items := GenerateRTSP("192.168.1.10:8554")
	for _, c := range items {
		if !strings.Contains(c.URL, "192.168.1.10:8554/") {
			t.Errorf("explicit port lost: %s", c.URL)
		}
	}
}

func TestHostWithPort(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"192.168.1.10", "192.168.1.10:554"},
		{"192.168.1.10:8554", "192.168.1.10:8554"},
		{"cam.local", "cam.local:554"},
		{"fe80::1", "[fe80::1]:554"},
		{"[fe80::1]", "[fe80::1]:554"},
		{"[fe80::1]:8554", "[fe80::1]:8554"},
	}
	for _, tt := range tests {
		if got := hostWithPort(tt.host, "554"); got != tt.want {
			t.Errorf("hostWithPort(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestGenerateIPv6Host(t *testing.T) {
	items := GenerateRTSP("fe80::1")
	if !strings.HasPrefix(items[0].URL, "rtsp://[fe80::1]:554/") {
		t.Errorf("ipv6 host not bracketed: %s", items[0].URL)
	}
	mjpeg := GenerateMJPEG("fe80::1")
	if !strings.HasPrefix(mjpeg[0].URL, "http://[fe80::1]/") {
		t.Errorf("ipv6 host not bracketed: %s", mjpeg[0].URL)
	}
}

func TestGenerateMJPEG(t *testing.T) {
	items := GenerateMJPEG("192.168.1.10")
	if len(items) != len(mjpegPaths) {
		t.Fatalf("expected %d candidates, got %d", len(mjpegPaths), len(items))
	}
	want := []float64{0.60, 0.50, 0.40}
	for i, c := range items {
		if c.Protocol != ProtocolMJPEG {
			t.Errorf("unexpected protocol: %s", c.Protocol)
		}
		if math.Abs(c.Confidence-want[i]) > 1e-9 {
			t.Errorf("confidence[%d] = %f, want %f", i, c.Confidence, want[i])
		}
		if !strings.HasPrefix(c.URL, "http://192.168.1.10/") {
			t.Errorf("unexpected url: %s", c.URL)
		}
	}
}

// 两次生成的结果必须完全一致
func TestGenerateDeterministic(t *testing.T) {
	a := GenerateRTSP("10.0.0.2")
	b := GenerateRTSP("10.0.0.2")
	for i := range a {
		if a[i].URL != b[i].URL || a[i].Confidence != b[i].Confidence {
			t.Fatalf("generation not deterministic at %d", i)
		}
	}
}

func TestSortCandidates(t *testing.T) {
	items := []*Candidate{
		{Protocol: ProtocolMJPEG, URL: "m1", Confidence: 0.60},
		{Protocol: ProtocolRTSP, URL: "r1", Confidence: 0.90},
		{Protocol: ProtocolMJPEG, URL: "m2", Confidence: 0.50, Verified: true},
		{Protocol: ProtocolONVIF, URL: "o1", Confidence: 0.90},
		{Protocol: ProtocolRTSP, URL: "r2", Confidence: 0.85, Verified: true},
	}
	sortCandidates(items)

	// 已验证的排最前，同置信度时 onvif 优先于 rtsp
	wantOrder := []string{"r2", "m2", "o1", "r1", "m1"}
	for i, url := range wantOrder {
		if items[i].URL != url {
			t.Errorf("position %d: got %s, want %s", i, items[i].URL, url)
		}
	}
}
