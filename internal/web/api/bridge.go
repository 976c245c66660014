package api

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/heronvp/heron/internal/core/bridge"
	"github.com/heronvp/heron/internal/core/relay"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
)

type BridgeAPI struct {
	bridgeCore bridge.Core
	relayCore  *relay.Core
}

func NewBridgeAPI(core bridge.Core, relayCore *relay.Core) BridgeAPI {
	return BridgeAPI{bridgeCore: core, relayCore: relayCore}
}

func registerBridge(r gin.IRouter, api BridgeAPI, mid ...gin.HandlerFunc) {
	// 管理端接口，走 jwt 鉴权
	group := r.Group("/bridges", mid...)
	group.POST("", web.WrapH(api.addBridge))
	group.GET("", web.WrapH(api.findBridges))
	group.GET("/:id", web.WrapH(api.getBridge))
	group.DELETE("/:id", web.WrapH(api.delBridge))

	// 网关端接口，供远端 agent 调用
	// 配对换取 api key，之后凭 key 上传与读取
	g := r.Group("/bridge")
	g.POST("/pair", api.pair)
	g.POST("/relay", api.relayRaw)

	withKey := g.Group("/:id", api.requireAPIKey)
	withKey.POST("/upload-manifest", api.uploadManifest)
	withKey.POST("/upload-segment", api.uploadSegment)
	withKey.GET("/config", api.agentConfig)
	withKey.GET("/stream/*file", api.serveStream)
}

// ---- 管理端 ----

func (a BridgeAPI) addBridge(c *gin.Context, in *bridge.AddBridgeInput) (*bridge.AddBridgeOutput, error) {
	return a.bridgeCore.AddBridge(c.Request.Context(), in)
}

func (a BridgeAPI) findBridges(c *gin.Context, in *bridge.FindBridgeInput) (gin.H, error) {
	items, total, err := a.bridgeCore.FindBridges(c.Request.Context(), in)
	return gin.H{"items": items, "total": total}, err
}

func (a BridgeAPI) getBridge(c *gin.Context, _ *struct{}) (*bridge.Bridge, error) {
	return a.bridgeCore.GetBridge(c.Request.Context(), c.Param("id"))
}

// delBridge 删除桥接并清理其中转数据
func (a BridgeAPI) delBridge(c *gin.Context, _ *struct{}) (*bridge.Bridge, error) {
	id := c.Param("id")
	b, err := a.bridgeCore.DelBridge(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if err := a.relayCore.RemoveNamespace(id); err != nil {
		slog.Warn("清理中转目录失败", "bridge_id", id, "err", err)
	}
	return b, nil
}

// ---- 网关端 ----

// pair 配对码换取凭据
// 失败一律返回 invalid_pair_code，不区分原因，避免探测配对码状态
func (a BridgeAPI) pair(c *gin.Context) {
	var in bridge.PairInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_pair_code"})
		return
	}
	out, err := a.bridgeCore.Pair(c.Request.Context(), &in)
	if err != nil {
		if errors.Is(err, bridge.ErrInvalidPairCode) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_pair_code"})
			return
		}
		slog.ErrorContext(c.Request.Context(), "pair", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// requireAPIKey 校验 x-api-key 请求头
// 无论桥接不存在还是密钥不匹配，均返回相同的 401
func (a BridgeAPI) requireAPIKey(c *gin.Context) {
	b, err := a.bridgeCore.Authenticate(c.Request.Context(), c.Param("id"), c.GetHeader("x-api-key"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set("bridge", b)
}

func currentBridge(c *gin.Context) *bridge.Bridge {
	return c.MustGet("bridge").(*bridge.Bridge)
}

// agentConfig agent 定时拉取的运行配置
func (a BridgeAPI) agentConfig(c *gin.Context) {
	c.JSON(http.StatusOK, a.bridgeCore.GetAgentConfig(currentBridge(c)))
}

// openUpload 取上传内容
// 兼容 multipart 的 file 字段与直接的请求体两种方式
func openUpload(c *gin.Context) (io.ReadCloser, string, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, "", err
		}
		var f multipart.File
		if f, err = fh.Open(); err != nil {
			return nil, "", err
		}
		return f, fh.Filename, nil
	}
	return c.Request.Body, "", nil
}

func (a BridgeAPI) uploadManifest(c *gin.Context) {
	r, _, err := openUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	defer r.Close()

	if err := a.relayCore.SaveManifest(c.Param("id"), r); err != nil {
		slog.ErrorContext(c.Request.Context(), "保存播放列表失败", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a BridgeAPI) uploadSegment(c *gin.Context) {
	r, filename, err := openUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	defer r.Close()

	if filename == "" {
		filename = c.GetHeader("x-segment-name")
	}

	name, err := a.relayCore.SaveSegment(c.Param("id"), filename, r)
	if err != nil {
		if errors.Is(err, relay.ErrInvalidFilename) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filename"})
			return
		}
		slog.ErrorContext(c.Request.Context(), "保存分片失败", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "file": name})
}

// serveStream 播放列表、分片与状态统一出口
// gin 路由树不允许同级混用静态路径与参数，这里用通配符自行分发
func (a BridgeAPI) serveStream(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("file"), "/")
	switch name {
	case "index.m3u8":
		a.playlist(c)
	case "status":
		a.streamStatus(c)
	default:
		a.segment(c, name)
	}
}

func (a BridgeAPI) playlist(c *gin.Context) {
	id := c.Param("id")
	raw, err := a.relayCore.ReadManifest(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.Data(http.StatusOK, "application/vnd.apple.mpegurl", rewriteManifest(id, raw))
}

// rewriteManifest 将播放列表中的相对分片地址改写为服务端路由
// 注释行、空行与绝对地址保持原样
func rewriteManifest(bridgeID string, raw []byte) []byte {
	lines := strings.Split(string(raw), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.Contains(trimmed, "://") {
			continue
		}
		name, err := relay.SanitizeFilename(trimmed)
		if err != nil {
			continue
		}
		lines[i] = "/bridge/" + bridgeID + "/stream/" + name
	}
	var buf bytes.Buffer
	buf.Grow(len(raw) + 64)
	buf.WriteString(strings.Join(lines, "\n"))
	return buf.Bytes()
}

func (a BridgeAPI) segment(c *gin.Context, name string) {
	f, err := a.relayCore.OpenSegment(c.Param("id"), name)
	if err != nil {
		if errors.Is(err, relay.ErrInvalidFilename) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filename"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.DataFromReader(http.StatusOK, fi.Size(), "video/MP2T", f, nil)
}

func (a BridgeAPI) streamStatus(c *gin.Context) {
	status, err := a.relayCore.Status(c.Param("id"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// relayRaw 原始流长连接推送
// 先回 relay-ok 告知 agent 可以开始写入，之后持续落盘直到连接断开
func (a BridgeAPI) relayRaw(c *gin.Context) {
	bridgeID := c.GetHeader("x-bridge-id")
	if bridgeID == "" {
		c.String(http.StatusBadRequest, "missing x-bridge-id")
		return
	}

	sink, err := a.relayCore.CreateRawSink(bridgeID, orm.GenerateRandomString(8))
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "创建原始流落盘失败", "bridge_id", bridgeID, "err", err)
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	defer a.relayCore.CloseRawSink(sink)

	// 长连接不受默认读写超时限制
	rc := http.NewResponseController(c.Writer)
	exp := time.Now().AddDate(99, 0, 0)
	_ = rc.SetReadDeadline(exp)
	_ = rc.SetWriteDeadline(exp)

	c.Header("Content-Type", "text/plain")
	c.String(http.StatusOK, "relay-ok")
	c.Writer.Flush()

	n, err := io.Copy(sink, c.Request.Body)
	if err != nil {
		// 推流中断是常态，记录即可
		slog.InfoContext(c.Request.Context(), "原始流连接断开", "bridge_id", bridgeID, "bytes", n, "err", err)
		return
	}
	slog.InfoContext(c.Request.Context(), "原始流推送结束", "bridge_id", bridgeID, "bytes", n)
}
