package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

type getSystemInfoOutput struct {
	CPUPercent  float64 `json:"cpu_percent"`  // CPU 使用率
	MemPercent  float64 `json:"mem_percent"`  // 内存使用率
	MemTotal    uint64  `json:"mem_total"`    // 内存总量
	DiskPercent float64 `json:"disk_percent"` // 中转目录所在磁盘使用率
	DiskFree    uint64  `json:"disk_free"`    // 磁盘剩余空间
	UptimeSec   uint64  `json:"uptime_sec"`   // 主机运行时长
}

// getSystemInfo 查询主机资源占用，供管理页面展示
func (uc *Usecase) getSystemInfo(_ *gin.Context, _ *struct{}) (*getSystemInfoOutput, error) {
	var out getSystemInfoOutput

	if percents, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(percents) > 0 {
		out.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		out.MemPercent = vm.UsedPercent
		out.MemTotal = vm.Total
	}
	if du, err := disk.Usage(uc.Conf.Relay.Dir); err == nil {
		out.DiskPercent = du.UsedPercent
		out.DiskFree = du.Free
	}
	if up, err := host.Uptime(); err == nil {
		out.UptimeSec = up
	}
	return &out, nil
}
