// Package bz 业务公共常量
package bz

const (
	// IDPrefixBridge 桥接设备 ID 前缀
	IDPrefixBridge = "BR"
)
