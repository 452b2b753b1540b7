package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Device 表示一台已注册的广告屏设备。
// 温度与播放计数由设备心跳上报，作为设备级字段随链接行一起下发给列表视图。
type Device struct {
	gorm.Model
	MobileID     string `gorm:"uniqueIndex;size:64"`
	Gname        string `gorm:"index;size:64"`
	ShopName     string `gorm:"index;size:128"`
	DeviceName   string `gorm:"size:128"`
	KeyHash      string `gorm:"size:255"`
	Inactive     bool   `gorm:"default:false"`
	Temperature  float64
	DailyPlays   int
	MonthlyPlays int
}

// LinkRecord 表示一条 (设备, 视频) 的投放指派。
// 图片内容不产生链接记录，只存在于布局描述符里；这是既有系统的约定，不能"修复"。
type LinkRecord struct {
	gorm.Model
	MobileID       string `gorm:"index;size:64"`
	Gname          string `gorm:"index;size:64"`
	ShopName       string `gorm:"size:128"`
	VideoName      string `gorm:"size:255"`
	Rotation       *int
	DeviceRotation *int
	GridPosition   int
}

// DeviceLayout 保存设备的布局描述符：预设 ID 加序列化后的槽位清单。
// 每次保存整体覆盖，不做局部更新；历史格式解析失败按"无描述符"处理。
type DeviceLayout struct {
	gorm.Model
	MobileID     string         `gorm:"uniqueIndex;size:64"`
	LayoutMode   string         `gorm:"size:32"`
	LayoutConfig datatypes.JSON `gorm:"type:jsonb"`
}
