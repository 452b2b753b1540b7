package reconcile

import (
	"sort"
	"strings"
)

// Filter 描述列表视图的过滤条件；各条件大小写不敏感、子串匹配、AND 组合。
type Filter struct {
	Device          string
	Gname           string
	Shop            string
	Video           string
	IncludeInactive bool
}

// Apply 返回过滤并排序后的可见行：停用设备默认整体排除（数量另行统计），
// 在线设备排在离线设备之前，其余保持快照内的原有顺序（稳定排序）。
func (f Filter) Apply(rows []DeviceRow) []DeviceRow {
	visible := make([]DeviceRow, 0, len(rows))
	for _, row := range rows {
		if row.Inactive && !f.IncludeInactive {
			continue
		}
		if !f.matches(row) {
			continue
		}
		visible = append(visible, row)
	}

	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].Online && !visible[j].Online
	})
	return visible
}

func (f Filter) matches(row DeviceRow) bool {
	if !containsFold(row.MobileID, f.Device) {
		return false
	}
	if !containsFold(row.Gname, f.Gname) {
		return false
	}
	if !containsFold(row.ShopName, f.Shop) {
		return false
	}
	if f.Video != "" {
		found := false
		for _, video := range row.Videos {
			if containsFold(video, f.Video) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsFold(value, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(needle))
}
