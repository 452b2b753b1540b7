package groupsync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"signCast/internal/composer"
	"signCast/internal/fleet"
)

// Store 在合成引擎依赖之上加上组相关端点。
type Store interface {
	composer.Store
	ListLinks(ctx context.Context, gname, shop string) ([]fleet.LinkRecord, error)
	SyncGroup(ctx context.Context, gname, sourceMobileID string, l fleet.DeviceLayout) (int, error)
}

// DeviceFailure 记录单台设备同步失败的摘要。
type DeviceFailure struct {
	MobileID string `json:"mobile_id"`
	Reason   string `json:"reason"`
}

// Report 是一次组同步的结果。Failed == 0 才算完全成功；
// 部分失败作为警告上报，已更新的设备不回滚（接受最终收敛）。
type Report struct {
	Attempted int             `json:"devices_attempted"`
	Succeeded int             `json:"devices_succeeded"`
	Failed    int             `json:"devices_failed"`
	Failures  []DeviceFailure `json:"failures,omitempty"`
}

// Engine 把已合成的布局推送到组内每台设备。
type Engine struct {
	store  Store
	logger *slog.Logger
}

// NewEngine 构造组同步引擎。
func NewEngine(store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Sync 先保存源设备（失败即整单中止），然后优先尝试批量组同步端点；
// 端点缺失或出错不视为整体失败，退回逐台独立保存并统计成败。
func (e *Engine) Sync(ctx context.Context, session *composer.Session, gname string) (Report, SaveLinkFailures, error) {
	sourceID := session.MobileID()

	sourceResult, err := session.Save(ctx)
	if err != nil {
		return Report{}, nil, fmt.Errorf("save source device %s: %w", sourceID, err)
	}

	members, err := e.groupMembers(ctx, gname, sourceID)
	if err != nil {
		return Report{}, sourceResult.LinkFailures, fmt.Errorf("list group devices: %w", err)
	}

	report := Report{Attempted: len(members), Succeeded: 1}
	payload := fleet.DeviceLayout{LayoutMode: sourceResult.LayoutMode, LayoutConfig: sourceResult.LayoutConfig}

	updated, err := e.store.SyncGroup(ctx, gname, sourceID, payload)
	if err == nil {
		// 批量端点按设备表统计实际写入数（含源设备），成员清单由链接
		// 记录派生，两者可能偏差；以端点返回的数量为准，不虚报成功。
		report.Succeeded = updated
		if report.Succeeded == 0 {
			// 源设备在批量调用前已单独保存成功。
			report.Succeeded = 1
		}
		if report.Succeeded > report.Attempted {
			report.Attempted = report.Succeeded
		}
		report.Failed = report.Attempted - report.Succeeded
		if report.Failed > 0 {
			e.logger.Warn("batched group sync updated fewer devices than group membership",
				slog.String("gname", gname),
				slog.Int("members", report.Attempted),
				slog.Int("devices_updated", updated),
			)
		}
		e.logger.Info("batched group sync succeeded",
			slog.String("gname", gname),
			slog.String("source", sourceID),
			slog.Int("devices_updated", updated),
		)
		return report, sourceResult.LinkFailures, nil
	}

	e.logger.Warn("batched group sync unavailable, falling back to per-device saves",
		slog.String("gname", gname),
		slog.Any("error", err),
	)

	for _, mobileID := range members {
		if mobileID == sourceID {
			continue
		}
		if _, err := composer.ApplyToDevice(ctx, e.store, mobileID, sourceResult.LayoutMode, sourceResult.LayoutConfig, e.logger); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, DeviceFailure{MobileID: mobileID, Reason: err.Error()})
			e.logger.Warn("per-device sync failed",
				slog.String("gname", gname),
				slog.String("mobile_id", mobileID),
				slog.Any("error", err),
			)
			continue
		}
		report.Succeeded++
	}

	e.logger.Info("group sync finished",
		slog.String("gname", gname),
		slog.Int("attempted", report.Attempted),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
	)
	return report, sourceResult.LinkFailures, nil
}

// SaveLinkFailures 透传源设备保存阶段的链接更新失败清单。
type SaveLinkFailures = []composer.LinkFailure

// groupMembers 返回组内全部设备 ID（去重、含源设备、稳定排序）。
func (e *Engine) groupMembers(ctx context.Context, gname, sourceID string) ([]string, error) {
	records, err := e.store.ListLinks(ctx, gname, "")
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{sourceID: true}
	members := []string{sourceID}
	for _, r := range records {
		if r.MobileID == "" || seen[r.MobileID] {
			continue
		}
		seen[r.MobileID] = true
		members = append(members, r.MobileID)
	}
	sort.Strings(members[1:])
	return members, nil
}
