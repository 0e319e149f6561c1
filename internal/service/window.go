package service

import "time"

// WindowStatus 签到时间窗状态
type WindowStatus string

const (
	WindowEarly     WindowStatus = "early"     // 班次尚未开始
	WindowOpen      WindowStatus = "open"      // 当前槽位开放中，可签到
	WindowCompleted WindowStatus = "completed" // 当前槽位已被心跳满足
	WindowLate      WindowStatus = "late"      // 当前槽位已错过，等待下一槽位
)

// WindowResult 签到时间窗计算结果
type WindowResult struct {
	Status           WindowStatus  `json:"status"`
	SlotIndex        int           `json:"slot_index"`
	CurrentSlotStart time.Time     `json:"current_slot_start"`
	CurrentSlotEnd   time.Time     `json:"current_slot_end"` // 槽位起点 + 宽限期
	NextSlotStart    time.Time     `json:"next_slot_start"`
	Remaining        time.Duration `json:"remaining_ms"` // open: 距本槽位关闭；其余: 距下一槽位开放
}

// ComputeWindow 计算 now 时点的签到时间窗。
//
// 槽位定长且锚定在班次开始时刻：第 i 个槽位起点 = shiftStart + i*interval，
// 截止 = 起点 + grace。本函数是"此刻能否签到"的唯一裁决来源——
// worker 轮询评估与签到接口校验必须走同一份算术，不允许各自内联重算。
//
// 纯函数：无 I/O、无副作用，相同输入恒得相同输出。
func ComputeWindow(shiftStart time.Time, interval, grace time.Duration, now time.Time, lastHeartbeat *time.Time) WindowResult {
	if now.Before(shiftStart) {
		return WindowResult{
			Status:           WindowEarly,
			SlotIndex:        0,
			CurrentSlotStart: shiftStart,
			CurrentSlotEnd:   shiftStart.Add(grace),
			NextSlotStart:    shiftStart.Add(interval),
			Remaining:        shiftStart.Sub(now),
		}
	}

	idx := int(now.Sub(shiftStart) / interval)
	slotStart := shiftStart.Add(time.Duration(idx) * interval)
	slotEnd := slotStart.Add(grace)
	nextStart := slotStart.Add(interval)

	res := WindowResult{
		SlotIndex:        idx,
		CurrentSlotStart: slotStart,
		CurrentSlotEnd:   slotEnd,
		NextSlotStart:    nextStart,
	}

	switch {
	case lastHeartbeat != nil && !lastHeartbeat.Before(slotStart):
		// 本槽位已被心跳满足，倒计时至下一槽位
		res.Status = WindowCompleted
		res.Remaining = nextStart.Sub(now)
	case !now.After(slotEnd):
		// 宽限期内，可签到
		res.Status = WindowOpen
		res.Remaining = slotEnd.Sub(now)
	default:
		// 本槽位已错过，等待下一槽位
		res.Status = WindowLate
		res.Remaining = nextStart.Sub(now)
	}

	return res
}
