package domain

import "time"

// SyncResult 单设备批量同步结果
// 不作为一等持久化实体存储，仅用于返回/日志
// 不变量：TotalRecords() == 各指标计数之和；Errors 非空不代表整体失败
type SyncResult struct {
	DeviceID  string         `json:"device_id"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Counts    map[Metric]int `json:"counts"`
	Errors    []string       `json:"errors"`
}

// NewSyncResult 创建同步结果
func NewSyncResult(deviceID string) *SyncResult {
	return &SyncResult{
		DeviceID:  deviceID,
		StartedAt: time.Now(),
		Counts:    make(map[Metric]int),
	}
}

// AddCount 累加某指标的记录数
func (r *SyncResult) AddCount(m Metric, n int) {
	r.Counts[m] += n
}

// AddError 记录某指标的同步错误（不中断其余指标）
func (r *SyncResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// TotalRecords 全部指标记录数之和
func (r *SyncResult) TotalRecords() int {
	total := 0
	for _, n := range r.Counts {
		total += n
	}
	return total
}

// Duration 同步耗时
func (r *SyncResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}
