package platform

import "sync"

// offlineQueue 离线持久化队列
// 离线/未认证/提交失败的远程写入按类型入队（无上限），排空成功后移除；
// 排空过程中的失败使本轮排空提前结束，剩余条目等待下一次触发
type offlineQueue struct {
	mu            sync.Mutex
	vitals        []VitalReadingDTO
	registrations []DeviceRegistrationDTO
}

func newOfflineQueue() *offlineQueue {
	return &offlineQueue{}
}

// EnqueueVital 体征读数入队
func (q *offlineQueue) EnqueueVital(reading VitalReadingDTO) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.vitals = append(q.vitals, reading)
}

// EnqueueRegistration 设备注册入队
func (q *offlineQueue) EnqueueRegistration(registration DeviceRegistrationDTO) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.registrations = append(q.registrations, registration)
}

// TakeVitals 取出最多 n 条体征读数（并从队列移除）
// 调用方提交失败时必须通过 RequeueVitals 放回
func (q *offlineQueue) TakeVitals(n int) []VitalReadingDTO {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.vitals) {
		n = len(q.vitals)
	}
	if n == 0 {
		return nil
	}
	taken := make([]VitalReadingDTO, n)
	copy(taken, q.vitals[:n])
	q.vitals = q.vitals[n:]
	return taken
}

// RequeueVitals 将提交失败的读数放回队头，保持原有顺序
func (q *offlineQueue) RequeueVitals(readings []VitalReadingDTO) {
	if len(readings) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.vitals = append(append([]VitalReadingDTO{}, readings...), q.vitals...)
}

// TakeRegistration 取出一条设备注册
func (q *offlineQueue) TakeRegistration() (DeviceRegistrationDTO, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.registrations) == 0 {
		return DeviceRegistrationDTO{}, false
	}
	reg := q.registrations[0]
	q.registrations = q.registrations[1:]
	return reg, true
}

// RequeueRegistration 将注册放回队头
func (q *offlineQueue) RequeueRegistration(registration DeviceRegistrationDTO) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.registrations = append([]DeviceRegistrationDTO{registration}, q.registrations...)
}

// Sizes 各类型当前积压条数
func (q *offlineQueue) Sizes() (vitals, registrations int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.vitals), len(q.registrations)
}

// Clear 清空队列（显式清理操作）
func (q *offlineQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.vitals = nil
	q.registrations = nil
}
