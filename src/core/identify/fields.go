package identify

import (
	"sync"
)

// FieldStatus 字段展示状态
type FieldStatus string

const (
	FieldStatusPending   FieldStatus = "pending"   // 字段已知但值未到达
	FieldStatusRevealing FieldStatus = "revealing" // 值已到达, 展示层揭示动画进行中
	FieldStatusComplete  FieldStatus = "complete"  // 展示层确认揭示完成
)

// FieldState 单个字段的状态
type FieldState struct {
	Name   string
	Value  interface{}
	Status FieldStatus
}

// FieldStore 一次识别请求内的字段状态表。
// 每次识别调用持有自己的实例, 请求结束即丢弃, 不存在跨请求共享。
// 只有两类输入会改变它: 解析器派发的 field 事件(pending→revealing),
// 以及展示层在揭示动画结束后的确认(revealing→complete)。
// 数据到达和揭示完成在时间上解耦: 字段值可能早在动画结束前就已缓冲完毕。
type FieldStore struct {
	mu     sync.Mutex
	fields map[string]*FieldState
	order  []string // 按首次出现顺序
}

// NewFieldStore 创建空的字段状态表
func NewFieldStore() *FieldStore {
	return &FieldStore{
		fields: make(map[string]*FieldState),
	}
}

// Apply 处理一个 field 事件: 写入值并进入 revealing 状态
func (s *FieldStore) Apply(name string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.fields[name]
	if !exists {
		state = &FieldState{Name: name, Status: FieldStatusPending}
		s.fields[name] = state
		s.order = append(s.order, name)
	}
	state.Value = value
	state.Status = FieldStatusRevealing
}

// MarkRevealed 展示层揭示完成信号: revealing→complete。
// 字段不存在或尚未进入 revealing 状态时返回 false。
func (s *FieldStore) MarkRevealed(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.fields[name]
	if !exists || state.Status != FieldStatusRevealing {
		return false
	}
	state.Status = FieldStatusComplete
	return true
}

// Get 返回单个字段状态的副本
func (s *FieldStore) Get(name string) (FieldState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.fields[name]
	if !exists {
		return FieldState{}, false
	}
	return *state, true
}

// Snapshot 按首次出现顺序返回所有字段状态的副本
func (s *FieldStore) Snapshot() []FieldState {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]FieldState, 0, len(s.order))
	for _, name := range s.order {
		result = append(result, *s.fields[name])
	}
	return result
}

// Len 当前字段数量
func (s *FieldStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fields)
}
