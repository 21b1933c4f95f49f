package task

import "sync"

// Outcome 任务终态
type Outcome struct {
	Result interface{}
	Err    error
}

// ResultCallback 把任务终态写入缓冲channel供同步等待方读取。
// 只接受第一次回调: 执行路径与超时路径可能先后触发回调,
// 后到的一次被丢弃, 保证单次决议。
type ResultCallback struct {
	once sync.Once
	ch   chan Outcome
}

// NewResultCallback 创建单次决议回调
func NewResultCallback() *ResultCallback {
	return &ResultCallback{
		ch: make(chan Outcome, 1),
	}
}

// OnComplete 任务成功回调
func (c *ResultCallback) OnComplete(result interface{}) {
	c.settle(Outcome{Result: result})
}

// OnError 任务失败回调
func (c *ResultCallback) OnError(err error) {
	c.settle(Outcome{Err: err})
}

// Done 终态channel, 恰好收到一个值
func (c *ResultCallback) Done() <-chan Outcome {
	return c.ch
}

func (c *ResultCallback) settle(outcome Outcome) {
	c.once.Do(func() {
		c.ch <- outcome
	})
}
