package syncgroup

import "sync"

// Group 是 sync.WaitGroup 的包装器，自动配对 Add/Done，
// 用于跟踪并发 pipeline 运行的生命周期（Stop 时等待在途 goroutine 收尾）。
type Group struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	active  int
	stopped bool
}

// NewGroup 创建新的 Group
func NewGroup() *Group {
	return &Group{}
}

// Go 启动一个被跟踪的 goroutine。
// 如果 group 已经进入停止状态则拒绝启动，返回 false。
func (g *Group) Go(fn func()) bool {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return false
	}
	g.active++
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer func() {
			g.mu.Lock()
			g.active--
			g.mu.Unlock()
			g.wg.Done()
		}()
		fn()
	}()
	return true
}

// Active 返回当前在途 goroutine 数量
func (g *Group) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// StopAndWait 拒绝新 goroutine 并等待在途的全部完成
func (g *Group) StopAndWait() {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
	g.wg.Wait()
}

// Wait 等待在途 goroutine 完成（不拒绝新的）
func (g *Group) Wait() {
	g.wg.Wait()
}
