package orchestrator

import (
	"errors"
	"sync"

	"github.com/predictbot/gopredict/internal/agent"
)

// ErrDuplicateAgent 重名 agent 注册
var ErrDuplicateAgent = errors.New("duplicate agent name")

// Registry name -> Runner 注册表。注册在启动前完成，运行期只读。
type Registry struct {
	mu     sync.RWMutex
	agents map[string]agent.Runner
	order  []string // 注册顺序，Statuses 按此输出
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]agent.Runner)}
}

// Register 注册 agent；重名返回 ErrDuplicateAgent
func (r *Registry) Register(runner agent.Runner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := runner.Name()
	if _, ok := r.agents[name]; ok {
		return ErrDuplicateAgent
	}
	r.agents[name] = runner
	r.order = append(r.order, name)
	return nil
}

// Get 按名称取 agent
func (r *Registry) Get(name string) (agent.Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.agents[name]
	return runner, ok
}

// StartAll / StopAll 按注册顺序启停全部 agent
func (r *Registry) StartAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		r.agents[name].Start()
	}
}

func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		r.agents[r.order[i]].Stop()
	}
}

// Statuses 全部 agent 的健康快照（监控面用）
func (r *Registry) Statuses() []agent.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]agent.Status, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.agents[name].Status())
	}
	return out
}
