package agent

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/predictbot/gopredict/internal/capability"
	"github.com/predictbot/gopredict/pkg/logger"
	"github.com/predictbot/gopredict/pkg/persistence"
)

// Payload pipeline 各阶段之间传递的结构化数据
type Payload = map[string]interface{}

// Runner pipeline 阶段的统一契约。
// Process 必须在成功或失败时都更新内部状态（ProcessingCount 总是递增，
// ErrorCount/LastError 只在失败时更新），健康状况由 Status() 对外可见。
type Runner interface {
	Name() string
	Process(ctx context.Context, input Payload) (Payload, error)
	Start()
	Stop()
	Status() Status
}

// State agent 运行状态。被其 runner 独占，只在每次 Process 之后修改。
type State struct {
	AgentID         string                 `json:"agent_id"`
	LastProcessed   time.Time              `json:"last_processed"`
	ProcessingCount int                    `json:"processing_count"`
	ErrorCount      int                    `json:"error_count"`
	LastError       string                 `json:"last_error,omitempty"`
	StateData       map[string]interface{} `json:"state_data,omitempty"`
}

// Status 对外暴露的健康快照（监控面轮询）
type Status struct {
	Name      string `json:"name"`
	Running   bool   `json:"running"`
	State     State  `json:"state"`
	ToolCount int    `json:"tool_count"`
	Degraded  bool   `json:"degraded"`
}

// degradedRatio: error_count/processing_count 超过该比例即标记 degraded
const degradedRatio = 0.5

// Base 各阶段 agent 的公共实现：状态簿记、prompt 工具、启停标志。
// 具体阶段嵌入 Base 并通过 Track 包装自己的处理逻辑。
type Base struct {
	name       string
	capability capability.Invoker
	tools      *ToolSet
	log        *logrus.Entry

	mu      sync.Mutex
	running bool
	state   State
	store   persistence.Store // 可为 nil（不落盘）
}

// NewBase 创建 agent 基础设施。
// tools 中出现重名时返回错误（工具名在 runner 内唯一）。
func NewBase(name string, inv capability.Invoker, tools []PromptTool) (*Base, error) {
	ts, err := NewToolSet(tools)
	if err != nil {
		return nil, err
	}
	return &Base{
		name:       name,
		capability: inv,
		tools:      ts,
		log:        logger.WithComponent(name),
		state: State{
			AgentID:   name,
			StateData: make(map[string]interface{}),
		},
	}, nil
}

// Name 返回 agent 名称
func (b *Base) Name() string { return b.name }

// Log 返回组件日志 Entry
func (b *Base) Log() *logrus.Entry { return b.log }

// BindStateStore 绑定状态快照存储。
// 绑定后 Start 时恢复上次快照，Stop 时写回。必须在 Start 前调用。
func (b *Base) BindStateStore(svc persistence.Service) {
	b.mu.Lock()
	b.store = svc.NewStore("agent", b.name, "state")
	b.mu.Unlock()
}

// Start 置位运行标志（幂等）。绑定了状态存储时先恢复快照。
func (b *Base) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	if b.store != nil {
		var saved State
		switch err := b.store.Load(&saved); err {
		case nil:
			if saved.StateData == nil {
				saved.StateData = make(map[string]interface{})
			}
			saved.AgentID = b.name
			b.state = saved
			b.log.Infof("restored state, processed=%d", saved.ProcessingCount)
		case persistence.ErrNotExists:
		default:
			b.log.WithError(err).Warn("load state snapshot")
		}
	}
	b.running = true
	b.log.Info("agent started")
}

// Stop 清除运行标志（幂等）。绑定了状态存储时写回快照。
func (b *Base) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	b.running = false
	if b.store != nil {
		if err := b.store.Save(b.state); err != nil {
			b.log.WithError(err).Warn("save state snapshot")
		}
	}
	b.log.Info("agent stopped")
}

// Running 返回运行标志
func (b *Base) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Status 返回健康快照（state 深拷贝，外部读取不会看到并发修改）
func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.state
	st.StateData = make(map[string]interface{}, len(b.state.StateData))
	for k, v := range b.state.StateData {
		st.StateData[k] = v
	}

	degraded := false
	if st.ProcessingCount > 0 {
		degraded = float64(st.ErrorCount)/float64(st.ProcessingCount) >= degradedRatio
	}

	return Status{
		Name:      b.name,
		Running:   b.running,
		State:     st,
		ToolCount: b.tools.Len(),
		Degraded:  degraded,
	}
}

// Track 执行一次处理并记账：ProcessingCount 总是递增，
// 失败时额外递增 ErrorCount 并记录 LastError。
func (b *Base) Track(ctx context.Context, input Payload, fn func(context.Context, Payload) (Payload, error)) (Payload, error) {
	out, err := fn(ctx, input)

	b.mu.Lock()
	b.state.ProcessingCount++
	b.state.LastProcessed = time.Now()
	if err != nil {
		b.state.ErrorCount++
		b.state.LastError = err.Error()
	}
	b.mu.Unlock()

	if err != nil {
		b.log.WithError(err).Warn("process failed")
	}
	return out, err
}

// SetStateData 写入自由格式状态数据
func (b *Base) SetStateData(key string, value interface{}) {
	b.mu.Lock()
	b.state.StateData[key] = value
	b.mu.Unlock()
}

// GenerateWithPrompt 按名称查找 prompt 工具，格式化模板并调用 capability。
// 未知工具返回 ErrUnknownTool；模板缺 key 返回 *TemplateError。
func (b *Base) GenerateWithPrompt(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
	tool, ok := b.tools.Get(toolName)
	if !ok {
		return "", &UnknownToolError{Agent: b.name, Tool: toolName}
	}
	if err := tool.ValidateArgs(args); err != nil {
		return "", err
	}
	prompt, err := tool.Format(args)
	if err != nil {
		return "", err
	}
	return b.capability.Generate(ctx, prompt)
}
