package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// PromptTool 能力描述符：带输入/输出 schema 的 prompt 模板。
// 构造后不可变；一个 runner 持有一组，按名称选用。
type PromptTool struct {
	Name         string
	Description  string
	InputSchema  map[string]string // 参数名 -> 类型描述
	OutputSchema map[string]string // 输出字段 -> 类型描述
	Template     string            // 模板，占位符形如 {market_data}
}

// UnknownToolError 工具名未注册
type UnknownToolError struct {
	Agent string
	Tool  string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("agent %s: unknown prompt tool %q", e.Agent, e.Tool)
}

// TemplateError 模板格式化失败（缺少占位符对应的参数）
type TemplateError struct {
	Tool string
	Key  string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("prompt tool %s: missing template key %q", e.Tool, e.Key)
}

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// ValidateArgs 边界上的 schema 校验：InputSchema 声明的每个参数都必须提供。
func (t PromptTool) ValidateArgs(args map[string]interface{}) error {
	for key := range t.InputSchema {
		if _, ok := args[key]; !ok {
			return &TemplateError{Tool: t.Name, Key: key}
		}
	}
	return nil
}

// Format 用 args 替换模板占位符。
// 非字符串值 JSON 序列化后嵌入；模板里出现未提供的 key 时失败。
func (t PromptTool) Format(args map[string]interface{}) (string, error) {
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(t.Template, func(m string) string {
		key := strings.Trim(m, "{}")
		v, ok := args[key]
		if !ok {
			if missing == "" {
				missing = key
			}
			return m
		}
		return stringify(v)
	})
	if missing != "" {
		return "", &TemplateError{Tool: t.Name, Key: missing}
	}
	return out, nil
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// ToolSet 工具集合，名称唯一
type ToolSet struct {
	byName map[string]PromptTool
}

// NewToolSet 构建工具集合，重名直接报错
func NewToolSet(tools []PromptTool) (*ToolSet, error) {
	byName := make(map[string]PromptTool, len(tools))
	for _, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("prompt tool with empty name")
		}
		if _, dup := byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate prompt tool %q", t.Name)
		}
		byName[t.Name] = t
	}
	return &ToolSet{byName: byName}, nil
}

// Get 按名称查找
func (s *ToolSet) Get(name string) (PromptTool, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Len 返回工具数量
func (s *ToolSet) Len() int { return len(s.byName) }
