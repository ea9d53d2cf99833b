package execution

import (
	"context"
	"hash/fnv"
	"sync"
)

// submissionLock 提供按 (marketID, side) 的互斥段。
//
// 设计目标：
// - 不允许误判（同一 key 的第二个提交必须等待，而不是被跳过）
// - 开销可控（分片 map，惰性创建 per-key 信号量）
//
// 临界区只覆盖 validate+submit；查单/撤单不经过它。
type submissionLock struct {
	shards []lockShard
}

type lockShard struct {
	mu sync.Mutex
	m  map[string]chan struct{} // key -> 容量 1 的信号量
}

func newSubmissionLock(shardCount int) *submissionLock {
	if shardCount <= 0 {
		shardCount = 64
	}
	shards := make([]lockShard, shardCount)
	for i := range shards {
		shards[i].m = make(map[string]chan struct{})
	}
	return &submissionLock{shards: shards}
}

// Acquire 获取 key 的提交令牌；已被占用时阻塞等待。
// ctx 取消时放弃等待并返回 ctx.Err()。
func (l *submissionLock) Acquire(ctx context.Context, key string) error {
	sh := l.shard(key)
	sh.mu.Lock()
	sem, ok := sh.m[key]
	if !ok {
		sem = make(chan struct{}, 1)
		sh.m[key] = sem
	}
	sh.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release 释放 key 的提交令牌。
func (l *submissionLock) Release(key string) {
	sh := l.shard(key)
	sh.mu.Lock()
	sem, ok := sh.m[key]
	sh.mu.Unlock()
	if ok {
		select {
		case <-sem:
		default:
		}
	}
}

func (l *submissionLock) shard(key string) *lockShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	idx := int(h.Sum32()) % len(l.shards)
	return &l.shards[idx]
}
