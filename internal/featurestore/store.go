package featurestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/predictbot/gopredict/internal/domain"
	"github.com/predictbot/gopredict/internal/faults"
	"github.com/predictbot/gopredict/pkg/logger"
	"github.com/predictbot/gopredict/pkg/sigchan"
)

// ErrStorageUnavailable 底层存储不可达（badger 打开失败/已关闭）。
// 是否重试由调用方决定。
var ErrStorageUnavailable = fmt.Errorf("feature store unavailable")

// Store 特征存储：badger 承载的 append-only 批次仓库。
//
// 不变式：
//   - 批次写入后不可变（没有任何 update 路径）
//   - 批次在事务提交前不可见（badger 事务提交即发布点），
//     读端永远看不到半写状态
//   - key 按 (market, timestamp) 编码，前缀扫描天然按时间升序
type Store struct {
	db     *badger.DB
	writes atomic.Int64

	gcTrigger *sigchan.Chan
	gcStop    chan struct{}
	gcDone    chan struct{}
	closeOnce sync.Once
}

// gcWriteInterval 每累计这么多次写入触发一次 value log GC
const gcWriteInterval = 128

// Open 打开特征库。目录不存在时创建。
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(ErrStorageUnavailable, err.Error())
	}
	s := &Store{
		db:        db,
		gcTrigger: sigchan.New(1),
		gcStop:    make(chan struct{}),
		gcDone:    make(chan struct{}),
	}
	go s.gcLoop()
	return s, nil
}

// gcLoop 后台回收 badger value log。
// 由写入侧按量触发（sigchan 折叠重复信号），不用定时器空转。
func (s *Store) gcLoop() {
	defer close(s.gcDone)
	log := logger.WithComponent("featurestore")
	for {
		select {
		case <-s.gcStop:
			return
		case <-s.gcTrigger.C():
			for {
				err := s.db.RunValueLogGC(0.5)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						log.WithError(err).Debug("value log gc")
					}
					break
				}
			}
		}
	}
}

// Close 关闭底层 badger
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() {
		close(s.gcStop)
		<-s.gcDone
		err = s.db.Close()
	})
	return err
}

// batchKey: feat:<marketID>:<unixnano 零填充>:<batchID>
// 零填充保证字节序 == 时间序。
func batchKey(marketID string, ts time.Time, batchID string) []byte {
	return []byte(fmt.Sprintf("feat:%s:%020d:%s", marketID, ts.UnixNano(), batchID))
}

func marketPrefix(marketID string) []byte {
	return []byte(fmt.Sprintf("feat:%s:", marketID))
}

// Store 追加一个特征批次，返回批次 ID。
// BatchID 为空时生成；batch 其余字段由调用方填好。
// 不同市场并发调用安全（badger 事务隔离）。
func (s *Store) Store(ctx context.Context, batch domain.FeatureBatch) (string, error) {
	if s == nil || s.db == nil || s.db.IsClosed() {
		return "", ErrStorageUnavailable
	}
	if batch.MarketID == "" {
		return "", faults.Validation(fmt.Errorf("feature batch requires market id"))
	}
	if batch.BatchID == "" {
		batch.BatchID = uuid.NewString()
	}
	if batch.Timestamp.IsZero() {
		batch.Timestamp = time.Now()
	}

	val, err := json.Marshal(batch)
	if err != nil {
		return "", err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(batchKey(batch.MarketID, batch.Timestamp, batch.BatchID), val)
	})
	if err != nil {
		// 写失败基本都是 IO/状态问题，按 transient 报给调用方
		return "", faults.Transient(errors.Wrap(err, "feature store write"))
	}

	if s.writes.Add(1)%gcWriteInterval == 0 {
		s.gcTrigger.Emit()
	}

	logger.WithComponent("featurestore").
		Debugf("stored batch %s market=%s dims=%d", batch.BatchID, batch.MarketID, len(batch.Vector))
	return batch.BatchID, nil
}

// GetLatest 返回 marketID 在 trailing window 内的批次，按时间升序。
// 没有匹配时返回空切片（不是错误）。
func (s *Store) GetLatest(ctx context.Context, marketID string, window time.Duration) ([]domain.FeatureBatch, error) {
	if s == nil || s.db == nil || s.db.IsClosed() {
		return nil, ErrStorageUnavailable
	}
	cutoff := time.Now().Add(-window)

	var out []domain.FeatureBatch
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := marketPrefix(marketID)
		// seek 到窗口起点，跳过窗口外的老批次
		seek := batchKey(marketID, cutoff, "")
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var batch domain.FeatureBatch
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &batch)
			}); err != nil {
				return err
			}
			if batch.Timestamp.Before(cutoff) {
				continue
			}
			out = append(out, batch)
		}
		return nil
	})
	if err != nil {
		return nil, faults.Transient(errors.Wrap(err, "feature store read"))
	}
	return out, nil
}

// Retrieve 相似度检索：对全库批次算 cosine，按分数降序取前 limit 个。
// 无向量的批次跳过；没有匹配时返回空切片。
func (s *Store) Retrieve(ctx context.Context, queryVector []float64, limit int) ([]domain.ScoredBatch, error) {
	if s == nil || s.db == nil || s.db.IsClosed() {
		return nil, ErrStorageUnavailable
	}
	if limit <= 0 || len(queryVector) == 0 {
		return nil, nil
	}

	var scored []domain.ScoredBatch
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("feat:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var batch domain.FeatureBatch
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &batch)
			}); err != nil {
				return err
			}
			score, ok := Cosine(queryVector, batch.Vector)
			if !ok {
				continue
			}
			scored = append(scored, domain.ScoredBatch{Batch: batch, Score: score})
		}
		return nil
	})
	if err != nil {
		return nil, faults.Transient(errors.Wrap(err, "feature store scan"))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}
