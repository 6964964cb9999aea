package artifact

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rushteam/creditiq/core"
)

// State 制品存储状态
type State int32

const (
	Unloaded State = iota
	Loaded
)

func (s State) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "unloaded"
}

// LoadObserver 接收每次加载的耗时与结果
type LoadObserver interface {
	ObserveArtifactLoad(d time.Duration, err error)
}

// Store 持有进程内唯一的制品快照。
//
// 状态只会从 Unloaded 迁移到 Loaded，不会回退。并发调用 Load 时共享同一次加载；
// 读者通过原子指针拿到完整快照，不会看到部分加载的状态。
// 加载失败保持 Unloaded，下一次请求会重新尝试。
type Store struct {
	loader      *Loader
	logger      *zap.Logger
	observer    LoadObserver
	loadTimeout time.Duration

	mu       sync.Mutex
	group    singleflight.Group
	snapshot atomic.Pointer[Artifacts]
}

// StoreOption 配置 Store
type StoreOption func(*Store)

func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithObserver(o LoadObserver) StoreOption {
	return func(s *Store) { s.observer = o }
}

// WithLoadTimeout 设置单次加载的超时，默认 30s
func WithLoadTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.loadTimeout = d
		}
	}
}

// NewStore 创建处于 Unloaded 状态的 Store
func NewStore(loader *Loader, opts ...StoreOption) *Store {
	s := &Store{loader: loader, logger: zap.NewNop(), loadTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewLoadedStore 用已有快照创建处于 Loaded 状态的 Store
func NewLoadedStore(a *Artifacts, opts ...StoreOption) *Store {
	s := NewStore(nil, opts...)
	s.snapshot.Store(a)
	return s
}

// State 返回当前状态
func (s *Store) State() State {
	if s.snapshot.Load() != nil {
		return Loaded
	}
	return Unloaded
}

// Snapshot 返回当前快照，Unloaded 时返回 nil
func (s *Store) Snapshot() *Artifacts {
	return s.snapshot.Load()
}

// Get 返回快照；Unloaded 时先触发一次加载。
func (s *Store) Get(ctx context.Context) (*Artifacts, error) {
	if a := s.snapshot.Load(); a != nil {
		return a, nil
	}
	return s.Load(ctx)
}

// Load 加载制品。已加载时直接返回现有快照。
//
// 共享的加载与发起者的 ctx 解绑，只受 loadTimeout 约束；
// 调用方 ctx 取消时本次调用提前返回，加载继续进行。
func (s *Store) Load(ctx context.Context) (*Artifacts, error) {
	ch := s.group.DoChan("load", func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		return s.load(lctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Artifacts), nil
	}
}

func (s *Store) load(ctx context.Context) (*Artifacts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a := s.snapshot.Load(); a != nil {
		return a, nil
	}
	if s.loader == nil {
		return nil, core.NewDomainError(core.ModuleArtifact, core.ErrorCodeArtifactLoad, "no artifact loader configured")
	}

	start := time.Now()
	a, err := s.loader.Load(ctx)
	elapsed := time.Since(start)
	if s.observer != nil {
		s.observer.ObserveArtifactLoad(elapsed, err)
	}
	if err != nil {
		s.logger.Error("artifact load failed",
			zap.String("source", s.loader.Source.Name()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}

	s.snapshot.Store(a)
	s.logger.Info("artifacts loaded",
		zap.String("source", a.Source),
		zap.String("model", a.Model.Name()),
		zap.Int("features", a.Schema.Len()),
		zap.Int("importance_rows", len(a.Importance)),
		zap.Duration("elapsed", elapsed))
	return a, nil
}
