package decision

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// producer 是 KafkaRecorder 用到的 kgo.Client 子集
type producer interface {
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// KafkaConfig Kafka 决策事件配置
type KafkaConfig struct {
	Brokers            []string
	Topic              string
	ClientID           string
	BatchSize          int           // 缓冲达到该条数立即触发发送
	FlushInterval      time.Duration // 定时发送间隔
	RequiredAcks       int16         // 0=不等待, 1=leader, -1=all
	Compression        string        // gzip, snappy, lz4, zstd
	MaxRetries         int
	MaxPending         int           // 待发送事件上限，超出后丢弃，默认 10*BatchSize
	MaxBufferedRecords int           // kgo 客户端缓冲上限，0 使用 kgo 默认值
	CloseTimeout       time.Duration // Close 时等待确认的最长时间
}

func (c *KafkaConfig) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.ClientID == "" {
		c.ClientID = "creditiq-decisions"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxPending <= 0 {
		c.MaxPending = 10 * c.BatchSize
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 5 * time.Second
	}
}

func (c KafkaConfig) clientOpts() []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(c.Brokers...),
		kgo.ClientID(c.ClientID),
		kgo.DefaultProduceTopic(c.Topic),
		kgo.RecordRetries(c.MaxRetries),
	}
	if c.MaxBufferedRecords > 0 {
		opts = append(opts, kgo.MaxBufferedRecords(c.MaxBufferedRecords))
	}

	switch c.RequiredAcks {
	case -1:
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	case 0:
		// 不等待确认时不能使用幂等写
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	default:
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	}

	switch c.Compression {
	case "gzip":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
	case "snappy":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "lz4":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "zstd":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	}
	return opts
}

// KafkaRecorder 把事件缓冲后批量投递到 Kafka。
// 以 customer_id 作为消息 key，同一客户的决策落在同一分区、保持顺序。
//
// Record 只写内存缓冲，发送全部在后台 goroutine 完成；broker 不可用时
// 待发送事件超过 MaxPending 的部分直接丢弃并计数。
type KafkaRecorder struct {
	client        producer
	topic         string
	batchSize     int
	maxPending    int
	flushInterval time.Duration
	closeTimeout  time.Duration
	logger        *zap.Logger

	mu        sync.Mutex
	buffer    []*Event
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup
	flushCh   chan struct{}
	stopCh    chan struct{}
	dropped   atomic.Int64
}

// NewKafkaRecorder 创建 Kafka 决策记录器
func NewKafkaRecorder(cfg KafkaConfig, logger *zap.Logger) (*KafkaRecorder, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("decision: kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("decision: kafka topic is required")
	}
	cfg.setDefaults()

	client, err := kgo.NewClient(cfg.clientOpts()...)
	if err != nil {
		return nil, err
	}
	return newKafkaRecorder(client, cfg, logger), nil
}

func newKafkaRecorder(client producer, cfg KafkaConfig, logger *zap.Logger) *KafkaRecorder {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &KafkaRecorder{
		client:        client,
		topic:         cfg.Topic,
		batchSize:     cfg.BatchSize,
		maxPending:    cfg.MaxPending,
		flushInterval: cfg.FlushInterval,
		closeTimeout:  cfg.CloseTimeout,
		logger:        logger,
		buffer:        make([]*Event, 0, cfg.BatchSize),
		flushCh:       make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
	}
	r.wg.Add(1)
	go r.flushLoop()
	return r
}

// Record 写入缓冲，缓冲满时通知后台发送，不会阻塞在 broker 上。
// 关闭后调用直接忽略。
func (r *KafkaRecorder) Record(_ context.Context, e *Event) error {
	if e == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	if len(r.buffer) >= r.maxPending {
		r.mu.Unlock()
		r.drop(e.ID, errPendingFull)
		return nil
	}
	r.buffer = append(r.buffer, e)
	full := len(r.buffer) >= r.batchSize
	r.mu.Unlock()

	if full {
		select {
		case r.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Dropped 返回因缓冲已满被丢弃的事件数
func (r *KafkaRecorder) Dropped() int64 {
	return r.dropped.Load()
}

var errPendingFull = errors.New("decision: pending buffer full")

func (r *KafkaRecorder) drop(id string, err error) {
	// 只在首次及每 1000 次丢弃时打日志
	if n := r.dropped.Add(1); n == 1 || n%1000 == 0 {
		r.logger.Warn("decision event dropped",
			zap.String("id", id),
			zap.Int64("dropped", n),
			zap.Error(err))
	}
}

func (r *KafkaRecorder) flushLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.flush()
		case <-r.flushCh:
			r.flush()
		case <-r.stopCh:
			return
		}
	}
}

func (r *KafkaRecorder) flush() {
	r.mu.Lock()
	if len(r.buffer) == 0 {
		r.mu.Unlock()
		return
	}
	events := r.buffer
	r.buffer = make([]*Event, 0, r.batchSize)
	r.mu.Unlock()

	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			r.logger.Warn("encode decision event", zap.String("id", e.ID), zap.Error(err))
			continue
		}
		id := e.ID
		rec := &kgo.Record{Topic: r.topic, Key: []byte(e.CustomerID), Value: data}
		r.client.TryProduce(context.Background(), rec, func(rec *kgo.Record, err error) {
			switch {
			case err == nil:
			case errors.Is(err, kgo.ErrMaxBuffered):
				r.drop(id, err)
			default:
				r.logger.Warn("produce decision event",
					zap.String("topic", rec.Topic),
					zap.ByteString("key", rec.Key),
					zap.Error(err))
			}
		})
	}
}

// Close 停止定时发送，投递剩余事件并在 CloseTimeout 内等待确认。
func (r *KafkaRecorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		close(r.stopCh)
		r.wg.Wait()
		r.flush()

		ctx, cancel := context.WithTimeout(context.Background(), r.closeTimeout)
		defer cancel()
		err = r.client.Flush(ctx)
		r.client.Close()
	})
	return err
}
