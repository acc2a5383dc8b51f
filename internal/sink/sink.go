package sink

import (
    "sync"

    "github.com/sirupsen/logrus"

    "biosignal-server/internal/monitor"
    "biosignal-server/pkg/protocol"
)

// Envelope 带流标识与采样率的采样消息
// 采样率由发布方在解码循环内读取自己的设备配置填入
type Envelope struct {
    ChannelKey   string
    SampleRateHz int
    Sample       protocol.Sample
}

// SampleSink 采样分发器
// 解码循环同步推入, 每个订阅者持有独立的有界通道；
// 订阅者消费过慢时静默丢弃, 绝不阻塞生产者
type SampleSink struct {
    mu          sync.RWMutex
    subscribers map[string]chan Envelope
    closed      bool
    log         *logrus.Logger
}

func NewSampleSink(log *logrus.Logger) *SampleSink {
    return &SampleSink{
        subscribers: make(map[string]chan Envelope),
        log:         log,
    }
}

// Subscribe 注册订阅者并返回其消费通道
// 同名重复订阅会替换旧通道 (旧通道被关闭)
func (s *SampleSink) Subscribe(name string, size int) <-chan Envelope {
    s.mu.Lock()
    defer s.mu.Unlock()

    if old, ok := s.subscribers[name]; ok {
        close(old)
    }
    ch := make(chan Envelope, size)
    s.subscribers[name] = ch
    s.log.Infof("订阅者注册: %s (缓冲 %d)", name, size)
    return ch
}

// Unsubscribe 注销订阅者
func (s *SampleSink) Unsubscribe(name string) {
    s.mu.Lock()
    defer s.mu.Unlock()

    if ch, ok := s.subscribers[name]; ok {
        close(ch)
        delete(s.subscribers, name)
        s.log.Infof("订阅者注销: %s", name)
    }
}

// Publish 向全部订阅者投递一条采样
// 单一入口通道保证同一ChannelKey内的到达顺序；通道满时丢弃
func (s *SampleSink) Publish(env Envelope) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    if s.closed {
        return
    }
    for name, ch := range s.subscribers {
        select {
        case ch <- env:
        default:
            monitor.SinkDropped.WithLabelValues(name).Inc()
        }
    }
}

// Close 关闭全部订阅通道
func (s *SampleSink) Close() {
    s.mu.Lock()
    defer s.mu.Unlock()

    if s.closed {
        return
    }
    s.closed = true
    for name, ch := range s.subscribers {
        close(ch)
        delete(s.subscribers, name)
    }
}
