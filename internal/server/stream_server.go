package server

import (
    "context"
    "fmt"
    "os"
    "os/signal"
    "sync"
    "syscall"
    "time"

    "github.com/sirupsen/logrus"

    "biosignal-server/internal/analysis"
    "biosignal-server/internal/config"
    "biosignal-server/internal/monitor"
    "biosignal-server/internal/sink"
    "biosignal-server/internal/storage"
    "biosignal-server/internal/transport"
    "biosignal-server/pkg/protocol"
)

// StreamServer 采集服务编排
// 每路传输各自独立的解码循环, 分析协程通过有界队列隔离,
// 昂贵的FFT不会反压采集端
type StreamServer struct {
    config   *config.Config
    sink     *sink.SampleSink
    worker   *analysis.Worker
    storage  *storage.MessageQueue
    monitor  *monitor.Monitor
    log      *logrus.Logger
    conns    []transport.Connection
    cancel   context.CancelFunc
    wg       sync.WaitGroup
    shutdown chan struct{}
}

func NewStreamServer(cfg *config.Config, log *logrus.Logger) (*StreamServer, error) {
    // 创建监控
    mon := monitor.NewMonitor(log)

    // 创建分发器
    sampleSink := sink.NewSampleSink(log)

    // 创建消息队列 (可选)
    var mq *storage.MessageQueue
    if cfg.Redis.Enabled {
        var err error
        mq, err = storage.NewMessageQueue(
            cfg.Redis.Addr,
            cfg.Redis.Password,
            cfg.Redis.Channel,
            cfg.Redis.DB,
            cfg.Redis.PoolSize,
            log,
        )
        if err != nil {
            return nil, err
        }
    }

    s := &StreamServer{
        config:   cfg,
        sink:     sampleSink,
        storage:  mq,
        monitor:  mon,
        log:      log,
        shutdown: make(chan struct{}),
    }
    s.worker = analysis.NewWorker(cfg.Analysis.QueueSize, s.emitEstimate, log)

    // 按配置装配传输层
    if cfg.Transports.BLE.Enabled {
        s.conns = append(s.conns, transport.NewBLEConn(cfg.Transports.BLE, sampleSink, log))
    }
    if cfg.Transports.Serial.Enabled {
        s.conns = append(s.conns, transport.NewSerialConn(cfg.Transports.Serial, sampleSink, log))
    }
    if cfg.Transports.WebSocket.Enabled {
        s.conns = append(s.conns, transport.NewWSConn(cfg.Transports.WebSocket, sampleSink, log))
    }
    if len(s.conns) == 0 {
        return nil, fmt.Errorf("未启用任何传输层")
    }

    return s, nil
}

// Start 启动服务并阻塞直到收到退出信号
func (s *StreamServer) Start() error {
    // 启动监控
    if s.config.Monitor.Enabled {
        s.monitor.StartMetricsServer(s.config.Monitor.MetricsPort)
        s.monitor.StartRuntimeMonitor()
    }

    ctx, cancel := context.WithCancel(context.Background())
    s.cancel = cancel

    // 启动分析协程
    s.worker.Start(ctx)

    // 采样泵: 把分发器消息拆成逐通道分析消息
    ch := s.sink.Subscribe("analysis", s.config.Analysis.SinkBuffer)
    s.wg.Add(1)
    go s.pump(ctx, ch)

    // 建立各路连接; 单路失败不影响其他传输
    connected := 0
    for _, conn := range s.conns {
        if err := conn.Connect(ctx); err != nil {
            s.log.Errorf("传输连接失败 [%s]: %v", conn.Name(), err)
            continue
        }
        connected++
    }
    if connected == 0 {
        cancel()
        return fmt.Errorf("所有传输连接失败")
    }
    s.log.Infof("服务启动成功: %d/%d 路传输在线", connected, len(s.conns))

    // 优雅退出处理
    go s.handleShutdown()

    <-s.shutdown
    return nil
}

// pump 逐通道拆分采样并投递分析消息
func (s *StreamServer) pump(ctx context.Context, ch <-chan sink.Envelope) {
    defer s.wg.Done()
    ac := s.config.Analysis

    for {
        select {
        case <-ctx.Done():
            return
        case env, ok := <-ch:
            if !ok {
                return
            }
            for i, v := range env.Sample.Channels {
                s.worker.Offer(analysis.Message{
                    ChannelKey:         fmt.Sprintf("%s:ch%d", env.ChannelKey, i),
                    Value:              float64(v),
                    SampleRateHz:       env.SampleRateHz,
                    FFTSize:            ac.FFTSize,
                    SamplesPerEstimate: ac.SamplesPerEstimate,
                    SmootherWindow:     ac.SmootherWindow,
                    PostRateMs:         ac.PostRateMs,
                    EMATauMs:           ac.EMATauMs,
                    Mode:               ac.Mode,
                })
            }
        }
    }
}

// emitEstimate 限流后的估计结果出口
func (s *StreamServer) emitEstimate(est *protocol.BandPowerEstimate) {
    s.log.Debugf("功率估计 [%s]: alpha=%.3f beta=%.3f theta=%.3f",
        est.ChannelKey,
        est.Smoothed["alpha"],
        est.Smoothed["beta"],
        est.Smoothed["theta"],
    )

    if s.storage == nil {
        return
    }
    ctx, cancel := context.WithTimeout(context.Background(), time.Second)
    defer cancel()
    if err := s.storage.Publish(ctx, est); err != nil {
        s.log.Errorf("发布估计结果失败 [%s]: %v", est.ChannelKey, err)
    }
}

func (s *StreamServer) handleShutdown() {
    sigChan := make(chan os.Signal, 1)
    signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

    sig := <-sigChan
    s.log.Infof("收到信号: %v, 开始优雅关闭...", sig)

    // 先断开传输, 停止采集
    for _, conn := range s.conns {
        if err := conn.Close(); err != nil {
            s.log.Warnf("关闭传输失败 [%s]: %v", conn.Name(), err)
        }
    }

    // 停止分析与泵
    s.cancel()
    s.sink.Close()

    // 等待处理完成 (最多30秒)
    done := make(chan struct{})
    go func() {
        s.wg.Wait()
        s.worker.Wait()
        close(done)
    }()

    select {
    case <-done:
        s.log.Info("所有处理协程已退出")
    case <-time.After(30 * time.Second):
        s.log.Warn("关闭超时, 强制退出")
    }

    // 关闭存储连接
    if s.storage != nil {
        if err := s.storage.Close(); err != nil {
            s.log.Errorf("关闭存储连接失败: %v", err)
        }
    }

    s.log.Info("服务已关闭")
    close(s.shutdown)
}
