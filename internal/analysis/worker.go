package analysis

import (
    "context"
    "sync"
    "time"

    "github.com/sirupsen/logrus"

    "biosignal-server/internal/monitor"
    "biosignal-server/pkg/protocol"
)

// Message 分析协程的输入消息, 携带采样值与本次生效的全部分析参数
type Message struct {
    ChannelKey         string
    Value              float64
    SampleRateHz       int
    FFTSize            int
    SamplesPerEstimate int
    SmootherWindow     int
    PostRateMs         int
    EMATauMs           int
    Mode               string
}

// EmitFunc 限流后的估计结果回调
type EmitFunc func(*protocol.BandPowerEstimate)

// Worker 独立分析协程
// 谱估计与平滑状态全部私有, 外部仅能通过消息通道交互；
// 单协程逐条处理保证了通道内顺序, 各通道状态无需加锁
type Worker struct {
    in       chan Message
    engine   *Engine
    smoother *Smoother
    emit     EmitFunc
    log      *logrus.Logger
    wg       sync.WaitGroup
}

func NewWorker(queueSize int, emit EmitFunc, log *logrus.Logger) *Worker {
    return &Worker{
        in:       make(chan Message, queueSize),
        engine:   NewEngine(log),
        smoother: NewSmoother(log),
        emit:     emit,
        log:      log,
    }
}

// Offer 非阻塞投递
// 队列满时丢弃最旧的一条消息为新消息腾位, 绝不阻塞采集端
func (w *Worker) Offer(msg Message) {
    select {
    case w.in <- msg:
        return
    default:
    }

    select {
    case <-w.in:
        monitor.AnalysisQueueDropped.Inc()
    default:
    }
    select {
    case w.in <- msg:
    default:
        monitor.AnalysisQueueDropped.Inc()
    }
}

// Start 启动分析协程
func (w *Worker) Start(ctx context.Context) {
    w.wg.Add(1)
    go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
    defer w.wg.Done()
    w.log.Info("分析协程启动")

    for {
        select {
        case <-ctx.Done():
            w.log.Info("分析协程退出")
            return
        case msg := <-w.in:
            w.process(msg)
        }
    }
}

func (w *Worker) process(msg Message) {
    start := time.Now()

    bp, reconfigured := w.engine.Ingest(msg.ChannelKey, msg.Value, SpectralConfig{
        SampleRateHz:       msg.SampleRateHz,
        FFTSize:            msg.FFTSize,
        SamplesPerEstimate: msg.SamplesPerEstimate,
        Mode:               msg.Mode,
    })
    if reconfigured {
        // 缓冲尺寸变化, 平滑历史一并作废
        w.smoother.Reset(msg.ChannelKey)
    }
    if bp == nil {
        return
    }

    smoothed, emit := w.smoother.Update(msg.ChannelKey, bp.Relative, SmootherConfig{
        SmootherWindow: msg.SmootherWindow,
        PostRateMs:     msg.PostRateMs,
        EMATauMs:       msg.EMATauMs,
    })
    monitor.ProcessingDuration.Observe(time.Since(start).Seconds())

    if !emit || w.emit == nil {
        return
    }
    monitor.EstimatesEmitted.Inc()
    w.emit(&protocol.BandPowerEstimate{
        ChannelKey: msg.ChannelKey,
        Timestamp:  time.Now().UnixMilli(),
        Raw:        bp.Raw,
        Relative:   bp.Relative,
        Smoothed:   smoothed,
    })
}

// Wait 等待分析协程退出
func (w *Worker) Wait() {
    w.wg.Wait()
}
