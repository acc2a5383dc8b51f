package transport

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/sirupsen/logrus"
    "go.bug.st/serial"

    "biosignal-server/internal/config"
    "biosignal-server/internal/decoder"
    "biosignal-server/internal/monitor"
    "biosignal-server/internal/profile"
    "biosignal-server/internal/sink"
    "biosignal-server/pkg/protocol"
)

// 打开串口后到发出识别命令的间隔
const identifyDelay = 200 * time.Millisecond

// SerialConn 串口连接
// 阻塞读循环驱动解码, 连接建立后机会式地发送识别与启动命令,
// 不阻塞等待应答 —— 识别应答可能与二进制数据交错到达
type SerialConn struct {
    cfg     config.SerialConfig
    profile *profile.Profile
    decoder *decoder.SyncDecoder
    sink    *sink.SampleSink
    log     *logrus.Logger
    port    serial.Port
    wg      sync.WaitGroup
}

func NewSerialConn(cfg config.SerialConfig, s *sink.SampleSink, log *logrus.Logger) *SerialConn {
    p := profile.NewProfile()
    return &SerialConn{
        cfg:     cfg,
        profile: p,
        decoder: decoder.NewSyncDecoder(p, log),
        sink:    s,
        log:     log,
    }
}

func (c *SerialConn) Name() string { return "serial" }

// Connect 打开串口并启动解码循环
func (c *SerialConn) Connect(ctx context.Context) error {
    mode := &serial.Mode{BaudRate: c.cfg.BaudRate}
    port, err := serial.Open(c.cfg.Port, mode)
    if err != nil {
        return fmt.Errorf("打开串口失败 %s: %w", c.cfg.Port, err)
    }
    c.port = port

    monitor.ActiveConnections.Inc()
    monitor.TotalConnections.Inc()
    c.log.Infof("串口已连接: %s @ %d", c.cfg.Port, c.cfg.BaudRate)

    go c.handshake(ctx)

    c.wg.Add(1)
    go c.readLoop(ctx)
    return nil
}

// handshake 发送识别命令, 延迟后发送启动命令
func (c *SerialConn) handshake(ctx context.Context) {
    select {
    case <-time.After(identifyDelay):
    case <-ctx.Done():
        return
    }
    if _, err := c.port.Write([]byte(protocol.CommandIdentify)); err != nil {
        c.log.Warnf("发送识别命令失败: %v", err)
    }

    select {
    case <-time.After(c.cfg.StartDelay):
    case <-ctx.Done():
        return
    }
    if _, err := c.port.Write([]byte(protocol.CommandStart)); err != nil {
        c.log.Warnf("发送启动命令失败: %v", err)
    }
}

func (c *SerialConn) readLoop(ctx context.Context) {
    defer func() {
        c.wg.Done()
        monitor.ActiveConnections.Dec()
        c.log.Infof("串口解码循环退出: %s", c.cfg.Port)
    }()

    buf := make([]byte, c.cfg.BufferSize)
    for {
        select {
        case <-ctx.Done():
            return
        default:
        }

        n, err := c.port.Read(buf)
        if err != nil {
            select {
            case <-ctx.Done():
            default:
                c.log.Debugf("串口断开: %v", err)
            }
            return
        }
        if n == 0 {
            continue
        }

        monitor.BytesReceived.Add(float64(n))
        publishSamples(c.sink, c.Name(), c.profile, c.decoder.Feed(buf[:n]))
    }
}

// Close 关闭串口, 阻塞中的读取随之返回; 有限时等待循环退出
func (c *SerialConn) Close() error {
    if c.port == nil {
        return nil
    }
    err := c.port.Close()

    done := make(chan struct{})
    go func() {
        c.wg.Wait()
        close(done)
    }()
    select {
    case <-done:
    case <-time.After(closeGrace):
        c.log.Warn("串口解码循环退出超时")
    }
    return err
}
