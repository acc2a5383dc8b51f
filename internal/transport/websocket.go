package transport

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/gorilla/websocket"
    "github.com/sirupsen/logrus"

    "biosignal-server/internal/config"
    "biosignal-server/internal/decoder"
    "biosignal-server/internal/monitor"
    "biosignal-server/internal/profile"
    "biosignal-server/internal/sink"
)

// WSConn WebSocket连接, 消息事件驱动解码
// 设备端为服务方 (板载WiFi热点), 本端拨号订阅二进制流
type WSConn struct {
    cfg     config.WebSocketConfig
    profile *profile.Profile
    decoder *decoder.BlockDecoder
    sink    *sink.SampleSink
    log     *logrus.Logger
    conn    *websocket.Conn
    wg      sync.WaitGroup
}

func NewWSConn(cfg config.WebSocketConfig, s *sink.SampleSink, log *logrus.Logger) *WSConn {
    p := profile.NewProfile()
    return &WSConn{
        cfg:     cfg,
        profile: p,
        decoder: decoder.NewBlockDecoder(p, log),
        sink:    s,
        log:     log,
    }
}

func (c *WSConn) Name() string { return "websocket" }

// Connect 建立WebSocket连接并启动读循环
func (c *WSConn) Connect(ctx context.Context) error {
    dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
    conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
    if err != nil {
        return fmt.Errorf("WebSocket连接失败 %s: %w", c.cfg.URL, err)
    }
    c.conn = conn

    monitor.ActiveConnections.Inc()
    monitor.TotalConnections.Inc()
    c.log.Infof("WebSocket已连接: %s", c.cfg.URL)

    c.wg.Add(1)
    go c.readLoop(ctx)
    return nil
}

func (c *WSConn) readLoop(ctx context.Context) {
    defer func() {
        c.wg.Done()
        monitor.ActiveConnections.Dec()
        c.log.Infof("WebSocket解码循环退出: %s", c.cfg.URL)
    }()

    for {
        select {
        case <-ctx.Done():
            return
        default:
        }

        msgType, data, err := c.conn.ReadMessage()
        if err != nil {
            select {
            case <-ctx.Done():
            default:
                c.log.Debugf("WebSocket断开: %v", err)
            }
            return
        }
        if msgType != websocket.BinaryMessage || len(data) == 0 {
            continue
        }

        monitor.BytesReceived.Add(float64(len(data)))
        publishSamples(c.sink, c.Name(), c.profile, c.decoder.Feed(data))
    }
}

// Close 优雅关闭连接, 有限时等待循环退出
func (c *WSConn) Close() error {
    if c.conn == nil {
        return nil
    }

    deadline := time.Now().Add(time.Second)
    c.conn.WriteControl(
        websocket.CloseMessage,
        websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
        deadline,
    )
    err := c.conn.Close()

    done := make(chan struct{})
    go func() {
        c.wg.Wait()
        close(done)
    }()
    select {
    case <-done:
    case <-time.After(closeGrace):
        c.log.Warn("WebSocket解码循环退出超时")
    }
    return err
}
