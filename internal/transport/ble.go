package transport

import (
    "context"
    "fmt"
    "strings"
    "time"

    "github.com/sirupsen/logrus"
    "tinygo.org/x/bluetooth"

    "biosignal-server/internal/config"
    "biosignal-server/internal/decoder"
    "biosignal-server/internal/monitor"
    "biosignal-server/internal/profile"
    "biosignal-server/internal/sink"
)

// 设备数据服务与通知特征
var (
    bleServiceUUID, _ = bluetooth.ParseUUID("4fafc201-1fb5-459e-8fcc-c5c9c331914b")
    bleDataUUID, _    = bluetooth.ParseUUID("beb5483e-36e1-4688-b7f5-ea07361b26a8")
)

// BLEConn 低功耗蓝牙连接, 通知回调驱动解码
type BLEConn struct {
    cfg       config.BLEConfig
    profile   *profile.Profile
    decoder   *decoder.NotificationDecoder
    sink      *sink.SampleSink
    log       *logrus.Logger
    adapter   *bluetooth.Adapter
    device    bluetooth.Device
    char      bluetooth.DeviceCharacteristic
    connected bool
}

func NewBLEConn(cfg config.BLEConfig, s *sink.SampleSink, log *logrus.Logger) *BLEConn {
    p := profile.NewProfile()
    return &BLEConn{
        cfg:     cfg,
        profile: p,
        decoder: decoder.NewNotificationDecoder(p, log),
        sink:    s,
        log:     log,
    }
}

func (c *BLEConn) Name() string { return "ble" }

// Connect 扫描并连接设备, 订阅数据特征的通知
func (c *BLEConn) Connect(ctx context.Context) error {
    c.adapter = bluetooth.DefaultAdapter
    if err := c.adapter.Enable(); err != nil {
        return fmt.Errorf("蓝牙适配器启用失败: %w", err)
    }

    result, err := c.scan(ctx)
    if err != nil {
        return err
    }
    c.log.Infof("发现设备: %s (%s)", result.LocalName(), result.Address.String())

    device, err := c.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
    if err != nil {
        return fmt.Errorf("蓝牙连接失败: %w", err)
    }
    c.device = device

    services, err := device.DiscoverServices([]bluetooth.UUID{bleServiceUUID})
    if err != nil || len(services) == 0 {
        device.Disconnect()
        return fmt.Errorf("服务发现失败: %w", err)
    }
    chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{bleDataUUID})
    if err != nil || len(chars) == 0 {
        device.Disconnect()
        return fmt.Errorf("特征发现失败: %w", err)
    }
    c.char = chars[0]

    // 通知回调即解码循环, 由蓝牙栈单线程回调保证顺序
    err = c.char.EnableNotifications(func(buf []byte) {
        monitor.BytesReceived.Add(float64(len(buf)))
        publishSamples(c.sink, c.Name(), c.profile, c.decoder.Feed(buf))
    })
    if err != nil {
        device.Disconnect()
        return fmt.Errorf("订阅通知失败: %w", err)
    }

    c.connected = true
    monitor.ActiveConnections.Inc()
    monitor.TotalConnections.Inc()
    c.log.Infof("蓝牙已连接: %s", c.cfg.DeviceName)
    return nil
}

// scan 按名称前缀扫描目标设备
func (c *BLEConn) scan(ctx context.Context) (bluetooth.ScanResult, error) {
    found := make(chan bluetooth.ScanResult, 1)
    go func() {
        err := c.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
            if !strings.HasPrefix(r.LocalName(), c.cfg.DeviceName) {
                return
            }
            a.StopScan()
            select {
            case found <- r:
            default:
            }
        })
        if err != nil {
            c.log.Errorf("蓝牙扫描错误: %v", err)
        }
    }()

    select {
    case r := <-found:
        return r, nil
    case <-ctx.Done():
        c.adapter.StopScan()
        return bluetooth.ScanResult{}, ctx.Err()
    case <-time.After(c.cfg.ScanTimeout):
        c.adapter.StopScan()
        return bluetooth.ScanResult{}, fmt.Errorf("扫描超时, 未发现设备: %s", c.cfg.DeviceName)
    }
}

// Close 停止通知并断开设备
func (c *BLEConn) Close() error {
    if !c.connected {
        return nil
    }
    c.connected = false

    if err := c.char.EnableNotifications(nil); err != nil {
        c.log.Debugf("停止通知失败: %v", err)
    }
    err := c.device.Disconnect()
    monitor.ActiveConnections.Dec()
    return err
}
