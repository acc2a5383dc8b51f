package decoder

import (
    "github.com/sirupsen/logrus"

    "biosignal-server/internal/monitor"
    "biosignal-server/internal/profile"
    "biosignal-server/pkg/protocol"
)

// NotificationDecoder BLE通知帧解码器，仅用于固定3通道设备类
// 每条通知固定为10个7字节子帧，BLE传输保证通知边界对齐，
// 长度不符的通知整条丢弃，不做残包拼接
type NotificationDecoder struct {
    profile *profile.Profile
    log     *logrus.Logger
    clock   Clock
}

func NewNotificationDecoder(p *profile.Profile, log *logrus.Logger) *NotificationDecoder {
    return &NotificationDecoder{
        profile: p,
        log:     log,
        clock:   MonotonicClock(),
    }
}

// Feed 解码一条通知载荷
func (d *NotificationDecoder) Feed(data []byte) []protocol.Sample {
    expected := protocol.NotificationFrameSize * protocol.NotificationBatchCount
    if len(data) != expected {
        monitor.FramesDropped.WithLabelValues("ble", "length").Inc()
        d.log.Debugf("通知长度错误: %d 字节, 期望 %d, 整条丢弃", len(data), expected)
        return nil
    }

    now := d.clock()
    samples := make([]protocol.Sample, 0, protocol.NotificationBatchCount)
    for i := 0; i < len(data); i += protocol.NotificationFrameSize {
        f := data[i : i+protocol.NotificationFrameSize]
        samples = append(samples, protocol.Sample{
            Channels: []int16{
                int16BE(f[1], f[2]),
                int16BE(f[3], f[4]),
                int16BE(f[5], f[6]),
            },
            Timestamp:  now,
            Counter:    f[0],
            HasCounter: true,
        })
    }
    return samples
}
