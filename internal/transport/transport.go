package transport

import (
    "context"
    "time"

    "biosignal-server/internal/monitor"
    "biosignal-server/internal/profile"
    "biosignal-server/internal/sink"
    "biosignal-server/pkg/protocol"
)

// 连接关闭时等待解码循环退出的上限
const closeGrace = 3 * time.Second

// Connection 一路设备连接
// 解码循环由各传输层自己的事件源驱动, 相互独立, 可通过Context取消
type Connection interface {
    Name() string
    Connect(ctx context.Context) error
    Close() error
}

// publishSamples 把解码结果推入分发器
// 采样率在解码循环内读取, 与设备识别更新处于同一goroutine
func publishSamples(s *sink.SampleSink, name string, p *profile.Profile, samples []protocol.Sample) {
    for _, sample := range samples {
        s.Publish(sink.Envelope{
            ChannelKey:   name,
            SampleRateHz: p.SampleRateHz,
            Sample:       sample,
        })
        monitor.SamplesDecoded.WithLabelValues(name).Inc()
    }
}
