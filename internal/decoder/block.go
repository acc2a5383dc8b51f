package decoder

import (
    "github.com/sirupsen/logrus"

    "biosignal-server/internal/monitor"
    "biosignal-server/internal/profile"
    "biosignal-server/pkg/protocol"
)

// BlockDecoder WebSocket块帧解码器
// 每条消息按13字节块切分；消息自包含, 尾部残块直接丢弃不缓冲
type BlockDecoder struct {
    profile *profile.Profile
    log     *logrus.Logger
    clock   Clock
}

func NewBlockDecoder(p *profile.Profile, log *logrus.Logger) *BlockDecoder {
    return &BlockDecoder{
        profile: p,
        log:     log,
        clock:   MonotonicClock(),
    }
}

// Feed 解码一条二进制消息
func (d *BlockDecoder) Feed(data []byte) []protocol.Sample {
    n := len(data) / protocol.BlockSize
    if rem := len(data) % protocol.BlockSize; rem != 0 {
        monitor.FramesDropped.WithLabelValues("websocket", "partial").Inc()
        d.log.Debugf("丢弃尾部残块: %d 字节", rem)
    }
    if n == 0 {
        return nil
    }

    channelCount := d.profile.ChannelCount
    if 1+channelCount*2 > protocol.BlockSize {
        channelCount = (protocol.BlockSize - 1) / 2
    }

    now := d.clock()
    samples := make([]protocol.Sample, 0, n)
    for i := 0; i < n; i++ {
        b := data[i*protocol.BlockSize : (i+1)*protocol.BlockSize]
        channels := make([]int16, channelCount)
        for c := range channels {
            channels[c] = int16BE(b[1+2*c], b[2+2*c])
        }
        samples = append(samples, protocol.Sample{
            Channels:   channels,
            Timestamp:  now,
            Counter:    b[0],
            HasCounter: true,
        })
    }
    return samples
}
