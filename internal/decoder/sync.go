package decoder

import (
    "strings"

    "github.com/sirupsen/logrus"

    "biosignal-server/internal/monitor"
    "biosignal-server/internal/profile"
    "biosignal-server/pkg/protocol"
)

const (
    // 缓冲上限: 同步长期丢失时截断到最近部分, 防止无界增长
    maxBufferSize  = 1000
    trimBufferSize = 500
)

// SyncDecoder 串口同步字节帧解码器
// 维护内部字节缓冲，逐字节扫描同步标记并支持断流重同步；
// 同时从字节流中提取文本握手应答，驱动设备识别
type SyncDecoder struct {
    profile  *profile.Profile
    log      *logrus.Logger
    clock    Clock
    buffer   []byte
    lastText string
}

func NewSyncDecoder(p *profile.Profile, log *logrus.Logger) *SyncDecoder {
    return &SyncDecoder{
        profile: p,
        log:     log,
        clock:   MonotonicClock(),
    }
}

// Feed 追加字节并尝试取出一个完整包
// 每次调用最多消费一个包，余下数据留待下次调用，
// 保证并发追加写入时缓冲状态一致
func (d *SyncDecoder) Feed(data []byte) []protocol.Sample {
    d.detectHandshake(data)
    d.buffer = append(d.buffer, data...)

    packetSize := d.profile.PacketSize()
    for i := 0; i+1 < len(d.buffer); i++ {
        if d.buffer[i] != protocol.SyncByte1 || d.buffer[i+1] != protocol.SyncByte2 {
            continue
        }
        if i+packetSize > len(d.buffer) {
            // 包未到齐, 等待后续数据
            break
        }
        if d.buffer[i+packetSize-1] != protocol.EndByte {
            // 伪同步位置, 越过后继续扫描
            monitor.FramesDropped.WithLabelValues("serial", "endbyte").Inc()
            continue
        }

        sample := d.parsePacket(d.buffer[i : i+packetSize])
        d.buffer = append(d.buffer[:0], d.buffer[i+packetSize:]...)
        return []protocol.Sample{sample}
    }

    if len(d.buffer) > maxBufferSize {
        monitor.FramesDropped.WithLabelValues("serial", "overflow").Inc()
        d.log.Warnf("同步丢失, 缓冲截断: %d -> %d 字节", len(d.buffer), trimBufferSize)
        d.buffer = append(d.buffer[:0], d.buffer[len(d.buffer)-trimBufferSize:]...)
    }
    return nil
}

// parsePacket 按固定偏移取出各通道大端16位值
func (d *SyncDecoder) parsePacket(pkt []byte) protocol.Sample {
    channels := make([]int16, d.profile.ChannelCount)
    for c := range channels {
        channels[c] = int16BE(pkt[protocol.SerialHeaderSize+2*c], pkt[protocol.SerialHeaderSize+2*c+1])
    }
    return protocol.Sample{
        Channels:   channels,
        Timestamp:  d.clock(),
        Counter:    pkt[2],
        HasCounter: true,
    }
}

// detectHandshake 从本次数据中提取可打印文本并尝试设备识别
// 识别可能与二进制数据交错到达, 文本内容与上次相同时不重复处理
func (d *SyncDecoder) detectHandshake(data []byte) {
    text := printableText(data)
    if text == "" || text == d.lastText {
        return
    }
    d.lastText = text
    d.log.Infof("设备应答: %s", text)

    if d.profile.ApplyIdentifier(text) {
        d.log.Infof("设备识别成功: %d通道 @ %dHz, %d位ADC",
            d.profile.ChannelCount,
            d.profile.SampleRateHz,
            d.profile.ADCBits,
        )
    }
}

// printableText 取出字节流中的可打印ASCII片段
func printableText(data []byte) string {
    var b strings.Builder
    for _, c := range data {
        if c >= 0x20 && c <= 0x7E {
            b.WriteByte(c)
        }
    }
    return strings.TrimSpace(b.String())
}
