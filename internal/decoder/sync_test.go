package decoder

import (
    "io"
    "testing"

    "github.com/sirupsen/logrus"

    "biosignal-server/internal/profile"
    "biosignal-server/pkg/protocol"
)

func testLogger() *logrus.Logger {
    log := logrus.New()
    log.SetOutput(io.Discard)
    return log
}

// makePacket 构造一个合法串口包
func makePacket(counter byte, values []int16) []byte {
    pkt := []byte{protocol.SyncByte1, protocol.SyncByte2, counter}
    for _, v := range values {
        pkt = append(pkt, byte(uint16(v)>>8), byte(uint16(v)))
    }
    return append(pkt, protocol.EndByte)
}

// drain 反复空喂直到缓冲中不再有完整包
func drain(d *SyncDecoder) []protocol.Sample {
    var all []protocol.Sample
    for {
        out := d.Feed(nil)
        if len(out) == 0 {
            return all
        }
        all = append(all, out...)
    }
}

func TestSyncDecoder_SinglePacket(t *testing.T) {
    d := NewSyncDecoder(profile.NewProfile(), testLogger())

    samples := d.Feed(makePacket(7, []int16{100, -200, 300}))
    if len(samples) != 1 {
        t.Fatalf("样本数 = %d, 期望 1", len(samples))
    }
    s := samples[0]
    if s.Counter != 7 || !s.HasCounter {
        t.Errorf("计数器 = %d (%v), 期望 7", s.Counter, s.HasCounter)
    }
    want := []int16{100, -200, 300}
    for i, v := range want {
        if s.Channels[i] != v {
            t.Errorf("通道 %d = %d, 期望 %d", i, s.Channels[i], v)
        }
    }
}

func TestSyncDecoder_ChunkingIndependence(t *testing.T) {
    // 同一字节序列逐字节喂入与整体喂入, 产出的样本序列必须一致
    var stream []byte
    stream = append(stream, 0x00, 0x11) // 前置噪声
    for i := 0; i < 5; i++ {
        stream = append(stream, makePacket(byte(i), []int16{int16(i * 10), int16(-i * 10), int16(i)})...)
    }
    stream = append(stream, protocol.SyncByte1) // 尾部残包

    whole := NewSyncDecoder(profile.NewProfile(), testLogger())
    var wholeOut []protocol.Sample
    wholeOut = append(wholeOut, whole.Feed(stream)...)
    wholeOut = append(wholeOut, drain(whole)...)

    byWise := NewSyncDecoder(profile.NewProfile(), testLogger())
    var byteOut []protocol.Sample
    for _, b := range stream {
        byteOut = append(byteOut, byWise.Feed([]byte{b})...)
    }
    byteOut = append(byteOut, drain(byWise)...)

    if len(wholeOut) != len(byteOut) {
        t.Fatalf("样本数不一致: 整体 %d, 逐字节 %d", len(wholeOut), len(byteOut))
    }
    for i := range wholeOut {
        if wholeOut[i].Counter != byteOut[i].Counter {
            t.Errorf("样本 %d 计数器不一致: %d vs %d", i, wholeOut[i].Counter, byteOut[i].Counter)
        }
        for c := range wholeOut[i].Channels {
            if wholeOut[i].Channels[c] != byteOut[i].Channels[c] {
                t.Errorf("样本 %d 通道 %d 不一致: %d vs %d",
                    i, c, wholeOut[i].Channels[c], byteOut[i].Channels[c])
            }
        }
    }
}

func TestSyncDecoder_FalseSyncRecovery(t *testing.T) {
    // 伪同步对后紧跟真实有效包, 应恰好产出真实包的一个样本
    d := NewSyncDecoder(profile.NewProfile(), testLogger())

    var stream []byte
    stream = append(stream, protocol.SyncByte1, protocol.SyncByte2,
        0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF) // 结束符错误
    stream = append(stream, makePacket(42, []int16{1, 2, 3})...)

    var samples []protocol.Sample
    samples = append(samples, d.Feed(stream)...)
    samples = append(samples, drain(d)...)

    if len(samples) != 1 {
        t.Fatalf("样本数 = %d, 期望 1", len(samples))
    }
    if samples[0].Counter != 42 {
        t.Errorf("计数器 = %d, 期望 42 (来自真实包)", samples[0].Counter)
    }
}

func TestSyncDecoder_OnePacketPerFeed(t *testing.T) {
    d := NewSyncDecoder(profile.NewProfile(), testLogger())

    var stream []byte
    stream = append(stream, makePacket(1, []int16{1, 1, 1})...)
    stream = append(stream, makePacket(2, []int16{2, 2, 2})...)

    if got := len(d.Feed(stream)); got != 1 {
        t.Fatalf("首次Feed样本数 = %d, 期望 1", got)
    }
    second := d.Feed(nil)
    if len(second) != 1 || second[0].Counter != 2 {
        t.Fatalf("第二个包未在后续Feed中取出: %+v", second)
    }
}

func TestSyncDecoder_Identification(t *testing.T) {
    tests := []struct {
        name         string
        text         string
        channelCount int
        sampleRate   int
        adcBits      int
    }{
        {"UNO-R4设备", "UNO-R4 ready", 6, 500, 14},
        {"NPG-LITE设备", "NPG-LITE", 3, 500, 16},
        {"小写识别", "npg-lite ok", 3, 500, 16},
    }

    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            p := profile.NewProfile()
            d := NewSyncDecoder(p, testLogger())

            d.Feed([]byte(tt.text))

            if p.ChannelCount != tt.channelCount {
                t.Errorf("通道数 = %d, 期望 %d", p.ChannelCount, tt.channelCount)
            }
            if p.SampleRateHz != tt.sampleRate {
                t.Errorf("采样率 = %d, 期望 %d", p.SampleRateHz, tt.sampleRate)
            }
            if p.ADCBits != tt.adcBits {
                t.Errorf("ADC位数 = %d, 期望 %d", p.ADCBits, tt.adcBits)
            }
            if p.PacketSize() != protocol.SerialPacketSize(tt.channelCount) {
                t.Errorf("包长度 = %d, 未随通道数重算", p.PacketSize())
            }
        })
    }
}

func TestSyncDecoder_SixChannelPacket(t *testing.T) {
    // 识别为6通道后应按新包长解码
    p := profile.NewProfile()
    d := NewSyncDecoder(p, testLogger())
    d.Feed([]byte("UNO-R4 ready"))

    values := []int16{10, 20, 30, 40, 50, 60}
    samples := d.Feed(makePacket(9, values))
    if len(samples) != 1 {
        t.Fatalf("样本数 = %d, 期望 1", len(samples))
    }
    if len(samples[0].Channels) != 6 {
        t.Fatalf("通道数 = %d, 期望 6", len(samples[0].Channels))
    }
    for i, v := range values {
        if samples[0].Channels[i] != v {
            t.Errorf("通道 %d = %d, 期望 %d", i, samples[0].Channels[i], v)
        }
    }
}

func TestSyncDecoder_BufferTrim(t *testing.T) {
    d := NewSyncDecoder(profile.NewProfile(), testLogger())

    // 无同步标记的垃圾数据超过上限后应截断到最近部分
    junk := make([]byte, 1200)
    for i := range junk {
        junk[i] = 0xEE
    }
    d.Feed(junk)

    if len(d.buffer) > trimBufferSize {
        t.Errorf("缓冲长度 = %d, 期望截断到 %d 以内", len(d.buffer), trimBufferSize)
    }

    // 截断后仍可恢复解码
    samples := d.Feed(makePacket(3, []int16{5, 6, 7}))
    if len(samples) != 1 {
        t.Fatalf("截断后解码失败: 样本数 = %d", len(samples))
    }
}
