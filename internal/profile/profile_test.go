package profile

import (
    "testing"

    "biosignal-server/pkg/protocol"
)

func TestProfile_ApplyIdentifier(t *testing.T) {
    tests := []struct {
        name         string
        text         string
        wantApplied  bool
        channelCount int
        sampleRate   int
        adcBits      int
    }{
        {"UNO-R4识别", "UNO-R4 ready", true, 6, 500, 14},
        {"NPG-LITE识别", "NPG-LITE", true, 3, 500, 16},
        {"大小写不敏感", "uno-r4 READY", true, 6, 500, 14},
        {"未知设备", "SOMETHING-ELSE", false, 3, 500, 16},
    }

    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            p := NewProfile()
            if got := p.ApplyIdentifier(tt.text); got != tt.wantApplied {
                t.Errorf("ApplyIdentifier() = %v, 期望 %v", got, tt.wantApplied)
            }
            if p.ChannelCount != tt.channelCount || p.SampleRateHz != tt.sampleRate || p.ADCBits != tt.adcBits {
                t.Errorf("配置 = %d/%d/%d, 期望 %d/%d/%d",
                    p.ChannelCount, p.SampleRateHz, p.ADCBits,
                    tt.channelCount, tt.sampleRate, tt.adcBits)
            }
        })
    }
}

func TestProfile_IdempotentIdentification(t *testing.T) {
    p := NewProfile()

    if !p.ApplyIdentifier("UNO-R4 ready") {
        t.Fatal("首次识别应生效")
    }
    // 同一识别串重复出现为空操作
    if p.ApplyIdentifier("UNO-R4 ready") {
        t.Error("重复识别应为空操作")
    }
    if p.ApplyIdentifier("board: uno-r4 v2") {
        t.Error("相同识别串的不同文本也应为空操作")
    }

    // 切换到另一设备仍可生效
    if !p.ApplyIdentifier("NPG-LITE") {
        t.Error("切换设备识别应生效")
    }
    if p.ChannelCount != 3 {
        t.Errorf("通道数 = %d, 期望 3", p.ChannelCount)
    }
}

func TestProfile_PacketSizeRecompute(t *testing.T) {
    p := NewProfile()
    if p.PacketSize() != protocol.SerialPacketSize(3) {
        t.Fatalf("默认包长 = %d", p.PacketSize())
    }

    p.ApplyIdentifier("UNO-R4")
    if p.PacketSize() != protocol.SerialPacketSize(6) {
        t.Errorf("识别后包长 = %d, 期望 %d", p.PacketSize(), protocol.SerialPacketSize(6))
    }
}

func TestProfile_ManualModeBlocksAuto(t *testing.T) {
    p := NewProfile()
    p.ForceMode(ModeManualNPG)

    if p.ApplyIdentifier("UNO-R4") {
        t.Error("手动模式下自动识别应被忽略")
    }
    if p.ChannelCount != 3 {
        t.Errorf("通道数 = %d, 期望保持 3", p.ChannelCount)
    }
}
