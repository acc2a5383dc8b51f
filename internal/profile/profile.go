package profile

import (
    "strings"

    "biosignal-server/pkg/protocol"
)

// Mode 设备识别模式
type Mode int

const (
    ModeAuto      Mode = iota // 根据握手应答自动识别
    ModeManualUNO             // 手动指定 UNO-R4 类设备
    ModeManualNPG             // 手动指定 NPG 类设备
)

// Profile 设备配置，归属单个连接，仅由该连接的解码循环修改
type Profile struct {
    ChannelCount int
    SampleRateHz int
    ADCBits      int
    Mode         Mode

    packetSize     int
    lastIdentifier string
}

// deviceEntry 识别字符串对应的设备参数
type deviceEntry struct {
    Identifier   string
    ChannelCount int
    SampleRateHz int
    ADCBits      int
}

// deviceTable 已知设备识别表，识别时大小写不敏感
var deviceTable = []deviceEntry{
    {"UNO-R4", 6, 500, 14},
    {"NPG-LITE", 3, 500, 16},
}

// NewProfile 返回默认配置 (3通道 500Hz 16位)
func NewProfile() *Profile {
    p := &Profile{
        ChannelCount: 3,
        SampleRateHz: 500,
        ADCBits:      16,
        Mode:         ModeAuto,
    }
    p.recompute()
    return p
}

// recompute 重算包长度，必须与通道数修改在同一步完成
func (p *Profile) recompute() {
    p.packetSize = protocol.SerialPacketSize(p.ChannelCount)
}

// PacketSize 当前串口包总长度
func (p *Profile) PacketSize() int {
    return p.packetSize
}

// ApplyIdentifier 根据握手应答文本更新设备参数
// 重复出现同一识别串为幂等操作；手动模式下忽略自动识别
func (p *Profile) ApplyIdentifier(text string) bool {
    if p.Mode != ModeAuto {
        return false
    }

    upper := strings.ToUpper(text)
    for _, d := range deviceTable {
        if !strings.Contains(upper, d.Identifier) {
            continue
        }
        if p.lastIdentifier == d.Identifier {
            return false
        }
        p.lastIdentifier = d.Identifier
        p.ChannelCount = d.ChannelCount
        p.SampleRateHz = d.SampleRateHz
        p.ADCBits = d.ADCBits
        p.recompute()
        return true
    }
    return false
}

// ForceMode 用户强制指定设备类型
func (p *Profile) ForceMode(mode Mode) {
    p.Mode = mode
    switch mode {
    case ModeManualUNO:
        p.ChannelCount = 6
        p.SampleRateHz = 500
        p.ADCBits = 14
    case ModeManualNPG:
        p.ChannelCount = 3
        p.SampleRateHz = 500
        p.ADCBits = 16
    default:
        p.lastIdentifier = ""
    }
    p.recompute()
}
