package protocol

// Sample 单次采样数据，由解码器在帧校验通过后生成，生成后不再修改
type Sample struct {
    Channels   []int16 `json:"channels"`
    Timestamp  int64   `json:"timestamp"` // 单调毫秒
    Counter    uint8   `json:"counter,omitempty"`
    HasCounter bool    `json:"has_counter,omitempty"`
}

// BandPowerEstimate 频段功率估计结果
type BandPowerEstimate struct {
    ChannelKey string             `json:"channel_key"`
    Timestamp  int64              `json:"timestamp"`
    Raw        map[string]float64 `json:"raw_band_powers"`
    Relative   map[string]float64 `json:"relative_band_powers"`
    Smoothed   map[string]float64 `json:"smoothed_band_powers"`
}

// 协议常量
const (
    // 串口同步帧
    SyncByte1        = 0xC7
    SyncByte2        = 0x7C
    EndByte          = 0x01
    SerialHeaderSize = 3 // sync1 + sync2 + counter

    // BLE通知帧: 每条通知固定10个子帧, 每个子帧7字节
    NotificationFrameSize  = 7
    NotificationBatchCount = 10

    // WebSocket块帧
    BlockSize = 13

    // 握手命令 (仅串口)
    CommandIdentify = "WHORU\n"
    CommandStart    = "START\n"
)

// SerialPacketSize 串口包总长度: 3字节头 + 每通道2字节 + 1字节结束符
func SerialPacketSize(channelCount int) int {
    return SerialHeaderSize + channelCount*2 + 1
}
