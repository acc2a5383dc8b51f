package decoder

import (
    "time"

    "biosignal-server/pkg/protocol"
)

// Decoder 把传输层原始字节转换为校验后的采样序列
// 实现不得因畸形输入崩溃或报错，残缺数据要么缓冲要么丢弃
type Decoder interface {
    Feed(data []byte) []protocol.Sample
}

// Clock 单调毫秒时钟，测试时可替换
type Clock func() int64

// MonotonicClock 以创建时刻为零点的单调时钟
func MonotonicClock() Clock {
    start := time.Now()
    return func() int64 {
        return time.Since(start).Milliseconds()
    }
}

// int16BE 大端拼接16位有符号数
func int16BE(hi, lo byte) int16 {
    return int16(uint16(hi)<<8 | uint16(lo))
}
