package main

import (
    "flag"
    "fmt"
    "log"
    "math"
    "net/http"
    "time"

    "github.com/gorilla/websocket"
)

// 模拟设备: 以WebSocket服务方身份按块帧格式推送合成信号
// 用于在没有硬件的情况下联调采集与分析链路

const blockSize = 13

var upgrader = websocket.Upgrader{
    CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
    addr := flag.String("addr", ":81", "监听地址")
    rate := flag.Int("rate", 500, "采样率 (Hz)")
    channels := flag.Int("channels", 3, "通道数 (最多6)")
    freq := flag.Float64("freq", 10.0, "正弦频率 (Hz)")
    amp := flag.Float64("amp", 8000, "幅度")
    batch := flag.Int("batch", 10, "每条消息的块数")
    flag.Parse()

    if *channels > 6 {
        *channels = 6
    }

    http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
        conn, err := upgrader.Upgrade(w, r, nil)
        if err != nil {
            log.Printf("升级失败: %v", err)
            return
        }
        defer conn.Close()
        log.Printf("客户端接入: %s", conn.RemoteAddr())

        stream(conn, *rate, *channels, *freq, *amp, *batch)
    })

    fmt.Printf("模拟设备启动: ws://%s (%d通道 @ %dHz, %.1fHz正弦)\n",
        *addr, *channels, *rate, *freq)
    log.Fatal(http.ListenAndServe(*addr, nil))
}

// stream 按采样率节拍发送块帧消息
func stream(conn *websocket.Conn, rate, channels int, freq, amp float64, batch int) {
    interval := time.Duration(batch) * time.Second / time.Duration(rate)
    ticker := time.NewTicker(interval)
    defer ticker.Stop()

    var counter uint8
    var n int64

    for range ticker.C {
        msg := make([]byte, 0, batch*blockSize)
        for i := 0; i < batch; i++ {
            msg = append(msg, makeBlock(counter, channels, rate, freq, amp, n)...)
            counter++
            n++
        }
        if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
            log.Printf("发送失败: %v", err)
            return
        }
    }
}

// makeBlock 构造一个13字节块: 计数器 + 各通道大端16位值 + 保留填充
func makeBlock(counter uint8, channels, rate int, freq, amp float64, n int64) []byte {
    block := make([]byte, blockSize)
    block[0] = counter

    t := float64(n) / float64(rate)
    for c := 0; c < channels; c++ {
        // 各通道同源正弦, 相位按通道错开便于区分
        phase := 2 * math.Pi * float64(c) / float64(channels)
        v := int16(amp * math.Sin(2*math.Pi*freq*t+phase))
        block[1+2*c] = byte(uint16(v) >> 8)
        block[2+2*c] = byte(uint16(v))
    }
    return block
}
