package analysis

import (
    "math"
    "time"

    "github.com/sirupsen/logrus"
)

// SmootherConfig 单条分析消息携带的平滑参数
type SmootherConfig struct {
    SmootherWindow int
    PostRateMs     int
    EMATauMs       int
}

// Smoother 两级平滑加限流输出
// 第一级为EMA (时间常数折算系数), 第二级为滑动窗口均值；
// 输出按PostRateMs限流, 被抑制的更新仍推进内部状态
type Smoother struct {
    log    *logrus.Logger
    states map[string]*channelSmoother
    now    func() time.Time
}

type channelSmoother struct {
    windowLen  int
    seeded     bool
    ema        map[string]float64
    windows    map[string]*movingWindow
    lastEmit   time.Time
    hasEmitted bool
}

// movingWindow 定长滑动均值
type movingWindow struct {
    values []float64
    index  int
    filled int
    sum    float64
}

func newMovingWindow(size int) *movingWindow {
    if size < 1 {
        size = 1
    }
    return &movingWindow{values: make([]float64, size)}
}

func (w *movingWindow) push(v float64) float64 {
    if w.filled == len(w.values) {
        w.sum -= w.values[w.index]
    } else {
        w.filled++
    }
    w.values[w.index] = v
    w.sum += v
    w.index = (w.index + 1) % len(w.values)
    return w.sum / float64(w.filled)
}

func NewSmoother(log *logrus.Logger) *Smoother {
    return &Smoother{
        log:    log,
        states: make(map[string]*channelSmoother),
        now:    time.Now,
    }
}

func newChannelSmoother(windowLen int) *channelSmoother {
    return &channelSmoother{
        windowLen: windowLen,
        ema:       make(map[string]float64),
        windows:   make(map[string]*movingWindow),
    }
}

// Update 推进一次平滑, 返回平滑结果及是否到达输出时机
// 首次更新直接以观测值初始化EMA, 不引入冷启动偏差；
// 窗口长度变化时整体重建, 不保留历史平滑状态
func (s *Smoother) Update(key string, relative map[string]float64, cfg SmootherConfig) (map[string]float64, bool) {
    st := s.states[key]
    if st == nil {
        st = newChannelSmoother(cfg.SmootherWindow)
        s.states[key] = st
    } else if st.windowLen != cfg.SmootherWindow {
        s.log.Infof("通道 %s 平滑窗口调整: %d -> %d, 状态重置", key, st.windowLen, cfg.SmootherWindow)
        st = newChannelSmoother(cfg.SmootherWindow)
        s.states[key] = st
    }

    alpha := 1 - math.Exp(-float64(cfg.PostRateMs)/float64(cfg.EMATauMs))
    smoothed := make(map[string]float64, len(relative))
    for band, v := range relative {
        prev, ok := st.ema[band]
        if !st.seeded || !ok {
            st.ema[band] = v
        } else {
            st.ema[band] = alpha*v + (1-alpha)*prev
        }

        w := st.windows[band]
        if w == nil {
            w = newMovingWindow(st.windowLen)
            st.windows[band] = w
        }
        smoothed[band] = w.push(st.ema[band])
    }
    st.seeded = true

    now := s.now()
    if st.hasEmitted && now.Sub(st.lastEmit) < time.Duration(cfg.PostRateMs)*time.Millisecond {
        return smoothed, false
    }
    st.lastEmit = now
    st.hasEmitted = true
    return smoothed, true
}

// Reset 丢弃指定通道的平滑状态
func (s *Smoother) Reset(key string) {
    delete(s.states, key)
}
