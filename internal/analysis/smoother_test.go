package analysis

import (
    "math"
    "testing"
    "time"
)

var smootherCfg = SmootherConfig{
    SmootherWindow: 3,
    PostRateMs:     200,
    EMATauMs:       1000,
}

// fakeClock 可手动推进的时钟
type fakeClock struct {
    t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSmoother() (*Smoother, *fakeClock) {
    s := NewSmoother(testLogger())
    clock := &fakeClock{t: time.Unix(1000, 0)}
    s.now = clock.now
    return s, clock
}

func rel(alpha float64) map[string]float64 {
    return map[string]float64{"alpha": alpha, "beta": 1 - alpha}
}

func TestSmoother_FirstUpdateSeedsAndEmits(t *testing.T) {
    s, _ := newTestSmoother()

    smoothed, emit := s.Update("ch0", rel(0.6), smootherCfg)
    if !emit {
        t.Error("首次更新应立即输出")
    }
    // 首次观测直接作为EMA种子, 窗口仅含一个值
    if math.Abs(smoothed["alpha"]-0.6) > 1e-12 {
        t.Errorf("首次平滑值 = %f, 期望 0.6", smoothed["alpha"])
    }
}

func TestSmoother_ThrottleSuppressesButAdvancesState(t *testing.T) {
    s, clock := newTestSmoother()

    s.Update("ch0", rel(0.6), smootherCfg)

    // 间隔不足: 抑制输出
    clock.advance(100 * time.Millisecond)
    smoothed2, emit := s.Update("ch0", rel(0.2), smootherCfg)
    if emit {
        t.Error("间隔100ms < 200ms, 不应输出")
    }

    // 被抑制的更新仍须推进EMA
    alpha := 1 - math.Exp(-200.0/1000.0)
    ema2 := alpha*0.2 + (1-alpha)*0.6
    wantSmoothed2 := (0.6 + ema2) / 2
    if math.Abs(smoothed2["alpha"]-wantSmoothed2) > 1e-12 {
        t.Errorf("抑制期间平滑值 = %f, 期望 %f", smoothed2["alpha"], wantSmoothed2)
    }

    // 累计间隔到达后输出, 且状态反映了全部更新
    clock.advance(150 * time.Millisecond)
    smoothed3, emit := s.Update("ch0", rel(0.2), smootherCfg)
    if !emit {
        t.Error("距上次输出250ms ≥ 200ms, 应输出")
    }
    ema3 := alpha*0.2 + (1-alpha)*ema2
    wantSmoothed3 := (0.6 + ema2 + ema3) / 3
    if math.Abs(smoothed3["alpha"]-wantSmoothed3) > 1e-12 {
        t.Errorf("平滑值 = %f, 期望 %f (须包含被抑制的更新)", smoothed3["alpha"], wantSmoothed3)
    }
}

func TestSmoother_ExactIntervalEmits(t *testing.T) {
    s, clock := newTestSmoother()

    s.Update("ch0", rel(0.5), smootherCfg)
    clock.advance(200 * time.Millisecond)
    if _, emit := s.Update("ch0", rel(0.5), smootherCfg); !emit {
        t.Error("恰好到达间隔应输出")
    }
}

func TestSmoother_WindowChangeResetsState(t *testing.T) {
    s, clock := newTestSmoother()

    s.Update("ch0", rel(0.9), smootherCfg)
    clock.advance(time.Second)
    s.Update("ch0", rel(0.9), smootherCfg)
    clock.advance(time.Second)

    // 窗口长度变化: 全量重建, 之前的0.9不得残留
    cfg := smootherCfg
    cfg.SmootherWindow = 5
    smoothed, _ := s.Update("ch0", rel(0.1), cfg)
    if math.Abs(smoothed["alpha"]-0.1) > 1e-12 {
        t.Errorf("窗口变化后平滑值 = %f, 期望 0.1 (无历史影响)", smoothed["alpha"])
    }
}

func TestSmoother_PerChannelThrottle(t *testing.T) {
    s, _ := newTestSmoother()

    // 限流按通道独立计
    if _, emit := s.Update("ch0", rel(0.5), smootherCfg); !emit {
        t.Error("ch0 首次更新应输出")
    }
    if _, emit := s.Update("ch1", rel(0.5), smootherCfg); !emit {
        t.Error("ch1 首次更新应输出")
    }
    if _, emit := s.Update("ch0", rel(0.5), smootherCfg); emit {
        t.Error("ch0 同一时刻的第二次更新应被抑制")
    }
}

func TestSmoother_ResetDropsChannel(t *testing.T) {
    s, _ := newTestSmoother()

    s.Update("ch0", rel(0.9), smootherCfg)
    s.Reset("ch0")

    smoothed, emit := s.Update("ch0", rel(0.1), smootherCfg)
    if !emit {
        t.Error("重置后首次更新应输出")
    }
    if math.Abs(smoothed["alpha"]-0.1) > 1e-12 {
        t.Errorf("重置后平滑值 = %f, 期望 0.1", smoothed["alpha"])
    }
}
