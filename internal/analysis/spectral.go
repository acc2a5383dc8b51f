package analysis

import (
    "math"
    "math/cmplx"

    "github.com/sirupsen/logrus"
    "gonum.org/v1/gonum/dsp/fourier"
)

// 谱估计算法
const (
    ModeSimple = "simple"
    ModeWelch  = "welch"
)

// Welch法分段上限, 段间50%重叠
const maxWelchSegment = 256

// SpectralConfig 单条分析消息携带的谱估计参数
type SpectralConfig struct {
    SampleRateHz       int
    FFTSize            int
    SamplesPerEstimate int
    Mode               string
}

// BandPowers 一次谱估计的输出
type BandPowers struct {
    Raw      map[string]float64
    Relative map[string]float64
}

// Engine 流式谱估计器
// 每个逻辑通道一份环形缓冲与FFT状态, 状态仅由分析协程访问
type Engine struct {
    log    *logrus.Logger
    states map[string]*channelBuffer
}

type channelBuffer struct {
    ring          []float64
    writeIndex    int
    sinceEstimate int
    sampleRate    int

    fft     *fourier.FFT
    hann    []float64
    winBuf  []float64
    coeffs  []complex128
    scratch []float64

    // Welch分段状态
    segLen    int
    segFFT    *fourier.FFT
    segHann   []float64
    segBuf    []float64
    segCoeffs []complex128
}

func NewEngine(log *logrus.Logger) *Engine {
    return &Engine{
        log:    log,
        states: make(map[string]*channelBuffer),
    }
}

func newChannelBuffer(cfg SpectralConfig) *channelBuffer {
    n := cfg.FFTSize
    segLen := n
    if segLen > maxWelchSegment {
        segLen = maxWelchSegment
    }

    st := &channelBuffer{
        ring:       make([]float64, n),
        sampleRate: cfg.SampleRateHz,
        fft:        fourier.NewFFT(n),
        hann:       hannWindow(n),
        winBuf:     make([]float64, n),
        coeffs:     make([]complex128, n/2+1),
        scratch:    make([]float64, n),
        segLen:     segLen,
        segHann:    hannWindow(segLen),
        segBuf:     make([]float64, segLen),
        segCoeffs:  make([]complex128, segLen/2+1),
    }
    if segLen == n {
        st.segFFT = st.fft
    } else {
        st.segFFT = fourier.NewFFT(segLen)
    }
    return st
}

// Ingest 写入一个采样值, 达到估计间隔时返回频段功率
// FFT长度或采样率变化时重建该通道状态, 旧缓冲不沿用；
// reconfigured 为真表示发生了重建, 调用方需同步重置平滑状态
func (e *Engine) Ingest(key string, value float64, cfg SpectralConfig) (bp *BandPowers, reconfigured bool) {
    st := e.states[key]
    if st == nil || len(st.ring) != cfg.FFTSize || st.sampleRate != cfg.SampleRateHz {
        if st != nil {
            e.log.Infof("通道 %s 重新配置: fft=%d, 采样率=%dHz", key, cfg.FFTSize, cfg.SampleRateHz)
            reconfigured = true
        }
        st = newChannelBuffer(cfg)
        e.states[key] = st
    }

    st.ring[st.writeIndex] = value
    st.writeIndex = (st.writeIndex + 1) % len(st.ring)
    st.sinceEstimate++
    if st.sinceEstimate < cfg.SamplesPerEstimate {
        return nil, reconfigured
    }
    st.sinceEstimate = 0

    samples := st.materialize()
    var raw map[string]float64
    if cfg.Mode == ModeWelch {
        raw = st.welchBandPowers(samples)
    } else {
        raw = st.simpleBandPowers(samples)
    }
    return &BandPowers{Raw: raw, Relative: relativePowers(raw)}, reconfigured
}

// Reset 丢弃指定通道的缓冲状态
func (e *Engine) Reset(key string) {
    delete(e.states, key)
}

// materialize 按时间顺序 (旧到新) 展开环形缓冲
func (st *channelBuffer) materialize() []float64 {
    n := len(st.ring)
    for i := 0; i < n; i++ {
        st.scratch[i] = st.ring[(st.writeIndex+i)%n]
    }
    return st.scratch
}

// simpleBandPowers 单次加窗FFT的频段功率
func (st *channelBuffer) simpleBandPowers(samples []float64) map[string]float64 {
    for i, v := range samples {
        st.winBuf[i] = v * st.hann[i]
    }
    coeffs := st.fft.Coefficients(st.coeffs, st.winBuf)

    rate := float64(st.sampleRate)
    return accumulateBands(coeffs, func(i int) float64 {
        return st.fft.Freq(i) * rate
    })
}

// welchBandPowers 重叠分段周期图平均, 降低估计方差
func (st *channelBuffer) welchBandPowers(samples []float64) map[string]float64 {
    step := st.segLen / 2
    avg := make([]float64, st.segLen/2+1)
    segments := 0

    for start := 0; start+st.segLen <= len(samples); start += step {
        for i := 0; i < st.segLen; i++ {
            st.segBuf[i] = samples[start+i] * st.segHann[i]
        }
        coeffs := st.segFFT.Coefficients(st.segCoeffs, st.segBuf)
        for i, c := range coeffs {
            m := cmplx.Abs(c)
            avg[i] += m * m
        }
        segments++
    }
    if segments == 0 {
        return st.simpleBandPowers(samples)
    }

    rate := float64(st.sampleRate)
    powers := newBandMap()
    for i, p := range avg {
        addToBand(powers, st.segFFT.Freq(i)*rate, p/float64(segments))
    }
    return powers
}

// accumulateBands 把各频点功率按频率归入命名频段
func accumulateBands(coeffs []complex128, freqOf func(int) float64) map[string]float64 {
    powers := newBandMap()
    for i, c := range coeffs {
        m := cmplx.Abs(c)
        addToBand(powers, freqOf(i), m*m)
    }
    return powers
}

func newBandMap() map[string]float64 {
    m := make(map[string]float64, len(EEGBands))
    for _, b := range EEGBands {
        m[b.Name] = 0
    }
    return m
}

func addToBand(powers map[string]float64, freq, power float64) {
    for _, b := range EEGBands {
        if freq >= b.Low && freq < b.High {
            powers[b.Name] += power
            return
        }
    }
}

// relativePowers 相对功率 = 各频段功率 / 总功率, 总功率为0时全部记0
func relativePowers(raw map[string]float64) map[string]float64 {
    var total float64
    for _, p := range raw {
        total += p
    }
    rel := make(map[string]float64, len(raw))
    for name, p := range raw {
        if total == 0 {
            rel[name] = 0
        } else {
            rel[name] = p / total
        }
    }
    return rel
}

func hannWindow(n int) []float64 {
    w := make([]float64, n)
    for i := range w {
        w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
    }
    return w
}
