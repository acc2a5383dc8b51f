package analysis

// Band 命名频段
type Band struct {
    Name string
    Low  float64 // Hz, 含
    High float64 // Hz, 不含
}

// EEGBands 标准EEG频段划分
var EEGBands = []Band{
    {"delta", 0.5, 4},
    {"theta", 4, 8},
    {"alpha", 8, 13},
    {"beta", 13, 30},
    {"gamma", 30, 45},
}
