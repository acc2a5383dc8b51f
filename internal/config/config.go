package config

import (
    "fmt"
    "os"
    "time"

    "gopkg.in/yaml.v3"
)

type Config struct {
    Transports TransportsConfig `yaml:"transports"`
    Analysis   AnalysisConfig   `yaml:"analysis"`
    Redis      RedisConfig      `yaml:"redis"`
    Log        LogConfig        `yaml:"log"`
    Monitor    MonitorConfig    `yaml:"monitor"`
}

type TransportsConfig struct {
    BLE       BLEConfig       `yaml:"ble"`
    Serial    SerialConfig    `yaml:"serial"`
    WebSocket WebSocketConfig `yaml:"websocket"`
}

type BLEConfig struct {
    Enabled     bool          `yaml:"enabled"`
    DeviceName  string        `yaml:"device_name"`
    ScanTimeout time.Duration `yaml:"scan_timeout"`
}

type SerialConfig struct {
    Enabled    bool          `yaml:"enabled"`
    Port       string        `yaml:"port"`
    BaudRate   int           `yaml:"baud_rate"`
    BufferSize int           `yaml:"buffer_size"`
    StartDelay time.Duration `yaml:"start_delay"`
}

type WebSocketConfig struct {
    Enabled          bool          `yaml:"enabled"`
    URL              string        `yaml:"url"`
    HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

type AnalysisConfig struct {
    FFTSize            int    `yaml:"fft_size"`
    SamplesPerEstimate int    `yaml:"samples_per_estimate"`
    SmootherWindow     int    `yaml:"smoother_window"`
    PostRateMs         int    `yaml:"post_rate_ms"`
    EMATauMs           int    `yaml:"ema_tau_ms"`
    Mode               string `yaml:"mode"` // simple 或 welch
    QueueSize          int    `yaml:"queue_size"`
    SinkBuffer         int    `yaml:"sink_buffer"`
}

type RedisConfig struct {
    Enabled  bool   `yaml:"enabled"`
    Addr     string `yaml:"addr"`
    Password string `yaml:"password"`
    DB       int    `yaml:"db"`
    PoolSize int    `yaml:"pool_size"`
    Channel  string `yaml:"channel"`
}

type LogConfig struct {
    Level    string `yaml:"level"`
    Format   string `yaml:"format"`
    Output   string `yaml:"output"`
    FilePath string `yaml:"file_path"`
}

type MonitorConfig struct {
    Enabled     bool `yaml:"enabled"`
    MetricsPort int  `yaml:"metrics_port"`
}

// LoadConfig 加载配置文件
func LoadConfig(path string) (*Config, error) {
    data, err := os.ReadFile(path)
    if err != nil {
        return nil, fmt.Errorf("读取配置文件失败: %w", err)
    }

    var config Config
    if err := yaml.Unmarshal(data, &config); err != nil {
        return nil, fmt.Errorf("解析配置文件失败: %w", err)
    }

    return &config, nil
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
    return &Config{
        Transports: TransportsConfig{
            BLE: BLEConfig{
                Enabled:     false,
                DeviceName:  "NPG",
                ScanTimeout: 30 * time.Second,
            },
            Serial: SerialConfig{
                Enabled:    true,
                Port:       "/dev/ttyUSB0",
                BaudRate:   230400,
                BufferSize: 4096,
                StartDelay: 2 * time.Second,
            },
            WebSocket: WebSocketConfig{
                Enabled:          false,
                URL:              "ws://192.168.4.1:81",
                HandshakeTimeout: 10 * time.Second,
            },
        },
        Analysis: AnalysisConfig{
            FFTSize:            256,
            SamplesPerEstimate: 25,
            SmootherWindow:     5,
            PostRateMs:         200,
            EMATauMs:           1000,
            Mode:               "simple",
            QueueSize:          4096,
            SinkBuffer:         1024,
        },
        Redis: RedisConfig{
            Enabled:  false,
            Addr:     "localhost:6379",
            Password: "",
            DB:       0,
            PoolSize: 100,
            Channel:  "biosignal_power",
        },
        Log: LogConfig{
            Level:  "info",
            Format: "json",
            Output: "stdout",
        },
        Monitor: MonitorConfig{
            Enabled:     true,
            MetricsPort: 9090,
        },
    }
}
