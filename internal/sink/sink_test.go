package sink

import (
    "io"
    "testing"

    "github.com/sirupsen/logrus"
    "github.com/stretchr/testify/assert"

    "biosignal-server/pkg/protocol"
)

func testLogger() *logrus.Logger {
    log := logrus.New()
    log.SetOutput(io.Discard)
    return log
}

func env(key string, counter uint8) Envelope {
    return Envelope{
        ChannelKey:   key,
        SampleRateHz: 500,
        Sample:       protocol.Sample{Channels: []int16{1, 2, 3}, Counter: counter, HasCounter: true},
    }
}

func TestSampleSink_OrderPreserved(t *testing.T) {
    s := NewSampleSink(testLogger())
    ch := s.Subscribe("analysis", 16)

    for i := 0; i < 5; i++ {
        s.Publish(env("serial", uint8(i)))
    }

    for i := 0; i < 5; i++ {
        got := <-ch
        assert.Equal(t, uint8(i), got.Sample.Counter, "同一通道内须保持到达顺序")
    }
}

func TestSampleSink_DropWhenSubscriberFull(t *testing.T) {
    s := NewSampleSink(testLogger())
    ch := s.Subscribe("slow", 2)

    // 订阅者不消费, 第三条起静默丢弃, 发布方不阻塞
    for i := 0; i < 5; i++ {
        s.Publish(env("serial", uint8(i)))
    }

    assert.Len(t, ch, 2)
    first := <-ch
    assert.Equal(t, uint8(0), first.Sample.Counter)
}

func TestSampleSink_MultipleSubscribers(t *testing.T) {
    s := NewSampleSink(testLogger())
    a := s.Subscribe("analysis", 4)
    b := s.Subscribe("display", 4)

    s.Publish(env("ble", 9))

    assert.Equal(t, uint8(9), (<-a).Sample.Counter)
    assert.Equal(t, uint8(9), (<-b).Sample.Counter)
}

func TestSampleSink_Unsubscribe(t *testing.T) {
    s := NewSampleSink(testLogger())
    ch := s.Subscribe("analysis", 4)
    s.Unsubscribe("analysis")

    // 通道应已关闭
    _, ok := <-ch
    assert.False(t, ok)

    // 注销后发布不应panic
    s.Publish(env("serial", 1))
}

func TestSampleSink_PublishAfterClose(t *testing.T) {
    s := NewSampleSink(testLogger())
    s.Subscribe("analysis", 4)
    s.Close()

    // 关闭后发布为空操作
    s.Publish(env("serial", 1))
    s.Close() // 重复关闭安全
}
