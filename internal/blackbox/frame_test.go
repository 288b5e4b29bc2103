package blackbox

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampInt16UsesCorrectBounds(t *testing.T) {
	assert.Equal(t, int16(math.MinInt16), ClampInt16(-1e9))
	assert.Equal(t, int16(math.MaxInt16), ClampInt16(1e9))
	assert.Equal(t, int16(-32768), ClampInt16(-32768))
	assert.Equal(t, int16(32767), ClampInt16(32767))
	assert.Equal(t, int16(1234), ClampInt16(1234.7))
}

type captureSink struct {
	frames []*Frame
}

func (s *captureSink) Record(f *Frame) {
	s.frames = append(s.frames, f)
}

func TestFanoutSinkDuplicates(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	fan := FanoutSink{a, b, NopSink{}}

	fan.Record(&Frame{TimeUs: 42})

	assert.Len(t, a.frames, 1)
	assert.Len(t, b.frames, 1)
	assert.Equal(t, int64(42), a.frames[0].TimeUs)
}
