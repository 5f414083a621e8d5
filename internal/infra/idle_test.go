package infra

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const ioregSample = `+-o IOHIDSystem  <class IOHIDSystem, id 0x100000474, registered, matched, active, busy 0 (0 ms), retain 23>
    {
      "HIDIdleTime" = 12500000000
      "HIDParameters" = {"HIDClickTime"=500000000}
    }
`

func TestIdleDetector(t *testing.T) {
	tests := []struct {
		name   string
		goos   string
		output string
		err    error
		cmd    []string
		want   time.Duration
	}{
		{"darwin ioreg", "darwin", ioregSample, nil, []string{"/usr/sbin/ioreg", "-c", "IOHIDSystem"}, 12500 * time.Millisecond},
		{"darwin missing key", "darwin", "{}\n", nil, []string{"/usr/sbin/ioreg", "-c", "IOHIDSystem"}, 0},
		{"darwin ioreg fails", "darwin", "", errors.New("boom"), []string{"/usr/sbin/ioreg", "-c", "IOHIDSystem"}, 0},
		{"linux xprintidle", "linux", "301000\n", nil, []string{"xprintidle"}, 301 * time.Second},
		{"linux garbage", "linux", "couldn't open display\n", nil, []string{"xprintidle"}, 0},
		{"unsupported", "windows", "", nil, []string{"none"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newMockCommandRunner()
			runner.On(tt.output, tt.err, tt.cmd[0], tt.cmd[1:]...)

			d := NewIdleDetectorWithDeps(runner, tt.goos, zap.NewNop())
			assert.Equal(t, tt.want, d.IdleTime())
		})
	}
}
