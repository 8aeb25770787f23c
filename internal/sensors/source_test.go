package sensors

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/relabs-tech/block_telemetry/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetryInitSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := RetryInit(context.Background(), time.Millisecond, discardLogger(), "mpu6050", func() error {
		calls++
		if calls < 3 {
			return errors.New("no ack")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryInit: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryInitStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := RetryInit(ctx, 5*time.Millisecond, discardLogger(), "mpu6050", func() error {
		return errors.New("no ack")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestOpenMock(t *testing.T) {
	cfg := config.Default()
	cfg.SensorDriver = "mock"
	src, closer, err := Open(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closer.Close()

	s, err := src.ReadRaw()
	if err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}
	mag := math.Sqrt(s.AccelX*s.AccelX + s.AccelZ*s.AccelZ)
	if math.Abs(mag-StandardGravity) > 1e-9 {
		t.Errorf("mock gravity magnitude = %v", mag)
	}
}

func TestMockSourceAdvances(t *testing.T) {
	src := NewMockSource()
	a, _ := src.ReadRaw()
	b, _ := src.ReadRaw()
	if a == b {
		t.Error("mock source returned the same sample twice")
	}
}
