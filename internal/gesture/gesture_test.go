package gesture

import (
	"testing"
	"time"

	"github.com/relabs-tech/block_telemetry/internal/telemetry"
)

func TestFaceOf(t *testing.T) {
	tests := []struct {
		name string
		msg  telemetry.Message
		want Face
		ok   bool
	}{
		{"resting", telemetry.Message{AccZ: 1.0}, FacePlusZ, true},
		{"upside down", telemetry.Message{AccZ: -0.98}, FaceMinusZ, true},
		{"x up", telemetry.Message{AccX: 1.03, AccZ: 0.1}, FacePlusX, true},
		{"y down", telemetry.Message{AccY: -1.04}, FaceMinusY, true},
		{"tilted", telemetry.Message{AccX: 0.7, AccZ: 0.7}, FaceNone, false},
		{"out of tolerance", telemetry.Message{AccZ: 1.06}, FaceNone, false},
		{"free fall", telemetry.Message{}, FaceNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FaceOf(tt.msg, 1, 0.05)
			if got != tt.want || ok != tt.ok {
				t.Errorf("FaceOf = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestRotationAbout(t *testing.T) {
	tests := []struct {
		face Face
		msg  telemetry.Message
		want int
	}{
		{FacePlusZ, telemetry.Message{GyrZ: -1.5}, 1},
		{FacePlusZ, telemetry.Message{GyrZ: 1.5}, -1},
		{FaceMinusZ, telemetry.Message{GyrZ: 1.5}, 1},
		{FacePlusX, telemetry.Message{GyrX: 0.5, GyrZ: 3}, 0},
		{FaceMinusY, telemetry.Message{GyrY: -2}, -1},
		{FaceNone, telemetry.Message{GyrZ: 5}, 0},
	}
	for _, tt := range tests {
		if got := RotationAbout(tt.face, tt.msg, 1); got != tt.want {
			t.Errorf("RotationAbout(%q, %+v) = %d, want %d", tt.face, tt.msg, got, tt.want)
		}
	}
}

func TestIsShaking(t *testing.T) {
	if IsShaking(telemetry.Message{AccZ: 1}, 1.5) {
		t.Error("resting block reported shaking")
	}
	if !IsShaking(telemetry.Message{AccX: 1.2, AccZ: 1.0}, 1.5) {
		t.Error("|a|=1.56 should be shaking")
	}
}

func TestDetectorFaceNeedsDwell(t *testing.T) {
	d := NewDetector(DefaultConfig)
	t0 := time.Unix(0, 0)
	xUp := telemetry.Message{AccX: 1}

	if ev := d.Observe(xUp, t0); len(ev) != 0 {
		t.Fatalf("face changed without dwell: %+v", ev)
	}
	if ev := d.Observe(xUp, t0.Add(100*time.Millisecond)); len(ev) != 0 {
		t.Fatalf("face changed before dwell elapsed: %+v", ev)
	}
	ev := d.Observe(xUp, t0.Add(300*time.Millisecond))
	if len(ev) != 1 || ev[0].Kind != FaceChanged || ev[0].Face != FacePlusX {
		t.Fatalf("events = %+v, want one FaceChanged x+", ev)
	}
	if d.Face() != FacePlusX {
		t.Errorf("Face = %q", d.Face())
	}
}

func TestDetectorBriefFaceIgnored(t *testing.T) {
	d := NewDetector(DefaultConfig)
	t0 := time.Unix(0, 0)

	d.Observe(telemetry.Message{AccY: 1}, t0)
	d.Observe(telemetry.Message{AccX: 0.7, AccZ: 0.7}, t0.Add(100*time.Millisecond))
	if ev := d.Observe(telemetry.Message{AccY: 1}, t0.Add(300*time.Millisecond)); len(ev) != 0 {
		t.Fatalf("interrupted hold should restart dwell: %+v", ev)
	}
	if d.Face() != FacePlusZ {
		t.Errorf("Face = %q, want z+", d.Face())
	}
}

func TestDetectorRotation(t *testing.T) {
	d := NewDetector(DefaultConfig)
	ev := d.Observe(telemetry.Message{AccZ: 1, GyrZ: -2}, time.Unix(0, 0))
	if len(ev) != 1 || ev[0].Kind != Rotated || ev[0].Direction != 1 || ev[0].Face != FacePlusZ {
		t.Fatalf("events = %+v", ev)
	}
}

func TestDetectorShake(t *testing.T) {
	d := NewDetector(DefaultConfig)
	t0 := time.Unix(0, 0)
	hard := telemetry.Message{AccX: 2, AccZ: 1}

	var shakes int
	for i := 0; i < 3; i++ {
		for _, e := range d.Observe(hard, t0.Add(time.Duration(i)*100*time.Millisecond)) {
			if e.Kind == Shaken {
				shakes++
			}
		}
	}
	if shakes != 1 {
		t.Errorf("shakes = %d after three hard samples, want 1", shakes)
	}

	// Calm samples decay the counter: hard, calm, hard is not a shake.
	d = NewDetector(DefaultConfig)
	for i, m := range []telemetry.Message{hard, {AccZ: 1}, hard} {
		for _, e := range d.Observe(m, t0.Add(time.Duration(i)*100*time.Millisecond)) {
			if e.Kind == Shaken {
				t.Errorf("unexpected shake at sample %d", i)
			}
		}
	}
}

func TestKindString(t *testing.T) {
	if FaceChanged.String() != "face" || Rotated.String() != "rotate" || Shaken.String() != "shake" || Kind(0).String() != "unknown" {
		t.Error("Kind.String mismatch")
	}
}
