package gesture

import (
	"time"

	"github.com/relabs-tech/block_telemetry/internal/telemetry"
)

// Kind classifies an Event.
type Kind int

const (
	FaceChanged Kind = iota + 1
	Rotated
	Shaken
)

func (k Kind) String() string {
	switch k {
	case FaceChanged:
		return "face"
	case Rotated:
		return "rotate"
	case Shaken:
		return "shake"
	default:
		return "unknown"
	}
}

// Event is one recognized gesture.
type Event struct {
	Kind      Kind
	Face      Face
	Direction int // Rotated only
	At        time.Time
}

// Detector turns a stream of telemetry into gesture events. It is not safe
// for concurrent use.
type Detector struct {
	cfg Config

	face           Face
	candidate      Face
	candidateSince time.Time
	shake          int
}

// NewDetector starts with the block resting on its base (z+).
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg, face: FacePlusZ}
}

// Face returns the settled face.
func (d *Detector) Face() Face {
	return d.face
}

// Observe feeds one message received at time at.
func (d *Detector) Observe(m telemetry.Message, at time.Time) []Event {
	var events []Event

	if IsShaking(m, d.cfg.ShakeThreshold) {
		d.shake++
	} else if d.shake > 0 {
		d.shake--
	}
	if d.shake > d.cfg.ShakeCountMax {
		d.shake = d.cfg.ShakeCountMax
	}
	if d.cfg.ShakeCount > 0 && d.shake >= d.cfg.ShakeCount {
		events = append(events, Event{Kind: Shaken, Face: d.face, At: at})
		d.shake = 0
	}

	f, ok := FaceOf(m, d.cfg.Gravity, d.cfg.Tolerance)
	switch {
	case !ok || f == d.face:
		d.candidate = FaceNone
	case f != d.candidate:
		d.candidate = f
		d.candidateSince = at
	case at.Sub(d.candidateSince) >= d.cfg.Dwell:
		d.face = f
		d.candidate = FaceNone
		events = append(events, Event{Kind: FaceChanged, Face: f, At: at})
	}

	if ok && f == d.face {
		if dir := RotationAbout(d.face, m, d.cfg.RotationThreshold); dir != 0 {
			events = append(events, Event{Kind: Rotated, Face: d.face, Direction: dir, At: at})
		}
	}
	return events
}
