// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxPayloadBytes is the largest encoded message we will hand to the
// publisher.
const MaxPayloadBytes = 256

// Keys lists the wire keys in encoding order.
var Keys = [6]string{"accx", "accy", "accz", "gyrx", "gyry", "gyrz"}

var (
	ErrNonFinite       = errors.New("telemetry: non-finite value")
	ErrPayloadTooLarge = errors.New("telemetry: payload exceeds byte budget")
	ErrMalformed       = errors.New("telemetry: malformed message")
)

// Message is the record published on the data topic.
type Message struct {
	AccX float64 `json:"accx"`
	AccY float64 `json:"accy"`
	AccZ float64 `json:"accz"`
	GyrX float64 `json:"gyrx"`
	GyrY float64 `json:"gyry"`
	GyrZ float64 `json:"gyrz"`
}

// Values returns the six fields in Keys order.
func (m Message) Values() [6]float64 {
	return [6]float64{m.AccX, m.AccY, m.AccZ, m.GyrX, m.GyrY, m.GyrZ}
}

// Encode serializes m as a flat JSON object with exactly the six keys.
func (m Message) Encode() ([]byte, error) {
	for i, v := range m.Values() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s=%v", ErrNonFinite, Keys[i], v)
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("telemetry: marshal: %w", err)
	}
	if len(b) > MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(b), MaxPayloadBytes)
	}
	return b, nil
}

// Decode parses a message produced by Encode. The payload must be a single
// JSON object holding each of the six keys exactly once with a numeric
// value; anything else is ErrMalformed.
func Decode(b []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return Message{}, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}

	var (
		vals [6]float64
		seen [6]bool
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		key, _ := tok.(string)
		idx := keyIndex(key)
		if idx < 0 {
			return Message{}, fmt.Errorf("%w: unknown key %q", ErrMalformed, key)
		}
		if seen[idx] {
			return Message{}, fmt.Errorf("%w: duplicate key %q", ErrMalformed, key)
		}
		seen[idx] = true

		tok, err = dec.Token()
		if err != nil {
			return Message{}, fmt.Errorf("%w: key %q: %v", ErrMalformed, key, err)
		}
		num, ok := tok.(json.Number)
		if !ok {
			return Message{}, fmt.Errorf("%w: key %q: not a number", ErrMalformed, key)
		}
		if vals[idx], err = num.Float64(); err != nil {
			return Message{}, fmt.Errorf("%w: key %q: %v", ErrMalformed, key, err)
		}
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return Message{}, fmt.Errorf("%w: unterminated object", ErrMalformed)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Message{}, fmt.Errorf("%w: trailing data after object", ErrMalformed)
	}
	for i, ok := range seen {
		if !ok {
			return Message{}, fmt.Errorf("%w: missing key %q", ErrMalformed, Keys[i])
		}
	}

	return Message{
		AccX: vals[0],
		AccY: vals[1],
		AccZ: vals[2],
		GyrX: vals[3],
		GyrY: vals[4],
		GyrZ: vals[5],
	}, nil
}

func keyIndex(key string) int {
	for i, k := range Keys {
		if k == key {
			return i
		}
	}
	return -1
}
