package beats

import (
	"errors"
	"math"
	"testing"

	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
	"github.com/danielpatrickdp/hrv-parity/internal/signal"
)

// pulseTrain places unit gaussian pulses (sigma 20 ms) at the given indices.
func pulseTrain(n int, fs float64, at []int) signal.Waveform {
	s := make([]float64, n)
	sigma := 0.02 * fs
	for i := range s {
		for _, c := range at {
			z := float64(i-c) / sigma
			s[i] += math.Exp(-0.5 * z * z)
		}
	}
	return signal.Waveform{Samples: s, SampleRate: fs}
}

func TestDetect_FindsEveryPulse(t *testing.T) {
	at := []int{50, 130, 215, 295, 380, 460}
	w := pulseTrain(520, 100, at)

	got, err := Detect(w, DefaultConfig())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(got) != len(at) {
		t.Fatalf("expected %d beats, got %v", len(at), got)
	}
	for i := range at {
		if got[i] != at[i] {
			t.Errorf("beat %d: expected %d, got %d", i, at[i], got[i])
		}
	}
}

func TestDetect_RefractoryKeepsLarger(t *testing.T) {
	fs := 100.0
	w := pulseTrain(400, fs, []int{50, 150, 250, 350})
	// Secondary bump 150 ms after the second pulse.
	for i := range w.Samples {
		z := float64(i-165) / 2.0
		w.Samples[i] += 0.6 * math.Exp(-0.5*z*z)
	}

	got, err := Detect(w, DefaultConfig())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 beats after refractory merge, got %v", got)
	}
	if got[1] != 150 {
		t.Errorf("expected larger peak at 150 kept, got %d", got[1])
	}
}

func TestDetect_StrictlyIncreasing(t *testing.T) {
	w := pulseTrain(1000, 100, []int{40, 120, 210, 300, 380, 470, 560, 640, 730, 820, 900})
	got, err := Detect(w, DefaultConfig())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("beats not increasing at %d: %v", i, got)
		}
	}
}

func TestDetect_TooFewBeats(t *testing.T) {
	w := pulseTrain(200, 100, []int{100})
	_, err := Detect(w, DefaultConfig())
	if !errors.Is(err, hrverr.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestDetect_InvalidConfig(t *testing.T) {
	w := pulseTrain(200, 100, []int{50, 150})
	cfg := DefaultConfig()
	cfg.WindowSec = 0
	if _, err := Detect(w, cfg); !errors.Is(err, hrverr.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestEnvelopes_Agree(t *testing.T) {
	w := pulseTrain(600, 100, []int{50, 140, 230, 330, 420, 510})
	for i := range w.Samples {
		w.Samples[i] += 0.1 * math.Sin(float64(i)/7)
	}
	m1, s1 := PrefixSumEnvelope(w.Samples, 50)
	m2, s2 := SlidingEnvelope(w.Samples, 50)
	for i := range m1 {
		if math.Abs(m1[i]-m2[i]) > 1e-9 || math.Abs(s1[i]-s2[i]) > 1e-6 {
			t.Fatalf("envelopes differ at %d: mean %g/%g sd %g/%g", i, m1[i], m2[i], s1[i], s2[i])
		}
	}

	a, err := NewDetector(DefaultConfig(), PrefixSumEnvelope).Detect(w)
	if err != nil {
		t.Fatalf("prefix detector: %v", err)
	}
	b, err := NewDetector(DefaultConfig(), SlidingEnvelope).Detect(w)
	if err != nil {
		t.Fatalf("sliding detector: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("detectors disagree: %v vs %v", a, b)
	}
}
