package hrv

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
	"github.com/danielpatrickdp/hrv-parity/internal/rr"
)

// #region helpers
func series(t *testing.T, ms []float64) rr.Series {
	t.Helper()
	s, err := rr.FromIntervals(ms)
	if err != nil {
		t.Fatalf("FromIntervals: %v", err)
	}
	return s
}

// modulatedRR builds seconds worth of intervals around baseMs with HF and LF
// sinusoidal modulation evaluated at each beat time.
func modulatedRR(seconds, baseMs, hfAmp, hfHz, lfAmp, lfHz float64) []float64 {
	var out []float64
	var t float64
	for t < seconds*1000 {
		ts := t / 1000
		v := baseMs + hfAmp*math.Sin(2*math.Pi*hfHz*ts) + lfAmp*math.Sin(2*math.Pi*lfHz*ts)
		out = append(out, v)
		t += v
	}
	return out
}

func near(got Value, want, tol float64) bool {
	v, ok := got.Float()
	return ok && math.Abs(v-want) <= tol
}

func hasFlag(rec Record, f string) bool {
	for _, x := range rec.Flags {
		if x == f {
			return true
		}
	}
	return false
}

var textbookRR = []float64{800, 810, 790, 805, 795}
// #endregion helpers

// #region time-domain-tests
func TestTimeDomain_TextbookValues(t *testing.T) {
	for _, k := range []Kernels{ReferenceKernels(), CandidateKernels()} {
		var rec Record
		TimeDomain(series(t, textbookRR), k, &rec)

		if !near(rec.BPM, 75, 1e-9) {
			t.Errorf("%s: bpm expected 75, got %v", k.Name, rec.BPM)
		}
		if !near(rec.SDNN, math.Sqrt(50), 1e-9) {
			t.Errorf("%s: sdnn expected %.6f, got %v", k.Name, math.Sqrt(50), rec.SDNN)
		}
		if !near(rec.RMSSD, math.Sqrt(206.25), 1e-9) {
			t.Errorf("%s: rmssd expected %.6f, got %v", k.Name, math.Sqrt(206.25), rec.RMSSD)
		}
		if !near(rec.SDSD, math.Sqrt(204.6875), 1e-9) {
			t.Errorf("%s: sdsd expected %.6f, got %v", k.Name, math.Sqrt(204.6875), rec.SDSD)
		}
		if !near(rec.PNN20, 0, 0) || !near(rec.PNN50, 0, 0) {
			t.Errorf("%s: expected pnn20=pnn50=0, got %v %v", k.Name, rec.PNN20, rec.PNN50)
		}
		if !near(rec.SD1, math.Sqrt(0.5*204.6875), 1e-9) {
			t.Errorf("%s: sd1 expected %.6f, got %v", k.Name, math.Sqrt(0.5*204.6875), rec.SD1)
		}
	}
}

func TestTimeDomain_SD2ClampedAndFlagged(t *testing.T) {
	// 2*SDNN² - SDSD²/2 = 100 - 102.34 < 0 for this series.
	var rec Record
	TimeDomain(series(t, textbookRR), ReferenceKernels(), &rec)

	if !near(rec.SD2, 0, 0) {
		t.Fatalf("expected sd2 clamped to 0, got %v", rec.SD2)
	}
	if rec.SD1SD2Ratio.IsDefined() {
		t.Fatalf("expected ratio undefined, got %v", rec.SD1SD2Ratio)
	}
	if !hasFlag(rec, "numeric_degenerate:sd2") {
		t.Fatalf("expected sd2 flag, got %v", rec.Flags)
	}
}

func TestTimeDomain_BPMIdentity(t *testing.T) {
	ms := modulatedRR(120, 850, 30, 0.25, 15, 0.1)
	var rec Record
	TimeDomain(series(t, ms), ReferenceKernels(), &rec)

	var sum float64
	for _, v := range ms {
		sum += v
	}
	if !near(rec.BPM, 60000/(sum/float64(len(ms))), 1e-9) {
		t.Fatalf("bpm %v != 60000/mean", rec.BPM)
	}
}

func TestTimeDomain_PNNBoundsAndOrder(t *testing.T) {
	ms := make([]float64, 200)
	for i := range ms {
		ms[i] = 800 + 60*math.Sin(float64(i)*1.7) + 25*math.Cos(float64(i)*0.3)
	}
	var rec Record
	TimeDomain(series(t, ms), ReferenceKernels(), &rec)

	p20, _ := rec.PNN20.Float()
	p50, _ := rec.PNN50.Float()
	if p20 < 0 || p20 > 1 || p50 < 0 || p50 > 1 {
		t.Fatalf("pnn out of [0,1]: %g %g", p20, p50)
	}
	if p50 > p20 {
		t.Fatalf("expected pnn50 <= pnn20, got %g > %g", p50, p20)
	}
	n20, _ := rec.NN20.Float()
	if math.Abs(n20/199-p20) > 1e-12 {
		t.Fatalf("nn20/len(diffs) = %g, pnn20 = %g", n20/199, p20)
	}
}

func TestTimeDomain_SD1BelowSD2ForSlowVariation(t *testing.T) {
	ms := make([]float64, 120)
	for i := range ms {
		ms[i] = 800 + 50*math.Sin(2*math.Pi*float64(i)/20)
	}
	var rec Record
	TimeDomain(series(t, ms), ReferenceKernels(), &rec)
	sd1, _ := rec.SD1.Float()
	sd2, _ := rec.SD2.Float()
	if sd1 > sd2 {
		t.Fatalf("expected sd1 <= sd2, got %g > %g", sd1, sd2)
	}
	if !rec.SD1SD2Ratio.IsDefined() || !rec.EllipseArea.IsDefined() {
		t.Fatal("expected ratio and ellipse area defined")
	}
}

func TestTimeDomain_SkipsPairsAcrossRejected(t *testing.T) {
	s := series(t, []float64{800, 810, 1900, 790, 805})
	s.Valid[2] = false
	var rec Record
	TimeDomain(s, ReferenceKernels(), &rec)
	// diffs: 10 (800->810), 15 (790->805)
	if !near(rec.RMSSD, math.Sqrt((100+225)/2.0), 1e-9) {
		t.Fatalf("unexpected rmssd %v", rec.RMSSD)
	}
}

func TestTimeDomain_HRMAD(t *testing.T) {
	// HR = 75, 80, 60 bpm -> median 75, deviations 0, 5, 15 -> MAD 5.
	var rec Record
	TimeDomain(series(t, []float64{800, 750, 1000}), CandidateKernels(), &rec)
	if !near(rec.HRMAD, 5, 1e-9) {
		t.Fatalf("expected hr_mad 5, got %v", rec.HRMAD)
	}
}
// #endregion time-domain-tests

// #region value-tests
func TestValueJSON(t *testing.T) {
	rec := Record{BPM: Defined(72.5), SDNN: Defined(math.NaN())}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"bpm":72.5`) || !strings.Contains(s, `"sdnn":null`) {
		t.Fatalf("unexpected encoding %s", s)
	}

	var back Record
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !near(back.BPM, 72.5, 0) || back.SDNN.IsDefined() {
		t.Fatalf("unexpected decode %+v", back)
	}
}

func TestRecordGetSet(t *testing.T) {
	var rec Record
	for _, m := range append(append([]Metric{}, CoreMetrics...), ExtraMetrics...) {
		if !rec.Set(m, Defined(1)) {
			t.Fatalf("Set(%s) reported unknown", m)
		}
		if !near(rec.Get(m), 1, 0) {
			t.Fatalf("Get(%s) after Set", m)
		}
	}
	if rec.Set("bogus", Defined(1)) || KnownMetric("bogus") {
		t.Fatal("expected unknown metric rejected")
	}
}

func TestUnitConversions(t *testing.T) {
	if HzToBreathsPerMinute(0.25) != 15 || BreathsPerMinuteToHz(15) != 0.25 {
		t.Fatal("breathing conversion")
	}
	if RatioToPercent(0.5) != 50 || PercentToRatio(50) != 0.5 {
		t.Fatal("pnn conversion")
	}
}
// #endregion value-tests

// #region kernel-tests
func TestMedians_Agree(t *testing.T) {
	cases := [][]float64{
		{3},
		{5, 1},
		{7, 1, 3, 3, 9},
		{4, 4, 4, 4},
		{10, -2, 8, 6, 0, 1},
	}
	for _, c := range cases {
		if a, b := SortMedian(c), SelectMedian(c); a != b {
			t.Errorf("%v: sort=%g select=%g", c, a, b)
		}
	}
	if !math.IsNaN(SelectMedian(nil)) {
		t.Error("expected NaN for empty input")
	}
}

func TestMeanSD_Agree(t *testing.T) {
	x := modulatedRR(60, 900, 40, 0.3, 20, 0.08)
	m1, s1 := TwoPassMeanSD(x)
	m2, s2 := WelfordMeanSD(x)
	if math.Abs(m1-m2) > 1e-9 || math.Abs(s1-s2) > 1e-9 {
		t.Fatalf("moments differ: %g/%g %g/%g", m1, m2, s1, s2)
	}
}

func TestHannWindowMatchesReference(t *testing.T) {
	a := ReferenceKernels().Window(64)
	b := HannWindow(64)
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-12 {
			t.Fatalf("window differs at %d: %g vs %g", i, a[i], b[i])
		}
	}
}

func TestDFT_Agree(t *testing.T) {
	x := make([]float64, 60)
	for i := range x {
		x[i] = math.Sin(float64(i)*0.4) + 0.3*math.Cos(float64(i)*1.1)
	}
	a := ReferenceKernels().DFT(x)
	b := DirectDFT(x)
	for i := range a {
		if math.Abs(real(a[i])-real(b[i])) > 1e-8 || math.Abs(imag(a[i])-imag(b[i])) > 1e-8 {
			t.Fatalf("bin %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}
// #endregion kernel-tests

// #region spline-tests
func TestSmoothingSpline_InterpolatesKnots(t *testing.T) {
	x := []float64{0, 1, 2.5, 3, 4.2, 5}
	y := []float64{800, 820, 790, 805, 830, 810}
	sp, err := SmoothingSpline(x, y, 0)
	if err != nil {
		t.Fatalf("SmoothingSpline: %v", err)
	}
	for i := range x {
		if math.Abs(sp.Eval(x[i])-y[i]) > 1e-9 {
			t.Fatalf("knot %d: expected %g, got %g", i, y[i], sp.Eval(x[i]))
		}
	}
}

func TestSmoothingSpline_HitsTargetSSE(t *testing.T) {
	var x, y []float64
	for i := 0; i < 80; i++ {
		x = append(x, float64(i)*0.8)
		y = append(y, 800+30*math.Sin(float64(i)*0.3)+8*math.Sin(float64(i)*2.9))
	}
	sp, err := SmoothingSpline(x, y, 500)
	if err != nil {
		t.Fatalf("SmoothingSpline: %v", err)
	}
	var sse float64
	for i := range x {
		d := sp.Eval(x[i]) - y[i]
		sse += d * d
	}
	if math.Abs(sse-500) > 5 {
		t.Fatalf("expected SSE near 500, got %g", sse)
	}
}

func TestSmoothingSpline_LinearDataIsExact(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4}
	y := []float64{1, 3, 5, 7, 9}
	sp, err := SmoothingSpline(x, y, 10)
	if err != nil {
		t.Fatalf("SmoothingSpline: %v", err)
	}
	if math.Abs(sp.Eval(2.5)-6) > 1e-6 {
		t.Fatalf("expected 6, got %g", sp.Eval(2.5))
	}
}

func TestSmoothingSpline_TooFewKnots(t *testing.T) {
	if _, err := SmoothingSpline([]float64{0, 1}, []float64{1, 2}, 0); err == nil {
		t.Fatal("expected error for 2 knots")
	}
}
// #endregion spline-tests

// #region spectral-tests
func TestWelch_SinePeakAndPower(t *testing.T) {
	fs := 4.0
	x := make([]float64, 1200)
	for i := range x {
		x[i] = 20 * math.Sin(2*math.Pi*0.25*float64(i)/fs)
	}
	for _, k := range []Kernels{ReferenceKernels(), CandidateKernels()} {
		psd := Welch(x, fs, 960, 0.5, k)
		if !near(psd.PeakFrequency(0.1, 0.5), 0.25, 1e-9) {
			t.Errorf("%s: expected peak at 0.25 Hz, got %v", k.Name, psd.PeakFrequency(0.1, 0.5))
		}
		total, _ := psd.BandPower(Band{0, 2}).Float()
		if math.Abs(total-200)/200 > 0.05 {
			t.Errorf("%s: expected total power near 200, got %g", k.Name, total)
		}
	}
}

func TestFrequencyDomain_ModulatedSeries(t *testing.T) {
	s := series(t, modulatedRR(300, 900, 40, 0.25, 20, 0.1))
	for _, k := range []Kernels{ReferenceKernels(), CandidateKernels()} {
		var rec Record
		if err := FrequencyDomain(s, DefaultFreqConfig(), k, &rec); err != nil {
			t.Fatalf("%s: FrequencyDomain: %v", k.Name, err)
		}
		if !near(rec.BreathingRate, 0.25, 0.01) {
			t.Errorf("%s: expected breathing near 0.25 Hz, got %v", k.Name, rec.BreathingRate)
		}
		lf, _ := rec.LF.Float()
		hf, _ := rec.HF.Float()
		if !(hf > lf && lf > 0) {
			t.Errorf("%s: expected hf > lf > 0, got lf=%g hf=%g", k.Name, lf, hf)
		}
		if !near(rec.LFHF, lf/hf, 1e-9) {
			t.Errorf("%s: lf_hf mismatch", k.Name)
		}
		vlf, _ := rec.VLF.Float()
		if !near(rec.TotalPower, vlf+lf+hf, 1e-6) {
			t.Errorf("%s: total power mismatch", k.Name)
		}
		if !near(rec.LFNorm, 100*lf/(lf+hf), 1e-9) {
			t.Errorf("%s: lf_norm mismatch", k.Name)
		}
	}
}

func TestFrequencyDomain_KernelsAgree(t *testing.T) {
	s := series(t, modulatedRR(200, 850, 30, 0.3, 25, 0.09))
	var a, b Record
	if err := FrequencyDomain(s, DefaultFreqConfig(), ReferenceKernels(), &a); err != nil {
		t.Fatalf("reference: %v", err)
	}
	if err := FrequencyDomain(s, DefaultFreqConfig(), CandidateKernels(), &b); err != nil {
		t.Fatalf("candidate: %v", err)
	}
	for _, m := range []Metric{VLF, LF, HF, LFHF, BreathingRate} {
		x, _ := a.Get(m).Float()
		y, _ := b.Get(m).Float()
		if math.Abs(x-y) > 1e-6*math.Max(1, math.Abs(x)) {
			t.Errorf("%s differs: %g vs %g", m, x, y)
		}
	}
}

func TestFrequencyDomain_ShortSeriesUndefined(t *testing.T) {
	var rec Record
	if err := FrequencyDomain(series(t, textbookRR), DefaultFreqConfig(), ReferenceKernels(), &rec); err != nil {
		t.Fatalf("FrequencyDomain: %v", err)
	}
	for _, m := range []Metric{VLF, LF, HF, LFHF, BreathingRate} {
		if rec.Get(m).IsDefined() {
			t.Errorf("expected %s undefined", m)
		}
	}
	if !hasFlag(rec, "insufficient_data:spectrum") {
		t.Fatalf("expected spectrum flag, got %v", rec.Flags)
	}
}

func TestFrequencyDomain_UnresolvedVLF(t *testing.T) {
	// 40 s of data gives 0.025 Hz bins: at most one inside [0.0033, 0.04).
	var rec Record
	if err := FrequencyDomain(series(t, modulatedRR(40, 800, 30, 0.25, 10, 0.1)), DefaultFreqConfig(), ReferenceKernels(), &rec); err != nil {
		t.Fatalf("FrequencyDomain: %v", err)
	}
	if rec.VLF.IsDefined() {
		t.Fatalf("expected vlf undefined, got %v", rec.VLF)
	}
	if !rec.HF.IsDefined() {
		t.Fatal("expected hf defined")
	}
	if rec.TotalPower.IsDefined() {
		t.Fatal("expected total power undefined when vlf is")
	}
}

func TestFreqConfig_RejectsShortWelchSegment(t *testing.T) {
	cfg := DefaultFreqConfig()
	cfg.WelchSec = 0.1
	if err := cfg.Validate(); !errors.Is(err, hrverr.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	var rec Record
	err := FrequencyDomain(series(t, modulatedRR(180, 820, 35, 0.25, 15, 0.1)), cfg, ReferenceKernels(), &rec)
	if !errors.Is(err, hrverr.ErrInvalidParameter) {
		t.Fatalf("expected FrequencyDomain to reject the config, got %v", err)
	}
}

func TestWelch_DegenerateSegment(t *testing.T) {
	psd := Welch([]float64{1, 2, 3}, 4, 0, 0.5, ReferenceKernels())
	if len(psd.Freqs) != 0 || psd.BandPower(Band{0, 2}).IsDefined() {
		t.Fatalf("expected empty spectrum, got %+v", psd)
	}
}

func TestCompute(t *testing.T) {
	rec, err := Compute(series(t, modulatedRR(180, 820, 35, 0.25, 15, 0.1)), DefaultFreqConfig(), ReferenceKernels())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !rec.BPM.IsDefined() || !rec.HF.IsDefined() {
		t.Fatalf("expected time and frequency metrics, got %+v", rec)
	}
}
// #endregion spectral-tests
