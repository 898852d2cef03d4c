package hrv

import (
	"math"

	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
	"github.com/danielpatrickdp/hrv-parity/internal/rr"
)

// #region time-domain
// TimeDomain fills the beat-to-beat metrics of rec from the valid intervals
// of s. SDs are population SDs. Successive differences only pair adjacent
// valid intervals.
func TimeDomain(s rr.Series, k Kernels, rec *Record) {
	intervals := s.ValidIntervals()
	mean, sdnn := k.MeanSD(intervals)
	if len(intervals) > 0 {
		rec.BPM = Defined(60000 / mean)
	}
	rec.SDNN = Defined(sdnn)

	hr := make([]float64, len(intervals))
	for i, v := range intervals {
		hr[i] = 60000 / v
	}
	medHR := k.Median(hr)
	dev := make([]float64, len(hr))
	for i, v := range hr {
		dev[i] = math.Abs(v - medHR)
	}
	rec.HRMAD = Defined(k.Median(dev))

	diffs := s.SuccessiveDiffs()
	if len(diffs) == 0 {
		rec.Flag(flag(hrverr.ErrInsufficientData, "successive_differences"))
		return
	}

	sq := make([]float64, len(diffs))
	var nn20, nn50 int
	for i, d := range diffs {
		sq[i] = d * d
		if math.Abs(d) > 20 {
			nn20++
		}
		if math.Abs(d) > 50 {
			nn50++
		}
	}
	msd, _ := k.MeanSD(sq)
	rec.RMSSD = Defined(math.Sqrt(msd))

	_, sdsd := k.MeanSD(diffs)
	rec.SDSD = Defined(sdsd)

	rec.NN20 = Defined(float64(nn20))
	rec.NN50 = Defined(float64(nn50))
	rec.PNN20 = Defined(float64(nn20) / float64(len(diffs)))
	rec.PNN50 = Defined(float64(nn50) / float64(len(diffs)))

	poincare(sdnn, sdsd, rec)
}

// poincare derives SD1/SD2 from SDNN and SDSD. A negative SD2 radicand is
// clamped to zero and flagged.
func poincare(sdnn, sdsd float64, rec *Record) {
	sd1 := math.Sqrt(0.5) * sdsd
	rad := 2*sdnn*sdnn - 0.5*sdsd*sdsd
	if rad < 0 {
		rad = 0
		rec.Flag(flag(hrverr.ErrNumericDegenerate, string(SD2)))
	}
	sd2 := math.Sqrt(rad)

	rec.SD1 = Defined(sd1)
	rec.SD2 = Defined(sd2)
	rec.EllipseArea = Defined(math.Pi * sd1 * sd2)
	if sd2 == 0 {
		rec.SD1SD2Ratio = Undefined()
		rec.Flag(flag(hrverr.ErrNumericDegenerate, string(SD1SD2Ratio)))
		return
	}
	rec.SD1SD2Ratio = Defined(sd1 / sd2)
}
// #endregion time-domain

func flag(kind error, what string) string {
	return hrverr.KindName(kind) + ":" + what
}
