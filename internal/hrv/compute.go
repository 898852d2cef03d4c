package hrv

import (
	"fmt"

	"github.com/danielpatrickdp/hrv-parity/internal/rr"
)

// Compute runs the time-domain, frequency-domain and breathing estimators over
// a cleaned series. n_peaks is left to the caller, which knows how the series
// was obtained.
func Compute(s rr.Series, cfg FreqConfig, k Kernels) (Record, error) {
	var rec Record
	TimeDomain(s, k, &rec)
	if err := FrequencyDomain(s, cfg, k, &rec); err != nil {
		return Record{}, fmt.Errorf("compute frequency domain: %w", err)
	}
	return rec, nil
}
