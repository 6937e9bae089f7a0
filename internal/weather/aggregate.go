package weather

// Summary condenses one column of provider results so the two collection
// modes can be compared at a glance.
type Summary struct {
	Count           int     `json:"count"`
	MeanTemperature float64 `json:"meanTemperature"`
	MaxResponseMs   int64   `json:"maxResponseMs"`
	SumResponseMs   int64   `json:"sumResponseMs"`
	// SpanMs is max(EndTime) - min(StartTime): the wall time the backend needed
	// to collect every reading.
	SpanMs int64 `json:"spanMs"`
}

// Summarize combines results into a Summary. Temperatures are averaged,
// response times are summed and maxed. An empty input yields the zero Summary.
func Summarize(results []ProviderResult) Summary {
	if len(results) == 0 {
		return Summary{}
	}

	var (
		sumTemp  float64
		sumResp  int64
		maxResp  int64
		minStart = results[0].StartTime
		maxEnd   = results[0].EndTime
	)

	for _, r := range results {
		sumTemp += r.Temperature
		sumResp += r.ResponseTime

		if r.ResponseTime > maxResp {
			maxResp = r.ResponseTime
		}
		if r.StartTime < minStart {
			minStart = r.StartTime
		}
		if r.EndTime > maxEnd {
			maxEnd = r.EndTime
		}
	}

	span := maxEnd - minStart
	if span < 0 {
		span = 0
	}

	return Summary{
		Count:           len(results),
		MeanTemperature: sumTemp / float64(len(results)),
		MaxResponseMs:   maxResp,
		SumResponseMs:   sumResp,
		SpanMs:          span,
	}
}
