package card

import (
	"fmt"
	"strconv"
	"time"

	"github.com/i474232898/weather-dashboard/internal/weather"
)

// localTimeLayout matches the browser's en-US toLocaleTimeString output.
const localTimeLayout = "3:04:05 PM"

// Card is the display unit for one provider result.
type Card struct {
	LogoURL      string `json:"logoUrl"`
	ProviderName string `json:"providerName"`
	Temperature  string `json:"temperature"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	ResponseTime string `json:"responseTime"`
}

// Render builds the card for r. Timestamps are shown as wall-clock time in loc.
// A nil loc means time.Local.
func Render(r weather.ProviderResult, logos *LogoCatalog, loc *time.Location) Card {
	return Card{
		LogoURL:      logos.Logo(r.APIProviderName),
		ProviderName: string(r.APIProviderName),
		Temperature:  "Temperature: " + strconv.FormatFloat(r.Temperature, 'f', -1, 64) + "°C",
		StartTime:    "Start Time: " + FormatTimestamp(r.StartTime, loc),
		EndTime:      "End Time: " + FormatTimestamp(r.EndTime, loc),
		ResponseTime: fmt.Sprintf("Response Time: %dms", r.ResponseTime),
	}
}

// RenderAll renders results in order.
func RenderAll(results []weather.ProviderResult, logos *LogoCatalog, loc *time.Location) []Card {
	cards := make([]Card, 0, len(results))
	for _, r := range results {
		cards = append(cards, Render(r, logos, loc))
	}
	return cards
}

// FormatTimestamp formats a millisecond epoch as "<localTime> : <ms>ms".
func FormatTimestamp(ms int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	t := time.UnixMilli(ms).In(loc)
	return fmt.Sprintf("%s : %dms", t.Format(localTimeLayout), t.Nanosecond()/int(time.Millisecond))
}
