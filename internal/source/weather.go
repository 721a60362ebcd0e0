package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dailyform/internal/form"
	"github.com/sells-group/dailyform/internal/resilience"
	"github.com/sells-group/dailyform/pkg/weather"
)

// Weather fact keys and placeholder.
const (
	KeyWeather      = "weather"
	KeyWeatherLowF  = "weather_low_f"
	DefaultWeather  = "No weather"
	weatherBreakers = "weather"
)

// Forecast is the fact stored under "weather": the form date's entry of the
// multi-day forecast.
type Forecast struct {
	Date       string `json:"date"`
	Low        string `json:"low"`
	High       string `json:"high,omitempty"`
	Conditions string `json:"conditions"`
}

// Weather fetches the forecast for the form's postal code.
type Weather struct {
	client weather.Client
	place  PlaceResolver
	guard  *resilience.Guard
}

// NewWeather creates the weather capability. place may be nil, in which case
// the zip code must be set on the form before prepare. guard may be nil.
func NewWeather(client weather.Client, place PlaceResolver, guard *resilience.Guard) *Weather {
	return &Weather{client: client, place: place, guard: guard}
}

func (w *Weather) Name() string         { return KeyWeather }
func (w *Weather) Default() string      { return DefaultWeather }
func (w *Weather) Prerequisite() string { return KeyZipCode }

// ResolvePrerequisite looks the zip code up for the form id.
func (w *Weather) ResolvePrerequisite(ctx context.Context, f *form.Form) (any, bool) {
	if w.place == nil {
		return nil, false
	}
	zip, ok := w.place.ZipCode(ctx, f.ID())
	if !ok {
		return nil, false
	}
	return zip, true
}

// Fetch pulls the forecast and keeps the entry matching the form date.
func (w *Weather) Fetch(ctx context.Context, f *form.Form) (any, error) {
	zip, ok := factString(f.Fact(KeyZipCode))
	if !ok {
		return nil, eris.New("weather: zip code fact is missing")
	}

	days, err := resilience.Call(ctx, w.guard, weatherBreakers, func(ctx context.Context) ([]weather.Day, error) {
		return w.client.Forecast(ctx, zip)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "weather: forecast for %s", zip)
	}

	want := f.Date().Format(form.DateLayout)
	for _, d := range days {
		if d.Date.Key() != want {
			continue
		}
		zap.L().Debug("weather: selected forecast",
			zap.String("zip_code", zip),
			zap.String("date", want),
			zap.Int("days", len(days)),
		)
		return Forecast{
			Date:       want,
			Low:        string(d.Low.Fahrenheit),
			High:       string(d.High.Fahrenheit),
			Conditions: d.Conditions,
		}, nil
	}
	return nil, eris.Errorf("weather: no forecast for %s among %d days", want, len(days))
}

// Analyze validates the low temperature as an integer.
func (w *Weather) Analyze(f *form.Form) map[string]any {
	fc, ok := forecastFact(f)
	if !ok {
		return nil
	}
	low, err := strconv.Atoi(strings.TrimSpace(fc.Low))
	if err != nil {
		return nil
	}
	return map[string]any{KeyWeatherLowF: low}
}

// FormatOne renders "<low> degrees F <conditions>".
func (w *Weather) FormatOne(f *form.Form) (string, bool) {
	fc, ok := forecastFact(f)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s degrees F %s", fc.Low, fc.Conditions), true
}

func forecastFact(f *form.Form) (Forecast, bool) {
	v, ok := f.Fact(KeyWeather)
	if !ok {
		return Forecast{}, false
	}
	return form.As[Forecast](v)
}
