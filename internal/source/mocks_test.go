package source

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/dailyform/pkg/toodledo"
	"github.com/sells-group/dailyform/pkg/weather"
)

type mockWeather struct {
	mock.Mock
}

func (m *mockWeather) Forecast(ctx context.Context, zipCode string) ([]weather.Day, error) {
	args := m.Called(ctx, zipCode)
	days, _ := args.Get(0).([]weather.Day)
	return days, args.Error(1)
}

type mockToodledo struct {
	mock.Mock
}

func (m *mockToodledo) Tasks(ctx context.Context) ([]toodledo.Task, error) {
	args := m.Called(ctx)
	tasks, _ := args.Get(0).([]toodledo.Task)
	return tasks, args.Error(1)
}

func title(s string) *string { return &s }

func forecastDays() []weather.Day {
	return []weather.Day{
		{
			Date:       weather.Date{Day: 19, Month: 10, Year: 2026},
			Low:        weather.Temperature{Fahrenheit: "48"},
			High:       weather.Temperature{Fahrenheit: "61"},
			Conditions: "Partly Cloudy",
		},
		{
			Date:       weather.Date{Day: 20, Month: 10, Year: 2026},
			Low:        weather.Temperature{Fahrenheit: "44"},
			Conditions: "Rain",
		},
	}
}

func taskList() []toodledo.Task {
	return []toodledo.Task{
		{ID: "1", Title: title("Buy milk")},
		{ID: "2"},
		{ID: "3", Title: title("")},
		{ID: "4", Title: title("Call mom")},
	}
}
