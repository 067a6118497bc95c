package influxdb

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

func sampleForecast() *models.Forecast {
	return &models.Forecast{
		Product:     "Rifle X",
		Granularity: models.GranularityMonthly,
		Scenario:    models.Scenario{Promotion: "C"},
		Periods: []time.Time{
			time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
		},
		Units: []int{15, 17},
	}
}

func TestNewForecastSink(t *testing.T) {
	sink, err := NewForecastSink(&InfluxDBConfig{URL: "http://localhost:8086", Bucket: "forecasts"}, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, sink.config.Timeout)

	_, err = NewForecastSink(nil, nil)
	assert.Error(t, err)

	_, err = NewForecastSink(&InfluxDBConfig{URL: "http://localhost:8086"}, nil)
	assert.Error(t, err)
}

func TestForecastPoints(t *testing.T) {
	points, err := ForecastPoints(sampleForecast())
	require.NoError(t, err)
	require.Len(t, points, 2)

	line := write.PointToLineProtocol(points[1], time.Second)
	assert.True(t, strings.HasPrefix(line, constants.InfluxMeasurement+","), line)
	assert.Contains(t, line, `product=Rifle\ X`)
	assert.Contains(t, line, "granularity=monthly")
	assert.Contains(t, line, "scenario=promoC")
	assert.Contains(t, line, "units=17i")
	assert.Contains(t, line, "step=2i")
	assert.Contains(t, line, "1706745600")
}

func TestForecastPointsLengthMismatch(t *testing.T) {
	fc := sampleForecast()
	fc.Units = fc.Units[:1]
	_, err := ForecastPoints(fc)
	assert.ErrorIs(t, err, errors.ErrInvalidInputData)
}

func TestBuildFluxQuery(t *testing.T) {
	since := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	query := BuildFluxQuery("forecasts", "Rifle X", models.GranularityWeekly, models.Scenario{}, since)

	assert.Contains(t, query, `from(bucket: "forecasts")`)
	assert.Contains(t, query, "range(start: 2024-01-01T00:00:00Z)")
	assert.Contains(t, query, `r.product == "Rifle X"`)
	assert.Contains(t, query, `r.granularity == "weekly"`)
	assert.Contains(t, query, `r.scenario == "baseline"`)
}

func TestWriteForecastNotConnected(t *testing.T) {
	sink, err := NewForecastSink(&InfluxDBConfig{URL: "http://localhost:8086", Bucket: "forecasts"}, nil)
	require.NoError(t, err)

	err = sink.WriteForecast(context.Background(), sampleForecast())
	assert.ErrorIs(t, err, errors.ErrStorageConnectionFailed)
	assert.NoError(t, sink.Close())
}
