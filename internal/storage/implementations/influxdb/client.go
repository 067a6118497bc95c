package influxdb

import (
	"context"
	"fmt"
	"sort"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

// InfluxDBConfig contains configuration for the forecast sink
type InfluxDBConfig struct {
	URL          string        `json:"url" yaml:"url" mapstructure:"url"`
	Token        string        `json:"token" yaml:"token" mapstructure:"token"`
	Organization string        `json:"organization" yaml:"organization" mapstructure:"organization"`
	Bucket       string        `json:"bucket" yaml:"bucket" mapstructure:"bucket"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	UseGZip      bool          `json:"use_gzip" yaml:"use_gzip" mapstructure:"use_gzip"`
}

// ForecastSink writes forecast series to InfluxDB, one point per period
// tagged by product, granularity and scenario.
type ForecastSink struct {
	config    *InfluxDBConfig
	client    influxdb2.Client
	writeAPI  api.WriteAPIBlocking
	queryAPI  api.QueryAPI
	logger    *logrus.Logger
	connected bool
}

// NewForecastSink creates a sink. Call Connect before writing.
func NewForecastSink(config *InfluxDBConfig, logger *logrus.Logger) (*ForecastSink, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "InfluxDB config cannot be nil")
	}
	if config.URL == "" || config.Bucket == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "InfluxDB url and bucket are required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &ForecastSink{
		config: config,
		logger: logger,
	}, nil
}

// Connect establishes connection to InfluxDB
func (s *ForecastSink) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}

	options := influxdb2.DefaultOptions()
	options.SetUseGZip(s.config.UseGZip)
	options.SetPrecision(time.Second)
	options.SetHTTPRequestTimeout(uint(s.config.Timeout.Seconds()))

	s.client = influxdb2.NewClientWithOptions(s.config.URL, s.config.Token, options)

	ok, err := s.client.Ping(ctx)
	if err != nil {
		s.client.Close()
		return errors.WrapStorageError(err, errors.CodeConnectionFailed, "Failed to connect to InfluxDB")
	}
	if !ok {
		s.client.Close()
		return errors.NewStorageError(errors.CodeConnectionFailed, "InfluxDB ping failed")
	}

	s.writeAPI = s.client.WriteAPIBlocking(s.config.Organization, s.config.Bucket)
	s.queryAPI = s.client.QueryAPI(s.config.Organization)
	s.connected = true

	s.logger.WithFields(logrus.Fields{
		"url":          s.config.URL,
		"organization": s.config.Organization,
		"bucket":       s.config.Bucket,
	}).Info("Connected to InfluxDB")
	return nil
}

// Close closes the connection to InfluxDB
func (s *ForecastSink) Close() error {
	if !s.connected {
		return nil
	}
	s.client.Close()
	s.connected = false
	s.logger.Info("Disconnected from InfluxDB")
	return nil
}

// WriteForecast stores every period of fc
func (s *ForecastSink) WriteForecast(ctx context.Context, fc *models.Forecast) error {
	if !s.connected {
		return errors.NewStorageError(errors.CodeConnectionFailed, "Not connected to InfluxDB")
	}
	if fc == nil || len(fc.Units) == 0 {
		return errors.NewValidationError(errors.CodeInvalidInput, "forecast has no periods")
	}

	points, err := ForecastPoints(fc)
	if err != nil {
		return err
	}
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return errors.WrapStorageError(err, errors.CodeWriteFailed, "Failed to write forecast to InfluxDB")
	}

	s.logger.WithFields(logrus.Fields{
		"product":     fc.Product,
		"granularity": fc.Granularity,
		"scenario":    fc.Scenario.Label(),
		"points":      len(points),
	}).Debug("Wrote forecast to InfluxDB")
	return nil
}

// ReadForecast returns the stored units of one product's forecast series
// in period order.
func (s *ForecastSink) ReadForecast(ctx context.Context, product string, granularity models.Granularity, scenario models.Scenario, since time.Time) (*models.Forecast, error) {
	if !s.connected {
		return nil, errors.NewStorageError(errors.CodeConnectionFailed, "Not connected to InfluxDB")
	}

	query := BuildFluxQuery(s.config.Bucket, product, granularity, scenario, since)
	s.logger.WithField("query", query).Debug("Executing InfluxDB query")

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, errors.WrapStorageError(err, errors.CodeReadFailed, "Failed to execute InfluxDB query")
	}
	defer result.Close()

	byPeriod := make(map[time.Time]int)
	for result.Next() {
		record := result.Record()
		switch v := record.Value().(type) {
		case int64:
			byPeriod[record.Time().UTC()] = int(v)
		case float64:
			byPeriod[record.Time().UTC()] = int(v)
		}
	}
	if result.Err() != nil {
		return nil, errors.WrapError(result.Err(), errors.ErrorTypeStorage, errors.CodeReadFailed, "Error reading query results")
	}

	fc := &models.Forecast{Product: product, Granularity: granularity, Scenario: scenario}
	for period := range byPeriod {
		fc.Periods = append(fc.Periods, period)
	}
	sort.Slice(fc.Periods, func(i, j int) bool { return fc.Periods[i].Before(fc.Periods[j]) })
	for _, period := range fc.Periods {
		fc.Units = append(fc.Units, byPeriod[period])
	}
	return fc, nil
}

// Health pings the server
func (s *ForecastSink) Health(ctx context.Context) error {
	if !s.connected {
		return errors.NewStorageError(errors.CodeConnectionFailed, "Not connected to InfluxDB")
	}
	ok, err := s.client.Ping(ctx)
	if err != nil || !ok {
		return errors.NewStorageError(errors.CodeConnectionFailed, "InfluxDB ping failed")
	}
	return nil
}

// ForecastPoints converts fc into one point per period.
func ForecastPoints(fc *models.Forecast) ([]*write.Point, error) {
	if len(fc.Periods) != len(fc.Units) {
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("forecast has %d periods but %d values", len(fc.Periods), len(fc.Units)))
	}

	tags := map[string]string{
		"product":     fc.Product,
		"granularity": string(fc.Granularity),
		"scenario":    fc.Scenario.Label(),
	}
	if fc.Strategy != "" {
		tags["strategy"] = fc.Strategy
	}

	points := make([]*write.Point, len(fc.Units))
	for i, units := range fc.Units {
		points[i] = influxdb2.NewPoint(constants.InfluxMeasurement, tags,
			map[string]interface{}{
				"units": int64(units),
				"step":  int64(i + 1),
			},
			fc.Periods[i])
	}
	return points, nil
}

// BuildFluxQuery selects the units field of one forecast series.
func BuildFluxQuery(bucket, product string, granularity models.Granularity, scenario models.Scenario, since time.Time) string {
	query := fmt.Sprintf(`from(bucket: %q)`, bucket)
	query += fmt.Sprintf(`
	|> range(start: %s)`, since.UTC().Format(time.RFC3339))
	query += fmt.Sprintf(`
	|> filter(fn: (r) => r._measurement == %q and r._field == "units")`, constants.InfluxMeasurement)
	query += fmt.Sprintf(`
	|> filter(fn: (r) => r.product == %q and r.granularity == %q and r.scenario == %q)`,
		product, string(granularity), scenario.Label())
	query += `
	|> sort(columns: ["_time"])`
	return query
}
