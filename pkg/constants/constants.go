package constants

import "time"

// Application constants
const (
	// Application metadata
	AppName        = "salesforecast"
	AppDescription = "Retail sales forecasting service"
	AppVersion     = "0.1.0"

	// API constants
	APIVersion = "v1"
	APIPrefix  = "/api/v1"

	// Server defaults
	DefaultPort            = 8080
	DefaultHost            = "0.0.0.0"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Rate limiting defaults
	DefaultRateLimit  = 120 // requests per minute per client
	DefaultBurstLimit = 20

	// Cache defaults
	DefaultCacheTTL  = 5 * time.Minute
	DefaultCacheSize = 256

	// Weekly artifact cache size
	DefaultWeeklyCacheSize = 64

	// KPI fan-out
	DefaultKPIWorkers = 4
)

// Forecasting defaults
const (
	DefaultHorizon       = 12
	DefaultWeeklyHorizon = 4
	MaxHorizon           = 60
	DefaultLagDepth      = 6
	DefaultMAWindow      = 3
	WeeklySequenceLen    = 12
	WeeksPerYear         = 52
	MonthsPerYear        = 12

	// Monthly columns that are not lags: month_sin, month_cos, ma3,
	// four promo flags and four holiday flags.
	MonthlyNonLagColumns = 11
)

// Default artifact locations
const (
	DefaultModelPath  = "models/best_model_fixed.json"
	DefaultScalerPath = "models/scaler_bundle_LOG.json"
	DefaultWeeklyDir  = "weekly_models"
	ModelFormat       = "sequence-regressor/v1"
)

// Scenario classes
var (
	PromotionClasses = []string{"A", "B", "C", "D"}
	HolidayClasses   = []string{"1", "2", "3", "4"}
)

// Forecast strategies
const (
	StrategyModel  = "model"
	StrategyZigzag = "zigzag"
)

// Dataset columns, after whitespace collapsing
const (
	ColumnDate          = "Tanggal"
	ColumnProductID     = "ID Produk"
	ColumnProductName   = "Nama Produk"
	ColumnBrand         = "Brand"
	ColumnCategory      = "Kategori"
	ColumnPrice         = "Harga"
	ColumnQuantity      = "Jumlah Terjual"
	ColumnProfitPerUnit = "Keuntungan per unit"
	ColumnProfitTotal   = "Keuntungan total"
	ColumnPromotion     = "Promotion"
	ColumnHoliday       = "Holiday"
)

// HTTP headers
const (
	HeaderContentType        = "Content-Type"
	HeaderRequestID          = "X-Request-ID"
	HeaderForwardedFor       = "X-Forwarded-For"
	HeaderRealIP             = "X-Real-IP"
	HeaderRateLimit          = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRetryAfter         = "Retry-After"
)

// Content types
const (
	ContentTypeJSON = "application/json"
	ContentTypeCSV  = "text/csv"
)

// Log formats
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Environment variable prefix for configuration
const EnvPrefix = "SALESFORECAST"

// Forecast sink
const (
	InfluxMeasurement = "sales_forecast"
)

// Peak month labels for the monthly outlook.
var PeakEvents = map[time.Month]string{
	time.January:  "Tahun Baru",
	time.April:    "Idul Fitri",
	time.August:   "HUT RI",
	time.December: "Natal",
}
