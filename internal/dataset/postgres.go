package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

// PostgresConfig holds connection settings for the transaction table
type PostgresConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	Database        string        `json:"database" mapstructure:"database"`
	Username        string        `json:"username" mapstructure:"username"`
	Password        string        `json:"password" mapstructure:"password"`
	SSLMode         string        `json:"ssl_mode" mapstructure:"ssl_mode"`
	Table           string        `json:"table" mapstructure:"table"`
	ConnectTimeout  time.Duration `json:"connect_timeout" mapstructure:"connect_timeout"`
	QueryTimeout    time.Duration `json:"query_timeout" mapstructure:"query_timeout"`
	MaxConnections  int           `json:"max_connections" mapstructure:"max_connections"`
	MaxIdleConns    int           `json:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// canonicalColumns is the read order of the transaction table.
var canonicalColumns = []string{
	constants.ColumnDate,
	constants.ColumnProductID,
	constants.ColumnProductName,
	constants.ColumnBrand,
	constants.ColumnCategory,
	constants.ColumnPrice,
	constants.ColumnQuantity,
	constants.ColumnProfitPerUnit,
	constants.ColumnProfitTotal,
	constants.ColumnPromotion,
	constants.ColumnHoliday,
}

// PostgresSource reads transactions from a PostgreSQL table.
type PostgresSource struct {
	config *PostgresConfig
	db     *sql.DB
	logger *logrus.Logger
	mu     sync.RWMutex
}

// NewPostgresSource creates a new PostgreSQL transaction source
func NewPostgresSource(config *PostgresConfig, logger *logrus.Logger) (*PostgresSource, error) {
	if config == nil {
		return nil, errors.NewConfigurationError("postgres config cannot be nil")
	}
	if config.Table == "" {
		return nil, errors.NewConfigurationError("postgres table name is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &PostgresSource{config: config, logger: logger}, nil
}

// Name implements interfaces.TransactionSource
func (s *PostgresSource) Name() string {
	return "postgres:" + s.config.Table
}

// Connect opens the pool and pings the server
func (s *PostgresSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := sql.Open("postgres", s.connString())
	if err != nil {
		return errors.WrapStorageError(err, errors.CodeConnectionFailed, "failed to open database connection")
	}

	if s.config.MaxConnections > 0 {
		db.SetMaxOpenConns(s.config.MaxConnections)
	}
	if s.config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(s.config.MaxIdleConns)
	}
	if s.config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(s.config.ConnMaxLifetime)
	}

	pingCtx := ctx
	if s.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, s.config.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return errors.WrapStorageError(err, errors.CodeConnectionFailed, "failed to ping database")
	}

	s.db = db
	s.logger.WithFields(logrus.Fields{
		"host":     s.config.Host,
		"database": s.config.Database,
		"table":    s.config.Table,
	}).Info("Connected to PostgreSQL")
	return nil
}

func (s *PostgresSource) connString() string {
	sslMode := s.config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.config.Host, s.config.Port, s.config.Username, s.config.Password, s.config.Database, sslMode)
}

// selectQuery reads every canonical column as text so that parsing matches
// the CSV path.
func (s *PostgresSource) selectQuery() string {
	cols := make([]string, len(canonicalColumns))
	for i, c := range canonicalColumns {
		cols[i] = pq.QuoteIdentifier(c) + "::text"
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), quoteTable(s.config.Table))
}

// quoteTable quotes an optionally schema-qualified table name.
func quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// Load implements interfaces.TransactionSource
func (s *PostgresSource) Load(ctx context.Context) ([]models.Transaction, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()

	if s.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.QueryTimeout)
		defer cancel()
	}

	rows, err := db.QueryContext(ctx, s.selectQuery())
	if err != nil {
		return nil, errors.WrapStorageError(err, errors.CodeReadFailed, "failed to query transactions")
	}
	defer rows.Close()

	var (
		txs     []models.Transaction
		total   int
		dropped int
	)
	values := make([]sql.NullString, len(canonicalColumns))
	dest := make([]interface{}, len(canonicalColumns))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.WrapStorageError(err, errors.CodeReadFailed, "failed to scan transaction row")
		}
		total++
		record := make(map[string]string, len(canonicalColumns))
		for i, c := range canonicalColumns {
			if values[i].Valid {
				record[c] = values[i].String
			}
		}
		tx, ok := parseRecord(func(column string) string { return record[column] })
		if !ok {
			dropped++
			continue
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStorageError(err, errors.CodeReadFailed, "failed to iterate transactions")
	}

	s.logger.WithFields(logrus.Fields{
		"table":   s.config.Table,
		"rows":    total,
		"dropped": dropped,
	}).Info("Loaded transactions from PostgreSQL")
	return txs, nil
}

// Close closes the connection pool
func (s *PostgresSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
