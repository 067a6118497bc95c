package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

// ReadResult is the outcome of parsing a transaction table.
type ReadResult struct {
	Transactions []models.Transaction
	Rows         int
	Dropped      int
}

// ReadTransactions parses a CSV table with the canonical column names.
// Rows with an unparseable date or no product name are dropped and counted.
func ReadTransactions(r io.Reader) (*ReadResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.NewValidationError(errors.CodeInvalidInput, "dataset has no header row")
		}
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "failed to read dataset header").
			WithDetails(err.Error())
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[NormalizeHeader(h)] = i
	}
	for _, required := range []string{constants.ColumnDate, constants.ColumnProductName, constants.ColumnQuantity} {
		if _, ok := index[required]; !ok {
			return nil, errors.NewValidationError(errors.CodeInvalidInput,
				fmt.Sprintf("dataset is missing required column %q", required))
		}
	}

	result := &ReadResult{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewValidationError(errors.CodeInvalidInput, "malformed dataset row").
				WithDetails(err.Error())
		}
		result.Rows++

		get := func(column string) string {
			i, ok := index[column]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}
		tx, ok := parseRecord(get)
		if !ok {
			result.Dropped++
			continue
		}
		result.Transactions = append(result.Transactions, tx)
	}
	return result, nil
}

// CSVSource loads transactions from a CSV file on disk.
type CSVSource struct {
	path   string
	logger *logrus.Logger
}

// NewCSVSource creates a CSV-backed transaction source
func NewCSVSource(path string, logger *logrus.Logger) *CSVSource {
	if logger == nil {
		logger = logrus.New()
	}
	return &CSVSource{path: path, logger: logger}
}

// Name implements interfaces.TransactionSource
func (s *CSVSource) Name() string {
	return "csv:" + s.path
}

// Path returns the file the source reads.
func (s *CSVSource) Path() string {
	return s.path
}

// Load implements interfaces.TransactionSource
func (s *CSVSource) Load(ctx context.Context) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.WrapStorageError(err, errors.CodeReadFailed,
			fmt.Sprintf("failed to open dataset %s", s.path))
	}
	defer f.Close()

	result, err := ReadTransactions(f)
	if err != nil {
		return nil, err
	}

	entry := s.logger.WithFields(logrus.Fields{
		"path":    s.path,
		"rows":    result.Rows,
		"kept":    len(result.Transactions),
		"dropped": result.Dropped,
	})
	if result.Dropped > 0 {
		entry.Warn("Dropped dataset rows with invalid dates")
	} else {
		entry.Info("Loaded dataset")
	}
	return result.Transactions, nil
}
