package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/salesforecast/pkg/interfaces"
	"github.com/inferloop/salesforecast/pkg/models"
)

// Snapshot is an immutable view of the loaded dataset.
type Snapshot struct {
	Transactions []models.Transaction
	Products     []string
	Version      string
	LoadedAt     time.Time
}

// Store holds the current dataset in memory. Reloading replaces the
// snapshot atomically; readers keep whatever snapshot they already hold.
type Store struct {
	source   interfaces.TransactionSource
	logger   *logrus.Logger
	mu       sync.RWMutex
	snapshot *Snapshot
}

// NewStore creates an empty store backed by source
func NewStore(source interfaces.TransactionSource, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{
		source:   source,
		logger:   logger,
		snapshot: newSnapshot(nil),
	}
}

// Reload reads the source again and swaps the snapshot in.
func (s *Store) Reload(ctx context.Context) error {
	if s.source == nil {
		return fmt.Errorf("dataset store has no source")
	}
	txs, err := s.source.Load(ctx)
	if err != nil {
		return err
	}
	s.Replace(txs)
	return nil
}

// Replace installs txs as the current dataset.
func (s *Store) Replace(txs []models.Transaction) {
	snap := newSnapshot(NormalizeProfit(txs))

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"transactions": len(snap.Transactions),
		"products":     len(snap.Products),
		"version":      snap.Version,
	}).Info("Dataset replaced")
}

// Snapshot returns the current dataset view.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Transactions returns the current rows.
func (s *Store) Transactions() []models.Transaction {
	return s.Snapshot().Transactions
}

// Products returns the sorted distinct product names.
func (s *Store) Products() []string {
	return s.Snapshot().Products
}

// Version identifies the dataset content.
func (s *Store) Version() string {
	return s.Snapshot().Version
}

func newSnapshot(txs []models.Transaction) *Snapshot {
	return &Snapshot{
		Transactions: txs,
		Products:     ProductNames(txs),
		Version:      contentVersion(txs),
		LoadedAt:     time.Now().UTC(),
	}
}

// ProductNames returns the sorted distinct product names in txs.
func ProductNames(txs []models.Transaction) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, tx := range txs {
		if _, ok := seen[tx.ProductName]; ok {
			continue
		}
		seen[tx.ProductName] = struct{}{}
		names = append(names, tx.ProductName)
	}
	sort.Strings(names)
	return names
}

func contentVersion(txs []models.Transaction) string {
	h := sha256.New()
	for _, tx := range txs {
		fmt.Fprintf(h, "%s|%s|%d|%g|%s|%s|%s|%s\n",
			tx.Date.Format("2006-01-02"), tx.ProductName, tx.Quantity, tx.Price,
			formatOptional(tx.ProfitPerUnit), formatOptional(tx.ProfitTotal),
			tx.PromotionCode, tx.HolidayCode)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%g", *v)
}
