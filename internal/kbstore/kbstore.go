// Package kbstore is an optional GORM+SQLite cache of decoded codebook
// records, used by cmd/sigcore's knowledge-base inspection mode. It is not
// on the per-frame hot path: internal/codebook.Reader serves synthesis
// directly from the resource file, the way §4.2 requires.
//
// The store uses the pure-Go SQLite dialector with WAL pragma tuning and
// routes GORM's logger through a plain *log.Logger.
package kbstore

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/dbehnke/sigcore/internal/codebook"
)

// CodebookRecord is a decoded, persisted view of one codebook entry:
// either a phase vector or a packed-Gaussian mean, tagged by Kind.
type CodebookRecord struct {
	Index     uint16 `gorm:"primarykey;not null"`
	Kind      string `gorm:"primarykey;size:16"`
	Count     int    `json:"count"`
	ScaleExp  int8   `json:"scale_exp"`
	Values    string `gorm:"size:1024" json:"values"`
	UpdatedAt time.Time
}

// TableName pins the table name independent of Go struct naming.
func (CodebookRecord) TableName() string { return "codebook_records" }

// String renders a compact one-line summary for dump tooling.
func (r CodebookRecord) String() string {
	return fmt.Sprintf("%s[%d] count=%d scaleExp=%d values=%s", r.Kind, r.Index, r.Count, r.ScaleExp, r.Values)
}

const (
	KindPhase   = "phase"
	KindMelCep  = "melcep"
	KindLogF0   = "logf0"
)

// Store wraps the GORM database instance backing the cache.
type Store struct {
	db *gorm.DB
}

// Open creates (or reopens) the cache database at path: WAL journal mode,
// a busy timeout, and a GORM logger routed through log if non-nil.
func Open(path string, log *log.Logger) (*Store, error) {
	var gormLog logger.Interface
	if log != nil {
		gormLog = logger.New(log, logger.Config{
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		})
	} else {
		gormLog = logger.Default.LogMode(logger.Silent)
	}

	dialector := sqlite.Dialector{DriverName: "sqlite", DSN: path}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := configureSQLite(sqlDB); err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&CodebookRecord{}); err != nil {
		return nil, err
	}

	if log != nil {
		log.Printf("kbstore: cache initialized at %s", path)
	}
	return &Store{db: db}, nil
}

func configureSQLite(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DumpPhase decodes and persists every phase-codebook entry up to (and
// excluding) limit.
func (s *Store) DumpPhase(r *codebook.Reader, limit int) (int, error) {
	n := r.NumPhaseEntries()
	if limit > 0 && limit < n {
		n = limit
	}
	written := 0
	for i := 0; i < n; i++ {
		vec, count, err := r.PhaseVector(uint16(i))
		if err != nil {
			continue
		}
		rec := CodebookRecord{
			Index:     uint16(i),
			Kind:      KindPhase,
			Count:     count,
			ScaleExp:  0,
			Values:    joinInt32(vec[:count]),
			UpdatedAt: time.Now(),
		}
		if err := s.db.Save(&rec).Error; err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// DumpMeans decodes and persists mel-cepstrum and log-F0 mean records up
// to (and excluding) limit.
func (s *Store) DumpMeans(r *codebook.Reader, limit int) (int, error) {
	n := r.NumMeanEntries()
	if limit > 0 && limit < n {
		n = limit
	}
	written := 0
	for i := 0; i < n; i++ {
		if coeffs, exp, err := r.MelCepstrumMean(uint16(i)); err == nil {
			rec := CodebookRecord{
				Index: uint16(i), Kind: KindMelCep, Count: len(coeffs),
				ScaleExp: exp, Values: joinInt32(coeffs), UpdatedAt: time.Now(),
			}
			if err := s.db.Save(&rec).Error; err != nil {
				return written, err
			}
			written++
		}
		if mean, exp, err := r.LogF0Mean(uint16(i)); err == nil {
			rec := CodebookRecord{
				Index: uint16(i), Kind: KindLogF0, Count: 1,
				ScaleExp: exp, Values: joinInt32([]int32{mean}), UpdatedAt: time.Now(),
			}
			if err := s.db.Save(&rec).Error; err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Records returns every persisted record, ordered by kind then index, for
// the dump tool's listing output.
func (s *Store) Records() ([]CodebookRecord, error) {
	var recs []CodebookRecord
	err := s.db.Order("kind").Order("`index`").Find(&recs).Error
	return recs, err
}

func joinInt32(vals []int32) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ",")
}
