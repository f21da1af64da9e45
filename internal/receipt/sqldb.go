package receipt

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SQLDB implements the DB interface on SQLite through gorm. The unique index on
// numero makes the store, not the caller, the arbiter of duplicates.
type SQLDB struct {
	db *gorm.DB
}

// NewSQLDB opens (or creates) the SQLite database at path and migrates the schema
func NewSQLDB(path string) (*SQLDB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting connection pool: %w", err)
	}
	// SQLite allows a single writer
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Comprobante{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &SQLDB{db: db}, nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateComprobante inserts c; a unique violation on numero becomes ErrDuplicate
func (s *SQLDB) CreateComprobante(c *Comprobante) error {
	if err := s.db.Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("numero %s: %w", c.Numero, ErrDuplicate)
		}
		return fmt.Errorf("inserting comprobante: %w", err)
	}
	return nil
}

// GetComprobante retrieves a comprobante by ID
func (s *SQLDB) GetComprobante(id uint64) (*Comprobante, error) {
	var c Comprobante
	if err := s.db.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("id %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("querying comprobante: %w", err)
	}
	return &c, nil
}

// GetComprobanteByNumero retrieves a comprobante by its receipt number
func (s *SQLDB) GetComprobanteByNumero(numero string) (*Comprobante, error) {
	var c Comprobante
	if err := s.db.Where("numero = ?", numero).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("numero %s: %w", numero, ErrNotFound)
		}
		return nil, fmt.Errorf("querying comprobante: %w", err)
	}
	return &c, nil
}

// ListComprobantes returns all comprobantes ordered by ID
func (s *SQLDB) ListComprobantes() ([]*Comprobante, error) {
	comprobantes := make([]*Comprobante, 0)
	if err := s.db.Order("id").Find(&comprobantes).Error; err != nil {
		return nil, fmt.Errorf("listing comprobantes: %w", err)
	}
	return comprobantes, nil
}

// Close closes the underlying connection pool
func (s *SQLDB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
