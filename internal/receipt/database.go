package receipt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	comprobantesBucket = "comprobantes"
	numerosBucket      = "numeros"
)

// DB defines the interface for database operations
type DB interface {
	// CreateComprobante stores a new comprobante and assigns its ID.
	// It returns ErrDuplicate when the numero is already stored.
	CreateComprobante(c *Comprobante) error

	// GetComprobante retrieves a comprobante by ID
	GetComprobante(id uint64) (*Comprobante, error)

	// GetComprobanteByNumero retrieves a comprobante by its receipt number
	GetComprobanteByNumero(numero string) (*Comprobante, error)

	// ListComprobantes returns all comprobantes ordered by ID
	ListComprobantes() ([]*Comprobante, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB.
// Records live in one bucket keyed by ID; a second bucket maps numero to ID.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(comprobantesBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(numerosBucket)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// CreateComprobante checks the numero index and writes both buckets in one transaction
func (b *BoltDB) CreateComprobante(c *Comprobante) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		index := tx.Bucket([]byte(numerosBucket))
		if index.Get([]byte(c.Numero)) != nil {
			return fmt.Errorf("numero %s: %w", c.Numero, ErrDuplicate)
		}

		bucket := tx.Bucket([]byte(comprobantesBucket))
		id, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating id: %w", err)
		}
		c.ID = id

		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshaling comprobante: %w", err)
		}
		if err := bucket.Put(itob(id), data); err != nil {
			return err
		}
		return index.Put([]byte(c.Numero), itob(id))
	})
}

// GetComprobante retrieves a comprobante by ID
func (b *BoltDB) GetComprobante(id uint64) (*Comprobante, error) {
	var c *Comprobante
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(comprobantesBucket)).Get(itob(id))
		if data == nil {
			return fmt.Errorf("id %d: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetComprobanteByNumero resolves the numero through the index bucket
func (b *BoltDB) GetComprobanteByNumero(numero string) (*Comprobante, error) {
	var c *Comprobante
	err := b.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(numerosBucket)).Get([]byte(numero))
		if id == nil {
			return fmt.Errorf("numero %s: %w", numero, ErrNotFound)
		}
		data := tx.Bucket([]byte(comprobantesBucket)).Get(id)
		if data == nil {
			return fmt.Errorf("numero %s: dangling index: %w", numero, ErrNotFound)
		}
		return json.Unmarshal(data, &c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListComprobantes returns all comprobantes ordered by ID
func (b *BoltDB) ListComprobantes() ([]*Comprobante, error) {
	comprobantes := make([]*Comprobante, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(comprobantesBucket))
		return bucket.ForEach(func(k, v []byte) error {
			var c Comprobante
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("unmarshaling comprobante: %w", err)
			}
			comprobantes = append(comprobantes, &c)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return comprobantes, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
