package receipt

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no comprobante matches the lookup
	ErrNotFound = errors.New("comprobante not found")
	// ErrDuplicate is returned when a comprobante with the same numero already exists
	ErrDuplicate = errors.New("comprobante already registered")
)

const (
	defaultNombres     = "Desconocido"
	defaultDescripcion = "Pago recibido"
)

// Comprobante is a stored payment receipt. Numero is unique across the store.
type Comprobante struct {
	ID          uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Numero      string    `json:"numero" gorm:"uniqueIndex;not null"`
	Nombres     string    `json:"nombres"`
	Descripcion string    `json:"descripcion"`
	Fecha       string    `json:"fecha"`
	Whatsapp    string    `json:"whatsapp" gorm:"index"`
	Monto       string    `json:"monto"`
	Banco       string    `json:"banco"`
	Imagen      string    `json:"imagen,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName keeps the table name stable regardless of gorm's pluralization
func (Comprobante) TableName() string {
	return "comprobantes"
}
