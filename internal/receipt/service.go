package receipt

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/comprobantes/internal/extraction"
	"github.com/zombor/comprobantes/internal/logger"
	"github.com/zombor/comprobantes/internal/scanning"
)

// ErrNoTranscriber is returned by SubmitImage when no vision model is configured
var ErrNoTranscriber = errors.New("no transcriber configured")

// OutcomeKind classifies the result of a submission
type OutcomeKind string

const (
	OutcomeInvalidInput OutcomeKind = "invalido"
	OutcomeRejected     OutcomeKind = "rechazado"
	OutcomeDuplicate    OutcomeKind = "duplicado"
	OutcomeRegistered   OutcomeKind = "registrado"
)

// Outcome is the user-facing reply to a submission. Message and Resumen are
// relayed verbatim to the sender.
type Outcome struct {
	Kind        OutcomeKind  `json:"estado"`
	Message     string       `json:"message"`
	Resumen     string       `json:"resumen"`
	Comprobante *Comprobante `json:"comprobante,omitempty"`
}

const (
	msgInvalidInput  = "❌ No se recibió información válida"
	msgNoNumber      = "❌ No se pudo extraer información válida del comprobante."
	msgSupport       = "Si tiene algún problema con su servicio escriba al número de Soporte por favor."
	msgIllegibleScan = "❌ No se pudo leer el comprobante."
	summaryFormat    = "📌 **Número:** %s\n📞 **Enviado desde:** %s\n📅 **Fecha de envío:** %s\n💰 **Monto:** $%s"
)

// Extractor turns OCR text into receipt fields
type Extractor interface {
	Extract(text string) (*extraction.Receipt, error)
}

// IDGenerator generates unique IDs for archived images
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()[:8]
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service registers comprobantes and rejects duplicates
type Service struct {
	db           DB
	extractor    Extractor
	transcriber  scanning.Transcriber
	storage      Storage
	idGenerator  IDGenerator
	timeSource   TimeSource
	supportPhone string
}

// NewService creates a new Service with default ID generator and time source.
// transcriber may be nil, in which case SubmitImage returns ErrNoTranscriber.
func NewService(db DB, extractor Extractor, transcriber scanning.Transcriber, storage Storage, supportPhone string) *Service {
	return NewServiceWithDeps(db, extractor, transcriber, storage, supportPhone, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor Extractor, transcriber scanning.Transcriber, storage Storage, supportPhone string, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:           db,
		extractor:    extractor,
		transcriber:  transcriber,
		storage:      storage,
		idGenerator:  idGen,
		timeSource:   timeSrc,
		supportPhone: supportPhone,
	}
}

var (
	filenameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	filenameSpaces = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters from phone-generated names and caps the length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := filenameUnsafe.ReplaceAllString(filepath.Ext(filename), "")
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = filenameUnsafe.ReplaceAllString(base, "")
	base = strings.TrimSpace(filenameSpaces.ReplaceAllString(base, " "))
	base = strings.ReplaceAll(base, " ", "_")

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "comprobante"
	}
	if ext != "" {
		return base + "." + ext
	}
	return base
}

type attachment struct {
	filename string
	data     []byte
}

// CanTranscribe reports whether image submissions are supported
func (s *Service) CanTranscribe() bool {
	return s.transcriber != nil
}

// Submit extracts a comprobante from OCR text and registers it for whatsapp.
// Logical outcomes (invalid, rejected, duplicate, registered) are returned as an
// Outcome; only store failures return an error.
func (s *Service) Submit(ctx context.Context, text, whatsapp string) (*Outcome, error) {
	return s.submit(ctx, text, whatsapp, nil)
}

// SubmitImage transcribes a receipt image and submits the text. On registration
// the image is archived and its file name recorded on the comprobante.
func (s *Service) SubmitImage(ctx context.Context, filename string, data []byte, contentType, whatsapp string) (*Outcome, error) {
	if s.transcriber == nil {
		return nil, ErrNoTranscriber
	}
	if len(data) == 0 || strings.TrimSpace(whatsapp) == "" {
		return s.invalidInput(), nil
	}

	log := logger.FromContext(ctx)
	t, err := s.transcriber.Transcribe(ctx, data, contentType)
	if err != nil {
		log.Error("Failed to transcribe receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("transcribing receipt: %w", err)
	}
	if !t.Legible {
		log.Info("Receipt image not legible", "filename", filename)
		return &Outcome{Kind: OutcomeRejected, Message: msgIllegibleScan, Resumen: extraction.ResendHint()}, nil
	}

	return s.submit(ctx, t.Text, whatsapp, &attachment{filename: filename, data: data})
}

func (s *Service) submit(ctx context.Context, text, whatsapp string, img *attachment) (*Outcome, error) {
	log := logger.FromContext(ctx)

	text = strings.TrimSpace(text)
	whatsapp = strings.TrimSpace(whatsapp)
	if text == "" || whatsapp == "" {
		return s.invalidInput(), nil
	}

	rec, err := s.extractor.Extract(text)
	if err != nil {
		log.Info("Receipt rejected", "whatsapp", whatsapp, "reason", err)
		return s.rejected(err), nil
	}
	log.Info("Receipt classified",
		"rule", rec.Rule,
		"banco", rec.Bank,
		"numero", rec.Number,
		"monto", rec.AmountString(),
		"fecha_encontrada", rec.DateFound,
	)

	c := &Comprobante{
		Numero:      rec.Number,
		Nombres:     rec.Payer,
		Descripcion: defaultDescripcion,
		Fecha:       rec.Date,
		Whatsapp:    whatsapp,
		Monto:       rec.AmountString(),
		Banco:       string(rec.Bank),
		CreatedAt:   s.timeSource.Now(),
	}
	if c.Nombres == "" {
		c.Nombres = defaultNombres
	}

	if img != nil {
		name := fmt.Sprintf("%s_%s_%s", sanitizeFilename(rec.Number), s.idGenerator.Generate(), sanitizeFilename(img.filename))
		saved, err := s.storage.Save(name, img.data)
		if err != nil {
			return nil, fmt.Errorf("saving image: %w", err)
		}
		c.Imagen = saved
	}

	err = s.db.CreateComprobante(c)
	if errors.Is(err, ErrDuplicate) {
		s.discardImage(ctx, c.Imagen)
		existing, err := s.db.GetComprobanteByNumero(c.Numero)
		if err != nil {
			return nil, fmt.Errorf("loading registered comprobante: %w", err)
		}
		log.Info("Comprobante already registered", "numero", existing.Numero, "whatsapp", existing.Whatsapp)
		return &Outcome{
			Kind:        OutcomeDuplicate,
			Message:     fmt.Sprintf("🚫 Este comprobante ya ha sido presentado por el número %s.", existing.Whatsapp),
			Resumen:     summary(existing),
			Comprobante: existing,
		}, nil
	}
	if err != nil {
		s.discardImage(ctx, c.Imagen)
		return nil, fmt.Errorf("saving comprobante: %w", err)
	}

	log.Info("Comprobante registered", "id", c.ID, "numero", c.Numero)
	return &Outcome{
		Kind:        OutcomeRegistered,
		Message:     fmt.Sprintf("✅ Comprobante registrado exitosamente desde el número %s.", whatsapp),
		Resumen:     summary(c),
		Comprobante: c,
	}, nil
}

func summary(c *Comprobante) string {
	return fmt.Sprintf(summaryFormat, c.Numero, c.Whatsapp, c.Fecha, c.Monto)
}

func (s *Service) invalidInput() *Outcome {
	return &Outcome{Kind: OutcomeInvalidInput, Message: msgInvalidInput, Resumen: extraction.ResendHint()}
}

func (s *Service) rejected(err error) *Outcome {
	var rej *extraction.Rejection
	if errors.As(err, &rej) && errors.Is(rej.Kind, extraction.ErrNoReceiptNumber) {
		return &Outcome{Kind: OutcomeRejected, Message: msgNoNumber, Resumen: rej.Hint}
	}

	resumen := "👉 *Soporte* 👈"
	if s.supportPhone != "" {
		resumen = fmt.Sprintf("👉 *Soporte:* %s 👈", s.supportPhone)
	}
	return &Outcome{Kind: OutcomeRejected, Message: msgSupport, Resumen: resumen}
}

func (s *Service) discardImage(ctx context.Context, name string) {
	if name == "" {
		return
	}
	if err := s.storage.Delete(name); err != nil {
		logger.FromContext(ctx).Warn("Failed to delete image", "filename", name, "error", err)
	}
}

// GetComprobante retrieves a comprobante by ID
func (s *Service) GetComprobante(id uint64) (*Comprobante, error) {
	c, err := s.db.GetComprobante(id)
	if err != nil {
		return nil, fmt.Errorf("getting comprobante: %w", err)
	}
	return c, nil
}

// ListComprobantes returns all comprobantes
func (s *Service) ListComprobantes() ([]*Comprobante, error) {
	comprobantes, err := s.db.ListComprobantes()
	if err != nil {
		return nil, fmt.Errorf("listing comprobantes: %w", err)
	}
	return comprobantes, nil
}

// GetComprobanteImage returns the archived image of a comprobante and its content type
func (s *Service) GetComprobanteImage(id uint64) ([]byte, string, error) {
	c, err := s.db.GetComprobante(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting comprobante: %w", err)
	}
	if c.Imagen == "" {
		return nil, "", fmt.Errorf("comprobante %d has no image: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(c.Imagen)
	if err != nil {
		return nil, "", fmt.Errorf("getting image: %w", err)
	}
	return data, contentTypeFor(c.Imagen), nil
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}
