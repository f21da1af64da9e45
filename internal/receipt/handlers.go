package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zombor/comprobantes/internal/logger"
)

const (
	maxTextBody  = 1 << 20  // 1MB
	maxImageBody = 20 << 20 // 20MB
)

type messageResponse struct {
	Message string `json:"message"`
	Resumen string `json:"resumen,omitempty"`
}

type submitRequest struct {
	Text     string `json:"text"`
	Whatsapp string `json:"whatsapp"`
}

var internalError = messageResponse{
	Message: "❌ Error interno del servidor",
	Resumen: "📌 Intente nuevamente más tarde.",
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleHealth reports liveness and the running version
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// handleSubmit registers a comprobante from OCR text
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTextBody)).Decode(&req); err != nil {
		log.Warn("Invalid request body", "error", err)
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "❌ Solicitud inválida"})
		return
	}

	outcome, err := s.service.Submit(r.Context(), req.Text, req.Whatsapp)
	if err != nil {
		log.Error("Error submitting comprobante", "whatsapp", req.Whatsapp, "error", err)
		writeJSON(w, http.StatusInternalServerError, internalError)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// handleSubmitImage transcribes an uploaded receipt image and registers it
func (s *Server) handleSubmitImage(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	if !s.service.CanTranscribe() {
		writeJSON(w, http.StatusNotImplemented, messageResponse{
			Message: "❌ El envío de imágenes no está habilitado",
			Resumen: "📌 Envíe el texto del comprobante.",
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBody)
	if err := r.ParseMultipartForm(maxImageBody); err != nil {
		log.Warn("Error parsing multipart form", "error", err)
		msg := "❌ No se pudo leer el formulario"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "❌ La imagen es demasiado grande. El tamaño máximo es 20MB."
		}
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: msg})
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		log.Warn("Error getting file from form", "error", err)
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "❌ No se recibió ninguna imagen"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		log.Error("Error reading file data", "filename", header.Filename, "error", err)
		writeJSON(w, http.StatusInternalServerError, internalError)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFor(header.Filename)
	}

	whatsapp := r.FormValue("whatsapp")
	outcome, err := s.service.SubmitImage(r.Context(), filepath.Base(header.Filename), data, contentType, whatsapp)
	if err != nil {
		log.Error("Error submitting comprobante image", "filename", header.Filename, "whatsapp", whatsapp, "error", err)
		writeJSON(w, http.StatusInternalServerError, internalError)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// handleListComprobantes returns all comprobantes
func (s *Server) handleListComprobantes(w http.ResponseWriter, r *http.Request) {
	comprobantes, err := s.service.ListComprobantes()
	if err != nil {
		logger.FromContext(r.Context()).Error("Error listing comprobantes", "error", err)
		writeJSON(w, http.StatusInternalServerError, internalError)
		return
	}

	if comprobantes == nil {
		comprobantes = []*Comprobante{}
	}
	writeJSON(w, http.StatusOK, comprobantes)
}

// pathID parses the {id} path value; false means a 400 was written
func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "ID de comprobante inválido"})
		return 0, false
	}
	return id, true
}

// handleGetComprobante returns a single comprobante
func (s *Server) handleGetComprobante(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	c, err := s.service.GetComprobante(id)
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "Comprobante no encontrado"})
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("Error getting comprobante", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, internalError)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// handleGetComprobanteImage returns the archived image for a comprobante
func (s *Server) handleGetComprobanteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	data, contentType, err := s.service.GetComprobanteImage(id)
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "Imagen no encontrada"})
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("Error getting comprobante image", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, internalError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}
