package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/comprobantes/internal/scanning"
)

func postJSON(url string, v any) *http.Response {
	body, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func decodeBody(resp *http.Response, v any) {
	defer resp.Body.Close()
	Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
}

func imageForm(filename, contentType string, data []byte, whatsapp string) (*bytes.Buffer, string) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	if filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(w.WriteField("whatsapp", whatsapp)).To(Succeed())
	Expect(w.Close()).To(Succeed())
	return &b, w.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		transcriber scanning.Transcriber
		auth        BasicAuth
		server      *Server
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		service := NewServiceWithDeps(db, testExtractor(), transcriber, storage, "0999999999",
			&mockIDGenerator{ids: []string{"aaaa1111", "bbbb2222"}}, &mockTimeSource{now: testNow})
		server = NewServerWithMux(service, auth, "v1.2.3", http.NewServeMux())
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP, server.ServeHTTP, server.ServeHTTP)
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		transcriber = nil
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("GET /health", func() {
		It("should report the version", func() {
			resp, err := http.Get(ghttpServer.URL() + "/health")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body map[string]string
			decodeBody(resp, &body)
			Expect(body).To(Equal(map[string]string{"status": "ok", "version": "v1.2.3"}))
		})

		It("should tag the response with a request ID", func() {
			resp, err := http.Get(ghttpServer.URL() + "/health")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.Header.Get("X-Request-ID")).NotTo(BeEmpty())
		})
	})

	Describe("POST /comprobantes", func() {
		When("the receipt is new", func() {
			It("should register it", func() {
				resp := postJSON(ghttpServer.URL()+"/comprobantes", submitRequest{Text: pacificoText, Whatsapp: "0991112233"})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var outcome Outcome
				decodeBody(resp, &outcome)
				Expect(outcome.Kind).To(Equal(OutcomeRegistered))
				Expect(outcome.Message).To(ContainSubstring("0991112233"))
				Expect(outcome.Resumen).To(ContainSubstring("**Número:** 123456"))
				Expect(db.comprobantes).To(HaveLen(1))
			})
		})

		When("the same receipt is sent twice", func() {
			It("should store it once and reference the first sender", func() {
				first := postJSON(ghttpServer.URL()+"/comprobantes", submitRequest{Text: pacificoText, Whatsapp: "0980000001"})
				first.Body.Close()

				resp := postJSON(ghttpServer.URL()+"/comprobantes", submitRequest{Text: pacificoText, Whatsapp: "0991112233"})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var outcome Outcome
				decodeBody(resp, &outcome)
				Expect(outcome.Kind).To(Equal(OutcomeDuplicate))
				Expect(outcome.Message).To(Equal("🚫 Este comprobante ya ha sido presentado por el número 0980000001."))
				Expect(db.comprobantes).To(HaveLen(1))
			})
		})

		When("the text is not a receipt", func() {
			It("should answer 200 with the support message", func() {
				resp := postJSON(ghttpServer.URL()+"/comprobantes", submitRequest{
					Text:     "Hola, le escribo para consultar por el horario de atención del local mañana.",
					Whatsapp: "0991112233",
				})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var body messageResponse
				decodeBody(resp, &body)
				Expect(body.Resumen).To(Equal("👉 *Soporte:* 0999999999 👈"))
			})
		})

		When("fields are missing", func() {
			It("should answer 200 with the invalid input message", func() {
				resp := postJSON(ghttpServer.URL()+"/comprobantes", map[string]string{"text": pacificoText})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var body messageResponse
				decodeBody(resp, &body)
				Expect(body.Message).To(Equal("❌ No se recibió información válida"))
			})
		})

		When("the body is not JSON", func() {
			It("should return Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/comprobantes", "application/json", strings.NewReader("text=hola"))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the store fails", func() {
			BeforeEach(func() {
				db.createErr = errors.New("database is locked")
			})

			It("should return 500 with a retry message", func() {
				resp := postJSON(ghttpServer.URL()+"/comprobantes", submitRequest{Text: pacificoText, Whatsapp: "0991112233"})
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))

				var body messageResponse
				decodeBody(resp, &body)
				Expect(body).To(Equal(messageResponse{
					Message: "❌ Error interno del servidor",
					Resumen: "📌 Intente nuevamente más tarde.",
				}))
			})
		})
	})

	Describe("POST /comprobantes/imagen", func() {
		When("no transcriber is configured", func() {
			It("should return Not Implemented", func() {
				body, contentType := imageForm("recibo.jpg", "image/jpeg", []byte("jpeg"), "0991112233")
				resp, err := http.Post(ghttpServer.URL()+"/comprobantes/imagen", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotImplemented))
			})
		})

		When("a transcriber is configured", func() {
			BeforeEach(func() {
				transcriber = &mockTranscriber{result: &scanning.Transcription{Text: pacificoText, Legible: true}}
				setupServer()
			})

			It("should register the receipt and archive the image", func() {
				body, contentType := imageForm("recibo.jpg", "image/jpeg", []byte("jpeg"), "0991112233")
				resp, err := http.Post(ghttpServer.URL()+"/comprobantes/imagen", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var outcome Outcome
				decodeBody(resp, &outcome)
				Expect(outcome.Kind).To(Equal(OutcomeRegistered))
				Expect(outcome.Comprobante.Imagen).To(Equal("123456_aaaa1111_recibo.jpg"))
				Expect(storage.files).To(HaveKey("123456_aaaa1111_recibo.jpg"))
			})

			It("should return Bad Request without a file", func() {
				body, contentType := imageForm("", "", nil, "0991112233")
				resp, err := http.Post(ghttpServer.URL()+"/comprobantes/imagen", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})

			It("should return Bad Request for a malformed form", func() {
				resp, err := http.Post(ghttpServer.URL()+"/comprobantes/imagen", "multipart/form-data", strings.NewReader("invalid"))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("GET /comprobantes", func() {
		It("should return an empty array when nothing is stored", func() {
			resp, err := http.Get(ghttpServer.URL() + "/comprobantes")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			raw, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.TrimSpace(string(raw))).To(Equal("[]"))
		})

		It("should list stored comprobantes", func() {
			Expect(db.CreateComprobante(&Comprobante{Numero: "1", Whatsapp: "0991"})).To(Succeed())
			Expect(db.CreateComprobante(&Comprobante{Numero: "2", Whatsapp: "0992"})).To(Succeed())

			resp, err := http.Get(ghttpServer.URL() + "/comprobantes")
			Expect(err).NotTo(HaveOccurred())

			var list []*Comprobante
			decodeBody(resp, &list)
			Expect(list).To(HaveLen(2))
			Expect(list[0].Numero).To(Equal("1"))
		})

		It("should return 500 when the store fails", func() {
			db.listErr = errors.New("boom")
			resp, err := http.Get(ghttpServer.URL() + "/comprobantes")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("GET /comprobantes/{id}", func() {
		BeforeEach(func() {
			Expect(db.CreateComprobante(&Comprobante{Numero: "123456", Whatsapp: "0991112233"})).To(Succeed())
		})

		It("should return the comprobante", func() {
			resp, err := http.Get(ghttpServer.URL() + "/comprobantes/1")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var c Comprobante
			decodeBody(resp, &c)
			Expect(c.Numero).To(Equal("123456"))
		})

		It("should return 404 for unknown IDs", func() {
			resp, err := http.Get(ghttpServer.URL() + "/comprobantes/99")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

			var body messageResponse
			decodeBody(resp, &body)
			Expect(body.Message).To(Equal("Comprobante no encontrado"))
		})

		It("should return 400 for non-numeric IDs", func() {
			resp, err := http.Get(ghttpServer.URL() + "/comprobantes/abc")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /comprobantes/{id}/imagen", func() {
		It("should serve the archived image", func() {
			Expect(db.CreateComprobante(&Comprobante{Numero: "123456", Imagen: "123456_x_recibo.png"})).To(Succeed())
			storage.files["123456_x_recibo.png"] = []byte("png bytes")

			resp, err := http.Get(ghttpServer.URL() + "/comprobantes/1/imagen")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))

			raw, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(raw).To(Equal([]byte("png bytes")))
		})

		It("should return 404 when there is no image", func() {
			Expect(db.CreateComprobante(&Comprobante{Numero: "123456"})).To(Succeed())

			resp, err := http.Get(ghttpServer.URL() + "/comprobantes/1/imagen")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/comprobantes", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
		})

		It("should set headers on regular responses", func() {
			resp, err := http.Get(ghttpServer.URL() + "/comprobantes")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secreto"}
			setupServer()
		})

		It("should reject requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/comprobantes")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("should reject wrong credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/comprobantes", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/comprobantes", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "secreto")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should leave the health check open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/health")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
