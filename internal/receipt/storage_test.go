package receipt

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(tmpDir, "imagenes"))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			filename string
			saved    string
			err      error
		)

		BeforeEach(func() {
			filename = "123456_ab12cd34_captura.jpg"
		})

		JustBeforeEach(func() {
			saved, err = storage.Save(filename, []byte("jpeg bytes"))
		})

		It("should write the file under the base directory", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(saved).To(Equal(filename))
			Expect(filepath.Join(tmpDir, "imagenes", filename)).To(BeAnExistingFile())
		})

		When("the name tries to escape the directory", func() {
			BeforeEach(func() {
				filename = "../../etc/passwd"
			})

			It("should keep the file inside the base directory", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(saved).To(Equal("passwd"))
				Expect(filepath.Join(tmpDir, "imagenes", "passwd")).To(BeAnExistingFile())
			})
		})

		When("the file already exists", func() {
			BeforeEach(func() {
				Expect(os.WriteFile(filepath.Join(tmpDir, "imagenes", filename), []byte("first"), 0644)).To(Succeed())
			})

			It("should not overwrite it", func() {
				Expect(err).To(HaveOccurred())
				data, readErr := os.ReadFile(filepath.Join(tmpDir, "imagenes", filename))
				Expect(readErr).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("first"))
			})
		})

		When("the name is empty", func() {
			BeforeEach(func() {
				filename = ""
			})

			It("should return an error", func() {
				Expect(err).To(MatchError(ContainSubstring("invalid file name")))
			})
		})
	})

	Describe("Get", func() {
		It("should return saved data", func() {
			_, err := storage.Save("recibo.png", []byte("png bytes"))
			Expect(err).NotTo(HaveOccurred())

			data, err := storage.Get("recibo.png")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("png bytes")))
		})

		It("should return ErrNotFound for missing files", func() {
			_, err := storage.Get("missing.png")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("Delete", func() {
		It("should remove the file", func() {
			_, err := storage.Save("recibo.png", []byte("png bytes"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Delete("recibo.png")).To(Succeed())
			Expect(filepath.Join(tmpDir, "imagenes", "recibo.png")).NotTo(BeAnExistingFile())
		})

		It("should return an error for missing files", func() {
			Expect(storage.Delete("missing.png")).NotTo(Succeed())
		})
	})
})
