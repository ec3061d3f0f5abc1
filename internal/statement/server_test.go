package statement

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/ocr-ledger/internal/export"
	"github.com/zombor/ocr-ledger/internal/ledger"
)

// multipartUpload builds a multipart body with a single "file" part
func multipartUpload(filename, contentType string, content []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(content)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		recognizer  *mockRecognizer
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		service = NewServiceWithDeps(db, recognizer, storage, nil,
			&mockIDGenerator{id: "test-id"}, &mockTimeSource{now: time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		recognizer = newMockRecognizer()
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleListStatements", func() {
		When("statements exist", func() {
			BeforeEach(func() {
				db.statements["id1"] = &Statement{ID: "id1"}
				db.statements["id2"] = &Statement{ID: "id2"}
			})

			It("should return all statements as JSON", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/statements")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var statements []*Statement
				Expect(json.NewDecoder(resp.Body).Decode(&statements)).To(Succeed())
				Expect(statements).To(HaveLen(2))
			})
		})

		When("no statements exist", func() {
			It("should return an empty array", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/statements")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = io.ErrUnexpectedEOF
			})

			It("should return status Internal Server Error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/statements")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("handleUploadStatement", func() {
		var (
			filename    string
			contentType string
			resp        *http.Response
		)

		BeforeEach(func() {
			filename = "statement.png"
			contentType = "image/png"
		})

		JustBeforeEach(func() {
			body, formType := multipartUpload(filename, contentType, []byte("fake image"))
			var err error
			resp, err = http.Post(ghttpServer.URL()+"/api/statements", formType, body)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			resp.Body.Close()
		})

		When("the upload is processed", func() {
			It("should return status Created", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			})

			It("should return the parsed statement", func() {
				var statement Statement
				Expect(json.NewDecoder(resp.Body).Decode(&statement)).To(Succeed())
				Expect(statement.ID).To(Equal("test-id"))
				Expect(statement.Records).To(HaveLen(2))
				Expect(statement.Records[1].Category).To(Equal(ledger.CategoryTelecom))
			})

			It("should store the file", func() {
				Expect(storage.files).To(HaveKey("test-id_statement.png"))
			})
		})

		When("the part has no content type", func() {
			BeforeEach(func() {
				filename = "scan.pdf"
				contentType = ""
			})

			It("should infer it from the extension", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(db.statements["test-id"].ContentType).To(Equal("application/pdf"))
			})
		})

		When("nothing can be parsed", func() {
			BeforeEach(func() {
				recognizer.text = "감사합니다"
			})

			It("should return status Unprocessable Entity", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			})

			It("should explain why", func() {
				var body map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body["error"]).To(Equal(ErrNoTransactions.Error()))
			})
		})

		When("recognition fails", func() {
			BeforeEach(func() {
				recognizer.scanErr = io.ErrUnexpectedEOF
			})

			It("should return status Internal Server Error", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("handleUploadStatement without a file", func() {
		It("should return status Bad Request", func() {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			Expect(writer.WriteField("other", "value")).To(Succeed())
			Expect(writer.Close()).To(Succeed())

			resp, err := http.Post(ghttpServer.URL()+"/api/statements", writer.FormDataContentType(), body)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var errBody map[string]string
			Expect(json.NewDecoder(resp.Body).Decode(&errBody)).To(Succeed())
			Expect(errBody["error"]).To(ContainSubstring("No file was selected"))
		})
	})

	Describe("handleSubmitText", func() {
		post := func(body string) *http.Response {
			resp, err := http.Post(ghttpServer.URL()+"/api/statements/text", "application/json", strings.NewReader(body))
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		It("should parse and save the text", func() {
			resp := post(`{"text": "2024.03.15\n보험료 30,000"}`)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var statement Statement
			Expect(json.NewDecoder(resp.Body).Decode(&statement)).To(Succeed())
			Expect(statement.Records).To(ConsistOf(ledger.Record{
				Date:     "2024-03-15",
				Amount:   -30000,
				Usage:    "보험료",
				Category: ledger.CategoryInsurance,
			}))
		})

		It("should reject empty text", func() {
			resp := post(`{"text": ""}`)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
		})

		It("should reject invalid JSON", func() {
			resp := post(`not json`)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleGetStatement", func() {
		BeforeEach(func() {
			db.statements["s1"] = &Statement{ID: "s1", LastDate: "2024-03-15"}
		})

		It("should return the statement", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/statements/s1")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var statement Statement
			Expect(json.NewDecoder(resp.Body).Decode(&statement)).To(Succeed())
			Expect(statement.LastDate).To(Equal("2024-03-15"))
		})

		It("should return status Not Found for an unknown ID", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/statements/missing")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleGetStatementFile", func() {
		BeforeEach(func() {
			db.statements["s1"] = &Statement{ID: "s1", Filename: "s1_a.png", ContentType: "image/png"}
			storage.files["s1_a.png"] = []byte("png data")
		})

		It("should return the file with its content type", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/statements/s1/file")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("png data"))
		})
	})

	Describe("handleExportStatement", func() {
		BeforeEach(func() {
			db.statements["s1"] = &Statement{ID: "s1", Records: []ledger.Record{
				{Date: "2024-03-15", Amount: -4500, Usage: "스타벅스", Category: ledger.CategoryOther},
			}}
		})

		It("should return an XLSX attachment", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/statements/s1/export")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal(export.ContentType))
			Expect(resp.Header.Get("Content-Disposition")).To(HavePrefix("attachment;"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("filename*=UTF-8''"))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			// XLSX files are zip archives
			Expect(body[:2]).To(Equal([]byte("PK")))
		})

		It("should return status Not Found for an unknown ID", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/statements/missing/export")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleDeleteStatement", func() {
		BeforeEach(func() {
			db.statements["s1"] = &Statement{ID: "s1"}
		})

		It("should return status No Content", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/statements/s1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.statements).NotTo(HaveKey("s1"))
		})

		It("should return status Not Found for an unknown ID", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/statements/missing", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
			setupServer()
		})

		It("should reject requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/statements")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("should reject wrong credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/statements", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("user", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/statements", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("user", "pass")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("corsMiddleware", func() {
		It("should answer preflight requests", func() {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodOptions, "/api/statements", nil)
			server.corsMiddleware(server.mux).ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})
})
