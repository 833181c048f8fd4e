package http

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dontpanicw/PhotoGallery/internal/domain"
	"github.com/dontpanicw/PhotoGallery/internal/port"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DefaultMaxUploadSize ограничивает размер multipart-формы
const DefaultMaxUploadSize = 32 << 20

//go:embed templates/*.html
var templatesFS embed.FS

var pages = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

type Handler struct {
	usecases      port.PhotoUsecases
	auth          port.Authenticator
	log           *zap.Logger
	maxUploadSize int64
}

func NewHandler(usecases port.PhotoUsecases, auth port.Authenticator, log *zap.Logger, maxUploadSize int64) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &Handler{
		usecases:      usecases,
		auth:          auth,
		log:           log,
		maxUploadSize: maxUploadSize,
	}
}

type credentials struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type galleryPage struct {
	Photos  []domain.Photo
	Results []domain.UploadResult
}

type uploadResponse struct {
	Photos  []domain.Photo        `json:"photos"`
	Results []domain.UploadResult `json:"results"`
}

func (h *Handler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	photos, err := h.usecases.ListPhotos(r.Context())
	if err != nil {
		h.log.Error("failed to list photos", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(photos))
}

func (h *Handler) UploadPhotos(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to parse form")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.log.Warn("failed to remove multipart temp files", zap.Error(err))
		}
	}()

	// проверка учётных данных до любой записи
	if err := h.auth.Authenticate(r.FormValue("user"), r.FormValue("password")); err != nil {
		h.unauthorized(w, r)
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		h.writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	files := make([]domain.UploadFile, 0, len(headers))
	for _, header := range headers {
		data, err := readPart(header)
		if err != nil {
			h.log.Warn("failed to read uploaded file", zap.String("filename", header.Filename), zap.Error(err))
			h.writeError(w, http.StatusBadRequest, "failed to read file")
			return
		}
		files = append(files, domain.UploadFile{Filename: header.Filename, Data: data})
	}

	results := h.usecases.UploadPhotos(r.Context(), files)

	photos, err := h.usecases.ListPhotos(r.Context())
	if err != nil {
		h.log.Error("failed to list photos after upload", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if wantsHTML(r) {
		h.render(w, http.StatusOK, "gallery.html", galleryPage{Photos: photos, Results: results})
		return
	}
	h.writeJSON(w, http.StatusOK, uploadResponse{Photos: nonNil(photos), Results: results})
}

func (h *Handler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["photo_id"], 10, 64)
	// несуществующий id (в том числе 0 и отрицательный) отдаёт 404 из usecases
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "photo id must be an integer")
		return
	}

	creds, err := readCredentials(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.auth.Authenticate(creds.User, creds.Password); err != nil {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
		return
	}

	err = h.usecases.DeletePhoto(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrPhotoNotFound):
		h.writeError(w, http.StatusNotFound, domain.ErrPhotoNotFound.Error())
		return
	case err != nil:
		h.log.Error("failed to delete photo", zap.Int64("id", id), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": fmt.Sprintf("Photo with id %d deleted", id),
	})
}

// FixPhotosOrientation starts an orientation repair pass over every photo.
// It answers 202 when tasks were queued and 200 with per-photo results when
// the pass ran in place.
func (h *Handler) FixPhotosOrientation(w http.ResponseWriter, r *http.Request) {
	creds, err := readCredentials(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.auth.Authenticate(creds.User, creds.Password); err != nil {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
		return
	}

	report, err := h.usecases.ScheduleOrientationRepair(r.Context())
	if err != nil {
		h.log.Error("failed to schedule orientation repair", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusOK
	if report.Queued > 0 {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, report)
}

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login.html", nil)
}

func (h *Handler) LoginUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to parse form")
		return
	}
	if err := h.auth.Authenticate(r.PostFormValue("user"), r.PostFormValue("password")); err != nil {
		h.render(w, http.StatusUnauthorized, "unauthorized.html", nil)
		return
	}

	photos, err := h.usecases.ListPhotos(r.Context())
	if err != nil {
		h.log.Error("failed to list photos", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	// учётные данные в шаблон не передаются
	h.render(w, http.StatusOK, "gallery.html", galleryPage{Photos: photos})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request) {
	if wantsHTML(r) {
		h.render(w, http.StatusUnauthorized, "unauthorized.html", nil)
		return
	}
	h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		h.log.Error("failed to render page", zap.String("template", name), zap.Error(err))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("failed to write response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// readCredentials accepts a JSON object or a urlencoded form. The body is read
// by hand because ParseForm ignores the body of DELETE requests.
func readCredentials(r *http.Request) (credentials, error) {
	var creds credentials

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return creds, err
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if len(body) == 0 {
			return creds, nil
		}
		err := json.Unmarshal(body, &creds)
		return creds, err
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return creds, err
	}
	creds.User = values.Get("user")
	creds.Password = values.Get("password")
	return creds, nil
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func nonNil(photos []domain.Photo) []domain.Photo {
	if photos == nil {
		return []domain.Photo{}
	}
	return photos
}
