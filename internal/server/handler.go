package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/spotmatch/pkg/buildinfo"
	"github.com/matzehuels/spotmatch/pkg/design"
	"github.com/matzehuels/spotmatch/pkg/errors"
	"github.com/matzehuels/spotmatch/pkg/imagesrc"
	"github.com/matzehuels/spotmatch/pkg/pipeline"
)

// multipartMemory is the part of an upload kept in memory; the rest spills
// to temporary files.
const multipartMemory = 32 << 20

// Response headers of a generate request.
const (
	HeaderGenerationID = "X-Generation-ID"
	HeaderSeed         = "X-Seed"
	HeaderOrder        = "X-Order"
	HeaderFailedCards  = "X-Failed-Cards"
	HeaderUnusedImages = "X-Unused-Images"
)

var contentTypes = map[string]string{
	pipeline.FormatPDF:  "application/pdf",
	pipeline.FormatSVG:  "image/svg+xml",
	pipeline.FormatPNG:  "image/png",
	pipeline.FormatJSON: "application/json",
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Busy:    s.runner.Busy(),
		Version: buildinfo.Version,
	})
}

func (s *Server) orders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, OrdersResponse{Planes: design.Planes()})
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	// Fail fast before reading a large upload.
	if s.runner.Busy() {
		s.writeError(w, r, errors.New(errors.ErrCodeConcurrentRequest, "a generation is already running"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	opts, format, err := OptionsFromForm(r.MultipartForm.Value, s.cfg.Defaults)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sources, err := s.readUploads(r.MultipartForm.File)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	images, err := imagesrc.DecodeAll(r.Context(), s.provider, sources)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	opts.Provider = s.provider
	opts.Logger = s.logger.With("request_id", middleware.GetReqID(r.Context()))
	result, err := s.runner.Execute(r.Context(), images, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	h := w.Header()
	h.Set(HeaderGenerationID, result.ID)
	h.Set(HeaderSeed, strconv.FormatUint(result.Seed, 10))
	h.Set(HeaderOrder, strconv.Itoa(result.Order))
	h.Set(HeaderFailedCards, strconv.Itoa(len(result.Failures)))
	h.Set(HeaderUnusedImages, strconv.Itoa(len(result.Unused)))
	h.Set("Content-Type", contentTypes[format])
	h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="spotmatch-%d-%d.%s"`, result.Order, result.Seed, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Artifacts[format])
}

// readUploads collects the uploaded images from the "images" and
// "images[]" fields in upload order.
func (s *Server) readUploads(files map[string][]*multipart.FileHeader) ([]imagesrc.Source, error) {
	var headers []*multipart.FileHeader
	headers = append(headers, files["images"]...)
	headers = append(headers, files["images[]"]...)
	if len(headers) == 0 {
		return nil, errors.New(errors.ErrCodeNotEnoughImages, "no images uploaded")
	}
	if len(headers) > s.cfg.MaxImages {
		return nil, errors.New(errors.ErrCodeInvalidInput, "too many images: %d (max %d)", len(headers), s.cfg.MaxImages)
	}

	sources := make([]imagesrc.Source, 0, len(headers))
	for _, fh := range headers {
		if err := errors.ValidateImageFilename(fh.Filename); err != nil {
			return nil, err
		}
		if !errors.IsImageFile(fh.Filename) {
			return nil, errors.New(errors.ErrCodeInvalidInput, "%s: unsupported image type", fh.Filename)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "open %s", fh.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read %s", fh.Filename)
		}
		sources = append(sources, imagesrc.Source{Name: fh.Filename, Data: data})
	}
	return sources, nil
}

// OptionsFromForm builds generation options from form fields on top of
// defaults. It returns the single requested output format.
func OptionsFromForm(values map[string][]string, defaults pipeline.Options) (pipeline.Options, string, error) {
	f := form(values)
	opts := defaults
	var err error

	switch order := f.get("order"); order {
	case "":
	case "auto":
		opts.AutoOrder = true
	default:
		if opts.Order, err = strconv.Atoi(order); err != nil {
			return opts, "", invalidField("order", order)
		}
		opts.AutoOrder = false
	}

	if v := f.get("seed"); v != "" {
		if opts.Seed, err = strconv.ParseUint(v, 10, 64); err != nil {
			return opts, "", invalidField("seed", v)
		}
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{"page_width", &opts.PageWidth},
		{"page_height", &opts.PageHeight},
		{"card_radius", &opts.CardRadius},
		{"dpi", &opts.DPI},
	}
	for _, fl := range floats {
		if v := f.get(fl.name); v != "" {
			if *fl.dst, err = strconv.ParseFloat(v, 64); err != nil {
				return opts, "", invalidField(fl.name, v)
			}
		}
	}
	if v := f.get("symbol_margin"); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, "", invalidField("symbol_margin", v)
		}
		opts.SymbolMargin = &m
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"outer_attempts", &opts.OuterAttempts},
		{"inner_attempts", &opts.InnerAttempts},
	}
	for _, in := range ints {
		if v := f.get(in.name); v != "" {
			if *in.dst, err = strconv.Atoi(v); err != nil {
				return opts, "", invalidField(in.name, v)
			}
		}
	}

	if v := f.get("rotate"); v != "" {
		rotate, err := strconv.ParseBool(v)
		if err != nil {
			return opts, "", invalidField("rotate", v)
		}
		opts.NoRotate = !rotate
	}
	if v := f.get("shuffle"); v != "" {
		shuffle, err := strconv.ParseBool(v)
		if err != nil {
			return opts, "", invalidField("shuffle", v)
		}
		opts.NoShuffle = !shuffle
	}
	if v := f.get("on_failure"); v != "" {
		opts.OnFailure = v
	}
	if v := f.get("title"); v != "" {
		opts.Title = v
	}

	format := strings.ToLower(f.get("format"))
	if format == "" {
		format = pipeline.FormatPDF
	}
	if err := pipeline.ValidateFormat(format); err != nil {
		return opts, "", err
	}
	opts.Formats = []string{format}
	return opts, format, nil
}

type form map[string][]string

func (f form) get(key string) string {
	if v := f[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func invalidField(name, value string) error {
	return errors.New(errors.ErrCodeInvalidInput, "invalid %s: %q", name, value)
}

// statusFor maps an error code to an HTTP status.
func statusFor(code errors.Code) int {
	switch code {
	case errors.ErrCodeInvalidInput,
		errors.ErrCodeInvalidOrder,
		errors.ErrCodeInvalidGeometry,
		errors.ErrCodeInvalidConfig,
		errors.ErrCodeInvalidFormat,
		errors.ErrCodeInvalidLayout,
		errors.ErrCodeNotEnoughImages,
		errors.ErrCodeDecode,
		errors.ErrCodeUnsupported:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConcurrentRequest:
		return http.StatusConflict
	case errors.ErrCodePackingFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	status := statusFor(code)
	requestID := middleware.GetReqID(r.Context())

	msg := errors.UserMessage(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("internal error", "request_id", requestID, "error", err)
		if code == "" {
			code = errors.ErrCodeInternal
		}
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Code: string(code), Error: msg, RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
