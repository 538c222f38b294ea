package server

import (
	"crypto/subtle"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/krau/superres/service"
)

const (
	uploadField      = "lr_image"
	uploadFieldAlias = "file"
	loggerKey        = "logger"

	// room for multipart boundaries, part headers and small form fields
	multipartOverhead = 64 << 10
)

var (
	errUnauthorized = errors.New("unauthorized")
	errTooLarge     = errors.New("upload too large")
)

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Header("X-Request-ID", id)
		c.Set(loggerKey, slog.Default().With(slog.String("request_id", id)))
		c.Next()
	}
}

// limitBody caps the request body so oversized uploads fail while the
// multipart form is still streaming.
func limitBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

func logger(c *gin.Context) *slog.Logger {
	if l, ok := c.Get(loggerKey); ok {
		if l, ok := l.(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}

func (s *Server) authenticate(c *gin.Context) error {
	auth := c.GetHeader("Authorization")

	expectedToken := s.cfg.Token
	if expectedToken == "" {
		return nil
	}
	providedToken := ""
	if len(auth) > 7 && auth[:7] == "Bearer " {
		providedToken = auth[7:]
	}
	if subtle.ConstantTimeCompare([]byte(providedToken), []byte(expectedToken)) != 1 {
		return errUnauthorized
	}

	return nil
}

// readUpload returns the uploaded file from the first present field, or nil
// when the request carries none.
func (s *Server) readUpload(c *gin.Context, fields ...string) (*service.RawUpload, error) {
	for _, field := range fields {
		fileHeader, err := c.FormFile(field)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errTooLarge
		}
		if err != nil {
			continue
		}
		if fileHeader.Size > s.cfg.MaxUploadBytes {
			return nil, errTooLarge
		}
		file, err := fileHeader.Open()
		if err != nil {
			return nil, err
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > s.cfg.MaxUploadBytes {
			return nil, errTooLarge
		}
		return &service.RawUpload{Filename: fileHeader.Filename, Data: data}, nil
	}
	return nil, nil
}

type indexView struct {
	LowRes   template.URL
	HighRes  template.URL
	Degraded bool
}

// IndexHandler serves the upload page. GET renders it empty; POST runs the
// pipeline on the lr_image field and renders whichever images succeeded.
// Failures are logged, never shown.
func (s *Server) IndexHandler(c *gin.Context) {
	view := indexView{Degraded: s.degraded}
	if c.Request.Method != http.MethodPost {
		c.HTML(http.StatusOK, "index.html", view)
		return
	}

	log := logger(c)
	upload, err := s.readUpload(c, uploadField)
	if err != nil {
		log.Error("Failed to read upload", slog.String("error", err.Error()))
		c.HTML(http.StatusOK, "index.html", view)
		return
	}
	if upload == nil {
		log.Info("No file uploaded")
		c.HTML(http.StatusOK, "index.html", view)
		return
	}
	log.Info("File received", slog.String("filename", upload.Filename), slog.Int("bytes", len(upload.Data)))

	res := s.pipeline.Run(service.ContextWithLogger(c.Request.Context(), log), upload)
	if res.LowRes != nil {
		view.LowRes = template.URL(res.LowRes.DataURL())
	}
	if res.HighRes != nil {
		view.HighRes = template.URL(res.HighRes.DataURL())
	}
	c.HTML(http.StatusOK, "index.html", view)
}

type PredictResponse struct {
	LowRes      *string           `json:"lr_image"`
	HighRes     *string           `json:"hr_image"`
	State       string            `json:"state"`
	InputSize   [2]int            `json:"input_size"`
	OutputShape []int             `json:"output_shape,omitempty"`
	Errors      map[string]string `json:"errors,omitempty"`
}

func (s *Server) PredictHandler(c *gin.Context) {
	if err := s.authenticate(c); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	log := logger(c)
	upload, err := s.readUpload(c, uploadField, uploadFieldAlias)
	if errors.Is(err, errTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too_large"})
		return
	}
	if err != nil {
		log.Error("Failed to read upload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_file"})
		return
	}
	if upload == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_file"})
		return
	}

	res := s.pipeline.Run(service.ContextWithLogger(c.Request.Context(), log), upload)
	c.JSON(predictStatus(res), newPredictResponse(res))
}

func newPredictResponse(res *service.Result) PredictResponse {
	resp := PredictResponse{
		State:       res.State.String(),
		InputSize:   [2]int{res.InputSize.Height, res.InputSize.Width},
		OutputShape: res.OutputShape,
	}
	if res.LowRes != nil {
		v := string(*res.LowRes)
		resp.LowRes = &v
	}
	if res.HighRes != nil {
		v := string(*res.HighRes)
		resp.HighRes = &v
	}
	errs := map[string]string{}
	if code := service.Code(res.LowResErr); code != "" {
		errs["lr_image"] = code
	}
	if code := service.Code(res.HighResErr); code != "" {
		errs["hr_image"] = code
	}
	if len(errs) > 0 {
		resp.Errors = errs
	}
	return resp
}

func predictStatus(res *service.Result) int {
	switch {
	case res.LowRes != nil || res.HighRes != nil:
		return http.StatusOK
	case errors.Is(res.Err, service.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(res.HighResErr, service.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) HealthHandler(c *gin.Context) {
	model := "loaded"
	if s.degraded {
		model = "degraded"
	}
	size := s.pipeline.InputSize()
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"model":      model,
		"input_size": [2]int{size.Height, size.Width},
	})
}
