package server

import (
	_ "embed"
	"html/template"
	"log/slog"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/krau/superres/config"
	"github.com/krau/superres/onnx"
	"github.com/krau/superres/service"
)

//go:embed templates/index.html
var indexHTML string

type Server struct {
	cfg      config.Config
	pipeline *service.Pipeline
	degraded bool
}

// LoadEngine initializes ONNX Runtime and loads the generator once. Any
// failure is logged and yields a degraded engine that reports the
// configured fallback size, so the server still starts. The returned func
// releases the runtime.
func LoadEngine(cfg config.Config) (service.Engine, func()) {
	fallback := service.Size{Height: cfg.FallbackHeight, Width: cfg.FallbackWidth}

	destroy, err := onnx.Init(cfg.Libonnx)
	if err != nil {
		slog.Error("Failed to initialize ONNX Runtime, starting without model", slog.String("error", err.Error()))
		return service.Unavailable(fallback, err), destroy
	}

	modelPath := filepath.Join(cfg.ModelDir, cfg.ModelFileName)
	model, err := onnx.Load(modelPath, onnx.LoadOptions{
		Fallback:       fallback,
		IntraOpThreads: cfg.IntraOpThreads,
	})
	if err != nil {
		slog.Error("Failed to load model, starting without model",
			slog.String("path", modelPath),
			slog.String("error", err.Error()),
			slog.String("fallback_size", fallback.String()),
		)
		return service.Unavailable(fallback, err), destroy
	}
	return model, func() {
		model.Close()
		destroy()
	}
}

// New wires the pipeline around engine. At most cfg.Workers predictions run
// at once; the engine itself is never called concurrently beyond that.
func New(cfg config.Config, engine service.Engine) *Server {
	degraded := !service.Available(engine)
	if !degraded {
		engine = newPooledEngine(engine, cfg.Workers)
	}
	pipeline := service.NewPipeline(engine,
		service.WithJPEGQuality(cfg.JPEGQuality),
		service.WithDecodeOptions(
			service.WithMaxPixels(cfg.MaxPixels),
			service.WithAutoOrient(cfg.AutoOrient),
		),
	)
	return &Server{cfg: cfg, pipeline: pipeline, degraded: degraded}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), requestLogger(), limitBody(s.cfg.MaxUploadBytes+multipartOverhead))
	r.MaxMultipartMemory = s.cfg.MaxUploadBytes
	r.SetHTMLTemplate(template.Must(template.New("index.html").Parse(indexHTML)))

	r.GET("/", s.IndexHandler)
	r.POST("/", s.IndexHandler)
	r.POST("/predict", s.PredictHandler)
	r.GET("/health", s.HealthHandler)
	return r
}

// pooledEngine bounds concurrent use of a shared engine with a fixed set of
// slots.
type pooledEngine struct {
	engine service.Engine
	slots  chan struct{}
}

func newPooledEngine(engine service.Engine, n int) *pooledEngine {
	if n < 1 {
		n = 1
	}
	slots := make(chan struct{}, n)
	for _i := 0; _i < n; _i++ {
		slots <- struct{}{}
	}
	return &pooledEngine{engine: engine, slots: slots}
}

func (p *pooledEngine) InputSize() service.Size {
	return p.engine.InputSize()
}

func (p *pooledEngine) Predict(in service.Tensor) (service.Tensor, error) {
	<-p.slots
	defer func() { p.slots <- struct{}{} }()
	return p.engine.Predict(in)
}
