// Package api provides the REST control server for smfplay
package api

import (
	"errors"
	"net/http"
	"path/filepath"

	charmlog "github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/james-see/smfplay/pkg/output"
	"github.com/james-see/smfplay/pkg/player"
	"github.com/james-see/smfplay/pkg/smf"
)

// @title smfplay API
// @version 1.0
// @description Control a Standard MIDI File player over HTTP
// @host localhost:8080
// @BasePath /api/v1

// Options configures the router.
type Options struct {
	// MusicDir is the directory load requests are resolved against.
	MusicDir string
	// Ports lists MIDI outputs; output.ListPorts when nil.
	Ports  func() []output.Port
	Logger *charmlog.Logger
}

type server struct {
	session *player.Session
	opts    Options
}

// NewRouter returns the gin engine serving the API for session.
func NewRouter(session *player.Session, opts Options) *gin.Engine {
	if opts.MusicDir == "" {
		opts.MusicDir = "."
	}
	if opts.Ports == nil {
		opts.Ports = output.ListPorts
	}
	if opts.Logger == nil {
		opts.Logger = charmlog.Default()
	}
	s := &server{session: session, opts: opts}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(opts.Logger), corsMiddleware())

	r.GET("/health", healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/status", s.status)
		v1.GET("/ports", s.ports)
		v1.POST("/load", s.load)
		v1.POST("/pause", s.pause(true))
		v1.POST("/resume", s.pause(false))
		v1.POST("/restart", s.restart)
		v1.POST("/loop", s.loop)
		v1.POST("/tempo", s.tempo)
		v1.POST("/stop", s.stop)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	return r
}

// StartServer serves the API on addr until the listener fails.
func StartServer(addr string, session *player.Session, opts Options) error {
	return NewRouter(session, opts).Run(addr)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger(logger *charmlog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("http", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status())
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "smfplay",
	})
}

// status godoc
// @Summary Player status
// @Tags player
// @Produce json
// @Success 200 {object} player.Status
// @Router /api/v1/status [get]
func (s *server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Status())
}

// ports godoc
// @Summary List MIDI outputs
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]output.Port
// @Router /api/v1/ports [get]
func (s *server) ports(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ports": s.opts.Ports()})
}

type loadRequest struct {
	File string `json:"file" binding:"required"`
}

// load godoc
// @Summary Load and play a file
// @Description Path is relative to the music directory
// @Tags player
// @Accept json
// @Produce json
// @Param request body loadRequest true "File to play"
// @Success 200 {object} player.Status
// @Failure 400 {object} map[string]interface{}
// @Router /api/v1/load [post]
func (s *server) load(c *gin.Context) {
	var req loadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if !filepath.IsLocal(req.File) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file must be inside the music directory"})
		return
	}

	if err := s.session.Load(filepath.Join(s.opts.MusicDir, req.File)); err != nil {
		body := gin.H{"error": err.Error()}
		var le *smf.LoadError
		if errors.As(err, &le) {
			body["code"] = le.Code()
		}
		c.JSON(http.StatusBadRequest, body)
		return
	}
	c.JSON(http.StatusOK, s.session.Status())
}

// pause godoc
// @Summary Pause or resume playback
// @Tags player
// @Produce json
// @Success 200 {object} player.Status
// @Failure 409 {object} map[string]string
// @Router /api/v1/pause [post]
// @Router /api/v1/resume [post]
func (s *server) pause(paused bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.reply(c, s.session.Pause(paused))
	}
}

// restart godoc
// @Summary Restart the current file
// @Tags player
// @Produce json
// @Success 200 {object} player.Status
// @Failure 409 {object} map[string]string
// @Router /api/v1/restart [post]
func (s *server) restart(c *gin.Context) {
	s.reply(c, s.session.Restart())
}

type loopRequest struct {
	Enabled bool `json:"enabled"`
}

// loop godoc
// @Summary Enable or disable looping
// @Tags player
// @Accept json
// @Produce json
// @Param request body loopRequest true "Looping flag"
// @Success 200 {object} player.Status
// @Router /api/v1/loop [post]
func (s *server) loop(c *gin.Context) {
	var req loopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.session.SetLooping(req.Enabled)
	c.JSON(http.StatusOK, s.session.Status())
}

type tempoRequest struct {
	Adjust int `json:"adjust"`
}

// tempo godoc
// @Summary Set the tempo adjustment
// @Description Offset in beats per minute added to the file tempo
// @Tags player
// @Accept json
// @Produce json
// @Param request body tempoRequest true "Tempo offset"
// @Success 200 {object} player.Status
// @Failure 400 {object} map[string]string
// @Router /api/v1/tempo [post]
func (s *server) tempo(c *gin.Context) {
	var req tempoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.session.SetTempoAdjust(req.Adjust); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.session.Status())
}

// stop godoc
// @Summary Stop playback and close the file
// @Tags player
// @Produce json
// @Success 200 {object} player.Status
// @Router /api/v1/stop [post]
func (s *server) stop(c *gin.Context) {
	s.session.Close()
	c.JSON(http.StatusOK, s.session.Status())
}

func (s *server) reply(c *gin.Context, err error) {
	switch {
	case errors.Is(err, smf.ErrNotLoaded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, s.session.Status())
	}
}
