package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"

	"wildlens/internal/models"
	"wildlens/internal/notify"
	"wildlens/internal/objectstore"
)

// GalleryReader lists gallery rows, newest first.
type GalleryReader interface {
	ListImages(ctx context.Context) ([]models.Image, error)
}

// Publisher announces new uploads to the processor.
type Publisher interface {
	Publish(ctx context.Context, ev events.S3Event) error
}

type Server struct {
	cfg       *models.Config
	router    *gin.Engine
	srv       *http.Server
	store     objectstore.Store
	images    GalleryReader
	publisher Publisher
	now       func() time.Time
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// NewServer wires the routes. publisher may be nil.
func NewServer(cfg *models.Config, store objectstore.Store, images GalleryReader, publisher Publisher) *Server {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), requestID())

	s := &Server{
		cfg:       cfg,
		router:    r,
		store:     store,
		images:    images,
		publisher: publisher,
		now:       time.Now,
	}

	r.GET("/healthz", s.handleHealth)
	r.GET("/api/gallery", s.handleGallery)
	r.POST("/upload", s.handleUpload)

	s.srv = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	log.Printf("server listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleGallery(c *gin.Context) {
	const op = "server.handleGallery"

	images, err := s.images.ListImages(c.Request.Context())
	if err != nil {
		log.Printf("%s [%s]: %v", op, c.GetString(requestIDKey), err)
		c.JSON(http.StatusInternalServerError, apiResponse{Success: false, Message: "Failed to fetch gallery."})
		return
	}
	if images == nil {
		images = []models.Image{}
	}
	c.JSON(http.StatusOK, images)
}

func (s *Server) handleUpload(c *gin.Context) {
	const op = "server.handleUpload"

	file, err := c.FormFile("imageFile")
	if err != nil {
		c.JSON(http.StatusBadRequest, apiResponse{Success: false, Message: "No image file provided."})
		return
	}

	meta := models.Metadata{
		Title:        c.PostForm("title"),
		Description:  c.PostForm("description"),
		Category:     c.PostForm("category"),
		Location:     c.PostForm("location"),
		Photographer: c.PostForm("photographer"),
	}.WithDefaults()

	key, err := newUploadKey(s.now(), file.Filename)
	if err != nil {
		s.uploadFailed(c, op, err)
		return
	}

	src, err := file.Open()
	if err != nil {
		s.uploadFailed(c, op, err)
		return
	}
	defer src.Close()

	ctx := c.Request.Context()
	bucket := s.cfg.ObjectStore.Bucket
	log.Printf("%s: uploading original to %s/%s", op, bucket, key)
	if err := s.store.Put(ctx, bucket, key, src, file.Size, file.Header.Get("Content-Type"), meta.Map()); err != nil {
		s.uploadFailed(c, op, err)
		return
	}

	if s.publisher != nil {
		ev := notify.NewObjectCreated(s.cfg.ObjectStore.Region, bucket, key, file.Size, s.now())
		if err := s.publisher.Publish(ctx, ev); err != nil {
			log.Printf("%s [%s]: publish notification for %s: %v", op, c.GetString(requestIDKey), key, err)
		}
	}

	c.JSON(http.StatusOK, apiResponse{
		Success: true,
		Message: "File uploaded. Processing will be done asynchronously.",
	})
}

func (s *Server) uploadFailed(c *gin.Context, op string, err error) {
	log.Printf("%s [%s]: %v", op, c.GetString(requestIDKey), err)
	c.JSON(http.StatusInternalServerError, apiResponse{
		Success: false,
		Message: "Upload failed.",
		Error:   err.Error(),
	})
}
