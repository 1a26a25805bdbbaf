package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/example/coursecheckout/pkg/checkout"
	"github.com/example/coursecheckout/pkg/config"
	"github.com/example/coursecheckout/pkg/models"
	"github.com/example/coursecheckout/pkg/repository"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

const (
	requestIDHeader    = "X-Request-ID"
	defaultMaxUploadMB = 10
)

// Contact rules of the landing page form. They apply to the raw input,
// before trimming.
var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9\-()\s]{7,15}$`)
)

// ProofFiles serves uploaded proof files. It is nil when the gateway has no
// direct access to object storage.
type ProofFiles interface {
	OpenProof(ctx context.Context, name string) (io.ReadCloser, string, error)
}

type Gateway struct {
	config   *config.Config
	logger   *zap.Logger
	router   *gin.Engine
	server   *http.Server
	store    checkout.Store
	files    ProofFiles
	courses  []models.Course
	validate *validator.Validate
}

func NewGateway(cfg *config.Config, logger *zap.Logger, store checkout.Store, files ProofFiles) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(logger))

	courses := make([]models.Course, 0, len(cfg.Catalog.Courses))
	for _, c := range cfg.Catalog.Courses {
		courses = append(courses, models.Course{ID: c.ID, Title: c.Title, Price: c.Price})
	}

	return &Gateway{
		config:   cfg,
		logger:   logger,
		router:   router,
		store:    store,
		files:    files,
		courses:  courses,
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("contact_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

func (g *Gateway) SetupRoutes() {
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := g.router.Group("/api/v1")
	{
		v1.GET("/courses", g.listCourses)

		orders := v1.Group("/orders")
		{
			orders.POST("", g.createOrder)
			orders.GET("/:id", g.getOrder)
		}

		v1.POST("/payment-proofs", g.submitPaymentProof)
	}

	g.router.GET("/files/*name", g.downloadProof)

	// Swagger
	g.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// Handler exposes the router, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Start() error {
	addr := fmt.Sprintf("%s:%d", g.config.Gateway.Host, g.config.Gateway.Port)
	g.server = &http.Server{Addr: addr, Handler: g.router}
	g.logger.Info("Gateway starting", zap.String("address", addr))

	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

func (g *Gateway) listCourses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"courses": g.courses})
}

func (g *Gateway) findCourse(id string) (models.Course, bool) {
	if id == "" && len(g.courses) > 0 {
		return g.courses[0], true
	}
	for _, course := range g.courses {
		if course.ID == id {
			return course, true
		}
	}
	return models.Course{}, false
}

type createOrderRequest struct {
	Name     string `json:"name" validate:"notblank"`
	Email    string `json:"email" validate:"contact_email"`
	Phone    string `json:"phone" validate:"phone"`
	CourseID string `json:"courseId"`
}

func (r *createOrderRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.CourseID = strings.TrimSpace(r.CourseID)
}

func (g *Gateway) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := g.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}
	req.normalize()

	course, ok := g.findCourse(req.CourseID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown course"})
		return
	}

	res, err := g.store.CreateOrder(c.Request.Context(), checkout.OrderInput{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		CourseID:    course.ID,
		CourseTitle: course.Title,
		Price:       course.Price,
	})
	if err != nil {
		g.logger.Error("Failed to create order", zap.String("request_id", c.GetString(requestIDHeader)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save order"})
		return
	}

	c.JSON(http.StatusCreated, res)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if verrs[0].Tag() == "notblank" {
			return verrs[0].Field() + " is required"
		}
		return "invalid " + verrs[0].Field()
	}
	return err.Error()
}

func (g *Gateway) getOrder(c *gin.Context) {
	order, err := g.store.Order(c.Request.Context(), c.Param("id"))
	if errors.Is(err, checkout.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	if err != nil {
		g.logger.Error("Failed to get order", zap.String("order_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load order"})
		return
	}
	c.JSON(http.StatusOK, order)
}

func (g *Gateway) submitPaymentProof(c *gin.Context) {
	limit := g.config.Gateway.MaxUploadMB
	if limit <= 0 {
		limit = defaultMaxUploadMB
	}
	limit <<= 20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	if err := c.Request.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	in := checkout.ProofInput{
		OrderID: strings.TrimSpace(c.PostForm("orderId")),
		TxnID:   strings.TrimSpace(c.PostForm("txnId")),
	}
	if in.OrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orderId is required"})
		return
	}

	fh, err := c.FormFile("file")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file"})
		return
	}
	if fh != nil {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file"})
			return
		}
		defer f.Close()
		in.File = &checkout.File{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		}
	}
	if in.TxnID == "" && in.File == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "txnId or file is required"})
		return
	}

	res, err := g.store.SubmitPaymentProof(c.Request.Context(), in)
	if err != nil {
		g.logger.Error("Failed to submit payment proof",
			zap.String("request_id", c.GetString(requestIDHeader)),
			zap.String("order_id", in.OrderID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not submit payment proof"})
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (g *Gateway) downloadProof(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")
	if g.files == nil || name == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	r, contentType, err := g.files.OpenProof(c.Request.Context(), name)
	if errors.Is(err, repository.ErrFileNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	if err != nil {
		g.logger.Error("Failed to open proof file", zap.String("name", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open file"})
		return
	}
	defer r.Close()

	c.DataFromReader(http.StatusOK, -1, contentType, r, nil)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("request_id", c.GetString(requestIDHeader)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
