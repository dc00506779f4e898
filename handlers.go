package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ieltsocr/models"
	"ieltsocr/pkg/certificate"
	"ieltsocr/pkg/export"
	"ieltsocr/pkg/ocr"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// app carries the dependencies shared by the handlers.
type app struct {
	proc           *ocr.Processor
	store          *batchStore
	auth           *authService
	maxUploadBytes int64
	log            *zap.SugaredLogger
}

func setupRoutes(r *gin.Engine, a *app) {
	r.GET("/healthz", a.healthHandler)
	r.GET("/login", a.loginPageHandler)
	r.POST("/login", a.loginHandler)
	r.POST("/logout", a.logoutHandler)

	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware(a.auth))
	authGroup.GET("/", a.indexHandler)
	authGroup.POST("/extract", a.extractHandler)
	authGroup.GET("/batches/:id", a.batchPageHandler)
	authGroup.GET("/batches/:id/batch.json", a.batchJSONHandler)
	authGroup.GET("/batches/:id/results.json", a.resultsJSONHandler)
	authGroup.GET("/batches/:id/results.xlsx", a.resultsXLSXHandler)
	authGroup.GET("/batches/:id/files/:name", a.fileHandler)
}

func (a *app) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "engines": a.proc.Engines()})
}

func (a *app) loginPageHandler(c *gin.Context) {
	if !a.auth.enabled() {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.HTML(http.StatusOK, "login.html", gin.H{})
}

// loginHandler accepts {"api_key": "..."} or the login form.
func (a *app) loginHandler(c *gin.Context) {
	if !a.auth.enabled() {
		c.JSON(http.StatusNotFound, gin.H{"error": "authentication is disabled"})
		return
	}
	var req struct {
		APIKey string `json:"api_key" form:"api_key" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := a.auth.login(req.APIKey)
	if errors.Is(err, errInvalidCredentials) {
		a.log.Warnw("login rejected", "client_ip", c.ClientIP())
		if c.ContentType() == "application/x-www-form-urlencoded" {
			c.HTML(http.StatusUnauthorized, "login.html", gin.H{"Error": "Invalid API key"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(tokenCookie, token, int(tokenTTL/time.Second), "/", "", false, true)
	if c.ContentType() == "application/x-www-form-urlencoded" {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": token})
}

func (a *app) logoutHandler(c *gin.Context) {
	c.SetCookie(tokenCookie, "", -1, "/", "", false, true)
	c.Redirect(http.StatusSeeOther, "/login")
}

func (a *app) indexHandler(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Engines":       a.proc.Engines(),
		"DefaultEngine": a.proc.DefaultEngine(),
		"MaxUploadMB":   a.maxUploadBytes >> 20,
		"AuthEnabled":   a.auth.enabled(),
	})
}

// extractHandler stores the uploaded images as a new batch, runs the
// pipeline over them and writes batch.json and results.json.
func (a *app) extractHandler(c *gin.Context) {
	engine := c.PostForm("engine")
	if _, err := a.proc.Engine(engine); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form with files required"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files uploaded"})
		return
	}

	id, dir, err := a.store.create()
	if err != nil {
		a.log.Errorw("create batch failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mkdir failed"})
		return
	}
	batch := &models.Batch{ID: id, CreatedAt: time.Now().UTC(), Engine: engine}
	if batch.Engine == "" {
		batch.Engine = a.proc.DefaultEngine()
	}

	used := map[string]bool{}
	var paths []string
	for _, fh := range files {
		switch {
		case !ocr.IsImage(fh.Filename):
			batch.Rejected = append(batch.Rejected, models.Rejection{FileName: fh.Filename, Reason: "unsupported file type (png, jpg, jpeg)"})
			continue
		case fh.Size > a.maxUploadBytes:
			batch.Rejected = append(batch.Rejected, models.Rejection{FileName: fh.Filename, Reason: fmt.Sprintf("file too large (max %dMB)", a.maxUploadBytes>>20)})
			continue
		}
		path := filepath.Join(dir, uploadName(fh.Filename, used))
		if err := c.SaveUploadedFile(fh, path); err != nil {
			a.log.Errorw("save upload failed", "batch", id, "file", fh.Filename, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
			return
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		_ = os.RemoveAll(dir)
		c.JSON(http.StatusBadRequest, gin.H{"error": "no valid images", "rejected": batch.Rejected})
		return
	}

	start := time.Now()
	results, err := a.proc.ProcessBatch(c.Request.Context(), batch.Engine, paths)
	if err != nil && results == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for i := range results {
		results[i].Image = filepath.Base(results[i].Image)
		if results[i].Annotated != "" {
			results[i].Annotated = filepath.Base(results[i].Annotated)
		}
	}
	batch.Results = results
	batch.DurationMS = time.Since(start).Milliseconds()
	if err := a.store.save(batch); err != nil {
		a.log.Errorw("save batch failed", "batch", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	a.log.Infow("batch processed", "batch", id, "engine", batch.Engine, "images", len(results),
		"failed", batch.Failed(), "rejected", len(batch.Rejected), "duration_ms", batch.DurationMS)

	if wantsHTML(c) {
		c.Redirect(http.StatusSeeOther, "/batches/"+id)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// resultView is one image card on the batch page.
type resultView struct {
	Image    string
	ImageURL string
	Items    []certificate.Item
	Error    string
}

func (a *app) loadBatch(c *gin.Context) (*models.Batch, bool) {
	b, err := a.store.load(c.Param("id"))
	if errors.Is(err, errBatchNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	if err != nil {
		a.log.Errorw("load batch failed", "batch", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load failed"})
		return nil, false
	}
	return b, true
}

func (a *app) batchPageHandler(c *gin.Context) {
	b, ok := a.loadBatch(c)
	if !ok {
		return
	}
	views := make([]resultView, 0, len(b.Results))
	for _, r := range b.Results {
		shown := r.Image
		if r.Annotated != "" {
			shown = r.Annotated
		}
		views = append(views, resultView{
			Image:    r.Image,
			ImageURL: fmt.Sprintf("/batches/%s/files/%s", b.ID, shown),
			Items:    r.Fields.DisplayItems(),
			Error:    r.Error,
		})
	}
	c.HTML(http.StatusOK, "batch.html", gin.H{
		"Batch":   b,
		"Results": views,
		"Failed":  b.Failed(),
	})
}

func (a *app) batchJSONHandler(c *gin.Context) {
	b, ok := a.loadBatch(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *app) resultsJSONHandler(c *gin.Context) {
	path, err := a.store.file(c.Param("id"), resultsFile)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.FileAttachment(path, "ocr_results.json")
}

func (a *app) resultsXLSXHandler(c *gin.Context) {
	b, ok := a.loadBatch(c)
	if !ok {
		return
	}
	data, err := export.ResultsXLSX(b.Results)
	if err != nil {
		a.log.Errorw("xlsx export failed", "batch", b.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="ocr_results.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (a *app) fileHandler(c *gin.Context) {
	name := c.Param("name")
	if name == batchFile || name == resultsFile {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	path, err := a.store.file(c.Param("id"), name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.File(path)
}
