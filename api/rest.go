package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"cireview.evalgo.org/common"
	"cireview.evalgo.org/jobs"
	"cireview.evalgo.org/review"
	"cireview.evalgo.org/sap"
	"cireview.evalgo.org/version"
)

// Handlers bundles the service dependencies used by the HTTP endpoints.
// SAP may be nil when no tenant is configured; the tenant endpoints then
// answer 503 instead of failing at startup.
type Handlers struct {
	Reviewer    *review.Reviewer
	Jobs        *jobs.Manager
	SAP         *sap.Connection
	Tokens      *TokenService
	Credentials *CredentialStore
	Policy      review.Guidelines
	DownloadDir string
	Log         *logrus.Logger
}

// SetupRoutes registers all endpoints on e. Everything under /api requires a
// bearer token issued by POST /auth/token.
func SetupRoutes(e *echo.Echo, h *Handlers) {
	if h.Log == nil {
		h.Log = common.Logger
	}

	// Public routes
	e.GET("/health", h.Health)
	e.POST("/auth/token", h.GenerateToken)

	// Protected routes
	protected := e.Group("/api")
	protected.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey:  h.Tokens.Secret(),
		TokenLookup: "header:Authorization:Bearer ",
		// Absent and invalid tokens answer alike; a missing header would
		// otherwise surface as 400 instead of 401.
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
		},
	}))

	protected.POST("/analyze", h.AnalyzeArtifact)
	protected.POST("/reviews", h.StartReview)
	protected.GET("/jobs", h.ListJobs)
	protected.GET("/jobs/:id", h.GetJob)
	protected.GET("/packages", h.SearchPackages)
	protected.GET("/packages/:id", h.PackageDetails)
	protected.GET("/packages/:id/artifacts", h.PackageArtifacts)
	protected.POST("/artifacts/:id/review", h.ReviewRemoteArtifact)
}

// Health reports liveness and build information.
func (h *Handlers) Health(c echo.Context) error {
	info := version.GetBuildInfo()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"go_version": info.GoVersion,
		"module":     info.MainModule,
	})
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// GenerateToken exchanges valid credentials for a bearer token.
func (h *Handlers) GenerateToken(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "username and password are required"})
	}
	if !h.Credentials.Verify(req.Username, req.Password) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
	}

	token, err := h.Tokens.GenerateToken(req.Username)
	if err != nil {
		h.Log.WithError(err).Error("token generation failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate token"})
	}
	return c.JSON(http.StatusOK, tokenResponse{Token: token})
}

type analyzeRequest struct {
	Path         string `json:"path"`
	ArtifactID   string `json:"artifact_id"`
	ArtifactName string `json:"artifact_name"`
}

// AnalyzeArtifact runs a synchronous single-artifact review of a file
// already present on the server.
func (h *Handlers) AnalyzeArtifact(c echo.Context) error {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.Path == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "path is required"})
	}

	result := h.Reviewer.ReviewArtifactWithIdentity(req.Path, req.ArtifactID, req.ArtifactName)
	return c.JSON(http.StatusOK, result)
}

type reviewRequest struct {
	Paths []string `json:"paths"`
}

type reviewJobResult struct {
	Results []*review.Result `json:"results"`
	Report  string           `json:"report"`
}

// StartReview starts an asynchronous batch review and returns the job ID
// for polling.
func (h *Handlers) StartReview(c echo.Context) error {
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if len(req.Paths) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "paths is required"})
	}

	job, err := h.Jobs.Create("review", map[string]string{"artifacts": strconv.Itoa(len(req.Paths))})
	if err != nil {
		h.Log.WithError(err).Error("could not create review job")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create job"})
	}

	paths := req.Paths
	h.Jobs.Run(context.Background(), job.ID, func(ctx context.Context) (interface{}, error) {
		results, err := h.Reviewer.ReviewAllWithProgress(ctx, paths, func(completed, total int) {
			if _, perr := h.Jobs.SetProgress(job.ID, completed, total); perr != nil {
				h.Log.WithError(perr).WithField("job", job.ID).Warn("could not update job progress")
			}
		})
		if err != nil {
			return nil, err
		}
		return reviewJobResult{
			Results: results,
			Report:  review.RenderMarkdown(h.Policy.Name, results, time.Now()),
		}, nil
	})

	return c.JSON(http.StatusAccepted, job)
}

// ListJobs returns all known jobs, newest first.
func (h *Handlers) ListJobs(c echo.Context) error {
	all, err := h.Jobs.List()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list jobs"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"jobs": all, "count": len(all)})
}

// GetJob returns one job by ID.
func (h *Handlers) GetJob(c echo.Context) error {
	job, err := h.Jobs.Get(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Job not found"})
	}
	return c.JSON(http.StatusOK, job)
}

// SearchPackages lists tenant integration packages matching the q parameter.
func (h *Handlers) SearchPackages(c echo.Context) error {
	if h.SAP == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "No SAP tenant configured"})
	}
	packages, err := h.SAP.SearchPackages(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		h.Log.WithError(err).Error("package search failed")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Package search failed"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"packages": packages, "count": len(packages)})
}

// PackageDetails returns one package with its designtime artifacts.
func (h *Handlers) PackageDetails(c echo.Context) error {
	if h.SAP == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "No SAP tenant configured"})
	}
	pkg, artifacts, err := h.SAP.PackageDetails(c.Request().Context(), c.Param("id"))
	if err != nil {
		h.Log.WithError(err).Error("package lookup failed")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Package lookup failed"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"package": pkg, "artifacts": artifacts})
}

// PackageArtifacts lists the designtime artifacts of one package.
func (h *Handlers) PackageArtifacts(c echo.Context) error {
	if h.SAP == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "No SAP tenant configured"})
	}
	artifacts, err := h.SAP.PackageArtifacts(c.Request().Context(), c.Param("id"))
	if err != nil {
		h.Log.WithError(err).Error("artifact listing failed")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Artifact listing failed"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"artifacts": artifacts, "count": len(artifacts)})
}

type remoteReviewRequest struct {
	Version string `json:"version"`
	Name    string `json:"name"`
}

// ReviewRemoteArtifact downloads one artifact from the tenant and reviews
// it asynchronously.
func (h *Handlers) ReviewRemoteArtifact(c echo.Context) error {
	if h.SAP == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "No SAP tenant configured"})
	}

	artifactID := c.Param("id")
	var req remoteReviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.Version == "" {
		req.Version = "active"
	}

	job, err := h.Jobs.Create("remote-review", map[string]string{
		"artifact": artifactID,
		"version":  req.Version,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create job"})
	}

	name := req.Name
	version := req.Version
	h.Jobs.Run(context.Background(), job.ID, func(ctx context.Context) (interface{}, error) {
		path, err := h.SAP.DownloadArtifact(ctx, artifactID, version, h.DownloadDir)
		if err != nil {
			return nil, err
		}
		result := h.Reviewer.ReviewArtifactWithIdentity(path, artifactID, name)
		return reviewJobResult{
			Results: []*review.Result{result},
			Report:  review.RenderMarkdown(h.Policy.Name, []*review.Result{result}, time.Now()),
		}, nil
	})

	return c.JSON(http.StatusAccepted, job)
}
