package api

import (
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/iconforge/internal/logger"
)

// SPA handler constants
const (
	// indexHTMLPath is the path to the index.html file within the bundle directory
	indexHTMLPath = "index.html"

	// contentTypeHTML is the Content-Type header value for HTML responses
	contentTypeHTML = "text/html; charset=utf-8"

	// cacheControlNoCache disables caching for the HTML shell so clients pick
	// up new asset references after a deploy
	cacheControlNoCache = "no-cache, no-store, must-revalidate"
)

// SPAHandler serves the prebuilt frontend bundle. Existing files are served
// as-is and every other non-API GET gets the index.html shell.
type SPAHandler struct {
	dir string
	log logger.Logger
}

// NewSPAHandler returns a handler for dir, or nil when dir is empty or missing.
func NewSPAHandler(dir string, log logger.Logger) *SPAHandler {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Warn("frontend directory not found, static serving disabled", logger.String("dir", dir))
		return nil
	}
	return &SPAHandler{dir: dir, log: log}
}

// isBackendPath reports paths owned by the API rather than the frontend
func isBackendPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/") ||
		path == "/health" || path == "/metrics"
}

// StaticMiddleware serves existing files from the bundle directory
func (h *SPAHandler) StaticMiddleware() echo.MiddlewareFunc {
	return echomw.StaticWithConfig(echomw.StaticConfig{
		Root:  h.dir,
		Index: indexHTMLPath,
		Skipper: func(c echo.Context) bool {
			method := c.Request().Method
			if method != http.MethodGet && method != http.MethodHead {
				return true
			}
			return isBackendPath(c.Request().URL.Path)
		},
	})
}

// ServeApp serves the HTML shell for client-side routes.
func (h *SPAHandler) ServeApp(c echo.Context) error {
	if isBackendPath(c.Request().URL.Path) {
		return echo.ErrNotFound
	}

	root, err := os.OpenRoot(h.dir)
	if err != nil {
		h.log.Error("Failed to open frontend directory", logger.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to open frontend directory")
	}
	defer h.closeWithLog(root, "root handle")

	file, err := root.Open(indexHTMLPath)
	if err != nil {
		h.log.Error("Failed to open index.html", logger.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load page")
	}
	defer h.closeWithLog(file, indexHTMLPath)

	content, err := io.ReadAll(file)
	if err != nil {
		h.log.Error("Failed to read index.html", logger.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to read page")
	}

	c.Response().Header().Set(echo.HeaderContentType, contentTypeHTML)
	c.Response().Header().Set(echo.HeaderCacheControl, cacheControlNoCache)
	c.Response().Header().Set("Pragma", "no-cache")
	c.Response().Header().Set("Expires", "0")

	return c.HTMLBlob(http.StatusOK, content)
}

// closeWithLog closes an io.Closer and logs any error.
func (h *SPAHandler) closeWithLog(c io.Closer, name string) {
	if err := c.Close(); err != nil {
		h.log.Warn("Error closing resource",
			logger.String("name", name),
			logger.Error(err))
	}
}
