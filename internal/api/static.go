package api

import (
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

// SetupStaticRoutes serves the role avatars and any other bundled assets.
// Routes are only mounted for directories that exist, so a bare deployment
// runs without a static tree.
func SetupStaticRoutes(r *gin.Engine, staticDir string) {
	if staticDir == "" {
		return
	}

	avatars := filepath.Join(staticDir, "avatars")
	if info, err := os.Stat(avatars); err == nil && info.IsDir() {
		r.Static("/avatars", avatars)
	}

	favicon := filepath.Join(staticDir, "favicon.ico")
	if _, err := os.Stat(favicon); err == nil {
		r.StaticFile("/favicon.ico", favicon)
	}
}
