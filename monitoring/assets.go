package monitoring

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
)

//go:embed dist
var dashboard embed.FS

// assets returns the dashboard pages. A directory set with WithAssetDir
// replaces the embedded pages, so the dashboard can be edited without
// rebuilding.
func (m *Monitor) assets() http.FileSystem {
	if m.assetDir != "" {
		return http.FS(os.DirFS(m.assetDir))
	}

	sub, err := fs.Sub(dashboard, "dist")
	dieOnErr(err)

	return http.FS(sub)
}
