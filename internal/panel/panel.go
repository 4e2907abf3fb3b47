package panel

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
)

//go:embed web
var embedded embed.FS

// Assets returns the panel files: dir when it names an existing directory,
// the copy built into the binary otherwise.
func Assets(dir string) fs.FS {
	if dir != "" {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			return os.DirFS(dir)
		}
	}
	web, err := fs.Sub(embedded, "web")
	if err != nil {
		panic("panel: embedded assets missing: " + err.Error())
	}
	return web
}

// Handler serves the panel page and its script and stylesheet from
// Assets(dir). Responses are never cached, so an edited page shows on
// the next reload.
func Handler(dir string) http.Handler {
	files := http.FileServerFS(Assets(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")
		files.ServeHTTP(w, r)
	})
}
