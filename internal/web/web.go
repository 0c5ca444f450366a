// package web renders the HTML pages of the front end from embedded templates.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gerrymanoim/to-listen/internal/spotify"
	"github.com/gerrymanoim/to-listen/internal/store"
)

//go:embed templates/*.html
var templateFiles embed.FS

// IndexData is the view model for the landing page.
type IndexData struct {
	AuthURL      string
	UserData     map[string]any
	ErrorMessage string
}

// UserInfoData is the view model for the playlist picker page.
type UserInfoData struct {
	UserData  map[string]any
	Playlists []spotify.PlaylistRef
	Saved     *store.PlaylistSelection
}

// Renderer renders pages from the embedded template set.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	templates, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{templates: templates}, nil
}

// Render writes the named template to the response.
func (r *Renderer) Render(w http.ResponseWriter, name string, data any) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := r.templates.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	return nil
}
