package imagefrompage

import (
	"embed"
	"io/fs"
	"path"
	"strings"

	theme "github.com/goliatone/go-theme"

	"github.com/goliatone/go-imagefrompage/pkg/picker"
)

//go:embed assets/*.svg
var embeddedAssets embed.FS

// AssetsFS exposes the default loader and placeholder images so Go
// applications can serve them alongside the thumbnail endpoint.
//
// Typical mount:
//
//	mux.Handle("/imagefrompage/",
//	  http.StripPrefix("/imagefrompage/",
//	    http.FileServerFS(imagefrompage.AssetsFS()),
//	  ),
//	)
func AssetsFS() fs.FS {
	sub, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		return embeddedAssets
	}
	return sub
}

var assetFiles = map[string]string{
	picker.AssetLoader:      "loader.svg",
	picker.AssetPlaceholder: "placeholder.svg",
}

// ThemeAssets returns a renderer config resolving the picker's asset keys to
// the embedded files mounted at prefix.
func ThemeAssets(prefix string) *theme.RendererConfig {
	prefix = "/" + strings.Trim(strings.TrimSpace(prefix), "/")
	return &theme.RendererConfig{
		Theme: "default",
		AssetURL: func(key string) string {
			name, ok := assetFiles[key]
			if !ok {
				return ""
			}
			return path.Join(prefix, name)
		},
	}
}
