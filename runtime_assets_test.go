package imagefrompage

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/goliatone/go-imagefrompage/pkg/picker"
	"github.com/goliatone/go-imagefrompage/pkg/thumbnails"
)

func TestAssetsFSContainsImages(t *testing.T) {
	fsys := AssetsFS()
	for _, name := range []string{"loader.svg", "placeholder.svg"} {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			t.Fatalf("expected %s to be readable: %v", name, err)
		}
		if !strings.HasPrefix(string(data), "<svg") {
			t.Fatalf("expected %s to be an svg", name)
		}
	}
}

func TestThemeAssetsResolvesPickerKeys(t *testing.T) {
	cfg := ThemeAssets("/static/imagefrompage/")
	if got := cfg.AssetURL(picker.AssetLoader); got != "/static/imagefrompage/loader.svg" {
		t.Fatalf("unexpected loader url %q", got)
	}
	if got := cfg.AssetURL(picker.AssetPlaceholder); got != "/static/imagefrompage/placeholder.svg" {
		t.Fatalf("unexpected placeholder url %q", got)
	}
	if got := cfg.AssetURL("other"); got != "" {
		t.Fatalf("unknown keys resolve to nothing, got %q", got)
	}
}

const page = `<html><body>
<div class="InputfieldImageFromPage">
  <input type="hidden" class="imagefrompage_value" value='{"pageid": 4, "filename": "x.jpg"}'>
  <div class="uk-panel"><img src="/files/4/x.jpg" data-src="/p.png"><span>x</span><div class="uk-thumbnail-caption">x</div></div>
  <div class="imagefrompage_thumbholder InputfieldStateCollapsed">
    <label class="InputfieldHeader">Gallery</label>
    <ul class="uk-thumbnav" data-pageid="4"></ul>
  </div>
</div>
</body></html>`

func TestBind(t *testing.T) {
	fetcher := thumbnails.FetcherFunc(func(context.Context, int) (string, error) { return "", nil })
	_, mgr, err := Bind(context.Background(), strings.NewReader(page), picker.WithFetcher(fetcher))
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	ctrls := mgr.Controllers()
	if len(ctrls) != 1 {
		t.Fatalf("expected one widget, got %d", len(ctrls))
	}
	want, err := ParseValue(`{"pageid": 4, "filename": "x.jpg"}`)
	if err != nil {
		t.Fatalf("parse value: %v", err)
	}
	if !ctrls[0].Value().Equal(want) {
		t.Fatalf("unexpected stored value %v", ctrls[0].Value())
	}
	if !ValueFromSerialized("{broken").IsEmpty() {
		t.Fatalf("malformed values read as empty")
	}
}
