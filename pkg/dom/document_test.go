package dom

import (
	"strings"
	"sync"
	"testing"

	"golang.org/x/net/html"
)

const sample = `<!doctype html><html><body>
<div id="outer" class="field">
  <ul class="list" data-pageid="7"><li><img class="thumb" src="/a.jpg" data-filename="a.jpg"></li></ul>
  <span class="clear">x</span>
</div>
</body></html>`

func mustParse(t *testing.T, markup string) *Document {
	t.Helper()
	doc, err := ParseString(markup)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestDocument_OnIsIdempotentPerKey(t *testing.T) {
	doc := mustParse(t, sample)
	outer := Find(doc.Root(), Class("field"))
	clear := Find(doc.Root(), Class("clear"))

	calls := 0
	handler := func(*Event) { calls++ }
	if !doc.On(outer, "click", "clear", handler) {
		t.Fatalf("expected first registration to succeed")
	}
	if doc.On(outer, "click", "clear", handler) {
		t.Fatalf("expected duplicate registration to be ignored")
	}

	if got := doc.Dispatch(clear, "click", nil); got != 1 {
		t.Fatalf("expected 1 handler invoked, got %d", got)
	}
	if calls != 1 {
		t.Fatalf("expected handler called once, got %d", calls)
	}
}

func TestDocument_DelegateCoversLateNodes(t *testing.T) {
	doc := mustParse(t, sample)
	list := Find(doc.Root(), Class("list"))

	var picked []string
	doc.Delegate(list, "click", "pick", Tag("img"), func(ev *Event) {
		picked = append(picked, AttrOr(ev.Matched, "data-filename", ""))
	})

	doc.Do(func(*html.Node) {
		if err := SetInnerHTML(list, `<li><img src="/b.png" data-filename="b.png"></li>`); err != nil {
			t.Fatalf("set inner html: %v", err)
		}
	})

	img := Find(list, Tag("img"))
	if img == nil {
		t.Fatalf("expected inserted image")
	}
	doc.Dispatch(img, "click", nil)

	if doc.Dispatch(list, "click", nil) != 0 {
		t.Fatalf("click on the container itself must not match the delegate")
	}
	if len(picked) != 1 || picked[0] != "b.png" {
		t.Fatalf("unexpected picks: %v", picked)
	}
}

func TestDocument_StopPropagation(t *testing.T) {
	doc := mustParse(t, sample)
	outer := Find(doc.Root(), Class("field"))
	list := Find(doc.Root(), Class("list"))
	img := Find(doc.Root(), Tag("img"))

	var order []string
	doc.On(list, "click", "a", func(ev *Event) {
		order = append(order, "list")
		ev.StopPropagation()
	})
	doc.On(outer, "click", "b", func(*Event) { order = append(order, "outer") })

	if got := doc.Dispatch(img, "click", nil); got != 1 {
		t.Fatalf("expected propagation stopped after list, got %d", got)
	}
	if strings.Join(order, ",") != "list" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestDocument_OffAndRelease(t *testing.T) {
	doc := mustParse(t, sample)
	outer := Find(doc.Root(), Class("field"))
	list := Find(doc.Root(), Class("list"))

	doc.On(outer, "click", "a", func(*Event) {})
	doc.On(list, "click", "b", func(*Event) {})
	doc.On(list, "custom", "c", func(*Event) {})

	if !doc.Off(outer, "click", "a") {
		t.Fatalf("expected Off to remove listener")
	}
	if doc.Off(outer, "click", "a") {
		t.Fatalf("expected second Off to report false")
	}
	if got := doc.Release(outer); got != 2 {
		t.Fatalf("expected 2 listeners released, got %d", got)
	}
	if doc.ListenerCount(list, "click") != 0 {
		t.Fatalf("expected no listeners left")
	}
}

func TestDocument_DoSerializesMutations(t *testing.T) {
	doc := mustParse(t, sample)
	outer := Find(doc.Root(), Class("field"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc.Do(func(*html.Node) {
				n, _ := Attr(outer, "data-count")
				SetAttr(outer, "data-count", n+"x")
			})
		}()
	}
	wg.Wait()

	got, _ := Attr(outer, "data-count")
	if len(got) != 20 {
		t.Fatalf("expected 20 serialized writes, got %d", len(got))
	}
}

func TestNew_NilRoot(t *testing.T) {
	if _, err := New(nil); err != ErrNilRoot {
		t.Fatalf("expected ErrNilRoot, got %v", err)
	}
}

func TestDocument_HasListener(t *testing.T) {
	doc := mustParse(t, sample)
	outer := Find(doc.Root(), Class("field"))

	if doc.HasListener(outer, "click", "k") {
		t.Fatalf("expected no listener before registration")
	}
	doc.On(outer, "click", "k", func(*Event) {})
	if !doc.HasListener(outer, "click", "k") {
		t.Fatalf("expected listener after registration")
	}
	if doc.HasListener(outer, "click", "other") || doc.HasListener(outer, "change", "k") {
		t.Fatalf("lookup must match both type and key")
	}
	if doc.HasListener(Clone(outer), "click", "k") {
		t.Fatalf("clones carry no listeners")
	}
}
