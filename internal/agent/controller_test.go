// File: internal/agent/controller_test.go
package agent_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/vedit/internal/agent"
	"github.com/xkilldash9x/vedit/internal/agent/memhost"
)

const page = `<!DOCTYPE html>
<html><head><title>preview</title></head><body>
<div id="app">
  <h1 data-source-location="pages/Home:3:5" data-dynamic-content="false" class="title">Hello</h1>
  <p data-source-location="abc" data-dynamic-content="true" class="card">One <span>inner</span></p>
  <p data-source-location="abc" data-dynamic-content="true" class="card">Two</p>
  <p data-source-location="abc" data-dynamic-content="true" class="card">Three</p>
  <svg data-source-location="components/Icon:2:3" class="icon"><path d="M0 0L10 10"></path></svg>
  <div data-linenumber="12" data-filename="Legacy">legacy a</div>
  <div data-linenumber="14" data-filename="Legacy">legacy b</div>
  <div data-linenumber="20" data-filename="Legacy" data-visual-selector-id="kept">legacy c</div>
  <footer>untagged</footer>
</div>
</body></html>`

type harness struct {
	doc    *memhost.Document
	out    *memhost.Outbox
	timers *memhost.Timers
	c      *agent.Controller
}

func newHarness(t *testing.T, src string) *harness {
	t.Helper()
	doc, err := memhost.ParseString(src, true)
	require.NoError(t, err)

	h := &harness{doc: doc, out: &memhost.Outbox{}, timers: &memhost.Timers{}}
	h.c, err = agent.Start(doc, h.out, h.timers, zaptest.NewLogger(t), agent.DefaultOptions())
	require.NoError(t, err)
	return h
}

func (h *harness) send(t *testing.T, raw string) {
	t.Helper()
	msg, err := agent.ParseMessage([]byte(raw))
	require.NoError(t, err)
	h.c.HandleMessage(msg)
}

func (h *harness) cards() []*memhost.Element {
	return h.doc.Find(agent.Query{Attr: agent.AttrSourceLocation, Value: "abc"})
}

func (h *harness) layoutCards() {
	for i, el := range h.cards() {
		h.doc.SetRect(el, agent.Rect{Top: 100 + float64(i)*40, Left: 10, Width: 200, Height: 20})
	}
}

func (h *harness) enable(t *testing.T) {
	t.Helper()
	h.send(t, `{"type":"toggle-visual-edit-mode","data":{"enabled":true}}`)
}

func TestStart_StandalonePageStaysInert(t *testing.T) {
	doc, err := memhost.ParseString(page, false)
	require.NoError(t, err)
	out := &memhost.Outbox{}

	c, err := agent.Start(doc, out, &memhost.Timers{}, zaptest.NewLogger(t), agent.DefaultOptions())
	assert.ErrorIs(t, err, agent.ErrStandalone)
	assert.Nil(t, c)
	assert.Empty(t, out.Messages())
	assert.Empty(t, doc.Observed())
	assert.Empty(t, doc.Find(agent.Query{Attr: agent.AttrVisualSelectorID, Value: "visual-id-Legacy-12-0"}))
}

func TestStart_AnnouncesReadyAndAssignsSelectorIDs(t *testing.T) {
	h := newHarness(t, page)

	assert.Equal(t, []string{agent.TypeAgentReady}, h.out.Types())
	assert.Equal(t, agent.ObservedAttributes, h.doc.Observed())

	legacy := h.doc.Find(agent.Query{Attr: agent.AttrLineNumber})
	require.Len(t, legacy, 3)
	ids := make([]string, 0, len(legacy))
	for _, el := range legacy {
		id, _ := el.Attr(agent.AttrVisualSelectorID)
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"visual-id-Legacy-12-0", "visual-id-Legacy-14-1", "kept"}, ids)
}

func TestController_EditModeGating(t *testing.T) {
	h := newHarness(t, page)
	h.layoutCards()
	card := h.cards()[0]

	// Off: pointer events do nothing.
	h.c.HandleMouseOver(agent.PointerEvent{Target: card})
	res := h.c.HandleClick(agent.PointerEvent{Target: card})
	assert.False(t, res.Suppress)
	assert.Empty(t, h.doc.Overlays(""))
	assert.Equal(t, []string{agent.TypeAgentReady}, h.out.Types())

	// On: hover and click behave.
	h.enable(t)
	assert.True(t, h.doc.Listening())
	assert.Equal(t, "crosshair", h.doc.Cursor())

	h.c.HandleMouseOver(agent.PointerEvent{Target: h.doc.First(agent.Query{Attr: agent.AttrSourceLocation, Value: "pages/Home:3:5"})})
	assert.Len(t, h.doc.Overlays(agent.OverlayHover), 1)

	res = h.c.HandleClick(agent.PointerEvent{Target: card})
	assert.True(t, res.Suppress)
	assert.Len(t, h.doc.Overlays(agent.OverlaySelected), 3)
	assert.Empty(t, h.doc.Overlays(agent.OverlayHover))
	assert.Equal(t, 1, h.out.Count(agent.TypeElementSelected))

	// Off again: everything is torn down.
	h.send(t, `{"type":"toggle-visual-edit-mode","data":{"enabled":false}}`)
	assert.Empty(t, h.doc.Overlays(""))
	assert.False(t, h.doc.Listening())
	assert.Equal(t, "default", h.doc.Cursor())
	assert.Equal(t, agent.Snapshot{}, h.c.State())

	h.c.HandleMouseOver(agent.PointerEvent{Target: card})
	assert.False(t, h.c.HandleClick(agent.PointerEvent{Target: card}).Suppress)
	assert.Empty(t, h.doc.Overlays(""))
	assert.Equal(t, 1, h.out.Count(agent.TypeElementSelected))
}

func TestController_ClickSelectsWholeGroup(t *testing.T) {
	h := newHarness(t, page)
	h.layoutCards()
	h.enable(t)

	second := h.cards()[1]
	res := h.c.HandleClick(agent.PointerEvent{Target: second})
	require.True(t, res.Suppress)

	boxes := h.doc.Overlays(agent.OverlaySelected)
	require.Len(t, boxes, 3)
	for i, box := range boxes {
		assert.Equal(t, "p", box.Label)
		assert.Equal(t, agent.Rect{Top: 100 + float64(i)*40, Left: 10, Width: 200, Height: 20}, box.Rect)
	}

	var got agent.ElementSelected
	require.True(t, h.out.Last(agent.TypeElementSelected, &got))
	want := agent.ElementSelected{
		Type:               agent.TypeElementSelected,
		TagName:            "P",
		Classes:            "card",
		VisualSelectorID:   "abc",
		Content:            "Two",
		DataSourceLocation: "abc",
		IsDynamicContent:   true,
		Position: agent.Position{
			Top: 140, Left: 10, Right: 210, Bottom: 160,
			Width: 200, Height: 20, CenterX: 110, CenterY: 150,
		},
	}
	assert.Empty(t, cmp.Diff(want, got))

	state := h.c.State()
	assert.Equal(t, "abc", state.SelectedID)
	assert.Equal(t, 3, state.SelectedOverlays)
}

func TestController_ClickResolvesNearestTaggedAncestor(t *testing.T) {
	h := newHarness(t, page)
	h.enable(t)

	span := h.doc.ByTag("span")[0]
	h.c.HandleClick(agent.PointerEvent{Target: span})

	var got agent.ElementSelected
	require.True(t, h.out.Last(agent.TypeElementSelected, &got))
	assert.Equal(t, "abc", got.VisualSelectorID)
	assert.Equal(t, "One inner", got.Content)
}

func TestController_ClickOnSyntheticIDCarriesHints(t *testing.T) {
	h := newHarness(t, page)
	h.enable(t)

	legacy := h.doc.First(agent.Query{Attr: agent.AttrVisualSelectorID, Value: "visual-id-Legacy-14-1"})
	require.NotNil(t, legacy)
	h.c.HandleClick(agent.PointerEvent{Target: legacy})

	var got agent.ElementSelected
	require.True(t, h.out.Last(agent.TypeElementSelected, &got))
	assert.Equal(t, "visual-id-Legacy-14-1", got.VisualSelectorID)
	assert.Equal(t, "14", got.LineNumber)
	assert.Equal(t, "Legacy", got.Filename)
	assert.Empty(t, got.DataSourceLocation)
	assert.False(t, got.IsDynamicContent)
	assert.Len(t, h.doc.Overlays(agent.OverlaySelected), 1)
}

func TestController_SVGElementsAndPaths(t *testing.T) {
	h := newHarness(t, page)
	h.enable(t)

	svg := h.doc.ByTag("svg")[0]
	path := h.doc.ByTag("path")[0]

	h.c.HandleMouseOver(agent.PointerEvent{Target: svg})
	require.Len(t, h.doc.Overlays(agent.OverlayHover), 1)

	// Paths clear hover and are never selectable.
	h.c.HandleMouseOver(agent.PointerEvent{Target: path})
	assert.Empty(t, h.doc.Overlays(agent.OverlayHover))
	assert.False(t, h.c.HandleClick(agent.PointerEvent{Target: path}).Suppress)
	assert.Zero(t, h.out.Count(agent.TypeElementSelected))

	h.c.HandleClick(agent.PointerEvent{Target: svg})
	var got agent.ElementSelected
	require.True(t, h.out.Last(agent.TypeElementSelected, &got))
	assert.Equal(t, "svg", got.TagName)
	assert.Equal(t, "icon", got.Classes)
}

func TestController_HoverSuppressedOnSelection(t *testing.T) {
	h := newHarness(t, page)
	h.enable(t)

	cards := h.cards()
	h.c.HandleClick(agent.PointerEvent{Target: cards[0]})
	require.Len(t, h.doc.Overlays(agent.OverlaySelected), 3)

	h.c.HandleMouseOver(agent.PointerEvent{Target: cards[2]})
	assert.Empty(t, h.doc.Overlays(agent.OverlayHover))
	assert.Len(t, h.doc.Overlays(agent.OverlaySelected), 3)
}

func TestController_HoverGroupAndMouseOut(t *testing.T) {
	h := newHarness(t, page)
	h.layoutCards()
	h.enable(t)

	h.c.HandleMouseOver(agent.PointerEvent{Target: h.cards()[0]})
	assert.Len(t, h.doc.Overlays(agent.OverlayHover), 3)
	assert.Equal(t, 3, h.c.State().Highlighted)

	// Untagged elements clear hover.
	h.c.HandleMouseOver(agent.PointerEvent{Target: h.doc.ByTag("footer")[0]})
	assert.Empty(t, h.doc.Overlays(agent.OverlayHover))

	h.c.HandleMouseOver(agent.PointerEvent{Target: h.cards()[0]})
	h.c.HandleMouseOut()
	assert.Empty(t, h.doc.Overlays(agent.OverlayHover))
	assert.Equal(t, "", h.c.State().HoveredID)
}

func TestController_ClickOnUntaggedElementIsSuppressedOnly(t *testing.T) {
	h := newHarness(t, page)
	h.enable(t)

	res := h.c.HandleClick(agent.PointerEvent{Target: h.doc.ByTag("footer")[0]})
	assert.True(t, res.Suppress)
	assert.Zero(t, h.out.Count(agent.TypeElementSelected))
	assert.Empty(t, h.doc.Overlays(""))
}

func TestController_DropdownOpen(t *testing.T) {
	h := newHarness(t, page)
	h.enable(t)
	card := h.cards()[0]

	h.c.HandleMouseOver(agent.PointerEvent{Target: card})
	require.Len(t, h.doc.Overlays(agent.OverlayHover), 3)

	h.send(t, `{"type":"dropdown-state","data":{"isOpen":true}}`)
	assert.Empty(t, h.doc.Overlays(agent.OverlayHover))
	assert.True(t, h.c.State().DropdownOpen)

	h.c.HandleMouseOver(agent.PointerEvent{Target: card})
	assert.Empty(t, h.doc.Overlays(agent.OverlayHover))

	res := h.c.HandleClick(agent.PointerEvent{Target: card})
	assert.True(t, res.Suppress)
	assert.Equal(t, 1, h.out.Count(agent.TypeCloseDropdowns))
	assert.Zero(t, h.out.Count(agent.TypeElementSelected))
	assert.Empty(t, h.doc.Overlays(agent.OverlaySelected))

	h.send(t, `{"type":"dropdown-state","data":{"isOpen":false}}`)
	h.c.HandleClick(agent.PointerEvent{Target: card})
	assert.Equal(t, 1, h.out.Count(agent.TypeElementSelected))
}

func TestController_PopoverDrag(t *testing.T) {
	h := newHarness(t, page)
	h.enable(t)
	card := h.cards()[0]

	h.c.HandleMouseOver(agent.PointerEvent{Target: card})
	require.Len(t, h.doc.Overlays(agent.OverlayHover), 3)

	h.send(t, `{"type":"popover-drag-state","data":{"isDragging":true}}`)
	assert.Empty(t, h.doc.Overlays(agent.OverlayHover))
	assert.True(t, h.c.State().DraggingPopover)

	h.c.HandleMouseOver(agent.PointerEvent{Target: card})
	assert.Empty(t, h.doc.Overlays(agent.OverlayHover))

	h.send(t, `{"type":"popover-drag-state","data":{"isDragging":false}}`)
	h.c.HandleMouseOver(agent.PointerEvent{Target: card})
	assert.Len(t, h.doc.Overlays(agent.OverlayHover), 3)
}

func TestController_ViewportFlag(t *testing.T) {
	h := newHarness(t, page)
	h.enable(t)
	h.doc.SetViewport(agent.Viewport{Width: 1000, Height: 600})

	card := h.cards()[0]
	h.c.HandleClick(agent.PointerEvent{Target: card})

	tests := []struct {
		name string
		rect agent.Rect
		want bool
	}{
		{"above the visible area", agent.Rect{Top: -300, Left: 100, Width: 200, Height: 100}, false},
		{"centred", agent.Rect{Top: 250, Left: 400, Width: 200, Height: 100}, true},
		{"below the visible area", agent.Rect{Top: 600, Left: 100, Width: 200, Height: 100}, false},
		{"partly visible at the top", agent.Rect{Top: -50, Left: 100, Width: 200, Height: 100}, true},
		{"left of the visible area", agent.Rect{Top: 100, Left: -250, Width: 200, Height: 100}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.out.Reset()
			h.doc.SetRect(card, tt.rect)
			h.send(t, `{"type":"request-element-position"}`)

			var got agent.ElementPositionUpdate
			require.True(t, h.out.Last(agent.TypeElementPositionUpdate, &got))
			assert.Equal(t, tt.want, got.IsInViewport)
			assert.Equal(t, "abc", got.VisualSelectorID)
			assert.Equal(t, agent.PositionOf(tt.rect), got.Position)
		})
	}
}

func TestController_PositionRequestWithoutSelection(t *testing.T) {
	h := newHarness(t, page)
	h.send(t, `{"type":"request-element-position"}`)
	h.c.HandleScroll()
	assert.Zero(t, h.out.Count(agent.TypeElementPositionUpdate))
}

func TestController_ScrollRepositionsInPageCoordinates(t *testing.T) {
	h := newHarness(t, page)
	h.layoutCards()
	h.enable(t)
	h.c.HandleClick(agent.PointerEvent{Target: h.cards()[0]})

	// The page scrolls by 100px, so the elements move up in the viewport
	// while their page position stays put.
	h.doc.SetViewport(agent.Viewport{Width: 1280, Height: 800, ScrollY: 100})
	for i, el := range h.cards() {
		h.doc.SetRect(el, agent.Rect{Top: float64(i) * 40, Left: 10, Width: 200, Height: 20})
	}
	h.c.HandleScroll()

	boxes := h.doc.Overlays(agent.OverlaySelected)
	require.Len(t, boxes, 3)
	for i, box := range boxes {
		assert.Equal(t, 100+float64(i)*40, box.Rect.Top)
	}
	assert.Equal(t, 1, h.out.Count(agent.TypeElementPositionUpdate))
}

func TestController_ResizeRepositionsHoverAndSelection(t *testing.T) {
	h := newHarness(t, page)
	h.layoutCards()
	h.enable(t)
	h.c.HandleClick(agent.PointerEvent{Target: h.doc.First(agent.Query{Attr: agent.AttrSourceLocation, Value: "pages/Home:3:5"})})
	require.Len(t, h.doc.Overlays(agent.OverlaySelected), 1)

	h.c.HandleMouseOver(agent.PointerEvent{Target: h.cards()[0]})
	require.Len(t, h.doc.Overlays(agent.OverlayHover), 3)

	h.doc.SetViewport(agent.Viewport{Width: 1280, Height: 800, ScrollY: 30})
	h.c.HandleResize()
	for i, box := range h.doc.Overlays(agent.OverlayHover) {
		assert.Equal(t, 130+float64(i)*40, box.Rect.Top)
	}
	assert.Equal(t, float64(30), h.doc.Overlays(agent.OverlaySelected)[0].Rect.Top)
	assert.Zero(t, h.out.Count(agent.TypeElementPositionUpdate))
}

func TestController_UpdateClasses(t *testing.T) {
	h := newHarness(t, page)
	h.layoutCards()
	h.enable(t)
	h.c.HandleClick(agent.PointerEvent{Target: h.cards()[0]})

	h.send(t, `{"type":"update-classes","data":{"visualSelectorId":"abc","classes":"card p-8 text-lg"}}`)
	for _, el := range h.cards() {
		assert.Equal(t, "card p-8 text-lg", el.ClassName())
	}

	// Layout changes after the class edit; overlays follow only once the
	// settle delay has passed.
	for i, el := range h.cards() {
		h.doc.SetRect(el, agent.Rect{Top: 100 + float64(i)*80, Left: 10, Width: 240, Height: 60})
	}
	assert.Equal(t, float64(200), h.doc.Overlays(agent.OverlaySelected)[0].Rect.Width)

	h.timers.Advance(49 * time.Millisecond)
	assert.Equal(t, float64(200), h.doc.Overlays(agent.OverlaySelected)[0].Rect.Width)

	h.timers.Advance(time.Millisecond)
	boxes := h.doc.Overlays(agent.OverlaySelected)
	require.Len(t, boxes, 3)
	for i, box := range boxes {
		assert.Equal(t, agent.Rect{Top: 100 + float64(i)*80, Left: 10, Width: 240, Height: 60}, box.Rect)
	}
}

func TestController_UpdateForUnknownIDIsNoop(t *testing.T) {
	h := newHarness(t, page)
	h.send(t, `{"type":"update-classes","data":{"visualSelectorId":"missing","classes":"x"}}`)
	h.send(t, `{"type":"update-content","data":{"visualSelectorId":"missing","content":"x"}}`)
	assert.Zero(t, h.timers.Pending())
}

func TestController_StaleDeferredWork(t *testing.T) {
	h := newHarness(t, page)
	h.enable(t)
	h.c.HandleClick(agent.PointerEvent{Target: h.cards()[0]})

	h.send(t, `{"type":"update-content","data":{"visualSelectorId":"abc","content":"gone soon"}}`)
	for _, el := range h.cards() {
		h.doc.Remove(el)
	}

	assert.NotPanics(t, func() { h.timers.Advance(time.Second) })
	assert.NotPanics(t, func() { h.c.HandleScroll() })
	assert.Zero(t, h.out.Count(agent.TypeElementPositionUpdate))
}

func TestController_EndToEndScenario(t *testing.T) {
	h := newHarness(t, `<html><body>
<section><h2 data-source-location="abc" data-dynamic-content="false">First</h2></section>
<section><h2 data-source-location="abc" data-dynamic-content="false">Second</h2></section>
</body></html>`)

	h.send(t, `{"type":"toggle-visual-edit-mode","data":{"enabled":true}}`)
	first := h.doc.ByTag("h2")[0]
	h.c.HandleClick(agent.PointerEvent{Target: first})

	assert.Equal(t, 1, h.out.Count(agent.TypeElementSelected))
	var got agent.ElementSelected
	require.True(t, h.out.Last(agent.TypeElementSelected, &got))
	assert.Equal(t, "abc", got.VisualSelectorID)
	assert.Len(t, h.doc.Overlays(agent.OverlaySelected), 2)

	h.send(t, `{"type":"update-content","data":{"visualSelectorId":"abc","content":"Hi"}}`)
	for _, el := range h.doc.ByTag("h2") {
		assert.Equal(t, "Hi", el.InnerText())
	}

	rendered, err := h.doc.Render()
	require.NoError(t, err)
	assert.Contains(t, rendered, `data-vedit-overlay="selected"`)
}

func TestController_UnselectAndRefresh(t *testing.T) {
	h := newHarness(t, page)
	h.enable(t)
	h.c.HandleClick(agent.PointerEvent{Target: h.cards()[0]})
	h.c.HandleMouseOver(agent.PointerEvent{Target: h.doc.ByTag("svg")[0]})
	require.Len(t, h.doc.Overlays(agent.OverlayHover), 1)

	h.send(t, `{"type":"unselect-element"}`)
	assert.Empty(t, h.doc.Overlays(agent.OverlaySelected))
	assert.Len(t, h.doc.Overlays(agent.OverlayHover), 1)
	assert.Equal(t, "", h.c.State().SelectedID)
	assert.True(t, h.c.State().EditMode)

	h.send(t, `{"type":"refresh-page"}`)
	assert.Equal(t, 1, h.doc.Reloads())
}

func TestController_MalformedMessagesAreDropped(t *testing.T) {
	h := newHarness(t, page)

	h.send(t, `{"type":"toggle-visual-edit-mode"}`)
	h.send(t, `{"type":"toggle-visual-edit-mode","data":{}}`)
	assert.False(t, h.c.State().EditMode)

	h.send(t, `{"type":"update-classes","data":{"visualSelectorId":"abc"}}`)
	h.send(t, `{"type":"update-content","data":{"content":"x"}}`)
	h.send(t, `{"type":"dropdown-state","data":{"isOpen":"yes"}}`)
	h.send(t, `{"type":"popover-drag-state","data":null}`)
	h.send(t, `{"type":"something-else","data":{"whatever":1}}`)

	for _, el := range h.cards() {
		assert.Equal(t, "card", el.ClassName())
	}
	assert.Equal(t, agent.Snapshot{}, h.c.State())
	assert.Equal(t, []string{agent.TypeAgentReady}, h.out.Types())
}

func TestController_MutationsAreDebounced(t *testing.T) {
	h := newHarness(t, page)
	h.layoutCards()
	h.enable(t)
	h.c.HandleClick(agent.PointerEvent{Target: h.cards()[0]})
	h.out.Reset()

	burst := []agent.Mutation{
		{Type: agent.MutationAttributes, Attribute: "class", Tagged: true},
		{Type: agent.MutationAttributes, Attribute: "style", Tagged: true},
	}
	h.c.HandleMutations(burst)
	h.c.HandleMutations(burst)
	h.c.HandleMutations(burst)
	assert.Equal(t, 1, h.timers.Pending())

	h.doc.SetRect(h.cards()[0], agent.Rect{Top: 500, Left: 10, Width: 200, Height: 20})
	h.timers.Advance(50 * time.Millisecond)
	assert.Equal(t, float64(500), h.doc.Overlays(agent.OverlaySelected)[0].Rect.Top)

	// A later burst schedules a fresh reposition.
	h.c.HandleMutations(burst)
	assert.Equal(t, 1, h.timers.Pending())
	assert.Empty(t, h.out.Messages())
}

func TestController_IgnoredMutations(t *testing.T) {
	h := newHarness(t, page)
	h.c.HandleMutations([]agent.Mutation{
		{Type: agent.MutationAttributes, Attribute: "class", Tagged: false},
		{Type: agent.MutationAttributes, Attribute: "data-state", Tagged: true},
	})
	assert.Zero(t, h.timers.Pending())
}

func TestController_MountNotifications(t *testing.T) {
	h := newHarness(t, page)
	h.c.HandleMutations([]agent.Mutation{{Type: agent.MutationChildList, Tagged: true}})
	assert.Equal(t, 1, h.out.Count(agent.TypeSandboxMounted))
	assert.Equal(t, 1, h.timers.Pending())

	bare := newHarness(t, `<html><body><main>nothing tagged</main></body></html>`)
	bare.c.HandleMutations([]agent.Mutation{{Type: agent.MutationChildList}})
	assert.Equal(t, 1, bare.out.Count(agent.TypeSandboxUnmounted))
	assert.Zero(t, bare.timers.Pending())
}

func TestController_MountNotificationsDisabled(t *testing.T) {
	doc, err := memhost.ParseString(page, true)
	require.NoError(t, err)
	out := &memhost.Outbox{}
	opts := agent.DefaultOptions()
	opts.MountNotifications = false

	c, err := agent.Start(doc, out, &memhost.Timers{}, zaptest.NewLogger(t), opts)
	require.NoError(t, err)
	c.HandleMutations([]agent.Mutation{{Type: agent.MutationChildList, Tagged: true}})
	assert.Zero(t, out.Count(agent.TypeSandboxMounted))
}

func TestController_Navigation(t *testing.T) {
	h := newHarness(t, page)
	h.c.HandleNavigation("http://localhost:5173/")
	h.c.HandleNavigation("http://localhost:5173/")
	h.c.HandleNavigation("http://localhost:5173/settings")

	assert.Equal(t, 2, h.out.Count(agent.TypeAppChangedURL))
	var got agent.URLChanged
	require.True(t, h.out.Last(agent.TypeAppChangedURL, &got))
	assert.Equal(t, "http://localhost:5173/settings", got.URL)
}

func TestController_NoParent(t *testing.T) {
	doc, err := memhost.ParseString(page, true)
	require.NoError(t, err)

	c, err := agent.Start(doc, nil, &memhost.Timers{}, zaptest.NewLogger(t), agent.DefaultOptions())
	require.NoError(t, err)

	msg, err := agent.ParseMessage([]byte(`{"type":"toggle-visual-edit-mode","data":{"enabled":true}}`))
	require.NoError(t, err)
	c.HandleMessage(msg)

	assert.NotPanics(t, func() {
		c.HandleClick(agent.PointerEvent{Target: doc.ByTag("p")[0]})
	})
	assert.Equal(t, "abc", c.State().SelectedID)
}
