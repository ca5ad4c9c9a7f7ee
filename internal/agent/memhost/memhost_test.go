// File: internal/agent/memhost/memhost_test.go
package memhost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/vedit/internal/agent"
)

const fixture = `<html><body>
<ul data-source-location="pages/List:4:3">
  <li data-linenumber="5" data-filename="List">a</li>
  <li data-linenumber="6" data-filename="List" data-visual-selector-id="fixed">b <em>bold</em></li>
</ul>
</body></html>`

func TestDocument_QueryAndClosest(t *testing.T) {
	doc, err := ParseString(fixture, true)
	require.NoError(t, err)

	all, err := doc.QueryAll(agent.Query{Attr: agent.AttrLineNumber})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	untagged := doc.Find(agent.Query{Attr: agent.AttrLineNumber, Without: agent.AttrVisualSelectorID})
	require.Len(t, untagged, 1)
	assert.Equal(t, "a", untagged[0].InnerText())

	em := doc.ByTag("em")[0]
	closest, err := doc.Closest(em, agent.SelectorAttrs...)
	require.NoError(t, err)
	require.NotNil(t, closest)
	assert.Equal(t, "LI", closest.TagName())
	assert.Equal(t, "b bold", closest.InnerText())

	closest, err = doc.Closest(em, "data-missing")
	require.NoError(t, err)
	assert.Nil(t, closest)
}

func TestDocument_DetachedElements(t *testing.T) {
	doc, err := ParseString(fixture, true)
	require.NoError(t, err)

	li := doc.ByTag("li")[0]
	doc.Remove(li)

	_, err = doc.BoundingRect(li)
	assert.ErrorIs(t, err, ErrDetached)
	assert.ErrorIs(t, doc.SetClassName(li, "x"), ErrDetached)
	assert.Len(t, doc.ByTag("li"), 1)
}

func TestDocument_OverlaysAreNotQueried(t *testing.T) {
	doc, err := ParseString(fixture, true)
	require.NoError(t, err)

	ov, err := doc.CreateOverlay(agent.OverlaySelected, "ul")
	require.NoError(t, err)
	require.NoError(t, ov.Place(agent.Rect{Top: 12.5, Left: 4, Width: 300, Height: 90}))

	boxes := doc.Overlays("")
	require.Len(t, boxes, 1)
	assert.Equal(t, Box{Variant: agent.OverlaySelected, Label: "ul", Rect: agent.Rect{Top: 12.5, Left: 4, Width: 300, Height: 90}}, boxes[0])
	assert.Empty(t, doc.Overlays(agent.OverlayHover))
	assert.Len(t, doc.ByTag("div"), 0)

	require.NoError(t, ov.Remove())
	assert.Empty(t, doc.Overlays(""))
	assert.ErrorIs(t, ov.Place(agent.Rect{}), ErrDetached)

	_, err = doc.CreateOverlay("outline", "ul")
	assert.Error(t, err)
}

func TestDocument_SetInnerTextAndTagged(t *testing.T) {
	doc, err := ParseString(fixture, true)
	require.NoError(t, err)

	ul := doc.ByTag("ul")[0]
	li := doc.ByTag("li")[1]
	assert.True(t, doc.Tagged(ul))
	assert.True(t, doc.Tagged(li))
	assert.False(t, doc.Tagged(doc.ByTag("em")[0]))

	require.NoError(t, doc.SetInnerText(li, "replaced"))
	assert.Equal(t, "replaced", li.InnerText())
	assert.Empty(t, doc.ByTag("em"))

	rendered, err := doc.Render()
	require.NoError(t, err)
	assert.Contains(t, rendered, `data-visual-selector-id="fixed">replaced</li>`)
}

func TestDocument_EmptyPage(t *testing.T) {
	// The HTML parser always synthesises a body, so any input is accepted.
	doc, err := ParseString("", false)
	require.NoError(t, err)
	assert.False(t, doc.Embedded())
}

func TestTimers_AdvanceRunsInDueOrder(t *testing.T) {
	var tm Timers
	var order []string

	tm.AfterFunc(30*time.Millisecond, func() { order = append(order, "b") })
	tm.AfterFunc(10*time.Millisecond, func() {
		order = append(order, "a")
		tm.AfterFunc(5*time.Millisecond, func() { order = append(order, "a2") })
	})
	tm.AfterFunc(30*time.Millisecond, func() { order = append(order, "c") })
	tm.AfterFunc(time.Second, func() { order = append(order, "late") })

	assert.Equal(t, []time.Duration{10 * time.Millisecond, 30 * time.Millisecond, 30 * time.Millisecond, time.Second}, tm.Due())

	tm.Advance(30 * time.Millisecond)
	assert.Equal(t, []string{"a", "a2", "b", "c"}, order)
	assert.Equal(t, 1, tm.Pending())
	assert.Equal(t, 30*time.Millisecond, tm.Now())

	tm.Advance(time.Second)
	assert.Equal(t, "late", order[len(order)-1])
	assert.Zero(t, tm.Pending())
}

func TestOutbox(t *testing.T) {
	var out Outbox
	require.NoError(t, out.PostMessage(agent.Notice{Type: agent.TypeAgentReady}))
	require.NoError(t, out.PostMessage(agent.URLChanged{Type: agent.TypeAppChangedURL, URL: "/a"}))
	require.NoError(t, out.PostMessage(agent.URLChanged{Type: agent.TypeAppChangedURL, URL: "/b"}))

	assert.Equal(t, []string{agent.TypeAgentReady, agent.TypeAppChangedURL, agent.TypeAppChangedURL}, out.Types())
	assert.Equal(t, 2, out.Count(agent.TypeAppChangedURL))

	var last agent.URLChanged
	require.True(t, out.Last(agent.TypeAppChangedURL, &last))
	assert.Equal(t, "/b", last.URL)
	assert.False(t, out.Last(agent.TypeElementSelected, &last))

	assert.Error(t, out.PostMessage(make(chan int)))

	out.Reset()
	assert.Empty(t, out.Messages())
}
