// File: internal/agent/controller.go

// Package agent implements the visual edit agent: the controller that runs
// inside an embedded preview page, highlights and selects instrumented
// elements, applies live edits and reports geometry to the parent editor.
//
// The controller never touches a browser directly. It drives a Document, a
// Parent and a Scheduler supplied by the host, and every method must be
// called from the single goroutine that owns the page.
package agent

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	cursorCrosshair = "crosshair"
	cursorDefault   = "default"
)

// Options tunes the controller's timing and optional notifications.
type Options struct {
	// SettleDelay is how long class and content edits wait for layout
	// before overlays are repositioned.
	SettleDelay time.Duration
	// MutationDebounce coalesces bursts of layout mutations into a single
	// reposition.
	MutationDebounce time.Duration
	// MountNotifications posts sandbox:onMounted / sandbox:onUnmounted after
	// childList mutations.
	MountNotifications bool
}

// DefaultOptions returns the stock timings.
func DefaultOptions() Options {
	return Options{
		SettleDelay:        50 * time.Millisecond,
		MutationDebounce:   50 * time.Millisecond,
		MountNotifications: true,
	}
}

// Snapshot is a read-only copy of the controller state.
type Snapshot struct {
	EditMode         bool
	DraggingPopover  bool
	DropdownOpen     bool
	SelectedID       string
	HoveredID        string
	HoverOverlays    int
	SelectedOverlays int
	Highlighted      int
}

// Controller holds the state of one embedded page.
type Controller struct {
	doc    Document
	parent Parent
	sched  Scheduler
	logger *zap.Logger
	opts   Options

	editMode     bool
	dragging     bool
	dropdownOpen bool

	selectedID       string
	selectedOverlays []Overlay

	hoveredID     string
	hoverOverlays []Overlay
	highlighted   []Element

	repositionPending bool
	lastURL           string
}

// Start activates the agent on doc. It returns ErrStandalone without
// touching the page when doc is not embedded. Otherwise it assigns selector
// ids to hinted elements, installs the mutation observer and tells the
// parent it is ready. parent may be nil.
func Start(doc Document, parent Parent, sched Scheduler, logger *zap.Logger, opts Options) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !doc.Embedded() {
		return nil, ErrStandalone
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultOptions().SettleDelay
	}
	if opts.MutationDebounce <= 0 {
		opts.MutationDebounce = DefaultOptions().MutationDebounce
	}

	c := &Controller{
		doc:    doc,
		parent: parent,
		sched:  sched,
		logger: logger.Named("agent"),
		opts:   opts,
	}

	c.assignSelectorIDs()
	if err := doc.Observe(ObservedAttributes); err != nil {
		c.logger.Warn("Could not install mutation observer", zap.Error(err))
	}
	c.post(Notice{Type: TypeAgentReady})
	return c, nil
}

// State returns a copy of the current state.
func (c *Controller) State() Snapshot {
	return Snapshot{
		EditMode:         c.editMode,
		DraggingPopover:  c.dragging,
		DropdownOpen:     c.dropdownOpen,
		SelectedID:       c.selectedID,
		HoveredID:        c.hoveredID,
		HoverOverlays:    len(c.hoverOverlays),
		SelectedOverlays: len(c.selectedOverlays),
		Highlighted:      len(c.highlighted),
	}
}

// assignSelectorIDs gives every element with a line number hint and no
// selector id a synthesized one. Ordinals follow document order at scan
// time.
func (c *Controller) assignSelectorIDs() {
	els, err := c.doc.QueryAll(Query{Attr: AttrLineNumber, Without: AttrVisualSelectorID})
	if err != nil {
		c.logger.Debug("Selector id scan failed", zap.Error(err))
		return
	}
	for i, el := range els {
		id := SyntheticSelectorID(attr(el, AttrFilename), attr(el, AttrLineNumber), i)
		if err := c.doc.SetAttr(el, AttrVisualSelectorID, id); err != nil {
			c.logger.Debug("Could not assign selector id", zap.String("id", id), zap.Error(err))
		}
	}
	if len(els) > 0 {
		c.logger.Debug("Assigned selector ids", zap.Int("count", len(els)))
	}
}

// SyntheticSelectorID formats a runtime selector id.
func SyntheticSelectorID(filename, line string, ordinal int) string {
	return fmt.Sprintf("visual-id-%s-%s-%d", filename, line, ordinal)
}

// HandleMessage applies one command from the parent. Unknown types are
// ignored and malformed payloads are logged and dropped.
func (c *Controller) HandleMessage(msg Message) {
	var err error
	switch msg.Type {
	case TypeToggleVisualEditMode:
		var d toggleEditModeData
		if err = decodeData(msg, &d); err == nil {
			if d.Enabled == nil {
				err = missingField(msg.Type, "enabled")
			} else {
				c.setEditMode(*d.Enabled)
			}
		}
	case TypeUpdateClasses:
		var d updateClassesData
		if err = decodeData(msg, &d); err == nil {
			switch {
			case d.Classes == nil:
				err = missingField(msg.Type, "classes")
			case d.VisualSelectorID == nil:
				err = missingField(msg.Type, "visualSelectorId")
			default:
				c.updateClasses(*d.VisualSelectorID, *d.Classes)
			}
		}
	case TypeUnselectElement:
		c.clearSelection()
	case TypeRefreshPage:
		if rerr := c.doc.Reload(); rerr != nil {
			c.logger.Debug("Reload failed", zap.Error(rerr))
		}
	case TypeUpdateContent:
		var d updateContentData
		if err = decodeData(msg, &d); err == nil {
			switch {
			case d.Content == nil:
				err = missingField(msg.Type, "content")
			case d.VisualSelectorID == nil:
				err = missingField(msg.Type, "visualSelectorId")
			default:
				c.updateContent(*d.VisualSelectorID, *d.Content)
			}
		}
	case TypeRequestElementPosition:
		c.reportPosition()
	case TypePopoverDragState:
		var d popoverDragData
		if err = decodeData(msg, &d); err == nil {
			if d.IsDragging == nil {
				err = missingField(msg.Type, "isDragging")
			} else {
				c.dragging = *d.IsDragging
				if c.dragging {
					c.clearHover()
				}
			}
		}
	case TypeDropdownState:
		var d dropdownStateData
		if err = decodeData(msg, &d); err == nil {
			if d.IsOpen == nil {
				err = missingField(msg.Type, "isOpen")
			} else {
				c.dropdownOpen = *d.IsOpen
				if c.dropdownOpen {
					c.clearHover()
				}
			}
		}
	default:
		return
	}

	if errors.Is(err, ErrInvalidPayload) {
		c.logger.Warn("Invalid message dropped", zap.String("type", msg.Type), zap.Error(err))
	}
}

func (c *Controller) setEditMode(enabled bool) {
	c.editMode = enabled
	if enabled {
		c.hostStep("set cursor", c.doc.SetCursor(cursorCrosshair))
		c.hostStep("attach pointer listeners", c.doc.ListenPointer(true))
		return
	}

	c.clearHover()
	c.clearSelection()
	c.hostStep("set cursor", c.doc.SetCursor(cursorDefault))
	c.hostStep("detach pointer listeners", c.doc.ListenPointer(false))
}

// HandleMouseOver highlights every element sharing the hovered element's id.
func (c *Controller) HandleMouseOver(ev PointerEvent) {
	if !c.editMode {
		return
	}
	if c.dragging || c.dropdownOpen || isVectorPath(ev.Target) {
		c.clearHover()
		return
	}

	el, id := c.resolve(ev.Target)
	if el == nil || id == c.selectedID {
		c.clearHover()
		return
	}

	els := c.findByID(id)
	c.clearHover()
	c.hoverOverlays = c.drawOverlays(OverlayHover, els)
	c.hoveredID = id
	c.highlighted = els
}

// HandleMouseOut clears hover highlighting unless a popover drag is active.
func (c *Controller) HandleMouseOut() {
	if !c.editMode || c.dragging {
		return
	}
	c.clearHover()
}

// HandleClick selects the clicked element's group and reports it upstream.
func (c *Controller) HandleClick(ev PointerEvent) ClickResult {
	if !c.editMode {
		return ClickResult{}
	}
	if c.dropdownOpen {
		c.post(Notice{Type: TypeCloseDropdowns})
		return ClickResult{Suppress: true}
	}
	if isVectorPath(ev.Target) {
		return ClickResult{}
	}

	res := ClickResult{Suppress: true}
	el, id := c.resolve(ev.Target)
	if el == nil {
		return res
	}

	c.removeOverlays(c.selectedOverlays)
	els := c.findByID(id)
	c.selectedOverlays = c.drawOverlays(OverlaySelected, els)
	c.selectedID = id
	c.clearHover()

	rect, err := c.doc.BoundingRect(el)
	if err != nil {
		c.logger.Debug("Could not measure selection", zap.String("id", id), zap.Error(err))
		return res
	}

	source, _ := el.Attr(AttrSourceLocation)
	dynamic, _ := el.Attr(AttrDynamicContent)
	c.post(ElementSelected{
		Type:               TypeElementSelected,
		TagName:            el.TagName(),
		Classes:            el.ClassName(),
		VisualSelectorID:   id,
		Content:            el.InnerText(),
		DataSourceLocation: source,
		IsDynamicContent:   dynamic == "true",
		LineNumber:         attr(el, AttrLineNumber),
		Filename:           attr(el, AttrFilename),
		Position:           PositionOf(rect),
	})
	return res
}

// HandleScroll reports the selection's geometry and repositions overlays.
// It runs whether or not edit mode is on.
func (c *Controller) HandleScroll() {
	c.reportPosition()
	c.repositionAll()
}

// HandleResize repositions overlays. It runs whether or not edit mode is on.
func (c *Controller) HandleResize() {
	c.repositionAll()
}

// HandleMutations schedules one debounced reposition for any burst that
// touches layout of tagged elements, and posts mount notifications for
// childList changes.
func (c *Controller) HandleMutations(muts []Mutation) {
	layout, childList := false, false
	for _, m := range muts {
		switch m.Type {
		case MutationAttributes:
			if m.Tagged && isObservedAttribute(m.Attribute) {
				layout = true
			}
		case MutationChildList:
			childList = true
			if m.Tagged {
				layout = true
			}
		}
	}

	if layout && !c.repositionPending {
		c.repositionPending = true
		c.sched.AfterFunc(c.opts.MutationDebounce, func() {
			c.repositionPending = false
			c.repositionAll()
		})
	}
	if childList && c.opts.MountNotifications {
		c.notifyMount()
	}
}

// HandleNavigation reports a client-side URL change to the parent.
func (c *Controller) HandleNavigation(url string) {
	if url == "" || url == c.lastURL {
		return
	}
	c.lastURL = url
	c.post(URLChanged{Type: TypeAppChangedURL, URL: url})
}

func (c *Controller) notifyMount() {
	mounted := false
	for _, name := range []string{AttrSourceLocation, AttrDynamicContent} {
		els, err := c.doc.QueryAll(Query{Attr: name})
		if err != nil {
			c.logger.Debug("Mount scan failed", zap.Error(err))
			return
		}
		if len(els) > 0 {
			mounted = true
			break
		}
	}
	if mounted {
		c.post(Notice{Type: TypeSandboxMounted})
	} else {
		c.post(Notice{Type: TypeSandboxUnmounted})
	}
}

func (c *Controller) updateClasses(id, classes string) {
	els := c.findByID(id)
	if len(els) == 0 {
		return
	}
	for _, el := range els {
		c.hostStep("set class", c.doc.SetClassName(el, classes))
	}
	c.sched.AfterFunc(c.opts.SettleDelay, func() {
		if c.selectedID == id {
			c.repositionSelected()
		}
		if c.hoveredID == id {
			c.repositionHover()
		}
	})
}

func (c *Controller) updateContent(id, content string) {
	els := c.findByID(id)
	if len(els) == 0 {
		return
	}
	for _, el := range els {
		c.hostStep("set text", c.doc.SetInnerText(el, content))
	}
	c.sched.AfterFunc(c.opts.SettleDelay, func() {
		if c.selectedID == id {
			c.repositionSelected()
		}
	})
}

// reportPosition posts the first selected element's geometry, if any.
func (c *Controller) reportPosition() {
	if c.selectedID == "" {
		return
	}
	els := c.findByID(c.selectedID)
	if len(els) == 0 {
		return
	}
	rect, err := c.doc.BoundingRect(els[0])
	if err != nil {
		c.logger.Debug("Could not measure selection", zap.Error(err))
		return
	}
	vp, err := c.doc.Viewport()
	if err != nil {
		c.logger.Debug("Could not read viewport", zap.Error(err))
		return
	}
	c.post(ElementPositionUpdate{
		Type:             TypeElementPositionUpdate,
		Position:         PositionOf(rect),
		IsInViewport:     InViewport(rect, vp),
		VisualSelectorID: c.selectedID,
	})
}

func (c *Controller) repositionAll() {
	c.repositionSelected()
	c.repositionHover()
}

func (c *Controller) repositionSelected() {
	if c.selectedID == "" {
		return
	}
	c.reposition(c.selectedOverlays, c.findByID(c.selectedID))
}

func (c *Controller) repositionHover() {
	if c.hoveredID == "" || len(c.hoverOverlays) == 0 {
		return
	}
	els := c.findByID(c.hoveredID)
	c.highlighted = els
	c.reposition(c.hoverOverlays, els)
}

// reposition pairs overlays with elements by index. Extra overlays keep
// their last position.
func (c *Controller) reposition(overlays []Overlay, els []Element) {
	for i, ov := range overlays {
		if i >= len(els) {
			return
		}
		c.place(ov, els[i])
	}
}

func (c *Controller) drawOverlays(variant OverlayVariant, els []Element) []Overlay {
	overlays := make([]Overlay, 0, len(els))
	for _, el := range els {
		ov, err := c.doc.CreateOverlay(variant, strings.ToLower(el.TagName()))
		if err != nil {
			c.logger.Debug("Could not create overlay", zap.String("variant", string(variant)), zap.Error(err))
			continue
		}
		overlays = append(overlays, ov)
		c.place(ov, el)
	}
	return overlays
}

// place moves ov over el in page coordinates.
func (c *Controller) place(ov Overlay, el Element) {
	rect, err := c.doc.BoundingRect(el)
	if err != nil {
		c.logger.Debug("Could not measure element", zap.Error(err))
		return
	}
	vp, err := c.doc.Viewport()
	if err != nil {
		c.logger.Debug("Could not read viewport", zap.Error(err))
		return
	}
	rect.Top += vp.ScrollY
	rect.Left += vp.ScrollX
	c.hostStep("place overlay", ov.Place(rect))
}

func (c *Controller) clearHover() {
	c.removeOverlays(c.hoverOverlays)
	c.hoverOverlays = nil
	c.highlighted = nil
	c.hoveredID = ""
}

func (c *Controller) clearSelection() {
	c.removeOverlays(c.selectedOverlays)
	c.selectedOverlays = nil
	c.selectedID = ""
}

func (c *Controller) removeOverlays(overlays []Overlay) {
	for _, ov := range overlays {
		c.hostStep("remove overlay", ov.Remove())
	}
}

// resolve finds the nearest selector-tagged ancestor of target and its id.
// The source location wins over a synthesized id.
func (c *Controller) resolve(target Element) (Element, string) {
	if target == nil {
		return nil, ""
	}
	el, err := c.doc.Closest(target, SelectorAttrs...)
	if err != nil {
		c.logger.Debug("Ancestor lookup failed", zap.Error(err))
		return nil, ""
	}
	if el == nil {
		return nil, ""
	}
	for _, name := range SelectorAttrs {
		if id := attr(el, name); id != "" {
			return el, id
		}
	}
	return nil, ""
}

// findByID returns every element sharing id, looking at source locations
// first and synthesized ids second.
func (c *Controller) findByID(id string) []Element {
	if id == "" {
		return nil
	}
	for _, name := range SelectorAttrs {
		els, err := c.doc.QueryAll(Query{Attr: name, Value: id})
		if err != nil {
			c.logger.Debug("Query failed", zap.String("attr", name), zap.Error(err))
			continue
		}
		if len(els) > 0 {
			return els
		}
	}
	return nil
}

func (c *Controller) post(msg any) {
	if c.parent == nil {
		return
	}
	if err := c.parent.PostMessage(msg); err != nil {
		c.logger.Debug("postMessage failed", zap.Error(err))
	}
}

// hostStep logs a failed host operation. The handler carries on regardless.
func (c *Controller) hostStep(step string, err error) {
	if err != nil {
		c.logger.Debug("Host operation failed", zap.String("step", step), zap.Error(err))
	}
}

func isVectorPath(el Element) bool {
	return el != nil && strings.EqualFold(el.TagName(), "path")
}

func isObservedAttribute(name string) bool {
	for _, a := range ObservedAttributes {
		if a == name {
			return true
		}
	}
	return false
}

func attr(el Element, name string) string {
	v, _ := el.Attr(name)
	return v
}
