package core

import (
	"errors"

	"pkt.systems/pslog"
	"pkt.systems/webmux/schema"
)

// mergeHidesSourcePane is the pane-visibility policy: once a terminal is
// merged into a split it leaves the tab strip until the split releases it.
const mergeHidesSourcePane = true

// DropZone classifies where inside the target rectangle a drag was released.
type DropZone string

const (
	// DropLeft et al request a split on the named edge.
	DropLeft   DropZone = "left"
	DropRight  DropZone = "right"
	DropTop    DropZone = "top"
	DropBottom DropZone = "bottom"
	// DropCenterBefore and DropCenterAfter request a reorder, inserting the
	// source before or after the target.
	DropCenterBefore DropZone = "center-before"
	DropCenterAfter  DropZone = "center-after"
)

// IsEdge reports whether the zone requests a split rather than a reorder.
func (z DropZone) IsEdge() bool {
	switch z {
	case DropLeft, DropRight, DropTop, DropBottom:
		return true
	}
	return false
}

// ClassifyDropZone normalizes a pointer position to the target's rectangle
// (percentages in [0,100]) and evaluates the edge bands in priority order:
// top, bottom, left, right. Outside every band is center, itself halved
// left/right purely to pick the reorder-insertion side.
func ClassifyDropZone(xPct, yPct float64) DropZone {
	const threshold = schema.DropEdgeThresholdPercent
	switch {
	case yPct <= threshold:
		return DropTop
	case yPct >= 100-threshold:
		return DropBottom
	case xPct <= threshold:
		return DropLeft
	case xPct >= 100-threshold:
		return DropRight
	case xPct < 50:
		return DropCenterBefore
	default:
		return DropCenterAfter
	}
}

// Engine turns drag gestures into split, unsplit, and reorder mutations of
// the session store, enforcing the no-nesting invariant.
type Engine struct {
	store *Store
	log   pslog.Logger
}

// NewEngine constructs a split layout engine over the store.
func NewEngine(store *Store, logger pslog.Logger) *Engine {
	return &Engine{store: store, log: logger}
}

// HandleDrop routes a drag release at (xPct, yPct) over target: edge zones
// merge, center zones reorder.
func (e *Engine) HandleDrop(sourceID, targetID schema.SessionID, xPct, yPct float64) error {
	zone := ClassifyDropZone(xPct, yPct)
	if zone.IsEdge() {
		return e.Merge(sourceID, targetID, zone)
	}
	return e.Reorder(sourceID, targetID, zone == DropCenterBefore)
}

// Merge splits target along the dropped edge, hosting source and target as
// the two panes. Rejected (no store mutation) when the zone is center, when
// the target already hosts a split, or when either record is itself a pane
// of some container.
func (e *Engine) Merge(sourceID, targetID schema.SessionID, zone DropZone) error {
	if !zone.IsEdge() {
		return schema.ErrSplitRejected
	}
	if sourceID == targetID {
		return schema.ErrSplitRejected
	}
	source, ok := e.store.Get(sourceID)
	if !ok {
		return schema.ErrSessionNotFound
	}
	target, ok := e.store.Get(targetID)
	if !ok {
		return schema.ErrSessionNotFound
	}
	if target.IsSplit() || source.IsSplit() {
		return schema.ErrSplitRejected
	}
	if e.paneOwner(sourceID) != "" || e.paneOwner(targetID) != "" {
		return schema.ErrSplitRejected
	}

	orientation := schema.SplitHorizontal
	sourcePos := schema.PaneTop
	switch zone {
	case DropLeft:
		orientation = schema.SplitVertical
		sourcePos = schema.PaneLeft
	case DropRight:
		orientation = schema.SplitVertical
		sourcePos = schema.PaneRight
	case DropTop:
		sourcePos = schema.PaneTop
	case DropBottom:
		sourcePos = schema.PaneBottom
	}
	sourcePane := schema.SplitPane{
		ID:         newPaneID(),
		TerminalID: sourceID,
		Size:       50,
		Position:   sourcePos,
	}
	targetPane := schema.SplitPane{
		ID:         newPaneID(),
		TerminalID: targetID,
		Size:       50,
		Position:   sourcePos.Opposite(),
	}
	// Natural reading order: left before right, top before bottom,
	// regardless of which side the drag came from.
	panes := []schema.SplitPane{sourcePane, targetPane}
	if sourcePos == schema.PaneRight || sourcePos == schema.PaneBottom {
		panes = []schema.SplitPane{targetPane, sourcePane}
	}

	if err := e.store.Update(targetID, func(r *schema.SessionRecord) {
		r.SplitLayout = schema.SplitLayout{Type: orientation, Panes: panes}
	}); err != nil {
		return err
	}
	if mergeHidesSourcePane {
		if err := e.store.Update(sourceID, func(r *schema.SessionRecord) {
			r.IsHidden = true
		}); err != nil {
			return err
		}
	}
	if err := e.store.SetActive(targetID); err != nil {
		return err
	}
	e.store.SetFocused(sourceID)
	if e.log != nil {
		e.log.Debug("split merged", "source", sourceID, "target", targetID, "zone", zone)
	}
	return nil
}

// Unsplit removes the pane referencing terminalID from its container. With
// one pane left the container collapses to single and the survivor is
// unhidden and activated; with more the container keeps the reduced list.
func (e *Engine) Unsplit(terminalID schema.SessionID) error {
	containerID := e.paneOwner(terminalID)
	if containerID == "" {
		return schema.ErrSessionNotFound
	}
	return e.repairContainer(containerID, terminalID)
}

// RepairAfterRemoval restores split invariants after removedID left the
// model: any container referencing it as a pane is unsplit, and a container
// removed outright releases its panes.
func (e *Engine) RepairAfterRemoval(removedID schema.SessionID) {
	for _, record := range e.store.List() {
		if !record.IsSplit() {
			continue
		}
		if record.ID == removedID {
			// The container itself is gone; unhide its orphaned panes.
			for _, pane := range record.SplitLayout.Panes {
				_ = e.store.Update(pane.TerminalID, func(r *schema.SessionRecord) {
					r.IsHidden = false
				})
			}
			continue
		}
		if record.SplitLayout.PaneIndex(removedID) >= 0 {
			if err := e.repairContainer(record.ID, removedID); err != nil && e.log != nil {
				e.log.Warn("split repair failed", "container", record.ID, "err", err)
			}
		}
	}
}

// Reorder performs a center-zone drop: a standard list move of source to the
// target's position, inserting before or after per the hit center-half.
// Hidden and pane-referenced terminals are excluded from the reorderable
// sequence and re-appended unchanged.
func (e *Engine) Reorder(sourceID, targetID schema.SessionID, before bool) error {
	if _, ok := e.store.Get(sourceID); !ok {
		return schema.ErrSessionNotFound
	}
	if _, ok := e.store.Get(targetID); !ok {
		return schema.ErrSessionNotFound
	}
	if sourceID == targetID {
		return nil
	}
	records := e.store.List()
	visible := make([]schema.SessionID, 0, len(records))
	rest := make([]schema.SessionID, 0, len(records))
	for _, record := range records {
		if record.IsHidden || e.paneOwner(record.ID) != "" {
			rest = append(rest, record.ID)
			continue
		}
		visible = append(visible, record.ID)
	}
	sourceIdx := indexOf(visible, sourceID)
	targetIdx := indexOf(visible, targetID)
	if sourceIdx < 0 || targetIdx < 0 {
		return schema.ErrSplitRejected
	}
	visible = append(visible[:sourceIdx], visible[sourceIdx+1:]...)
	insert := indexOf(visible, targetID)
	if !before {
		insert++
	}
	visible = append(visible[:insert], append([]schema.SessionID{sourceID}, visible[insert:]...)...)
	e.store.Reorder(append(visible, rest...))
	return nil
}

// paneOwner returns the container hosting terminalID as a pane, or empty.
func (e *Engine) paneOwner(terminalID schema.SessionID) schema.SessionID {
	for _, record := range e.store.List() {
		if record.ID == terminalID || !record.IsSplit() {
			continue
		}
		if record.SplitLayout.PaneIndex(terminalID) >= 0 {
			return record.ID
		}
	}
	return ""
}

func (e *Engine) repairContainer(containerID, removedPane schema.SessionID) error {
	container, ok := e.store.Get(containerID)
	if !ok {
		return schema.ErrSessionNotFound
	}
	remaining := make([]schema.SplitPane, 0, len(container.SplitLayout.Panes))
	for _, pane := range container.SplitLayout.Panes {
		if pane.TerminalID != removedPane {
			remaining = append(remaining, pane)
		}
	}
	switch len(remaining) {
	case 0:
		return e.store.Remove(containerID)
	case 1:
		survivor := remaining[0].TerminalID
		if err := e.store.Update(containerID, func(r *schema.SessionRecord) {
			r.SplitLayout = schema.SingleLayout()
			if survivor == containerID {
				r.IsHidden = false
			}
		}); err != nil {
			return err
		}
		if survivor != containerID {
			if err := e.store.Update(survivor, func(r *schema.SessionRecord) {
				r.IsHidden = false
			}); err != nil && !errors.Is(err, schema.ErrSessionNotFound) {
				return err
			}
		}
		return e.store.SetActive(survivor)
	default:
		return e.store.Update(containerID, func(r *schema.SessionRecord) {
			r.SplitLayout.Panes = remaining
		})
	}
}

func indexOf(ids []schema.SessionID, id schema.SessionID) int {
	for i, existing := range ids {
		if existing == id {
			return i
		}
	}
	return -1
}
