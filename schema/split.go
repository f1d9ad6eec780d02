package schema

// SplitType describes how a container arranges its panes.
type SplitType string

const (
	// SplitSingle marks a record that hosts no split.
	SplitSingle SplitType = "single"
	// SplitVertical arranges panes side by side (left/right).
	SplitVertical SplitType = "vertical"
	// SplitHorizontal arranges panes stacked (top/bottom).
	SplitHorizontal SplitType = "horizontal"
)

// PanePosition places a pane within its container.
type PanePosition string

const (
	// PaneLeft is the left half of a vertical split.
	PaneLeft PanePosition = "left"
	// PaneRight is the right half of a vertical split.
	PaneRight PanePosition = "right"
	// PaneTop is the top half of a horizontal split.
	PaneTop PanePosition = "top"
	// PaneBottom is the bottom half of a horizontal split.
	PaneBottom PanePosition = "bottom"
)

// Opposite returns the facing position on the same axis.
func (p PanePosition) Opposite() PanePosition {
	switch p {
	case PaneLeft:
		return PaneRight
	case PaneRight:
		return PaneLeft
	case PaneTop:
		return PaneBottom
	case PaneBottom:
		return PaneTop
	}
	return p
}

// SplitPane references a terminal record hosted inside a split container.
type SplitPane struct {
	ID         string       `json:"id"`
	TerminalID SessionID    `json:"terminalId"`
	Size       float64      `json:"size"`
	Position   PanePosition `json:"position"`
}

// SplitLayout is a record's split arrangement. A single layout has no panes.
type SplitLayout struct {
	Type  SplitType   `json:"type"`
	Panes []SplitPane `json:"panes,omitempty"`
}

// SingleLayout returns the collapsed no-split layout.
func SingleLayout() SplitLayout {
	return SplitLayout{Type: SplitSingle}
}

// Clone returns a deep copy of the layout.
func (l SplitLayout) Clone() SplitLayout {
	out := l
	if len(l.Panes) > 0 {
		out.Panes = append([]SplitPane(nil), l.Panes...)
	}
	return out
}

// PaneIndex returns the index of the pane referencing terminalID, or -1.
func (l SplitLayout) PaneIndex(terminalID SessionID) int {
	for i, pane := range l.Panes {
		if pane.TerminalID == terminalID {
			return i
		}
	}
	return -1
}

// ValidateSplitLayout checks the structural invariants of a layout:
// a non-single layout carries at least two panes, and pane positions agree
// with the split orientation (vertical uses left/right, horizontal uses
// top/bottom).
func ValidateSplitLayout(l SplitLayout) error {
	switch l.Type {
	case SplitSingle:
		if len(l.Panes) != 0 {
			return ErrInvalidSplit
		}
		return nil
	case SplitVertical, SplitHorizontal:
		if len(l.Panes) < 2 {
			return ErrInvalidSplit
		}
	default:
		return ErrInvalidSplit
	}
	for _, pane := range l.Panes {
		if pane.TerminalID == "" {
			return ErrInvalidSplit
		}
		switch l.Type {
		case SplitVertical:
			if pane.Position != PaneLeft && pane.Position != PaneRight {
				return ErrInvalidSplit
			}
		case SplitHorizontal:
			if pane.Position != PaneTop && pane.Position != PaneBottom {
				return ErrInvalidSplit
			}
		}
	}
	return nil
}
