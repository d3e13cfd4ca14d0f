package document

// History is the undo/redo state of a whiteboard. The top of UndoStack is
// always the current document, so undoing needs at least two entries.
// RedoStack is ordered nearest-first.
type History struct {
	UndoStack []Document `json:"undoStack"`
	RedoStack []Document `json:"redoStack"`
}

// NewHistory starts from an empty whiteboard, which makes the first commit
// undoable.
func NewHistory() History {
	return History{UndoStack: []Document{{}}, RedoStack: []Document{}}
}

func (h History) Clone() History {
	out := History{
		UndoStack: make([]Document, len(h.UndoStack)),
		RedoStack: make([]Document, len(h.RedoStack)),
	}
	for i, d := range h.UndoStack {
		out.UndoStack[i] = d.Clone()
	}
	for i, d := range h.RedoStack {
		out.RedoStack[i] = d.Clone()
	}
	return out
}

// Commit records doc as the new current state and clears redo.
func (h History) Commit(doc Document) History {
	out := h.Clone()
	out.UndoStack = append(out.UndoStack, doc.Clone())
	out.RedoStack = []Document{}
	return out
}

func (h History) CanUndo() bool { return len(h.UndoStack) >= 2 }
func (h History) CanRedo() bool { return len(h.RedoStack) > 0 }

// Undo moves the current state onto redo and returns the previous one.
func (h History) Undo() (History, Document, bool) {
	if !h.CanUndo() {
		return h, nil, false
	}
	out := h.Clone()
	n := len(out.UndoStack)
	current, previous := out.UndoStack[n-1], out.UndoStack[n-2]
	out.RedoStack = append([]Document{current}, out.RedoStack...)
	out.UndoStack = out.UndoStack[:n-1]
	return out, previous.Clone(), true
}

// Redo pops the nearest redo entry back onto undo and returns it.
func (h History) Redo() (History, Document, bool) {
	if !h.CanRedo() {
		return h, nil, false
	}
	out := h.Clone()
	next := out.RedoStack[0]
	out.UndoStack = append(out.UndoStack, next)
	out.RedoStack = out.RedoStack[1:]
	return out, next.Clone(), true
}
