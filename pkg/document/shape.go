package document

import (
	"encoding/json"
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type Tool string

const (
	ToolEllipse   Tool = "ellipse"
	ToolRectangle Tool = "rectangle"
	ToolLine      Tool = "line"
	ToolArrow     Tool = "arrow"
	ToolStar      Tool = "star"
	ToolRing      Tool = "ring"
	ToolArc       Tool = "arc"
	ToolText      Tool = "text"
	ToolLabel     Tool = "label"
	ToolScribble  Tool = "scribble"
)

var tools = map[Tool]struct{}{
	ToolEllipse: {}, ToolRectangle: {}, ToolLine: {}, ToolArrow: {}, ToolStar: {},
	ToolRing: {}, ToolArc: {}, ToolText: {}, ToolLabel: {}, ToolScribble: {},
}

func (t Tool) Valid() bool {
	_, ok := tools[t]
	return ok
}

// TextBearing reports whether shapes of this tool carry a text string.
func (t Tool) TextBearing() bool {
	return t == ToolText || t == ToolLabel
}

// UnmarshalJSON accepts tool names in any case, browsers send them upper-cased.
func (t *Tool) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("tool: %w", err)
	}
	tool := Tool(strings.ToLower(s))
	if !tool.Valid() {
		return fmt.Errorf("unknown tool %q", s)
	}
	*t = tool
	return nil
}

// Shape is one element of the whiteboard. Which geometry fields matter depends
// on Tool: lines, arrows and scribbles use Points, stars and rings use the
// inner/outer radii, everything else is a box.
type Shape struct {
	ID   string `json:"id"`
	Tool Tool   `json:"tool"`

	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Width       float64   `json:"width"`
	Height      float64   `json:"height"`
	Points      []float64 `json:"points,omitempty"`
	Radius      float64   `json:"radius,omitempty"`
	RadiusX     float64   `json:"radiusX,omitempty"`
	RadiusY     float64   `json:"radiusY,omitempty"`
	InnerRadius float64   `json:"innerRadius,omitempty"`
	OuterRadius float64   `json:"outerRadius,omitempty"`
	Rotation    float64   `json:"rotation,omitempty"`
	ScaleX      float64   `json:"scaleX,omitempty"`
	ScaleY      float64   `json:"scaleY,omitempty"`

	FillColor   string  `json:"fillColor,omitempty"`
	StrokeColor string  `json:"strokeColor,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`

	Text     string  `json:"text,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`
}

func (s Shape) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("shape without id")
	}
	if !s.Tool.Valid() {
		return fmt.Errorf("shape %q: unknown tool %q", s.ID, s.Tool)
	}
	return nil
}

func (s Shape) Clone() Shape {
	if s.Points != nil {
		s.Points = append([]float64(nil), s.Points...)
	}
	return s
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewShapeID returns an id of the form "<tool>-<nanoid>".
func NewShapeID(tool Tool) string {
	return string(tool) + "-" + gonanoid.MustGenerate(idAlphabet, 10)
}
