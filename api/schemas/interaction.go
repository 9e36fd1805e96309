package schemas

import (
	"math"
)

// -- Tab Schemas --

// TargetInfo describes one live browsing context reported by the debugging endpoint.
type TargetInfo struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// -- Selector Schemas --

// Provenance records how a selector was produced from a hint.
type Provenance string

const (
	ProvenanceExact        Provenance = "exact"
	ProvenanceTextMatch    Provenance = "text-match"
	ProvenancePatternMatch Provenance = "pattern-match"
	// ProvenanceLiteral marks a selector-like hint that matched nothing at resolution
	// time and is handed to the wait engine unchanged.
	ProvenanceLiteral Provenance = "literal"
)

// ResolvedSelector is the output of selector resolution.
type ResolvedSelector struct {
	Selector   string     `json:"selector"`
	Provenance Provenance `json:"provenance"`
	// Category is the keyword category used for pattern matches.
	Category string `json:"category,omitempty"`
}

// -- Element State Schemas --

// ElementState is the three-state outcome of an existence or visibility check.
type ElementState string

const (
	StateNotFound ElementState = "not-found"
	StateHidden   ElementState = "hidden"
	StateVisible  ElementState = "visible"
)

// Rect is an axis aligned rectangle in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// ElementStyles carries the computed style properties that decide visibility.
type ElementStyles struct {
	Display    string `json:"display"`
	Visibility string `json:"visibility"`
	Opacity    string `json:"opacity"`
}

// ElementSnapshot is a point in time observation of the first node matching a selector.
type ElementSnapshot struct {
	Exists  bool          `json:"exists"`
	Visible bool          `json:"visible"`
	Bounds  Rect          `json:"bounds"`
	Styles  ElementStyles `json:"styles"`
}

// State collapses the snapshot into the three-state outcome.
func (s ElementSnapshot) State() ElementState {
	switch {
	case !s.Exists:
		return StateNotFound
	case !s.Visible:
		return StateHidden
	default:
		return StateVisible
	}
}

// -- Geometry Schemas --

// Quad is four points in viewport coordinates laid out as x1,y1,x2,y2,x3,y3,x4,y4.
type Quad [8]float64

// QuadFromSlice converts a CDP quad. Short slices yield a degenerate quad.
func QuadFromSlice(v []float64) Quad {
	var q Quad
	if len(v) < len(q) {
		return q
	}
	copy(q[:], v)
	return q
}

// Center returns the average of the four corner points.
func (q Quad) Center() (float64, float64) {
	return (q[0] + q[2] + q[4] + q[6]) / 4, (q[1] + q[3] + q[5] + q[7]) / 4
}

// Area returns the unsigned area enclosed by the quad (shoelace formula).
func (q Quad) Area() float64 {
	var sum float64
	for i := 0; i < 4; i++ {
		x1, y1 := q[2*i], q[2*i+1]
		j := (i + 1) % 4
		x2, y2 := q[2*j], q[2*j+1]
		sum += x1*y2 - x2*y1
	}
	return math.Abs(sum) / 2
}

// CoordinateMethod names the geometry source that produced a click point.
type CoordinateMethod string

const (
	MethodContentQuads CoordinateMethod = "content-quads"
	MethodBoxModel     CoordinateMethod = "box-model"
	MethodBoundingRect CoordinateMethod = "bounding-rect"
)

// Coordinate is an integer viewport point suitable for input dispatch.
type Coordinate struct {
	X      int              `json:"x"`
	Y      int              `json:"y"`
	Method CoordinateMethod `json:"method"`
}

// NewCoordinate rounds a fractional point.
func NewCoordinate(x, y float64, method CoordinateMethod) *Coordinate {
	return &Coordinate{X: int(math.Round(x)), Y: int(math.Round(y)), Method: method}
}

// -- Interaction Schemas --

// InteractionMethod records which input path delivered an interaction.
type InteractionMethod string

const (
	// InteractionTrusted is browser-level input dispatched at coordinates.
	InteractionTrusted InteractionMethod = "trusted"
	// InteractionSimulated is input synthesized by scripts in the page.
	InteractionSimulated InteractionMethod = "simulated"
	// InteractionSimulatedFallback is a simulated retry after the trusted path failed.
	InteractionSimulatedFallback InteractionMethod = "simulated-fallback"
)

// InteractionResult is returned by click and type.
type InteractionResult struct {
	Success      bool              `json:"success"`
	Selector     string            `json:"selector"`
	Provenance   Provenance        `json:"provenance"`
	OriginalHint string            `json:"originalHint,omitempty"`
	Coordinates  *Coordinate       `json:"coordinates"`
	Method       InteractionMethod `json:"method"`
	TextPreview  string            `json:"textPreview,omitempty"`
	TextLength   int               `json:"textLength,omitempty"`
}

// WaitResult is returned by the wait/check-existence operation.
type WaitResult struct {
	State      ElementState `json:"state"`
	Exists     bool         `json:"exists"`
	Visible    bool         `json:"visible"`
	Selector   string       `json:"selector"`
	Provenance Provenance   `json:"provenance"`
	ElapsedMs  int64        `json:"elapsedMs"`
}

// ExtractResult is returned by extract-text.
type ExtractResult struct {
	Selector   string     `json:"selector"`
	Provenance Provenance `json:"provenance"`
	Text       string     `json:"text"`
	Length     int        `json:"length"`
	Truncated  bool       `json:"truncated"`
}

// NavigateResult is returned by navigate.
type NavigateResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Title   string `json:"title"`
}

// -- Form Schemas --

// FormField describes one control inside an inspected form.
type FormField struct {
	Tag               string `json:"tag"`
	Type              string `json:"type,omitempty"`
	Name              string `json:"name,omitempty"`
	ID                string `json:"id,omitempty"`
	Class             string `json:"class,omitempty"`
	Value             string `json:"value,omitempty"`
	Placeholder       string `json:"placeholder,omitempty"`
	Text              string `json:"text,omitempty"`
	Visible           bool   `json:"visible"`
	SuggestedSelector string `json:"suggestedSelector"`
}

// FormReport lists the controls of one form in document order.
type FormReport struct {
	Selector string      `json:"selector"`
	Fields   []FormField `json:"fields"`
}
