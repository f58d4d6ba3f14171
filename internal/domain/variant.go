package domain

import "image/color"

// Variant enumerates the background/theme configurations a job is rendered
// against.
type Variant string

const (
	VariantCrimson Variant = "CRIMSON"
	VariantBlack   Variant = "BLACK"
	VariantIvory   Variant = "IVORY"
)

// FrameSlot pairs a frame template with the paste geometry for one generated
// portrait. Shape selects the alpha mask; frames sharing a shape share paste
// coordinates.
type FrameSlot struct {
	FrameIndex int
	Shape      SlotShape
}

// SlotShape names one of the small set of paste geometries used across
// frame templates.
type SlotShape string

const (
	ShapePortrait SlotShape = "portrait"
	ShapeRound    SlotShape = "round"
)

// VariantSpec is the static per-variant configuration: background fill for
// preprocessing, the batch size requested from the backend, and the frame
// slots the generated portraits are composited into.
type VariantSpec struct {
	Fill      color.NRGBA
	BatchSize int
	Slots     []FrameSlot
}

// VariantTable is the fixed variant configuration. Batch sizes match slot
// counts so each generated image lands in exactly one frame.
var VariantTable = map[Variant]VariantSpec{
	VariantCrimson: {
		Fill:      color.NRGBA{R: 0x79, G: 0x00, B: 0x30, A: 0xFF},
		BatchSize: 3,
		Slots: []FrameSlot{
			{FrameIndex: 1, Shape: ShapePortrait},
			{FrameIndex: 2, Shape: ShapePortrait},
			{FrameIndex: 3, Shape: ShapeRound},
		},
	},
	VariantBlack: {
		Fill:      color.NRGBA{R: 0x14, G: 0x14, B: 0x14, A: 0xFF},
		BatchSize: 3,
		Slots: []FrameSlot{
			{FrameIndex: 4, Shape: ShapePortrait},
			{FrameIndex: 5, Shape: ShapePortrait},
			{FrameIndex: 6, Shape: ShapeRound},
		},
	},
	VariantIvory: {
		Fill:      color.NRGBA{R: 0xF2, G: 0xEC, B: 0xDE, A: 0xFF},
		BatchSize: 2,
		Slots: []FrameSlot{
			{FrameIndex: 7, Shape: ShapePortrait},
			{FrameIndex: 8, Shape: ShapeRound},
		},
	},
}

// variantOrder fixes the enumeration order; output naming depends on it.
var variantOrder = []Variant{VariantCrimson, VariantBlack, VariantIvory}

// AllVariants returns the variants in their fixed enumeration order.
func AllVariants() []Variant {
	out := make([]Variant, len(variantOrder))
	copy(out, variantOrder)
	return out
}

// TotalSlots is the number of deliverables a full-enumeration job produces.
func TotalSlots() int {
	n := 0
	for _, v := range variantOrder {
		n += len(VariantTable[v].Slots)
	}
	return n
}
