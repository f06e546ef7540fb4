package puzzle

import "strings"

// Label names a Transformer component a block can represent.
type Label string

const (
	LabelInputEmbedding           Label = "Input Embedding"
	LabelOutputEmbedding          Label = "Output Embedding"
	LabelPositionalEncoding       Label = "Positional Encoding"
	LabelMultiHeadAttention       Label = "Multi-Head Attention"
	LabelMaskedMultiHeadAttention Label = "Masked Multi-Head Attention"
	LabelAddNorm                  Label = "Add & Norm"
	LabelFeedForward              Label = "Feed Forward"
	LabelLinear                   Label = "Linear"
	LabelSoftmax                  Label = "Softmax"
)

// Size is a block footprint in canvas units.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

var (
	SizeBlock      = Size{W: 150, H: 50}
	SizeSmallBlock = Size{W: 150, H: 25}
	SizeBigBlock   = Size{W: 150, H: 75}
	SizePos        = Size{W: 50, H: 50}
)

// RGB is a display colour hint for front ends.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// PaletteEntry describes how a label is spawned from the palette.
type PaletteEntry struct {
	Label Label     `json:"label"`
	Size  Size      `json:"size"`
	Shape ShapeKind `json:"shape"`
	Color RGB       `json:"color"`
	// Lines is the label broken the way it is drawn inside the block.
	Lines []string `json:"lines"`
}

var palette = []PaletteEntry{
	{Label: LabelInputEmbedding, Size: SizeBlock, Shape: ShapeRect, Color: RGB{247, 225, 225}, Lines: []string{"Input", "Embedding"}},
	{Label: LabelOutputEmbedding, Size: SizeBlock, Shape: ShapeRect, Color: RGB{247, 225, 225}, Lines: []string{"Output", "Embedding"}},
	{Label: LabelMultiHeadAttention, Size: SizeBlock, Shape: ShapeRect, Color: RGB{250, 227, 192}, Lines: []string{"Multi-Head", "Attention"}},
	{Label: LabelMaskedMultiHeadAttention, Size: SizeBigBlock, Shape: ShapeRect, Color: RGB{250, 227, 192}, Lines: []string{"Masked", "Multi-Head", "Attention"}},
	{Label: LabelAddNorm, Size: SizeSmallBlock, Shape: ShapeRect, Color: RGB{242, 244, 198}, Lines: []string{"Add & Norm"}},
	{Label: LabelLinear, Size: SizeSmallBlock, Shape: ShapeRect, Color: RGB{220, 223, 238}, Lines: []string{"Linear"}},
	{Label: LabelFeedForward, Size: SizeBlock, Shape: ShapeRect, Color: RGB{201, 231, 245}, Lines: []string{"Feed", "Forward"}},
	{Label: LabelSoftmax, Size: SizeSmallBlock, Shape: ShapeRect, Color: RGB{209, 230, 209}, Lines: []string{"Softmax"}},
	{Label: LabelPositionalEncoding, Size: SizePos, Shape: ShapeYinYang, Color: RGB{255, 255, 255}, Lines: []string{"Positional", "Encoding"}},
}

var paletteByLabel = func() map[Label]PaletteEntry {
	m := make(map[Label]PaletteEntry, len(palette))
	for _, e := range palette {
		m[e.Label] = e
	}
	return m
}()

// Palette returns the spawnable entries in menu order. The result is a copy.
func Palette() []PaletteEntry {
	out := make([]PaletteEntry, len(palette))
	for i, e := range palette {
		e.Lines = append([]string(nil), e.Lines...)
		out[i] = e
	}
	return out
}

// LookupLabel returns the palette entry for l.
func LookupLabel(l Label) (PaletteEntry, bool) {
	e, ok := paletteByLabel[l]
	if ok {
		e.Lines = append([]string(nil), e.Lines...)
	}
	return e, ok
}

// ParseLabel resolves user input to a known label. Matching ignores case,
// surrounding space and embedded line breaks, so "Multi-Head\nAttention"
// resolves like "multi-head attention".
func ParseLabel(s string) (Label, bool) {
	norm := strings.Join(strings.Fields(s), " ")
	for _, e := range palette {
		if strings.EqualFold(string(e.Label), norm) {
			return e.Label, true
		}
	}
	return "", false
}

// Valid reports whether l is part of the palette.
func (l Label) Valid() bool {
	_, ok := paletteByLabel[l]
	return ok
}

// Short returns a compact form of the label for narrow displays.
func (l Label) Short() string {
	switch l {
	case LabelInputEmbedding:
		return "In Emb"
	case LabelOutputEmbedding:
		return "Out Emb"
	case LabelPositionalEncoding:
		return "PosEnc"
	case LabelMultiHeadAttention:
		return "MHA"
	case LabelMaskedMultiHeadAttention:
		return "Masked MHA"
	case LabelAddNorm:
		return "Add&Norm"
	case LabelFeedForward:
		return "FFN"
	}
	return string(l)
}
