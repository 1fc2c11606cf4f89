package projects

import "github.com/mei-chen/beagle-sub000/internal/collection"

// Badge is how a status variant renders.
type Badge struct {
	Label string `json:"label"`
	Class string `json:"class"`
	Glyph string `json:"glyph"`
}

var badges = map[collection.Variant]Badge{
	collection.VariantReady:      {Label: "Ready", Class: "badge-ready", Glyph: "●"},
	collection.VariantProcessing: {Label: "Processing", Class: "badge-processing", Glyph: "◌"},
	collection.VariantFailed:     {Label: "Failed", Class: "badge-failed", Glyph: "✕"},
	collection.VariantTimedOut:   {Label: "Stalled", Class: "badge-stalled", Glyph: "!"},
}

// BadgeFor looks up the rendering of v.
func BadgeFor(v collection.Variant) Badge {
	if b, ok := badges[v]; ok {
		return b
	}
	return badges[collection.VariantProcessing]
}
