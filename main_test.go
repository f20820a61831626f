package main

import (
	"testing"

	"ctaridership/pkg/pipeline"
	"ctaridership/pkg/types"
)

func TestServedResult(t *testing.T) {
	combined := &types.RenderResult{Title: "combined"}
	bus := &types.RenderResult{Title: "bus"}
	rail := &types.RenderResult{Title: "rail"}

	variants := []pipeline.Variant{pipeline.VariantCombined, pipeline.VariantBus, pipeline.VariantRail}
	variant, result, ok := servedResult(variants, []*types.RenderResult{combined, bus, rail})
	if !ok {
		t.Fatal("Expected a map to serve")
	}
	if variant != pipeline.VariantCombined || result != combined {
		t.Errorf("Expected the combined map for all variants, got %s (%s)", variant, result.Title)
	}

	variant, result, ok = servedResult([]pipeline.Variant{pipeline.VariantRail}, []*types.RenderResult{rail})
	if !ok || variant != pipeline.VariantRail || result != rail {
		t.Errorf("Expected the rail map, got %s ok=%v", variant, ok)
	}

	if _, _, ok := servedResult(variants, nil); ok {
		t.Error("Expected nothing to serve without results")
	}
}
