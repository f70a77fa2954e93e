package services_test

import (
	"context"
	"testing"

	"agilentuimf/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithDataset(ctx, "QC_Mam_19_01_a")
	ctx = services.WithStage(ctx, "staging")
	ctx = services.WithRunID(ctx, "run-123")

	if ds, ok := services.DatasetFromContext(ctx); !ok || ds != "QC_Mam_19_01_a" {
		t.Fatalf("unexpected dataset: %v %v", ds, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "staging" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RunIDFromContext(ctx); !ok || rid != "run-123" {
		t.Fatalf("unexpected run id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
