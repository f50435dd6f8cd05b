package metadata

import (
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	text := "Model: Pro 3012 XPT\nChassis No: MC2BHGRC0RB110801\nDate: 12-05-2024\n" +
		"Tested against IS 12345 and AIS 140 for brake test. Result: compliant."

	md := Extract(text, "doc-1")

	if md.VehicleModel != "Pro 3012 XPT" {
		t.Errorf("vehicle model = %q", md.VehicleModel)
	}
	if md.ChassisNo != "MC2BHGRC0RB110801" {
		t.Errorf("chassis no = %q", md.ChassisNo)
	}
	if md.TestDate != "12-05-2024" {
		t.Errorf("test date = %q", md.TestDate)
	}
	if md.TestType != "brake" {
		t.Errorf("test type = %q", md.TestType)
	}
	if len(md.Standards) != 2 {
		t.Errorf("want 2 standards, got %v", md.Standards)
	}
	if !reflect.DeepEqual(md.ComplianceStatus, []string{"pass"}) {
		t.Errorf("compliance status = %v", md.ComplianceStatus)
	}
}

func TestMerge_ChunkOverridesScalarFields(t *testing.T) {
	doc := Extract("Model: Pro 1000\nemission test", "doc-1")
	chunkMD := Extract("Model: Pro 2000\nbrake test", "doc-1")

	merged := Merge(doc, chunkMD)

	if merged.VehicleModel != "Pro 2000" {
		t.Errorf("vehicle model = %q, want chunk-level override", merged.VehicleModel)
	}
	if merged.TestType != "brake" {
		t.Errorf("test type = %q, want chunk-level override", merged.TestType)
	}
}

func TestMerge_UnionsListFields(t *testing.T) {
	doc := Extract("IS 100 diesel", "doc-1")
	chunkMD := Extract("AIS 200 petrol", "doc-1")

	merged := Merge(doc, chunkMD)

	if len(merged.Keywords) != 2 {
		t.Errorf("keywords = %v, want union of both", merged.Keywords)
	}
	if len(merged.Standards) != 2 {
		t.Errorf("standards = %v, want union of both", merged.Standards)
	}
}
