package queryfilter

import "testing"

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Filters
	}{
		{
			name:  "doc id with dashes normalizes to underscores",
			query: "what were the results for ETR-02-24-12?",
			want:  Filters{DocID: "ETR_02_24_12"},
		},
		{
			name:  "vehicle model",
			query: "show me specs for Pro 3012 XPT",
			want:  Filters{VehicleModel: "Pro 3012 XPT"},
		},
		{
			name:  "chassis number uppercased",
			query: "lookup chassis mc2bhgrc0rb110801",
			want:  Filters{ChassisNo: "MC2BHGRC0RB110801"},
		},
		{
			name:  "test type normalized to snake case",
			query: "what was the Brake Test outcome",
			want:  Filters{TestType: "brake_test"},
		},
		{
			name:  "no filters detected",
			query: "hello there",
			want:  Filters{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.query)
			if got != tt.want {
				t.Errorf("Extract(%q) = %+v, want %+v", tt.query, got, tt.want)
			}
		})
	}
}

func TestBuildEnhancedQuery(t *testing.T) {
	f := Filters{DocID: "ETR_02_24_12", VehicleModel: "Pro 3012"}
	got := BuildEnhancedQuery("what failed", f)
	want := "what failed [Document: ETR_02_24_12 | Vehicle: Pro 3012]"
	if got != want {
		t.Errorf("BuildEnhancedQuery() = %q, want %q", got, want)
	}
}

func TestBuildEnhancedQuery_NoFilters(t *testing.T) {
	got := BuildEnhancedQuery("hello", Filters{})
	if got != "hello" {
		t.Errorf("BuildEnhancedQuery() = %q, want unchanged query", got)
	}
}

func TestDocIDVariants(t *testing.T) {
	variants := DocIDVariants("ETR_02_24_12")
	want := []string{"ETR_02_24_12", "ETR-02-24-12", "ETR 02 24 12", "etr_02_24_12"}
	if len(variants) != len(want) {
		t.Fatalf("got %d variants, want %d: %v", len(variants), len(want), variants)
	}
	for i, w := range want {
		if variants[i] != w {
			t.Errorf("variant[%d] = %q, want %q", i, variants[i], w)
		}
	}
}
