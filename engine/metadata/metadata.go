// Package metadata implements the metadata extractor named in spec §4.3:
// a fixed regex catalogue pulled over chunk/document text to populate
// domain.ChunkMetadata (standards, test type, keywords). NER-based entity
// extraction over PRODUCT/ORG/GPE keywords is deliberately out of scope —
// no Go NLP/NER library is a good fit here (see DESIGN.md) — so only the
// regex-derived fields are populated.
package metadata

import (
	"regexp"
	"strings"

	"github.com/brightloom-labs/docrag/engine/domain"
)

var (
	vehicleModelPattern   = regexp.MustCompile(`(?i)Model:\s*([A-Za-z0-9\s\-]+?)(?:\n|$)`)
	chassisNoPattern      = regexp.MustCompile(`(?i)Chassis\s*(?:No\.?|Number)?:?\s*([A-Z0-9]+)`)
	testDatePattern       = regexp.MustCompile(`(?i)Date:\s*(\d{2}[.\-/]\d{2}[.\-/]\d{4})`)
	standardsPattern      = regexp.MustCompile(`(?i)\b(?:IS|AIS)[\s:\-]*\d+(?:[:\-]\d+)*\b`)
	compliancePassPattern = regexp.MustCompile(`(?i)\b(?:meeting|pass(?:ed)?|compliant)\b`)
	complianceFailPattern = regexp.MustCompile(`(?i)\b(?:not\s+meeting|fail(?:ed)?|non[\-\s]?compliant)\b`)
)

// TestTypes are the test-type phrases the catalogue scans for, in priority
// order — the first one found in text becomes the primary TestType.
var TestTypes = []string{
	"gradability", "brake", "noise", "cooling", "weighment", "agility",
	"articulation", "steering", "suspension", "emission", "durability",
	"performance", "safety",
}

// VehicleTerms are kept as keywords verbatim when present in text.
var VehicleTerms = []string{
	"CNG", "BSVI", "BSIV", "kW", "torque", "power", "GVW",
	"diesel", "petrol", "hybrid", "EV", "electric",
}

// Extract pulls structured metadata out of text, the chunk- or
// document-level regex pass from metadata_extraction.py's extract_metadata.
func Extract(text, docID string) domain.ChunkMetadata {
	md := domain.ChunkMetadata{DocID: docID}

	if m := vehicleModelPattern.FindStringSubmatch(text); m != nil {
		md.VehicleModel = strings.TrimSpace(m[1])
	}
	if m := chassisNoPattern.FindStringSubmatch(text); m != nil {
		md.ChassisNo = strings.TrimSpace(m[1])
	}
	if m := testDatePattern.FindStringSubmatch(text); m != nil {
		md.TestDate = strings.TrimSpace(m[1])
	}

	md.Standards = dedup(standardsPattern.FindAllString(text, -1))

	lower := strings.ToLower(text)
	var testParams []string
	for _, t := range TestTypes {
		if strings.Contains(lower, t) {
			testParams = append(testParams, t)
		}
	}
	if len(testParams) > 0 {
		md.TestType = testParams[0]
	}

	if compliancePassPattern.MatchString(text) {
		md.ComplianceStatus = append(md.ComplianceStatus, "pass")
	}
	if complianceFailPattern.MatchString(text) {
		md.ComplianceStatus = append(md.ComplianceStatus, "fail")
	}

	var keywords []string
	for _, term := range VehicleTerms {
		if strings.Contains(text, term) {
			keywords = append(keywords, term)
		}
	}
	md.Keywords = dedup(keywords)

	return md
}

// Merge combines document-level and chunk-level metadata: list fields
// union, scalar fields (test type, vehicle model, chassis number) take the
// chunk-level value when present — mirroring merge_metadata's override
// rule, since a chunk's own text is more specific than the whole document's.
func Merge(doc, chunkMD domain.ChunkMetadata) domain.ChunkMetadata {
	merged := doc
	merged.Keywords = dedup(append(append([]string{}, doc.Keywords...), chunkMD.Keywords...))
	merged.Standards = dedup(append(append([]string{}, doc.Standards...), chunkMD.Standards...))
	merged.ComplianceStatus = dedup(append(append([]string{}, doc.ComplianceStatus...), chunkMD.ComplianceStatus...))

	if chunkMD.TestType != "" {
		merged.TestType = chunkMD.TestType
	}
	if chunkMD.VehicleModel != "" {
		merged.VehicleModel = chunkMD.VehicleModel
	}
	if chunkMD.ChassisNo != "" {
		merged.ChassisNo = chunkMD.ChassisNo
	}
	return merged
}

func dedup(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}
