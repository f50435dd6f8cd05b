// Package queryfilter implements the query-filter extractor named in
// spec §4.4: detect doc_id/vehicle_model/chassis_no/test_type mentions
// directly in a user's query so retrieval can apply them as payload
// filters before the query ever reaches the embedder.
package queryfilter

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	docIDPattern       = regexp.MustCompile(`(?i)ETR[-_]?\d{1,2}[-_]\d{2}[-_]\d{1,4}`)
	vehicleModelPattern = regexp.MustCompile(`(?i)Pro\s*\d{4}(?:\s*[A-Z]{2,4})?`)
	chassisNoPattern    = regexp.MustCompile(`(?i)MC[0-9A-Z]{14,17}`)
	testTypePattern     = regexp.MustCompile(`(?i)(brake\s*test|noise\s*test|performance\s*test|emission\s*test|` +

		`endurance\s*test|durability\s*test|gradeability|fuel\s*consumption|acceleration|load\s*test)`)
)

// Filters is the set of metadata filters auto-detected from a query.
type Filters struct {
	DocID        string
	VehicleModel string
	ChassisNo    string
	TestType     string
}

// Any reports whether at least one filter was detected.
func (f Filters) Any() bool {
	return f.DocID != "" || f.VehicleModel != "" || f.ChassisNo != "" || f.TestType != ""
}

// Extract scans a query for filter-worthy mentions, normalizing each one
// the way the retrieval layer expects to compare it against chunk payloads
// (doc_id: dashes to underscores, uppercased; chassis_no: uppercased;
// test_type: lowercased with spaces collapsed to underscores).
func Extract(query string) Filters {
	var f Filters

	if m := docIDPattern.FindString(query); m != "" {
		f.DocID = strings.ToUpper(strings.ReplaceAll(m, "-", "_"))
	}
	if m := vehicleModelPattern.FindString(query); m != "" {
		f.VehicleModel = strings.TrimSpace(m)
	}
	if m := chassisNoPattern.FindString(query); m != "" {
		f.ChassisNo = strings.ToUpper(m)
	}
	if m := testTypePattern.FindString(query); m != "" {
		f.TestType = strings.ReplaceAll(strings.ToLower(m), " ", "_")
	}

	return f
}

// BuildEnhancedQuery appends detected filter terms to the query text so
// both the dense and sparse embedders see the extracted entities even if
// they were phrased ambiguously in natural language.
func BuildEnhancedQuery(query string, f Filters) string {
	var enhancements []string
	if f.DocID != "" {
		enhancements = append(enhancements, fmt.Sprintf("Document: %s", f.DocID))
	}
	if f.VehicleModel != "" {
		enhancements = append(enhancements, fmt.Sprintf("Vehicle: %s", f.VehicleModel))
	}
	if f.ChassisNo != "" {
		enhancements = append(enhancements, fmt.Sprintf("Chassis: %s", f.ChassisNo))
	}
	if len(enhancements) == 0 {
		return query
	}
	return fmt.Sprintf("%s [%s]", query, strings.Join(enhancements, " | "))
}

// DocIDVariants generates the formatting variants a stored doc_id payload
// might use, so an exact-match filter still finds documents indexed before
// ids were normalized: underscore, dash, space, and lowercased forms.
func DocIDVariants(docID string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range []string{
		docID,
		strings.ReplaceAll(docID, "_", "-"),
		strings.ReplaceAll(docID, "_", " "),
		strings.ToLower(docID),
	} {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
