package cost

import (
	"fmt"

	"github.com/mickamy/plancost/internal/model"
)

const (
	parallelCPU = "PostgreSQL factors parallel processing and per-tuple CPU cost into its calculation, " +
		"and charges sequential page reads at seq_page_cost."
	selectivity = "PostgreSQL estimates the selectivity from column histograms and most-common values " +
		"instead of a fixed fraction. " + parallelCPU
)

var kindRationales = map[model.Kind]string{
	model.KindIndexScan: "PostgreSQL uses the Mackert and Lohman approximation to estimate the number of pages fetched, " +
		"charges random page reads at random_page_cost and adds CPU cost per index and heap tuple. " +
		"Parallel processing and caching reduce the cost further.",
	model.KindIndexOnlyScan: "An Index Only Scan only reads index blocks when every required value is in the index. " +
		"PostgreSQL discounts heap access for pages marked all-visible in the visibility map.",
	model.KindBitmapIndexScan: "A Bitmap Index Scan does not access the heap. " +
		"PostgreSQL also charges for building the bitmap in memory.",
	model.KindBitmapHeapScan: "PostgreSQL factors the overhead of bitmap access into the cost and reads heap pages " +
		"in physical order, charging between seq_page_cost and random_page_cost per page.",
	model.KindBitmapAnd: "PostgreSQL factors the overhead of bitmap access into the cost calculation.",
	model.KindBitmapOr:  "PostgreSQL factors the overhead of bitmap access into the cost calculation.",
	model.KindSampleScan: "PostgreSQL scales the pages read by the TABLESAMPLE method and fraction. " +
		parallelCPU,
}

// Rationale returns the fixed explanation of why PostgreSQL's estimate can differ from the
// manual formula for the given kind and formula case.
func Rationale(kind model.Kind, id FormulaID) string {
	if VariantFor(kind) == VariantNone {
		return fmt.Sprintf("No manual cost formula is defined for %s: only scan, index and bitmap operators are reconstructed.", kind)
	}
	if text, ok := kindRationales[kind]; ok {
		return text
	}

	// Seq Scan and CTE Scan depend on the selectivity case.
	text := parallelCPU
	if id != FormulaFullScan {
		text = selectivity
	}
	if kind == model.KindCTEScan {
		text = "A CTE Scan reads the materialised result of a WITH query, whose size PostgreSQL estimates " +
			"from the subquery plan rather than from catalog statistics. " + text
	}
	return text
}
