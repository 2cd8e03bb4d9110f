// Package cost reconstructs a manual cost for a plan node from relation statistics.
package cost

import "github.com/mickamy/plancost/internal/model"

// Variant is the cost-estimation strategy applied to an operator kind.
type Variant uint8

const (
	// VariantNone is the null strategy: no manual formula, cost 0.
	VariantNone Variant = iota
	// VariantScan retrieves blocks of a relation, scaled by the filter selectivity.
	VariantScan
	// VariantIndex fetches the tuples matching one value of an indexed attribute.
	VariantIndex
	// VariantBitmapCombine ANDs or ORs in-memory bitmaps.
	VariantBitmapCombine
)

func (v Variant) String() string {
	switch v {
	case VariantScan:
		return "scan"
	case VariantIndex:
		return "index"
	case VariantBitmapCombine:
		return "bitmap-combine"
	default:
		return "none"
	}
}

// VariantFor maps every operator kind to its strategy. Every kind is listed so that adding a
// kind to the model without deciding its strategy is caught by the exhaustive linter.
func VariantFor(kind model.Kind) Variant {
	switch kind {
	case model.KindSeqScan, model.KindSampleScan, model.KindCTEScan:
		return VariantScan
	case model.KindIndexScan, model.KindIndexOnlyScan, model.KindBitmapIndexScan, model.KindBitmapHeapScan:
		return VariantIndex
	case model.KindBitmapAnd, model.KindBitmapOr:
		return VariantBitmapCombine
	case model.KindUnknown,
		model.KindTidScan, model.KindTidRangeScan, model.KindSubqueryScan, model.KindFunctionScan,
		model.KindValuesScan,
		model.KindNestedLoop, model.KindHashJoin, model.KindMergeJoin,
		model.KindHash, model.KindMaterialize, model.KindMemoize,
		model.KindSort, model.KindIncrementalSort,
		model.KindAggregate, model.KindGroup, model.KindWindowAgg, model.KindUnique,
		model.KindLimit, model.KindAppend, model.KindMergeAppend,
		model.KindGather, model.KindGatherMerge,
		model.KindResult, model.KindSetOp, model.KindModifyTable:
		return VariantNone
	default:
		return VariantNone
	}
}
