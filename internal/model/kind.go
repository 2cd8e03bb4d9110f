package model

// Kind identifies the physical operator a plan node represents.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindSeqScan
	KindSampleScan
	KindIndexScan
	KindIndexOnlyScan
	KindBitmapIndexScan
	KindBitmapHeapScan
	KindBitmapAnd
	KindBitmapOr
	KindTidScan
	KindTidRangeScan
	KindSubqueryScan
	KindFunctionScan
	KindValuesScan
	KindCTEScan
	KindNestedLoop
	KindHashJoin
	KindMergeJoin
	KindHash
	KindMaterialize
	KindMemoize
	KindSort
	KindIncrementalSort
	KindAggregate
	KindGroup
	KindWindowAgg
	KindUnique
	KindLimit
	KindAppend
	KindMergeAppend
	KindGather
	KindGatherMerge
	KindResult
	KindSetOp
	KindModifyTable
)

var kindNames = [...]string{
	KindUnknown:         "Unknown",
	KindSeqScan:         "Seq Scan",
	KindSampleScan:      "Sample Scan",
	KindIndexScan:       "Index Scan",
	KindIndexOnlyScan:   "Index Only Scan",
	KindBitmapIndexScan: "Bitmap Index Scan",
	KindBitmapHeapScan:  "Bitmap Heap Scan",
	KindBitmapAnd:       "BitmapAnd",
	KindBitmapOr:        "BitmapOr",
	KindTidScan:         "Tid Scan",
	KindTidRangeScan:    "Tid Range Scan",
	KindSubqueryScan:    "Subquery Scan",
	KindFunctionScan:    "Function Scan",
	KindValuesScan:      "Values Scan",
	KindCTEScan:         "CTE Scan",
	KindNestedLoop:      "Nested Loop",
	KindHashJoin:        "Hash Join",
	KindMergeJoin:       "Merge Join",
	KindHash:            "Hash",
	KindMaterialize:     "Materialize",
	KindMemoize:         "Memoize",
	KindSort:            "Sort",
	KindIncrementalSort: "Incremental Sort",
	KindAggregate:       "Aggregate",
	KindGroup:           "Group",
	KindWindowAgg:       "WindowAgg",
	KindUnique:          "Unique",
	KindLimit:           "Limit",
	KindAppend:          "Append",
	KindMergeAppend:     "Merge Append",
	KindGather:          "Gather",
	KindGatherMerge:     "Gather Merge",
	KindResult:          "Result",
	KindSetOp:           "SetOp",
	KindModifyTable:     "ModifyTable",
}

var kindsByName = func() map[string]Kind {
	out := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		out[name] = Kind(k)
	}
	// older servers and hand-written fixtures
	out["Sequential Scan"] = KindSeqScan
	out["Index-only Scan"] = KindIndexOnlyScan
	out["Bitmap And"] = KindBitmapAnd
	out["Bitmap Or"] = KindBitmapOr
	out["Nested Loop Join"] = KindNestedLoop
	out["Materialise"] = KindMaterialize
	return out
}()

// ParseKind maps a PostgreSQL "Node Type" value to a Kind. Unrecognised names yield KindUnknown.
func ParseKind(nodeType string) Kind {
	if k, ok := kindsByName[nodeType]; ok {
		return k
	}
	return KindUnknown
}

// Kinds lists every known kind except KindUnknown.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames)-1)
	for k := range kindNames {
		if Kind(k) == KindUnknown {
			continue
		}
		out = append(out, Kind(k))
	}
	return out
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// IsScan reports whether the kind reads rows from a relation or an intermediate result.
func (k Kind) IsScan() bool {
	switch k {
	case KindSeqScan, KindSampleScan, KindIndexScan, KindIndexOnlyScan, KindBitmapIndexScan,
		KindBitmapHeapScan, KindTidScan, KindTidRangeScan, KindSubqueryScan, KindFunctionScan,
		KindValuesScan, KindCTEScan:
		return true
	default:
		return false
	}
}

// IsJoin reports whether the kind combines two inputs.
func (k Kind) IsJoin() bool {
	switch k {
	case KindNestedLoop, KindHashJoin, KindMergeJoin:
		return true
	default:
		return false
	}
}
