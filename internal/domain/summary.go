package domain

// StoreSummary holds row and key counts across the lifecycle tables,
// reported by the status surface and the report CLI.
type StoreSummary struct {
	Snapshots         int `json:"snapshots"`
	SnapshotContracts int `json:"snapshot_contracts"`
	SnapshotSymbols   int `json:"snapshot_symbols"`
	ArchiveRows       int `json:"archive_rows"`
	ArchiveContracts  int `json:"archive_contracts"`
	FeatureRows       int `json:"feature_rows"`
	Lifespans         int `json:"lifespans"`
}
