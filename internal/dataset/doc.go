// Package dataset implements the plastic-in-river split loader: it resolves
// the versioned archive URLs, asks a downloader for local copies, and walks
// the image and annotation archives of a split in lockstep, producing one
// model.Record per position.
//
// Usage:
//
//	b := dataset.NewBuilder(downloader, dataset.BuilderConfig{Version: "1.1.0"})
//	gen, err := b.Split(ctx, model.SplitTrain)
//	...
//	ex, err := gen.Examples()
//	defer ex.Close()
//	for ex.Next() {
//		idx, rec := ex.Index(), ex.Record()
//	}
//	err = ex.Err()
package dataset
