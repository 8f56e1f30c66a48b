package workspace

import (
	"context"
	"sort"

	"github.com/rybkr/logarc/internal/errs"
)

// Metrics collects the Workspace Metrics Collector's report: file and
// archive counts, deduplication ratio, storage efficiency, and nesting
// depth distribution. Reads every file row page by page rather than
// relying on a single aggregate query, matching the index's cursor-based
// listing API.
func (m *Manager) Metrics(ctx context.Context, id string) (Metrics, error) {
	ws, err := m.get(id)
	if err != nil {
		return Metrics{}, err
	}

	ws.mu.RLock()
	idx := ws.idx
	store := ws.cas
	ws.mu.RUnlock()

	depthCounts := make(map[int]*DepthEntry)
	var totalFiles, logicalSize int64
	uniqueHashes := make(map[string]struct{})
	maxDepth := 0

	const pageSize = 1000
	var afterID int64
	for {
		files, err := idx.GetAllFiles(ctx, id, afterID, pageSize)
		if err != nil {
			return Metrics{}, errs.Wrap(errs.Internal, "list files for metrics", err).WithContext("workspace", id)
		}
		if len(files) == 0 {
			break
		}
		for _, f := range files {
			totalFiles++
			logicalSize += f.Size
			uniqueHashes[f.SHA256Hash] = struct{}{}
			if f.DepthLevel > maxDepth {
				maxDepth = f.DepthLevel
			}
			entry, ok := depthCounts[f.DepthLevel]
			if !ok {
				entry = &DepthEntry{Depth: f.DepthLevel}
				depthCounts[f.DepthLevel] = entry
			}
			entry.FileCount++
			entry.TotalSize += f.Size
			afterID = f.ID
		}
		if len(files) < pageSize {
			break
		}
	}

	var totalArchives int64
	var afterArchiveID int64
	for {
		archives, err := idx.GetAllArchives(ctx, id, afterArchiveID, pageSize)
		if err != nil {
			return Metrics{}, errs.Wrap(errs.Internal, "list archives for metrics", err).WithContext("workspace", id)
		}
		if len(archives) == 0 {
			break
		}
		totalArchives += int64(len(archives))
		for _, a := range archives {
			if a.DepthLevel > maxDepth {
				maxDepth = a.DepthLevel
			}
			afterArchiveID = a.ID
		}
		if len(archives) < pageSize {
			break
		}
	}

	actualSize, err := store.TotalSize()
	if err != nil {
		return Metrics{}, errs.Wrap(errs.Internal, "measure CAS storage size", err).WithContext("workspace", id)
	}

	var spaceSaved int64
	if logicalSize > int64(actualSize) {
		spaceSaved = logicalSize - int64(actualSize)
	}

	var dedupRatio, storageEfficiency float64
	if logicalSize > 0 {
		dedupRatio = float64(spaceSaved) / float64(logicalSize)
		storageEfficiency = float64(actualSize) / float64(logicalSize)
	} else {
		storageEfficiency = 1.0
	}

	var avgDepth float64
	if totalFiles > 0 {
		var sum int64
		for _, entry := range depthCounts {
			sum += int64(entry.Depth) * entry.FileCount
		}
		avgDepth = float64(sum) / float64(totalFiles)
	}

	distribution := make([]DepthEntry, 0, len(depthCounts))
	for _, entry := range depthCounts {
		distribution = append(distribution, *entry)
	}
	sort.Slice(distribution, func(i, j int) bool { return distribution[i].Depth < distribution[j].Depth })

	return Metrics{
		TotalFiles:         totalFiles,
		TotalArchives:      totalArchives,
		LogicalSize:        logicalSize,
		ActualStorageSize:  int64(actualSize),
		SpaceSaved:         spaceSaved,
		DeduplicationRatio: dedupRatio,
		StorageEfficiency:  storageEfficiency,
		MaxNestingDepth:    maxDepth,
		AvgNestingDepth:    avgDepth,
		UniqueHashes:       int64(len(uniqueHashes)),
		DepthDistribution:  distribution,
	}, nil
}
