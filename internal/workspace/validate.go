package workspace

import (
	"context"
	"fmt"

	"github.com/rybkr/logarc/internal/errs"
)

// Validate runs the Index Validator: for every file row, confirm its blob
// exists in CAS, rehash it, and compare against the recorded hash and
// size. A workspace with any invalid file is still usable; this is a
// diagnostic, not a repair.
func (m *Manager) Validate(ctx context.Context, id string) (ValidationReport, error) {
	ws, err := m.get(id)
	if err != nil {
		return ValidationReport{}, err
	}

	ws.mu.RLock()
	idx := ws.idx
	store := ws.cas
	ws.mu.RUnlock()

	report := ValidationReport{}

	const pageSize = 1000
	var afterID int64
	for {
		files, err := idx.GetAllFiles(ctx, id, afterID, pageSize)
		if err != nil {
			return ValidationReport{}, errs.Wrap(errs.Internal, "list files for validation", err).WithContext("workspace", id)
		}
		if len(files) == 0 {
			break
		}
		for _, f := range files {
			report.Total++
			afterID = f.ID

			if !store.Exists(f.SHA256Hash) {
				report.Invalid++
				report.InvalidDetails = append(report.InvalidDetails, InvalidFile{
					VirtualPath: f.VirtualPath,
					SHA256Hash:  f.SHA256Hash,
					Reason:      "blob missing from content store",
				})
				continue
			}

			match, size, err := store.Rehash(f.SHA256Hash)
			if err != nil {
				report.Invalid++
				report.InvalidDetails = append(report.InvalidDetails, InvalidFile{
					VirtualPath: f.VirtualPath,
					SHA256Hash:  f.SHA256Hash,
					Reason:      fmt.Sprintf("failed to read blob: %v", err),
				})
				continue
			}
			if !match {
				report.Invalid++
				report.InvalidDetails = append(report.InvalidDetails, InvalidFile{
					VirtualPath: f.VirtualPath,
					SHA256Hash:  f.SHA256Hash,
					Reason:      "blob content does not match recorded hash",
				})
				continue
			}
			if size != f.Size {
				report.Invalid++
				report.InvalidDetails = append(report.InvalidDetails, InvalidFile{
					VirtualPath: f.VirtualPath,
					SHA256Hash:  f.SHA256Hash,
					Reason:      fmt.Sprintf("recorded size %d does not match stored size %d", f.Size, size),
				})
				continue
			}

			report.Valid++
		}
		if len(files) < pageSize {
			break
		}
	}

	if report.Invalid > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d of %d files failed validation", report.Invalid, report.Total))
	}

	return report, nil
}
