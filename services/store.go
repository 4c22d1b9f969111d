package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/caio-sobreiro/pacsnet/archive"
	"github.com/caio-sobreiro/pacsnet/cache"
	"github.com/caio-sobreiro/pacsnet/dicom"
	"github.com/caio-sobreiro/pacsnet/dimse"
	"github.com/caio-sobreiro/pacsnet/index"
	"github.com/caio-sobreiro/pacsnet/interfaces"
	"github.com/caio-sobreiro/pacsnet/types"
)

// StoreService handles C-STORE requests: it persists the incoming instance
// to the archive and folds its identifiers into the metadata index so it is
// immediately visible to C-FIND/C-MOVE/C-GET. Cache is optional; when set,
// a successful store invalidates cached C-FIND results.
type StoreService struct {
	Archive *archive.Archive
	Index   index.Index
	Cache   *cache.FindCache
}

// NewStoreService builds a C-STORE handler over the given archive and index.
func NewStoreService(a *archive.Archive, idx index.Index) *StoreService {
	return &StoreService{Archive: a, Index: idx}
}

// WithCache enables cache invalidation on successful stores.
func (s *StoreService) WithCache(c *cache.FindCache) *StoreService {
	s.Cache = c
	return s
}

// HandleDIMSE processes a C-STORE-RQ: the dataset has already been decoded
// by the DIMSE layer and handed to us in meta.Dataset.
func (s *StoreService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext) (*types.Message, *dicom.Dataset, error) {
	if meta.Dataset == nil {
		slog.WarnContext(ctx, "C-STORE request carried no dataset", "message_id", msg.MessageID)
		return NewCStoreResponse(msg, dimse.StatusFailure), nil, nil
	}

	result, err := s.Archive.Store(meta.Dataset, meta.TransferSyntaxUID)
	if err != nil {
		var dup *archive.ErrDuplicateInstance
		if errors.As(err, &dup) {
			slog.InfoContext(ctx, "C-STORE duplicate instance, treated as already stored",
				"sop_instance_uid", dup.SOPInstanceUID)
			return NewCStoreResponse(msg, dimse.StatusSuccess), nil, nil
		}
		slog.ErrorContext(ctx, "C-STORE archive write failed", "error", err)
		return NewCStoreResponse(msg, dimse.StatusFailure), nil, nil
	}

	if err := s.Index.Upsert(meta.Dataset); err != nil {
		slog.ErrorContext(ctx, "C-STORE index upsert failed",
			"sop_instance_uid", result.SOPInstanceUID, "error", err)
		return NewCStoreResponse(msg, dimse.StatusFailure), nil, nil
	}

	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx); err != nil {
			slog.WarnContext(ctx, "C-STORE cache invalidation failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "C-STORE stored instance",
		"sop_instance_uid", result.SOPInstanceUID, "path", result.Path)
	return NewCStoreResponse(msg, dimse.StatusSuccess), nil, nil
}
