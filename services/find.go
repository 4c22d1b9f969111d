package services

import (
	"context"
	"log/slog"

	"github.com/caio-sobreiro/pacsnet/cache"
	"github.com/caio-sobreiro/pacsnet/dicom"
	"github.com/caio-sobreiro/pacsnet/dimse"
	"github.com/caio-sobreiro/pacsnet/interfaces"
	"github.com/caio-sobreiro/pacsnet/qr"
	"github.com/caio-sobreiro/pacsnet/types"
)

// FindService handles C-FIND requests by running the query against the
// metadata index and streaming back one Pending response per match. Cache
// is optional; when nil every query goes straight to the index.
type FindService struct {
	Engine *qr.Engine
	Cache  *cache.FindCache
}

// NewFindService builds a C-FIND handler over the given query/retrieve engine.
func NewFindService(engine *qr.Engine) *FindService {
	return &FindService{Engine: engine}
}

// WithCache enables result caching for subsequent queries.
func (s *FindService) WithCache(c *cache.FindCache) *FindService {
	s.Cache = c
	return s
}

// HandleDIMSE is the non-streaming fallback; C-FIND always streams, so this
// only runs if the registry's streaming path is bypassed and reports the
// request as failed rather than silently dropping matches.
func (s *FindService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext) (*types.Message, *dicom.Dataset, error) {
	return NewCFindErrorResponse(msg, dimse.StatusFailure), nil, nil
}

// HandleDIMSEStreaming executes the query and sends one Pending C-FIND-RSP
// with an identifier dataset per match, followed by a final Success response.
func (s *FindService) HandleDIMSEStreaming(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext, responder interfaces.ResponseSender) error {
	query := parseQueryRequest(meta.Dataset)

	slog.DebugContext(ctx, "C-FIND query", "level", query.Level, "message_id", msg.MessageID)

	var cacheKey string
	if s.Cache != nil {
		cacheKey = cache.Key(query)
		if cached, ok := s.Cache.Get(ctx, cacheKey); ok {
			slog.DebugContext(ctx, "C-FIND cache hit", "message_id", msg.MessageID)
			return s.sendMatches(msg, meta, responder, cached)
		}
	}

	matches, err := s.Engine.Find(query)
	if err != nil {
		slog.ErrorContext(ctx, "C-FIND query failed", "error", err)
		return responder.SendResponse(NewCFindErrorResponse(msg, dimse.StatusFailure), nil, meta.TransferSyntaxUID)
	}

	if s.Cache != nil {
		s.Cache.Set(ctx, cacheKey, matches)
	}

	slog.InfoContext(ctx, "C-FIND completed", "matches", len(matches), "message_id", msg.MessageID)
	return s.sendMatches(msg, meta, responder, matches)
}

func (s *FindService) sendMatches(msg *types.Message, meta interfaces.MessageContext, responder interfaces.ResponseSender, matches []*dicom.Dataset) error {
	for _, match := range matches {
		if err := responder.SendResponse(NewCFindPendingResponse(msg), match, meta.TransferSyntaxUID); err != nil {
			return err
		}
	}
	return responder.SendResponse(NewCFindSuccessResponse(msg), nil, meta.TransferSyntaxUID)
}
