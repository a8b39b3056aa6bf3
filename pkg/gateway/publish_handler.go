package gateway

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/errors"
	"github.com/DeBrosOfficial/firehose/pkg/logging"
)

// publishResponse acknowledges a published message
type publishResponse struct {
	Topic string `json:"topic"`
	Bytes int    `json:"bytes"`
}

// publishHandler handles PUT/POST /<topic>: the raw request body is the
// message.
func (g *Gateway) publishHandler(w http.ResponseWriter, r *http.Request) {
	topic := topicFromRequest(r)
	if topic == "" {
		writeError(w, r, errors.NewValidationError("topic", "missing topic path", r.URL.Path))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.cfg.MaxPublishBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "message too large", "limit": tooLarge.Limit})
			return
		}
		writeError(w, r, errors.NewValidationError("body", "failed to read request body", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.PublishTimeout)
	defer cancel()

	if err := g.manager.Publish(ctx, topic, body); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.NewTimeoutError("publish", g.cfg.PublishTimeout.String())
		}
		g.logger.ComponentWarn(logging.ComponentPublisher, "publish failed",
			zap.String("topic", topic),
			zap.String("code", errors.GetErrorCode(err)),
			zap.Error(err))
		writeError(w, r, err)
		return
	}

	g.logger.ComponentDebug(logging.ComponentPublisher, "published",
		zap.String("topic", topic),
		zap.Int("bytes", len(body)))
	writeJSON(w, http.StatusAccepted, publishResponse{Topic: topic, Bytes: len(body)})
}
