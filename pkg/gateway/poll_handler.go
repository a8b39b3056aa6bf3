package gateway

import (
	stderrors "errors"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/firehose/pkg/errors"
	"github.com/DeBrosOfficial/firehose/pkg/logging"
)

var errPollFinished = stderrors.New("long poll finished before the message was written")

// polled is one message handed from the consumer goroutine to the request
// goroutine. The request goroutine reports the write result on written.
type polled struct {
	payload []byte
	written chan error
}

// pollHandler handles GET /<topic>?cid=<subscriber id>. It answers with the
// first message on the subscriber's queue, or 204 when none arrives within
// the long-poll timeout. The message is acknowledged only once the response
// body has been written, so a poll that dies midway leaves it queued for the
// next poll with the same cid.
func (g *Gateway) pollHandler(w http.ResponseWriter, r *http.Request) {
	topic := topicFromRequest(r)
	if topic == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing topic path"})
		return
	}

	sub, err := g.manager.New(r.URL.Query().Get("cid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer func() {
		if err := sub.Close(); err != nil {
			g.logger.ComponentWarn(logging.ComponentGateway, "long poll: closing subscription failed",
				zap.String("subscriber_id", sub.SubscriberID()),
				zap.Error(err))
		}
	}()

	deliveries := make(chan polled)
	finished := make(chan struct{})
	defer close(finished)

	var taken atomic.Bool
	onMessage := func(payload []byte) error {
		if !taken.CompareAndSwap(false, true) {
			// one message per poll; the rest wait for the next poll
			<-finished
			return errPollFinished
		}

		p := polled{payload: payload, written: make(chan error, 1)}
		select {
		case deliveries <- p:
		case <-finished:
			return errPollFinished
		}

		select {
		case err := <-p.written:
			return err
		case <-finished:
			select {
			case err := <-p.written:
				return err
			default:
				return errPollFinished
			}
		}
	}

	if err := sub.Subscribe(topic, onMessage); err != nil {
		g.logger.ComponentWarn(logging.ComponentGateway, "long poll: subscribe failed",
			zap.String("topic", topic),
			zap.String("code", errors.GetErrorCode(err)),
			zap.Error(err))
		writeError(w, r, err)
		return
	}

	timer := time.NewTimer(g.cfg.LongPollTimeout)
	defer timer.Stop()

	select {
	case p := <-deliveries:
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, err := w.Write(p.payload)
		if err == nil {
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		p.written <- err

	case <-timer.C:
		w.WriteHeader(http.StatusNoContent)

	case <-r.Context().Done():
		g.logger.ComponentDebug(logging.ComponentGateway, "long poll: client went away",
			zap.String("topic", topic),
			zap.String("subscriber_id", sub.SubscriberID()))
	}
}
