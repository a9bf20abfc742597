package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	mw "github.com/kasuganosora/guildserver/middleware"
	"go.uber.org/zap"
)

// HandlerFunc processes a decoded WS message payload.
type HandlerFunc func(ctx context.Context, session *Session, payload json.RawMessage) error

// Router dispatches incoming WS packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given message type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Types returns the registered message types.
func (r *Router) Types() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

// Dispatch decodes raw bytes, validates seq, and invokes the appropriate handler.
func (r *Router) Dispatch(s *Session, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet",
			zap.Int64("identity", s.Identity),
			zap.Error(err))
		return
	}

	// Monotonic seq check (anti-replay). Seq == 0 means no seq tracking.
	if pkt.Seq != 0 && pkt.Seq <= s.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.Int64("identity", s.Identity),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		return
	}
	if pkt.Seq != 0 {
		s.LastSeq = pkt.Seq
	}

	s.TraceID = uuid.NewString()
	ctx := mw.WithTraceID(context.Background(), s.TraceID)
	ctx = context.WithValue(ctx, ctxKeySeq{}, pkt.Seq)

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.Int64("identity", s.Identity))
		s.Reply(pkt.Seq, "error", map[string]string{"error": "unknown message type", "type": pkt.Type})
		return
	}

	if err := fn(ctx, s, pkt.Payload); err != nil {
		r.logger.Error("handler error",
			zap.String("type", pkt.Type),
			zap.Int64("identity", s.Identity),
			zap.String("trace_id", s.TraceID),
			zap.Error(err))
		s.Reply(pkt.Seq, "error", map[string]string{"error": "internal error", "type": pkt.Type})
	}
}

type ctxKeySeq struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	return mw.TraceIDFrom(ctx)
}

// SeqFromCtx returns the seq of the packet being handled.
func SeqFromCtx(ctx context.Context) uint64 {
	v, _ := ctx.Value(ctxKeySeq{}).(uint64)
	return v
}
