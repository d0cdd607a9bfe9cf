package activity

import (
	"context"
	"encoding/json"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// NewOTelRecorder returns a Recorder that emits events as OTel log records via provider.
// A nil provider yields Nop.
func NewOTelRecorder(provider *sdklog.LoggerProvider) Recorder {
	if provider == nil {
		return Nop{}
	}
	return &otelRecorder{logger: provider.Logger("enquiry-socket.activity")}
}

type otelRecorder struct {
	logger otellog.Logger
}

func (r *otelRecorder) Record(ctx context.Context, e Event) error {
	rec := otellog.Record{}
	rec.SetTimestamp(e.CreatedAt)
	if len(e.Detail) > 0 {
		if b, err := json.Marshal(e.Detail); err == nil {
			rec.SetBody(otellog.BytesValue(b))
		}
	}
	rec.AddAttributes(
		otellog.String("event_id", e.ID),
		otellog.String("company_id", e.CompanyID),
		otellog.String("event_type", string(e.Type)),
	)
	r.logger.Emit(ctx, rec)
	return nil
}
