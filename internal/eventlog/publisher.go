package eventlog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ammcore/internal/amm"
	"ammcore/internal/storage"
)

// Publisher forwards committed events to a log sink. Its Publish method is an
// amm.CommitListener.
type Publisher struct {
	encoder *Encoder
	sink    storage.Storage
	logger  *zap.Logger
}

func NewPublisher(encoder *Encoder, sink storage.Storage, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{encoder: encoder, sink: sink, logger: logger}
}

// Attach registers the publisher on the runtime.
func (p *Publisher) Attach(rt *amm.Runtime) {
	rt.OnCommit(p.Publish)
}

// Publish encodes and stores the events of one committed call.
func (p *Publisher) Publish(ctx context.Context, events []amm.Emitted) error {
	if len(events) == 0 {
		return nil
	}
	records, err := p.encoder.EncodeBatch(events)
	if err != nil {
		return err
	}
	if err := p.sink.PutLogBatch(ctx, records); err != nil {
		return fmt.Errorf("publish block %d: %w", events[0].Block, err)
	}
	p.logger.Debug("events published",
		zap.Uint64("block", events[0].Block),
		zap.Int("count", len(records)),
	)
	return nil
}
