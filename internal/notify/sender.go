package notify

import (
	"context"

	"jobwatch/aggregator-service/internal/model"
)

// Sender delivers one selected posting over one channel. Implementations are
// registered per channel identifier; dispatch attempts across channels are
// independent.
type Sender interface {
	Send(ctx context.Context, job model.DigestJob) error
}

// Registry maps channel identifiers ("email", ...) to their senders.
type Registry map[string]Sender
