package outbox

import "context"

func (p *Publisher) PublishBatch(ctx context.Context, w MessageWriter) (int, error) {
	return p.publishBatch(ctx, w)
}
