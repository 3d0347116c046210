package signal

import "context"

// Source produces signals into the shared queue. Implementations are
// independent and replaceable; each runs on its own cadence between Start
// and Stop.
type Source interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
