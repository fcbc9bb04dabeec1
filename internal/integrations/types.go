// internal/integrations/types.go
package integrations

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type Integration interface {
	Name() string
	Start(ctx context.Context) error // blokuje do ctx.Done (long-running) lub odpala własną pętlę
	Stop()                           // idempotent
}

// Factory dostaje uchwyt bazy wprost, bez przemycania go przez context.
type Factory func(log zerolog.Logger, raw json.RawMessage, gdb *gorm.DB) (Integration, error)
