package alerting

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Multi 将通知分发到所有已启用的渠道；单个渠道失败不影响其余渠道。
type Multi struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

func NewMulti(logger zerolog.Logger, notifiers ...Notifier) *Multi {
	return &Multi{
		notifiers: notifiers,
		logger:    logger.With().Str("component", "alert_dispatch").Logger(),
	}
}

func (m *Multi) Name() string { return "multi" }

// Len returns the number of configured channels.
func (m *Multi) Len() int { return len(m.notifiers) }

// Notify 返回所有失败渠道的合并错误。
func (m *Multi) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			m.logger.Error().Err(err).Str("channel", n.Name()).Str("cycle_id", note.CycleID).Msg("告警发送失败")
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = (*Multi)(nil)
