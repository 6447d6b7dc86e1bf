package device

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Platform is the host platform collaborator: UI bring-up per cycle and the
// final hand-back of control.
type Platform interface {
	InitUI(ctx context.Context) error
	Exit(ctx context.Context) error
}

// ConsolePlatform stands in for a device UI by logging menu transitions.
type ConsolePlatform struct {
	AppName string
}

func (p ConsolePlatform) InitUI(context.Context) error {
	log.Info().Str("app", p.AppName).Msg("device.ConsolePlatform.InitUI idle menu shown")
	return nil
}

func (p ConsolePlatform) Exit(context.Context) error {
	log.Info().Str("app", p.AppName).Msg("device.ConsolePlatform.Exit returning control to dashboard")
	return nil
}
