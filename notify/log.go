package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pensionportal/recovery"
)

// LogNotifier writes deliveries to a logger instead of sending them. With
// RevealCode set the code itself is logged, which is only acceptable on a
// developer machine.
type LogNotifier struct {
	Logger     zerolog.Logger
	RevealCode bool
}

func (n LogNotifier) Deliver(_ context.Context, d recovery.Delivery) error {
	ev := n.Logger.Info().
		Str("method", string(d.Method)).
		Str("destination", maskDestination(d.Destination)).
		Str("subject_id", d.SubjectID).
		Dur("valid_for", d.ValidFor)
	if n.RevealCode {
		ev = ev.Str("code", d.Code)
	}
	ev.Msg("verification code issued")
	return nil
}
