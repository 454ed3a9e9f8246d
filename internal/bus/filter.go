package bus

import (
	"context"
	"log/slog"

	"dmchat/internal/chat"
)

// Predicate decides whether one subscriber should see one event.
type Predicate func(ctx context.Context, evt chat.Event) (bool, error)

// ParticipantFilter scopes events to members of the affected chat, evaluated
// against the given subscriber's user. Message events check live membership
// through the session; chat lifecycle events check the participant snapshot
// the event carries, which for chat.removed is the only record left.
func ParticipantFilter(session chat.Session, userID int64) Predicate {
	return func(ctx context.Context, evt chat.Event) (bool, error) {
		switch e := evt.(type) {
		case chat.MessageAdded:
			return session.IsParticipant(ctx, e.Message.ChatID, userID)
		case chat.ChatAdded:
			return e.Chat.HasParticipant(userID), nil
		case chat.ChatRemoved:
			return e.Chat.HasParticipant(userID), nil
		}
		return false, nil
	}
}

// Filter forwards events from in that pass pred. An event failing the
// predicate, or erroring it, is dropped for this subscriber; the stream
// itself never fails. The returned channel closes when in closes or ctx
// ends.
func Filter(ctx context.Context, in <-chan chat.Event, pred Predicate, log *slog.Logger) <-chan chat.Event {
	out := make(chan chat.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-in:
				if !ok {
					return
				}
				deliver, err := pred(ctx, evt)
				if err != nil {
					log.Warn("subscription filter", "topic", evt.Topic(), "err", err)
					continue
				}
				if !deliver {
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
