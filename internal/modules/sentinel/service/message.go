package service

import (
	"fmt"
	"math"
	"time"

	"sentinel_bot/internal/models"
)

// whenString renders the time left before an event the way the alerts phrase it.
func whenString(left time.Duration) string {
	total := math.Max(0, left.Seconds())
	minutes := int(total) / 60
	seconds := int(total) % 60
	switch {
	case minutes == 0 && seconds == 0:
		return "now."
	case seconds == 0:
		return fmt.Sprintf("in %d minutes.", minutes)
	default:
		return fmt.Sprintf("in %d minutes and %d seconds.", minutes, seconds)
	}
}

func eventAlert(ev models.EconomicEvent, left time.Duration) string {
	return fmt.Sprintf("📰🔔 Economic event <b>%s</b> is scheduled to occur %s\n", ev.Name, whenString(left))
}

func noPositionsMessage(ev models.EconomicEvent) string {
	return fmt.Sprintf("ℹ️ No open positions found for forced closure due to the economic event <b>%s</b>.", ev.Name)
}

func closedMessage(pos models.BrokerPosition, ev models.EconomicEvent) string {
	return fmt.Sprintf(
		"✅ Position %d closed successfully due to the economic event <b>%s</b>.\n"+
			"ℹ️ This action was taken to mitigate potential risks associated with the event's impact on the markets.",
		pos.PositionID, ev.Name,
	)
}

func closeFailedMessage(pos models.BrokerPosition, ev models.EconomicEvent) string {
	return fmt.Sprintf(
		"❌ Failed to close position %d due to the economic event <b>%s</b>.\n"+
			"⚠️ Potential risks remain as the position could not be closed.",
		pos.PositionID, ev.Name,
	)
}

// eventPayload and eventFromPayload move an event through a bus message.
func eventPayload(ev models.EconomicEvent) map[string]any {
	return map[string]any{
		"event_id":            ev.ID,
		"event_name":          ev.Name,
		"country_code":        ev.Country,
		"currency":            ev.Currency,
		"event_importance":    int(ev.Importance),
		"event_time":          ev.Time.UTC().Format(time.RFC3339),
		"seconds_until_event": ev.SecondsUntil,
	}
}

func eventFromPayload(msg models.QueueMessage) (models.EconomicEvent, error) {
	at, err := time.Parse(time.RFC3339, msg.GetString("event_time"))
	if err != nil {
		return models.EconomicEvent{}, fmt.Errorf("event_time: %w", err)
	}
	ev := models.EconomicEvent{
		ID:       msg.GetString("event_id"),
		Name:     msg.GetString("event_name"),
		Country:  msg.GetString("country_code"),
		Currency: msg.GetString("currency"),
		Time:     at,
	}
	// после JSON числа приходят как float64
	if v, ok := msg.Get("event_importance").(float64); ok {
		ev.Importance = models.Importance(v)
	}
	if v, ok := msg.Get("seconds_until_event").(float64); ok {
		ev.SecondsUntil = v
	}
	if ev.ID == "" || ev.Country == "" {
		return models.EconomicEvent{}, fmt.Errorf("incomplete event payload %v", msg.Payload)
	}
	return ev, nil
}
