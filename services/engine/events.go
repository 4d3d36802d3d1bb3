package engine

type EventType int

const (
	EventRegimeFlip EventType = iota
	EventTradeOpen
	EventTradeClose
	EventRiskRejected
	EventFastReentry
	EventBarSkipped
)

func (t EventType) String() string {
	switch t {
	case EventRegimeFlip:
		return "regime_flip"
	case EventTradeOpen:
		return "trade_open"
	case EventTradeClose:
		return "trade_close"
	case EventRiskRejected:
		return "risk_rejected"
	case EventFastReentry:
		return "fast_reentry"
	case EventBarSkipped:
		return "bar_skipped"
	default:
		return "unknown"
	}
}

// Event is a forensics record of one engine decision.
type Event struct {
	Ts      int64
	Bar     int
	Type    EventType
	Details map[string]string
}

// EventLog keeps the decision trail of a replay in order.
type EventLog struct {
	Events []Event
}

func (l *EventLog) Append(e Event) { l.Events = append(l.Events, e) }

func (l *EventLog) Reset() { l.Events = l.Events[:0] }
