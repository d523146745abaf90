package payo

// Payo event types

// bus.Send(INV_CONFIRMED, update)
// bus.Send(SYS_ERR, msg)

// Interface for any event
type EventType interface {
	Type() string
}

// slice of all msg types for config funcs lookup
var EVENT_TYPES []EventType = []EventType{EVENT_ALL("ALL"),
	EVENT_SYS("SYS"),
	EVENT_INV("INV")}

// Special category, do not use directly, represents *
type EVENT_ALL string

func (e EVENT_ALL) Type() string {
	return "ALL"
}

// System Events
type EVENT_SYS string

func (e EVENT_SYS) Type() string {
	return "SYS"
}

const (
	SYS_STARTUP EVENT_SYS = "STARTUP"
	SYS_ERR     EVENT_SYS = "ERR"
	SYS_MSG     EVENT_SYS = "MSG"
)

// Invoice Events
type EVENT_INV string

func (e EVENT_INV) Type() string {
	return "INV"
}

const (
	INV_CREATED   EVENT_INV = "CREATED"
	INV_DETECTED  EVENT_INV = "DETECTED"
	INV_CONFIRMED EVENT_INV = "CONFIRMED"
	INV_EXPIRED   EVENT_INV = "EXPIRED"
)

// EventForStatus maps an invoice status to the event announcing it.
func EventForStatus(s InvoiceStatus) EVENT_INV {
	switch s {
	case StatusDetected:
		return INV_DETECTED
	case StatusConfirmed:
		return INV_CONFIRMED
	case StatusExpired:
		return INV_EXPIRED
	default:
		return INV_CREATED
	}
}
