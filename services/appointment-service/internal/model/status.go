package model

type Status string

const (
	StatusPending   Status = "PENDENTE"
	StatusConfirmed Status = "CONFIRMADO"
	StatusInService Status = "EM_ATENDIMENTO"
	StatusDone      Status = "FINALIZADO"
	StatusCancelled Status = "CANCELADO"
	StatusNoShow    Status = "NO_SHOW"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusInService, StatusCancelled, StatusNoShow},
	StatusConfirmed: {StatusPending, StatusInService, StatusDone, StatusCancelled, StatusNoShow},
	StatusInService: {StatusDone, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInService, StatusDone, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal statuses have no outgoing transitions in the table.
func (s Status) Terminal() bool {
	_, ok := transitions[s]
	return s.Valid() && !ok
}

// CanTransition reports whether from -> to is allowed without a forced override.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
