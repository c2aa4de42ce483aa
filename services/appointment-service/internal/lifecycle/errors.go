package lifecycle

import (
	"errors"
	"time"
)

var (
	ErrInvalidInput      = errors.New("dados inválidos")
	ErrNotFound          = errors.New("agendamento não encontrado")
	ErrForbidden         = errors.New("operação não permitida para este usuário")
	ErrPastDate          = errors.New("não é possível agendar em uma data passada")
	ErrLeadTime          = errors.New("agendamentos devem ser feitos com no mínimo 12 horas de antecedência")
	ErrDriversRequired   = errors.New("motorista de leva e de traz são obrigatórios para agendamentos com transporte")
	ErrCustomerBlocked   = errors.New("cliente bloqueado; entre em contato com a equipe")
	ErrSlotTaken         = errors.New("já existe um agendamento neste horário")
	ErrInvalidTransition = errors.New("transição de status não permitida")
	ErrRetentionExpired  = errors.New("agendamento excluído há mais de 15 dias não pode ser restaurado")
	ErrNoTransport       = errors.New("agendamento não possui transporte")
)

const PastDateWarningCode = "PAST_DATE_WARNING"

// PastDateWarning is returned to staff booking in the past without the override flag.
// Re-submitting with the override flag accepts the date.
type PastDateWarning struct {
	StartAt time.Time
}

func (w *PastDateWarning) Error() string {
	return "a data informada já passou; confirme para agendar mesmo assim"
}

func (w *PastDateWarning) Code() string {
	return PastDateWarningCode
}

// invalid wraps ErrInvalidInput with a specific message.
type invalidInputError struct {
	msg string
}

func (e *invalidInputError) Error() string { return e.msg }

func (e *invalidInputError) Unwrap() error { return ErrInvalidInput }

func invalid(msg string) error {
	return &invalidInputError{msg: msg}
}
