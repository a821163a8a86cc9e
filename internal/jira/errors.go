package jira

import (
	"errors"
	"fmt"
)

// ErrorKind класс ошибки трекера, по которому вызывающий код решает: повторить, прервать или поднять тревогу
type ErrorKind int

const (
	// KindGeneric ответ 5xx или сбой транспорта, можно повторить
	KindGeneric ErrorKind = iota + 1
	// KindMisconfiguration ответ 401, нужны действия оператора
	KindMisconfiguration
	// KindBadRequest ответ 400, трекер отверг payload
	KindBadRequest
	// KindUnknownStatus любой другой не-2xx ответ
	KindUnknownStatus
	// KindDecode тело ответа не соответствует ожидаемой структуре
	KindDecode
)

var (
	ErrGeneric          = errors.New("jira: generic error")
	ErrMisconfiguration = errors.New("jira: misconfigured credentials")
	ErrBadRequest       = errors.New("jira: bad request")
	ErrUnknownStatus    = errors.New("jira: unknown response status")
	ErrDecode           = errors.New("jira: invalid response body")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindGeneric:
		return ErrGeneric
	case KindMisconfiguration:
		return ErrMisconfiguration
	case KindBadRequest:
		return ErrBadRequest
	case KindUnknownStatus:
		return ErrUnknownStatus
	case KindDecode:
		return ErrDecode
	default:
		return nil
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindMisconfiguration:
		return "misconfiguration"
	case KindBadRequest:
		return "bad_request"
	case KindUnknownStatus:
		return "unknown_status"
	case KindDecode:
		return "decode"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error ошибка вызова API трекера
type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("jira %s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is позволяет сравнивать с ErrGeneric, ErrBadRequest и т.д. через errors.Is
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsPermanent сообщает, что повтор запроса без вмешательства не поможет
func IsPermanent(err error) bool {
	var jerr *Error
	if !errors.As(err, &jerr) {
		return false
	}
	switch jerr.Kind {
	case KindMisconfiguration, KindBadRequest, KindDecode:
		return true
	default:
		return false
	}
}

// classify раскладывает код ответа по классам ошибок: 5xx, 401, 400, прочие не-2xx
func classify(op string, status int, body []byte) error {
	switch {
	case status >= 500:
		return &Error{Kind: KindGeneric, Op: op, StatusCode: status, Body: string(body)}
	case status == 401:
		return &Error{Kind: KindMisconfiguration, Op: op, StatusCode: status}
	case status == 400:
		return &Error{Kind: KindBadRequest, Op: op, StatusCode: status, Body: string(body)}
	case status < 200 || status >= 300:
		return &Error{Kind: KindUnknownStatus, Op: op, StatusCode: status, Body: string(body)}
	default:
		return nil
	}
}
