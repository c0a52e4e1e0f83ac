package types

import "fmt"

const (
	ErrSendFailed       = "SEND_FAILED"
	ErrBadResponse      = "BAD_RESPONSE"
	ErrResponseReadFail = "RESPONSE_READ_FAILED"
	ErrBadMessage       = "BAD_MESSAGE"
)

// Error is an error tagged with a classification code
type Error struct {
	code string
	msg  string
}

func NewError(code, msg string) *Error {
	return &Error{
		code: code,
		msg:  msg,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s - %s", e.code, e.msg)
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) IsCode(code string) bool {
	return e.code == code
}
