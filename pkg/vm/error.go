// Package vm provides error handling for the CHIP-8 virtual machine.
package vm

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of runtime error.
type ErrorType string

const (
	// Fatal errors - the faulting instruction is not executed
	ErrorStackUnderflow    ErrorType = "STACK_UNDERFLOW"
	ErrorStackOverflow     ErrorType = "STACK_OVERFLOW"
	ErrorAddressOutOfRange ErrorType = "ADDRESS_OUT_OF_RANGE"

	// Non-fatal errors - execution continues
	ErrorUnknownOpcode ErrorType = "UNKNOWN_OPCODE"
)

// ErrROMTooLarge is returned by Reset when the program image does not fit
// between ProgramStart and the top of memory.
var ErrROMTooLarge = errors.New("ROM too large")

// RuntimeError represents an error raised while executing one instruction.
type RuntimeError struct {
	Type    ErrorType
	Message string
	PC      uint16 // address of the faulting instruction
	Word    uint16 // the instruction word
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("[%s] %s at 0x%03X (opcode %04X)", e.Type, e.Message, e.PC, e.Word)
}

// IsFatal returns true if the error stops the instruction from taking effect.
// Unknown opcodes are skipped and the machine keeps running.
func (e *RuntimeError) IsFatal() bool {
	switch e.Type {
	case ErrorStackUnderflow, ErrorStackOverflow, ErrorAddressOutOfRange:
		return true
	default:
		return false
	}
}

// NewRuntimeError creates a new RuntimeError.
func NewRuntimeError(errType ErrorType, message string, pc, word uint16) *RuntimeError {
	return &RuntimeError{
		Type:    errType,
		Message: message,
		PC:      pc,
		Word:    word,
	}
}

// IsFatal reports whether err is a fatal *RuntimeError.
// Errors of any other type are treated as fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var rtErr *RuntimeError
	if errors.As(err, &rtErr) {
		return rtErr.IsFatal()
	}
	return true
}

func newStackUnderflowError(pc, word uint16) *RuntimeError {
	return NewRuntimeError(ErrorStackUnderflow, "return with empty call stack", pc, word)
}

func newStackOverflowError(pc, word uint16) *RuntimeError {
	return NewRuntimeError(ErrorStackOverflow, fmt.Sprintf("call stack depth exceeds %d", StackDepth), pc, word)
}

func newAddressError(pc, word uint16, addr, n int) *RuntimeError {
	return NewRuntimeError(ErrorAddressOutOfRange,
		fmt.Sprintf("access of %d byte(s) at 0x%X exceeds memory", n, addr), pc, word)
}

func newUnknownOpcodeError(pc, word uint16) *RuntimeError {
	return NewRuntimeError(ErrorUnknownOpcode, "unknown opcode skipped", pc, word)
}
