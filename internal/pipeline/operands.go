package pipeline

import (
	"fmt"
	"strconv"
)

// Operands are the two integers supplied on the command line. Runtime is
// passed to the compiled function through a pointer; Constant is embedded
// in the generated code.
type Operands struct {
	Runtime  int64
	Constant int64
}

// ParseOperands expects exactly two base-10 signed 64-bit integers: the
// runtime operand followed by the constant.
func ParseOperands(args []string) (Operands, error) {
	if len(args) != 2 {
		return Operands{}, &ArgumentError{
			Args:   args,
			Reason: fmt.Sprintf("expected 2 integers (runtime constant), got %d", len(args)),
		}
	}
	r, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return Operands{}, &ArgumentError{Args: args, Reason: "runtime operand", Err: err}
	}
	c, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return Operands{}, &ArgumentError{Args: args, Reason: "constant operand", Err: err}
	}
	return Operands{Runtime: r, Constant: c}, nil
}

// ParseConstant parses the single constant used when only an object is built.
func ParseConstant(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, &ArgumentError{
			Args:   args,
			Reason: fmt.Sprintf("expected 1 integer (constant), got %d", len(args)),
		}
	}
	c, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, &ArgumentError{Args: args, Reason: "constant operand", Err: err}
	}
	return c, nil
}
