package runtime

import (
	"fmt"
	"time"
)

// BuiltinFunctions returns the stock global function set.
func BuiltinFunctions() map[string]FunctionFn {
	return map[string]FunctionFn{
		"range": fnRange,
		"len":   fnLen,
		"min":   fnMin,
		"max":   fnMax,
		"now":   fnNow,
		"cycle": fnCycle,
	}
}

// fnRange mirrors the range literal as a callable: range(stop),
// range(start, stop) or range(start, stop, step), stop exclusive.
func fnRange(_ *State, args []any) (any, error) {
	if len(args) < 1 || len(args) > 3 {
		return nil, fmt.Errorf("range takes 1 to 3 arguments, got %d", len(args))
	}
	nums := make([]int64, len(args))
	for i, a := range args {
		n, ok := AsInt(a)
		if !ok {
			return nil, fmt.Errorf("range: argument %d is not an integer: %s", i+1, TypeName(a))
		}
		nums[i] = n
	}
	switch len(nums) {
	case 1:
		return MakeRange(0, nums[0], 1, true)
	case 2:
		return MakeRange(nums[0], nums[1], 1, true)
	default:
		return MakeRange(nums[0], nums[1], nums[2], true)
	}
}

func fnLen(_ *State, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("len takes 1 argument, got %d", len(args))
	}
	n, ok := Len(args[0])
	if !ok {
		return nil, fmt.Errorf("len: %s has no length", TypeName(args[0]))
	}
	return int64(n), nil
}

// minMax compares either all arguments, or the elements of a single
// iterable argument.
func minMax(name string, args []any, keepLeft func(cmp int) bool) (any, error) {
	items := args
	if len(args) == 1 {
		pairs, err := Iter(args[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		items = make([]any, len(pairs))
		for i, p := range pairs {
			items[i] = p.Value
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: no values", name)
	}
	best := items[0]
	for _, v := range items[1:] {
		cmp, err := Compare(best, v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if !keepLeft(cmp) {
			best = v
		}
	}
	return best, nil
}

func fnMin(_ *State, args []any) (any, error) {
	return minMax("min", args, func(cmp int) bool { return cmp <= 0 })
}

func fnMax(_ *State, args []any) (any, error) {
	return minMax("max", args, func(cmp int) bool { return cmp >= 0 })
}

// fnNow returns the current time formatted with the given layout, or
// RFC 3339 when called without arguments.
func fnNow(_ *State, args []any) (any, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("now takes at most 1 argument, got %d", len(args))
	}
	layout := time.RFC3339
	if len(args) == 1 {
		layout = Str(args[0])
	}
	return time.Now().Format(layout), nil
}

// fnCycle returns arguments[index mod count], for alternating values
// inside loops: cycle(loop.index0, "odd", "even").
func fnCycle(_ *State, args []any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("cycle takes an index and at least one value")
	}
	idx, ok := AsInt(args[0])
	if !ok {
		return nil, fmt.Errorf("cycle: index is not an integer: %s", TypeName(args[0]))
	}
	values := args[1:]
	n := int64(len(values))
	i := idx % n
	if i < 0 {
		i += n
	}
	return values[i], nil
}
