package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadOperator is returned by Parse for unknown or malformed operators.
var ErrBadOperator = errors.New("flatdoc: bad query operator")

// Parse walks a decoded query and replaces operator objects with
// predicates. An operator object is a mapping with exactly one key that
// starts with "$":
//
//	{"$eq": v}  {"$ne": v}  {"$gt": v}  {"$gte": v}  {"$lt": v}  {"$lte": v}
//	{"$in": [v...]}  {"$range": [lo, hi]}  {"$between": [lo, hi]}
//	{"$prefix": "s"}  {"$contains": "s"}  {"$not": {operator}}
//
// Mappings mixing "$" keys with other keys are rejected.
func Parse(v map[string]any) (map[string]any, error) {
	out, err := parseValue(v)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func parseValue(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if op, arg, ok, err := operatorOf(val); err != nil {
			return nil, err
		} else if ok {
			return parseOperator(op, arg)
		}
		out := make(map[string]any, len(val))
		for k, elem := range val {
			p, err := parseValue(elem)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			out[k] = p
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			p, err := parseValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = p
		}
		return out, nil
	default:
		return v, nil
	}
}

func operatorOf(m map[string]any) (op string, arg any, ok bool, err error) {
	dollar := 0
	for k, v := range m {
		if strings.HasPrefix(k, "$") {
			dollar++
			op, arg = k, v
		}
	}
	switch {
	case dollar == 0:
		return "", nil, false, nil
	case dollar > 1 || len(m) > 1:
		return "", nil, false, fmt.Errorf("%w: operator object must have exactly one key", ErrBadOperator)
	}
	return op, arg, true, nil
}

func parseOperator(op string, arg any) (Predicate, error) {
	switch op {
	case "$eq":
		return Eq{Value: arg}, nil
	case "$ne":
		return Ne{Value: arg}, nil
	case "$gt":
		return Gt(arg), nil
	case "$gte":
		return Gte(arg), nil
	case "$lt":
		return Lt(arg), nil
	case "$lte":
		return Lte(arg), nil
	case "$in":
		list, ok := arg.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: $in expects a list, got %T", ErrBadOperator, arg)
		}
		return In{Values: list}, nil
	case "$range", "$between":
		list, ok := arg.([]any)
		if !ok || len(list) != 2 {
			return nil, fmt.Errorf("%w: %s expects [low, high]", ErrBadOperator, op)
		}
		if op == "$range" {
			return Range{Low: list[0], High: list[1]}, nil
		}
		return Between{Low: list[0], High: list[1]}, nil
	case "$prefix", "$contains":
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a string, got %T", ErrBadOperator, op, arg)
		}
		if op == "$prefix" {
			return Prefix{Value: s}, nil
		}
		return Contains{Value: s}, nil
	case "$not":
		m, ok := arg.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: $not expects an operator object", ErrBadOperator)
		}
		innerOp, innerArg, ok, err := operatorOf(m)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: $not expects an operator object", ErrBadOperator)
		}
		p, err := parseOperator(innerOp, innerArg)
		if err != nil {
			return nil, err
		}
		return Not{P: p}, nil
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrBadOperator, op)
	}
}
