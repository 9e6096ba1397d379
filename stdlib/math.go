package stdlib

import (
	"math"

	"jstar/internal/module"
	"jstar/value"
)

const mathSource = `
native sqrt(x)
native abs(x)
native floor(x)
native ceil(x)
native round(x)
native sin(x)
native cos(x)
native tan(x)
native log(x)
native exp(x)
native min(a, b)
native max(a, b)

var pi = 3.141592653589793
var e = 2.718281828459045
var inf = 1e308 * 10
`

func mathNatives() *module.NativeRegistry {
	reg := &module.NativeRegistry{}

	unary := func(name string, fn func(float64) float64) {
		reg.Register(name, 1, func(rt module.Runtime, args []value.Value) (value.Value, error) {
			if !args[0].IsNumber() {
				return value.NullVal(), typeError(name, "number", args[0])
			}
			return value.NumberVal(fn(args[0].AsNumber())), nil
		})
	}
	binary := func(name string, fn func(a, b float64) float64) {
		reg.Register(name, 2, func(rt module.Runtime, args []value.Value) (value.Value, error) {
			if !args[0].IsNumber() || !args[1].IsNumber() {
				return value.NullVal(), typeError(name, "number", args[0])
			}
			return value.NumberVal(fn(args[0].AsNumber(), args[1].AsNumber())), nil
		})
	}

	unary("sqrt", math.Sqrt)
	unary("abs", math.Abs)
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	unary("round", math.Round)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tan", math.Tan)
	unary("log", math.Log)
	unary("exp", math.Exp)
	binary("min", math.Min)
	binary("max", math.Max)

	return reg
}
