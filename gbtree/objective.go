package gbtree

import (
	"fmt"
	"math"
)

// Objective is the learning objective name stored with the model. It decides how the
// base score is moved into margin space and how the summed margin is transformed.
type Objective string

const (
	SquaredError     Objective = "reg:squarederror"
	Linear           Objective = "reg:linear"
	SquaredLogError  Objective = "reg:squaredlogerror"
	PseudoHuberError Objective = "reg:pseudohubererror"
	AbsoluteError    Objective = "reg:absoluteerror"
	QuantileError    Objective = "reg:quantileerror"
	RegLogistic      Objective = "reg:logistic"
	BinaryLogistic   Objective = "binary:logistic"
	BinaryLogitRaw   Objective = "binary:logitraw"
	CountPoisson     Objective = "count:poisson"
	Gamma            Objective = "reg:gamma"
	Tweedie          Objective = "reg:tweedie"
)

type link int

const (
	linkIdentity link = iota
	linkLogit
	linkLog
)

// outputLink is how the prediction is derived from the margin
var outputLink = map[Objective]link{
	SquaredError:     linkIdentity,
	Linear:           linkIdentity,
	SquaredLogError:  linkIdentity,
	PseudoHuberError: linkIdentity,
	AbsoluteError:    linkIdentity,
	QuantileError:    linkIdentity,
	RegLogistic:      linkLogit,
	BinaryLogistic:   linkLogit,
	BinaryLogitRaw:   linkIdentity,
	CountPoisson:     linkLog,
	Gamma:            linkLog,
	Tweedie:          linkLog,
}

// baseLink is how base_score is converted to a margin. logitraw keeps a probability
// base score even though its output is the raw margin.
var baseLink = map[Objective]link{
	BinaryLogitRaw: linkLogit,
}

// Supported reports whether the objective can be evaluated
func (o Objective) Supported() bool {
	_, ok := outputLink[o]
	return ok
}

// Binary reports whether the objective produces a binary class decision
func (o Objective) Binary() bool {
	return o == BinaryLogistic || o == BinaryLogitRaw || o == RegLogistic
}

func (o Objective) baseMargin(baseScore float32) (float32, error) {
	l, ok := baseLink[o]
	if !ok {
		l = outputLink[o]
	}

	switch l {
	case linkLogit:
		if baseScore <= 0 || baseScore >= 1 {
			return 0, fmt.Errorf("base_score %g must be in (0, 1) for %s", baseScore, o)
		}
		return float32(-math.Log(1/float64(baseScore) - 1)), nil
	case linkLog:
		if baseScore <= 0 {
			return 0, fmt.Errorf("base_score %g must be positive for %s", baseScore, o)
		}
		return float32(math.Log(float64(baseScore))), nil
	default:
		return baseScore, nil
	}
}

func (o Objective) transform(margin float32) float32 {
	switch outputLink[o] {
	case linkLogit:
		return float32(1 / (1 + math.Exp(-float64(margin))))
	case linkLog:
		return float32(math.Exp(float64(margin)))
	default:
		return margin
	}
}
