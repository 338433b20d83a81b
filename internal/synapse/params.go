package synapse

// OptionalDouble is an explicitly-unset-able float parameter. A fresh
// value means "take the model default"; there is no reserved numeric
// sentinel that could collide with a legitimate value.
type OptionalDouble struct {
	Value float64
	Valid bool
}

func Double(v float64) OptionalDouble {
	return OptionalDouble{Value: v, Valid: true}
}

func (o OptionalDouble) Or(def float64) float64 {
	if o.Valid {
		return o.Value
	}
	return def
}

// OptionalInt mirrors OptionalDouble for integer parameters.
type OptionalInt struct {
	Value int64
	Valid bool
}

func Int(v int64) OptionalInt {
	return OptionalInt{Value: v, Valid: true}
}

func (o OptionalInt) Or(def int64) int64 {
	if o.Valid {
		return o.Value
	}
	return def
}

// Params is the synapse-parameter record handed to a connect call.
// Unset fields take the synapse model's defaults.
type Params struct {
	Weight   OptionalDouble
	DelayMS  OptionalDouble
	Receptor OptionalInt
	Label    OptionalInt
	// Extra carries model-specific numeric fields; models reject keys
	// they do not define.
	Extra map[string]float64
}
