package component

import (
	"github.com/alexisbeaulieu97/loom/internal/language"
)

// ComputationID is an opaque handle into the computation database.
type ComputationID int

// ComputationKind tags a computation variant.
type ComputationKind int

const (
	// CompCallable is a user function or method.
	CompCallable ComputationKind = iota
	// CompMatchProjection extracts the Ok or Err arm of a fallible output.
	CompMatchProjection
	// CompPrebuiltValue is an opaque value supplied by the caller.
	CompPrebuiltValue
	// CompConfigValue is a value read from the application config.
	CompConfigValue
)

// MatchVariant selects which arm a projection extracts.
type MatchVariant int

const (
	VariantOk MatchVariant = iota
	VariantErr
)

func (v MatchVariant) String() string {
	if v == VariantErr {
		return "Err"
	}
	return "Ok"
}

// Computation is a closed tagged union: Kind selects which fields are
// meaningful.
type Computation struct {
	Kind ComputationKind

	// Callable is set for CompCallable.
	Callable *language.Callable

	// Input and Variant are set for CompMatchProjection.
	Input   language.Type
	Variant MatchVariant

	// Output is the value the computation produces. For projections it is
	// the selected arm; for prebuilt/config values it is the registered
	// type.
	Output language.Type
}

// Key returns the interning identity of the computation.
func (c *Computation) Key() string {
	switch c.Kind {
	case CompCallable:
		key := "call:" + c.Callable.Path.Render()
		for _, in := range c.Callable.Inputs {
			key += "|" + in.Key()
		}
		if c.Callable.Output != nil {
			key += "->" + c.Callable.Output.Key()
		}
		return key
	case CompMatchProjection:
		return "match:" + c.Variant.String() + ":" + c.Input.Key()
	case CompPrebuiltValue:
		return "prebuilt:" + c.Output.Key()
	default:
		return "config:" + c.Output.Key()
	}
}

// InputTypes returns the computation's inputs in invocation order.
func (c *Computation) InputTypes() []language.Type {
	switch c.Kind {
	case CompCallable:
		return c.Callable.Inputs
	case CompMatchProjection:
		return []language.Type{c.Input}
	default:
		return nil
	}
}

// OkOutput returns the success half of the output.
func (c *Computation) OkOutput() language.Type {
	if res, ok := c.Output.(language.Result); ok {
		return res.Ok
	}
	return c.Output
}

// IsFallible reports whether the computation's output is result-shaped.
func (c *Computation) IsFallible() bool {
	_, ok := c.Output.(language.Result)
	return ok
}

// ComputationDb interns computations and hands out stable ids.
type ComputationDb struct {
	byKey map[string]ComputationID
	items []Computation
}

// NewComputationDb creates an empty database.
func NewComputationDb() *ComputationDb {
	return &ComputationDb{byKey: make(map[string]ComputationID)}
}

// Intern stores the computation, reusing the id of a structurally equal
// entry when one exists.
func (db *ComputationDb) Intern(c Computation) ComputationID {
	key := c.Key()
	if id, ok := db.byKey[key]; ok {
		return id
	}
	id := ComputationID(len(db.items))
	db.items = append(db.items, c)
	db.byKey[key] = id
	return id
}

// Get returns the computation for an id.
func (db *ComputationDb) Get(id ComputationID) *Computation {
	return &db.items[id]
}

// Len returns the number of interned computations.
func (db *ComputationDb) Len() int { return len(db.items) }
