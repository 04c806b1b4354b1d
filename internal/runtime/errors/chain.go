package errors

// Predicate reports whether a single link of a cause chain matches.
type Predicate func(err error) bool

// Walk visits err and every error it wraps, depth first. Both Unwrap() error
// and Unwrap() []error are followed. Returning false from fn stops the walk.
func Walk(err error, fn func(error) bool) {
	walk(err, fn)
}

func walk(err error, fn func(error) bool) bool {
	if err == nil {
		return true
	}
	if !fn(err) {
		return false
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return walk(u.Unwrap(), fn)
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if !walk(inner, fn) {
				return false
			}
		}
	}
	return true
}

// FirstCause scans the whole cause chain once per predicate, in the order the
// predicates are given, and returns the first link matching the earliest
// predicate that matches anything. Priority is by predicate, not by depth: if
// the outer error matches the second predicate and a nested one matches the
// first, the nested one is returned.
func FirstCause(err error, preds ...Predicate) (error, int) {
	for i, pred := range preds {
		var found error
		Walk(err, func(link error) bool {
			if pred(link) {
				found = link
				return false
			}
			return true
		})
		if found != nil {
			return found, i
		}
	}
	return nil, -1
}

// TypeOf returns a predicate matching links of type T.
func TypeOf[T error]() Predicate {
	return func(err error) bool {
		_, ok := err.(T)
		return ok
	}
}
