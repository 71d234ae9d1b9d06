package domain

// Filter is a declarative list-scoping constraint handed to persistence.
// All lifts every restriction; otherwise every Equals pair must hold.
type Filter struct {
	All    bool
	Equals map[string]string
}

func MatchAll() Filter {
	return Filter{All: true}
}

func MatchEquals(pairs map[string]string) Filter {
	eq := make(map[string]string, len(pairs))
	for k, v := range pairs {
		eq[k] = v
	}
	return Filter{Equals: eq}
}
