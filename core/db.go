package core

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// CleanOrderings drops the orderings on fields that are not allowed, keeping the requested order.
func CleanOrderings(ords []DBOrdering, allowed ...string) []DBOrdering {
	if len(ords) == 0 {
		return nil
	}
	ok := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		ok[f] = struct{}{}
	}
	cleaned := make([]DBOrdering, 0, len(ords))
	for _, ord := range ords {
		if _, found := ok[ord.Field]; found {
			cleaned = append(cleaned, ord)
		}
	}
	return cleaned
}
