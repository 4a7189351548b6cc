package pipeline

import "github.com/alanyoungcy/polyoracle/internal/domain"

// route is the track a classified market follows. The set of implementations
// is closed; resolve matches on it exhaustively.
type route interface {
	isRoute()
}

type dataRoute struct{ classification domain.Classification }

type eventRoute struct{ classification domain.Classification }

type rejectRoute struct{ classification domain.Classification }

func (dataRoute) isRoute()   {}
func (eventRoute) isRoute()  {}
func (rejectRoute) isRoute() {}

func routeFor(cl domain.Classification) route {
	switch cl.Category {
	case domain.CategoryData:
		return dataRoute{cl}
	case domain.CategoryEvent:
		return eventRoute{cl}
	default:
		return rejectRoute{cl}
	}
}
