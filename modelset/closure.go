package modelset

import (
	"context"

	"github.com/geoknoesis/rdf-models/uri"
	"go.uber.org/zap"
)

// resolveClosure walks owl:imports breadth first from root. Each URI is
// visited at most once, so cycles terminate. An import that fails to resolve
// is recorded as an error on the importing model and skipped; only models
// that were found contribute to the closure.
func resolveClosure(ctx context.Context, s *ModelSet, root *Model) (Module, error) {
	s.metrics.recordClosure()
	rootURI := root.URI()
	seen := map[uri.URI]bool{rootURI: true}
	// queued holds normalized model URIs; two import URIs may map to one model.
	queued := map[uri.URI]bool{rootURI: true}
	queue := []*Model{root}
	closure := Module{Writable: rootURI}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return Module{}, err
		}
		m := queue[0]
		queue = queue[1:]

		own, err := m.Module(ctx)
		if err != nil {
			return Module{}, err
		}
		closure = closure.Union(own)

		imports, err := m.Imports(ctx)
		if err != nil {
			return Module{}, err
		}
		for _, target := range imports {
			if seen[target] {
				continue
			}
			seen[target] = true
			demandLoad := m.DemandLoadImport(target)
			imported, err := s.GetModel(ctx, target, demandLoad)
			if err != nil {
				m.addError(NewDiagnostic(m.String(), err))
				s.logger.Warn("skipping import",
					zap.Stringer("model", m),
					zap.Stringer("import", target),
					zap.Error(err))
				continue
			}
			if imported == nil && demandLoad {
				if imported, err = s.GetModel(ctx, target, false); err != nil {
					m.addError(NewDiagnostic(m.String(), err))
					continue
				}
			}
			if imported != nil && !queued[imported.URI()] {
				queued[imported.URI()] = true
				queue = append(queue, imported)
			}
		}
	}

	base, err := s.baseModule(ctx)
	if err != nil {
		return Module{}, err
	}
	closure = closure.Union(base)
	s.logger.Debug("resolved closure",
		zap.Stringer("model", root),
		zap.Int("readable", len(closure.Readable)))
	return closure, nil
}
