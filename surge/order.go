package surge

import "sort"

/*
	orderServices computes a topological sort of a project's services
	over their dependsOn edges. Ties are broken lexicographically on
	service name: the result should be boringly predictable and stable
	under unrelated changes elsewhere in the graph, not just "a valid
	order".
*/
func orderServices(p *Project) ([]string, error) {
	result := make([]string, 0, len(p.Services))
	todo := make(map[string]struct{}, len(p.Services))
	for name := range p.Services {
		todo[name] = struct{}{}
	}

	names := make([]string, 0, len(p.Services))
	for name := range p.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := visitService(name, p, todo, map[string]struct{}{}, &result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func visitService(name string, p *Project, todo map[string]struct{}, visiting map[string]struct{}, result *[]string) error {
	if _, ok := todo[name]; !ok {
		return nil
	}
	if _, ok := visiting[name]; ok {
		return DependencyCycle.New("service dependency graph has a cycle at %q", name)
	}
	visiting[name] = struct{}{}

	deps := append([]string(nil), p.Services[name].DependsOn...)
	sort.Strings(deps)
	for _, dep := range deps {
		if err := visitService(dep, p, todo, visiting, result); err != nil {
			return err
		}
	}

	*result = append(*result, name)
	delete(todo, name)
	return nil
}
