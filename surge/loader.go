package surge

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadProject reads and parses a surge project file. Leading tabs on
// indentation are converted to spaces before parsing -- strict YAML's
// tab-intolerance is a constant source of "why won't this parse" for
// hand-edited config, and it costs nothing to accommodate.
func LoadProject(path string) (*Project, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, InvalidProject.Wrap(err)
	}
	return ParseProject(raw)
}

func ParseProject(raw []byte) (*Project, error) {
	cleaned := detabify(raw)
	var p Project
	if err := yaml.Unmarshal(cleaned, &p); err != nil {
		return nil, InvalidProject.Wrap(err)
	}
	p.normalize()
	if err := validateProject(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func detabify(raw []byte) []byte {
	lines := strings.Split(string(raw), "\n")
	for i, line := range lines {
		indent := 0
		for indent < len(line) && line[indent] == '\t' {
			indent++
		}
		if indent > 0 {
			lines[i] = strings.Repeat("  ", indent) + line[indent:]
		}
	}
	return []byte(strings.Join(lines, "\n"))
}

func validateProject(p *Project) error {
	if p.Name == "" {
		return InvalidProject.New("project has no name")
	}
	for svcName, svc := range p.Services {
		for _, dep := range svc.DependsOn {
			if _, ok := p.Services[dep]; !ok {
				return InvalidProject.New("service %q depends on undefined service %q", svcName, dep)
			}
		}
		if svc.Image == "" {
			return InvalidProject.New("service %q has no image", svcName)
		}
	}
	return nil
}
