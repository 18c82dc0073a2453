package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ftlshipyards/ftl/pkg/ftlerr"
	"github.com/jesseduffield/yaml"
	"github.com/spkg/bom"
)

type linksFile struct {
	Required []string `yaml:"required"`
	Optional []string `yaml:"optional"`
}

type containerOverrideFile struct {
	Links       *linksFile        `yaml:"links"`
	DevModes    []string          `yaml:"devmodes"`
	Ports       map[string]interface{} `yaml:"ports"`
	Environment map[string]string `yaml:"environment"`
	Ephemeral   bool              `yaml:"ephemeral"`
	DefaultBoot *bool             `yaml:"default_boot"`
	MemLimit    *int64            `yaml:"mem_limit"`
	ImageTag    string            `yaml:"image_tag"`
}

type profileFile struct {
	Inherits            string                           `yaml:"inherits"`
	Name                string                            `yaml:"name"` // legacy alias for inherits
	Description         string                            `yaml:"description"`
	MinVersion          string                            `yaml:"min-version"`
	IgnoreDependencies  bool                              `yaml:"ignore-dependencies"`
	Containers          map[string]containerOverrideFile  `yaml:"containers"`
}

// LoadChain reads {profilesDir}/{name}.yaml and follows its `inherits`
// (or legacy `name`) chain until a profile has no parent, returning
// the leaf profile with Parent pointers set all the way up, per spec
// §4.2 ("the CLI layer loads the user profile, walks the chain into
// the charts directory").
func LoadChain(profilesDir, name string) (*Profile, error) {
	seen := make(map[string]bool)
	var load func(name string) (*Profile, error)
	load = func(name string) (*Profile, error) {
		if seen[name] {
			return nil, ftlerr.NewConfigError(name, "inherits", "profile inheritance cycle detected")
		}
		seen[name] = true

		path := filepath.Join(profilesDir, name+".yaml")
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, ftlerr.NewConfigError(path, "", err.Error())
		}
		raw = bom.Clean(raw)
		var pf profileFile
		if err := yaml.Unmarshal(raw, &pf); err != nil {
			return nil, ftlerr.NewConfigError(path, "", err.Error())
		}

		p := &Profile{
			Name:               name,
			Description:        pf.Description,
			IgnoreDependencies: pf.IgnoreDependencies,
			Containers:         make(map[string]*ContainerOverride, len(pf.Containers)),
		}

		for cname, cf := range pf.Containers {
			override, err := convertOverride(cname, cf)
			if err != nil {
				return nil, err
			}
			p.Containers[cname] = override
		}

		parentName := pf.Inherits
		if parentName == "" {
			parentName = pf.Name
		}
		if parentName != "" {
			parent, err := load(parentName)
			if err != nil {
				return nil, err
			}
			p.Parent = parent
		}
		return p, nil
	}

	leaf, err := load(name)
	if err != nil {
		return nil, err
	}
	markCompatibilityProfile(leaf)
	return leaf, nil
}

// markCompatibilityProfile sets InProfile on the top-of-chain ancestor
// only, per spec §4.2 ("in_profile is set... never for the user
// profile"). A leaf with no parent is the user's own profile and is
// left unmarked.
func markCompatibilityProfile(leaf *Profile) {
	chain := leaf.Chain()
	if len(chain) < 2 {
		return
	}
	chain[len(chain)-1].InProfile = true
}

func convertOverride(name string, cf containerOverrideFile) (*ContainerOverride, error) {
	override := &ContainerOverride{
		DevModes:    cf.DevModes,
		Environment: cf.Environment,
		Ephemeral:   cf.Ephemeral,
		DefaultBoot: cf.DefaultBoot,
		MemLimit:    cf.MemLimit,
		ImageTag:    cf.ImageTag,
	}
	if cf.Links != nil {
		override.Links = &LinkOverride{Required: cf.Links.Required, Optional: cf.Links.Optional}
	}
	if len(cf.Ports) > 0 {
		override.Ports = make(map[string]string, len(cf.Ports))
		for containerPort, hostPort := range cf.Ports {
			coerced, err := coercePort(hostPort)
			if err != nil {
				return nil, ftlerr.NewConfigError(name, containerPort, err.Error())
			}
			override.Ports[containerPort] = coerced
		}
	}
	return override, nil
}

func coercePort(v interface{}) (string, error) {
	switch t := v.(type) {
	case int:
		return strconv.Itoa(t), nil
	case string:
		if _, err := strconv.Atoi(t); err != nil {
			return "", fmt.Errorf("non-numeric port override %q", t)
		}
		return t, nil
	default:
		return "", fmt.Errorf("non-numeric port override %v", v)
	}
}
