package models

import "fmt"

// ResourceType is a capped resource kind. The set is closed: values only
// come from the package-level variables or ParseResourceType.
type ResourceType struct {
	name string
}

var (
	ResourceArtwork  = ResourceType{"artwork"}
	ResourceChildren = ResourceType{"children"}
	ResourceFamily   = ResourceType{"family"}
)

// ResourceTypes lists every capped resource
var ResourceTypes = []ResourceType{ResourceArtwork, ResourceChildren, ResourceFamily}

// ParseResourceType maps a wire name to its resource type
func ParseResourceType(s string) (ResourceType, error) {
	for _, rt := range ResourceTypes {
		if rt.name == s {
			return rt, nil
		}
	}
	return ResourceType{}, fmt.Errorf("unknown resource type %q", s)
}

func (r ResourceType) String() string {
	return r.name
}

// IsZero reports whether r was never set
func (r ResourceType) IsZero() bool {
	return r.name == ""
}

// FamilyScoped reports whether counts of r are taken within a single family
func (r ResourceType) FamilyScoped() bool {
	return r == ResourceArtwork || r == ResourceChildren
}

func (r ResourceType) MarshalText() ([]byte, error) {
	return []byte(r.name), nil
}

func (r *ResourceType) UnmarshalText(b []byte) error {
	rt, err := ParseResourceType(string(b))
	if err != nil {
		return err
	}
	*r = rt
	return nil
}
