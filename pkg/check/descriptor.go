package check

import "fmt"

// ValidateDescriptors checks that every descriptor has a name, a check, and
// that no name is used twice.
func ValidateDescriptors(descs []Descriptor) error {
	seen := make(map[string]struct{}, len(descs))
	for i, d := range descs {
		if d.Name == "" {
			return fmt.Errorf("check at index %d has no name", i)
		}
		if d.Check == nil {
			return fmt.Errorf("check %q has no implementation", d.Name)
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("check %q is defined more than once", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return nil
}
