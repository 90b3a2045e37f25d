package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks an AppConfig for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *AppConfig) []ValidationError {
	var errs []ValidationError
	a := cfg.App

	if a.Name == "" {
		errs = append(errs, ValidationError{Field: "app.name", Message: "is required"})
	}
	if len(a.Components) == 0 {
		errs = append(errs, ValidationError{Field: "app.components", Message: "at least one component is required"})
	}

	names := make(map[string]bool)
	for i, c := range a.Components {
		if c.Name == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("app.components[%d].name", i),
				Message: "is required",
			})
			continue
		}
		if strings.ContainsAny(c.Name, `/\`) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("app.components[%d].name", i),
				Message: fmt.Sprintf("component name %q must not contain path separators", c.Name),
			})
		}
		if names[c.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("app.components[%d].name", i),
				Message: fmt.Sprintf("duplicate component %q", c.Name),
			})
		}
		names[c.Name] = true
	}

	if dir := cfg.BuildDirConflict(); dir != "" {
		errs = append(errs, ValidationError{
			Field:   "app.build_dir",
			Message: fmt.Sprintf("%s contains %s; use a subdirectory", a.BuildDir, dir),
		})
	}

	needGenerate, needMetadata := false, false
	for i, c := range a.Components {
		prefix := fmt.Sprintf("app.components[%d]", i)

		for j, d := range c.Dependencies {
			field := fmt.Sprintf("%s.dependencies[%d]", prefix, j)
			switch {
			case d.Name == "":
				errs = append(errs, ValidationError{Field: field + ".name", Message: "is required"})
			case d.Name == c.Name:
				errs = append(errs, ValidationError{Field: field + ".name", Message: "component cannot depend on itself"})
			case !names[d.Name]:
				errs = append(errs, ValidationError{Field: field + ".name", Message: fmt.Sprintf("references undefined component %q", d.Name)})
			}
			if d.Type == "" {
				errs = append(errs, ValidationError{Field: field + ".type", Message: "is required"})
			}
		}
		if c.HasDependencies() {
			needGenerate = true
		}
		if c.Output != "" {
			needMetadata = true
		}

		for j, b := range c.Build {
			if strings.TrimSpace(b.Command) == "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.build[%d].command", prefix, j),
					Message: "is required",
				})
			}
		}
	}

	if needGenerate && a.Toolchain.Generate == "" {
		errs = append(errs, ValidationError{Field: "app.toolchain.generate", Message: "is required when components have dependencies"})
	}
	if needGenerate && a.Toolchain.Link == "" {
		errs = append(errs, ValidationError{Field: "app.toolchain.link", Message: "is required when components have dependencies"})
	}
	if needMetadata && a.Toolchain.Metadata == "" {
		errs = append(errs, ValidationError{Field: "app.toolchain.metadata", Message: "is required when components declare an output"})
	}

	return errs
}

// BuildDirConflict returns the manifest directory or component directory that
// lies inside the build dir, or "" if there is none. Removing such a build
// dir would remove sources.
func (cfg *AppConfig) BuildDirConflict() string {
	a := &cfg.App
	if a.BuildDir == "" {
		return ""
	}
	dirs := []string{cfg.Root}
	for _, c := range a.Components {
		dirs = append(dirs, c.Dir)
	}
	for _, d := range dirs {
		if d != "" && within(a.BuildDir, d) {
			return d
		}
	}
	return ""
}

// within reports whether p is dir or lies below it.
func within(dir, p string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
