package descriptor

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ServiceType identifies which signal collector handles a service. New types
// are added by registering a new collector variant, never by branching on the
// raw string elsewhere.
type ServiceType string

const (
	TypeCloudRunRevision ServiceType = "cloud_run_revision"
	TypeStorageBucket    ServiceType = "gcs_bucket"
	TypeBigQueryProject  ServiceType = "bigquery_project"
)

// Precision is the fixed number of decimal digits used when comparing
// percentages against thresholds. Thresholds are normalized to this precision
// at load time so every service type compares the same way.
const Precision = 4

type Service struct {
	Name      string      `json:"name"`
	Type      ServiceType `json:"type"`
	Threshold float64     `json:"threshold"`
}

type Project struct {
	ID       string    `json:"id"`
	Services []Service `json:"services"`
}

// Set is the parsed monitoring configuration. It is immutable after Parse;
// a new trigger invocation parses a fresh Set, there is no in-place reload.
type Set struct {
	Projects []Project `json:"projects"`
}

// ConfigError reports a structurally valid but semantically broken
// configuration document. It aborts the cycle before any evaluation starts.
type ConfigError struct {
	Issues []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Issues, "; "))
}

// NotFoundError is returned by Lookup for unknown project/service pairs.
type NotFoundError struct {
	ProjectID string
	Service   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("service %q not found in project %q", e.Service, e.ProjectID)
}

func knownType(t ServiceType) bool {
	switch t {
	case TypeCloudRunRevision, TypeStorageBucket, TypeBigQueryProject:
		return true
	default:
		return false
	}
}

// KnownTypes lists the registered service type tags, sorted, for error
// messages.
func KnownTypes() []string {
	types := []string{
		string(TypeCloudRunRevision),
		string(TypeStorageBucket),
		string(TypeBigQueryProject),
	}
	sort.Strings(types)
	return types
}

// Validate checks the semantic rules of the configuration: non-empty ids and
// names, unique within their scope, known types, thresholds in (0, 100].
func (s Set) Validate() error {
	var issues []string
	if len(s.Projects) == 0 {
		issues = append(issues, "at least one project is required")
	}
	seenProjects := map[string]bool{}
	for i, project := range s.Projects {
		prefix := fmt.Sprintf("projects[%d]", i)
		if strings.TrimSpace(project.ID) == "" {
			issues = append(issues, fmt.Sprintf("%s.id is required", prefix))
		} else if seenProjects[project.ID] {
			issues = append(issues, fmt.Sprintf("%s.id %q is duplicated", prefix, project.ID))
		}
		seenProjects[project.ID] = true

		if len(project.Services) == 0 {
			issues = append(issues, fmt.Sprintf("%s.services must not be empty", prefix))
		}
		seenServices := map[string]bool{}
		for j, service := range project.Services {
			sPrefix := fmt.Sprintf("%s.services[%d]", prefix, j)
			if strings.TrimSpace(service.Name) == "" {
				issues = append(issues, fmt.Sprintf("%s.name is required", sPrefix))
			} else if seenServices[service.Name] {
				issues = append(issues, fmt.Sprintf("%s.name %q is duplicated", sPrefix, service.Name))
			}
			seenServices[service.Name] = true

			if !knownType(service.Type) {
				issues = append(issues, fmt.Sprintf("%s.type must be one of %v", sPrefix, KnownTypes()))
			}
			if service.Threshold <= 0 || service.Threshold > 100 {
				issues = append(issues, fmt.Sprintf("%s.threshold must be in (0, 100]", sPrefix))
			}
		}
	}
	if len(issues) > 0 {
		return &ConfigError{Issues: issues}
	}
	return nil
}

// Lookup returns the named service. The Set is never mutated through the
// returned value; Service is a value type.
func (s Set) Lookup(projectID, serviceName string) (Service, error) {
	for _, project := range s.Projects {
		if project.ID != projectID {
			continue
		}
		for _, service := range project.Services {
			if service.Name == serviceName {
				return service, nil
			}
		}
	}
	return Service{}, &NotFoundError{ProjectID: projectID, Service: serviceName}
}

// Len returns the total number of configured services across projects.
func (s Set) Len() int {
	n := 0
	for _, project := range s.Projects {
		n += len(project.Services)
	}
	return n
}

func normalizeThreshold(value float64) float64 {
	const scale = 1e4
	return math.RoundToEven(value*scale) / scale
}
