package store

import (
	"strings"

	"github.com/kamilpajak/testpulse/pkg/models"
)

// Dimension names a secondary index.
type Dimension int

const (
	DimensionDomain Dimension = iota
	DimensionFeature
	DimensionConfiguration
	DimensionBuild
	DimensionTestName

	dimensionCount
)

var dimensionNames = [dimensionCount]string{
	DimensionDomain:        "domain",
	DimensionFeature:       "feature",
	DimensionConfiguration: "configuration",
	DimensionBuild:         "build",
	DimensionTestName:      "test",
}

func (d Dimension) String() string {
	if !d.valid() {
		return "unknown"
	}
	return dimensionNames[d]
}

func (d Dimension) valid() bool {
	return d >= 0 && d < dimensionCount
}

// ParseDimension resolves a dimension by its name.
func ParseDimension(name string) (Dimension, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for d, n := range dimensionNames {
		if n == name {
			return Dimension(d), true
		}
	}
	return 0, false
}

func (d Dimension) valueOf(r models.TestRecord) string {
	switch d {
	case DimensionDomain:
		return r.DomainID
	case DimensionFeature:
		return r.FeatureID
	case DimensionConfiguration:
		return r.ConfigurationID
	case DimensionBuild:
		return r.BuildID
	case DimensionTestName:
		return r.TestFullName
	}
	return ""
}
