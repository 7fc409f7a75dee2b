package enums

import "fmt"

// QuantityType describes how the legacy ordered/received columns are counted.
type QuantityType string

const (
	QuantityTypeUnit  QuantityType = "unit"
	QuantityTypeCase  QuantityType = "case"
	QuantityTypeMixed QuantityType = "mixed"
)

var validQuantityTypes = []QuantityType{
	QuantityTypeUnit,
	QuantityTypeCase,
	QuantityTypeMixed,
}

func (q QuantityType) IsValid() bool {
	for _, candidate := range validQuantityTypes {
		if candidate == q {
			return true
		}
	}
	return false
}

func ParseQuantityType(value string) (QuantityType, error) {
	for _, candidate := range validQuantityTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid quantity type %q", value)
}
