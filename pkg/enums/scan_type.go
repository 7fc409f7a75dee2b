package enums

import "fmt"

// ScanType records whether a scan counted cases or individual units.
type ScanType string

const (
	ScanTypeCase ScanType = "case"
	ScanTypeUnit ScanType = "unit"
	// ScanTypeUnknown marks barcodes that matched no line on the delivery.
	ScanTypeUnknown ScanType = "unknown"
)

var validScanTypes = []ScanType{ScanTypeCase, ScanTypeUnit, ScanTypeUnknown}

func (s ScanType) IsValid() bool {
	for _, candidate := range validScanTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseScanType(value string) (ScanType, error) {
	for _, candidate := range validScanTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid scan type %q", value)
}
