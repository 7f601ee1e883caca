package models

import (
	"encoding/json"
	"fmt"
)

// Category tags the shape of a lot's Details payload.
type Category string

const (
	CategoryGeneral     Category = "general"
	CategoryArtwork     Category = "artwork"
	CategoryVehicle     Category = "vehicle"
	CategoryCollectible Category = "collectible"
)

// ArtworkDetails describes artwork lots.
type ArtworkDetails struct {
	Artist     string `json:"artist"`
	Medium     string `json:"medium"`
	YearMade   int    `json:"year_made,omitempty"`
	Dimensions string `json:"dimensions,omitempty"`
	Framed     bool   `json:"framed,omitempty"`
}

// VehicleDetails describes vehicle lots.
type VehicleDetails struct {
	Make         string `json:"make"`
	Model        string `json:"model"`
	Year         int    `json:"year"`
	Mileage      int    `json:"mileage,omitempty"`
	VIN          string `json:"vin,omitempty"`
	Transmission string `json:"transmission,omitempty"`
}

// CollectibleDetails describes graded collectible lots.
type CollectibleDetails struct {
	Grade         string `json:"grade,omitempty"`
	GradingHouse  string `json:"grading_house,omitempty"`
	Provenance    string `json:"provenance,omitempty"`
	Authenticated bool   `json:"authenticated,omitempty"`
}

// GeneralDetails is the fallback shape for uncategorized lots.
type GeneralDetails struct {
	Condition string `json:"condition,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// DecodeLotDetails decodes a lot's raw details column into the typed
// struct for its category. Callers type-switch on the result; the bid
// engine and finalizer never call this.
func DecodeLotDetails(category Category, raw string) (any, error) {
	if raw == "" {
		raw = "{}"
	}
	var (
		out any
		err error
	)
	switch category {
	case CategoryArtwork:
		v := ArtworkDetails{}
		err = json.Unmarshal([]byte(raw), &v)
		out = v
	case CategoryVehicle:
		v := VehicleDetails{}
		err = json.Unmarshal([]byte(raw), &v)
		out = v
	case CategoryCollectible:
		v := CollectibleDetails{}
		err = json.Unmarshal([]byte(raw), &v)
		out = v
	case CategoryGeneral, "":
		v := GeneralDetails{}
		err = json.Unmarshal([]byte(raw), &v)
		out = v
	default:
		return nil, fmt.Errorf("unknown lot category %q", category)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s details: %w", category, err)
	}
	return out, nil
}

// EncodeLotDetails marshals a typed details struct for storage.
func EncodeLotDetails(details any) (string, error) {
	if details == nil {
		return "", nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("encode lot details: %w", err)
	}
	return string(b), nil
}
