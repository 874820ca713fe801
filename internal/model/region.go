package model

import "strings"

// Region is one entry of the controlled region vocabulary.
type Region struct {
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Coordinates Coordinates `json:"coordinates"`
}

// NationalRegion is used for events that cannot be attributed to a state.
var NationalRegion = Region{Code: "IN", Name: "India", Coordinates: Coordinates{Lat: 22.5, Lng: 79}}

var regions = []Region{
	{Code: "AS", Name: "Assam", Coordinates: Coordinates{Lat: 26.2006, Lng: 92.9376}},
	{Code: "BR", Name: "Bihar", Coordinates: Coordinates{Lat: 25.0961, Lng: 85.3131}},
	{Code: "DL", Name: "Delhi", Coordinates: Coordinates{Lat: 28.7041, Lng: 77.1025}},
	{Code: "GJ", Name: "Gujarat", Coordinates: Coordinates{Lat: 22.2587, Lng: 71.1924}},
	{Code: "HR", Name: "Haryana", Coordinates: Coordinates{Lat: 29.0588, Lng: 76.0856}},
	{Code: "JK", Name: "Jammu & Kashmir", Coordinates: Coordinates{Lat: 33.7782, Lng: 76.5762}},
	{Code: "KA", Name: "Karnataka", Coordinates: Coordinates{Lat: 15.3173, Lng: 75.7139}},
	{Code: "MP", Name: "Madhya Pradesh", Coordinates: Coordinates{Lat: 22.9734, Lng: 78.6569}},
	{Code: "MH", Name: "Maharashtra", Coordinates: Coordinates{Lat: 19.7515, Lng: 75.7139}},
	{Code: "MN", Name: "Manipur", Coordinates: Coordinates{Lat: 24.6637, Lng: 93.9063}},
	{Code: "RJ", Name: "Rajasthan", Coordinates: Coordinates{Lat: 27.0238, Lng: 74.2179}},
	{Code: "TN", Name: "Tamil Nadu", Coordinates: Coordinates{Lat: 11.1271, Lng: 78.6569}},
	{Code: "UP", Name: "Uttar Pradesh", Coordinates: Coordinates{Lat: 26.8467, Lng: 80.9462}},
	{Code: "WB", Name: "West Bengal", Coordinates: Coordinates{Lat: 22.9868, Lng: 87.8550}},
	NationalRegion,
}

var regionIndex = func() map[string]Region {
	m := make(map[string]Region, len(regions)*2)
	for _, r := range regions {
		m[strings.ToLower(r.Name)] = r
		m[strings.ToLower(r.Code)] = r
	}
	return m
}()

// Regions returns a copy of the vocabulary, states first.
func Regions() []Region {
	out := make([]Region, len(regions))
	copy(out, regions)
	return out
}

// LookupRegion matches a region by name or code, case-insensitively.
func LookupRegion(nameOrCode string) (Region, bool) {
	r, ok := regionIndex[strings.ToLower(strings.TrimSpace(nameOrCode))]
	return r, ok
}
