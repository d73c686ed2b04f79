// Package carbon converts raw activity quantities into CO2-equivalent mass
// using fixed per-category emission factors. All functions are pure; the
// package holds no state.
package carbon

import (
	"errors"
	"fmt"
)

// Category identifies one emission source.
type Category string

const (
	CategoryElectricity Category = "electricity"
	CategoryNaturalGas  Category = "natural_gas"
	CategoryWater       Category = "water"
	CategoryCar         Category = "car"
	CategoryTransit     Category = "transit"
	CategoryFlights     Category = "flights"
	CategoryFood        Category = "food"
)

// Categories lists every emission category in display order.
var Categories = []Category{
	CategoryElectricity,
	CategoryNaturalGas,
	CategoryWater,
	CategoryCar,
	CategoryTransit,
	CategoryFlights,
	CategoryFood,
}

// Emission factors, kg CO2e per unit.
const (
	ElectricityFactorPerKWh   = 0.4
	NaturalGasFactorPerTherm  = 5.3
	WaterFactorPerGallon      = 0.0002
	GasolineFactorPerGallon   = 8.887
	DefaultFuelEfficiencyMPG  = 25.0
	TransitFactorPerMile      = 0.17
	ShortHaulFlightFactor     = 500.0
	LongHaulFlightFactor      = 1600.0
	MeatFactorPerServing      = 3.0
	DairyFactorPerServing     = 0.7
	VegFactorPerServing       = 0.2
)

// ErrNegativeInput marks a raw quantity below zero. Negative values are a
// caller validation error, never clamped.
var ErrNegativeInput = errors.New("carbon: negative activity quantity")

// Activity is the fixed-shape input record for one day of measured
// quantities. Absent fields default to zero and contribute nothing.
type Activity struct {
	ElectricityKWh     float64 `json:"electricity_kwh"`
	NaturalGasTherms   float64 `json:"natural_gas_therms"`
	WaterGallons       float64 `json:"water_gallons"`
	CarMiles           float64 `json:"car_miles"`
	PublicTransitMiles float64 `json:"public_transit_miles"`
	FlightsShortHaul   int     `json:"flights_short_haul"`
	FlightsLongHaul    int     `json:"flights_long_haul"`
	MeatServings       int     `json:"meat_servings"`
	DairyServings      int     `json:"dairy_servings"`
	VegServings        int     `json:"veg_servings"`
}

// Validate rejects any negative quantity before calculation.
func (a Activity) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"electricity_kwh", a.ElectricityKWh},
		{"natural_gas_therms", a.NaturalGasTherms},
		{"water_gallons", a.WaterGallons},
		{"car_miles", a.CarMiles},
		{"public_transit_miles", a.PublicTransitMiles},
		{"flights_short_haul", float64(a.FlightsShortHaul)},
		{"flights_long_haul", float64(a.FlightsLongHaul)},
		{"meat_servings", float64(a.MeatServings)},
		{"dairy_servings", float64(a.DairyServings)},
		{"veg_servings", float64(a.VegServings)},
	}
	for _, c := range checks {
		if c.value < 0 {
			return fmt.Errorf("%w: %s", ErrNegativeInput, c.name)
		}
	}
	return nil
}

// ElectricityEmissions returns kg CO2e for electricity usage.
func ElectricityEmissions(kwh float64) float64 {
	return kwh * ElectricityFactorPerKWh
}

// NaturalGasEmissions returns kg CO2e for natural gas usage.
func NaturalGasEmissions(therms float64) float64 {
	return therms * NaturalGasFactorPerTherm
}

// WaterEmissions returns kg CO2e for water usage (pumping/treatment energy).
func WaterEmissions(gallons float64) float64 {
	return gallons * WaterFactorPerGallon
}

// CarEmissions returns kg CO2e for car travel. A non-positive efficiency
// falls back to the default fleet average.
func CarEmissions(miles, efficiencyMPG float64) float64 {
	if efficiencyMPG <= 0 {
		efficiencyMPG = DefaultFuelEfficiencyMPG
	}
	return (miles / efficiencyMPG) * GasolineFactorPerGallon
}

// TransitEmissions returns kg CO2e for public transit travel.
func TransitEmissions(miles float64) float64 {
	return miles * TransitFactorPerMile
}

// FlightEmissions returns kg CO2e for flights, flat per flight.
func FlightEmissions(shortHaul, longHaul int) float64 {
	return float64(shortHaul)*ShortHaulFlightFactor + float64(longHaul)*LongHaulFlightFactor
}

// FoodEmissions returns kg CO2e for meal servings.
func FoodEmissions(meat, dairy, veg int) float64 {
	return float64(meat)*MeatFactorPerServing +
		float64(dairy)*DairyFactorPerServing +
		float64(veg)*VegFactorPerServing
}

// CategoryEmissions computes a single category's contribution from the
// activity record. Exposed standalone so breakdowns can be re-derived from
// raw stored fields without re-deriving the total.
func CategoryEmissions(cat Category, a Activity) float64 {
	switch cat {
	case CategoryElectricity:
		return ElectricityEmissions(a.ElectricityKWh)
	case CategoryNaturalGas:
		return NaturalGasEmissions(a.NaturalGasTherms)
	case CategoryWater:
		return WaterEmissions(a.WaterGallons)
	case CategoryCar:
		return CarEmissions(a.CarMiles, DefaultFuelEfficiencyMPG)
	case CategoryTransit:
		return TransitEmissions(a.PublicTransitMiles)
	case CategoryFlights:
		return FlightEmissions(a.FlightsShortHaul, a.FlightsLongHaul)
	case CategoryFood:
		return FoodEmissions(a.MeatServings, a.DairyServings, a.VegServings)
	default:
		return 0
	}
}

// Total sums every category's contribution. Zero input yields exactly zero;
// there is no implicit minimum charge.
func Total(a Activity) float64 {
	var total float64
	for _, cat := range Categories {
		total += CategoryEmissions(cat, a)
	}
	return total
}

// Breakdown maps each category to its contribution.
func Breakdown(a Activity) map[Category]float64 {
	out := make(map[Category]float64, len(Categories))
	for _, cat := range Categories {
		out[cat] = CategoryEmissions(cat, a)
	}
	return out
}
