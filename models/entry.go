package models

import (
	"time"

	"github.com/trailgreen/carbontrack/carbon"
)

// FootprintEntry stores one user's dated activity record plus the emissions
// total computed at write time. Rows are insert-only; the stored total is
// never recomputed, so historical entries keep the factors they were
// written with.
type FootprintEntry struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserID             uint      `gorm:"index;not null" json:"user_id"`
	EntryDate          time.Time `gorm:"index;not null" json:"entry_date"`
	ElectricityKWh     float64   `gorm:"default:0" json:"electricity_kwh"`
	NaturalGasTherms   float64   `gorm:"default:0" json:"natural_gas_therms"`
	WaterGallons       float64   `gorm:"default:0" json:"water_gallons"`
	CarMiles           float64   `gorm:"default:0" json:"car_miles"`
	PublicTransitMiles float64   `gorm:"default:0" json:"public_transit_miles"`
	FlightsShortHaul   int       `gorm:"default:0" json:"flights_short_haul"`
	FlightsLongHaul    int       `gorm:"default:0" json:"flights_long_haul"`
	MeatServings       int       `gorm:"default:0" json:"meat_servings"`
	DairyServings      int       `gorm:"default:0" json:"dairy_servings"`
	VegServings        int       `gorm:"default:0" json:"veg_servings"`
	TotalCarbon        float64   `gorm:"default:0" json:"total_carbon"`
	CreatedAt          time.Time `json:"created_at"`
}

// Activity converts the stored raw fields back into the calculator's input
// shape so breakdowns can be re-derived without touching the stored total.
func (e *FootprintEntry) Activity() carbon.Activity {
	return carbon.Activity{
		ElectricityKWh:     e.ElectricityKWh,
		NaturalGasTherms:   e.NaturalGasTherms,
		WaterGallons:       e.WaterGallons,
		CarMiles:           e.CarMiles,
		PublicTransitMiles: e.PublicTransitMiles,
		FlightsShortHaul:   e.FlightsShortHaul,
		FlightsLongHaul:    e.FlightsLongHaul,
		MeatServings:       e.MeatServings,
		DairyServings:      e.DairyServings,
		VegServings:        e.VegServings,
	}
}
