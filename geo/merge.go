package geo

import "convtrack/api/models"

// MergeFillMissing combines two partial records: every field keeps a's
// value when a already has one, and takes b's value only to fill a gap.
// Earlier providers in the chain therefore always win for any field they
// populated.
func MergeFillMissing(a, b models.GeoRecord) models.GeoRecord {
	out := a
	if out.City == "" {
		out.City = b.City
	}
	if out.Region == "" {
		out.Region = b.Region
	}
	if out.RegionCode == "" {
		out.RegionCode = b.RegionCode
	}
	if out.Country == "" {
		out.Country = b.Country
	}
	if out.CountryCode == "" {
		out.CountryCode = b.CountryCode
	}
	if out.PostalCode == "" {
		out.PostalCode = b.PostalCode
	}
	if out.Timezone == "" {
		out.Timezone = b.Timezone
	}
	if out.ISP == "" {
		out.ISP = b.ISP
	}
	if out.Lat == nil {
		out.Lat = b.Lat
	}
	if out.Lon == nil {
		out.Lon = b.Lon
	}
	return out
}
