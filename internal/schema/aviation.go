package schema

// AviationOptions declares the relations of the flight operations
// dashboard. flights and crew_members are linked through flight_crew and
// are never joined directly.
func AviationOptions() []Option {
	return []Option{
		WithRelation("flights", "aircraft", "aircraft_id"),
		WithRelation("flights", "airports", "departure_airport_id"),
		WithNamedRelation("flights", "departure", "airports", "departure_airport_id"),
		WithNamedRelation("flights", "arrival", "airports", "arrival_airport_id"),
		WithRelation("flight_crew", "flights", "flight_id"),
		WithRelation("flight_crew", "crew_members", "crew_member_id"),
		WithRelation("duty_periods", "crew_members", "crew_member_id"),
		WithRelation("maintenance_records", "aircraft", "aircraft_id"),
		WithJunction("flights", "crew_members", "flight_crew"),
		WithWellKnown("aircraft", "aircraft_id"),
	}
}

// Aviation returns the aviation relation map extended by opts.
func Aviation(opts ...Option) *Schema {
	return MustNew(append(AviationOptions(), opts...)...)
}
