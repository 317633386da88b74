package domain

// DefaultSafeLocations is the built-in São Paulo evacuation catalog used when
// no catalog file is configured.
func DefaultSafeLocations() []SafeLocation {
	return []SafeLocation{
		{ID: "1", Position: Position{Lat: -23.5320, Lon: -46.6420}, Name: "Centro de Evacuação Paulista", Kind: KindEvacuationCenter},
		{ID: "2", Position: Position{Lat: -23.5650, Lon: -46.6200}, Name: "Abrigo Municipal Vila Olímpia", Kind: KindShelter},
		{ID: "3", Position: Position{Lat: -23.5280, Lon: -46.6580}, Name: "Hospital das Clínicas", Kind: KindHospital},
		{ID: "4", Position: Position{Lat: -23.5420, Lon: -46.6180}, Name: "Posto de Bombeiros Central", Kind: KindFireStation},
	}
}
