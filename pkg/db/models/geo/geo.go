package geo

// Level identifies one tier of the five-level administrative hierarchy.
type Level string

const (
	LevelVillage     Level = "village"
	LevelSubdistrict Level = "subdistrict"
	LevelDistrict    Level = "district"
	LevelState       Level = "state"
	LevelCountry     Level = "country"
)

// Levels returns all levels ordered bottom-up, village first.
func Levels() []Level {
	return []Level{LevelVillage, LevelSubdistrict, LevelDistrict, LevelState, LevelCountry}
}

// ParseLevel validates a level string coming from the API surface.
func ParseLevel(s string) (Level, bool) {
	switch Level(s) {
	case LevelVillage, LevelSubdistrict, LevelDistrict, LevelState, LevelCountry:
		return Level(s), true
	}
	return "", false
}

// IsValid reports whether l is one of the five known levels.
func (l Level) IsValid() bool {
	_, ok := ParseLevel(string(l))
	return ok
}

// Parent returns the level one tier up, or false for country.
func (l Level) Parent() (Level, bool) {
	switch l {
	case LevelVillage:
		return LevelSubdistrict, true
	case LevelSubdistrict:
		return LevelDistrict, true
	case LevelDistrict:
		return LevelState, true
	case LevelState:
		return LevelCountry, true
	}
	return "", false
}

// Child returns the level one tier down, or false for village.
func (l Level) Child() (Level, bool) {
	switch l {
	case LevelCountry:
		return LevelState, true
	case LevelState:
		return LevelDistrict, true
	case LevelDistrict:
		return LevelSubdistrict, true
	case LevelSubdistrict:
		return LevelVillage, true
	}
	return "", false
}

func (l Level) String() string { return string(l) }

// Entity is one node of the hierarchy tree. ParentID is the id of the entity one
// level up; zero for countries, which have no parent.
type Entity struct {
	ID       uint64 `ch:"id" json:"id"`
	Name     string `ch:"name" json:"name"`
	ParentID uint64 `ch:"parent_id" json:"parent_id"`
}

// User anchors a person to the leaf of the hierarchy and carries the display
// name embedded into village-level reports.
type User struct {
	ID        uint64 `ch:"id" json:"id"`
	Name      string `ch:"name" json:"name"`
	VillageID uint64 `ch:"village_id" json:"village_id"`
}
